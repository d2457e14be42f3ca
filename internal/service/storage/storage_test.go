package storage

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestSaveAndResolve(t *testing.T) {
	svc, err := NewService(t.TempDir(), "http://files.test/", 0)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}

	stored, err := svc.Save(context.Background(), "../../etc/report.PDF", "", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Save err: %v", err)
	}
	if stored.Name != "report.PDF" || stored.Size != 8 {
		t.Fatalf("unexpected record %+v", stored)
	}
	if stored.MIME != "application/pdf" {
		t.Fatalf("expected mime from extension, got %q", stored.MIME)
	}
	if !strings.HasPrefix(stored.URL, "http://files.test/files/") || !strings.HasSuffix(stored.URL, ".pdf") {
		t.Fatalf("unexpected url %q", stored.URL)
	}

	key := strings.TrimPrefix(stored.URL, "http://files.test/files/")
	path, err := svc.Path(key)
	if err != nil {
		t.Fatalf("Path err: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestSaveRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(dir, "", 4)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}

	_, err = svc.Save(context.Background(), "big.txt", "text/plain", strings.NewReader("12345"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected partial file to be removed, found %d entries", len(entries))
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	svc, err := NewService(t.TempDir(), "", 0)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	for _, key := range []string{"", "../x", "a/b", ".hidden"} {
		if _, err := svc.Path(key); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("key %q: expected ErrInvalidName, got %v", key, err)
		}
	}
	if _, err := svc.Path("missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
