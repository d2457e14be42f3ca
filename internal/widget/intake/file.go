package intake

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const octetStream = "application/octet-stream"

// File is a candidate the user picked or dropped. Content is read lazily
// through Open so large files are not held in memory while staged.
type File struct {
	Name string
	MIME string
	Size int64
	Open func() (io.ReadCloser, error)
}

// IsImage reports whether the file should get a visual preview.
func (f File) IsImage() bool {
	return strings.HasPrefix(f.MIME, "image/")
}

// FromBytes wraps in-memory content, e.g. a file received over a websocket.
func FromBytes(name, mimeType string, data []byte) File {
	if mimeType == "" {
		mimeType = detectMIME(name, data)
	}
	return File{
		Name: name,
		MIME: mimeType,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// FromPath stats a file on disk. The content is opened again on demand.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = sniffPath(path)
	}

	return File{
		Name: filepath.Base(path),
		MIME: mimeType,
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

func detectMIME(name string, data []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	if len(data) == 0 {
		return octetStream
	}
	return http.DetectContentType(data)
}

func sniffPath(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return octetStream
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if n == 0 {
		return octetStream
	}
	return http.DetectContentType(head[:n])
}
