package storage

import (
	"context"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrNotFound    = errors.New("file not found")
	ErrTooLarge    = errors.New("file too large")
)

// StoredFile describes a persisted upload. It is the wire shape the upload
// endpoint returns.
type StoredFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
}

// Service persists uploaded files under a directory and serves them back
// under baseURL/files/{key}.
type Service struct {
	dir      string
	baseURL  string
	maxBytes int64
	logger   zerolog.Logger
}

// NewService creates dir when missing. maxBytes <= 0 disables the size check.
func NewService(dir, baseURL string, maxBytes int64) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload dir %s", dir)
	}
	return &Service{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		logger:   log.With().Str("component", "storage").Logger(),
	}, nil
}

// Save writes r to a fresh key derived from name. The original name is kept
// in the returned record; the key only keeps its extension.
func (s *Service) Save(_ context.Context, name, mimeType string, r io.Reader) (StoredFile, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return StoredFile{}, ErrInvalidName
	}

	ext := strings.ToLower(filepath.Ext(base))
	key := uuid.NewString() + ext
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			mimeType = byExt
		} else if mimeType == "" {
			mimeType = "application/octet-stream"
		}
	}

	path := filepath.Join(s.dir, key)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return StoredFile{}, errors.Wrap(err, "create upload file")
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	size, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil && s.maxBytes > 0 && size > s.maxBytes {
		err = ErrTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return StoredFile{}, errors.Wrapf(err, "store %s", base)
	}

	s.logger.Info().Str("name", base).Str("key", key).Int64("size", size).Msg("stored upload")
	return StoredFile{
		Name: base,
		URL:  s.baseURL + "/files/" + url.PathEscape(key),
		MIME: mimeType,
		Size: size,
	}, nil
}

// Path resolves key to a file on disk. Keys never contain separators.
func (s *Service) Path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", ErrInvalidName
	}
	path := filepath.Join(s.dir, key)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}
