// Package upload turns staged files into durable attachment references.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
	"github.com/zhouzirui/chatwidget/internal/widget/errs"
	"github.com/zhouzirui/chatwidget/internal/widget/intake"
)

// FieldName is the multipart field every file is submitted under.
const FieldName = "files"

const failedMessage = "Upload failed"

// Delegate uploads staged files. With no endpoint configured it derives
// attachments from local metadata and never touches the network.
type Delegate struct {
	endpoint   string
	credential string
	client     *http.Client
	logger     zerolog.Logger
}

// Option customises a Delegate.
type Option func(*Delegate)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Delegate) {
		if c != nil {
			d.client = c
		}
	}
}

// WithCredential forwards an API key with every upload.
func WithCredential(key string) Option {
	return func(d *Delegate) { d.credential = key }
}

// New returns a Delegate posting to endpoint, or a local-only Delegate when
// endpoint is empty.
func New(endpoint string, opts ...Option) *Delegate {
	d := &Delegate{
		endpoint: strings.TrimSpace(endpoint),
		client:   http.DefaultClient,
		logger:   log.With().Str("component", "upload").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Remote reports whether uploads go over the network.
func (d *Delegate) Remote() bool {
	return d.endpoint != ""
}

type uploadedFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
}

// Deliver returns one attachment per file. A remote failure fails the whole
// batch: callers must not assume any file was stored.
func (d *Delegate) Deliver(ctx context.Context, files []intake.Staged) ([]chat.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if !d.Remote() {
		out := make([]chat.Attachment, len(files))
		for i, f := range files {
			out[i] = f.LocalAttachment()
		}
		return out, nil
	}

	body, contentType, err := encodeForm(files)
	if err != nil {
		return nil, errs.Upload(err, failedMessage)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, body)
	if err != nil {
		return nil, errs.Upload(errors.Wrap(err, "build upload request"), failedMessage)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if d.credential != "" {
		req.Header.Set("X-Api-Key", d.credential)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errs.Upload(errors.Wrap(err, "post upload"), failedMessage)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, errs.Upload(errors.Errorf("upload endpoint returned %s", resp.Status), failedMessage)
	}

	var uploaded []uploadedFile
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, errs.Upload(errors.Wrap(err, "decode upload response"), failedMessage)
	}

	out := make([]chat.Attachment, len(uploaded))
	for i, u := range uploaded {
		out[i] = chat.Attachment{
			Name:    u.Name,
			URL:     u.URL,
			MIME:    u.MIME,
			Size:    u.Size,
			IsImage: strings.HasPrefix(u.MIME, "image/"),
		}
	}
	d.logger.Debug().Int("files", len(out)).Str("endpoint", d.endpoint).Msg("upload complete")
	return out, nil
}

func encodeForm(files []intake.Staged) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		if err := writePart(w, f.File); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart body")
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writePart(w *multipart.Writer, f intake.File) error {
	if f.Open == nil {
		return errors.Errorf("file %s has no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "open %s", f.Name)
	}
	defer rc.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(FieldName), quoteEscaper.Replace(f.Name)))
	if f.MIME != "" {
		h.Set("Content-Type", f.MIME)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return errors.Wrapf(err, "create part for %s", f.Name)
	}
	if _, err := io.Copy(part, rc); err != nil {
		return errors.Wrapf(err, "copy %s", f.Name)
	}
	return nil
}
