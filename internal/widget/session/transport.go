package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
	"github.com/zhouzirui/chatwidget/internal/widget/errs"
	"github.com/zhouzirui/chatwidget/internal/widget/intake"
)

// Streamer opens one reply stream for a question.
type Streamer interface {
	Open(ctx context.Context, question string) (io.ReadCloser, error)
}

// Uploader turns staged files into attachments.
type Uploader interface {
	Deliver(ctx context.Context, files []intake.Staged) ([]chat.Attachment, error)
}

type askRequest struct {
	UserQuestion string `json:"user_question"`
}

// HTTPStreamer posts questions to the answering service and returns the
// event-stream body. Cancelling ctx aborts the request and unblocks reads.
type HTTPStreamer struct {
	url        string
	credential string
	client     *http.Client
}

// NewHTTPStreamer returns a Streamer for url. credential, when set, is sent
// as X-Api-Key. The client must not set a response timeout.
func NewHTTPStreamer(url, credential string, client *http.Client) *HTTPStreamer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStreamer{url: url, credential: credential, client: client}
}

// Open implements Streamer.
func (h *HTTPStreamer) Open(ctx context.Context, question string) (io.ReadCloser, error) {
	payload, err := json.Marshal(askRequest{UserQuestion: question})
	if err != nil {
		return nil, errs.StreamTransport(errors.Wrap(err, "encode question"), "Stream failed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.StreamTransport(errors.Wrap(err, "build stream request"), "Stream failed")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if h.credential != "" {
		req.Header.Set("X-Api-Key", h.credential)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errs.StreamTransport(errors.Wrap(err, "post question"), "Stream failed: "+err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, errs.StreamTransport(errors.Errorf("stream endpoint returned %s", resp.Status), "Stream failed: "+resp.Status)
	}
	return resp.Body, nil
}
