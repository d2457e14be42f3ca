package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
	"github.com/zhouzirui/chatwidget/internal/widget/errs"
	"github.com/zhouzirui/chatwidget/internal/widget/intake"
	"github.com/zhouzirui/chatwidget/internal/widget/sse"
)

// fakeStream is one reply stream the test writes frames into.
type fakeStream struct {
	question string
	pw       *io.PipeWriter
	enc      *sse.Encoder
}

func (f *fakeStream) send(t *testing.T, events ...sse.Event) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, f.enc.Encode(e))
	}
}

// fakeStreamer hands out pipes. Unless ignoreCancel is set, a pipe is closed
// with the context error when the request is cancelled, like an HTTP body.
type fakeStreamer struct {
	ignoreCancel bool
	openErr      error
	opened       chan *fakeStream
	calls        atomic.Int32
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{opened: make(chan *fakeStream, 8)}
}

func (f *fakeStreamer) Open(ctx context.Context, question string) (io.ReadCloser, error) {
	f.calls.Add(1)
	if f.openErr != nil {
		return nil, f.openErr
	}
	pr, pw := io.Pipe()
	if !f.ignoreCancel {
		go func() {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
	}
	f.opened <- &fakeStream{question: question, pw: pw, enc: sse.NewEncoder(pw)}
	return pr, nil
}

func (f *fakeStreamer) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-f.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for stream to open")
		return nil
	}
}

type fakeUploader struct {
	err   error
	calls atomic.Int32
}

func (f *fakeUploader) Deliver(_ context.Context, files []intake.Staged) ([]chat.Attachment, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]chat.Attachment, len(files))
	for i, file := range files {
		out[i] = chat.Attachment{Name: file.File.Name, URL: "https://cdn/" + file.File.Name, MIME: file.File.MIME, IsImage: file.File.IsImage()}
	}
	return out, nil
}

type countingHook struct{ n atomic.Int32 }

func (h *countingHook) OnBotReplyWhileHidden() { h.n.Add(1) }

// recorder keeps every snapshot so tests can check properties over time.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) OnState(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.NoticeTTL == 0 {
		opts.NoticeTTL = time.Minute
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snapshot(t *testing.T, s *Session) Snapshot {
	t.Helper()
	snap, err := s.Snapshot()
	require.NoError(t, err)
	return snap
}

func waitFor(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var last Snapshot
	require.Eventually(t, func() bool {
		last = snapshot(t, s)
		return cond(last)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func idle(snap Snapshot) bool { return !snap.Typing && snap.OpenMessageID == "" }

func TestSendStreamsReplyIntoTranscript(t *testing.T) {
	streamer := newFakeStreamer()
	s := newSession(t, Options{Streamer: streamer, PanelVisible: true})
	require.NoError(t, s.SetInput("hi"))

	_, err := s.Send("hi")
	require.NoError(t, err)

	stream := streamer.next(t)
	require.Equal(t, "hi", stream.question)
	stream.send(t, sse.Start{ID: "srv-1", Model: "echo"}, sse.Delta{Content: "He"}, sse.Delta{Content: "llo"}, sse.End{})

	snap := waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 2 && idle(s) })
	require.Equal(t, "", snap.Input)
	require.Equal(t, chat.SenderUser, snap.Messages[0].Sender)
	require.Equal(t, "hi", snap.Messages[0].Text)
	require.Equal(t, chat.StatusSent, snap.Messages[0].Status)
	require.Equal(t, chat.SenderBot, snap.Messages[1].Sender)
	require.Equal(t, "Hello", snap.Messages[1].Text)
	require.Equal(t, chat.StatusSent, snap.Messages[1].Status)
	require.Equal(t, "echo", snap.Model)
}

func TestEmptySendIsNoop(t *testing.T) {
	streamer := newFakeStreamer()
	s := newSession(t, Options{Streamer: streamer})

	_, err := s.Send("   ")

	require.ErrorIs(t, err, ErrNothingToSend)
	require.Empty(t, snapshot(t, s).Messages)
	require.Zero(t, streamer.calls.Load())
}

func TestHidingPanelCancelsSilently(t *testing.T) {
	streamer := newFakeStreamer()
	s := newSession(t, Options{Streamer: streamer, PanelVisible: true})

	_, err := s.Send("tell me a story")
	require.NoError(t, err)
	stream := streamer.next(t)
	stream.send(t, sse.Delta{Content: "Once upon"})
	waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 2 })

	require.NoError(t, s.SetPanelVisible(false))

	// The pipe is closed by cancellation; nothing more reaches the transcript.
	_ = stream.enc.Encode(sse.Delta{Content: " a time"})
	_ = stream.enc.Encode(sse.Error{Message: "late"})

	snap := snapshot(t, s)
	require.True(t, idle(snap))
	require.Equal(t, "Once upon", snap.Messages[1].Text)
	require.Equal(t, chat.StatusSent, snap.Messages[1].Status)
	require.Empty(t, snap.Notice)
}

func TestNewSendSupersedesStream(t *testing.T) {
	streamer := newFakeStreamer()
	streamer.ignoreCancel = true
	rec := &recorder{}
	s := newSession(t, Options{Streamer: streamer, PanelVisible: true, Observers: []Observer{rec}})

	_, err := s.Send("one")
	require.NoError(t, err)
	first := streamer.next(t)
	first.send(t, sse.Delta{Content: "a"})
	waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 2 })

	_, err = s.Send("two")
	require.NoError(t, err)
	second := streamer.next(t)

	// A late delta on the superseded stream must not touch any message.
	go func() {
		_ = first.enc.Encode(sse.Delta{Content: "STALE"})
		_ = first.pw.Close()
	}()

	second.send(t, sse.Delta{Content: "b"}, sse.End{})
	snap := waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 4 && idle(s) })
	require.NoError(t, second.pw.Close())

	require.Equal(t, "a", snap.Messages[1].Text)
	require.Equal(t, "two", snap.Messages[2].Text)
	require.Equal(t, "b", snap.Messages[3].Text)
	require.NotEqual(t, snap.Messages[1].ID, snap.Messages[3].ID)

	for _, seen := range rec.all() {
		open := 0
		for _, m := range seen.Messages {
			if m.ID == seen.OpenMessageID {
				open++
			}
			require.NotContains(t, m.Text, "STALE")
		}
		require.LessOrEqual(t, open, 1)
	}
}

func TestErrorEventMarksReplyFailed(t *testing.T) {
	streamer := newFakeStreamer()
	s := newSession(t, Options{Streamer: streamer, PanelVisible: true})

	_, err := s.Send("hi")
	require.NoError(t, err)
	stream := streamer.next(t)
	stream.send(t, sse.Delta{Content: "partial"}, sse.Error{Message: "model overloaded"})

	snap := waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 2 && s.Messages[1].Status == chat.StatusError })
	require.Equal(t, "partial", snap.Messages[1].Text)
	require.Equal(t, "model overloaded", snap.Notice)
	require.False(t, snap.Typing)
}

func TestOpenFailureSynthesizesErrorReply(t *testing.T) {
	streamer := newFakeStreamer()
	streamer.openErr = errs.StreamTransport(errors.New("500"), "Stream failed: 500 Internal Server Error")
	s := newSession(t, Options{Streamer: streamer, PanelVisible: true})

	_, err := s.Send("hi")
	require.NoError(t, err)

	snap := waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 2 })
	require.Equal(t, "[Error]", snap.Messages[1].Text)
	require.Equal(t, chat.StatusError, snap.Messages[1].Status)
	require.Equal(t, "Stream failed: 500 Internal Server Error", snap.Notice)
	require.Equal(t, chat.StatusSent, snap.Messages[0].Status)
}

func TestUploadFailureSkipsStream(t *testing.T) {
	streamer := newFakeStreamer()
	uploader := &fakeUploader{err: errs.Upload(errors.New("413"), "Upload failed")}
	s := newSession(t, Options{Streamer: streamer, Uploader: uploader, PanelVisible: true})

	_, err := s.Stage([]intake.File{intake.FromBytes("a.png", "image/png", []byte{1})})
	require.NoError(t, err)
	_, err = s.Send("look")
	require.NoError(t, err)

	snap := waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 1 && s.Messages[0].Status == chat.StatusError })
	require.Equal(t, "Upload failed", snap.Notice)
	require.Len(t, snap.Staged, 1, "staged files are kept for a retry")
	require.False(t, snap.Typing)
	require.Zero(t, streamer.calls.Load())
}

func TestAttachmentsUploadThenStream(t *testing.T) {
	streamer := newFakeStreamer()
	uploader := &fakeUploader{}
	s := newSession(t, Options{Streamer: streamer, Uploader: uploader, PanelVisible: true})

	_, err := s.Stage([]intake.File{intake.FromBytes("a.png", "image/png", []byte{1})})
	require.NoError(t, err)
	id, err := s.Send("")
	require.NoError(t, err)

	stream := streamer.next(t)
	require.Equal(t, "(no text)", stream.question)
	stream.send(t, sse.Delta{Content: "nice picture"}, sse.End{})

	snap := waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 2 && idle(s) })
	require.Equal(t, id, snap.Messages[0].ID)
	require.Equal(t, chat.StatusSent, snap.Messages[0].Status)
	require.Equal(t, "https://cdn/a.png", snap.Messages[0].Attachments[0].URL)
	require.Empty(t, snap.Staged)
	require.EqualValues(t, 1, uploader.calls.Load())
}

func TestSendingStatusWhileUploading(t *testing.T) {
	streamer := newFakeStreamer()
	rec := &recorder{}
	s := newSession(t, Options{Streamer: streamer, Observers: []Observer{rec}, PanelVisible: true})

	_, err := s.Stage([]intake.File{intake.FromBytes("notes.txt", "text/plain", []byte("x"))})
	require.NoError(t, err)
	_, err = s.Send("see attached")
	require.NoError(t, err)
	streamer.next(t).send(t, sse.End{})
	waitFor(t, s, idle)

	var statuses []chat.Status
	for _, snap := range rec.all() {
		if len(snap.Messages) > 0 {
			statuses = append(statuses, snap.Messages[0].Status)
		}
	}
	require.Equal(t, chat.StatusSending, statuses[0])
	require.Equal(t, chat.StatusSent, statuses[len(statuses)-1])
}

func TestBotReplyHookOnlyWhileHidden(t *testing.T) {
	streamer := newFakeStreamer()
	hook := &countingHook{}
	s := newSession(t, Options{Streamer: streamer, BotReplyHook: hook})

	_, err := s.Send("first")
	require.NoError(t, err)
	streamer.next(t).send(t, sse.Delta{Content: "a"}, sse.Delta{Content: "b"}, sse.End{})
	waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 2 && idle(s) })
	require.EqualValues(t, 1, hook.n.Load())

	require.NoError(t, s.SetPanelVisible(true))
	_, err = s.Send("second")
	require.NoError(t, err)
	streamer.next(t).send(t, sse.Delta{Content: "c"}, sse.End{})
	waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 4 && idle(s) })
	require.EqualValues(t, 1, hook.n.Load())
}

func TestStageRejectionShowsNotice(t *testing.T) {
	s := newSession(t, Options{Streamer: newFakeStreamer(), NoticeTTL: 30 * time.Millisecond})

	files := make([]intake.File, 6)
	for i := range files {
		files[i] = intake.FromBytes("f.txt", "text/plain", []byte("x"))
	}
	res, err := s.Stage(files)
	require.NoError(t, err)
	require.Empty(t, res.Accepted)

	snap := snapshot(t, s)
	require.Empty(t, snap.Staged)
	require.Equal(t, "You can attach up to 5 files per selection.", snap.Notice)

	waitFor(t, s, func(s Snapshot) bool { return s.Notice == "" })
}

func TestRemoveStaged(t *testing.T) {
	s := newSession(t, Options{Streamer: newFakeStreamer()})
	_, err := s.Stage([]intake.File{
		intake.FromBytes("a.txt", "text/plain", []byte("a")),
		intake.FromBytes("b.txt", "text/plain", []byte("b")),
	})
	require.NoError(t, err)

	removed, err := s.RemoveStaged(0)
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = s.RemoveStaged(5)
	require.NoError(t, err)
	require.False(t, removed)

	snap := snapshot(t, s)
	require.Len(t, snap.Staged, 1)
	require.Equal(t, "b.txt", snap.Staged[0].File.Name)
}

func TestCloseCancelsAndReleasesGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	streamer := newFakeStreamer()
	s, err := New(Options{Streamer: streamer, PanelVisible: true, NoticeTTL: time.Minute})
	require.NoError(t, err)

	_, err = s.Send("hello?")
	require.NoError(t, err)
	stream := streamer.next(t)
	stream.send(t, sse.Delta{Content: "Hi th"})
	waitFor(t, s, func(s Snapshot) bool { return len(s.Messages) == 2 })

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Send("again")
	require.ErrorIs(t, err, ErrClosed)
	_, err = s.Snapshot()
	require.ErrorIs(t, err, ErrClosed)
}

func TestNewRequiresStreamer(t *testing.T) {
	_, err := New(Options{})
	require.ErrorIs(t, err, ErrNoStreamer)
}
