// Package session runs one chat widget instance: it owns the transcript,
// sends user turns, streams bot replies into the transcript and keeps at
// most one reply stream alive.
//
// All state lives on a single loop goroutine. Uploads and streams run on
// worker goroutines and hand their results back to the loop, which drops
// anything coming from a request that is no longer current.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
	"github.com/zhouzirui/chatwidget/internal/widget/intake"
	"github.com/zhouzirui/chatwidget/internal/widget/notice"
	"github.com/zhouzirui/chatwidget/internal/widget/sse"
	"github.com/zhouzirui/chatwidget/internal/widget/upload"
)

var (
	// ErrClosed is returned by every method once Close has been called.
	ErrClosed = errors.New("session closed")
	// ErrNothingToSend is returned by Send when there is no text and no
	// staged file.
	ErrNothingToSend = errors.New("nothing to send")
	// ErrNoStreamer is returned by New without a Streamer.
	ErrNoStreamer = errors.New("session requires a streamer")
)

// emptyQuestion is sent when the user submits attachments without text.
const emptyQuestion = "(no text)"

// Observer receives a snapshot after every state change. It runs on the
// session loop and must not call back into the Session.
type Observer interface {
	OnState(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

// OnState implements Observer.
func (f ObserverFunc) OnState(s Snapshot) { f(s) }

// BotReplyHook is told when a bot message is created while the panel is
// hidden. It is called at most once per bot message.
type BotReplyHook interface {
	OnBotReplyWhileHidden()
}

// Options configures a Session.
type Options struct {
	Streamer     Streamer
	Uploader     Uploader
	Limits       intake.Limits
	NoticeTTL    time.Duration
	Observers    []Observer
	BotReplyHook BotReplyHook
	PanelVisible bool

	Clock func() time.Time
	NewID func() string
}

// Snapshot is a read-only copy of the session state for presentation.
type Snapshot struct {
	Messages      []chat.Message
	Typing        bool
	Input         string
	PanelVisible  bool
	Model         string
	Staged        []intake.Staged
	Notice        string
	OpenMessageID string
}

type request struct {
	id     string
	cancel context.CancelFunc
}

// Session is one widget instance. Create it with New and release it with
// Close; sessions share nothing, so several can run side by side.
type Session struct {
	opts   Options
	logger zerolog.Logger

	ctx       context.Context
	cancelAll context.CancelFunc

	actions  chan func()
	quit     chan struct{}
	loopDone chan struct{}
	workers  sync.WaitGroup
	closing  sync.Once

	// Owned by the loop goroutine.
	state    State
	intake   *intake.Intake
	notices  *notice.Board
	inflight *request
}

// New starts a session.
func New(opts Options) (*Session, error) {
	if opts.Streamer == nil {
		return nil, ErrNoStreamer
	}
	if opts.Uploader == nil {
		opts.Uploader = upload.New("")
	}
	if opts.Limits.MaxFiles <= 0 {
		opts.Limits = intake.DefaultLimits()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:      opts,
		logger:    log.With().Str("component", "session").Logger(),
		ctx:       ctx,
		cancelAll: cancel,
		actions:   make(chan func()),
		quit:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		intake:    intake.New(opts.Limits),
	}
	s.state.PanelVisible = opts.PanelVisible
	s.notices = notice.NewBoard(opts.NoticeTTL, func(text string) {
		// Shows happen on the loop, which notifies by itself; only
		// expiries arrive from a timer goroutine.
		if text == "" {
			s.post(s.notify)
		}
	})

	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case fn := <-s.actions:
			fn()
		case <-s.quit:
			return
		}
	}
}

// post hands fn to the loop. It reports false once the session is closed.
func (s *Session) post(fn func()) bool {
	select {
	case s.actions <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (s *Session) do(fn func()) error {
	done := make(chan struct{})
	if !s.post(func() { fn(); close(done) }) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-s.loopDone:
		return ErrClosed
	}
}

// await runs fn on the loop and returns its result, or false if closed.
func (s *Session) await(fn func() bool) bool {
	result := make(chan bool, 1)
	if !s.post(func() { result <- fn() }) {
		return false
	}
	select {
	case ok := <-result:
		return ok
	case <-s.loopDone:
		return false
	}
}

func (s *Session) apply(a Action) {
	for _, eff := range s.state.Apply(a) {
		switch eff := eff.(type) {
		case BotReplied:
			if s.opts.BotReplyHook != nil {
				s.opts.BotReplyHook.OnBotReplyWhileHidden()
			}
		case ShowNotice:
			s.notices.Show(eff.Text)
		}
	}
	if err := s.state.CheckInvariants(); err != nil {
		s.logger.Error().Err(err).Msg("transcript invariant violated")
	}
	s.notify()
}

func (s *Session) notify() {
	if len(s.opts.Observers) == 0 {
		return
	}
	snap := s.snapshot()
	for _, o := range s.opts.Observers {
		o.OnState(snap)
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		Messages:     s.state.Transcript.Clone(),
		Typing:       s.state.Typing,
		Input:        s.state.Input,
		PanelVisible: s.state.PanelVisible,
		Model:        s.state.Model,
		Staged:       s.intake.Files(),
		Notice:       s.notices.Current(),
	}
	if h, ok := s.state.Open(); ok {
		snap.OpenMessageID = h.ID
	}
	return snap
}

// abandon cancels the in-flight request. Its partial reply is kept as is.
func (s *Session) abandon() {
	if s.inflight == nil {
		return
	}
	s.logger.Debug().Str("correlation_id", s.inflight.id).Msg("abandoning in-flight stream")
	s.inflight.cancel()
	s.inflight = nil
	s.apply(StreamAbandoned{})
}

// Snapshot returns the current state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() { snap = s.snapshot() })
	return snap, err
}

// SetInput updates the composer text.
func (s *Session) SetInput(text string) error {
	return s.do(func() { s.apply(InputChanged{Text: text}) })
}

// SetPanelVisible shows or hides the panel. Hiding it cancels the
// in-flight stream.
func (s *Session) SetPanelVisible(visible bool) error {
	return s.do(func() {
		if !visible {
			s.abandon()
		}
		s.apply(PanelToggled{Visible: visible})
	})
}

// Cancel abandons the in-flight stream, if any.
func (s *Session) Cancel() error {
	return s.do(s.abandon)
}

// Stage validates files and adds the accepted ones to the staged list.
func (s *Session) Stage(files []intake.File) (intake.Result, error) {
	var res intake.Result
	err := s.do(func() {
		res = s.intake.Add(files)
		if res.Notice != nil {
			s.notices.Show(res.Notice.Notice())
		}
		s.notify()
	})
	return res, err
}

// RemoveStaged drops the staged file at idx.
func (s *Session) RemoveStaged(idx int) (bool, error) {
	var removed bool
	err := s.do(func() {
		if removed = s.intake.Remove(idx); removed {
			s.notify()
		}
	})
	return removed, err
}

// Send submits text and the staged files as a new user turn, cancelling any
// reply still streaming. It returns the id of the new user message.
func (s *Session) Send(text string) (string, error) {
	var (
		id      string
		sendErr error
	)
	err := s.do(func() {
		clean := strings.TrimSpace(text)
		staged := s.intake.Files()
		if clean == "" && len(staged) == 0 {
			sendErr = ErrNothingToSend
			return
		}

		s.abandon()

		msg := chat.Message{
			ID:        s.opts.NewID(),
			Sender:    chat.SenderUser,
			Text:      clean,
			CreatedAt: s.opts.Clock(),
			Status:    chat.StatusSent,
		}
		if len(staged) > 0 {
			msg.Status = chat.StatusSending
			msg.Attachments = make([]chat.Attachment, len(staged))
			for i, f := range staged {
				msg.Attachments[i] = f.LocalAttachment()
			}
		}
		s.apply(Send{Message: msg})

		question := clean
		if question == "" {
			question = emptyQuestion
		}

		ctx, cancel := context.WithCancel(s.ctx)
		req := &request{id: s.opts.NewID(), cancel: cancel}
		s.inflight = req
		s.workers.Add(1)
		go s.run(ctx, req, msg.ID, staged, question)
		id = msg.ID
	})
	if err != nil {
		return "", err
	}
	return id, sendErr
}

// run uploads the staged files and then streams the reply for req.
func (s *Session) run(ctx context.Context, req *request, messageID string, staged []intake.Staged, question string) {
	defer s.workers.Done()
	defer req.cancel()

	logger := s.logger.With().Str("correlation_id", req.id).Logger()

	if len(staged) > 0 {
		// Uploads are not abandoned with the stream: a superseded turn still
		// records its attachments.
		attachments, err := s.opts.Uploader.Deliver(s.ctx, staged)
		if s.ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn().Err(err).Int("files", len(staged)).Msg("upload failed")
		}
		ok := s.await(func() bool {
			if err == nil {
				ids := make([]string, len(staged))
				for i, f := range staged {
					ids[i] = f.ID
				}
				s.intake.RemoveIDs(ids...)
			}
			current := s.inflight == req
			if err != nil && current {
				s.inflight = nil
			}
			s.apply(UploadSettled{MessageID: messageID, Attachments: attachments, Err: err})
			return err == nil && current
		})
		if !ok {
			return
		}
	}

	if !s.await(func() bool {
		if s.inflight != req {
			return false
		}
		s.apply(StreamOpened{CorrelationID: req.id})
		return true
	}) {
		return
	}

	body, err := s.opts.Streamer.Open(ctx, question)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn().Err(err).Msg("stream request failed")
			s.deliver(req, StreamFailed{Err: err, At: s.opts.Clock()}, true)
		}
		return
	}
	defer body.Close()

	dec := sse.NewDecoder(body)
	for ev, err := range dec.Events(ctx) {
		if err != nil {
			logger.Debug().Err(err).Msg("stream cancelled")
			return
		}
		terminal := sse.IsTerminal(ev)
		if !s.deliver(req, StreamEvent{Event: ev, At: s.opts.Clock()}, terminal) || terminal {
			if dec.Err() != nil {
				logger.Warn().Err(dec.Err()).Msg("stream transport failed")
			}
			return
		}
	}
	s.deliver(req, StreamClosed{}, true)
}

// deliver applies a on the loop if req is still current. last retires req.
func (s *Session) deliver(req *request, a Action, last bool) bool {
	return s.await(func() bool {
		if s.inflight != req {
			return false
		}
		if last {
			s.inflight = nil
		}
		s.apply(a)
		return true
	})
}

// Close cancels any in-flight work and stops the session. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.closing.Do(func() {
		_ = s.do(func() {
			s.abandon()
			s.notices.Stop()
		})
		s.cancelAll()
		close(s.quit)
		<-s.loopDone
		s.workers.Wait()
	})
	return nil
}
