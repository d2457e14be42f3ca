package session

import (
	"fmt"
	"time"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
	"github.com/zhouzirui/chatwidget/internal/widget/errs"
	"github.com/zhouzirui/chatwidget/internal/widget/sse"
)

const (
	errorPlaceholder   = "[Error]"
	sendFailedMessage  = "Failed to send message"
	streamErrorMessage = "Unknown error"
)

// OpenMessageHandle points at the bot message currently receiving deltas.
type OpenMessageHandle struct {
	ID    string
	Index int
}

// State is the conversation as the reducer sees it. Only Apply mutates it.
type State struct {
	Transcript   chat.Transcript
	Typing       bool
	Input        string
	PanelVisible bool
	Model        string

	correlation string
	open        *OpenMessageHandle
}

// Open returns the handle of the open bot message, if any.
func (s *State) Open() (OpenMessageHandle, bool) {
	if s.open == nil {
		return OpenMessageHandle{}, false
	}
	return *s.open, true
}

// Correlation returns the id of the live stream, or "".
func (s *State) Correlation() string {
	return s.correlation
}

// Action is an input to the reducer.
type Action interface {
	isAction()
}

// InputChanged updates the composer text.
type InputChanged struct{ Text string }

// PanelToggled records whether the chat panel is visible.
type PanelToggled struct{ Visible bool }

// Send appends a user message and clears the composer.
type Send struct{ Message chat.Message }

// UploadSettled finishes the upload step of a user message.
type UploadSettled struct {
	MessageID   string
	Attachments []chat.Attachment
	Err         error
}

// StreamOpened binds a new reply stream to its correlation id.
type StreamOpened struct{ CorrelationID string }

// StreamEvent applies one decoded event.
type StreamEvent struct {
	Event sse.Event
	At    time.Time
}

// StreamFailed reports a transport failure outside the event stream.
type StreamFailed struct {
	Err error
	At  time.Time
}

// StreamClosed reports the body ended without an explicit end event.
type StreamClosed struct{}

// StreamAbandoned reports a cancelled stream. Partial text stays as is.
type StreamAbandoned struct{}

func (InputChanged) isAction()    {}
func (PanelToggled) isAction()    {}
func (Send) isAction()            {}
func (UploadSettled) isAction()   {}
func (StreamOpened) isAction()    {}
func (StreamEvent) isAction()     {}
func (StreamFailed) isAction()    {}
func (StreamClosed) isAction()    {}
func (StreamAbandoned) isAction() {}

// Effect is a side effect the owner of the state must carry out.
type Effect interface {
	isEffect()
}

// BotReplied fires once when a bot message is created while the panel is hidden.
type BotReplied struct{ MessageID string }

// ShowNotice asks for an ephemeral notice.
type ShowNotice struct{ Text string }

func (BotReplied) isEffect() {}
func (ShowNotice) isEffect() {}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Transcript = s.Transcript.Clone()
	if s.open != nil {
		h := *s.open
		out.open = &h
	}
	return out
}

// Reduce is the pure form of Apply: s is left untouched.
func Reduce(s State, a Action) (State, []Effect) {
	next := s.Clone()
	effects := next.Apply(a)
	return next, effects
}

// Apply reduces a into s and returns the resulting effects.
func (s *State) Apply(a Action) []Effect {
	switch a := a.(type) {
	case InputChanged:
		s.Input = a.Text
	case PanelToggled:
		s.PanelVisible = a.Visible
	case Send:
		s.Transcript.Append(a.Message.Clone())
		s.Input = ""
	case UploadSettled:
		return s.settleUpload(a)
	case StreamOpened:
		s.correlation = a.CorrelationID
		s.open = nil
		s.Typing = true
	case StreamEvent:
		return s.applyEvent(a.Event, a.At)
	case StreamFailed:
		return s.fail(errs.NoticeOf(a.Err), a.At)
	case StreamClosed:
		s.finish()
	case StreamAbandoned:
		s.finish()
	}
	return nil
}

func (s *State) settleUpload(a UploadSettled) []Effect {
	idx := s.Transcript.IndexOf(a.MessageID)
	if idx < 0 {
		return nil
	}
	msg := &s.Transcript[idx]
	if a.Err != nil {
		msg.Status = chat.StatusError
		text := errs.NoticeOf(a.Err)
		if text == "" {
			text = sendFailedMessage
		}
		return []Effect{ShowNotice{Text: text}}
	}
	msg.Status = chat.StatusSent
	msg.Attachments = append([]chat.Attachment(nil), a.Attachments...)
	return nil
}

func (s *State) applyEvent(ev sse.Event, at time.Time) []Effect {
	switch ev := ev.(type) {
	case sse.Start:
		s.Typing = true
		s.Model = ev.Model
	case sse.Delta:
		return s.appendDelta(ev.Content, at)
	case sse.Error:
		return s.fail(ev.Message, at)
	case sse.End:
		s.finish()
	default:
		// Unknown event kinds are ignored.
	}
	return nil
}

func (s *State) appendDelta(content string, at time.Time) []Effect {
	if s.correlation == "" {
		return nil
	}
	if s.open != nil {
		s.Transcript[s.open.Index].Text += content
		return nil
	}

	idx := s.Transcript.Append(chat.Message{
		ID:        s.correlation,
		Sender:    chat.SenderBot,
		Text:      content,
		CreatedAt: at,
		Status:    chat.StatusSent,
	})
	s.open = &OpenMessageHandle{ID: s.correlation, Index: idx}
	s.Typing = false
	if !s.PanelVisible {
		return []Effect{BotReplied{MessageID: s.correlation}}
	}
	return nil
}

func (s *State) fail(message string, at time.Time) []Effect {
	if message == "" {
		message = streamErrorMessage
	}
	switch {
	case s.open != nil:
		s.Transcript[s.open.Index].Status = chat.StatusError
	case s.correlation != "":
		s.Transcript.Append(chat.Message{
			ID:        s.correlation,
			Sender:    chat.SenderBot,
			Text:      errorPlaceholder,
			CreatedAt: at,
			Status:    chat.StatusError,
		})
	}
	s.finish()
	return []Effect{ShowNotice{Text: message}}
}

func (s *State) finish() {
	s.Typing = false
	s.correlation = ""
	s.open = nil
}

// CheckInvariants verifies that at most one bot message is open, that the
// handle points at it, and that message ids are unique.
func (s *State) CheckInvariants() error {
	seen := make(map[string]struct{}, len(s.Transcript))
	for _, m := range s.Transcript {
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("duplicate message id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	if s.open == nil {
		return nil
	}
	if s.correlation == "" {
		return fmt.Errorf("open message %q without a live stream", s.open.ID)
	}
	if s.open.ID != s.correlation {
		return fmt.Errorf("open message %q does not match stream %q", s.open.ID, s.correlation)
	}
	if s.open.Index < 0 || s.open.Index >= len(s.Transcript) {
		return fmt.Errorf("open message index %d out of range", s.open.Index)
	}
	m := s.Transcript[s.open.Index]
	if m.ID != s.open.ID || m.Sender != chat.SenderBot || m.Status != chat.StatusSent {
		return fmt.Errorf("open handle points at %s message %q with status %s", m.Sender, m.ID, m.Status)
	}
	return nil
}
