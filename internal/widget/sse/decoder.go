package sse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/widget/errs"
)

var (
	frameBoundary = regexp.MustCompile(`\r?\n\r?\n`)
	lineBreak     = regexp.MustCompile(`\r?\n`)
)

const defaultReadSize = 4 << 10

// Decoder turns a chunked byte stream into Events. Frames may span reads and
// one read may hold several frames; the result does not depend on how the
// bytes were chunked.
type Decoder struct {
	r       io.Reader
	chunk   []byte
	buf     []byte
	pending []Event

	done      bool
	cancelled error
	err       error

	logger zerolog.Logger
}

// NewDecoder reads frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:      r,
		chunk:  make([]byte, defaultReadSize),
		logger: log.With().Str("component", "sse").Logger(),
	}
}

// Next returns the next event. It returns io.EOF once the stream is
// exhausted. If ctx is cancelled it returns ctx's error and discards anything
// still buffered: a cancelled stream never yields another event.
func (d *Decoder) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			d.abandon(err)
			return nil, err
		}
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev, nil
		}
		if d.done {
			if d.cancelled != nil {
				return nil, d.cancelled
			}
			return nil, io.EOF
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.feed(d.chunk[:n])
		}
		if err == nil {
			continue
		}

		switch {
		case ctx.Err() != nil:
			d.abandon(ctx.Err())
			return nil, ctx.Err()
		case errors.Is(err, context.Canceled):
			d.abandon(err)
			return nil, err
		case errors.Is(err, io.EOF):
			if len(d.buf) > 0 {
				d.logger.Debug().Int("bytes", len(d.buf)).Msg("discarding unterminated trailing frame")
			}
			d.buf = nil
			d.done = true
		default:
			d.buf = nil
			d.done = true
			d.err = errs.StreamTransport(err, err.Error())
			d.pending = append(d.pending, Error{Message: err.Error()})
		}
	}
}

// Events yields events until the stream ends. A final non-nil error is
// yielded only for cancellation; transport failures arrive as an Error event.
func (d *Decoder) Events(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := d.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Stream runs the decoder on its own goroutine and delivers events on the
// returned channel, which is closed when the stream ends or ctx is done.
func (d *Decoder) Stream(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for ev, err := range d.Events(ctx) {
			if err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Err returns the transport failure that ended the stream, if any.
func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) abandon(err error) {
	d.done = true
	d.pending = nil
	d.buf = nil
	if d.cancelled == nil {
		d.cancelled = err
	}
}

func (d *Decoder) feed(chunk []byte) {
	d.buf = append(d.buf, chunk...)
	for {
		loc := frameBoundary.FindIndex(d.buf)
		if loc == nil {
			break
		}
		raw := string(d.buf[:loc[0]])
		d.buf = d.buf[loc[1]:]
		if ev, ok := d.parseFrame(raw); ok {
			d.pending = append(d.pending, ev)
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
}

func (d *Decoder) parseFrame(raw string) (Event, bool) {
	if strings.HasPrefix(raw, ":") {
		return nil, false
	}

	eventType := TypeMessage
	var data strings.Builder
	for _, line := range lineBreak.Split(raw, -1) {
		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = EventType(strings.TrimSpace(line[len("event:"):]))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(line[len("data:"):]))
		}
	}
	if data.Len() == 0 {
		return nil, false
	}
	payload := []byte(data.String())

	switch eventType {
	case TypeStart:
		return decodePayload[Start](d, eventType, payload), true
	case TypeDelta:
		return decodePayload[Delta](d, eventType, payload), true
	case TypeError:
		e := decodePayload[Error](d, eventType, payload)
		if e.Message == "" {
			e.Message = unknownErrorMessage
		}
		return e, true
	case TypeEnd:
		return End{}, true
	default:
		d.logger.Debug().Str("event", string(eventType)).Msg("ignoring unrecognised frame")
		return nil, false
	}
}

// decodePayload returns the zero value when payload is malformed; a bad frame
// must not end an otherwise healthy stream.
func decodePayload[T any](d *Decoder, eventType EventType, payload []byte) T {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		d.logger.Debug().
			Err(errs.ProtocolFrame(err, "malformed frame payload")).
			Str("event", string(eventType)).
			Msg("treating frame payload as empty")
		var zero T
		return zero
	}
	return v
}
