package sse

import (
	"encoding/json"
	"fmt"
	"io"
)

type flusher interface {
	Flush()
}

// Encoder writes Events in the wire format Decoder reads. When w can flush
// (an http.ResponseWriter, say) every frame is flushed as it is written.
type Encoder struct {
	w io.Writer
	f flusher
}

// NewEncoder writes frames to w.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(flusher); ok {
		e.f = f
	}
	return e
}

// Encode writes one frame for ev.
func (e *Encoder) Encode(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", ev.Type(), err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Type(), data); err != nil {
		return fmt.Errorf("write %s frame: %w", ev.Type(), err)
	}
	e.flush()
	return nil
}

// Comment writes a comment frame, typically used as a heartbeat.
func (e *Encoder) Comment(text string) error {
	if _, err := fmt.Fprintf(e.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("write comment frame: %w", err)
	}
	e.flush()
	return nil
}

func (e *Encoder) flush() {
	if e.f != nil {
		e.f.Flush()
	}
}
