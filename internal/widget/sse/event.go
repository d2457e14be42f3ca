// Package sse decodes and encodes the answering service's event stream.
//
// A frame is a block of `event:` and `data:` lines terminated by a blank
// line. Each recognised frame becomes exactly one Event.
package sse

// EventType is the value of a frame's `event:` field.
type EventType string

const (
	TypeStart   EventType = "start"
	TypeDelta   EventType = "delta"
	TypeError   EventType = "error"
	TypeEnd     EventType = "end"
	TypeMessage EventType = "message"
)

// Event is one of Start, Delta, Error or End.
type Event interface {
	Type() EventType
	isEvent()
}

// Start announces a reply stream.
type Start struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	CreatedAt int64  `json:"createdAt"`
}

// Delta carries an incremental text fragment.
type Delta struct {
	Content string `json:"content"`
}

// Error reports a server-side or transport failure.
type Error struct {
	Message string `json:"message"`
}

// End marks normal completion.
type End struct{}

func (Start) Type() EventType { return TypeStart }
func (Delta) Type() EventType { return TypeDelta }
func (Error) Type() EventType { return TypeError }
func (End) Type() EventType   { return TypeEnd }

func (Start) isEvent() {}
func (Delta) isEvent() {}
func (Error) isEvent() {}
func (End) isEvent()   {}

// IsTerminal reports whether no further events follow ev on a healthy stream.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case End, Error:
		return true
	default:
		return false
	}
}

const unknownErrorMessage = "Unknown error"
