package chat

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Status tracks delivery of a message.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusError   Status = "error"
)

// Attachment is a file reference carried by a message.
type Attachment struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	MIME    string `json:"mime"`
	Size    int64  `json:"size"`
	IsImage bool   `json:"isImage"`
}

// Message is a single conversation turn.
type Message struct {
	ID          string       `json:"id"`
	Sender      Sender       `json:"sender"`
	Text        string       `json:"text"`
	CreatedAt   time.Time    `json:"createdAt"`
	Status      Status       `json:"status"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return m
}
