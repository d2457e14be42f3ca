package widget

import (
	"encoding/json"

	"github.com/zhouzirui/chatwidget/internal/model/chat"
	"github.com/zhouzirui/chatwidget/internal/widget/intake"
	"github.com/zhouzirui/chatwidget/internal/widget/session"
)

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage carries composer text for send and input.
type TextMessage struct {
	Text string `json:"text"`
}

// PanelMessage opens or closes the chat panel.
type PanelMessage struct {
	Visible bool `json:"visible"`
}

// RemoveMessage drops a staged file by position.
type RemoveMessage struct {
	Index int `json:"index"`
}

// StageMessage carries files picked or dropped by the user.
type StageMessage struct {
	Files []FilePayload `json:"files"`
}

// FilePayload is one file. Data is base64 in JSON.
type FilePayload struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type stagedFrame struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MIME      string `json:"mime"`
	Size      int64  `json:"size"`
	SizeLabel string `json:"sizeLabel"`
	Preview   string `json:"preview,omitempty"`
}

type stateFrame struct {
	Messages      []chat.Message `json:"messages"`
	Typing        bool           `json:"typing"`
	Input         string         `json:"input"`
	PanelVisible  bool           `json:"panelVisible"`
	Model         string         `json:"model,omitempty"`
	Staged        []stagedFrame  `json:"staged"`
	OpenMessageID string         `json:"openMessageId,omitempty"`
}

func newStateFrame(s session.Snapshot) stateFrame {
	frame := stateFrame{
		Messages:      s.Messages,
		Typing:        s.Typing,
		Input:         s.Input,
		PanelVisible:  s.PanelVisible,
		Model:         s.Model,
		Staged:        make([]stagedFrame, len(s.Staged)),
		OpenMessageID: s.OpenMessageID,
	}
	if frame.Messages == nil {
		frame.Messages = []chat.Message{}
	}
	for i, f := range s.Staged {
		frame.Staged[i] = newStagedFrame(f)
	}
	return frame
}

func newStagedFrame(f intake.Staged) stagedFrame {
	return stagedFrame{
		ID:        f.ID,
		Name:      f.File.Name,
		MIME:      f.File.MIME,
		Size:      f.File.Size,
		SizeLabel: f.SizeLabel(),
		Preview:   f.Preview,
	}
}

type noticeFrame struct {
	Text string `json:"text"`
}

type unreadFrame struct {
	Count int    `json:"count"`
	Badge string `json:"badge"`
}

type errorFrame struct {
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
}
