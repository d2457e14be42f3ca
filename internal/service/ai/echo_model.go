package ai

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EchoModelName is reported by streams answered by EchoModel.
const EchoModelName = "echo"

// EchoModel is a chat model that repeats the last user message back word by
// word. It keeps the service usable without Ark credentials.
type EchoModel struct {
	Prefix string
}

// NewEchoModel returns an EchoModel with the default prefix.
func NewEchoModel() *EchoModel {
	return &EchoModel{Prefix: "You said: "}
}

// Generate implements model.BaseChatModel.
func (m *EchoModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply(input), nil), nil
}

// Stream implements model.BaseChatModel.
func (m *EchoModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	words := strings.SplitAfter(m.reply(input), " ")
	chunks := make([]*schema.Message, 0, len(words))
	for _, w := range words {
		if w != "" {
			chunks = append(chunks, schema.AssistantMessage(w, nil))
		}
	}
	return schema.StreamReaderFromArray(chunks), nil
}

// BindTools implements model.ChatModel; the echo model ignores tools.
func (m *EchoModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

func (m *EchoModel) reply(input []*schema.Message) string {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i].Role == schema.User {
			return m.Prefix + input[i].Content
		}
	}
	return m.Prefix
}
