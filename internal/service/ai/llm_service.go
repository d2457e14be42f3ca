package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/config"
	"github.com/zhouzirui/chatwidget/internal/model/bot"
	"github.com/zhouzirui/chatwidget/internal/model/chat"
)

// historyLimit caps how many earlier exchanges are replayed to the model.
const historyLimit = 5

// Service answers widget questions through an eino chain.
type Service struct {
	chatModel model.BaseChatModel
	modelName string
	streaming bool
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the chain on top of the Ark model described by cfg.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg.Model, cfg.StreamResponse)
}

// NewServiceWithModel builds the chain on top of any chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, modelName string, streaming bool) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		modelName: modelName,
		streaming: streaming,
		chain:     runnable,
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.streaming
}

// ModelName is reported in the start event of every stream.
func (s *Service) ModelName() string {
	return s.modelName
}

// GenerateAnswer runs the chain once and returns the whole answer.
func (s *Service) GenerateAnswer(ctx context.Context, profile *bot.Profile, history []chat.Exchange, question string) (*schema.Message, error) {
	response, err := s.chain.Invoke(ctx, buildChainInput(profile, history, question))
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Debug().Str("component", "ai").Str("bot", profile.UUID).Int("length", len(response.Content)).Msg("generated answer")
	return response, nil
}

// StreamAnswer streams answer chunks. When streaming is disabled the whole
// answer arrives as a single chunk.
func (s *Service) StreamAnswer(ctx context.Context, profile *bot.Profile, history []chat.Exchange, question string) (*schema.StreamReader[*schema.Message], error) {
	if !s.streaming {
		msg, err := s.GenerateAnswer(ctx, profile, history, question)
		if err != nil {
			return nil, err
		}
		return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
	}

	stream, err := s.chain.Stream(ctx, buildChainInput(profile, history, question))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

func buildChainInput(profile *bot.Profile, history []chat.Exchange, question string) map[string]any {
	return map[string]any{
		"system":  BuildSystemPrompt(profile),
		"history": buildHistoryMessages(history),
		"query":   question,
	}
}

func buildHistoryMessages(exchanges []chat.Exchange) []*schema.Message {
	if len(exchanges) == 0 {
		return nil
	}

	startIdx := 0
	if len(exchanges) > historyLimit {
		startIdx = len(exchanges) - historyLimit
	}

	history := make([]*schema.Message, 0, 2*(len(exchanges)-startIdx))
	for _, ex := range exchanges[startIdx:] {
		history = append(history, schema.UserMessage(ex.Question))
		if ex.Answer != "" {
			history = append(history, schema.AssistantMessage(ex.Answer, nil))
		}
	}
	return history
}
