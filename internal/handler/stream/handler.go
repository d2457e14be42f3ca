package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/middleware"
	"github.com/zhouzirui/chatwidget/internal/model/bot"
	"github.com/zhouzirui/chatwidget/internal/model/chat"
	chatService "github.com/zhouzirui/chatwidget/internal/service/chat"
	"github.com/zhouzirui/chatwidget/internal/widget/sse"
	"github.com/zhouzirui/chatwidget/pkg/utils"
)

// historySize is how many earlier exchanges are replayed as prompt history.
const historySize = 5

// Answerer produces a streamed answer for a question.
type Answerer interface {
	ModelName() string
	StreamAnswer(ctx context.Context, profile *bot.Profile, history []chat.Exchange, question string) (*schema.StreamReader[*schema.Message], error)
}

// Handler manages streaming answers via Server-Sent Events
type Handler struct {
	answerer Answerer
	chatSvc  *chatService.Service
	bots     bot.Store
	now      func() time.Time
}

// New creates a new stream handler
func New(answerer Answerer, chatSvc *chatService.Service, bots bot.Store) *Handler {
	return &Handler{
		answerer: answerer,
		chatSvc:  chatSvc,
		bots:     bots,
		now:      time.Now,
	}
}

// RegisterRoutes mounts the ask-question stream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.OptionalBot(h.bots)).Post("/stream/ask-question", h.handleAskQuestion)
}

type askRequest struct {
	UserQuestion string `json:"user_question"`
}

func (h *Handler) handleAskQuestion(w http.ResponseWriter, r *http.Request) {
	var payload askRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	question := strings.TrimSpace(payload.UserQuestion)
	if question == "" {
		utils.RespondError(w, http.StatusBadRequest, "user_question is required")
		return
	}

	profile, ok := middleware.BotFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	enc, err := utils.OpenSSE(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.HandleStreamRequest(r.Context(), enc, &profile, question); err != nil {
		log.Warn().Err(err).Str("component", "stream").Str("bot", profile.UUID).Msg("stream ended early")
	}
}

// HandleStreamRequest streams one answer for question into enc and records
// the exchange. Generation failures are reported in-band as an error event.
func (h *Handler) HandleStreamRequest(ctx context.Context, enc *sse.Encoder, profile *bot.Profile, question string) error {
	id := uuid.NewString()
	logger := log.With().Str("component", "stream").Str("stream_id", id).Str("bot", profile.UUID).Logger()

	history, err := h.chatSvc.Recent(ctx, profile.UUID, historySize)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load history")
	}

	if err := enc.Encode(sse.Start{ID: id, Model: h.answerer.ModelName(), CreatedAt: h.now().Unix()}); err != nil {
		return err
	}

	answer, genErr := h.streamAnswer(ctx, enc, profile, history, question)
	h.record(ctx, logger, chat.Exchange{
		BotID:    profile.UUID,
		Question: question,
		Answer:   answer,
		Model:    h.answerer.ModelName(),
		Failed:   genErr != nil,
	})

	switch {
	case genErr == nil:
		logger.Info().Int("length", len(answer)).Msg("completed answer")
		return enc.Encode(sse.End{})
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(genErr, errWrite):
		return genErr
	default:
		logger.Error().Err(genErr).Msg("answer generation failed")
		return enc.Encode(sse.Error{Message: "AI generation failed"})
	}
}

var errWrite = errors.New("write delta")

func (h *Handler) streamAnswer(ctx context.Context, enc *sse.Encoder, profile *bot.Profile, history []chat.Exchange, question string) (string, error) {
	stream, err := h.answerer.StreamAnswer(ctx, profile, history, question)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 16)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return concat(chunks), recvErr
		}
		if chunk == nil {
			continue
		}
		if ctx.Err() != nil {
			return concat(chunks), ctx.Err()
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			if err := enc.Encode(sse.Delta{Content: chunk.Content}); err != nil {
				return concat(chunks), errors.Join(errWrite, err)
			}
		}
	}
	return concat(chunks), nil
}

func concat(chunks []*schema.Message) string {
	if len(chunks) == 0 {
		return ""
	}
	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		var b strings.Builder
		for _, c := range chunks {
			b.WriteString(c.Content)
		}
		return b.String()
	}
	return merged.Content
}

func (h *Handler) record(ctx context.Context, logger zerolog.Logger, ex chat.Exchange) {
	if _, err := h.chatSvc.Record(context.WithoutCancel(ctx), ex); err != nil {
		logger.Warn().Err(err).Msg("failed to record exchange")
	}
}
