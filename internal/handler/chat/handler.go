package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/middleware"
	"github.com/zhouzirui/chatwidget/internal/model/bot"
	chatService "github.com/zhouzirui/chatwidget/internal/service/chat"
	"github.com/zhouzirui/chatwidget/pkg/utils"
)

// Handler 问答记录的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	bots    bot.Store
}

// New 创建问答记录处理器
func New(chatSvc *chatService.Service, bots bot.Store) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		bots:    bots,
	}
}

// RegisterRoutes 注册问答记录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireBot(h.bots)).Get("/chatbot/transcript", h.handleTranscript)
}

// handleTranscript 返回当前 chatbot 的问答记录
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	profile, ok := middleware.BotFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	exchanges, err := h.chatSvc.Transcript(r.Context(), profile.UUID)
	if err != nil {
		log.Error().Err(err).Str("component", "chat").Str("bot", profile.UUID).Msg("load transcript failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	utils.RespondResult(w, http.StatusOK, exchanges)
}
