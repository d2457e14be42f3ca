package chatbot

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatwidget/internal/middleware"
	"github.com/zhouzirui/chatwidget/internal/model/bot"
	"github.com/zhouzirui/chatwidget/pkg/utils"
)

// Handler chatbot 配置的HTTP处理器
type Handler struct {
	bots bot.Store
}

// New 创建 chatbot 处理器
func New(bots bot.Store) *Handler {
	return &Handler{bots: bots}
}

// RegisterRoutes 注册 chatbot 相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireBot(h.bots)).Get("/chatbot/info", h.handleInfo)
}

// handleInfo 返回当前密钥对应的 chatbot 公开配置
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	profile, ok := middleware.BotFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	utils.RespondResult(w, http.StatusOK, profile.Info())
}
