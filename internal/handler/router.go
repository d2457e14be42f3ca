package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/chatwidget/internal/config"
	"github.com/zhouzirui/chatwidget/internal/handler/chat"
	"github.com/zhouzirui/chatwidget/internal/handler/chatbot"
	"github.com/zhouzirui/chatwidget/internal/handler/stream"
	"github.com/zhouzirui/chatwidget/internal/handler/upload"
	"github.com/zhouzirui/chatwidget/internal/handler/widget"
	middlewarePkg "github.com/zhouzirui/chatwidget/internal/middleware"
	"github.com/zhouzirui/chatwidget/internal/model/bot"
	chatService "github.com/zhouzirui/chatwidget/internal/service/chat"
	"github.com/zhouzirui/chatwidget/pkg/utils"
)

// Services bundles what the router wires to HTTP routes. Nil members turn
// their routes into 503 responses.
type Services struct {
	Bots     bot.Store
	Chat     *chatService.Service
	Answerer stream.Answerer
	Files    upload.Store
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if svc.Answerer != nil {
		stream.New(svc.Answerer, svc.Chat, svc.Bots).RegisterRoutes(r)
	} else {
		r.Post("/stream/ask-question", unavailable("ai streaming unavailable"))
	}

	r.Route("/api/v1", func(api chi.Router) {
		chatbot.New(svc.Bots).RegisterRoutes(api)
		chat.New(svc.Chat, svc.Bots).RegisterRoutes(api)

		if svc.Files != nil {
			upload.New(svc.Files, svc.Bots).RegisterRoutes(api, r)
		} else {
			api.Post("/uploads", unavailable("uploads unavailable"))
		}
	})

	return r
}

// NewWidgetRouter serves the websocket bridge that hosts widget sessions
// against the answering service described by cfg.
func NewWidgetRouter(cfg config.WidgetConfig, client *http.Client) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	widget.NewWebSocketHandler(cfg, client).RegisterWebSocketRoutes(r)

	return r
}

func unavailable(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusServiceUnavailable, message)
	}
}
