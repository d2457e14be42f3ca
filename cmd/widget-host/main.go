package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/config"
	"github.com/zhouzirui/chatwidget/internal/handler"
	"github.com/zhouzirui/chatwidget/internal/httpserver"
	"github.com/zhouzirui/chatwidget/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info")
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log.Level)

	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	addr := cfg.Server.Addr
	if override := os.Getenv("WIDGET_HOST_ADDR"); override != "" {
		addr = override
	}

	log.Info().
		Str("addr", addr).
		Str("stream_url", cfg.Widget.StreamURL).
		Bool("uploads", cfg.Widget.UploadURL != "").
		Msg("widget host listening")

	srv := httpserver.New(addr, handler.NewWidgetRouter(cfg.Widget, nil))
	if err := httpserver.Run(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
