package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/chatwidget/internal/config"
	"github.com/zhouzirui/chatwidget/internal/handler"
	"github.com/zhouzirui/chatwidget/internal/handler/stream"
	"github.com/zhouzirui/chatwidget/internal/httpserver"
	"github.com/zhouzirui/chatwidget/internal/logging"
	"github.com/zhouzirui/chatwidget/internal/model/bot"
	"github.com/zhouzirui/chatwidget/internal/service/ai"
	"github.com/zhouzirui/chatwidget/internal/service/chat"
	"github.com/zhouzirui/chatwidget/internal/service/storage"
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

	bots := bot.NewMemoryStore(bot.Seed(cfg.Widget.APIKey))
	chatService := newChatService(ctx, cfg.Redis)

	answerer := newAnswerer(ctx, cfg.AI)

	maxBytes := int64(cfg.Widget.MaxFileSizeMB * 1024 * 1024)
	files, err := storage.NewService(cfg.Storage.UploadDir, cfg.Storage.PublicBaseURL, maxBytes)
	if err != nil {
		log.Warn().Err(err).Msg("upload storage unavailable, continuing without uploads")
	}

	services := handler.Services{
		Bots:     bots,
		Chat:     chatService,
		Answerer: answerer,
	}
	if files != nil {
		services.Files = files
	}

	startServer(ctx, cfg.Server, handler.NewRouter(services))
}

// newChatService stores the audit log in Redis when REDIS_URL is reachable.
func newChatService(ctx context.Context, cfg config.RedisConfig) *chat.Service {
	if cfg.URL == "" {
		return chat.NewService(chat.DefaultRetention)
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, keeping the audit log in memory")
		return chat.NewService(chat.DefaultRetention)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, keeping the audit log in memory")
		_ = rdb.Close()
		return chat.NewService(chat.DefaultRetention)
	}

	log.Info().Str("addr", opts.Addr).Msg("audit log stored in redis")
	return chat.NewServiceWithBackend(chat.NewRedisBackend(rdb), chat.DefaultRetention)
}

// newAnswerer prefers Ark and falls back to the echo model.
func newAnswerer(ctx context.Context, cfg config.AIConfig) stream.Answerer {
	if cfg.Enabled() {
		svc, err := ai.NewService(ctx, cfg)
		if err == nil {
			log.Info().Str("model", cfg.Model).Msg("AI service initialized successfully")
			return svc
		}
		log.Warn().Err(err).Msg("failed to initialize AI service, falling back to echo model")
	} else {
		log.Info().Msg("ark credentials not configured, answering with the echo model")
	}

	svc, err := ai.NewServiceWithModel(ctx, ai.NewEchoModel(), ai.EchoModelName, cfg.StreamResponse)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize echo model")
		return nil
	}
	return svc
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	log.Info().Str("addr", serverCfg.Addr).Msg("chat widget answering service listening")
	if err := httpserver.Run(ctx, httpserver.New(serverCfg.Addr, router)); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
