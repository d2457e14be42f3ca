package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/chatwidget/internal/widget/intake"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Widget  WidgetConfig
	Storage StorageConfig
	Redis   RedisConfig
	Log     LogConfig
}

// Load 从环境变量加载配置，WIDGET_CONFIG_FILE 指向的 YAML 文件可覆盖 widget 段。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	widget, err := loadWidgetConfig()
	if err != nil {
		return nil, err
	}

	if path := strings.TrimSpace(os.Getenv("WIDGET_CONFIG_FILE")); path != "" {
		if err := widget.overlayFile(path); err != nil {
			return nil, err
		}
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Widget:  widget,
		Storage: loadStorageConfig(server),
		Redis:   RedisConfig{URL: strings.TrimSpace(os.Getenv("REDIS_URL"))},
		Log:     LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RedisConfig 指向可选的 Redis，用于持久化问答记录；URL 为空时使用内存存储。
type RedisConfig struct {
	URL string
}

// LogConfig 控制 zerolog 全局级别。
type LogConfig struct {
	Level string
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and Model, or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("Model")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// WidgetConfig 描述聊天组件客户端（widget-host、widgetctl）的配置。
type WidgetConfig struct {
	APIKey        string        `yaml:"apiKey"`
	ConfigURL     string        `yaml:"configUrl"`
	StreamURL     string        `yaml:"streamUrl"`
	UploadURL     string        `yaml:"uploadUrl"`
	MaxFiles      int           `yaml:"maxFiles"`
	MaxFileSizeMB float64       `yaml:"maxFileSizeMb"`
	Accept        []string      `yaml:"accept"`
	NoticeTTL     time.Duration `yaml:"noticeTtl"`
}

// Limits 返回附件校验规则。
func (c WidgetConfig) Limits() intake.Limits {
	return intake.Limits{
		MaxFiles:      c.MaxFiles,
		MaxFileSizeMB: c.MaxFileSizeMB,
		Accept:        append([]string(nil), c.Accept...),
	}
}

func loadWidgetConfig() (WidgetConfig, error) {
	defaults := intake.DefaultLimits()

	maxFiles := defaults.MaxFiles
	if override, err := parseOptionalIntEnv("WIDGET_MAX_FILES"); err != nil {
		return WidgetConfig{}, err
	} else if override != nil {
		maxFiles = *override
	}

	maxSize := defaults.MaxFileSizeMB
	if override, err := parseOptionalFloatEnv("WIDGET_MAX_FILE_SIZE_MB"); err != nil {
		return WidgetConfig{}, err
	} else if override != nil {
		maxSize = *override
	}

	ttl := 3 * time.Second
	if raw := strings.TrimSpace(os.Getenv("WIDGET_NOTICE_TTL")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return WidgetConfig{}, fmt.Errorf("invalid WIDGET_NOTICE_TTL value %q: %w", raw, err)
		}
		ttl = parsed
	}

	accept := defaults.Accept
	if raw := strings.TrimSpace(os.Getenv("WIDGET_ACCEPT")); raw != "" {
		accept = splitList(raw)
	}

	base := strings.TrimRight(getEnvOrDefault("WIDGET_BASE_URL", "http://localhost:8080"), "/")

	cfg := WidgetConfig{
		APIKey:        strings.TrimSpace(os.Getenv("WIDGET_API_KEY")),
		ConfigURL:     getEnvOrDefault("WIDGET_CONFIG_URL", base+"/api/v1/chatbot/info"),
		StreamURL:     getEnvOrDefault("WIDGET_STREAM_URL", base+"/stream/ask-question"),
		UploadURL:     strings.TrimSpace(os.Getenv("WIDGET_UPLOAD_URL")),
		MaxFiles:      maxFiles,
		MaxFileSizeMB: maxSize,
		Accept:        accept,
		NoticeTTL:     ttl,
	}
	return cfg, cfg.validate()
}

// overlayFile 用 YAML 文件中出现的字段覆盖当前配置。
func (c *WidgetConfig) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read widget config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse widget config %s: %w", path, err)
	}
	return c.validate()
}

func (c WidgetConfig) validate() error {
	if c.MaxFiles < 1 {
		return fmt.Errorf("widget maxFiles must be at least 1, got %d", c.MaxFiles)
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("widget maxFileSizeMb must be positive, got %g", c.MaxFileSizeMB)
	}
	if c.StreamURL == "" {
		return fmt.Errorf("widget streamUrl is required")
	}
	return nil
}

// StorageConfig 描述上传文件的落盘位置与对外地址。
type StorageConfig struct {
	UploadDir     string
	PublicBaseURL string
}

func loadStorageConfig(server ServerConfig) StorageConfig {
	host := server.Addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return StorageConfig{
		UploadDir:     getEnvOrDefault("UPLOAD_DIR", "./uploads"),
		PublicBaseURL: strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", "http://"+host), "/"),
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
