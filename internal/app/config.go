package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/chatstream-backend/internal/db"
	httpMW "github.com/yungbote/chatstream-backend/internal/http/middleware"
	"github.com/yungbote/chatstream-backend/internal/modules/chat/streaming"
	"github.com/yungbote/chatstream-backend/internal/observability"
	"github.com/yungbote/chatstream-backend/internal/platform/envutil"
	"github.com/yungbote/chatstream-backend/internal/platform/llm"
	"github.com/yungbote/chatstream-backend/internal/platform/logger"
	"github.com/yungbote/chatstream-backend/internal/realtime/bus"
	"github.com/yungbote/chatstream-backend/internal/services"
)

type LLMConfig struct {
	DefaultProvider string           `yaml:"default_provider"`
	// Retries re-opens a provider stream that failed before any output.
	// Zero, the default, makes every provider failure terminal.
	Retries         int              `yaml:"retries"`
	RetryBase       time.Duration    `yaml:"retry_base"`
	EchoDelay       time.Duration    `yaml:"echo_delay"`
	OpenAI          llm.OpenAIConfig `yaml:"openai"`
	Gemini          llm.GeminiConfig `yaml:"gemini"`
}

type StreamConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	ReaperCron    string        `yaml:"reaper_cron"`
	LeaseTTL      time.Duration `yaml:"lease_ttl"`

	Producer streaming.ProducerConfig `yaml:"producer"`
	Gateway  streaming.GatewayConfig  `yaml:"gateway"`
}

type Config struct {
	Env         string   `yaml:"env"`
	Addr        string   `yaml:"addr"`
	LogMode     string   `yaml:"log_mode"`
	ServiceName string   `yaml:"service_name"`
	Version     string   `yaml:"version"`
	CORSOrigins []string `yaml:"cors_origins"`

	MetricsEnabled bool                        `yaml:"metrics_enabled"`
	MetricsAddr    string                      `yaml:"metrics_addr"`
	Tracing        observability.TracingConfig `yaml:"tracing"`

	JWTSecretKey string `yaml:"jwt_secret_key"`
	JWTIssuer    string `yaml:"jwt_issuer"`

	DB        db.Config              `yaml:"db"`
	Bus       bus.Config             `yaml:"bus"`
	Stream    StreamConfig           `yaml:"stream"`
	Chat      services.ChatConfig    `yaml:"chat"`
	RateLimit httpMW.RateLimitConfig `yaml:"rate_limit"`
	LLM       LLMConfig              `yaml:"llm"`
}

func defaultConfig() Config {
	return Config{
		Env:         "development",
		Addr:        ":8080",
		LogMode:     "development",
		ServiceName: "chatstream",
		Tracing:     observability.TracingConfig{SampleRatio: 0.1},
		DB: db.Config{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "chatstream",
			SSLMode: "disable",
		},
		Bus: bus.Config{
			Backend:          "redis",
			RedisAddr:        "localhost:6379",
			SubscriberBuffer: 64,
		},
		Stream: StreamConfig{
			MaxConcurrent: 64,
			ShutdownGrace: 20 * time.Second,
			ReaperCron:    streaming.DefaultReaperCron,
			LeaseTTL:      30 * time.Second,
			Producer: streaming.ProducerConfig{
				FlushInterval: 150 * time.Millisecond,
				FlushBytes:    512,
				WriteTimeout:  5 * time.Second,
			},
			Gateway: streaming.GatewayConfig{
				HeartbeatInterval: 15 * time.Second,
				SubscribeTimeout:  5 * time.Second,
			},
		},
		Chat: services.ChatConfig{
			HistoryLimit:   20,
			MaxPromptBytes: 20000,
		},
		RateLimit: httpMW.RateLimitConfig{RPS: 1, Burst: 5, TTL: 10 * time.Minute},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Retries:         0,
			RetryBase:       500 * time.Millisecond,
		},
	}
}

// LoadConfig layers defaults, the optional YAML file named by CONFIG_FILE and
// environment variables, in increasing precedence. A .env file in the working
// directory is loaded first and never overrides variables already set.
func LoadConfig(log *logger.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Could not load .env", "error", err)
	}

	cfg := defaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Info("Loaded config file", "path", path)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("APP_ENV", cfg.Env)
	cfg.Addr = envutil.String("HTTP_ADDR", cfg.Addr)
	if port := envutil.String("PORT", ""); port != "" {
		cfg.Addr = ":" + port
	}
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.ServiceName = envutil.String("SERVICE_NAME", cfg.ServiceName)
	cfg.Version = envutil.String("APP_VERSION", cfg.Version)
	cfg.CORSOrigins = envutil.List("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = envutil.String("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Tracing.Enabled = envutil.Bool("OTEL_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.Insecure)
	cfg.Tracing.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", cfg.Tracing.SampleRatio)
	if raw := envutil.String("OTEL_EXPORTER_OTLP_HEADERS", ""); raw != "" {
		cfg.Tracing.Headers = observability.ParseHeaders(raw)
	}
	cfg.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWTSecretKey)
	cfg.JWTIssuer = envutil.String("JWT_ISSUER", cfg.JWTIssuer)

	cfg.DB.Driver = envutil.String("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.DSN = envutil.String("DATABASE_URL", cfg.DB.DSN)
	cfg.DB.Host = envutil.String("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = envutil.String("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.User = envutil.String("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Password = envutil.String("POSTGRES_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = envutil.String("POSTGRES_NAME", cfg.DB.Name)
	cfg.DB.SSLMode = envutil.String("POSTGRES_SSLMODE", cfg.DB.SSLMode)
	cfg.DB.MaxOpenConns = envutil.Int("DB_MAX_OPEN_CONNS", cfg.DB.MaxOpenConns)
	cfg.DB.MaxIdleConns = envutil.Int("DB_MAX_IDLE_CONNS", cfg.DB.MaxIdleConns)

	cfg.Bus.Backend = envutil.String("BUS_BACKEND", cfg.Bus.Backend)
	cfg.Bus.RedisAddr = envutil.String("REDIS_ADDR", cfg.Bus.RedisAddr)
	cfg.Bus.RedisPassword = envutil.String("REDIS_PASSWORD", cfg.Bus.RedisPassword)
	cfg.Bus.RedisDB = envutil.Int("REDIS_DB", cfg.Bus.RedisDB)
	cfg.Bus.NATSURL = envutil.String("NATS_URL", cfg.Bus.NATSURL)
	cfg.Bus.SubscriberBuffer = envutil.Int("BUS_SUBSCRIBER_BUFFER", cfg.Bus.SubscriberBuffer)

	s := &cfg.Stream
	s.MaxConcurrent = envutil.Int("STREAM_MAX_CONCURRENT", s.MaxConcurrent)
	s.ShutdownGrace = envutil.Duration("STREAM_SHUTDOWN_GRACE", s.ShutdownGrace)
	s.ReaperCron = envutil.String("STREAM_REAPER_CRON", s.ReaperCron)
	s.LeaseTTL = envutil.Duration("STREAM_LEASE_TTL", s.LeaseTTL)
	s.Producer.FlushInterval = envutil.Duration("STREAM_FLUSH_INTERVAL", s.Producer.FlushInterval)
	s.Producer.FlushBytes = envutil.Int("STREAM_FLUSH_BYTES", s.Producer.FlushBytes)
	s.Producer.WriteTimeout = envutil.Duration("STREAM_WRITE_TIMEOUT", s.Producer.WriteTimeout)
	s.Gateway.HeartbeatInterval = envutil.Duration("STREAM_HEARTBEAT_INTERVAL", s.Gateway.HeartbeatInterval)
	s.Gateway.SubscribeTimeout = envutil.Duration("STREAM_SUBSCRIBE_TIMEOUT", s.Gateway.SubscribeTimeout)

	cfg.Chat.HistoryLimit = envutil.Int("CHAT_HISTORY_LIMIT", cfg.Chat.HistoryLimit)
	cfg.Chat.MaxPromptBytes = envutil.Int("CHAT_MAX_PROMPT_BYTES", cfg.Chat.MaxPromptBytes)
	cfg.Chat.SystemPrompt = envutil.String("CHAT_SYSTEM_PROMPT", cfg.Chat.SystemPrompt)

	cfg.RateLimit.RPS = envutil.Float("RATE_LIMIT_RPS", cfg.RateLimit.RPS)
	cfg.RateLimit.Burst = envutil.Int("RATE_LIMIT_BURST", cfg.RateLimit.Burst)

	cfg.LLM.DefaultProvider = envutil.String("LLM_DEFAULT_PROVIDER", cfg.LLM.DefaultProvider)
	cfg.LLM.Retries = envutil.Int("LLM_RETRIES", cfg.LLM.Retries)
	cfg.LLM.EchoDelay = envutil.Duration("LLM_ECHO_DELAY", cfg.LLM.EchoDelay)
	cfg.LLM.OpenAI.APIKey = envutil.String("OPENAI_API_KEY", cfg.LLM.OpenAI.APIKey)
	cfg.LLM.OpenAI.BaseURL = envutil.String("OPENAI_BASE_URL", cfg.LLM.OpenAI.BaseURL)
	cfg.LLM.OpenAI.Model = envutil.String("OPENAI_MODEL", cfg.LLM.OpenAI.Model)
	cfg.LLM.Gemini.APIKey = envutil.String("GEMINI_API_KEY", cfg.LLM.Gemini.APIKey)
	cfg.LLM.Gemini.Model = envutil.String("GEMINI_MODEL", cfg.LLM.Gemini.Model)
	cfg.LLM.Gemini.Project = envutil.String("GOOGLE_CLOUD_PROJECT", cfg.LLM.Gemini.Project)
	cfg.LLM.Gemini.Location = envutil.String("GOOGLE_CLOUD_LOCATION", cfg.LLM.Gemini.Location)

	cfg.Tracing.ServiceName = cfg.ServiceName
	cfg.Tracing.Environment = cfg.Env
	cfg.Tracing.Version = cfg.Version

	// One lease lifetime governs creation, renewal and reaping.
	cfg.Chat.LeaseTTL = s.LeaseTTL
	s.Producer.LeaseTTL = s.LeaseTTL
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		problems = append(problems, "JWT_SECRET_KEY is required")
	}
	if !gronx.IsValid(c.Stream.ReaperCron) {
		problems = append(problems, fmt.Sprintf("invalid reaper cron %q", c.Stream.ReaperCron))
	}
	switch strings.ToLower(strings.TrimSpace(c.Bus.Backend)) {
	case "redis", "nats", "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown bus backend %q", c.Bus.Backend))
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown database driver %q", c.DB.Driver))
	}
	positive := map[string]time.Duration{
		"stream lease ttl":          c.Stream.LeaseTTL,
		"stream shutdown grace":     c.Stream.ShutdownGrace,
		"stream heartbeat interval": c.Stream.Gateway.HeartbeatInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if c.Stream.Producer.FlushInterval < 0 {
		problems = append(problems, "stream flush interval must not be negative")
	}
	if c.Stream.MaxConcurrent < 0 {
		problems = append(problems, "stream max concurrent must not be negative")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}
