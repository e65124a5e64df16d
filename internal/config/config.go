package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type Config struct {
	HTTPPort       string `envconfig:"HTTP_PORT" default:"8080"`
	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"sqlite3"`
	DatabaseURL    string `envconfig:"DATABASE_URL" default:"autoelite.db"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	JWTSecret      string `envconfig:"JWT_SECRET"`

	// Completion gateway (OpenAI-compatible). Leaving both this key and
	// GeminiAPIKey empty puts the assistant in degraded mode.
	CompletionAPIKey  string        `envconfig:"COMPLETION_API_KEY"`
	CompletionBaseURL string        `envconfig:"COMPLETION_BASE_URL" default:"https://ai.gateway.lovable.dev/v1"`
	CompletionModel   string        `envconfig:"COMPLETION_MODEL" default:"google/gemini-2.5-flash"`
	GeminiAPIKey      string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel       string        `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	AssistantTimeout  time.Duration `envconfig:"ASSISTANT_TIMEOUT" default:"60s"`

	CacheSize int `envconfig:"CACHE_SIZE" default:"256"`

	ChatSessionTTL  time.Duration `envconfig:"CHAT_SESSION_TTL" default:"30m"`
	ChatMaxSessions int           `envconfig:"CHAT_MAX_SESSIONS" default:"10000"`

	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
}

var AppConfig Config

// Load reads a .env file if present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // Load .env file if it exists

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, errors.WithStack(err)
	}
	if c.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	if c.DatabaseDriver != "sqlite3" && c.DatabaseDriver != "postgres" {
		return nil, errors.Errorf("DATABASE_DRIVER must be sqlite3 or postgres, got %q", c.DatabaseDriver)
	}
	if c.CacheSize <= 0 {
		return nil, errors.Errorf("CACHE_SIZE must be positive, got %d", c.CacheSize)
	}
	if c.ChatSessionTTL <= 0 {
		return nil, errors.Errorf("CHAT_SESSION_TTL must be positive, got %s", c.ChatSessionTTL)
	}
	if c.ChatMaxSessions <= 0 {
		return nil, errors.Errorf("CHAT_MAX_SESSIONS must be positive, got %d", c.ChatMaxSessions)
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return nil, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return &c, nil
}

// LoadConfig populates AppConfig.
func LoadConfig() error {
	c, err := Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	AppConfig = *c
	return nil
}

// AssistantMode names which completion backend the configuration selects.
func (c *Config) AssistantMode() string {
	switch {
	case c.CompletionAPIKey != "":
		return "gateway"
	case c.GeminiAPIKey != "":
		return "gemini"
	default:
		return "degraded"
	}
}
