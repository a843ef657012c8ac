package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	DBPath      string `envconfig:"DB_PATH" default:"joinery.db"`

	// Language model provider: "openai" (any OpenAI-compatible endpoint) or "anthropic"
	LLMProvider     string        `envconfig:"LLM_PROVIDER" default:"openai"`
	LLMModel        string        `envconfig:"LLM_MODEL"`
	LLMTemperature  float64       `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	LLMMaxTokens    int           `envconfig:"LLM_MAX_TOKENS" default:"1024"`
	LLMTimeout      time.Duration `envconfig:"LLM_TIMEOUT" default:"12s"`
	OpenAIAPIKey    string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `envconfig:"OPENAI_BASE_URL"`
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`

	// Call sessions
	SessionBackend       string        `envconfig:"SESSION_BACKEND" default:"memory"` // "memory" or "redis"
	SessionTTL           time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
	SessionHistoryLimit  int           `envconfig:"SESSION_HISTORY_LIMIT" default:"10"`
	RedisURL             string        `envconfig:"REDIS_URL"`
	RedisKeyPrefix       string        `envconfig:"REDIS_KEY_PREFIX" default:"joinery:session:"`

	// Optional YAML file overriding the assistant's phrasing
	AssistantProfile string `envconfig:"ASSISTANT_PROFILE"`

	// Twilio (signature validation is skipped when the auth token is empty)
	TwilioAuthToken string `envconfig:"TWILIO_AUTH_TOKEN"`
	PublicBaseURL   string `envconfig:"PUBLIC_BASE_URL"` // e.g. https://joinery.example.com, used to rebuild the signed URL

	// Slack (optional, project announcements)
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"SLACK_CHANNEL"`

	// Dashboard API
	APIAuthMode       string `envconfig:"API_AUTH_MODE" default:"api-key"` // "api-key", "jwt", "none"
	APIKey            string `envconfig:"API_KEY"`
	JWTSecret         string `envconfig:"JWT_SECRET"`
	APIRateLimitRPS   int    `envconfig:"API_RATE_LIMIT_RPS" default:"20"`
	APIRateLimitBurst int    `envconfig:"API_RATE_LIMIT_BURST" default:"40"`
	CORSOrigins       string `envconfig:"CORS_ORIGINS"`
}

// SlackEnabled returns true if a bot token and target channel are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// RedisEnabled returns true if sessions should be kept in Redis.
func (c *Config) RedisEnabled() bool {
	return strings.EqualFold(c.SessionBackend, "redis")
}

// TwilioValidationEnabled returns true if webhook signatures are checked.
func (c *Config) TwilioValidationEnabled() bool {
	return c.TwilioAuthToken != ""
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLMProvider) {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.RedisEnabled() && c.RedisURL == "" {
		return fmt.Errorf("SESSION_BACKEND=redis requires REDIS_URL")
	}
	switch c.APIAuthMode {
	case "none", "api-key", "jwt":
	default:
		return fmt.Errorf("unknown API_AUTH_MODE %q", c.APIAuthMode)
	}
	if c.APIAuthMode == "jwt" && c.JWTSecret == "" {
		return fmt.Errorf("API_AUTH_MODE=jwt requires JWT_SECRET")
	}
	if c.SessionHistoryLimit < 1 {
		return fmt.Errorf("SESSION_HISTORY_LIMIT must be >= 1")
	}
	return nil
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first; variables already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return LoadWithPrefix("")
}

// LoadFile is Load with an explicit env file, which must exist.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Profile holds the assistant's spoken phrases and prompt. Zero fields keep
// the built-in defaults.
type Profile struct {
	Greeting     string `yaml:"greeting"`
	Goodbye      string `yaml:"goodbye"`
	SystemPrompt string `yaml:"system_prompt"`
	HistoryLimit int    `yaml:"history_limit"`
}

// LoadProfile reads an assistant profile from a YAML file. An empty path
// returns an empty profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return &Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading assistant profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing assistant profile %s: %w", path, err)
	}
	if p.HistoryLimit < 0 {
		return nil, fmt.Errorf("assistant profile: history_limit must be >= 0")
	}
	return &p, nil
}
