package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// DefaultSystemPrompt is the system turn every new chat starts with
const DefaultSystemPrompt = "You are a helpful AI assistant named DebAI. " +
	"You are trilingual. " +
	"RULE: You MUST respond in the same language as the user. " +
	"1. User speaks Bengali (or Banglish) -> You speak Bengali (Bangla Script). Example: 'tumi kemon acho' -> 'তুমি কেমন আছো?'. " +
	"2. User speaks Hindi (or Hinglish) -> You speak Hindi (Devanagari Script). Example: 'aap kaise hain' -> 'आप कैसे हैं?'. " +
	"3. User speaks English -> You speak English. " +
	"Do not provide translations or explanations in English if the user speaks Bengali or Hindi."

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	AI        AIConfig        `mapstructure:"ai"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Session   SessionConfig   `mapstructure:"session"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Redis     RedisConfig     `mapstructure:"redis"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Export    ExportConfig    `mapstructure:"export"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Debug     bool            `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
	CORSOrigins  string        `mapstructure:"cors_origins"`
}

// AIConfig contains LLM backend settings
type AIConfig struct {
	Ollama            OllamaConfig  `mapstructure:"ollama"`
	Gemini            GeminiConfig  `mapstructure:"gemini"`
	SystemPrompt      string        `mapstructure:"system_prompt"`
	LanguageDirective bool          `mapstructure:"language_directive"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
}

// OllamaConfig configures the local backend
type OllamaConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// GeminiConfig configures the cloud backend
type GeminiConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OCRConfig contains OCR settings
type OCRConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Languages   []string `mapstructure:"languages"`
	AutoSend    bool     `mapstructure:"auto_send"`
	PageHeaders bool     `mapstructure:"page_headers"`
	DPI         int      `mapstructure:"dpi"`
}

// SessionConfig contains session lifecycle settings
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	MaxChats        int           `mapstructure:"max_chats"`
	AutoTitle       bool          `mapstructure:"auto_title"`
}

// RealtimeConfig contains websocket settings
type RealtimeConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MessageRate      float64 `mapstructure:"message_rate"` // inbound messages per second per connection
	MessageBurst     int     `mapstructure:"message_burst"`
	MessageSizeLimit int     `mapstructure:"message_size_limit"`
}

// RedisConfig contains the optional Redis connection
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// PubSubConfig selects the event fan-out backend
type PubSubConfig struct {
	Backend string `mapstructure:"backend"` // local or redis
}

// RateLimitConfig contains HTTP rate limiting settings
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Backend  string        `mapstructure:"backend"` // memory or redis
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// ExportConfig contains report export settings
type ExportConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	viper.SetConfigName("debai")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/debai")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DEBAI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindLegacyEnv(); err != nil {
		return nil, err
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Info().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from the first .env file found
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
		"../.env",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Info().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// bindLegacyEnv keeps the unprefixed variables the backends are usually configured with.
// The prefixed name wins when both are set.
func bindLegacyEnv() error {
	bindings := map[string][]string{
		"ai.gemini.api_key":  {"DEBAI_AI_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"ai.gemini.model":    {"DEBAI_AI_GEMINI_MODEL", "GEMINI_MODEL"},
		"ai.ollama.endpoint": {"DEBAI_AI_OLLAMA_ENDPOINT", "OLLAMA_HOST"},
	}
	for key, envs := range bindings {
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "5m") // streamed replies hold the response open
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.body_limit", 32*1024*1024) // 32MB uploads
	viper.SetDefault("server.cors_origins", "*")

	// AI defaults
	viper.SetDefault("ai.ollama.enabled", true)
	viper.SetDefault("ai.ollama.endpoint", "http://localhost:11434")
	viper.SetDefault("ai.ollama.model", "gemma3:1b")
	viper.SetDefault("ai.ollama.timeout", "300s")
	viper.SetDefault("ai.gemini.enabled", true)
	viper.SetDefault("ai.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("ai.gemini.model", "gemini-1.5-flash")
	viper.SetDefault("ai.gemini.timeout", "120s")
	viper.SetDefault("ai.system_prompt", DefaultSystemPrompt)
	viper.SetDefault("ai.language_directive", true)
	viper.SetDefault("ai.probe_timeout", "2s")

	// OCR defaults
	viper.SetDefault("ocr.enabled", true)
	viper.SetDefault("ocr.languages", []string{"eng"})
	viper.SetDefault("ocr.auto_send", true)
	viper.SetDefault("ocr.page_headers", false)
	viper.SetDefault("ocr.dpi", 300)

	// Session defaults
	viper.SetDefault("session.ttl", "2h")
	viper.SetDefault("session.cleanup_schedule", "@every 5m")
	viper.SetDefault("session.max_chats", 50)
	viper.SetDefault("session.auto_title", true)

	// Realtime defaults
	viper.SetDefault("realtime.enabled", true)
	viper.SetDefault("realtime.message_rate", 2.0)
	viper.SetDefault("realtime.message_burst", 5)
	viper.SetDefault("realtime.message_size_limit", 256*1024)

	// Infrastructure defaults
	viper.SetDefault("redis.url", "")
	viper.SetDefault("pubsub.backend", "local")
	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.backend", "memory")
	viper.SetDefault("rate_limit.requests", 120)
	viper.SetDefault("rate_limit.window", "1m")
	viper.SetDefault("export.enabled", true)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4317")
	viper.SetDefault("tracing.service_name", "debai")
	viper.SetDefault("tracing.environment", "development")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)

	viper.SetDefault("debug", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration error: %w", err)
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("ai configuration error: %w", err)
	}
	if err := c.OCR.Validate(); err != nil {
		return fmt.Errorf("ocr configuration error: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session configuration error: %w", err)
	}
	if err := c.Realtime.Validate(); err != nil {
		return fmt.Errorf("realtime configuration error: %w", err)
	}

	if c.PubSub.Backend != "local" && c.PubSub.Backend != "redis" {
		return fmt.Errorf("pubsub backend must be 'local' or 'redis'")
	}
	if c.PubSub.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when pubsub backend is 'redis'")
	}

	if c.RateLimit.Enabled {
		if err := c.RateLimit.Validate(); err != nil {
			return fmt.Errorf("rate limit configuration error: %w", err)
		}
		if c.RateLimit.Backend == "redis" && c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required when rate limit backend is 'redis'")
		}
	}

	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing sample_rate must be between 0 and 1")
	}

	return nil
}

// Validate validates server configuration
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if sc.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got: %v", sc.ReadTimeout)
	}
	if sc.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got: %v", sc.WriteTimeout)
	}
	if sc.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got: %v", sc.IdleTimeout)
	}
	if sc.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive, got: %d", sc.BodyLimit)
	}
	return nil
}

// Validate validates backend configuration. A missing Gemini key is not an
// error: it is reported to the user as a reply when the cloud backend is picked.
func (ac *AIConfig) Validate() error {
	if ac.Ollama.Enabled {
		if ac.Ollama.Model == "" {
			return fmt.Errorf("ollama model is required when ollama is enabled")
		}
		if ac.Ollama.Endpoint == "" {
			return fmt.Errorf("ollama endpoint is required when ollama is enabled")
		}
	}
	if ac.Gemini.Enabled && ac.Gemini.Model == "" {
		return fmt.Errorf("gemini model is required when gemini is enabled")
	}
	if ac.ProbeTimeout < 0 {
		return fmt.Errorf("probe_timeout cannot be negative, got: %v", ac.ProbeTimeout)
	}
	return nil
}

// Validate validates OCR configuration
func (oc *OCRConfig) Validate() error {
	if oc.Enabled && len(oc.Languages) == 0 {
		return fmt.Errorf("at least one OCR language is required")
	}
	if oc.DPI < 72 || oc.DPI > 1200 {
		return fmt.Errorf("dpi must be between 72 and 1200, got: %d", oc.DPI)
	}
	return nil
}

// Validate validates session configuration
func (sc *SessionConfig) Validate() error {
	if sc.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative, got: %v", sc.TTL)
	}
	if sc.TTL > 0 && sc.CleanupSchedule == "" {
		return fmt.Errorf("cleanup_schedule is required when ttl is set")
	}
	if sc.MaxChats < 0 {
		return fmt.Errorf("max_chats cannot be negative, got: %d", sc.MaxChats)
	}
	return nil
}

// Validate validates websocket configuration
func (rc *RealtimeConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}
	if rc.MessageRate <= 0 {
		return fmt.Errorf("message_rate must be positive, got: %v", rc.MessageRate)
	}
	if rc.MessageBurst < 1 {
		return fmt.Errorf("message_burst must be at least 1, got: %d", rc.MessageBurst)
	}
	if rc.MessageSizeLimit <= 0 {
		return fmt.Errorf("message_size_limit must be positive, got: %d", rc.MessageSizeLimit)
	}
	return nil
}

// Validate validates rate limit configuration
func (rl *RateLimitConfig) Validate() error {
	if rl.Backend != "memory" && rl.Backend != "redis" {
		return fmt.Errorf("rate limit backend must be 'memory' or 'redis'")
	}
	if rl.Requests <= 0 {
		return fmt.Errorf("requests must be positive, got: %d", rl.Requests)
	}
	if rl.Window <= 0 {
		return fmt.Errorf("window must be positive, got: %v", rl.Window)
	}
	return nil
}
