package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  2 * time.Minute,
			BodyLimit:    1024 * 1024,
		},
		AI: AIConfig{
			Ollama:       OllamaConfig{Enabled: true, Endpoint: "http://localhost:11434", Model: "gemma3:1b"},
			Gemini:       GeminiConfig{Enabled: true, Model: "gemini-1.5-flash"},
			ProbeTimeout: 2 * time.Second,
		},
		OCR:       OCRConfig{Enabled: true, Languages: []string{"eng"}, DPI: 300},
		Session:   SessionConfig{TTL: time.Hour, CleanupSchedule: "@every 5m", MaxChats: 10},
		Realtime:  RealtimeConfig{Enabled: true, MessageRate: 2, MessageBurst: 5, MessageSizeLimit: 1024},
		PubSub:    PubSubConfig{Backend: "local"},
		RateLimit: RateLimitConfig{Enabled: true, Backend: "memory", Requests: 10, Window: time.Minute},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{
			name:    "empty address",
			mutate:  func(c *Config) { c.Server.Address = "" },
			wantErr: true,
			errMsg:  "server address cannot be empty",
		},
		{
			name:    "zero body limit",
			mutate:  func(c *Config) { c.Server.BodyLimit = 0 },
			wantErr: true,
			errMsg:  "body_limit must be positive",
		},
		{
			name:    "ollama without model",
			mutate:  func(c *Config) { c.AI.Ollama.Model = "" },
			wantErr: true,
			errMsg:  "ollama model is required",
		},
		{
			name:   "disabled ollama needs no model",
			mutate: func(c *Config) { c.AI.Ollama = OllamaConfig{} },
		},
		{
			name:   "missing gemini key is allowed",
			mutate: func(c *Config) { c.AI.Gemini.APIKey = "" },
		},
		{
			name:    "gemini without model",
			mutate:  func(c *Config) { c.AI.Gemini.Model = "" },
			wantErr: true,
			errMsg:  "gemini model is required",
		},
		{
			name:    "ocr without languages",
			mutate:  func(c *Config) { c.OCR.Languages = nil },
			wantErr: true,
			errMsg:  "at least one OCR language",
		},
		{
			name:    "dpi out of range",
			mutate:  func(c *Config) { c.OCR.DPI = 10 },
			wantErr: true,
			errMsg:  "dpi must be between",
		},
		{
			name:    "ttl without schedule",
			mutate:  func(c *Config) { c.Session.CleanupSchedule = "" },
			wantErr: true,
			errMsg:  "cleanup_schedule is required",
		},
		{
			name:    "zero message rate",
			mutate:  func(c *Config) { c.Realtime.MessageRate = 0 },
			wantErr: true,
			errMsg:  "message_rate must be positive",
		},
		{
			name:   "disabled realtime is not validated",
			mutate: func(c *Config) { c.Realtime = RealtimeConfig{} },
		},
		{
			name:    "unknown pubsub backend",
			mutate:  func(c *Config) { c.PubSub.Backend = "nats" },
			wantErr: true,
			errMsg:  "pubsub backend must be",
		},
		{
			name:    "redis pubsub without url",
			mutate:  func(c *Config) { c.PubSub.Backend = "redis" },
			wantErr: true,
			errMsg:  "redis.url is required",
		},
		{
			name: "redis pubsub with url",
			mutate: func(c *Config) {
				c.PubSub.Backend = "redis"
				c.Redis.URL = "redis://localhost:6379/0"
			},
		},
		{
			name:    "rate limit with bad backend",
			mutate:  func(c *Config) { c.RateLimit.Backend = "disk" },
			wantErr: true,
			errMsg:  "rate limit backend must be",
		},
		{
			name:   "disabled rate limit is not validated",
			mutate: func(c *Config) { c.RateLimit = RateLimitConfig{} },
		},
		{
			name: "tracing sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 2
			},
			wantErr: true,
			errMsg:  "sample_rate must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// loadIn runs Load from an empty working directory so no local files leak in
func loadIn(t *testing.T, files map[string]string) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
	}
	t.Chdir(dir)

	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("OLLAMA_HOST", "")

	cfg, err := loadIn(t, nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "gemma3:1b", cfg.AI.Ollama.Model)
	assert.Equal(t, "http://localhost:11434", cfg.AI.Ollama.Endpoint)
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.Gemini.Model)
	assert.Empty(t, cfg.AI.Gemini.APIKey)
	assert.Equal(t, DefaultSystemPrompt, cfg.AI.SystemPrompt)
	assert.True(t, cfg.AI.LanguageDirective)
	assert.True(t, cfg.OCR.AutoSend)
	assert.Equal(t, []string{"eng"}, cfg.OCR.Languages)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "@every 5m", cfg.Session.CleanupSchedule)
	assert.True(t, cfg.Session.AutoTitle)
	assert.Equal(t, "local", cfg.PubSub.Backend)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key-from-env")
	t.Setenv("GEMINI_MODEL", "gemini-2.0-flash")
	t.Setenv("DEBAI_OCR_AUTO_SEND", "false")
	t.Setenv("DEBAI_SERVER_ADDRESS", ":9090")

	cfg, err := loadIn(t, nil)
	require.NoError(t, err)

	assert.Equal(t, "key-from-env", cfg.AI.Gemini.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.AI.Gemini.Model)
	assert.False(t, cfg.OCR.AutoSend)
	assert.Equal(t, ":9090", cfg.Server.Address)
}

func TestLoad_PrefixedKeyWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "plain")
	t.Setenv("DEBAI_AI_GEMINI_API_KEY", "prefixed")

	cfg, err := loadIn(t, nil)
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.AI.Gemini.APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Setenv("GEMINI_MODEL", "")

	cfg, err := loadIn(t, map[string]string{
		"debai.yaml": `
ai:
  ollama:
    model: llama3.2:3b
  language_directive: false
ocr:
  languages: [eng, ben, hin]
  page_headers: true
session:
  max_chats: 5
`,
	})
	require.NoError(t, err)

	assert.Equal(t, "llama3.2:3b", cfg.AI.Ollama.Model)
	assert.False(t, cfg.AI.LanguageDirective)
	assert.Equal(t, []string{"eng", "ben", "hin"}, cfg.OCR.Languages)
	assert.True(t, cfg.OCR.PageHeaders)
	assert.Equal(t, 5, cfg.Session.MaxChats)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := loadIn(t, map[string]string{
		"debai.yaml": "pubsub:\n  backend: kafka\n",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubsub backend must be")
}
