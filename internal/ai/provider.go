package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProviderType represents the type of AI provider
type ProviderType string

const (
	ProviderTypeOllama ProviderType = "ollama"
	ProviderTypeGemini ProviderType = "gemini"
)

// Role represents the role of a message in a conversation
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleModel is the cloud wire name for assistant turns in a chat history
	RoleModel Role = "model"
)

// Message is a single turn in a conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to the AI provider
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	// SystemInstruction is sent out of band by providers that support it.
	// Providers that take the system turn inline leave it empty.
	SystemInstruction string  `json:"system_instruction,omitempty"`
	MaxTokens         int     `json:"max_tokens,omitempty"`
	Temperature       float64 `json:"temperature,omitempty"`
	Stream            bool    `json:"stream,omitempty"`
}

// ChatResponse represents a non-streaming response from the AI provider
type ChatResponse struct {
	Model        string      `json:"model"`
	Content      string      `json:"content"`
	FinishReason string      `json:"finish_reason"`
	Usage        *UsageStats `json:"usage,omitempty"`
}

// UsageStats represents token usage statistics
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamEvent represents a streaming event from the AI provider
type StreamEvent struct {
	// Type of event: "content", "done"
	Type string `json:"type"`

	// Content delta for "content" events
	Delta string `json:"delta,omitempty"`

	// Usage stats for "done" events
	Usage *UsageStats `json:"usage,omitempty"`

	FinishReason string `json:"finish_reason,omitempty"`
}

// StreamCallback is called for each streaming event.
// Returning an error stops the stream and is returned from ChatStream.
type StreamCallback func(event StreamEvent) error

// Provider is the interface for LLM backends
type Provider interface {
	Name() string
	Type() ProviderType

	// Chat sends a non-streaming chat request
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ChatStream sends a streaming chat request and invokes callback per event
	ChatStream(ctx context.Context, req *ChatRequest, callback StreamCallback) error

	ValidateConfig() error
	Close() error
}

// ProviderConfig is the generic provider configuration
type ProviderConfig struct {
	Name   string            `json:"name"`
	Type   ProviderType      `json:"type"`
	Model  string            `json:"model"`
	Config map[string]string `json:"config"`

	// Timeout bounds a whole backend call; zero uses the provider default
	Timeout time.Duration `json:"-"`
}

// OllamaConfig contains Ollama-specific configuration
type OllamaConfig struct {
	Endpoint string
	Model    string
}

// GeminiConfig contains Gemini-specific configuration
type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewProvider creates a provider based on configuration
func NewProvider(config ProviderConfig) (Provider, error) {
	switch config.Type {
	case ProviderTypeOllama:
		return NewOllamaProvider(config)
	case ProviderTypeGemini:
		return NewGeminiProvider(config)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.Type)
	}
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(config ProviderConfig) (Provider, error) {
	ollamaConfig := OllamaConfig{
		Endpoint: config.Config["endpoint"],
		Model:    config.Model,
	}

	if ollamaConfig.Endpoint == "" {
		ollamaConfig.Endpoint = "http://localhost:11434"
	}
	// OLLAMA_HOST style values come without a scheme
	if !strings.Contains(ollamaConfig.Endpoint, "://") {
		ollamaConfig.Endpoint = "http://" + ollamaConfig.Endpoint
	}

	if ollamaConfig.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}

	return newOllamaProviderInternal(config.Name, ollamaConfig, config.Timeout), nil
}

// NewGeminiProvider creates a new Gemini provider.
// A missing API key is not an error here; the router reports it per turn.
func NewGeminiProvider(config ProviderConfig) (Provider, error) {
	geminiConfig := GeminiConfig{
		BaseURL: config.Config["base_url"],
		APIKey:  config.Config["api_key"],
		Model:   config.Model,
	}

	if geminiConfig.BaseURL == "" {
		geminiConfig.BaseURL = DefaultGeminiBaseURL
	}

	if geminiConfig.Model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}

	return newGeminiProviderInternal(config.Name, geminiConfig, config.Timeout), nil
}
