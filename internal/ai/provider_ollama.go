package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ollamaTimeout = 300 * time.Second // Longer timeout for local models
)

// ollamaProvider implements the Provider interface for Ollama
type ollamaProvider struct {
	name       string
	config     OllamaConfig
	httpClient *http.Client
}

func newOllamaProviderInternal(name string, config OllamaConfig, timeout time.Duration) *ollamaProvider {
	config.Endpoint = strings.TrimSuffix(config.Endpoint, "/")
	if timeout <= 0 {
		timeout = ollamaTimeout
	}

	return &ollamaProvider{
		name:   name,
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *ollamaProvider) Name() string {
	return p.name
}

func (p *ollamaProvider) Type() ProviderType {
	return ProviderTypeOllama
}

// ValidateConfig validates the provider configuration
func (p *ollamaProvider) ValidateConfig() error {
	if p.config.Endpoint == "" {
		return fmt.Errorf("ollama: endpoint is required")
	}
	if p.config.Model == "" {
		return fmt.Errorf("ollama: model is required")
	}
	return nil
}

func (p *ollamaProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// Ping checks that the Ollama server answers on its version endpoint
func (p *ollamaProvider) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Endpoint+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	CreatedAt       string        `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Chat sends a non-streaming chat request to Ollama
func (p *ollamaProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	ollamaReq := p.buildRequest(req)
	ollamaReq.Stream = false

	resp, err := p.post(ctx, ollamaReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if ollamaResp.Error != "" {
		return nil, fmt.Errorf("ollama error: %s", ollamaResp.Error)
	}

	finishReason := "stop"
	if ollamaResp.DoneReason != "" {
		finishReason = ollamaResp.DoneReason
	}

	return &ChatResponse{
		Model:        ollamaResp.Model,
		Content:      ollamaResp.Message.Content,
		FinishReason: finishReason,
		Usage:        usageFromCounts(ollamaResp.PromptEvalCount, ollamaResp.EvalCount),
	}, nil
}

// ChatStream sends a streaming chat request to Ollama
func (p *ollamaProvider) ChatStream(ctx context.Context, req *ChatRequest, callback StreamCallback) error {
	ollamaReq := p.buildRequest(req)
	ollamaReq.Stream = true

	resp, err := p.post(ctx, ollamaReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// Ollama streams newline-delimited JSON
	return p.processStream(ctx, resp.Body, callback)
}

func (p *ollamaProvider) post(ctx context.Context, ollamaReq ollamaRequest) (*http.Response, error) {
	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return resp, nil
}

// buildRequest converts a ChatRequest to the Ollama format.
// Ollama takes the system turn inline, so a SystemInstruction is prepended as one.
func (p *ollamaProvider) buildRequest(req *ChatRequest) ollamaRequest {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, ollamaMessage{Role: string(RoleSystem), Content: req.SystemInstruction})
	}
	for _, msg := range req.Messages {
		role := msg.Role
		if role == RoleModel {
			role = RoleAssistant
		}
		messages = append(messages, ollamaMessage{
			Role:    string(role),
			Content: msg.Content,
		})
	}

	var options *ollamaOptions
	if req.MaxTokens > 0 || req.Temperature > 0 {
		options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	return ollamaRequest{
		Model:    model,
		Messages: messages,
		Options:  options,
	}
}

// processStream processes the newline-delimited JSON stream from Ollama
func (p *ollamaProvider) processStream(ctx context.Context, reader io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			log.Warn().Err(err).Str("line", line).Msg("Failed to parse Ollama streaming chunk")
			continue
		}

		if chunk.Error != "" {
			return fmt.Errorf("ollama error: %s", chunk.Error)
		}

		if chunk.Message.Content != "" {
			if err := callback(StreamEvent{
				Type:  "content",
				Delta: chunk.Message.Content,
			}); err != nil {
				return err
			}
		}

		if chunk.Done {
			event := StreamEvent{
				Type:         "done",
				FinishReason: "stop",
				Usage:        usageFromCounts(chunk.PromptEvalCount, chunk.EvalCount),
			}
			if chunk.DoneReason != "" {
				event.FinishReason = chunk.DoneReason
			}
			return callback(event)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stream: %w", err)
	}

	return nil
}

func usageFromCounts(prompt, completion int) *UsageStats {
	if prompt == 0 && completion == 0 {
		return nil
	}
	return &UsageStats{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
