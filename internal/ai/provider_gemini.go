package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultGeminiBaseURL is the Generative Language API root
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	geminiTimeout = 120 * time.Second
)

// geminiProvider implements the Provider interface for the Gemini REST API
type geminiProvider struct {
	name       string
	config     GeminiConfig
	httpClient *http.Client
}

func newGeminiProviderInternal(name string, config GeminiConfig, timeout time.Duration) *geminiProvider {
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if timeout <= 0 {
		timeout = geminiTimeout
	}

	return &geminiProvider{
		name:   name,
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *geminiProvider) Name() string {
	return p.name
}

func (p *geminiProvider) Type() ProviderType {
	return ProviderTypeGemini
}

// HasCredential reports whether an API key was resolved
func (p *geminiProvider) HasCredential() bool {
	return p.config.APIKey != ""
}

// ValidateConfig validates the provider configuration
func (p *geminiProvider) ValidateConfig() error {
	if p.config.Model == "" {
		return fmt.Errorf("gemini: model is required")
	}
	if p.config.APIKey == "" {
		return fmt.Errorf("gemini: api key is required (GEMINI_API_KEY)")
	}
	return nil
}

func (p *geminiProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	UsageMetadata  *geminiUsage          `json:"usageMetadata,omitempty"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// text concatenates the parts of the first candidate
func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func (r *geminiResponse) usage() *UsageStats {
	if r.UsageMetadata == nil {
		return nil
	}
	return &UsageStats{
		PromptTokens:     r.UsageMetadata.PromptTokenCount,
		CompletionTokens: r.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      r.UsageMetadata.TotalTokenCount,
	}
}

// Chat sends a non-streaming generateContent request
func (p *geminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := p.post(ctx, req, "generateContent", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if err := blockedError(&geminiResp); err != nil {
		return nil, err
	}
	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	return &ChatResponse{
		Model:        p.modelFor(req),
		Content:      geminiResp.text(),
		FinishReason: strings.ToLower(geminiResp.Candidates[0].FinishReason),
		Usage:        geminiResp.usage(),
	}, nil
}

// ChatStream sends a streamGenerateContent request and reads the SSE stream
func (p *geminiProvider) ChatStream(ctx context.Context, req *ChatRequest, callback StreamCallback) error {
	resp, err := p.post(ctx, req, "streamGenerateContent", url.Values{"alt": []string{"sse"}})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return p.processStream(ctx, resp.Body, callback)
}

func (p *geminiProvider) modelFor(req *ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.config.Model
}

func (p *geminiProvider) post(ctx context.Context, req *ChatRequest, method string, query url.Values) (*http.Response, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key not set")
	}

	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:%s", p.config.BaseURL, url.PathEscape(p.modelFor(req)), method)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		var apiErr geminiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%d %s: %s", resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return resp, nil
}

// buildRequest converts a ChatRequest to the Gemini format.
// System turns found inline are folded into the system instruction.
func (p *geminiProvider) buildRequest(req *ChatRequest) geminiRequest {
	systemText := req.SystemInstruction
	contents := make([]geminiContent, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		case RoleAssistant, RoleModel:
			contents = append(contents, geminiContent{Role: string(RoleModel), Parts: []geminiPart{{Text: msg.Content}}})
		default:
			contents = append(contents, geminiContent{Role: string(RoleUser), Parts: []geminiPart{{Text: msg.Content}}})
		}
	}

	out := geminiRequest{Contents: contents}
	if systemText != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemText}}}
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		out.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return out
}

// processStream processes the SSE stream from Gemini
func (p *geminiProvider) processStream(ctx context.Context, reader io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lastUsage *UsageStats
	finishReason := "stop"

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

		// SSE format: "data: {json}"
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Warn().Err(err).Str("data", data).Msg("Failed to parse Gemini streaming chunk")
			continue
		}
		if err := blockedError(&chunk); err != nil {
			return err
		}

		if usage := chunk.usage(); usage != nil {
			lastUsage = usage
		}
		if len(chunk.Candidates) > 0 && chunk.Candidates[0].FinishReason != "" {
			finishReason = strings.ToLower(chunk.Candidates[0].FinishReason)
		}

		if text := chunk.text(); text != "" {
			if err := callback(StreamEvent{
				Type:  "content",
				Delta: text,
			}); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stream: %w", err)
	}

	return callback(StreamEvent{
		Type:         "done",
		FinishReason: finishReason,
		Usage:        lastUsage,
	})
}

func blockedError(resp *geminiResponse) error {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	return nil
}
