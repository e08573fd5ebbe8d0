package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOllama(t *testing.T, handler http.HandlerFunc) *ollamaProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOllamaProvider(ProviderConfig{
		Name:   "ollama",
		Type:   ProviderTypeOllama,
		Model:  "gemma3:1b",
		Config: map[string]string{"endpoint": srv.URL + "/"},
	})
	require.NoError(t, err)
	return p.(*ollamaProvider)
}

func TestNewOllamaProvider(t *testing.T) {
	t.Run("requires model", func(t *testing.T) {
		_, err := NewOllamaProvider(ProviderConfig{Type: ProviderTypeOllama})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model is required")
	})

	t.Run("defaults endpoint", func(t *testing.T) {
		p, err := NewOllamaProvider(ProviderConfig{Model: "gemma3:1b"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:11434", p.(*ollamaProvider).config.Endpoint)
		assert.NoError(t, p.ValidateConfig())
	})

	t.Run("adds scheme to bare host", func(t *testing.T) {
		p, err := NewOllamaProvider(ProviderConfig{Model: "gemma3:1b", Config: map[string]string{"endpoint": "127.0.0.1:11434"}})
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:11434", p.(*ollamaProvider).config.Endpoint)
	})
}

func TestOllamaProvider_ChatStream(t *testing.T) {
	t.Run("streams content deltas and done", func(t *testing.T) {
		var got ollamaRequest
		p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/chat", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/x-ndjson")
			fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
			fmt.Fprintln(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`)
			fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":2}`)
		})

		var deltas []string
		var done *StreamEvent
		err := p.ChatStream(context.Background(), &ChatRequest{
			Messages: []Message{
				{Role: RoleSystem, Content: "sys"},
				{Role: RoleUser, Content: "hi"},
			},
		}, func(e StreamEvent) error {
			switch e.Type {
			case "content":
				deltas = append(deltas, e.Delta)
			case "done":
				ev := e
				done = &ev
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"Hel", "lo"}, deltas)
		require.NotNil(t, done)
		assert.Equal(t, "stop", done.FinishReason)
		require.NotNil(t, done.Usage)
		assert.Equal(t, 5, done.Usage.TotalTokens)

		assert.True(t, got.Stream)
		assert.Equal(t, "gemma3:1b", got.Model)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "system", got.Messages[0].Role)
		assert.Equal(t, "hi", got.Messages[1].Content)
	})

	t.Run("returns status errors", func(t *testing.T) {
		p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		})

		err := p.ChatStream(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}},
			func(StreamEvent) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
		assert.Contains(t, err.Error(), "model not found")
	})

	t.Run("surfaces in-stream errors", func(t *testing.T) {
		p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"message":{"content":"par"},"done":false}`)
			fmt.Fprintln(w, `{"error":"out of memory"}`)
		})

		var deltas []string
		err := p.ChatStream(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}},
			func(e StreamEvent) error {
				if e.Type == "content" {
					deltas = append(deltas, e.Delta)
				}
				return nil
			})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of memory")
		assert.Equal(t, []string{"par"}, deltas)
	})

	t.Run("skips malformed lines", func(t *testing.T) {
		p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `not json`)
			fmt.Fprintln(w, `{"message":{"content":"ok"},"done":true}`)
		})

		var sb strings.Builder
		err := p.ChatStream(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}},
			func(e StreamEvent) error {
				sb.WriteString(e.Delta)
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, "ok", sb.String())
	})

	t.Run("maps model role back to assistant", func(t *testing.T) {
		var got ollamaRequest
		p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			fmt.Fprintln(w, `{"done":true}`)
		})

		err := p.ChatStream(context.Background(), &ChatRequest{
			SystemInstruction: "be brief",
			Messages: []Message{
				{Role: RoleUser, Content: "a"},
				{Role: RoleModel, Content: "b"},
				{Role: RoleUser, Content: "c"},
			},
		}, func(StreamEvent) error { return nil })
		require.NoError(t, err)
		require.Len(t, got.Messages, 4)
		assert.Equal(t, "system", got.Messages[0].Role)
		assert.Equal(t, "assistant", got.Messages[2].Role)
	})
}

func TestOllamaProvider_Chat(t *testing.T) {
	p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.False(t, req.Stream)
		fmt.Fprint(w, `{"model":"gemma3:1b","message":{"role":"assistant","content":"Trip Planning"},"done":true}`)
	})

	resp, err := p.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "plan a trip"}}})
	require.NoError(t, err)
	assert.Equal(t, "Trip Planning", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestOllamaProvider_Ping(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/version", r.URL.Path)
			fmt.Fprint(w, `{"version":"0.5.0"}`)
		})
		assert.NoError(t, p.Ping(context.Background()))
	})

	t.Run("non-200 fails", func(t *testing.T) {
		p := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		assert.Error(t, p.Ping(context.Background()))
	})
}
