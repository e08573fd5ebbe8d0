package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	typ        ProviderType
	chunks     []string
	err        error
	credential *bool
	chatReply  string
	chatErr    error

	calls    int
	lastReq  *ChatRequest
	pingErr  error
	pingHits int
}

func (f *fakeProvider) Name() string       { return string(f.typ) }
func (f *fakeProvider) Type() ProviderType { return f.typ }
func (f *fakeProvider) ValidateConfig() error {
	return nil
}
func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.calls++
	f.lastReq = req
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &ChatResponse{Content: f.chatReply}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req *ChatRequest, callback StreamCallback) error {
	f.calls++
	f.lastReq = req
	for _, c := range f.chunks {
		if err := callback(StreamEvent{Type: "content", Delta: c}); err != nil {
			return err
		}
	}
	if f.err != nil {
		return f.err
	}
	return callback(StreamEvent{Type: "done", FinishReason: "stop"})
}

type credentialedFake struct {
	*fakeProvider
}

func (c credentialedFake) HasCredential() bool {
	return c.credential != nil && *c.credential
}

type pingFake struct {
	*fakeProvider
}

func (p pingFake) Ping(ctx context.Context) error {
	p.pingHits++
	return p.pingErr
}

type recorderFake struct {
	backend string
	outcome string
	count   int
}

func (r *recorderFake) RecordGeneration(backend, outcome string, _ time.Duration, _ time.Duration) {
	r.backend = backend
	r.outcome = outcome
	r.count++
}

func boolPtr(b bool) *bool { return &b }

func localBackend(p Provider) Backend {
	return Backend{Name: BackendOllama, Label: "Ollama", Family: FamilyLocal, Provider: p}
}

func cloudBackend(p Provider) Backend {
	return Backend{Name: BackendGemini, Label: "Gemini", Family: FamilyCloud, Provider: p}
}

func collect(t *testing.T, reply *Reply) []string {
	t.Helper()
	var out []string
	for s := range reply.Chunks() {
		out = append(out, s)
	}
	return out
}

func TestRouter_Preconditions(t *testing.T) {
	r := NewRouter(nil, Capabilities{})

	t.Run("empty transcript", func(t *testing.T) {
		_, err := r.RouteAndGenerate(context.Background(), nil)
		assert.ErrorIs(t, err, ErrInvalidTranscript)
	})

	t.Run("last turn not user", func(t *testing.T) {
		_, err := r.RouteAndGenerate(context.Background(), []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		})
		assert.ErrorIs(t, err, ErrInvalidTranscript)
	})
}

func TestRouter_NoBackend(t *testing.T) {
	local := &fakeProvider{typ: ProviderTypeOllama, chunks: []string{"x"}}
	rec := &recorderFake{}
	r := NewRouter(
		[]Backend{localBackend(local), cloudBackend(nil)},
		Capabilities{BackendOllama: false, BackendGemini: false},
		WithRecorder(rec),
	)

	reply, err := r.RouteAndGenerate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)

	chunks := collect(t, reply)
	assert.Equal(t, []string{NoBackendMessage}, chunks)
	assert.Equal(t, NoBackendMessage, reply.Text())
	assert.True(t, reply.Failed())
	assert.Equal(t, OutcomeNoBackend, reply.Outcome())
	assert.Equal(t, 0, local.calls, "no backend call may be attempted")
	assert.Equal(t, "none", rec.backend)
	assert.Equal(t, 1, rec.count)
}

func TestRouter_LocalStreaming(t *testing.T) {
	local := &fakeProvider{typ: ProviderTypeOllama, chunks: []string{"আমি ", "ভালো ", "আছি"}}
	r := NewRouter([]Backend{localBackend(local)}, Capabilities{BackendOllama: true})

	transcript := []Message{
		{Role: RoleSystem, Content: "You are DebAI"},
		{Role: RoleUser, Content: "tumi kemon acho"},
	}
	original := make([]Message, len(transcript))
	copy(original, transcript)

	reply, err := r.RouteAndGenerate(context.Background(), transcript)
	require.NoError(t, err)
	chunks := collect(t, reply)

	t.Run("cumulative prefixes", func(t *testing.T) {
		assert.Equal(t, []string{"আমি ", "আমি ভালো ", "আমি ভালো আছি"}, chunks)
		for i := 1; i < len(chunks); i++ {
			assert.True(t, strings.HasPrefix(chunks[i], chunks[i-1]))
		}
		assert.Equal(t, "আমি ভালো আছি", reply.Text())
		assert.Equal(t, BackendOllama, reply.Backend())
		assert.False(t, reply.Failed())
	})

	t.Run("full decorated transcript is sent", func(t *testing.T) {
		require.NotNil(t, local.lastReq)
		require.Len(t, local.lastReq.Messages, 2)
		assert.Equal(t, RoleSystem, local.lastReq.Messages[0].Role)
		assert.Equal(t, "tumi kemon acho"+Directive(ScriptLatin), local.lastReq.Messages[1].Content)
		assert.Empty(t, local.lastReq.SystemInstruction)
	})

	t.Run("stored transcript is untouched", func(t *testing.T) {
		assert.Equal(t, original, transcript)
	})
}

func TestRouter_CloudShaping(t *testing.T) {
	cloud := &fakeProvider{typ: ProviderTypeGemini, chunks: []string{"ok"}, credential: boolPtr(true)}
	r := NewRouter(
		[]Backend{localBackend(nil), cloudBackend(credentialedFake{cloud})},
		Capabilities{BackendOllama: false, BackendGemini: true},
	)

	reply, err := r.RouteAndGenerate(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
		{Role: RoleUser, Content: "আপনি কেমন আছেন"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Collect())

	req := cloud.lastReq
	require.NotNil(t, req)
	assert.Equal(t, "sys", req.SystemInstruction)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, Message{Role: RoleUser, Content: "hello"}, req.Messages[0])
	assert.Equal(t, Message{Role: RoleModel, Content: "hi there"}, req.Messages[1])
	assert.Equal(t, RoleUser, req.Messages[2].Role)
	assert.True(t, strings.HasSuffix(req.Messages[2].Content, Directive(ScriptBengali)))
	assert.NotContains(t, req.Messages[2].Content, Directive(ScriptLatin))
}

func TestRouter_MissingCredential(t *testing.T) {
	cloud := &fakeProvider{typ: ProviderTypeGemini, chunks: []string{"never"}, credential: boolPtr(false)}
	r := NewRouter(
		[]Backend{localBackend(nil), cloudBackend(credentialedFake{cloud})},
		Capabilities{BackendGemini: true},
	)

	reply, err := r.RouteAndGenerate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)

	chunks := collect(t, reply)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "GEMINI_API_KEY")
	assert.Equal(t, MissingCredentialMessage, reply.Text())
	assert.Equal(t, OutcomeMissingCredential, reply.Outcome())
	assert.Equal(t, 0, cloud.calls)
}

func TestRouter_FailureDuringStream(t *testing.T) {
	cloud := &fakeProvider{
		typ:        ProviderTypeGemini,
		chunks:     []string{"par", "tial"},
		err:        errors.New("429 RESOURCE_EXHAUSTED: quota"),
		credential: boolPtr(true),
	}
	r := NewRouter([]Backend{cloudBackend(credentialedFake{cloud})}, Capabilities{BackendGemini: true})

	reply, err := r.RouteAndGenerate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	chunks := collect(t, reply)

	require.Len(t, chunks, 3)
	assert.Equal(t, "par", chunks[0])
	assert.Equal(t, "partial", chunks[1])
	assert.Equal(t, "Gemini streaming failed: 429 RESOURCE_EXHAUSTED: quota", chunks[2])
	assert.Equal(t, chunks[2], reply.Text())
	assert.True(t, reply.Failed())
	assert.Equal(t, 1, cloud.calls, "no retry")
}

func TestRouter_LanguageDirectiveDisabled(t *testing.T) {
	local := &fakeProvider{typ: ProviderTypeOllama}
	r := NewRouter([]Backend{localBackend(local)}, Capabilities{BackendOllama: true}, WithLanguageDirective(false))

	reply, err := r.RouteAndGenerate(context.Background(), []Message{{Role: RoleUser, Content: "hello"}})
	require.NoError(t, err)
	reply.Collect()

	assert.Equal(t, "hello", local.lastReq.Messages[0].Content)
}

func TestReply_SingleUse(t *testing.T) {
	local := &fakeProvider{typ: ProviderTypeOllama, chunks: []string{"a", "b"}}
	r := NewRouter([]Backend{localBackend(local)}, Capabilities{BackendOllama: true})

	reply, err := r.RouteAndGenerate(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	require.NoError(t, err)

	assert.Len(t, collect(t, reply), 2)
	assert.Empty(t, collect(t, reply))
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, "ab", reply.Text())
}

func TestReply_ConsumerStopsEarly(t *testing.T) {
	local := &fakeProvider{typ: ProviderTypeOllama, chunks: []string{"a", "b", "c"}}
	r := NewRouter([]Backend{localBackend(local)}, Capabilities{BackendOllama: true})

	reply, err := r.RouteAndGenerate(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	require.NoError(t, err)

	for s := range reply.Chunks() {
		if s == "ab" {
			break
		}
	}
	assert.Equal(t, "ab", reply.Text())
	assert.Equal(t, OutcomeAbandoned, reply.Outcome())
	assert.False(t, reply.Failed())
}

func TestResolveCapabilities(t *testing.T) {
	t.Run("unconfigured backend is unavailable", func(t *testing.T) {
		caps := ResolveCapabilities(context.Background(), []Backend{localBackend(nil)}, time.Second)
		assert.False(t, caps.Available(BackendOllama))
	})

	t.Run("probe failure marks unavailable", func(t *testing.T) {
		p := pingFake{&fakeProvider{typ: ProviderTypeOllama, pingErr: errors.New("refused")}}
		caps := ResolveCapabilities(context.Background(), []Backend{localBackend(p)}, time.Second)
		assert.False(t, caps.Available(BackendOllama))
	})

	t.Run("probe success marks available", func(t *testing.T) {
		p := pingFake{&fakeProvider{typ: ProviderTypeOllama}}
		caps := ResolveCapabilities(context.Background(), []Backend{localBackend(p)}, time.Second)
		assert.True(t, caps.Available(BackendOllama))
		assert.Equal(t, 1, p.pingHits)
	})

	t.Run("zero timeout skips probe", func(t *testing.T) {
		p := pingFake{&fakeProvider{typ: ProviderTypeOllama, pingErr: errors.New("refused")}}
		caps := ResolveCapabilities(context.Background(), []Backend{localBackend(p)}, 0)
		assert.True(t, caps.Available(BackendOllama))
		assert.Equal(t, 0, p.pingHits)
	})

	t.Run("providers without probe are available", func(t *testing.T) {
		cloud := credentialedFake{&fakeProvider{typ: ProviderTypeGemini}}
		caps := ResolveCapabilities(context.Background(), []Backend{cloudBackend(cloud)}, time.Second)
		assert.True(t, caps.Available(BackendGemini))
	})

	t.Run("backends are probed concurrently", func(t *testing.T) {
		var arrived sync.WaitGroup
		arrived.Add(2)
		local := barrierPinger{&fakeProvider{typ: ProviderTypeOllama}, &arrived}
		cloud := barrierPinger{&fakeProvider{typ: ProviderTypeGemini}, &arrived}

		caps := ResolveCapabilities(context.Background(), []Backend{localBackend(local), cloudBackend(cloud)}, time.Second)
		assert.True(t, caps.Available(BackendOllama))
		assert.True(t, caps.Available(BackendGemini))
	})
}

// barrierPinger answers only once every pinger sharing arrived has started
type barrierPinger struct {
	*fakeProvider
	arrived *sync.WaitGroup
}

func (p barrierPinger) Ping(ctx context.Context) error {
	p.arrived.Done()
	all := make(chan struct{})
	go func() {
		p.arrived.Wait()
		close(all)
	}()
	select {
	case <-all:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRouter_Select(t *testing.T) {
	local := &fakeProvider{typ: ProviderTypeOllama}
	cloud := &fakeProvider{typ: ProviderTypeGemini}

	t.Run("local first", func(t *testing.T) {
		r := NewRouter([]Backend{localBackend(local), cloudBackend(cloud)}, Capabilities{BackendOllama: true, BackendGemini: true})
		b, ok := r.Select()
		require.True(t, ok)
		assert.Equal(t, BackendOllama, b.Name)
	})

	t.Run("cloud fallback", func(t *testing.T) {
		r := NewRouter([]Backend{localBackend(local), cloudBackend(cloud)}, Capabilities{BackendGemini: true})
		b, ok := r.Select()
		require.True(t, ok)
		assert.Equal(t, BackendGemini, b.Name)
	})

	t.Run("capabilities copy is detached", func(t *testing.T) {
		r := NewRouter(nil, Capabilities{BackendGemini: true})
		c := r.Capabilities()
		c[BackendGemini] = false
		assert.True(t, r.Capabilities().Available(BackendGemini))
	})
}
