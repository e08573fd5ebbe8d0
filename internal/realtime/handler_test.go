package realtime

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/debai-app/debai/internal/ai"
	"github.com/debai-app/debai/internal/chat"
	"github.com/debai-app/debai/internal/config"
	"github.com/debai-app/debai/internal/pubsub"
	"github.com/debai-app/debai/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type echoProvider struct{}

func (echoProvider) Name() string          { return "echo" }
func (echoProvider) Type() ai.ProviderType { return ai.ProviderTypeOllama }
func (echoProvider) ValidateConfig() error { return nil }
func (echoProvider) Close() error          { return nil }

func (echoProvider) Chat(ctx context.Context, req *ai.ChatRequest) (*ai.ChatResponse, error) {
	return &ai.ChatResponse{Content: "Echo Chat"}, nil
}

func (echoProvider) ChatStream(ctx context.Context, req *ai.ChatRequest, callback ai.StreamCallback) error {
	for _, delta := range []string{"ec", "ho"} {
		if err := callback(ai.StreamEvent{Type: "content", Delta: delta}); err != nil {
			return err
		}
	}
	return nil
}

type handlerFixture struct {
	handler *Handler
	manager *Manager
	session *session.Session
}

func newHandlerFixture(t *testing.T, cfg config.RealtimeConfig) *handlerFixture {
	t.Helper()
	ps := pubsub.NewLocalPubSub()
	t.Cleanup(func() { _ = ps.Close() })

	mgr := session.NewManager(session.Options{MaxChats: 2})
	backends := []ai.Backend{{Name: ai.BackendOllama, Label: "Ollama", Family: ai.FamilyLocal, Provider: echoProvider{}}}
	router := ai.NewRouter(backends, ai.Capabilities{ai.BackendOllama: true})
	service := chat.NewService(mgr, router, chat.WithPubSub(ps))

	manager := NewManager(context.Background(), ps)
	t.Cleanup(manager.Shutdown)

	return &handlerFixture{
		handler: NewHandler(manager, service, cfg),
		manager: manager,
		session: mgr.Create(),
	}
}

func (f *handlerFixture) connect(t *testing.T, limiter *rate.Limiter) (*Connection, *MockWebSocketConn) {
	t.Helper()
	mock := &MockWebSocketConn{}
	conn := NewConnection("conn-"+t.Name(), f.session.ID, mock, limiter)
	require.NoError(t, f.manager.Register(conn))
	return conn, mock
}

func lastEvent(t *testing.T, mock *MockWebSocketConn) chat.Event {
	t.Helper()
	events := mock.Events(t)
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

func TestHandleWebSocket_Rejections(t *testing.T) {
	f := newHandlerFixture(t, config.RealtimeConfig{Enabled: true})
	app := fiber.New()
	app.Get("/ai/ws", f.handler.HandleWebSocket)

	upgrade := func(target string) int {
		req := httptest.NewRequest("GET", target, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Sec-WebSocket-Version", "13")
		req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/ai/ws?session_id="+f.session.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	assert.Equal(t, fiber.StatusBadRequest, upgrade("/ai/ws"))
	assert.Equal(t, fiber.StatusNotFound, upgrade("/ai/ws?session_id=missing"))
}

func TestHandler_Greet(t *testing.T) {
	f := newHandlerFixture(t, config.RealtimeConfig{})
	conn, mock := f.connect(t, nil)

	require.NoError(t, f.handler.greet(conn))

	e := lastEvent(t, mock)
	assert.Equal(t, chat.EventConnected, e.Type)
	assert.Equal(t, f.session.ActiveChat().ID, e.ChatID)
	assert.Len(t, e.Chats, 1)
}

func TestHandler_HandleMessage(t *testing.T) {
	t.Run("ping", func(t *testing.T) {
		f := newHandlerFixture(t, config.RealtimeConfig{})
		conn, mock := f.connect(t, nil)

		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypePing})
		assert.Equal(t, chat.EventPong, lastEvent(t, mock).Type)
	})

	t.Run("unknown type", func(t *testing.T) {
		f := newHandlerFixture(t, config.RealtimeConfig{})
		conn, mock := f.connect(t, nil)

		f.handler.handleMessage(conn, ClientMessage{Type: "subscribe"})
		e := lastEvent(t, mock)
		assert.Equal(t, chat.EventError, e.Type)
		assert.Equal(t, "invalid_message", e.Code)
	})

	t.Run("throttled", func(t *testing.T) {
		f := newHandlerFixture(t, config.RealtimeConfig{})
		conn, mock := f.connect(t, rate.NewLimiter(rate.Limit(0.001), 1))

		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypePing})
		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypePing})

		e := lastEvent(t, mock)
		assert.Equal(t, chat.EventError, e.Type)
		assert.Equal(t, "rate_limited", e.Code)
	})

	t.Run("message streams through the session channel", func(t *testing.T) {
		f := newHandlerFixture(t, config.RealtimeConfig{})
		conn, mock := f.connect(t, nil)

		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypeMessage, Content: "hello"})

		require.Eventually(t, func() bool { return mock.Has(t, chat.EventTitle) }, 2*time.Second, 5*time.Millisecond)

		var contents []string
		var done chat.Event
		for _, e := range mock.Events(t) {
			switch e.Type {
			case chat.EventContent:
				contents = append(contents, e.Content)
			case chat.EventDone:
				done = e
			}
		}
		assert.Equal(t, []string{"ec", "echo"}, contents)
		assert.Equal(t, "echo", done.Content)
		assert.Equal(t, "Echo Chat", f.session.ActiveChat().Title)
	})

	t.Run("empty message", func(t *testing.T) {
		f := newHandlerFixture(t, config.RealtimeConfig{})
		conn, mock := f.connect(t, nil)

		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypeMessage})

		require.Eventually(t, func() bool { return mock.Has(t, chat.EventError) }, time.Second, 5*time.Millisecond)
		assert.Equal(t, "empty_message", lastEvent(t, mock).Code)
	})

	t.Run("send last OCR without OCR", func(t *testing.T) {
		f := newHandlerFixture(t, config.RealtimeConfig{})
		conn, mock := f.connect(t, nil)

		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypeSendLastOCR})

		require.Eventually(t, func() bool { return mock.Has(t, chat.EventError) }, time.Second, 5*time.Millisecond)
		assert.Equal(t, "no_ocr", lastEvent(t, mock).Code)
	})

	t.Run("new chat is announced", func(t *testing.T) {
		f := newHandlerFixture(t, config.RealtimeConfig{})
		conn, mock := f.connect(t, nil)

		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypeNewChat})

		require.Eventually(t, func() bool { return mock.Has(t, chat.EventChat) }, time.Second, 5*time.Millisecond)
		e := lastEvent(t, mock)
		require.NotNil(t, e.Chat)
		assert.True(t, e.Chat.Active)
		assert.Len(t, e.Chats, 2)
		assert.Equal(t, f.session.ActiveChat().ID, e.ChatID)
	})

	t.Run("chat limit", func(t *testing.T) {
		f := newHandlerFixture(t, config.RealtimeConfig{})
		conn, mock := f.connect(t, nil)
		_, err := f.session.NewChat()
		require.NoError(t, err)

		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypeNewChat})
		assert.Equal(t, "too_many_chats", lastEvent(t, mock).Code)
	})

	t.Run("switch chat", func(t *testing.T) {
		f := newHandlerFixture(t, config.RealtimeConfig{})
		conn, mock := f.connect(t, nil)
		first := f.session.ActiveChat()
		_, err := f.session.NewChat()
		require.NoError(t, err)

		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypeSwitchChat})
		assert.Equal(t, "invalid_message", lastEvent(t, mock).Code)

		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypeSwitchChat, ChatID: "nope"})
		assert.Equal(t, "chat_not_found", lastEvent(t, mock).Code)

		f.handler.handleMessage(conn, ClientMessage{Type: MessageTypeSwitchChat, ChatID: first.ID})
		require.Eventually(t, func() bool { return mock.Has(t, chat.EventChat) }, time.Second, 5*time.Millisecond)
		assert.Equal(t, first.ID, f.session.ActiveChat().ID)
	})
}

func TestHandler_Stats(t *testing.T) {
	f := newHandlerFixture(t, config.RealtimeConfig{})
	f.connect(t, nil)
	assert.Equal(t, 1, f.handler.Stats()["connections"])
}

func TestHandler_NewLimiter(t *testing.T) {
	f := newHandlerFixture(t, config.RealtimeConfig{})
	assert.Nil(t, f.handler.newLimiter())

	f = newHandlerFixture(t, config.RealtimeConfig{MessageRate: 5, MessageBurst: 0})
	limiter := f.handler.newLimiter()
	require.NotNil(t, limiter)
	assert.Equal(t, 1, limiter.Burst())
}
