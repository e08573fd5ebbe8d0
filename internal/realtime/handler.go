// Package realtime serves the websocket chat surface. Clients attach to a
// session, send chat commands and receive the session's generation events.
package realtime

import (
	"context"
	"errors"

	"github.com/debai-app/debai/internal/chat"
	"github.com/debai-app/debai/internal/config"
	"github.com/debai-app/debai/internal/session"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// MessageType represents the type of a client message
type MessageType string

const (
	MessageTypeMessage     MessageType = "message"
	MessageTypeSendLastOCR MessageType = "send_last_ocr"
	MessageTypeNewChat     MessageType = "new_chat"
	MessageTypeSwitchChat  MessageType = "switch_chat"
	MessageTypePing        MessageType = "ping"
)

// ClientMessage represents a message from client
type ClientMessage struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`
	ChatID  string      `json:"chat_id,omitempty"`
}

// Handler handles WebSocket connections
type Handler struct {
	manager *Manager
	chat    *chat.Service
	cfg     config.RealtimeConfig
}

// NewHandler creates a new websocket handler
func NewHandler(manager *Manager, service *chat.Service, cfg config.RealtimeConfig) *Handler {
	return &Handler{
		manager: manager,
		chat:    service,
		cfg:     cfg,
	}
}

// HandleWebSocket upgrades GET /ai/ws?session_id=... to a websocket
func (h *Handler) HandleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "session_id is required")
	}
	if _, err := h.chat.Sessions().Get(sessionID); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	c.Locals("session_id", sessionID)
	return websocket.New(h.handleConnection)(c)
}

func (h *Handler) newLimiter() *rate.Limiter {
	if h.cfg.MessageRate <= 0 {
		return nil
	}
	burst := h.cfg.MessageBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(h.cfg.MessageRate), burst)
}

func (h *Handler) handleConnection(c *websocket.Conn) {
	sessionID, _ := c.Locals("session_id").(string)
	if h.cfg.MessageSizeLimit > 0 {
		c.SetReadLimit(int64(h.cfg.MessageSizeLimit))
	}

	conn := NewConnection(uuid.New().String(), sessionID, c, h.newLimiter())

	if err := h.manager.Register(conn); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to register websocket connection")
		_ = conn.SendMessage(chat.Event{Type: chat.EventError, Code: "internal", Error: err.Error()})
		_ = conn.Close()
		return
	}
	defer func() {
		// close first so a relay blocked on a write returns
		_ = conn.Close()
		h.manager.Unregister(conn.ID)
	}()

	if err := h.greet(conn); err != nil {
		log.Debug().Err(err).Str("connection_id", conn.ID).Msg("Failed to send connected event")
		return
	}

	for {
		var msg ClientMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", conn.ID).Msg("WebSocket error")
			}
			return
		}
		h.handleMessage(conn, msg)
	}
}

// greet tells a new client which chat is active and what chats exist
func (h *Handler) greet(conn *Connection) error {
	sess, err := h.chat.Sessions().Get(conn.SessionID)
	if err != nil {
		return err
	}
	active := sess.ActiveChat()
	return h.manager.Send(conn, chat.Event{
		Type:      chat.EventConnected,
		SessionID: sess.ID,
		ChatID:    active.ID,
		Chats:     sess.Chats(),
	})
}

// handleMessage processes a client message
func (h *Handler) handleMessage(conn *Connection, msg ClientMessage) {
	if h.manager.recorder != nil {
		h.manager.recorder.RecordRealtimeMessage("inbound", string(msg.Type))
	}

	if !conn.Allow() {
		h.sendError(conn, "rate_limited", errors.New("too many messages, slow down"))
		return
	}

	switch msg.Type {
	case MessageTypeMessage:
		go h.generate(conn, func(ctx context.Context) error {
			_, err := h.chat.Send(ctx, conn.SessionID, msg.Content, nil)
			return err
		})

	case MessageTypeSendLastOCR:
		go h.generate(conn, func(ctx context.Context) error {
			_, err := h.chat.SendLastOCR(ctx, conn.SessionID, nil)
			return err
		})

	case MessageTypeNewChat:
		h.changeChat(conn, func(sess *session.Session) (session.ChatInfo, error) {
			return sess.NewChat()
		})

	case MessageTypeSwitchChat:
		if msg.ChatID == "" {
			h.sendError(conn, "invalid_message", errors.New("chat_id is required for switch_chat"))
			return
		}
		h.changeChat(conn, func(sess *session.Session) (session.ChatInfo, error) {
			return sess.SwitchChat(msg.ChatID)
		})

	case MessageTypePing:
		_ = h.manager.Send(conn, chat.Event{Type: chat.EventPong, SessionID: conn.SessionID})

	default:
		h.sendError(conn, "invalid_message", errors.New("unknown message type: "+string(msg.Type)))
	}
}

// generate runs one cycle; its events reach the client through the session channel
func (h *Handler) generate(conn *Connection, run func(ctx context.Context) error) {
	if err := run(h.manager.ctx); err != nil && !chat.Published(err) {
		h.sendError(conn, chat.ErrorCode(err), err)
	}
}

// changeChat applies a chat change and announces the new active chat to every watcher
func (h *Handler) changeChat(conn *Connection, change func(*session.Session) (session.ChatInfo, error)) {
	sess, err := h.chat.Sessions().Get(conn.SessionID)
	if err != nil {
		h.sendError(conn, chat.ErrorCode(err), err)
		return
	}

	info, err := change(sess)
	if err != nil {
		h.sendError(conn, chat.ErrorCode(err), err)
		return
	}

	h.chat.Notify(h.manager.ctx, sess.ID, chat.Event{
		Type:   chat.EventChat,
		ChatID: info.ID,
		Chat:   &info,
		Chats:  sess.Chats(),
	})
}

func (h *Handler) sendError(conn *Connection, code string, err error) {
	_ = h.manager.Send(conn, chat.Event{
		Type:      chat.EventError,
		SessionID: conn.SessionID,
		Code:      code,
		Error:     err.Error(),
	})
}

// Stats returns connection statistics
func (h *Handler) Stats() map[string]interface{} {
	return map[string]interface{}{
		"connections": h.manager.Count(),
	}
}
