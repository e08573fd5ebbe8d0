package api

import (
	"github.com/debai-app/debai/internal/ai"
	"github.com/debai-app/debai/internal/chat"
	"github.com/debai-app/debai/internal/session"
	"github.com/gofiber/fiber/v2"
)

// SessionView is the detail representation of a session
type SessionView struct {
	session.Summary
	Settings session.Settings        `json:"settings"`
	State    session.GenerationState `json:"state"`
	ChatList []session.ChatInfo      `json:"chat_list"`
}

func viewOf(sess *session.Session) SessionView {
	return SessionView{
		Summary:  session.Summarize(sess),
		Settings: sess.Settings(),
		State:    sess.State(),
		ChatList: sess.Chats(),
	}
}

// TranscriptView is a chat with its turns
type TranscriptView struct {
	Chat     session.ChatInfo `json:"chat"`
	Messages []ai.Message     `json:"messages"`
}

type renameChatRequest struct {
	Title string `json:"title"`
}

func (s *Server) session(c *fiber.Ctx) (*session.Session, error) {
	sess, err := s.chat.Sessions().Get(c.Params("id"))
	if err != nil {
		return nil, toHTTPError(err)
	}
	return sess, nil
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess := s.chat.Sessions().Create()
	return c.Status(fiber.StatusCreated).JSON(viewOf(sess))
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sessions": s.chat.Sessions().List(),
	})
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(viewOf(sess))
}

// handleEndSession discards a session and all of its chats
func (s *Server) handleEndSession(c *fiber.Ctx) error {
	if err := s.chat.Sessions().End(c.Params("id")); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleUpdateSettings(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var update session.SettingsUpdate
	if err := c.BodyParser(&update); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return c.JSON(sess.UpdateSettings(update))
}

func (s *Server) handleCreateChat(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	info, err := sess.NewChat()
	if err != nil {
		return toHTTPError(err)
	}
	s.announceChat(c, sess, info)
	return c.Status(fiber.StatusCreated).JSON(info)
}

func (s *Server) handleRenameChat(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var req renameChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	info, err := sess.RenameChat(c.Params("chatId"), req.Title)
	if err != nil {
		return toHTTPError(err)
	}
	s.chat.Notify(c.UserContext(), sess.ID, chat.Event{
		Type:   chat.EventTitle,
		ChatID: info.ID,
		Title:  info.Title,
	})
	return c.JSON(info)
}

// handleDeleteChat removes a chat and returns the chat that is active afterwards
func (s *Server) handleDeleteChat(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	active, err := sess.DeleteChat(c.Params("chatId"))
	if err != nil {
		return toHTTPError(err)
	}
	s.announceChat(c, sess, active)
	return c.JSON(fiber.Map{
		"active": active,
		"chats":  sess.Chats(),
	})
}

func (s *Server) handleActivateChat(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	info, err := sess.SwitchChat(c.Params("chatId"))
	if err != nil {
		return toHTTPError(err)
	}
	s.announceChat(c, sess, info)
	return c.JSON(info)
}

func (s *Server) handleGetTranscript(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	chatID := c.Params("chatId")
	info, err := sess.Chat(chatID)
	if err != nil {
		return toHTTPError(err)
	}
	messages, err := sess.Transcript(chatID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(TranscriptView{Chat: info, Messages: messages})
}

// announceChat tells websocket watchers which chat is active now
func (s *Server) announceChat(c *fiber.Ctx, sess *session.Session, active session.ChatInfo) {
	s.chat.Notify(c.UserContext(), sess.ID, chat.Event{
		Type:   chat.EventChat,
		ChatID: active.ID,
		Chat:   &active,
		Chats:  sess.Chats(),
	})
}
