package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/debai-app/debai/internal/chat"
	"github.com/debai-app/debai/internal/export"
	"github.com/debai-app/debai/internal/ocr"
	"github.com/debai-app/debai/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type sendMessageRequest struct {
	Content string `json:"content"`
}

// OCRResponse is returned by an OCR upload
type OCRResponse struct {
	OCR     *ocr.Result  `json:"ocr"`
	Sent    bool         `json:"sent"`
	Reply   *chat.Result `json:"reply,omitempty"`
	Warning string       `json:"warning,omitempty"`
}

// wantsStream reports whether the client asked for server-sent events
func wantsStream(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), "text/event-stream") || c.QueryBool("stream")
}

// writeSSE writes one event in text/event-stream framing
func writeSSE(w *bufio.Writer, e chat.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
		return err
	}
	return w.Flush()
}

// stream runs cycle after the handler returns, writing every event as SSE.
// A client that goes away stops receiving events; the cycle still completes.
func (s *Server) stream(c *fiber.Ctx, cycle *chat.Cycle, first ...chat.Event) error {
	ctx := c.UserContext()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		gone := false
		write := func(e chat.Event) {
			if gone {
				return
			}
			if err := writeSSE(w, e); err != nil {
				gone = true
				log.Debug().Err(err).Msg("SSE client went away, finishing generation without it")
			}
		}

		for _, e := range first {
			write(e)
		}
		if _, err := cycle.Run(ctx, write); err != nil {
			log.Warn().Err(err).Msg("Streamed generation failed")
		}
	})
	return nil
}

// reply answers a started cycle either as an SSE stream or as one JSON result
func (s *Server) reply(c *fiber.Ctx, cycle *chat.Cycle) error {
	if wantsStream(c) {
		return s.stream(c, cycle)
	}
	result, err := cycle.Run(c.UserContext(), nil)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(result)
}

// handleSendMessage appends a user turn and generates the reply
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	cycle, err := s.chat.StartSend(c.Params("id"), req.Content)
	if err != nil {
		return toHTTPError(err)
	}
	return s.reply(c, cycle)
}

// handleOCRUpload extracts text from an image or PDF and adds it to the active chat
func (s *Server) handleOCRUpload(c *fiber.Ctx) error {
	if s.ocr == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, ocr.ErrOCRUnavailable.Error())
	}
	sessionID := c.Params("id")
	if _, err := s.chat.Sessions().Get(sessionID); err != nil {
		return toHTTPError(err)
	}

	header, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file is required")
	}
	f, err := header.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to read upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to read upload")
	}

	ctx := c.UserContext()
	result, err := s.ocr.Extract(ctx, data, header.Filename)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Str("filename", header.Filename).Msg("OCR extraction failed")
		if errors.Is(err, ocr.ErrUnsupportedType) || errors.Is(err, ocr.ErrOCRUnavailable) {
			return toHTTPError(err)
		}
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	cycle, err := s.chat.StartOCR(ctx, sessionID, result.Text, string(result.Kind), nil)
	switch {
	case errors.Is(err, chat.ErrNoText):
		return c.JSON(OCRResponse{OCR: result, Warning: chat.NoTextWarning})
	case err != nil:
		return toHTTPError(err)
	case cycle == nil:
		return c.JSON(OCRResponse{OCR: result})
	}

	if wantsStream(c) {
		return s.stream(c, cycle, chat.Event{
			Type:      chat.EventOCR,
			SessionID: sessionID,
			ChatID:    cycle.ChatID(),
			Content:   result.Text,
		})
	}

	reply, err := cycle.Run(ctx, nil)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(OCRResponse{OCR: result, Sent: true, Reply: reply})
}

// handleSendLastOCR generates a reply for the most recent OCR text
func (s *Server) handleSendLastOCR(c *fiber.Ctx) error {
	cycle, err := s.chat.StartLastOCR(c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return s.reply(c, cycle)
}

// handleDownloadLastOCR returns the most recent OCR text as a text file
func (s *Server) handleDownloadLastOCR(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	state := sess.State()
	if !state.HasOCR() {
		return toHTTPError(session.ErrNoOCR)
	}

	filename := export.OCRTextFilename(ocr.Kind(state.LastOCRSource))
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.SendString(state.LastOCRText)
}
