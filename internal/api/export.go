package api

import (
	"bytes"
	"fmt"

	"github.com/debai-app/debai/internal/ai"
	"github.com/debai-app/debai/internal/export"
	"github.com/gofiber/fiber/v2"
)

// BackendView describes one backend of the preference order
type BackendView struct {
	Name      ai.BackendName `json:"name"`
	Label     string         `json:"label"`
	Family    ai.Family      `json:"family"`
	Available bool           `json:"available"`
}

// handleExportReport renders a chat transcript as a PDF download.
// The active chat is exported unless chat_id names another one.
func (s *Server) handleExportReport(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	messages, err := sess.Transcript(c.Query("chat_id"))
	if err != nil {
		return toHTTPError(err)
	}

	var buf bytes.Buffer
	if err := export.WriteSessionReport(&buf, messages); err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, export.ReportFilename))
	return c.Send(buf.Bytes())
}

// handleCapabilities reports which backends can serve turns and what OCR can do
func (s *Server) handleCapabilities(c *fiber.Ctx) error {
	caps := s.router.Capabilities()

	backends := make([]BackendView, 0, len(s.router.Backends()))
	for _, b := range s.router.Backends() {
		backends = append(backends, BackendView{
			Name:      b.Name,
			Label:     b.Label,
			Family:    b.Family,
			Available: caps.Available(b.Name),
		})
	}

	var selected ai.BackendName
	if b, ok := s.router.Select(); ok {
		selected = b.Name
	}

	ocrInfo := fiber.Map{"engine_available": false}
	if s.ocr != nil {
		ocrInfo = fiber.Map{
			"engine_available": s.ocr.EngineAvailable(),
			"languages":        s.ocr.Languages(),
			"auto_send":        s.config.OCR.AutoSend,
		}
	}

	return c.JSON(fiber.Map{
		"backends": backends,
		"selected": selected,
		"ocr":      ocrInfo,
		"export":   s.config.Export.Enabled,
	})
}
