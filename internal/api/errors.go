package api

import (
	"errors"

	"github.com/debai-app/debai/internal/chat"
	"github.com/debai-app/debai/internal/ocr"
	"github.com/debai-app/debai/internal/session"
	"github.com/gofiber/fiber/v2"
)

// toHTTPError maps service errors onto HTTP statuses
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrChatNotFound),
		errors.Is(err, session.ErrNoOCR):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrGenerationInProgress),
		errors.Is(err, session.ErrTooManyChats):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInvalidTitle),
		errors.Is(err, chat.ErrEmptyMessage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ocr.ErrUnsupportedType):
		return fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ocr.ErrOCRUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
