package ocr

import (
	"context"
	"errors"
)

// ErrOCRUnavailable is returned when no OCR engine is usable in this build or host
var ErrOCRUnavailable = errors.New("OCR not available: built without Tesseract support or tesseract missing")

// ProviderType represents the type of OCR provider
type ProviderType string

const (
	ProviderTypeTesseract ProviderType = "tesseract"
)

// PageText is the OCR output for one image or rasterized page
type PageText struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Provider recognizes text in images and rasterized PDF pages
type Provider interface {
	Name() string
	Type() ProviderType

	// ExtractTextFromImage runs OCR on encoded image bytes (PNG, JPEG)
	ExtractTextFromImage(ctx context.Context, image []byte, languages []string) (*PageText, error)

	// ExtractTextFromPDFPage rasterizes one 1-based page of a PDF and runs OCR on it
	ExtractTextFromPDFPage(ctx context.Context, pdfData []byte, page int, languages []string) (*PageText, error)

	// IsAvailable reports whether the engine can be used
	IsAvailable() bool

	Close() error
}

// ProviderConfig configures an OCR provider
type ProviderConfig struct {
	Type      ProviderType `json:"type"`
	Languages []string     `json:"languages"` // e.g. ["eng", "ben", "hin"]
	DPI       int          `json:"dpi"`
}

// NewProvider creates an OCR provider based on configuration
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case ProviderTypeTesseract:
		return NewTesseractProvider(cfg)
	default:
		return NewTesseractProvider(cfg)
	}
}
