//go:build !cgo || !ocr

package ocr

import (
	"context"
)

// TesseractProvider is a stub for builds without Tesseract/CGO support
type TesseractProvider struct {
	name string
}

// NewTesseractProvider creates a stub provider that reports unavailability
func NewTesseractProvider(cfg ProviderConfig) (*TesseractProvider, error) {
	return &TesseractProvider{
		name: "tesseract (unavailable)",
	}, nil
}

func (p *TesseractProvider) Name() string {
	return p.name
}

func (p *TesseractProvider) Type() ProviderType {
	return ProviderTypeTesseract
}

func (p *TesseractProvider) IsAvailable() bool {
	return false
}

func (p *TesseractProvider) ExtractTextFromImage(ctx context.Context, image []byte, languages []string) (*PageText, error) {
	return nil, ErrOCRUnavailable
}

func (p *TesseractProvider) ExtractTextFromPDFPage(ctx context.Context, pdfData []byte, page int, languages []string) (*PageText, error) {
	return nil, ErrOCRUnavailable
}

func (p *TesseractProvider) Close() error {
	return nil
}
