//go:build cgo && ocr

package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"
)

// TesseractProvider implements OCR with Tesseract through gosseract.
// PDF pages are rasterized with pdftoppm from poppler-utils.
type TesseractProvider struct {
	name             string
	defaultLanguages []string
	dpi              int
	available        bool
	pdftoppmPath     string
}

// NewTesseractProvider creates a Tesseract OCR provider
func NewTesseractProvider(cfg ProviderConfig) (*TesseractProvider, error) {
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = 300
	}

	tesseractPath, err := exec.LookPath("tesseract")
	available := err == nil
	pdftoppmPath, _ := exec.LookPath("pdftoppm")

	if !available {
		log.Warn().Msg("Tesseract not found in PATH, OCR will be unavailable")
	} else {
		log.Debug().
			Str("tesseract_path", tesseractPath).
			Str("pdftoppm_path", pdftoppmPath).
			Strs("languages", languages).
			Int("dpi", dpi).
			Msg("Tesseract provider initialized")
	}

	return &TesseractProvider{
		name:             "tesseract",
		defaultLanguages: languages,
		dpi:              dpi,
		available:        available,
		pdftoppmPath:     pdftoppmPath,
	}, nil
}

func (p *TesseractProvider) Name() string {
	return p.name
}

func (p *TesseractProvider) Type() ProviderType {
	return ProviderTypeTesseract
}

func (p *TesseractProvider) IsAvailable() bool {
	return p.available
}

func (p *TesseractProvider) Close() error {
	return nil
}

func (p *TesseractProvider) ExtractTextFromImage(ctx context.Context, image []byte, languages []string) (*PageText, error) {
	if !p.available {
		return nil, ErrOCRUnavailable
	}
	if len(languages) == 0 {
		languages = p.defaultLanguages
	}
	return p.recognize(ctx, image, languages)
}

func (p *TesseractProvider) ExtractTextFromPDFPage(ctx context.Context, pdfData []byte, page int, languages []string) (*PageText, error) {
	if !p.available {
		return nil, ErrOCRUnavailable
	}
	if p.pdftoppmPath == "" {
		return nil, fmt.Errorf("pdftoppm (poppler-utils) is required for PDF OCR but not found")
	}
	if len(languages) == 0 {
		languages = p.defaultLanguages
	}

	png, err := p.rasterizePage(ctx, pdfData, page)
	if err != nil {
		return nil, fmt.Errorf("failed to rasterize page %d: %w", page, err)
	}
	return p.recognize(ctx, png, languages)
}

// rasterizePage renders a single page to PNG bytes
func (p *TesseractProvider) rasterizePage(ctx context.Context, pdfData []byte, page int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "debai-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, pdfData, 0600); err != nil {
		return nil, fmt.Errorf("failed to write PDF temp file: %w", err)
	}

	n := strconv.Itoa(page)
	outputPrefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, p.pdftoppmPath,
		"-f", n, "-l", n, "-singlefile", "-png", "-r", strconv.Itoa(p.dpi),
		pdfPath, outputPrefix)

	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w, output: %s", err, string(output))
	}

	return os.ReadFile(outputPrefix + ".png")
}

func (p *TesseractProvider) recognize(ctx context.Context, image []byte, languages []string) (*PageText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), strconv.Itoa(p.dpi)); err != nil {
		return nil, fmt.Errorf("set dpi: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	text = strings.TrimSpace(text)

	return &PageText{
		Text:       text,
		Confidence: wordConfidence(client, text),
	}, nil
}

// wordConfidence averages Tesseract's per-word confidence, falling back to a text heuristic
func wordConfidence(c *gosseract.Client, text string) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return TextQualityScore(text)
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
