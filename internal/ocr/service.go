package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnsupportedType is returned for uploads that are neither images nor PDFs
var ErrUnsupportedType = errors.New("unsupported file type: upload a PNG, JPEG or PDF")

// Kind is the kind of document an OCR result came from
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
)

// Result is the text extracted from one upload
type Result struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
	// Pages is the page count of a PDF, 1 for images
	Pages int `json:"pages"`
	// OCRPages counts pages whose text came from OCR rather than the embedded text layer
	OCRPages   int     `json:"ocr_pages"`
	Confidence float64 `json:"confidence"`
}

// Empty reports whether no text was found
func (r *Result) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Recorder receives one record per extraction
type Recorder interface {
	RecordOCR(kind string, outcome string, duration time.Duration)
}

// ServiceConfig contains configuration for the OCR service
type ServiceConfig struct {
	Enabled     bool
	Languages   []string
	PageHeaders bool
	DPI         int
}

// Service extracts text from uploaded images and PDFs
type Service struct {
	provider    Provider
	languages   []string
	pageHeaders bool
	recorder    Recorder
	tracer      trace.Tracer
}

// Option configures a Service
type Option func(*Service)

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService creates the OCR service with the Tesseract provider.
// A disabled or unavailable engine still allows PDF text-layer extraction.
func NewService(cfg ServiceConfig, opts ...Option) (*Service, error) {
	var provider Provider
	if cfg.Enabled {
		p, err := NewProvider(ProviderConfig{Type: ProviderTypeTesseract, Languages: cfg.Languages, DPI: cfg.DPI})
		if err != nil {
			return nil, fmt.Errorf("failed to create OCR provider: %w", err)
		}
		if p.IsAvailable() {
			provider = p
		} else {
			log.Warn().Str("provider", p.Name()).Msg("OCR provider not available, only PDF text layers will be read")
		}
	} else {
		log.Info().Msg("OCR engine disabled")
	}

	s := NewServiceWithProvider(provider, cfg, opts...)
	if provider != nil {
		log.Info().
			Str("provider", provider.Name()).
			Strs("languages", s.languages).
			Bool("page_headers", cfg.PageHeaders).
			Msg("OCR service initialized")
	}
	return s, nil
}

// NewServiceWithProvider creates the service around an existing provider, which may be nil
func NewServiceWithProvider(provider Provider, cfg ServiceConfig, opts ...Option) *Service {
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	s := &Service{
		provider:    provider,
		languages:   languages,
		pageHeaders: cfg.PageHeaders,
		tracer:      otel.Tracer("debai/ocr"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EngineAvailable reports whether image OCR can run
func (s *Service) EngineAvailable() bool {
	return s.provider != nil
}

// Languages returns the OCR languages
func (s *Service) Languages() []string {
	return s.languages
}

// Close releases the provider
func (s *Service) Close() error {
	if s.provider != nil {
		return s.provider.Close()
	}
	return nil
}

// DetectKind classifies an upload by content, using the file name only when sniffing is inconclusive
func DetectKind(data []byte, filename string) (Kind, error) {
	switch ct := http.DetectContentType(data); {
	case ct == "application/pdf":
		return KindPDF, nil
	case ct == "image/png", ct == "image/jpeg":
		return KindImage, nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, nil
	case ".png", ".jpg", ".jpeg":
		return KindImage, nil
	}
	return "", ErrUnsupportedType
}

// Extract detects the upload kind and extracts its text
func (s *Service) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	kind, err := DetectKind(data, filename)
	if err != nil {
		return nil, err
	}
	if kind == KindPDF {
		return s.ExtractPDF(ctx, data)
	}
	return s.ExtractImage(ctx, data)
}

// ExtractImage runs OCR on one image
func (s *Service) ExtractImage(ctx context.Context, data []byte) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "ocr.extract_image")
	defer span.End()
	start := time.Now()

	if s.provider == nil {
		s.record(KindImage, "unavailable", start)
		return nil, ErrOCRUnavailable
	}

	page, err := s.provider.ExtractTextFromImage(ctx, data, s.languages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.record(KindImage, "failed", start)
		return nil, fmt.Errorf("OCR extraction failed: %w", err)
	}

	res := &Result{
		Kind:       KindImage,
		Text:       strings.TrimSpace(page.Text),
		Pages:      1,
		OCRPages:   1,
		Confidence: page.Confidence,
	}
	s.finish(span, res, start)
	return res, nil
}

// ExtractPDF reads each page's embedded text and falls back to
// rasterize-then-OCR for pages without usable text. Pages that still yield
// nothing are skipped.
func (s *Service) ExtractPDF(ctx context.Context, data []byte) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "ocr.extract_pdf")
	defer span.End()
	start := time.Now()

	texts, err := readPageTexts(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.record(KindPDF, "failed", start)
		return nil, err
	}

	res := &Result{Kind: KindPDF, Pages: len(texts)}
	var parts []string
	var confidence float64
	counted := 0

	for i, text := range texts {
		pageNum := i + 1
		conf := 1.0

		if !IsUsableText(text) {
			text = ""
			if s.provider != nil {
				page, err := s.provider.ExtractTextFromPDFPage(ctx, data, pageNum, s.languages)
				if err != nil {
					log.Warn().Err(err).Int("page", pageNum).Msg("OCR failed for page, continuing with others")
				} else if page.Text != "" {
					text = page.Text
					conf = page.Confidence
					res.OCRPages++
				}
			}
		}

		if text == "" {
			continue
		}
		confidence += conf
		counted++

		if s.pageHeaders {
			parts = append(parts, fmt.Sprintf("----- Page %d -----\n%s", pageNum, text))
		} else {
			parts = append(parts, text)
		}
	}

	sep := "\n"
	if s.pageHeaders {
		sep = "\n\n"
	}
	res.Text = strings.Join(parts, sep)
	if counted > 0 {
		res.Confidence = confidence / float64(counted)
	}

	span.SetAttributes(attribute.Int("ocr.pages", res.Pages), attribute.Int("ocr.ocr_pages", res.OCRPages))
	s.finish(span, res, start)
	return res, nil
}

func (s *Service) finish(span trace.Span, res *Result, start time.Time) {
	outcome := "success"
	if res.Empty() {
		outcome = "empty"
	}
	span.SetAttributes(attribute.Int("ocr.text_length", len(res.Text)))
	s.record(res.Kind, outcome, start)

	log.Debug().
		Str("kind", string(res.Kind)).
		Int("pages", res.Pages).
		Int("ocr_pages", res.OCRPages).
		Float64("confidence", res.Confidence).
		Int("text_length", len(res.Text)).
		Msg("OCR extraction completed")
}

func (s *Service) record(kind Kind, outcome string, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordOCR(string(kind), outcome, time.Since(start))
	}
}
