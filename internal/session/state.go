package session

// GenerationState holds the transient per-session generation flags
type GenerationState struct {
	IsGenerating  bool   `json:"is_generating"`
	PartialOutput string `json:"partial_output"`
	LastOCRText   string `json:"last_ocr_text,omitempty"`
	// LastOCRSource is the kind of upload the last OCR text came from
	LastOCRSource string `json:"last_ocr_source,omitempty"`
}

// HasOCR reports whether an OCR result is waiting to be sent
func (g GenerationState) HasOCR() bool {
	return g.LastOCRText != ""
}
