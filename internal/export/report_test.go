package export

import (
	"bytes"
	"testing"

	"github.com/debai-app/debai/internal/ai"
	"github.com/debai-app/debai/internal/ocr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToLatin1(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"ascii", "hello", "hello"},
		{"latin-1 accents", "café", "caf\xe9"},
		{"bengali", "আমি", "???"},
		{"mixed", "ok ✓ done", "ok ? done"},
		{"newlines kept", "a\nb", "a\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToLatin1(tt.in))
		})
	}
}

func TestWriteSessionReport(t *testing.T) {
	t.Run("renders a pdf", func(t *testing.T) {
		var buf bytes.Buffer
		err := WriteSessionReport(&buf, []ai.Message{
			{Role: ai.RoleSystem, Content: "You are DebAI"},
			{Role: ai.RoleUser, Content: "tumi kemon acho"},
			{Role: ai.RoleAssistant, Content: "আমি ভালো আছি"},
		})
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
		assert.Contains(t, buf.String(), "%%EOF")
	})

	t.Run("long transcripts paginate", func(t *testing.T) {
		var turns []ai.Message
		for i := 0; i < 60; i++ {
			turns = append(turns,
				ai.Message{Role: ai.RoleUser, Content: "question"},
				ai.Message{Role: ai.RoleAssistant, Content: "answer"},
			)
		}

		var short, long bytes.Buffer
		require.NoError(t, WriteSessionReport(&short, turns[:2]))
		require.NoError(t, WriteSessionReport(&long, turns))
		assert.Equal(t, 1, pageCount(short.Bytes()))
		assert.Greater(t, pageCount(long.Bytes()), 1)
	})

	t.Run("empty transcript still renders", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteSessionReport(&buf, nil))
		assert.NotZero(t, buf.Len())
	})
}

func pageCount(pdf []byte) int {
	return bytes.Count(pdf, []byte("/Type /Page")) - bytes.Count(pdf, []byte("/Type /Pages"))
}

func TestFilenames(t *testing.T) {
	assert.Equal(t, "pdf_ocr_output.txt", OCRTextFilename(ocr.KindPDF))
	assert.Equal(t, "image_ocr_output.txt", OCRTextFilename(ocr.KindImage))
	assert.Equal(t, "debai_report.pdf", ReportFilename)
}
