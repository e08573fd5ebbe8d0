package ocr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUsableText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{"empty", "", false},
		{"whitespace", " \n\t ", false},
		{"short word", "Total", true},
		{"english paragraph", "The quick brown fox jumps over the lazy dog near the river bank.", true},
		{"bengali paragraph", "আমি বাংলায় গান গাই, আমি বাংলার গান গাই।", true},
		{"hindi paragraph", "आप कैसे हैं, मैं ठीक हूँ धन्यवाद", true},
		{"control garbage", strings.Repeat("\x01\x02ab", 10), false},
		{"symbol soup", strings.Repeat("#$%^&*()[]{}|~ 1234", 3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsUsableText(tt.text))
		})
	}
}

func TestTextQualityScore(t *testing.T) {
	assert.Equal(t, 0.0, TextQualityScore(""))
	assert.InDelta(t, 1.0, TextQualityScore("abcdef"), 0.0001)
	assert.Less(t, TextQualityScore("12 34 56"), TextQualityScore("ab cd ef"))
}
