package ocr

import (
	"regexp"
	"strings"
	"unicode"
)

// Letters plus combining marks, so Indic vowel signs do not split words
var wordPattern = regexp.MustCompile(`[\p{L}\p{M}]{2,}`)

type runeStats struct {
	total     int
	printable int
	control   int
	letters   int
}

func countRunes(text string) runeStats {
	var s runeStats
	for _, r := range text {
		s.total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			s.printable++
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			s.control++
		}
		if unicode.IsLetter(r) {
			s.letters++
		}
	}
	return s
}

// IsUsableText reports whether directly extracted page text is readable.
// Empty text and binary garbage from broken font encodings are not usable,
// and such pages go through OCR instead.
func IsUsableText(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s := countRunes(text)
	if float64(s.control)/float64(s.total) > 0.02 {
		return false
	}
	if float64(s.printable)/float64(s.total) < 0.90 {
		return false
	}
	if s.total < 20 {
		return true
	}

	wordLetters := 0
	for _, w := range wordPattern.FindAllString(text, -1) {
		wordLetters += len([]rune(w))
	}
	return float64(wordLetters)/float64(s.total) >= 0.30
}

// TextQualityScore returns a 0-1 score; higher means more readable text
func TextQualityScore(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	s := countRunes(text)
	return float64(s.printable)/float64(s.total)*0.6 + float64(s.letters)/float64(s.total)*0.4
}
