package ai

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// DefaultChatTitle is the title of a chat before its first exchange
const DefaultChatTitle = "New Chat"

const (
	titlePrompt      = "Generate a short, concise title for this chat based on the user's first message: "
	titleFallbackLen = 4
	titleMaxRunes    = 60
)

// FallbackTitle returns the first four words of text, or DefaultChatTitle
func FallbackTitle(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return DefaultChatTitle
	}
	if len(words) > titleFallbackLen {
		words = words[:titleFallbackLen]
	}
	return strings.Join(words, " ")
}

// GenerateTitle asks the selected backend for a chat title.
// Any failure falls back to FallbackTitle.
func (r *Router) GenerateTitle(ctx context.Context, firstUserText string) string {
	fallback := FallbackTitle(firstUserText)

	backend, ok := r.Select()
	if !ok {
		return fallback
	}
	if c, ok := backend.Provider.(credentialed); ok && !c.HasCredential() {
		return fallback
	}

	resp, err := backend.Provider.Chat(ctx, &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: titlePrompt + firstUserText}},
	})
	if err != nil {
		log.Debug().Err(err).Str("backend", string(backend.Name)).Msg("Title generation failed, using fallback")
		return fallback
	}

	title := cleanTitle(resp.Content)
	if title == "" {
		return fallback
	}
	return title
}

// cleanTitle keeps the first non-empty line, strips markdown and quotes, and bounds length
func cleanTitle(raw string) string {
	var line string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}

	line = strings.TrimLeft(line, "#* ")
	line = strings.TrimPrefix(line, "Title:")
	line = strings.Trim(strings.TrimSpace(line), "\"'`*")
	line = strings.TrimSpace(line)

	if utf8.RuneCountInString(line) > titleMaxRunes {
		runes := []rune(line)
		line = strings.TrimSpace(string(runes[:titleMaxRunes]))
	}
	return line
}
