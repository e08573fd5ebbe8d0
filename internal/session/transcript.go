package session

import (
	"errors"

	"github.com/debai-app/debai/internal/ai"
)

// ErrSystemTurn is returned when a system turn is appended after other turns
var ErrSystemTurn = errors.New("system turn must be the first turn")

// Transcript is the ordered turn list of one chat.
// Turns are only appended; the single system turn, when present, is first
// and is the only turn that may change or be removed.
type Transcript struct {
	turns []ai.Message
}

// NewTranscript creates a transcript, seeded with a system turn when systemPrompt is set
func NewTranscript(systemPrompt string) *Transcript {
	t := &Transcript{}
	if systemPrompt != "" {
		t.turns = append(t.turns, ai.Message{Role: ai.RoleSystem, Content: systemPrompt})
	}
	return t
}

// Append adds a turn at the end
func (t *Transcript) Append(role ai.Role, content string) error {
	if role == ai.RoleSystem && len(t.turns) > 0 {
		return ErrSystemTurn
	}
	t.turns = append(t.turns, ai.Message{Role: role, Content: content})
	return nil
}

// SetSystem overwrites the system turn in place, inserting it first if absent.
// An empty content removes the system turn.
func (t *Transcript) SetSystem(content string) {
	hasSystem := len(t.turns) > 0 && t.turns[0].Role == ai.RoleSystem
	switch {
	case content == "" && hasSystem:
		t.turns = t.turns[1:]
	case content == "":
	case hasSystem:
		t.turns[0].Content = content
	default:
		t.turns = append([]ai.Message{{Role: ai.RoleSystem, Content: content}}, t.turns...)
	}
}

// Messages returns a copy of the turns
func (t *Transcript) Messages() []ai.Message {
	out := make([]ai.Message, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns, system turn included
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Last returns the final turn
func (t *Transcript) Last() (ai.Message, bool) {
	if len(t.turns) == 0 {
		return ai.Message{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// CountRole returns how many turns have the given role
func (t *Transcript) CountRole(role ai.Role) int {
	n := 0
	for _, m := range t.turns {
		if m.Role == role {
			n++
		}
	}
	return n
}

// FirstUser returns the content of the first user turn
func (t *Transcript) FirstUser() (string, bool) {
	for _, m := range t.turns {
		if m.Role == ai.RoleUser {
			return m.Content, true
		}
	}
	return "", false
}
