// Package transcript holds per-conversation message history as an ordered
// list of role-tagged turns, persisted one JSON file per conversation key.
package transcript

import (
	"fmt"
	"strings"
)

// Turn roles. A system turn, if present, is always first; user and assistant
// turns alternate except for tool turns interleaved during a tool cycle.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one role-tagged message unit within a transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is an ordered sequence of turns.
type Transcript struct {
	Turns []Turn
}

// New returns an empty transcript, optionally seeded with a system turn.
func New(systemPrompt string) *Transcript {
	t := &Transcript{}
	if systemPrompt != "" {
		t.Turns = append(t.Turns, Turn{Role: RoleSystem, Content: systemPrompt})
	}
	return t
}

// Append adds a turn to the end of the transcript.
func (t *Transcript) Append(role, content string) {
	t.Turns = append(t.Turns, Turn{Role: role, Content: content})
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	return len(t.Turns)
}

// System returns the leading system turn content, or "" if there is none.
func (t *Transcript) System() string {
	if len(t.Turns) > 0 && t.Turns[0].Role == RoleSystem {
		return t.Turns[0].Content
	}
	return ""
}

// ReplaceWithSummary drops every turn except a leading system turn (when
// present) and installs the summary as a single assistant turn.
func (t *Transcript) ReplaceWithSummary(summary string) {
	system := t.System()
	t.Turns = t.Turns[:0]
	if system != "" {
		t.Turns = append(t.Turns, Turn{Role: RoleSystem, Content: system})
	}
	t.Turns = append(t.Turns, Turn{Role: RoleAssistant, Content: summary})
}

// Text renders the transcript as role-prefixed lines. This serialized form
// is what the size estimate and the summarization prompt operate on.
func (t *Transcript) Text() string {
	var b strings.Builder
	for _, turn := range t.Turns {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}

// Clone returns a deep copy of the transcript.
func (t *Transcript) Clone() *Transcript {
	c := &Transcript{Turns: make([]Turn, len(t.Turns))}
	copy(c.Turns, t.Turns)
	return c
}
