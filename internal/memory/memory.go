// Package memory manages the context window of a conversation: size
// estimation and summarization-based trimming against a model's limit.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/conductor/internal/transcript"
)

// Trim thresholds as fractions of the model's context limit. Trimming fires
// only above trimThreshold; below skipThreshold is the guaranteed no-op
// region, so a freshly trimmed transcript is never re-submitted for trimming.
const (
	trimThreshold = 0.8
	skipThreshold = 0.5
)

// summaryPrompt is the instruction prepended to the transcript text for the
// trim request.
const summaryPrompt = "Summarize the following conversation history. " +
	"Preserve key context and the most recent exchanges, drop redundancy. " +
	"Reply with the summary only.\n\nConversation:\n%s\nSummary:"

// Backend is the non-streaming inference call the trim request uses.
type Backend interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Manager estimates transcript size and trims oversized transcripts by
// replacing their content with a model-generated summary.
type Manager struct {
	backend Backend
}

// NewManager creates a Manager.
func NewManager(backend Backend) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("memory: backend is required")
	}
	return &Manager{backend: backend}, nil
}

// EstimateSize returns the whitespace-token count of the serialized
// transcript. This approximates model tokens; exact counting is a non-goal.
func EstimateSize(t *transcript.Transcript) int {
	return len(strings.Fields(t.Text()))
}

// ShouldTrim reports whether a transcript of the given estimated size needs
// trimming against the model limit.
func ShouldTrim(size, modelLimit int) bool {
	return float64(size) > trimThreshold*float64(modelLimit)
}

// Trim summarizes the transcript via the backend and replaces its content
// with the summary, preserving a leading system turn. It is a no-op unless
// the estimated size exceeds 80% of the model limit. On any backend failure or
// empty summary the transcript is left untouched and the error returned;
// callers proceed with the oversized transcript rather than failing the turn.
func (m *Manager) Trim(ctx context.Context, model string, modelLimit int, t *transcript.Transcript) (bool, error) {
	size := EstimateSize(t)
	if float64(size) < skipThreshold*float64(modelLimit) {
		return false, nil
	}
	if !ShouldTrim(size, modelLimit) {
		return false, nil
	}

	summary, err := m.backend.Generate(ctx, model, fmt.Sprintf(summaryPrompt, t.Text()))
	if err != nil {
		return false, fmt.Errorf("memory: trim request: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return false, fmt.Errorf("memory: trim returned empty summary")
	}

	t.ReplaceWithSummary(summary)
	return true, nil
}
