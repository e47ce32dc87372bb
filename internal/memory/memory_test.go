package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/zulandar/conductor/internal/transcript"
)

// fakeBackend records trim requests and returns a canned summary or error.
type fakeBackend struct {
	summary string
	err     error
	calls   int
	prompts []string
}

func (f *fakeBackend) Generate(_ context.Context, model, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

// wordsTranscript builds a transcript whose estimated size is close to n words.
func wordsTranscript(n int) *transcript.Transcript {
	tr := &transcript.Transcript{}
	tr.Append(transcript.RoleUser, strings.TrimSpace(strings.Repeat("word ", n-1)))
	return tr
}

func TestEstimateSize(t *testing.T) {
	tr := transcript.New("be brief")
	tr.Append(transcript.RoleUser, "two plus two")
	// "system: be brief" = 3 tokens, "user: two plus two" = 4 tokens.
	if got := EstimateSize(tr); got != 7 {
		t.Errorf("EstimateSize = %d, want 7", got)
	}
}

func TestShouldTrim_Boundary(t *testing.T) {
	cases := []struct {
		size, limit int
		want        bool
	}{
		{size: 0, limit: 1000, want: false},
		{size: 800, limit: 1000, want: false}, // exactly 0.8 is not over
		{size: 801, limit: 1000, want: true},
		{size: 5000, limit: 1000, want: true},
	}
	for _, c := range cases {
		if got := ShouldTrim(c.size, c.limit); got != c.want {
			t.Errorf("ShouldTrim(%d, %d) = %v, want %v", c.size, c.limit, got, c.want)
		}
	}
}

func TestTrim_NoOpBelowHalfLimit(t *testing.T) {
	fb := &fakeBackend{summary: "unused"}
	m, err := NewManager(fb)
	if err != nil {
		t.Fatal(err)
	}

	tr := wordsTranscript(100)
	before := tr.Text()
	trimmed, err := m.Trim(context.Background(), "phi4:latest", 1000, tr)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if trimmed {
		t.Error("Trim reported work below the skip threshold")
	}
	if fb.calls != 0 {
		t.Errorf("backend called %d times, want 0", fb.calls)
	}
	if tr.Text() != before {
		t.Error("transcript changed in the no-op region")
	}
}

func TestTrim_NoOpBetweenHalfAndTrimThreshold(t *testing.T) {
	fb := &fakeBackend{summary: "unused"}
	m, _ := NewManager(fb)

	// 600 words against a 1000 limit sits between the skip floor and the
	// trim trigger: nothing may fire.
	tr := wordsTranscript(600)
	before := tr.Text()
	trimmed, err := m.Trim(context.Background(), "phi4:latest", 1000, tr)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if trimmed {
		t.Error("Trim reported work below the trim threshold")
	}
	if fb.calls != 0 {
		t.Errorf("backend called %d times, want 0", fb.calls)
	}
	if tr.Text() != before {
		t.Error("transcript changed below the trim threshold")
	}
}

func TestTrim_ReplacesWithSummary(t *testing.T) {
	fb := &fakeBackend{summary: "they talked about math"}
	m, _ := NewManager(fb)

	tr := transcript.New("sys prompt")
	tr.Append(transcript.RoleUser, strings.Repeat("blah ", 900))
	trimmed, err := m.Trim(context.Background(), "phi4:latest", 1000, tr)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if !trimmed {
		t.Fatal("expected a trim")
	}
	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want system + summary", tr.Len())
	}
	if tr.System() != "sys prompt" {
		t.Error("system turn lost in trim")
	}
	if tr.Turns[1].Content != "they talked about math" {
		t.Errorf("summary turn = %+v", tr.Turns[1])
	}
	if fb.calls != 1 || !strings.Contains(fb.prompts[0], "blah blah") {
		t.Errorf("trim prompt missing transcript text (calls=%d)", fb.calls)
	}
}

func TestTrim_BackendFailureLeavesTranscript(t *testing.T) {
	fb := &fakeBackend{err: fmt.Errorf("connection refused")}
	m, _ := NewManager(fb)

	tr := wordsTranscript(900)
	before := tr.Text()
	trimmed, err := m.Trim(context.Background(), "phi4:latest", 1000, tr)
	if err == nil {
		t.Fatal("expected error from failing backend")
	}
	if trimmed {
		t.Error("trimmed = true on failure")
	}
	if tr.Text() != before {
		t.Error("transcript mutated on trim failure")
	}
}

func TestTrim_EmptySummaryLeavesTranscript(t *testing.T) {
	fb := &fakeBackend{summary: "   "}
	m, _ := NewManager(fb)

	tr := wordsTranscript(900)
	before := tr.Text()
	if _, err := m.Trim(context.Background(), "phi4:latest", 1000, tr); err == nil {
		t.Fatal("expected error for empty summary")
	}
	if tr.Text() != before {
		t.Error("transcript mutated on empty summary")
	}
}

// A second trim on an already-summarized transcript only fires once new
// turns push the estimate back over the threshold, and it re-summarizes the
// whole transcript including the prior summary turn.
func TestTrimTwice(t *testing.T) {
	fb := &fakeBackend{summary: "short summary"}
	m, _ := NewManager(fb)

	tr := wordsTranscript(900)
	if _, err := m.Trim(context.Background(), "m", 1000, tr); err != nil {
		t.Fatal(err)
	}

	// Immediately after a trim the transcript sits in the no-op region.
	trimmed, err := m.Trim(context.Background(), "m", 1000, tr)
	if err != nil || trimmed {
		t.Fatalf("second immediate trim: trimmed=%v err=%v", trimmed, err)
	}
	if fb.calls != 1 {
		t.Fatalf("backend calls = %d, want 1", fb.calls)
	}

	// New turns regrow the transcript past the threshold: trim fires again
	// and the prior summary is part of the summarized text.
	tr.Append(transcript.RoleUser, strings.Repeat("more ", 900))
	trimmed, err = m.Trim(context.Background(), "m", 1000, tr)
	if err != nil || !trimmed {
		t.Fatalf("regrown trim: trimmed=%v err=%v", trimmed, err)
	}
	if !strings.Contains(fb.prompts[1], "short summary") {
		t.Error("second trim prompt missing prior summary turn")
	}
}
