package session

import (
	"context"
	"fmt"
	"log"

	"github.com/zulandar/conductor/internal/ollama"
	"github.com/zulandar/conductor/internal/tools"
)

// defaultMaxIterations caps backend round trips within a single turn.
const defaultMaxIterations = 8

// budgetNote is appended to the answer when the iteration cap fires.
const budgetNote = "\n\n[Tool call limit reached. Responding with the information gathered so far.]"

// loopState tracks where the invocation loop is within a turn.
type loopState int

const (
	awaitingModel loopState = iota
	executingTools
	loopDone
)

// StreamBackend is the streaming chat contract the loop drives.
type StreamBackend interface {
	ChatStream(ctx context.Context, model string, messages []ollama.Message, tools []ollama.Tool, onDelta func(ollama.StreamDelta)) error
}

// Loop drives repeated streaming backend calls, executing tools the model
// requests until a final answer emerges or the iteration cap fires.
type Loop struct {
	backend       StreamBackend
	registry      *tools.Registry
	maxIterations int
}

// LoopOpts holds parameters for creating a Loop.
type LoopOpts struct {
	Backend       StreamBackend
	Registry      *tools.Registry
	MaxIterations int // defaults to 8
}

// NewLoop creates a tool-invocation Loop.
func NewLoop(opts LoopOpts) (*Loop, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("session: backend is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("session: tool registry is required")
	}
	l := &Loop{
		backend:       opts.Backend,
		registry:      opts.Registry,
		maxIterations: opts.MaxIterations,
	}
	if l.maxIterations <= 0 {
		l.maxIterations = defaultMaxIterations
	}
	return l, nil
}

// LoopResult is the outcome of one complete turn.
type LoopResult struct {
	Text            string           // full accumulated answer text
	Messages        []ollama.Message // input messages plus assistant and tool turns
	Iterations      int              // backend round trips made
	ToolCalls       int              // tool executions performed
	BudgetExhausted bool             // the iteration cap fired
}

// Run executes the turn. Text deltas are forwarded to onDelta as they arrive.
// Tool calls accumulated during a stream are deduplicated by name and
// serialized arguments; duplicates within the turn execute once. A failing
// tool handler never aborts the loop: its error is recorded as a tool turn
// and the model decides how to proceed.
func (l *Loop) Run(ctx context.Context, model string, messages []ollama.Message, onDelta func(string) error) (LoopResult, error) {
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}

	result := LoopResult{Messages: messages}
	executed := make(map[string]bool) // dedup across the whole turn
	state := awaitingModel

	for state != loopDone {
		if result.Iterations >= l.maxIterations {
			result.BudgetExhausted = true
			result.Text += budgetNote
			if err := onDelta(budgetNote); err != nil {
				log.Printf("session: deliver budget note: %v", err)
			}
			break
		}
		result.Iterations++

		var text string
		var calls []ollama.ToolCall
		err := l.backend.ChatStream(ctx, model, result.Messages, l.registry.Catalog(), func(d ollama.StreamDelta) {
			if d.Content != "" {
				text += d.Content
				result.Text += d.Content
				if err := onDelta(d.Content); err != nil {
					log.Printf("session: deliver delta: %v", err)
				}
			}
			calls = append(calls, d.ToolCalls...)
		})
		if err != nil {
			return result, fmt.Errorf("session: chat stream: %w", err)
		}

		fresh := dedupCalls(calls, executed)
		if len(fresh) == 0 {
			state = loopDone
			break
		}

		state = executingTools
		result.Messages = append(result.Messages, ollama.Message{
			Role:      "assistant",
			Content:   text,
			ToolCalls: fresh,
		})

		for _, call := range fresh {
			content, err := l.registry.Execute(ctx, call)
			if err != nil {
				content = "Error: " + err.Error()
				log.Printf("session: tool %s: %v", call.Function.Name, err)
			}
			result.ToolCalls++
			result.Messages = append(result.Messages, ollama.Message{
				Role:    "tool",
				Content: content,
			})
		}
		state = awaitingModel
	}

	return result, nil
}

// dedupCalls filters out calls already executed this turn, marking the
// survivors as executed.
func dedupCalls(calls []ollama.ToolCall, executed map[string]bool) []ollama.ToolCall {
	var fresh []ollama.ToolCall
	for _, c := range calls {
		key := c.Key()
		if executed[key] {
			continue
		}
		executed[key] = true
		fresh = append(fresh, c)
	}
	return fresh
}
