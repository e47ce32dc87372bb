// Package session drives one conversation turn end to end: transcript
// rehydration, context trimming, the tool-invocation loop, streamed delivery,
// and attachment lifecycle.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/zulandar/conductor/internal/attachments"
	"github.com/zulandar/conductor/internal/extract"
	"github.com/zulandar/conductor/internal/memory"
	"github.com/zulandar/conductor/internal/ollama"
	"github.com/zulandar/conductor/internal/relay"
	"github.com/zulandar/conductor/internal/tools"
	"github.com/zulandar/conductor/internal/transcript"
)

const (
	// thinkingText is the placeholder posted while the model works. It
	// becomes render slot 0 and is edited in place.
	thinkingText = "Thinking..."

	// defaultRetention is how long unreferenced payload files are kept.
	defaultRetention = time.Hour
)

// Conn is the transport surface the orchestrator needs: render delivery plus
// attachment download.
type Conn interface {
	Transport
	Download(ctx context.Context, att relay.AttachmentRef) ([]byte, error)
}

// ModelCatalog answers which models exist and how large their context is.
type ModelCatalog interface {
	HasModel(name string) bool
	ModelLimit(name string) int
}

// TurnRecord summarizes one completed turn for persistence.
type TurnRecord struct {
	Conversation string
	Model        string
	Duration     time.Duration
	PromptSize   int
	ResponseSize int
	ToolCalls    int
	Status       string // "ok", "error", or "budget_exhausted"
}

// Recorder persists turn records. Implementations must not block the turn.
type Recorder interface {
	RecordTurn(rec TurnRecord)
}

// Orchestrator owns per-conversation state and serializes turns per
// conversation key. Turns for different keys run concurrently.
type Orchestrator struct {
	conn         Conn
	store        *transcript.Store
	cache        *attachments.Cache
	memory       *memory.Manager
	loop         *Loop
	catalog      ModelCatalog
	recorder     Recorder
	systemPrompt string
	defaultModel string
	retention    time.Duration

	mu    sync.Mutex
	convs map[string]*conversation
}

// conversation holds the mutable per-key state. Its mutex serializes turns
// for one key.
type conversation struct {
	mu    sync.Mutex
	model string
}

// OrchestratorOpts holds parameters for creating an Orchestrator.
type OrchestratorOpts struct {
	Conn         Conn
	Store        *transcript.Store
	Cache        *attachments.Cache
	Memory       *memory.Manager
	Backend      StreamBackend
	Registry     *tools.Registry
	Catalog      ModelCatalog
	DefaultModel string

	SystemPrompt  string
	MaxIterations int
	Retention     time.Duration // artifact retention window, defaults to one hour
	Recorder      Recorder      // optional
}

// NewOrchestrator creates a session Orchestrator.
func NewOrchestrator(opts OrchestratorOpts) (*Orchestrator, error) {
	if opts.Conn == nil {
		return nil, fmt.Errorf("session: conn is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("session: transcript store is required")
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("session: attachment cache is required")
	}
	if opts.Memory == nil {
		return nil, fmt.Errorf("session: memory manager is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("session: model catalog is required")
	}
	if opts.DefaultModel == "" {
		return nil, fmt.Errorf("session: default model is required")
	}

	loop, err := NewLoop(LoopOpts{
		Backend:       opts.Backend,
		Registry:      opts.Registry,
		MaxIterations: opts.MaxIterations,
	})
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		conn:         opts.Conn,
		store:        opts.Store,
		cache:        opts.Cache,
		memory:       opts.Memory,
		loop:         loop,
		catalog:      opts.Catalog,
		recorder:     opts.Recorder,
		systemPrompt: opts.SystemPrompt,
		defaultModel: opts.DefaultModel,
		retention:    opts.Retention,
		convs:        make(map[string]*conversation),
	}
	if o.retention <= 0 {
		o.retention = defaultRetention
	}
	return o, nil
}

// Key derives the conversation key for an inbound message.
func Key(msg relay.InboundMessage) string {
	return msg.Platform + "-" + msg.ChannelID
}

// HandleTurn runs one inbound turn end to end. Turns on the same
// conversation key are serialized; callers may invoke this concurrently.
func (o *Orchestrator) HandleTurn(ctx context.Context, msg relay.InboundMessage) error {
	key := Key(msg)
	conv := o.conversation(key)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	model := conv.model
	start := time.Now()

	placeholderID, err := o.conn.Send(ctx, msg.ChannelID, thinkingText)
	if err != nil {
		return fmt.Errorf("session: post placeholder: %w", err)
	}

	o.ingestAttachments(ctx, key, msg)

	o.cache.Tick(key)

	t, err := o.store.Load(key)
	if err != nil {
		o.editOrLog(ctx, msg.ChannelID, placeholderID, "Sorry, conversation storage is unavailable right now.")
		o.record(key, model, start, 0, 0, 0, "error")
		return fmt.Errorf("session: load transcript: %w", err)
	}
	if t.Len() == 0 && o.systemPrompt != "" {
		t = transcript.New(o.systemPrompt)
	}

	limit := o.catalog.ModelLimit(model)
	if _, err := o.memory.Trim(ctx, model, limit, t); err != nil {
		log.Printf("session: trim %s: %v", key, err)
	}

	input, docs := o.mergeDocuments(key, msg.Text)

	messages := o.buildMessages(key, t, input)

	agg, err := NewAggregator(AggregatorOpts{
		Transport:     o.conn,
		ChannelID:     msg.ChannelID,
		PlaceholderID: placeholderID,
	})
	if err != nil {
		return err
	}

	res, err := o.loop.Run(ctx, model, messages, func(delta string) error {
		return agg.Write(ctx, delta)
	})
	if err != nil {
		o.editOrLog(ctx, msg.ChannelID, placeholderID, "Sorry, I could not reach the model backend. Please try again.")
		o.record(key, model, start, memory.EstimateSize(t), 0, res.ToolCalls, "error")
		return err
	}

	if res.Text == "" {
		o.editOrLog(ctx, msg.ChannelID, placeholderID, "(no response)")
	} else if err := agg.Flush(ctx); err != nil {
		log.Printf("session: final render %s: %v", key, err)
	}

	// Persist the completed turn: user input, tool results, final answer.
	t.Append(transcript.RoleUser, input)
	for _, m := range res.Messages[len(messages):] {
		if m.Role == "tool" {
			t.Append(transcript.RoleTool, m.Content)
		}
	}
	t.Append(transcript.RoleAssistant, res.Text)
	if err := o.store.Save(key, t); err != nil {
		log.Printf("session: save transcript %s: %v", key, err)
		return fmt.Errorf("session: save transcript: %w", err)
	}

	// Post-turn cleanup: consumed documents are single-use, and stale
	// unreferenced payloads age out.
	for _, d := range docs {
		o.cache.RemovePayload(d)
	}
	o.cache.SweepArtifacts(o.retention)

	status := "ok"
	if res.BudgetExhausted {
		status = "budget_exhausted"
	}
	o.record(key, model, start, memory.EstimateSize(t), len(res.Text), res.ToolCalls, status)
	return nil
}

// SwitchModel changes the conversation's model. Unknown identifiers are
// rejected without side effects.
func (o *Orchestrator) SwitchModel(key, name string) error {
	if !o.catalog.HasModel(name) {
		return fmt.Errorf("session: unknown model %q", name)
	}
	conv := o.conversation(key)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.model = name
	return nil
}

// CurrentModel returns the conversation's active model.
func (o *Orchestrator) CurrentModel(key string) string {
	conv := o.conversation(key)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.model
}

// Reset clears the conversation's transcript, attachments, and derived
// artifacts. Idempotent.
func (o *Orchestrator) Reset(key string) error {
	conv := o.conversation(key)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	if err := o.store.Clear(key); err != nil {
		return fmt.Errorf("session: reset transcript: %w", err)
	}
	if err := o.cache.Clear(key); err != nil {
		return fmt.Errorf("session: reset attachments: %w", err)
	}
	return nil
}

// Status reports the conversation's model, transcript size, and cached images.
func (o *Orchestrator) Status(key string) (model string, size, images int) {
	conv := o.conversation(key)
	conv.mu.Lock()
	model = conv.model
	conv.mu.Unlock()

	t, err := o.store.Load(key)
	if err == nil {
		size = memory.EstimateSize(t)
	}
	return model, size, len(o.cache.Images(key))
}

// conversation returns the per-key state, creating it on first use.
func (o *Orchestrator) conversation(key string) *conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.convs[key]
	if !ok {
		c = &conversation{model: o.defaultModel}
		o.convs[key] = c
	}
	return c
}

// ingestAttachments downloads inbound uploads and routes them into the cache.
// Images are stored raw; documents are converted to text first. Failures are
// logged and skipped so one bad upload never fails the turn.
func (o *Orchestrator) ingestAttachments(ctx context.Context, key string, msg relay.InboundMessage) {
	for _, att := range msg.Attachments {
		payload, err := o.conn.Download(ctx, att)
		if err != nil {
			log.Printf("session: download %s: %v", att.Filename, err)
			continue
		}

		switch {
		case extract.IsImage(att.Filename):
			if _, err := o.cache.AddImage(key, att.Filename, payload); err != nil {
				log.Printf("session: cache image %s: %v", att.Filename, err)
			}
		case extract.IsDocument(att.Filename):
			text, err := extract.Text(payload, att.Filename)
			if err != nil {
				log.Printf("session: extract %s: %v", att.Filename, err)
				continue
			}
			if _, err := o.cache.AddDocument(key, att.Filename, []byte(text)); err != nil {
				log.Printf("session: cache document %s: %v", att.Filename, err)
			}
		default:
			log.Printf("session: ignoring unsupported attachment %s", att.Filename)
		}
	}
}

// mergeDocuments prefixes pending single-use document text onto the user's
// input. The consumed entries are returned so the caller can remove their
// payloads after the turn.
func (o *Orchestrator) mergeDocuments(key, input string) (string, []attachments.Entry) {
	docs := o.cache.ConsumeDocuments(key)
	if len(docs) == 0 {
		return input, nil
	}

	merged := ""
	for _, d := range docs {
		text, err := os.ReadFile(d.Ref)
		if err != nil {
			log.Printf("session: read document %s: %v", d.Filename, err)
			continue
		}
		merged += fmt.Sprintf("Content of %s:\n%s\n\n", d.Filename, text)
	}
	return merged + input, docs
}

// buildMessages converts the transcript into backend messages and attaches
// the conversation's cached images to the new user turn.
func (o *Orchestrator) buildMessages(key string, t *transcript.Transcript, input string) []ollama.Message {
	var messages []ollama.Message
	for _, turn := range t.Turns {
		messages = append(messages, ollama.Message{Role: turn.Role, Content: turn.Content})
	}

	user := ollama.Message{Role: "user", Content: input}
	for _, img := range o.cache.Images(key) {
		payload, err := os.ReadFile(img.Ref)
		if err != nil {
			log.Printf("session: read image %s: %v", img.Filename, err)
			continue
		}
		user.Images = append(user.Images, base64.StdEncoding.EncodeToString(payload))
	}
	return append(messages, user)
}

// editOrLog edits a message and logs any delivery failure.
func (o *Orchestrator) editOrLog(ctx context.Context, channelID, messageID, text string) {
	if err := o.conn.Edit(ctx, channelID, messageID, text); err != nil {
		log.Printf("session: edit %s: %v", messageID, err)
	}
}

// record hands a turn summary to the recorder, if one is configured.
func (o *Orchestrator) record(key, model string, start time.Time, promptSize, responseSize, toolCalls int, status string) {
	if o.recorder == nil {
		return
	}
	o.recorder.RecordTurn(TurnRecord{
		Conversation: key,
		Model:        model,
		Duration:     time.Since(start),
		PromptSize:   promptSize,
		ResponseSize: responseSize,
		ToolCalls:    toolCalls,
		Status:       status,
	})
}
