package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/conductor/internal/attachments"
	"github.com/zulandar/conductor/internal/memory"
	"github.com/zulandar/conductor/internal/ollama"
	"github.com/zulandar/conductor/internal/relay"
	"github.com/zulandar/conductor/internal/transcript"
)

// chatBackend implements both the streaming loop contract and the
// non-streaming Generate used for trimming.
type chatBackend struct {
	scriptedBackend
	generated string
}

func (b *chatBackend) Generate(ctx context.Context, model, prompt string) (string, error) {
	return b.generated, nil
}

type fixedCatalog struct {
	models map[string]int
}

func (c fixedCatalog) HasModel(name string) bool { return c.models[name] > 0 }
func (c fixedCatalog) ModelLimit(name string) int {
	if l, ok := c.models[name]; ok {
		return l
	}
	return 4096
}

type capturingRecorder struct {
	mu   sync.Mutex
	recs []TurnRecord
}

func (r *capturingRecorder) RecordTurn(rec TurnRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

type orchestratorFixture struct {
	orch     *Orchestrator
	mock     *relay.MockAdapter
	backend  *chatBackend
	store    *transcript.Store
	cache    *attachments.Cache
	recorder *capturingRecorder
}

func newFixture(t *testing.T, backend *chatBackend) *orchestratorFixture {
	t.Helper()
	dir := t.TempDir()

	mock := relay.NewMockAdapter()
	if err := mock.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	store, err := transcript.NewStore(filepath.Join(dir, "history"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	cache, err := attachments.NewCache(attachments.CacheOpts{Dir: filepath.Join(dir, "attachments")})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	mem, err := memory.NewManager(backend)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	recorder := &capturingRecorder{}

	orch, err := NewOrchestrator(OrchestratorOpts{
		Conn:         mock,
		Store:        store,
		Cache:        cache,
		Memory:       mem,
		Backend:      backend,
		Registry:     mathRegistry(t),
		Catalog:      fixedCatalog{models: map[string]int{"phi4": 16000, "mistral": 8000}},
		DefaultModel: "phi4",
		SystemPrompt: "You are a helpful assistant.",
		Recorder:     recorder,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return &orchestratorFixture{orch: orch, mock: mock, backend: backend, store: store, cache: cache, recorder: recorder}
}

func inbound(text string) relay.InboundMessage {
	return relay.InboundMessage{
		Platform:  "discord",
		ChannelID: "C1",
		UserID:    "U1",
		UserName:  "alice",
		Text:      text,
		Mentioned: true,
		Timestamp: time.Now(),
	}
}

func TestTurnWithToolCall(t *testing.T) {
	backend := &chatBackend{scriptedBackend: scriptedBackend{script: [][]ollama.StreamDelta{
		{{ToolCalls: []ollama.ToolCall{mathCall(2, 2)}}, {Done: true}},
		{{Content: "2+2 is 4."}, {Done: true}},
	}}}
	f := newFixture(t, backend)
	msg := inbound("2+2")

	if err := f.orch.HandleTurn(context.Background(), msg); err != nil {
		t.Fatalf("handle turn: %v", err)
	}

	// The placeholder was edited into the final answer.
	sent := f.mock.Sent()
	if len(sent) != 1 || sent[0].Text != thinkingText {
		t.Fatalf("sent = %+v", sent)
	}
	text, _ := f.mock.LastText(sent[0].MessageID)
	if text != "2+2 is 4." {
		t.Errorf("final placeholder text = %q", text)
	}

	// The tool turn lands in the transcript before the assistant turn.
	saved, err := f.store.Load(Key(msg))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var roles []string
	for _, turn := range saved.Turns {
		roles = append(roles, turn.Role)
	}
	want := []string{transcript.RoleSystem, transcript.RoleUser, transcript.RoleTool, transcript.RoleAssistant}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Errorf("roles = %v, want %v", roles, want)
	}
	if saved.Turns[2].Content != "4" {
		t.Errorf("tool turn = %q, want 4", saved.Turns[2].Content)
	}
	if saved.Turns[3].Content != "2+2 is 4." {
		t.Errorf("assistant turn = %q", saved.Turns[3].Content)
	}
}

func TestTurnRecorded(t *testing.T) {
	backend := &chatBackend{scriptedBackend: scriptedBackend{script: [][]ollama.StreamDelta{
		{{Content: "hello"}, {Done: true}},
	}}}
	f := newFixture(t, backend)

	if err := f.orch.HandleTurn(context.Background(), inbound("hi")); err != nil {
		t.Fatalf("handle turn: %v", err)
	}

	if len(f.recorder.recs) != 1 {
		t.Fatalf("records = %d, want 1", len(f.recorder.recs))
	}
	rec := f.recorder.recs[0]
	if rec.Status != "ok" || rec.Model != "phi4" || rec.ResponseSize != len("hello") {
		t.Errorf("record = %+v", rec)
	}
}

func TestBackendFailureLeavesTranscriptUntouched(t *testing.T) {
	backend := &chatBackend{scriptedBackend: scriptedBackend{err: fmt.Errorf("connection refused")}}
	f := newFixture(t, backend)
	msg := inbound("hi")

	if err := f.orch.HandleTurn(context.Background(), msg); err == nil {
		t.Fatal("expected backend error")
	}

	saved, err := f.store.Load(Key(msg))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved.Len() != 0 {
		t.Errorf("transcript turns = %d, want 0 after aborted turn", saved.Len())
	}

	// The user saw an apology via the placeholder.
	sent := f.mock.Sent()
	text, _ := f.mock.LastText(sent[0].MessageID)
	if !strings.Contains(text, "could not reach") {
		t.Errorf("placeholder text = %q", text)
	}
}

func TestDocumentMergedAndConsumed(t *testing.T) {
	backend := &chatBackend{scriptedBackend: scriptedBackend{script: [][]ollama.StreamDelta{
		{{Content: "summarized"}, {Done: true}},
	}}}
	f := newFixture(t, backend)
	msg := inbound("summarize the doc")
	key := Key(msg)

	if _, err := f.cache.AddDocument(key, "notes.txt", []byte("quarterly numbers")); err != nil {
		t.Fatalf("add document: %v", err)
	}

	if err := f.orch.HandleTurn(context.Background(), msg); err != nil {
		t.Fatalf("handle turn: %v", err)
	}

	// The document text was merged into the persisted user turn.
	saved, _ := f.store.Load(key)
	var userTurn string
	for _, turn := range saved.Turns {
		if turn.Role == transcript.RoleUser {
			userTurn = turn.Content
		}
	}
	if !strings.Contains(userTurn, "quarterly numbers") || !strings.Contains(userTurn, "summarize the doc") {
		t.Errorf("user turn = %q", userTurn)
	}

	// Documents are single-use: a second turn sees none.
	if docs := f.cache.ConsumeDocuments(key); len(docs) != 0 {
		t.Errorf("pending documents = %d, want 0", len(docs))
	}
}

func TestAttachmentIngestion(t *testing.T) {
	backend := &chatBackend{scriptedBackend: scriptedBackend{script: [][]ollama.StreamDelta{
		{{Content: "a cat"}, {Done: true}},
	}}}
	f := newFixture(t, backend)
	f.mock.Downloads["img1"] = []byte("png bytes")

	msg := inbound("what is in this image")
	msg.Attachments = []relay.AttachmentRef{{ID: "img1", Filename: "cat.png", URL: "https://cdn/img1"}}

	if err := f.orch.HandleTurn(context.Background(), msg); err != nil {
		t.Fatalf("handle turn: %v", err)
	}

	images := f.cache.Images(Key(msg))
	if len(images) != 1 || images[0].Filename != "cat.png" {
		t.Errorf("images = %+v", images)
	}

	// The cached image rides along on the backend request.
	last := f.backend.messages[len(f.backend.messages)-1]
	userMsg := last[len(last)-1]
	if len(userMsg.Images) != 1 {
		t.Errorf("request images = %d, want 1", len(userMsg.Images))
	}
}

func TestSwitchModel(t *testing.T) {
	backend := &chatBackend{}
	f := newFixture(t, backend)

	if err := f.orch.SwitchModel("k", "nope"); err == nil {
		t.Fatal("expected rejection of unknown model")
	}
	if got := f.orch.CurrentModel("k"); got != "phi4" {
		t.Errorf("model = %q, want default", got)
	}

	if err := f.orch.SwitchModel("k", "mistral"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if got := f.orch.CurrentModel("k"); got != "mistral" {
		t.Errorf("model = %q, want mistral", got)
	}
	// Another conversation keeps its own selection.
	if got := f.orch.CurrentModel("other"); got != "phi4" {
		t.Errorf("other conversation model = %q, want default", got)
	}
}

func TestResetIdempotent(t *testing.T) {
	backend := &chatBackend{scriptedBackend: scriptedBackend{script: [][]ollama.StreamDelta{
		{{Content: "noted"}, {Done: true}},
	}}}
	f := newFixture(t, backend)
	msg := inbound("remember this")
	key := Key(msg)

	if err := f.orch.HandleTurn(context.Background(), msg); err != nil {
		t.Fatalf("handle turn: %v", err)
	}

	if err := f.orch.Reset(key); err != nil {
		t.Fatalf("reset: %v", err)
	}
	saved, _ := f.store.Load(key)
	if saved.Len() != 0 {
		t.Errorf("turns after reset = %d", saved.Len())
	}

	if err := f.orch.Reset(key); err != nil {
		t.Fatalf("second reset: %v", err)
	}
}

func TestConcurrentConversationsIsolated(t *testing.T) {
	backend := &chatBackend{scriptedBackend: scriptedBackend{script: [][]ollama.StreamDelta{
		{{Content: "done"}, {Done: true}},
	}}}
	f := newFixture(t, backend)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			msg := inbound("hello")
			msg.ChannelID = fmt.Sprintf("C%d", n)
			if err := f.orch.HandleTurn(context.Background(), msg); err != nil {
				t.Errorf("turn %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		key := "discord-C" + fmt.Sprint(i)
		saved, err := f.store.Load(key)
		if err != nil {
			t.Fatalf("load %s: %v", key, err)
		}
		if saved.Len() == 0 {
			t.Errorf("conversation %s has no turns", key)
		}
	}
}
