package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/conductor/internal/relay"
)

// --- Mock Discord session ---

type mockSession struct {
	mu          sync.Mutex
	opened      bool
	closeCalled bool
	openErr     error
	sendErr     error
	editErr     error
	nextID      int
	sent        []sentMessage
	edits       []editedMessage
	deleted     []string
	handlers    []interface{}
	removeCount int
}

type sentMessage struct {
	channelID string
	content   string
}

type editedMessage struct {
	channelID string
	messageID string
	content   string
}

func newMockSession() *mockSession {
	return &mockSession{}
}

func (m *mockSession) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

func (m *mockSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.nextID++
	m.sent = append(m.sent, sentMessage{channelID: channelID, content: content})
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", m.nextID)}, nil
}

func (m *mockSession) ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return nil, m.editErr
	}
	m.edits = append(m.edits, editedMessage{channelID: channelID, messageID: messageID, content: content})
	return &discordgo.Message{ID: messageID}, nil
}

func (m *mockSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeCount++
	}
}

// messageHandler returns the registered MessageCreate handler, if any.
func (m *mockSession) messageHandler() func(*discordgo.Session, *discordgo.MessageCreate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.MessageCreate)); ok {
			return fn
		}
	}
	return nil
}

// --- Helper to create a connected adapter ---

func newTestAdapter(t *testing.T) (*Adapter, *mockSession) {
	t.Helper()
	sess := newMockSession()

	a, err := New(AdapterOpts{
		Session: sess,
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	a.SetBotUserID("BOT_USER_ID")
	return a, sess
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(AdapterOpts{})
	if err == nil {
		t.Fatal("expected error with no token and no session")
	}
}

func TestSendReturnsMessageID(t *testing.T) {
	a, sess := newTestAdapter(t)
	defer a.Close()

	id, err := a.Send(context.Background(), "C1", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("message ID = %q, want msg-1", id)
	}
	if len(sess.sent) != 1 || sess.sent[0].content != "hello" {
		t.Errorf("sent = %+v", sess.sent)
	}
}

func TestSendRequiresChannel(t *testing.T) {
	a, _ := newTestAdapter(t)
	defer a.Close()

	if _, err := a.Send(context.Background(), "", "hello"); err == nil {
		t.Fatal("expected error with no channel")
	}
}

func TestSendUsesDefaultChannel(t *testing.T) {
	sess := newMockSession()
	a, err := New(AdapterOpts{Session: sess, ChannelID: "C_DEFAULT"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer a.Close()

	if _, err := a.Send(context.Background(), "", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sess.sent[0].channelID != "C_DEFAULT" {
		t.Errorf("channel = %q, want C_DEFAULT", sess.sent[0].channelID)
	}
}

func TestEditAndDelete(t *testing.T) {
	a, sess := newTestAdapter(t)
	defer a.Close()

	if err := a.Edit(context.Background(), "C1", "msg-9", "updated"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if len(sess.edits) != 1 || sess.edits[0].content != "updated" {
		t.Errorf("edits = %+v", sess.edits)
	}

	if err := a.Delete(context.Background(), "C1", "msg-9"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(sess.deleted) != 1 || sess.deleted[0] != "msg-9" {
		t.Errorf("deleted = %v", sess.deleted)
	}
}

func TestInboundMessageDelivered(t *testing.T) {
	a, sess := newTestAdapter(t)
	defer a.Close()

	ch, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	handler := sess.messageHandler()
	if handler == nil {
		t.Fatal("no MessageCreate handler registered")
	}

	handler(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "100000000000000000",
		ChannelID: "C1",
		Content:   "<@BOT_USER_ID> hello there",
		Author:    &discordgo.User{ID: "U1", Username: "alice"},
		Mentions:  []*discordgo.User{{ID: "BOT_USER_ID"}},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", Filename: "report.pdf", URL: "https://cdn.example/report.pdf"},
		},
	}})

	select {
	case msg := <-ch:
		if msg.Text != "hello there" {
			t.Errorf("text = %q, want mention stripped", msg.Text)
		}
		if !msg.Mentioned {
			t.Error("expected Mentioned = true")
		}
		if msg.UserName != "alice" || msg.ChannelID != "C1" {
			t.Errorf("msg = %+v", msg)
		}
		if len(msg.Attachments) != 1 || msg.Attachments[0].Filename != "report.pdf" {
			t.Errorf("attachments = %+v", msg.Attachments)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message delivered")
	}
}

func TestSelfAndBotMessagesFiltered(t *testing.T) {
	a, sess := newTestAdapter(t)
	defer a.Close()

	ch, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	handler := sess.messageHandler()

	// Own message.
	handler(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "1", ChannelID: "C1", Content: "echo",
		Author: &discordgo.User{ID: "BOT_USER_ID"},
	}})
	// Another bot.
	handler(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "2", ChannelID: "C1", Content: "beep",
		Author: &discordgo.User{ID: "U2", Bot: true},
	}})

	select {
	case msg := <-ch:
		t.Fatalf("unexpected inbound message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelRestriction(t *testing.T) {
	sess := newMockSession()
	a, err := New(AdapterOpts{Session: sess, ChannelID: "C_ONLY"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer a.Close()
	a.SetBotUserID("BOT_USER_ID")

	ch, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	handler := sess.messageHandler()

	handler(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "1", ChannelID: "C_OTHER", Content: "ignored",
		Author: &discordgo.User{ID: "U1", Username: "bob"},
	}})
	handler(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "2", ChannelID: "C_ONLY", Content: "kept",
		Author: &discordgo.User{ID: "U1", Username: "bob"},
	}})

	select {
	case msg := <-ch:
		if msg.Text != "kept" {
			t.Errorf("text = %q, want kept", msg.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message delivered")
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload bytes"))
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t)
	defer a.Close()

	got, err := a.Download(context.Background(), relay.AttachmentRef{
		ID: "a1", Filename: "f.txt", URL: srv.URL,
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(got) != "payload bytes" {
		t.Errorf("payload = %q", got)
	}
}

func TestDownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t)
	defer a.Close()

	if _, err := a.Download(context.Background(), relay.AttachmentRef{URL: srv.URL}); err == nil {
		t.Fatal("expected error on 404")
	}
}

func TestRetryOnRateLimit(t *testing.T) {
	a, _ := newTestAdapter(t)
	defer a.Close()
	a.baseBackoff = time.Millisecond

	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestCloseIdempotent(t *testing.T) {
	a, sess := newTestAdapter(t)

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !sess.closeCalled {
		t.Error("session close not called")
	}
}
