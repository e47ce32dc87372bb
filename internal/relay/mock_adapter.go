package relay

import (
	"context"
	"fmt"
	"sync"
)

// MockAdapter implements Adapter for testing. It records sent messages
// and edits, and allows simulating inbound messages via SimulateInbound.
type MockAdapter struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	nextID    int
	inbound   chan InboundMessage

	sent    []SentMessage
	edits   []EditedMessage
	deleted []string

	// Downloads maps attachment IDs to payloads returned by Download.
	Downloads map[string][]byte

	// SendErr, when set, is returned by Send.
	SendErr error
	// EditErr, when set, is returned by Edit.
	EditErr error

	botUserID string
}

// SentMessage records a call to Send.
type SentMessage struct {
	ChannelID string
	MessageID string
	Text      string
}

// EditedMessage records a call to Edit.
type EditedMessage struct {
	ChannelID string
	MessageID string
	Text      string
}

// NewMockAdapter creates a mock adapter ready for use in tests.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound:   make(chan InboundMessage, 100),
		Downloads: make(map[string][]byte),
		botUserID: "mock-bot",
	}
}

func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("relay: adapter closed")
	}
	m.connected = true
	return nil
}

func (m *MockAdapter) Listen(ctx context.Context) (<-chan InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("relay: not connected")
	}
	return m.inbound, nil
}

func (m *MockAdapter) Send(ctx context.Context, channelID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return "", m.SendErr
	}
	if !m.connected {
		return "", fmt.Errorf("relay: not connected")
	}
	m.nextID++
	id := fmt.Sprintf("msg-%d", m.nextID)
	m.sent = append(m.sent, SentMessage{ChannelID: channelID, MessageID: id, Text: text})
	return id, nil
}

func (m *MockAdapter) Edit(ctx context.Context, channelID, messageID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EditErr != nil {
		return m.EditErr
	}
	m.edits = append(m.edits, EditedMessage{ChannelID: channelID, MessageID: messageID, Text: text})
	return nil
}

func (m *MockAdapter) Delete(ctx context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *MockAdapter) Download(ctx context.Context, att AttachmentRef) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.Downloads[att.ID]
	if !ok {
		return nil, fmt.Errorf("relay: no payload for attachment %q", att.ID)
	}
	return payload, nil
}

func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// BotUserID returns the mock bot's user ID.
func (m *MockAdapter) BotUserID() string { return m.botUserID }

// SimulateInbound injects an inbound message as if it arrived from the
// platform.
func (m *MockAdapter) SimulateInbound(msg InboundMessage) {
	m.inbound <- msg
}

// Sent returns a copy of all messages sent so far.
func (m *MockAdapter) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Edits returns a copy of all edits made so far.
func (m *MockAdapter) Edits() []EditedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EditedMessage, len(m.edits))
	copy(out, m.edits)
	return out
}

// Deleted returns the IDs of all deleted messages.
func (m *MockAdapter) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}

// LastText returns the current text of a message, accounting for edits.
func (m *MockAdapter) LastText(messageID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.edits) - 1; i >= 0; i-- {
		if m.edits[i].MessageID == messageID {
			return m.edits[i].Text, true
		}
	}
	for _, s := range m.sent {
		if s.MessageID == messageID {
			return s.Text, true
		}
	}
	return "", false
}
