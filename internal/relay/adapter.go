// Package relay bridges Conductor to chat platforms (Discord, Slack).
package relay

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must
// satisfy. Each adapter handles connection management, message delivery
// with in-place edits, and attachment download for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers a message to a channel and returns its platform
	// message ID, usable with Edit and Delete.
	Send(ctx context.Context, channelID, text string) (string, error)

	// Edit replaces the text of a previously sent message in place.
	Edit(ctx context.Context, channelID, messageID, text string) error

	// Delete removes a previously sent message.
	Delete(ctx context.Context, channelID, messageID string) error

	// Download fetches the raw bytes of an inbound attachment.
	Download(ctx context.Context, att AttachmentRef) ([]byte, error)

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform    string          // e.g. "discord", "slack"
	ChannelID   string          // platform-specific channel identifier
	UserID      string          // platform-specific user identifier
	UserName    string          // human-readable username
	Text        string          // message text with bot mentions stripped
	Mentioned   bool            // the bot was @mentioned
	Attachments []AttachmentRef // uploaded files, if any
	Timestamp   time.Time       // when the message was sent
}

// AttachmentRef identifies an uploaded file on the platform.
type AttachmentRef struct {
	ID          string
	Filename    string
	URL         string
	ContentType string
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}

// MessageLimit is the longest message text the supported platforms accept;
// render segments are bounded by it.
const MessageLimit = 2000
