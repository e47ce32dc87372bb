package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/conductor/internal/relay"
)

const (
	// defaultInterval bounds how often render events go out to the transport.
	defaultInterval = 500 * time.Millisecond
	// defaultSegmentSize is the per-message character limit for render segments.
	defaultSegmentSize = relay.MessageLimit
)

// Transport is the subset of relay.Adapter the aggregator needs to deliver
// render events.
type Transport interface {
	Send(ctx context.Context, channelID, text string) (string, error)
	Edit(ctx context.Context, channelID, messageID, text string) error
}

// StreamAggregator buffers an incremental token stream and periodically
// renders the answer-so-far as fixed-size segments mapped to stable message
// slots. Slot 0 is the pre-existing placeholder message, edited in place;
// later slots are created as the answer grows and then always edited, never
// re-sent, so each logical segment keeps its message.
type StreamAggregator struct {
	transport   Transport
	channelID   string
	slots       []string // message IDs, index = segment slot
	rendered    []string // last text rendered per slot
	buf         strings.Builder
	interval    time.Duration
	segmentSize int
	lastEmit    time.Time
	events      int
	now         func() time.Time
}

// AggregatorOpts holds parameters for creating a StreamAggregator.
type AggregatorOpts struct {
	Transport     Transport
	ChannelID     string
	PlaceholderID string // message ID of the "thinking" placeholder, becomes slot 0

	Interval    time.Duration // emission throttle, defaults to 500ms
	SegmentSize int           // per-segment character limit, defaults to the transport limit
	Now         func() time.Time
}

// NewAggregator creates a StreamAggregator.
func NewAggregator(opts AggregatorOpts) (*StreamAggregator, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("session: transport is required")
	}
	if opts.PlaceholderID == "" {
		return nil, fmt.Errorf("session: placeholder message ID is required")
	}

	a := &StreamAggregator{
		transport:   opts.Transport,
		channelID:   opts.ChannelID,
		slots:       []string{opts.PlaceholderID},
		rendered:    []string{""},
		interval:    opts.Interval,
		segmentSize: opts.SegmentSize,
		now:         opts.Now,
	}
	if a.interval <= 0 {
		a.interval = defaultInterval
	}
	if a.segmentSize <= 0 {
		a.segmentSize = defaultSegmentSize
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Write appends a text delta to the buffer and emits a render event if the
// throttle interval has elapsed. The throttle is a cooperative check against
// wall-clock time, not a background timer.
func (a *StreamAggregator) Write(ctx context.Context, delta string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.buf.WriteString(delta)

	if a.now().Sub(a.lastEmit) < a.interval {
		return nil
	}
	return a.render(ctx)
}

// Flush emits a final render event regardless of the throttle. Call it once
// at stream end.
func (a *StreamAggregator) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.render(ctx)
}

// Text returns the full accumulated answer text.
func (a *StreamAggregator) Text() string {
	return a.buf.String()
}

// Events returns the number of render events emitted so far.
func (a *StreamAggregator) Events() int {
	return a.events
}

// render delivers a full snapshot of the answer-so-far, one transport message
// per segment. Delivery failures are logged and remaining segments are still
// attempted; already-sent segments are never retracted.
func (a *StreamAggregator) render(ctx context.Context) error {
	a.lastEmit = a.now()

	segments := segmentText(a.buf.String(), a.segmentSize)
	if len(segments) == 0 {
		return nil // nothing to show yet
	}
	a.events++

	var firstErr error
	for i, seg := range segments {
		if i < len(a.slots) {
			if a.rendered[i] == seg {
				continue // unchanged, skip the edit
			}
			if err := a.transport.Edit(ctx, a.channelID, a.slots[i], seg); err != nil {
				log.Printf("session: edit segment %d: %v", i, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			a.rendered[i] = seg
			continue
		}

		id, err := a.transport.Send(ctx, a.channelID, seg)
		if err != nil {
			log.Printf("session: send segment %d: %v", i, err)
			if firstErr == nil {
				firstErr = err
			}
			// A failed send leaves no slot; a later render retries it.
			return firstErr
		}
		a.slots = append(a.slots, id)
		a.rendered = append(a.rendered, seg)
	}
	return firstErr
}

// segmentText splits text into rune-safe chunks of at most size characters.
func segmentText(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var segments []string
	for len(runes) > size {
		segments = append(segments, string(runes[:size]))
		runes = runes[size:]
	}
	return append(segments, string(runes))
}
