// Package bot runs the chat-facing daemon: it pumps inbound messages from a
// relay adapter into the session orchestrator and handles "!cdr" commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/conductor/internal/relay"
	"github.com/zulandar/conductor/internal/session"
	"golang.org/x/sync/errgroup"
)

// TurnHandler runs one conversation turn. *session.Orchestrator implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, msg relay.InboundMessage) error
}

// Sweeper ages out stale attachment artifacts. *attachments.Cache implements it.
type Sweeper interface {
	SweepArtifacts(retention time.Duration) int
}

// Daemon wires the relay adapter, the orchestrator, and the command handler
// into a long-running process.
type Daemon struct {
	adapter         relay.Adapter
	turns           TurnHandler
	commands        *CommandHandler
	sweeper         Sweeper
	retention       time.Duration
	statusChannelID string
	out             io.Writer
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	Adapter  relay.Adapter
	Turns    TurnHandler
	Commands *CommandHandler

	Sweeper         Sweeper       // optional hourly artifact sweep
	Retention       time.Duration // artifact retention window, defaults to one hour
	StatusChannelID string        // optional channel for the startup announcement
	Out             io.Writer     // defaults to os.Stdout
}

// NewDaemon creates a Daemon.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Turns == nil {
		return nil, fmt.Errorf("bot: turn handler is required")
	}
	if opts.Commands == nil {
		return nil, fmt.Errorf("bot: command handler is required")
	}
	d := &Daemon{
		adapter:         opts.Adapter,
		turns:           opts.Turns,
		commands:        opts.Commands,
		sweeper:         opts.Sweeper,
		retention:       opts.Retention,
		statusChannelID: opts.StatusChannelID,
		out:             opts.Out,
	}
	if d.retention <= 0 {
		d.retention = time.Hour
	}
	if d.out == nil {
		d.out = os.Stdout
	}
	return d, nil
}

// Run connects the adapter and pumps inbound messages until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		return fmt.Errorf("bot: listen: %w", err)
	}

	d.announce(ctx)

	var sched *cron.Cron
	if d.sweeper != nil {
		sched = cron.New()
		sched.AddFunc("@hourly", func() {
			if n := d.sweeper.SweepArtifacts(d.retention); n > 0 {
				log.Printf("bot: swept %d stale artifacts", n)
			}
		})
		sched.Start()
		defer sched.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	// Shut the adapter down when the context ends; this closes the inbound
	// channel and unblocks the pump.
	g.Go(func() error {
		<-gctx.Done()
		d.adapter.Close()
		return gctx.Err()
	})

	g.Go(func() error {
		var wg sync.WaitGroup
		for msg := range inbound {
			wg.Add(1)
			go func(m relay.InboundMessage) {
				defer wg.Done()
				d.dispatch(gctx, m)
			}(msg)
		}
		wg.Wait()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// dispatch routes one inbound message: commands first, then mention-driven
// chat turns. Everything else is ignored.
func (d *Daemon) dispatch(ctx context.Context, msg relay.InboundMessage) {
	if ider, ok := d.adapter.(relay.BotUserIDer); ok && msg.UserID == ider.BotUserID() {
		return
	}

	key := session.Key(msg)

	if IsCommand(msg.Text) {
		reply := d.commands.Execute(key, msg.Text)
		if _, err := d.adapter.Send(ctx, msg.ChannelID, reply); err != nil {
			log.Printf("bot: send command reply: %v", err)
		}
		return
	}

	if !msg.Mentioned {
		return
	}

	fmt.Fprintf(d.out, "bot: turn [ch=%s user=%s] %q\n",
		msg.ChannelID, msg.UserName, truncate(msg.Text, 80))
	if err := d.turns.HandleTurn(ctx, msg); err != nil {
		log.Printf("bot: turn for %s: %v", key, err)
	}
}

// announce posts the startup message to the status channel, if configured.
func (d *Daemon) announce(ctx context.Context) {
	if d.statusChannelID == "" {
		return
	}
	if _, err := d.adapter.Send(ctx, d.statusChannelID, "Conductor is online. Mention me to chat, or run `!cdr help`."); err != nil {
		log.Printf("bot: startup announcement: %v", err)
	}
}

// truncate shortens s to at most n runes for log lines.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
