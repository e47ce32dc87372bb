package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/conductor/internal/attachments"
	"github.com/zulandar/conductor/internal/bot"
	"github.com/zulandar/conductor/internal/config"
	"github.com/zulandar/conductor/internal/dashboard"
	"github.com/zulandar/conductor/internal/db"
	"github.com/zulandar/conductor/internal/memory"
	"github.com/zulandar/conductor/internal/ollama"
	"github.com/zulandar/conductor/internal/relay"
	discordadapter "github.com/zulandar/conductor/internal/relay/discord"
	slackadapter "github.com/zulandar/conductor/internal/relay/slack"
	"github.com/zulandar/conductor/internal/session"
	"github.com/zulandar/conductor/internal/tools"
	"github.com/zulandar/conductor/internal/transcript"
	"golang.org/x/sync/errgroup"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the Conductor daemon",
		Long:  "Connects to the configured chat platform and serves conversations against the Ollama backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "conductor.yaml", "path to Conductor config file")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	adapter, statusChannel, err := createAdapter(cfg)
	if err != nil {
		return err
	}

	backend := ollama.New(cfg.Ollama.BaseURL)

	store, err := transcript.NewStore(filepath.Join(cfg.DataDir, "history"))
	if err != nil {
		return err
	}
	cache, err := attachments.NewCache(attachments.CacheOpts{
		Dir:       filepath.Join(cfg.DataDir, "attachments"),
		MaxImages: cfg.Session.MaxImages,
		MaxIdle:   cfg.Session.MaxIdleTicks,
	})
	if err != nil {
		return err
	}
	mem, err := memory.NewManager(backend)
	if err != nil {
		return err
	}

	registry, err := tools.NewRegistry(tools.Builtins(tools.BuiltinOpts{
		GoogleAPIKey: cfg.Google.APIKey,
		GoogleCX:     cfg.Google.CX,
		GitHubToken:  cfg.GitHub.Token,
	})...)
	if err != nil {
		return err
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(conn); err != nil {
		return err
	}
	turnStore, err := db.NewTurnStore(conn)
	if err != nil {
		return err
	}

	retention, err := time.ParseDuration(cfg.Session.ArtifactRetention)
	if err != nil {
		return fmt.Errorf("parse session.artifact_retention: %w", err)
	}

	orch, err := session.NewOrchestrator(session.OrchestratorOpts{
		Conn:          adapter,
		Store:         store,
		Cache:         cache,
		Memory:        mem,
		Backend:       backend,
		Registry:      registry,
		Catalog:       cfg,
		DefaultModel:  cfg.Ollama.DefaultModel,
		SystemPrompt:  cfg.SystemPrompt,
		MaxIterations: cfg.Session.MaxToolIterations,
		Retention:     retention,
		Recorder:      turnStore,
	})
	if err != nil {
		return err
	}

	commands, err := bot.NewCommandHandler(bot.CommandHandlerOpts{
		Controller: orch,
		Models:     cfg.Models,
	})
	if err != nil {
		return err
	}

	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		Adapter:         adapter,
		Turns:           orch,
		Commands:        commands,
		Sweeper:         cache,
		Retention:       retention,
		StatusChannelID: statusChannel,
		Out:             cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return daemon.Run(gctx) })
	if cfg.Dashboard.Enabled {
		g.Go(func() error {
			return dashboard.Start(gctx, dashboard.StartOpts{
				Store: turnStore,
				Port:  cfg.Dashboard.Port,
				Out:   cmd.OutOrStdout(),
			})
		})
	}
	return g.Wait()
}

// createAdapter builds a platform adapter from the config and returns it
// along with the status-announcement channel, if any.
func createAdapter(cfg *config.Config) (relay.Adapter, string, error) {
	switch cfg.Platform {
	case "discord":
		a, err := discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.ChannelID,
		})
		return a, cfg.Discord.StatusChannelID, err
	case "slack":
		a, err := slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Slack.AppToken,
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		})
		return a, "", err
	default:
		return nil, "", fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
}
