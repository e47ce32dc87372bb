package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zulandar/conductor/internal/attachments"
	"github.com/zulandar/conductor/internal/config"
	"github.com/zulandar/conductor/internal/transcript"
)

func newResetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reset [conversation-key]",
		Short: "Clear a conversation's history and attachments",
		Long:  "Deletes the stored transcript and cached attachments for a conversation key, e.g. discord-123456789.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "conductor.yaml", "path to Conductor config file")
	return cmd
}

func runReset(cmd *cobra.Command, configPath, key string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

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

	if err := store.Clear(key); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	if err := cache.Clear(key); err != nil {
		return fmt.Errorf("clear attachments: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s cleared.\n", key)
	return nil
}
