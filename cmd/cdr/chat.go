package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/conductor/internal/config"
	"github.com/zulandar/conductor/internal/ollama"
)

func newChatCmd() *cobra.Command {
	var (
		configPath string
		model      string
	)

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send a one-shot prompt to the backend",
		Long:  "Sends a single prompt to the Ollama backend without any conversation history and prints the response.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath, model, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "conductor.yaml", "path to Conductor config file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model to use (defaults to ollama.default_model)")
	return cmd
}

func runChat(cmd *cobra.Command, configPath, model, prompt string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if model == "" {
		model = cfg.Ollama.DefaultModel
	}
	if !cfg.HasModel(model) {
		return fmt.Errorf("model %q is not in the catalog (see 'cdr models')", model)
	}

	client := ollama.New(cfg.Ollama.BaseURL)
	resp, err := client.Generate(cmd.Context(), model, prompt)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp)
	return nil
}
