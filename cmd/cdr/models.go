package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/conductor/internal/config"
	"github.com/zulandar/conductor/internal/ollama"
)

func newModelsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the configured model catalog",
		Long:  "Prints the model catalog from the config file and, when the backend is reachable, which models it has pulled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "conductor.yaml", "path to Conductor config file")
	return cmd
}

func runModels(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Pulled models are best-effort: the catalog still prints when the
	// backend is down.
	pulled := map[string]bool{}
	client := ollama.New(cfg.Ollama.BaseURL)
	if names, err := client.ListModels(cmd.Context()); err == nil {
		for _, n := range names {
			pulled[n] = true
		}
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCONTEXT\tPULLED\tDESCRIPTION")
	for _, m := range cfg.Models {
		mark := "-"
		if pulled[m.Name] {
			mark = "yes"
		}
		def := ""
		if m.Name == cfg.Ollama.DefaultModel {
			def = " (default)"
		}
		fmt.Fprintf(w, "%s%s\t%d\t%s\t%s\n", m.Name, def, m.MaxTokens, mark, m.Description)
	}
	return w.Flush()
}
