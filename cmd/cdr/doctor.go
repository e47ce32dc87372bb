package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/conductor/internal/config"
	"github.com/zulandar/conductor/internal/db"
	"github.com/zulandar/conductor/internal/ollama"
	"golang.org/x/term"
)

func newDoctorCmd() *cobra.Command {
	var (
		configPath  string
		promptToken bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system prerequisites and configuration",
		Long:  "Runs diagnostic checks on Conductor prerequisites: config, Ollama backend, default model, data directory, database, and platform credentials.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath, promptToken)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "conductor.yaml", "path to Conductor config file")
	cmd.Flags().BoolVar(&promptToken, "prompt-token", false, "prompt for the platform token instead of reading it from the config")
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func runDoctor(cmd *cobra.Command, configPath string, promptToken bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Conductor Doctor")
	fmt.Fprintln(out, "================")

	var results []checkResult

	// 1. Config
	cfg, cfgResult := checkConfig(configPath)
	results = append(results, cfgResult)

	// 2. Ollama backend and default model
	if cfg != nil {
		backendResult, modelResult := checkBackend(cmd.Context(), cfg)
		results = append(results, backendResult, modelResult)
	} else {
		results = append(results, checkResult{"Ollama backend", "FAIL", "skipped (no config)"})
		results = append(results, checkResult{"Default model", "FAIL", "skipped (no config)"})
	}

	// 3. Data directory
	if cfg != nil {
		results = append(results, checkDataDir(cfg.DataDir))
	} else {
		results = append(results, checkResult{"Data directory", "FAIL", "skipped (no config)"})
	}

	// 4. Turn-log database
	if cfg != nil {
		results = append(results, checkDatabase(cfg))
	} else {
		results = append(results, checkResult{"Database", "FAIL", "skipped (no config)"})
	}

	// 5. Platform credentials
	if cfg != nil {
		results = append(results, checkPlatformToken(out, cfg, promptToken))
	} else {
		results = append(results, checkResult{"Platform token", "FAIL", "skipped (no config)"})
	}

	passed, failed, warned := 0, 0, 0
	for _, r := range results {
		printCheckResult(out, r)
		switch r.status {
		case "PASS":
			passed++
		case "FAIL":
			failed++
		case "WARN":
			warned++
		}
	}

	fmt.Fprintf(out, "\n%d passed, %d failed, %d warning\n", passed, failed, warned)

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func printCheckResult(out io.Writer, r checkResult) {
	fmt.Fprintf(out, "[%s] %s: %s\n", r.status, r.name, r.detail)
}

func checkConfig(path string) (*config.Config, checkResult) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, checkResult{"Config file", "FAIL", fmt.Sprintf("%s: %v", path, err)}
	}
	return cfg, checkResult{"Config file", "PASS", path}
}

func checkBackend(ctx context.Context, cfg *config.Config) (checkResult, checkResult) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := ollama.New(cfg.Ollama.BaseURL)
	if !client.IsRunning(ctx) {
		return checkResult{"Ollama backend", "FAIL", fmt.Sprintf("%s not reachable", cfg.Ollama.BaseURL)},
			checkResult{"Default model", "FAIL", "skipped (backend down)"}
	}
	backend := checkResult{"Ollama backend", "PASS", cfg.Ollama.BaseURL}

	names, err := client.ListModels(ctx)
	if err != nil {
		return backend, checkResult{"Default model", "WARN", fmt.Sprintf("list models: %v", err)}
	}
	for _, n := range names {
		if n == cfg.Ollama.DefaultModel {
			return backend, checkResult{"Default model", "PASS", n}
		}
	}
	return backend, checkResult{"Default model", "FAIL",
		fmt.Sprintf("%s not pulled (run: ollama pull %s)", cfg.Ollama.DefaultModel, cfg.Ollama.DefaultModel)}
}

func checkDataDir(dir string) checkResult {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return checkResult{"Data directory", "FAIL", fmt.Sprintf("%s: %v", dir, err)}
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return checkResult{"Data directory", "FAIL", fmt.Sprintf("%s not writable: %v", dir, err)}
	}
	os.Remove(probe)
	return checkResult{"Data directory", "PASS", dir}
}

func checkDatabase(cfg *config.Config) checkResult {
	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return checkResult{"Database", "FAIL", err.Error()}
	}
	if err := db.AutoMigrate(conn); err != nil {
		return checkResult{"Database", "FAIL", fmt.Sprintf("migrate: %v", err)}
	}
	detail := cfg.DB.Path
	if cfg.DB.Driver == "mysql" {
		detail = fmt.Sprintf("%s:%d/%s", cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	}
	return checkResult{"Database", "PASS", fmt.Sprintf("%s (%s)", cfg.DB.Driver, detail)}
}

// checkPlatformToken verifies the platform credential is present. With
// --prompt-token it reads the token from the terminal instead, so the value
// never lands in a config file or shell history during setup.
func checkPlatformToken(out io.Writer, cfg *config.Config, promptToken bool) checkResult {
	token := ""
	switch cfg.Platform {
	case "discord":
		token = cfg.Discord.BotToken
	case "slack":
		token = cfg.Slack.BotToken
	}

	if promptToken {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return checkResult{"Platform token", "WARN", "stdin is not a terminal, cannot prompt"}
		}
		fmt.Fprintf(out, "Enter %s bot token: ", cfg.Platform)
		entered, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return checkResult{"Platform token", "FAIL", fmt.Sprintf("read token: %v", err)}
		}
		token = strings.TrimSpace(string(entered))
	}

	if token == "" {
		return checkResult{"Platform token", "FAIL", fmt.Sprintf("no %s bot token configured", cfg.Platform)}
	}
	return checkResult{"Platform token", "PASS", fmt.Sprintf("%s token present (%d chars)", cfg.Platform, len(token))}
}
