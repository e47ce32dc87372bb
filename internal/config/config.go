// Package config provides YAML-based configuration loading for Conductor.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Conductor configuration, loaded from conductor.yaml.
type Config struct {
	Platform string        `yaml:"platform"` // "discord" or "slack"
	Discord  DiscordConfig `yaml:"discord"`
	Slack    SlackConfig   `yaml:"slack"`
	Ollama   OllamaConfig  `yaml:"ollama"`
	Models   []ModelConfig `yaml:"models"`

	// SystemPrompt seeds new conversations as the first transcript turn.
	SystemPrompt string `yaml:"system_prompt"`

	DataDir   string          `yaml:"data_dir"`
	DB        DBConfig        `yaml:"db"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Google    GoogleConfig    `yaml:"google"`
	GitHub    GitHubConfig    `yaml:"github"`
	Session   SessionConfig   `yaml:"session"`
}

// DiscordConfig holds Discord bot credentials and channel bindings.
type DiscordConfig struct {
	BotToken        string `yaml:"bot_token"`
	ChannelID       string `yaml:"channel_id"`        // channel the bot listens on; empty means all
	StatusChannelID string `yaml:"status_channel_id"` // optional; startup announcement target
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	AppToken  string `yaml:"app_token"`
	ChannelID string `yaml:"channel_id"`
}

// OllamaConfig holds connection settings for the inference backend.
type OllamaConfig struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// ModelConfig describes one selectable model and its context limit.
type ModelConfig struct {
	Name        string `yaml:"name"`
	MaxTokens   int    `yaml:"max_tokens"`
	Description string `yaml:"description"`
}

// DBConfig holds turn-log database settings. Driver "sqlite" uses Path;
// driver "mysql" uses Host/Port/Database.
type DBConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// DashboardConfig holds dashboard HTTP server settings.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// GoogleConfig holds Google Custom Search credentials for the google_search tool.
type GoogleConfig struct {
	APIKey string `yaml:"api_key"`
	CX     string `yaml:"cx"`
}

// GitHubConfig holds an optional token for the github_repo tool.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// SessionConfig holds per-conversation orchestration tunables.
type SessionConfig struct {
	MaxToolIterations int    `yaml:"max_tool_iterations"`
	MaxImages         int    `yaml:"max_images"`
	MaxIdleTicks      int    `yaml:"max_idle_ticks"`
	ArtifactRetention string `yaml:"artifact_retention"` // Go duration, e.g. "1h"
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ModelLimit returns the max token limit for a model name, or 0 if the model
// is not in the catalog.
func (c *Config) ModelLimit(name string) int {
	for _, m := range c.Models {
		if m.Name == name {
			return m.MaxTokens
		}
	}
	return 0
}

// HasModel reports whether name appears in the model catalog.
func (c *Config) HasModel(name string) bool {
	return c.ModelLimit(name) > 0
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "discord"
	}
	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = "http://localhost:11434"
	}
	if len(c.Models) == 0 {
		c.Models = defaultModels()
	}
	if c.Ollama.DefaultModel == "" {
		c.Ollama.DefaultModel = c.Models[0].Name
	}
	if c.DataDir == "" {
		c.DataDir = "conductor-data"
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = "You are Conductor, a helpful assistant in a chat channel. " +
			"Answer concisely and use the available tools when they help."
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "conductor.db"
	}
	if c.DB.Driver == "mysql" {
		if c.DB.Host == "" {
			c.DB.Host = "127.0.0.1"
		}
		if c.DB.Port == 0 {
			c.DB.Port = 3306
		}
		if c.DB.Database == "" {
			c.DB.Database = "conductor"
		}
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Session.MaxToolIterations == 0 {
		c.Session.MaxToolIterations = 8
	}
	if c.Session.MaxImages == 0 {
		c.Session.MaxImages = 10
	}
	if c.Session.MaxIdleTicks == 0 {
		c.Session.MaxIdleTicks = 10
	}
	if c.Session.ArtifactRetention == "" {
		c.Session.ArtifactRetention = "1h"
	}
}

// defaultModels is the built-in catalog used when the config lists none.
// Limits mirror the published context sizes of the stock Ollama builds.
func defaultModels() []ModelConfig {
	return []ModelConfig{
		{Name: "phi4:latest", MaxTokens: 8192, Description: "text generation, dialogue"},
		{Name: "gemma2:latest", MaxTokens: 8192, Description: "text generation, reasoning"},
		{Name: "qwen2.5:7b", MaxTokens: 4096, Description: "coding, math"},
		{Name: "mistral:latest", MaxTokens: 8192, Description: "general purpose"},
		{Name: "llama3.2:latest", MaxTokens: 128000, Description: "multilingual, dialogue"},
		{Name: "llama3.2-vision:latest", MaxTokens: 128000, Description: "image understanding"},
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Platform {
	case "discord":
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token is required")
		}
	case "slack":
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown platform %q (want discord or slack)", c.Platform))
	}
	if c.DB.Driver != "sqlite" && c.DB.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("unknown db.driver %q (want sqlite or mysql)", c.DB.Driver))
	}
	for i, m := range c.Models {
		if m.Name == "" {
			errs = append(errs, fmt.Sprintf("models[%d].name is required", i))
		}
		if m.MaxTokens <= 0 {
			errs = append(errs, fmt.Sprintf("models[%d].max_tokens must be positive", i))
		}
	}
	if !c.HasModel(c.Ollama.DefaultModel) {
		errs = append(errs, fmt.Sprintf("ollama.default_model %q is not in the model catalog", c.Ollama.DefaultModel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
