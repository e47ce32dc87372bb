package bot

import (
	"fmt"
	"strings"

	"github.com/zulandar/conductor/internal/config"
)

// commandPrefix is the prefix that triggers command handling.
const commandPrefix = "!cdr"

// Controller is the conversation-management surface commands operate on.
// *session.Orchestrator implements it.
type Controller interface {
	SwitchModel(key, name string) error
	CurrentModel(key string) string
	Reset(key string) error
	Status(key string) (model string, size, images int)
}

// CommandHandler processes "!cdr" commands from chat.
type CommandHandler struct {
	controller Controller
	models     []config.ModelConfig
}

// CommandHandlerOpts holds parameters for creating a CommandHandler.
type CommandHandlerOpts struct {
	Controller Controller
	Models     []config.ModelConfig
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(opts CommandHandlerOpts) (*CommandHandler, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("bot: command handler: controller is required")
	}
	return &CommandHandler{
		controller: opts.Controller,
		models:     opts.Models,
	}, nil
}

// IsCommand reports whether text is a "!cdr" command.
func IsCommand(text string) bool {
	text = strings.TrimSpace(text)
	return text == commandPrefix || strings.HasPrefix(text, commandPrefix+" ")
}

// Execute parses and executes a command string for the given conversation.
// Returns the response text to send back to the chat channel.
func (ch *CommandHandler) Execute(key, text string) string {
	args := strings.Fields(strings.TrimPrefix(strings.TrimSpace(text), commandPrefix))
	if len(args) == 0 {
		return ch.helpText()
	}

	switch args[0] {
	case "model":
		return ch.cmdModel(key, args[1:])
	case "models":
		return ch.cmdModels()
	case "reset":
		return ch.cmdReset(key)
	case "status":
		return ch.cmdStatus(key)
	case "help":
		return ch.helpText()
	default:
		return fmt.Sprintf("Unknown command: `%s`\n\n%s", args[0], ch.helpText())
	}
}

func (ch *CommandHandler) cmdModel(key string, args []string) string {
	if len(args) == 0 {
		return fmt.Sprintf("Current model: `%s`", ch.controller.CurrentModel(key))
	}
	name := args[0]
	if err := ch.controller.SwitchModel(key, name); err != nil {
		return fmt.Sprintf("Unknown model `%s`. Use `%s models` to list available models.", name, commandPrefix)
	}
	return fmt.Sprintf("Model switched to `%s`.", name)
}

func (ch *CommandHandler) cmdModels() string {
	if len(ch.models) == 0 {
		return "No models configured."
	}
	var b strings.Builder
	b.WriteString("Available models:\n")
	for _, m := range ch.models {
		fmt.Fprintf(&b, "- `%s` (%d token context)", m.Name, m.MaxTokens)
		if m.Description != "" {
			fmt.Fprintf(&b, " - %s", m.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (ch *CommandHandler) cmdReset(key string) string {
	if err := ch.controller.Reset(key); err != nil {
		return fmt.Sprintf("Reset failed: %v", err)
	}
	return "Conversation history and attachments cleared."
}

func (ch *CommandHandler) cmdStatus(key string) string {
	model, size, images := ch.controller.Status(key)
	return fmt.Sprintf("Model: `%s`\nHistory size: %d tokens (approximate)\nCached images: %d",
		model, size, images)
}

func (ch *CommandHandler) helpText() string {
	return strings.Join([]string{
		"Conductor commands:",
		fmt.Sprintf("`%s model <name>` - switch the model for this channel", commandPrefix),
		fmt.Sprintf("`%s model` - show the current model", commandPrefix),
		fmt.Sprintf("`%s models` - list available models", commandPrefix),
		fmt.Sprintf("`%s reset` - clear history and attachments", commandPrefix),
		fmt.Sprintf("`%s status` - show conversation status", commandPrefix),
		fmt.Sprintf("`%s help` - show this help", commandPrefix),
		"",
		"Mention me to chat. Attach images or documents to bring them into the conversation.",
	}, "\n")
}
