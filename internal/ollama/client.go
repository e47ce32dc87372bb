// Package ollama implements an HTTP client for an Ollama-compatible
// inference backend.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message represents a chat message in the Ollama API format.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"` // base64-encoded image payloads
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a model-issued request to execute a tool.
type ToolCall struct {
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its parsed arguments.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Key returns the dedup key for a tool call: name plus canonically
// serialized arguments. Go's JSON encoder sorts map keys, so two calls
// with identical arguments always produce the same key.
func (tc ToolCall) Key() string {
	args, _ := json.Marshal(tc.Function.Arguments)
	return tc.Function.Name + "(" + string(args) + ")"
}

// Tool describes a callable function advertised to the model.
type Tool struct {
	Type     string       `json:"type"` // always "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function block of a Tool.
type ToolFunction struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  ToolParams `json:"parameters"`
}

// ToolParams is the JSON-schema-shaped parameter object of a ToolFunction.
type ToolParams struct {
	Type       string               `json:"type"` // always "object"
	Properties map[string]ToolParam `json:"properties"`
	Required   []string             `json:"required"`
}

// ToolParam describes a single tool parameter.
type ToolParam struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Client communicates with an Ollama-compatible backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given backend base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // generation can be slow; rely on ctx for cancellation
		},
	}
}

// tagsResponse mirrors the JSON returned by GET /api/tags.
type tagsResponse struct {
	Models []modelEntry `json:"models"`
}

type modelEntry struct {
	Name string `json:"name"`
}

// IsRunning returns true if the backend responds to GET /api/tags with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the names of all models available on the backend.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: requesting model list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: list models: unexpected status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: decoding model list: %w", err)
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// generateRequest is the JSON body for POST /api/generate.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateChunk is one line of a /api/generate response. The backend may
// return the whole response as a single object or split it across
// newline-delimited chunks; both shapes carry these fields.
type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends a single prompt and returns the full response text. The
// backend may return a single JSON object or newline-delimited chunks;
// both shapes are accepted, and unparsable lines are skipped.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: generate: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: reading generate response: %w", err)
	}
	return decodeGenerateBody(raw)
}

// decodeGenerateBody accepts both response shapes of /api/generate.
func decodeGenerateBody(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("ollama: empty generate response")
	}

	// Single-object shape first.
	var single generateChunk
	if err := json.Unmarshal(trimmed, &single); err == nil {
		return single.Response, nil
	}

	// Newline-delimited chunks: accumulate response fragments until done.
	var b strings.Builder
	decoded := false
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue // skip malformed chunk, keep processing
		}
		decoded = true
		b.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if !decoded {
		return "", fmt.Errorf("ollama: unparsable generate response")
	}
	return b.String(), nil
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
	Stream   bool      `json:"stream"`
}

// chatChunk is one JSON object of a /api/chat response, streaming or not.
type chatChunk struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Chat sends messages to the given model and returns the assistant's
// response content. Like Generate, both the single-object and
// newline-delimited response shapes are accepted.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: model, Messages: messages, Stream: false})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: chat: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: reading chat response: %w", err)
	}
	return decodeChatBody(raw)
}

// decodeChatBody accepts both response shapes of /api/chat.
func decodeChatBody(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("ollama: empty chat response")
	}

	var single chatChunk
	if err := json.Unmarshal(trimmed, &single); err == nil {
		return single.Message.Content, nil
	}

	var b strings.Builder
	decoded := false
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		decoded = true
		b.WriteString(chunk.Message.Content)
		if chunk.Done {
			break
		}
	}
	if !decoded {
		return "", fmt.Errorf("ollama: unparsable chat response")
	}
	return b.String(), nil
}
