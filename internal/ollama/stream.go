package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// maxStreamLine bounds the scanner buffer for one streamed JSON object.
const maxStreamLine = 1 << 20

// StreamDelta is one increment of a streaming chat response. Content and
// ToolCalls may both be empty on bookkeeping chunks; Done marks the final
// chunk of the stream.
type StreamDelta struct {
	Content   string
	ToolCalls []ToolCall
	Done      bool
}

// ChatStream sends a streaming chat request and invokes onDelta for each
// decoded chunk, in arrival order. Unparsable lines are skipped. The request
// is closed promptly when ctx is cancelled; in that case the context error
// is returned.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, tools []Tool, onDelta func(StreamDelta)) error {
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Tools:    tools,
		Stream:   true,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: creating stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: stream: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLine)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue // malformed chunk: skip, keep consuming
		}

		onDelta(StreamDelta{
			Content:   chunk.Message.Content,
			ToolCalls: chunk.Message.ToolCalls,
			Done:      chunk.Done,
		})
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ollama: reading stream: %w", err)
	}
	// Stream ended without a done chunk; treat as complete.
	return nil
}
