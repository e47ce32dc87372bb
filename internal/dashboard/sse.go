package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/conductor/internal/db"
	"github.com/zulandar/conductor/internal/models"
)

const (
	ssePollInterval      = 3 * time.Second
	sseHeartbeatInterval = 15 * time.Second
)

// turnEvent holds data for a completed-turn SSE event.
type turnEvent struct {
	ID           uint   `json:"id"`
	Conversation string `json:"conversation"`
	Model        string `json:"model"`
	DurationMs   int    `json:"duration_ms"`
	ToolCalls    int    `json:"tool_calls"`
	Status       string `json:"status"`
}

// handleSSE streams completed turns: it polls the turn log for rows newer
// than the connection point and pushes one event per turn, with a periodic
// heartbeat. The handler returns when the client disconnects.
func handleSSE(store *db.TurnStore, poll, heartbeat time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		// Only turns completed after the connection count as new.
		lastSeenID, err := store.LatestTurnID()
		if err != nil {
			return
		}

		ctx := c.Request.Context()
		pollTicker := time.NewTicker(poll)
		heartbeatTicker := time.NewTicker(heartbeat)
		defer pollTicker.Stop()
		defer heartbeatTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeatTicker.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-pollTicker.C:
				newTurns, err := store.TurnsSince(lastSeenID)
				if err != nil || len(newTurns) == 0 {
					continue
				}
				lastSeenID = newTurns[len(newTurns)-1].ID
				for _, row := range newTurns {
					writeSSE(c.Writer, "turn", turnEventFrom(row))
				}
				c.Writer.Flush()
			}
		}
	}
}

func turnEventFrom(row models.TurnLog) turnEvent {
	return turnEvent{
		ID:           row.ID,
		Conversation: row.Conversation,
		Model:        row.Model,
		DurationMs:   row.DurationMs,
		ToolCalls:    row.ToolCalls,
		Status:       row.Status,
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
}
