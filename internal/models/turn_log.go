package models

import "time"

// TurnLog captures one completed conversation turn for the dashboard and
// for offline inspection.
type TurnLog struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Conversation string `gorm:"size:128;index"`
	Model        string `gorm:"size:64"`
	DurationMs   int
	PromptSize   int
	ResponseSize int
	ToolCalls    int
	Status       string `gorm:"size:32"`
	CreatedAt    time.Time
}
