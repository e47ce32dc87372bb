// Package models defines the GORM persistence records.
package models

import "time"

// Conversation tracks the channels the bot has spoken in, one row per
// conversation key.
type Conversation struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Key       string `gorm:"size:128;uniqueIndex"`
	Platform  string `gorm:"size:16"`
	ChannelID string `gorm:"size:64"`
	Model     string `gorm:"size:64"`
	Turns     int
	LastSeen  time.Time
	CreatedAt time.Time
}
