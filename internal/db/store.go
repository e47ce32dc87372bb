package db

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zulandar/conductor/internal/models"
	"github.com/zulandar/conductor/internal/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TurnStore persists turn records and serves dashboard queries. It implements
// session.Recorder.
type TurnStore struct {
	db *gorm.DB
}

// NewTurnStore creates a TurnStore on an open connection.
func NewTurnStore(db *gorm.DB) (*TurnStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db: connection is required")
	}
	return &TurnStore{db: db}, nil
}

// RecordTurn writes the turn log row and upserts the conversation row.
// Failures are logged, never surfaced: bookkeeping must not fail a turn.
func (s *TurnStore) RecordTurn(rec session.TurnRecord) {
	row := models.TurnLog{
		Conversation: rec.Conversation,
		Model:        rec.Model,
		DurationMs:   int(rec.Duration.Milliseconds()),
		PromptSize:   rec.PromptSize,
		ResponseSize: rec.ResponseSize,
		ToolCalls:    rec.ToolCalls,
		Status:       rec.Status,
	}
	if err := s.db.Create(&row).Error; err != nil {
		log.Printf("db: record turn for %s: %v", rec.Conversation, err)
		return
	}

	platform, channelID := splitKey(rec.Conversation)
	conv := models.Conversation{
		Key:       rec.Conversation,
		Platform:  platform,
		ChannelID: channelID,
		Model:     rec.Model,
		Turns:     1,
		LastSeen:  time.Now(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"model":     rec.Model,
			"turns":     gorm.Expr("turns + 1"),
			"last_seen": time.Now(),
		}),
	}).Create(&conv).Error
	if err != nil {
		log.Printf("db: upsert conversation %s: %v", rec.Conversation, err)
	}
}

// Conversations returns all known conversations, most recently active first.
func (s *TurnStore) Conversations() ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := s.db.Order("last_seen DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("db: list conversations: %w", err)
	}
	return convs, nil
}

// RecentTurns returns the latest turn logs, newest first, capped at limit.
func (s *TurnStore) RecentTurns(limit int) ([]models.TurnLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var turns []models.TurnLog
	if err := s.db.Order("id DESC").Limit(limit).Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("db: list turns: %w", err)
	}
	return turns, nil
}

// LatestTurnID returns the highest turn log ID, or 0 when the log is empty.
func (s *TurnStore) LatestTurnID() (uint, error) {
	var row models.TurnLog
	err := s.db.Order("id DESC").Limit(1).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("db: latest turn id: %w", err)
	}
	return row.ID, nil
}

// TurnsSince returns turn logs with IDs greater than id, oldest first.
func (s *TurnStore) TurnsSince(id uint) ([]models.TurnLog, error) {
	var turns []models.TurnLog
	if err := s.db.Where("id > ?", id).Order("id ASC").Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("db: turns since %d: %w", id, err)
	}
	return turns, nil
}

// splitKey recovers platform and channel from a conversation key.
func splitKey(key string) (platform, channelID string) {
	parts := strings.SplitN(key, "-", 2)
	if len(parts) != 2 {
		return "", key
	}
	return parts[0], parts[1]
}
