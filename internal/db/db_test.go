package db

import (
	"strings"
	"testing"
	"time"

	"github.com/zulandar/conductor/internal/config"
	"github.com/zulandar/conductor/internal/session"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := Connect(config.DBConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestDSN(t *testing.T) {
	got := DSN("10.0.0.5", 3307, "conductor")
	want := "root@tcp(10.0.0.5:3307)/conductor?parseTime=true"
	if got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
	if !strings.Contains(got, "parseTime=true") {
		t.Errorf("DSN missing parseTime=true: %s", got)
	}
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	if _, err := Connect(config.DBConfig{Driver: "postgres"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRecordTurnAndQueries(t *testing.T) {
	store, err := NewTurnStore(openTestDB(t))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	store.RecordTurn(session.TurnRecord{
		Conversation: "discord-C1",
		Model:        "phi4",
		Duration:     1200 * time.Millisecond,
		PromptSize:   340,
		ResponseSize: 95,
		ToolCalls:    1,
		Status:       "ok",
	})
	store.RecordTurn(session.TurnRecord{
		Conversation: "discord-C1",
		Model:        "phi4",
		Duration:     800 * time.Millisecond,
		Status:       "ok",
	})
	store.RecordTurn(session.TurnRecord{
		Conversation: "slack-C9",
		Model:        "mistral",
		Status:       "error",
	})

	turns, err := store.RecentTurns(10)
	if err != nil {
		t.Fatalf("recent turns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(turns))
	}
	// Newest first.
	if turns[0].Conversation != "slack-C9" || turns[0].Status != "error" {
		t.Errorf("latest turn = %+v", turns[0])
	}
	if turns[2].DurationMs != 1200 || turns[2].ToolCalls != 1 {
		t.Errorf("first turn = %+v", turns[2])
	}

	convs, err := store.Conversations()
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("conversations = %d, want 2", len(convs))
	}
	for _, c := range convs {
		if c.Key == "discord-C1" {
			if c.Turns != 2 || c.Platform != "discord" || c.ChannelID != "C1" {
				t.Errorf("conversation = %+v", c)
			}
		}
	}
}

func TestRecentTurnsLimit(t *testing.T) {
	store, err := NewTurnStore(openTestDB(t))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	for i := 0; i < 5; i++ {
		store.RecordTurn(session.TurnRecord{Conversation: "discord-C1", Model: "phi4", Status: "ok"})
	}
	turns, err := store.RecentTurns(3)
	if err != nil {
		t.Fatalf("recent turns: %v", err)
	}
	if len(turns) != 3 {
		t.Errorf("turns = %d, want 3", len(turns))
	}
}

func TestTurnsSince(t *testing.T) {
	store, err := NewTurnStore(openTestDB(t))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	id, err := store.LatestTurnID()
	if err != nil {
		t.Fatalf("latest turn id: %v", err)
	}
	if id != 0 {
		t.Errorf("LatestTurnID on empty log = %d, want 0", id)
	}

	store.RecordTurn(session.TurnRecord{Conversation: "discord-C1", Model: "phi4", Status: "ok"})
	mark, err := store.LatestTurnID()
	if err != nil {
		t.Fatalf("latest turn id: %v", err)
	}
	if mark == 0 {
		t.Fatal("LatestTurnID = 0 after a recorded turn")
	}

	store.RecordTurn(session.TurnRecord{Conversation: "discord-C2", Model: "phi4", Status: "ok"})
	store.RecordTurn(session.TurnRecord{Conversation: "discord-C3", Model: "phi4", Status: "error"})

	turns, err := store.TurnsSince(mark)
	if err != nil {
		t.Fatalf("turns since: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Conversation != "discord-C2" || turns[1].Conversation != "discord-C3" {
		t.Errorf("order = %s, %s, want oldest first", turns[0].Conversation, turns[1].Conversation)
	}
}
