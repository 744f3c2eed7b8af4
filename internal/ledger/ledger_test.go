package ledger

import (
	"testing"
	"time"

	"github.com/dokzlo13/glimpsed/internal/db"
	"github.com/dokzlo13/glimpsed/internal/eventbus"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestRecord_CycleHistory(t *testing.T) {
	l := newTestLedger(t)
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	l.Record(eventbus.Event{
		Type: eventbus.EventTypeCycleStarted,
		At:   base,
		Data: map[string]interface{}{"cycle_id": "c1", "path": "latest.jpg"},
	})
	l.Record(eventbus.Event{
		Type: eventbus.EventTypeCycleCompleted,
		At:   base.Add(4 * time.Second),
		Data: map[string]interface{}{"cycle_id": "c1", "locator": "https://img.example/1.jpg", "description": "dust"},
	})

	entries, err := l.ByCycle("c1")
	if err != nil {
		t.Fatalf("ByCycle() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].EventType != eventbus.EventTypeCycleStarted || entries[1].EventType != eventbus.EventTypeCycleCompleted {
		t.Errorf("order = %s, %s", entries[0].EventType, entries[1].EventType)
	}
	if _, ok := entries[0].Payload["cycle_id"]; ok {
		t.Error("cycle_id duplicated into payload")
	}
	if !entries[1].Timestamp.Equal(base.Add(4 * time.Second)) {
		t.Errorf("Timestamp = %v", entries[1].Timestamp)
	}
}

func TestAppend_FirstOutcomeWins(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now()

	if err := l.Append(eventbus.EventTypeCycleFailed, now, "c1", map[string]any{"stage": "upload"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(eventbus.EventTypeCycleCompleted, now, "c1", nil); err != nil {
		t.Fatal(err)
	}

	captures, err := l.RecentCaptures(10)
	if err != nil {
		t.Fatalf("RecentCaptures() error = %v", err)
	}
	if len(captures) != 1 {
		t.Fatalf("captures = %d, want 1", len(captures))
	}
	if captures[0].OK || captures[0].Stage != "upload" {
		t.Errorf("capture = %+v, want failed at upload", captures[0])
	}
}

func TestRecentCaptures_NewestFirst(t *testing.T) {
	l := newTestLedger(t)
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := l.Append(eventbus.EventTypeCycleCompleted, base.Add(time.Duration(i)*time.Minute), id,
			map[string]any{"locator": "https://img.example/" + id}); err != nil {
			t.Fatal(err)
		}
	}
	// Non-terminal events are not captures
	if err := l.Append(eventbus.EventTypeDarknessShutdown, base.Add(time.Hour), "", nil); err != nil {
		t.Fatal(err)
	}

	captures, err := l.RecentCaptures(2)
	if err != nil {
		t.Fatalf("RecentCaptures() error = %v", err)
	}
	if len(captures) != 2 || captures[0].CycleID != "c" || captures[1].CycleID != "b" {
		t.Fatalf("captures = %+v, want c then b", captures)
	}
	if !captures[0].OK || captures[0].Locator != "https://img.example/c" {
		t.Errorf("capture = %+v", captures[0])
	}
}

func TestDeleteOlderThan(t *testing.T) {
	l := newTestLedger(t)
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_ = l.Append(eventbus.EventTypeTriggered, now.Add(-40*24*time.Hour), "", nil)
	_ = l.Append(eventbus.EventTypeTriggered, now.Add(-time.Hour), "", nil)

	n, err := l.DeleteOlderThan(30 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	left, err := l.GetByType(eventbus.EventTypeTriggered, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Errorf("remaining = %d, want 1", len(left))
	}
}
