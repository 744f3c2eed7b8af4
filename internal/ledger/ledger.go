// Package ledger provides an append-only history of capture cycles and
// darkness shutdowns.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/eventbus"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	EventType eventbus.EventType
	Timestamp time.Time
	CycleID   string
	Payload   map[string]any
}

// Capture summarizes one finished cycle
type Capture struct {
	CycleID     string    `json:"cycle_id"`
	FinishedAt  time.Time `json:"finished_at"`
	OK          bool      `json:"ok"`
	Locator     string    `json:"locator,omitempty"`
	Description string    `json:"description,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Ledger provides append-only event logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new event to the ledger. Terminal events use INSERT OR
// IGNORE so a cycle keeps its first outcome.
func (l *Ledger) Append(eventType eventbus.EventType, at time.Time, cycleID string, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	if at.IsZero() {
		at = l.now()
	}

	insertSQL := `INSERT INTO cycle_ledger (event_type, timestamp, cycle_id, payload) VALUES (?, ?, ?, ?)`
	if isTerminal(eventType) && cycleID != "" {
		insertSQL = `INSERT OR IGNORE INTO cycle_ledger (event_type, timestamp, cycle_id, payload) VALUES (?, ?, ?, ?)`
	}

	var cycle sql.NullString
	if cycleID != "" {
		cycle = sql.NullString{String: cycleID, Valid: true}
	}

	_, err = l.db.Exec(insertSQL, string(eventType), at.UTC().UnixMilli(), cycle, string(payloadJSON))
	return err
}

// Record is an eventbus.Handler persisting every event it receives.
func (l *Ledger) Record(event eventbus.Event) {
	cycleID, _ := event.Data["cycle_id"].(string)

	payload := make(map[string]any, len(event.Data))
	for k, v := range event.Data {
		if k != "cycle_id" {
			payload[k] = v
		}
	}

	if err := l.Append(event.Type, event.At, cycleID, payload); err != nil {
		log.Error().Err(err).Str("event", string(event.Type)).Msg("Failed to record ledger entry")
	}
}

// ByCycle returns all entries of a cycle, oldest first
func (l *Ledger) ByCycle(cycleID string) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, cycle_id, payload
		FROM cycle_ledger
		WHERE cycle_id = ?
		ORDER BY timestamp ASC, id ASC
	`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByType returns entries filtered by event type, newest first
func (l *Ledger) GetByType(eventType eventbus.EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, cycle_id, payload
		FROM cycle_ledger
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// RecentCaptures returns the latest finished cycles, newest first
func (l *Ledger) RecentCaptures(limit int) ([]Capture, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, cycle_id, payload
		FROM cycle_ledger
		WHERE event_type IN (?, ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventbus.EventTypeCycleCompleted), string(eventbus.EventTypeCycleFailed), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := l.scanEntries(rows)
	if err != nil {
		return nil, err
	}

	captures := make([]Capture, 0, len(entries))
	for _, e := range entries {
		c := Capture{
			CycleID:    e.CycleID,
			FinishedAt: e.Timestamp,
			OK:         e.EventType == eventbus.EventTypeCycleCompleted,
		}
		c.Locator, _ = e.Payload["locator"].(string)
		c.Description, _ = e.Payload["description"].(string)
		c.Stage, _ = e.Payload["stage"].(string)
		c.Error, _ = e.Payload["error"].(string)
		captures = append(captures, c)
	}
	return captures, nil
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`DELETE FROM cycle_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var eventType string
		var payloadStr, cycleID sql.NullString
		var timestamp int64

		if err := rows.Scan(&entry.ID, &eventType, &timestamp, &cycleID, &payloadStr); err != nil {
			return nil, err
		}

		entry.EventType = eventbus.EventType(eventType)
		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		if cycleID.Valid {
			entry.CycleID = cycleID.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func isTerminal(t eventbus.EventType) bool {
	return t == eventbus.EventTypeCycleCompleted || t == eventbus.EventTypeCycleFailed
}
