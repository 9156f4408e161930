// Package report stores abuse reports filed by one member of a room against
// the other, together with the last lines of their chat for review.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidReason is returned for reasons outside the allowed set.
var ErrInvalidReason = errors.New("report: invalid reason")

// Reasons a report may be filed for.
const (
	ReasonHarassment = "harassment"
	ReasonSpam       = "spam"
	ReasonExplicit   = "explicit"
	ReasonOther      = "other"
)

// validReasons matches the CHECK constraint on the abuse_reports table.
var validReasons = map[string]bool{
	ReasonHarassment: true,
	ReasonSpam:       true,
	ReasonExplicit:   true,
	ReasonOther:      true,
}

// ValidReason reports whether reason may be filed.
func ValidReason(reason string) bool {
	return validReasons[reason]
}

// Report is a single abuse report.
type Report struct {
	ReporterID string
	ReportedID string
	RoomID     string
	Reason     string
	Messages   []MessageEntry // last lines of the room's chat
}

// MessageEntry is one chat line attached to a report.
type MessageEntry struct {
	From string `json:"from"` // "reporter" or "reported"
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// Store manages abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a report store backed by db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts r. Messages are stored as JSONB.
func (s *Store) Create(ctx context.Context, r *Report) error {
	if !ValidReason(r.Reason) {
		return fmt.Errorf("%w: %q", ErrInvalidReason, r.Reason)
	}

	// Sent as text; lib/pq would encode []byte as bytea.
	var messages any
	if len(r.Messages) > 0 {
		data, err := json.Marshal(r.Messages)
		if err != nil {
			return fmt.Errorf("report: marshal messages: %w", err)
		}
		messages = string(data)
	}

	const query = `
		INSERT INTO abuse_reports (reporter_id, reported_id, room_id, reason, messages)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.db.ExecContext(ctx, query, r.ReporterID, r.ReportedID, r.RoomID, r.Reason, messages); err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}
