package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/pairing"
)

// Session is one recorded pairing.
type Session struct {
	RoomID       string     `json:"roomId"`
	ParticipantA string     `json:"participantA"`
	ParticipantB string     `json:"participantB"`
	Score        int        `json:"score"`
	Fallback     bool       `json:"fallback"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"` // nil while the session is live
	EndReason    string     `json:"endReason,omitempty"`
	EndedBy      string     `json:"endedBy,omitempty"`
}

// Store writes pairings to the pair_sessions table. It is a lifecycle sink.
type Store struct {
	db *sql.DB
}

// NewStore creates a history store on db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Name identifies the store in lifecycle logs.
func (s *Store) Name() string { return "history" }

// Handle records matched events as new sessions and closes them on
// unpaired events. Other events are ignored.
func (s *Store) Handle(ctx context.Context, ev pairing.Event) error {
	switch ev.Kind {
	case pairing.EventMatched:
		return s.start(ctx, ev)
	case pairing.EventUnpaired:
		return s.end(ctx, ev)
	}
	return nil
}

func (s *Store) start(ctx context.Context, ev pairing.Event) error {
	const query = `
		INSERT INTO pair_sessions (room_id, participant_a, participant_b, score, fallback, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		ev.RoomID, ev.ParticipantID, ev.PartnerID, ev.Score, ev.Fallback, ev.At.UTC())
	if err != nil {
		return fmt.Errorf("history: insert session %s: %w", ev.RoomID, err)
	}
	return nil
}

func (s *Store) end(ctx context.Context, ev pairing.Event) error {
	const query = `
		UPDATE pair_sessions
		SET ended_at = $2, end_reason = $3, ended_by = $4
		WHERE room_id = $1 AND ended_at IS NULL`

	_, err := s.db.ExecContext(ctx, query, ev.RoomID, ev.At.UTC(), string(ev.Reason), ev.ParticipantID)
	if err != nil {
		return fmt.Errorf("history: close session %s: %w", ev.RoomID, err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT room_id, participant_a, participant_b, score, fallback, started_at,
		       ended_at, COALESCE(end_reason, ''), COALESCE(ended_by, '')
		FROM pair_sessions
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess    Session
			endedAt sql.NullTime
		)
		if err := rows.Scan(&sess.RoomID, &sess.ParticipantA, &sess.ParticipantB, &sess.Score,
			&sess.Fallback, &sess.StartedAt, &endedAt, &sess.EndReason, &sess.EndedBy); err != nil {
			return nil, fmt.Errorf("history: scan session: %w", err)
		}
		if endedAt.Valid {
			t := endedAt.Time
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate sessions: %w", err)
	}
	return sessions, nil
}

// Handler serves the most recent sessions as JSON. The limit query
// parameter caps the result (default 50, at most 500).
func (s *Store) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = 50
		}
		limit = min(limit, 500)

		sessions, err := s.Recent(r.Context(), limit)
		if err != nil {
			http.Error(w, "history unavailable", http.StatusServiceUnavailable)
			return
		}
		if sessions == nil {
			sessions = []Session{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sessions)
	})
}
