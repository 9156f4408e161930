// Package session mirrors each participant's pairing state into Redis so
// other processes (dashboards, a second server, support tooling) can see
// who is connected and what they are doing.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/pairing"
	"github.com/redis/go-redis/v9"
)

const (
	// PresencePrefix is the Redis key prefix for all presence hashes.
	PresencePrefix = "presence:"

	// PresenceTTL is the time-to-live for presence keys in Redis.
	PresenceTTL = 1 * time.Hour

	StatusQueued  = "queued"
	StatusPaired  = "paired"
	StatusIdle    = "idle"
	StatusTimeout = "timed-out"
)

// Presence is one participant's mirrored state.
type Presence struct {
	ID        string `redis:"id"`
	Name      string `redis:"name"`
	Status    string `redis:"status"`
	RoomID    string `redis:"room_id"` // empty unless paired
	PartnerID string `redis:"partner_id"`
	Server    string `redis:"server"`     // which server instance owns the socket
	UpdatedAt int64  `redis:"updated_at"` // unix timestamp
}

// Store maintains presence hashes in Redis. It is a lifecycle sink.
type Store struct {
	client     redis.Cmdable
	serverName string
	now        func() time.Time
}

// NewStore creates a presence store on client, tagging entries with
// serverName.
func NewStore(client redis.Cmdable, serverName string) *Store {
	return &Store{client: client, serverName: serverName, now: time.Now}
}

// Name identifies the store in lifecycle logs.
func (s *Store) Name() string { return "presence" }

// Handle applies one lifecycle event.
func (s *Store) Handle(ctx context.Context, ev pairing.Event) error {
	switch ev.Kind {
	case pairing.EventConnected:
		return s.write(ctx, ev.ParticipantID,
			"id", ev.ParticipantID,
			"name", ev.Name,
			"status", StatusIdle,
			"room_id", "",
			"partner_id", "",
			"server", s.serverName)
	case pairing.EventQueued:
		return s.write(ctx, ev.ParticipantID, "status", StatusQueued, "room_id", "", "partner_id", "")
	case pairing.EventMatched:
		if err := s.write(ctx, ev.ParticipantID, "status", StatusPaired, "room_id", ev.RoomID, "partner_id", ev.PartnerID); err != nil {
			return err
		}
		return s.write(ctx, ev.PartnerID, "status", StatusPaired, "room_id", ev.RoomID, "partner_id", ev.ParticipantID)
	case pairing.EventUnpaired:
		if err := s.write(ctx, ev.ParticipantID, "status", StatusIdle, "room_id", "", "partner_id", ""); err != nil {
			return err
		}
		return s.write(ctx, ev.PartnerID, "status", StatusIdle, "room_id", "", "partner_id", "")
	case pairing.EventLeft:
		return s.write(ctx, ev.ParticipantID, "status", StatusIdle)
	case pairing.EventTimeout:
		return s.write(ctx, ev.ParticipantID, "status", StatusTimeout)
	case pairing.EventDisconnected:
		return s.Delete(ctx, ev.ParticipantID)
	}
	return nil
}

// write sets fields on the participant's hash and refreshes its TTL.
func (s *Store) write(ctx context.Context, id string, fields ...interface{}) error {
	if id == "" {
		return nil
	}
	key := PresencePrefix + id
	fields = append(fields, "updated_at", s.now().Unix())

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields...)
	pipe.Expire(ctx, key, PresenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: write %s: %w", key, err)
	}
	return nil
}

// Get retrieves a participant's presence. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*Presence, error) {
	var p Presence
	if err := s.client.HGetAll(ctx, PresencePrefix+id).Scan(&p); err != nil {
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}

// Delete removes a participant's presence.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, PresencePrefix+id).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}
