package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/pairing"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func setupStore(t *testing.T) (*Store, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	s := NewStore(db, "ws-1")
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func expectWrite(mock redismock.ClientMock, id string, fields ...interface{}) {
	key := PresencePrefix + id
	fields = append(fields, "updated_at", fixedNow.Unix())
	mock.ExpectTxPipeline()
	mock.ExpectHSet(key, fields...).SetVal(int64(len(fields) / 2))
	mock.ExpectExpire(key, PresenceTTL).SetVal(true)
	mock.ExpectTxPipelineExec()
}

func TestHandle_Connected(t *testing.T) {
	s, mock := setupStore(t)
	expectWrite(mock, "p1",
		"id", "p1",
		"name", "Ada",
		"status", StatusIdle,
		"room_id", "",
		"partner_id", "",
		"server", "ws-1")

	err := s.Handle(context.Background(), pairing.Event{Kind: pairing.EventConnected, ParticipantID: "p1", Name: "Ada"})
	require.NoError(t, err)
}

func TestHandle_MatchedWritesBothSides(t *testing.T) {
	s, mock := setupStore(t)
	expectWrite(mock, "a", "status", StatusPaired, "room_id", "r1", "partner_id", "b")
	expectWrite(mock, "b", "status", StatusPaired, "room_id", "r1", "partner_id", "a")

	err := s.Handle(context.Background(), pairing.Event{
		Kind: pairing.EventMatched, ParticipantID: "a", PartnerID: "b", RoomID: "r1",
	})
	require.NoError(t, err)
}

func TestHandle_UnpairedClearsBothSides(t *testing.T) {
	s, mock := setupStore(t)
	expectWrite(mock, "a", "status", StatusIdle, "room_id", "", "partner_id", "")
	expectWrite(mock, "b", "status", StatusIdle, "room_id", "", "partner_id", "")

	err := s.Handle(context.Background(), pairing.Event{
		Kind: pairing.EventUnpaired, ParticipantID: "a", PartnerID: "b", RoomID: "r1", Reason: pairing.ReasonNext,
	})
	require.NoError(t, err)
}

func TestHandle_QueuedAndTimeout(t *testing.T) {
	s, mock := setupStore(t)
	expectWrite(mock, "p1", "status", StatusQueued, "room_id", "", "partner_id", "")
	expectWrite(mock, "p1", "status", StatusTimeout)

	ctx := context.Background()
	require.NoError(t, s.Handle(ctx, pairing.Event{Kind: pairing.EventQueued, ParticipantID: "p1"}))
	require.NoError(t, s.Handle(ctx, pairing.Event{Kind: pairing.EventTimeout, ParticipantID: "p1"}))
}

func TestHandle_DisconnectedDeletes(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectDel(PresencePrefix + "p1").SetVal(1)

	err := s.Handle(context.Background(), pairing.Event{Kind: pairing.EventDisconnected, ParticipantID: "p1"})
	require.NoError(t, err)
}

func TestHandle_WrapsRedisErrors(t *testing.T) {
	s, mock := setupStore(t)
	mock.ExpectDel(PresencePrefix + "p1").SetErr(errors.New("connection refused"))

	err := s.Handle(context.Background(), pairing.Event{Kind: pairing.EventDisconnected, ParticipantID: "p1"})
	assert.ErrorContains(t, err, "session: delete p1")
}

func TestGet(t *testing.T) {
	s, mock := setupStore(t)
	ctx := context.Background()

	mock.ExpectHGetAll(PresencePrefix + "p1").SetVal(map[string]string{
		"id":         "p1",
		"name":       "Ada",
		"status":     StatusPaired,
		"room_id":    "r1",
		"partner_id": "p2",
		"server":     "ws-1",
		"updated_at": "1700000000",
	})
	p, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, Presence{
		ID: "p1", Name: "Ada", Status: StatusPaired, RoomID: "r1", PartnerID: "p2",
		Server: "ws-1", UpdatedAt: 1_700_000_000,
	}, *p)

	mock.ExpectHGetAll(PresencePrefix + "ghost").SetVal(map[string]string{})
	p, err = s.Get(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, p)
}
