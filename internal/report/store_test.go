package report

import (
	"context"
	"os"
	"testing"

	"github.com/Kunalchandra007/SuddenConnect/internal/history"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidReason(t *testing.T) {
	for _, r := range []string{"harassment", "spam", "explicit", "other"} {
		assert.True(t, ValidReason(r), r)
	}
	assert.False(t, ValidReason(""))
	assert.False(t, ValidReason("boring"))
}

func TestCreate_RejectsInvalidReason(t *testing.T) {
	s := NewStore(nil)
	err := s.Create(context.Background(), &Report{Reason: "boring"})
	assert.ErrorIs(t, err, ErrInvalidReason)
}

func TestCreate_Persists(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := history.Open(url)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, history.Migrate(db))

	s := NewStore(db)
	ctx := context.Background()
	roomID := uuid.NewString()

	require.NoError(t, s.Create(ctx, &Report{
		ReporterID: "a",
		ReportedID: "b",
		RoomID:     roomID,
		Reason:     "harassment",
		Messages:   []MessageEntry{{From: "reported", Text: "go away", Ts: 1}},
	}))
	require.NoError(t, s.Create(ctx, &Report{ReporterID: "b", ReportedID: "a", RoomID: roomID, Reason: "other"}))

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM abuse_reports WHERE room_id = $1`, roomID).Scan(&n))
	assert.Equal(t, 2, n)
}
