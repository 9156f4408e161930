package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupLimiter(t *testing.T) (*Limiter, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return NewLimiter(db, zaptest.NewLogger(t)), mock
}

func TestAllow_FirstRequestOpensWindow(t *testing.T) {
	l, mock := setupLimiter(t)

	mock.ExpectIncr("rl:next:p1").SetVal(1)
	mock.ExpectExpire("rl:next:p1", time.Minute).SetVal(true)

	res, err := l.Allow(context.Background(), "p1", RuleNext)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestAllow_WithinLimit(t *testing.T) {
	l, mock := setupLimiter(t)

	mock.ExpectIncr("rl:chat:p1").SetVal(5)

	res, err := l.Allow(context.Background(), "p1", RuleChat)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestAllow_OverLimitReportsRetryAfter(t *testing.T) {
	l, mock := setupLimiter(t)

	mock.ExpectIncr("rl:chat:p1").SetVal(6)
	mock.ExpectTTL("rl:chat:p1").SetVal(7 * time.Second)

	res, err := l.Allow(context.Background(), "p1", RuleChat)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 7*time.Second, res.RetryAfter)
}

func TestAllow_MissingTTLFallsBackToWindow(t *testing.T) {
	l, mock := setupLimiter(t)

	mock.ExpectIncr("rl:retry:p1").SetVal(11)
	mock.ExpectTTL("rl:retry:p1").SetVal(-1)

	res, err := l.Allow(context.Background(), "p1", RuleRetry)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, RuleRetry.Window, res.RetryAfter)
}

func TestAllow_FailsOpen(t *testing.T) {
	l, mock := setupLimiter(t)

	mock.ExpectIncr("rl:conn:10.0.0.1").SetErr(errors.New("connection refused"))

	res, err := l.Allow(context.Background(), "10.0.0.1", RuleConnect)
	assert.Error(t, err)
	assert.True(t, res.Allowed)
}

func TestAllow_ExpireFailureDropsKey(t *testing.T) {
	l, mock := setupLimiter(t)

	mock.ExpectIncr("rl:next:p1").SetVal(1)
	mock.ExpectExpire("rl:next:p1", time.Minute).SetErr(errors.New("timeout"))
	mock.ExpectDel("rl:next:p1").SetVal(1)

	res, err := l.Allow(context.Background(), "p1", RuleNext)
	assert.Error(t, err)
	assert.True(t, res.Allowed)
}

func TestRemaining(t *testing.T) {
	l, mock := setupLimiter(t)
	ctx := context.Background()

	mock.ExpectGet("rl:chat:p1").RedisNil()
	n, err := l.Remaining(ctx, "p1", RuleChat)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	mock.ExpectGet("rl:chat:p1").SetVal("3")
	n, err = l.Remaining(ctx, "p1", RuleChat)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mock.ExpectGet("rl:chat:p1").SetVal("9")
	n, err = l.Remaining(ctx, "p1", RuleChat)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
