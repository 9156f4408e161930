package pairing

import (
	"testing"

	"github.com/Kunalchandra007/SuddenConnect/internal/ban"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prefs(industry, language, level string, interests ...string) *Preferences {
	return &Preferences{Industry: industry, Language: language, Level: level, Interests: interests}
}

func noBans(a, b string) bool { return false }

func TestSelectBestPair_PicksHighestScore(t *testing.T) {
	pool := []Candidate{
		{ID: "a", Preferences: prefs("Tech", "English", "")},
		{ID: "b", Preferences: prefs("Finance", "English", "")},
		{ID: "c", Preferences: prefs("Finance", "English", "", "golf")},
		{ID: "d", Preferences: prefs("Finance", "English", "", "golf")},
	}

	p, ok := SelectBestPair(pool, noBans)
	require.True(t, ok)
	assert.Equal(t, Pair{A: "c", B: "d", Score: 85}, p)
}

func TestSelectBestPair_TiesGoToScanOrder(t *testing.T) {
	pool := []Candidate{
		{ID: "a", Preferences: prefs("Tech", "English", "")},
		{ID: "b", Preferences: prefs("Tech", "English", "")},
		{ID: "c", Preferences: prefs("Tech", "English", "")},
	}

	p, ok := SelectBestPair(pool, noBans)
	require.True(t, ok)
	assert.Equal(t, "a", p.A)
	assert.Equal(t, "b", p.B)
	assert.False(t, p.Fallback)
}

func TestSelectBestPair_SkipsBannedPairs(t *testing.T) {
	bans := ban.NewRegistry()
	bans.Ban("a", "b")
	pool := []Candidate{
		{ID: "a", Preferences: prefs("Tech", "English", "")},
		{ID: "b", Preferences: prefs("Tech", "English", "")},
		{ID: "c", Preferences: prefs("Tech", "German", "")},
	}

	p, ok := SelectBestPair(pool, bans.IsBanned)
	require.True(t, ok)
	assert.Equal(t, Pair{A: "a", B: "c", Score: 50}, p)
}

func TestSelectBestPair_FallbackWithoutPreferences(t *testing.T) {
	pool := []Candidate{
		{ID: "a"},
		{ID: "b", Preferences: prefs("Tech", "English", "")},
		{ID: "c"},
	}

	p, ok := SelectBestPair(pool, noBans)
	require.True(t, ok)
	assert.Equal(t, Pair{A: "a", B: "b", Fallback: true}, p)
}

func TestSelectBestPair_FallbackWhenNothingScores(t *testing.T) {
	pool := []Candidate{
		{ID: "a", Preferences: prefs("Tech", "English", "")},
		{ID: "b", Preferences: prefs("Law", "Korean", "")},
	}

	p, ok := SelectBestPair(pool, noBans)
	require.True(t, ok)
	assert.True(t, p.Fallback)
	assert.Equal(t, 0, p.Score)
}

func TestSelectBestPair_FallbackRespectsBans(t *testing.T) {
	bans := ban.NewRegistry()
	bans.Ban("b", "a")

	_, ok := SelectBestPair([]Candidate{{ID: "a"}, {ID: "b"}}, bans.IsBanned)
	assert.False(t, ok)
}

func TestSelectBestPair_TooFewCandidates(t *testing.T) {
	_, ok := SelectBestPair(nil, noBans)
	assert.False(t, ok)

	_, ok = SelectBestPair([]Candidate{{ID: "a", Preferences: prefs("Tech", "English", "")}}, noBans)
	assert.False(t, ok)
}
