package moderation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFilter(t *testing.T) {
	f := NewFilter()
	require.NotNil(t, f)
	assert.NotEmpty(t, f.words)
	assert.NotEmpty(t, f.phrases)
}

func TestNewFilterWithTerms_EmptyAndWhitespace(t *testing.T) {
	f := NewFilterWithTerms([]string{"", "  ", "Valid", "two  words"})

	assert.Contains(t, f.words, "valid")
	assert.Len(t, f.words, 1)
	assert.Equal(t, [][]string{{"two", "words"}}, f.phrases)
}

// ---------------------------------------------------------------------------
// Blocklist
// ---------------------------------------------------------------------------

func TestCheck_BlockedSingleWord(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact match", "badword", true, "badword"},
		{"in sentence", "this is badword here", true, "badword"},
		{"case insensitive", "BADWORD", true, "badword"},
		{"mixed case", "BaDwOrD", true, "badword"},
		{"with punctuation", "hello, badword!", true, "badword"},
		{"clean message", "hello world", false, ""},
		{"partial match no block", "badwording is fine", false, ""},
		{"substring no block", "mybadword", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			assert.Equal(t, tt.blocked, result.Blocked)
			if tt.blocked {
				assert.Equal(t, tt.term, result.Term)
				assert.Equal(t, "blocked_keyword", result.Reason)
				assert.NotEmpty(t, result.Message)
			}
		})
	}
}

func TestCheck_BlockedPhrase(t *testing.T) {
	f := NewFilterWithTerms([]string{"kill yourself", "go die"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact phrase", "kill yourself", true, "kill yourself"},
		{"phrase in sentence", "you should kill yourself now", true, "kill yourself"},
		{"case insensitive phrase", "KILL YOURSELF", true, "kill yourself"},
		{"extra spacing", "kill    yourself", true, "kill yourself"},
		{"partial word no match", "kill yourselves", false, ""},
		{"words separated", "kill and yourself", false, ""},
		{"go die phrase", "go die already", true, "go die"},
		{"clean message", "i love this chat", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			assert.Equal(t, tt.blocked, result.Blocked)
			if tt.blocked {
				assert.Equal(t, tt.term, result.Term)
			}
		})
	}
}

func TestCheck_Leetspeak(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive", "go die"})

	tests := []struct {
		name  string
		input string
	}{
		{"zero for o", "b@dw0rd"},
		{"at for a", "b@dword"},
		{"dollar for s", "off3n$ive"},
		{"one for i", "offens1ve"},
		{"exclaim for i", "offens!ve"},
		{"mixed leet", "0ff3n$!v3"},
		{"leet at sentence end", "you are b@dw0rd."},
		{"leet phrase", "g0 d!e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, f.Check(tt.input).Blocked)
		})
	}
}

func TestCheck_CleanMessages(t *testing.T) {
	f := NewFilter()

	messages := []string{
		"hello, how are you?",
		"nice weather today",
		"what are your hobbies?",
		"I love programming",
		"do you like music?",
		"let's talk about movies",
		"what class are you in?",
		"I need to assess the situation",
		"the grape harvest was great",
		"",
	}

	for _, msg := range messages {
		result := f.Check(msg)
		assert.False(t, result.Blocked, "Check(%q) blocked with term %q", msg, result.Term)
	}
}

func TestCheck_DefaultBlocklist(t *testing.T) {
	f := NewFilter()

	for _, term := range []string{"kys", "kill yourself", "child porn", "send nudes", "heil hitler", "bomb threat"} {
		assert.True(t, f.Check(term).Blocked, "Check(%q)", term)
	}
}

// ---------------------------------------------------------------------------
// Interests and names
// ---------------------------------------------------------------------------

func TestCheckInterests(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "kill yourself"})

	assert.Equal(t, []string{"music", "movies", "programming"},
		f.CheckInterests([]string{"music", "badword", "movies", "programming"}))
	assert.Equal(t, []string{"music", "movies"}, f.CheckInterests([]string{"music", "movies"}))
	assert.Empty(t, f.CheckInterests(nil))
	assert.Empty(t, f.CheckInterests([]string{}))
}

func TestScreenName(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword"})

	tests := []struct {
		input string
		want  string
	}{
		{"Ada", "Ada"},
		{"  Grace Hopper  ", "Grace Hopper"},
		{"", AnonymousName},
		{"   ", AnonymousName},
		{"badword", AnonymousName},
		{"b@dw0rd", AnonymousName},
		{"www.spam.com/me", AnonymousName},
		{"bad \xff utf8", AnonymousName},
		{strings.Repeat("abcdefghij", 4), strings.Repeat("abcdefghij", 4)[:MaxNameChars]},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, f.ScreenName(tt.input), "ScreenName(%q)", tt.input)
	}
}

// ---------------------------------------------------------------------------
// Tokenizing
// ---------------------------------------------------------------------------

func TestNormalizeLeet(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{"h3ll0", "hello"},
		{"@ss", "ass"},
		{"$h!t", "shit"},
		{"upper", "upper"},
		{"n0", "no"},
		{"ch@ng3", "change"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeLeet(tt.input), "normalizeLeet(%q)", tt.input)
	}
}

func TestTokenizePlain(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"hello world", []string{"hello", "world"}},
		{"hello, world!", []string{"hello", "world"}},
		{"  spaced  out  ", []string{"spaced", "out"}},
		{"one", []string{"one"}},
		{"", nil},
		{"hello---world", []string{"hello", "world"}},
	}

	for _, tt := range tests {
		got := tokenizePlain(tt.input)
		if len(tt.want) == 0 {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, tt.want, got, "tokenizePlain(%q)", tt.input)
	}
}

func TestTokenizeLeet(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"hello world", []string{"hello", "world"}},
		{"b@dw0rd", []string{"b@dw0rd"}},
		{"hello $h!t bye", []string{"hello", "$h!t", "bye"}},
		{"(b@d), ok.", []string{"b@d", "ok"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenizeLeet(tt.input), "tokenizeLeet(%q)", tt.input)
	}
}

// ---------------------------------------------------------------------------
// Performance
// ---------------------------------------------------------------------------

func BenchmarkCheck(b *testing.B) {
	f := NewFilter()
	msg := "hey how are you doing today? I love chatting about music and movies. What are your favorite hobbies?"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Check(msg)
	}
}

func BenchmarkCheck_LongMessage(b *testing.B) {
	f := NewFilter()
	msg := strings.Repeat("this is a perfectly normal message with no bad content. ", 40)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Check(msg)
	}
}

// TestPerformance keeps Check well under a millisecond per message.
func TestPerformance(t *testing.T) {
	f := NewFilter()
	msg := "hey how are you doing today? I love chatting about music and movies. What are your favorite hobbies?"

	const iterations = 1000
	start := time.Now()
	for i := 0; i < iterations; i++ {
		f.Check(msg)
	}
	avgNs := time.Since(start).Nanoseconds() / iterations
	t.Logf("average Check latency: %.2f µs", float64(avgNs)/1000)

	maxNs := int64(200_000)
	if raceDetectorEnabled {
		maxNs = 2_000_000
	}
	assert.LessOrEqual(t, avgNs, maxNs)
}
