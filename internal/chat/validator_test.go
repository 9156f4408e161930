package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "hello there", false},
		{"unicode", "héllo 👋", false},
		{"empty", "", true},
		{"whitespace only", "   \n\t", true},
		{"at char limit", strings.Repeat("a", MaxTextChars), false},
		{"over char limit", strings.Repeat("a", MaxTextChars+1), true},
		{"over byte limit", strings.Repeat("é", MaxMessageBytes/2+1), true},
		{"invalid utf8", "bad \xff byte", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.ErrorIs(t, ValidateMessage(" "), ErrEmptyMessage)
}

func TestNewMessage(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	msg := NewMessage("p1", "  hi  ", at)

	assert.Equal(t, "p1", msg.From)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, int64(1_700_000_000_123), msg.Ts)
}
