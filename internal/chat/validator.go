// Package chat validates the text lines participants exchange inside a room
// and builds the payload relayed to the room.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
)

var ErrEmptyMessage = errors.New("chat: message text is empty")

// ValidateMessage checks that a chat message meets content requirements.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("chat: message exceeds %d byte limit", MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("chat: message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("chat: message exceeds %d character limit", MaxTextChars)
	}
	return nil
}

// NewMessage builds the relay payload for a line sent by from.
func NewMessage(from, text string, at time.Time) protocol.ServerChatMsg {
	return protocol.ServerChatMsg{
		From: from,
		Text: strings.TrimSpace(text),
		Ts:   at.UnixMilli(),
	}
}
