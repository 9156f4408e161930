package chat

import (
	"sync"

	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
)

// MaxTranscriptLines is the number of recent lines retained per room.
const MaxTranscriptLines = 5

// Transcript keeps the last few chat lines of every live room in memory, for
// attaching to abuse reports. It is goroutine-safe and uses a ring buffer
// per room.
type Transcript struct {
	mu    sync.RWMutex
	rooms map[string]*ringBuffer
}

type ringBuffer struct {
	items [MaxTranscriptLines]protocol.ServerChatMsg
	pos   int
	count int
}

// NewTranscript creates an empty Transcript.
func NewTranscript() *Transcript {
	return &Transcript{rooms: make(map[string]*ringBuffer)}
}

// Add appends a line to the room's buffer, overwriting the oldest line when
// full.
func (t *Transcript) Add(roomID string, msg protocol.ServerChatMsg) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rb, ok := t.rooms[roomID]
	if !ok {
		rb = &ringBuffer{}
		t.rooms[roomID] = rb
	}
	rb.items[rb.pos] = msg
	rb.pos = (rb.pos + 1) % MaxTranscriptLines
	if rb.count < MaxTranscriptLines {
		rb.count++
	}
}

// Get returns the room's lines oldest first.
func (t *Transcript) Get(roomID string) []protocol.ServerChatMsg {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rb, ok := t.rooms[roomID]
	if !ok {
		return []protocol.ServerChatMsg{}
	}
	out := make([]protocol.ServerChatMsg, rb.count)
	start := (rb.pos - rb.count + MaxTranscriptLines) % MaxTranscriptLines
	for i := 0; i < rb.count; i++ {
		out[i] = rb.items[(start+i)%MaxTranscriptLines]
	}
	return out
}

// Remove drops the room's buffer.
func (t *Transcript) Remove(roomID string) {
	t.mu.Lock()
	delete(t.rooms, roomID)
	t.mu.Unlock()
}

// Len returns the number of rooms with a buffer.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}
