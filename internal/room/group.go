package room

import (
	"errors"
	"sync"
)

// Group fans encoded frames out to everyone currently in a room.
type Group interface {
	Join(roomID, participantID string) error
	Leave(roomID, participantID string)
	Broadcast(roomID string, data []byte) error
}

// DeliverFunc writes one encoded frame to a participant's connection.
type DeliverFunc func(participantID string, data []byte) error

// LocalGroup keeps room membership in memory and delivers directly.
type LocalGroup struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
	deliver DeliverFunc
}

var _ Group = (*LocalGroup)(nil)

// NewLocalGroup creates an in-process group that hands frames to deliver.
func NewLocalGroup(deliver DeliverFunc) *LocalGroup {
	return &LocalGroup{
		members: make(map[string]map[string]struct{}),
		deliver: deliver,
	}
}

func (g *LocalGroup) Join(roomID, participantID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.members[roomID]
	if !ok {
		set = make(map[string]struct{}, 2)
		g.members[roomID] = set
	}
	set[participantID] = struct{}{}
	return nil
}

func (g *LocalGroup) Leave(roomID, participantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.members[roomID]
	if !ok {
		return
	}
	delete(set, participantID)
	if len(set) == 0 {
		delete(g.members, roomID)
	}
}

// Broadcast delivers data to every member. Failures for single members are
// joined into the returned error; the rest still receive the frame.
func (g *LocalGroup) Broadcast(roomID string, data []byte) error {
	g.mu.RLock()
	set, ok := g.members[roomID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	g.mu.RUnlock()
	if !ok {
		return ErrRoomNotFound
	}

	var errs []error
	for _, id := range ids {
		if err := g.deliver(id, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
