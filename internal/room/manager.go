// Package room implements the session containers that paired participants
// share: room bookkeeping, the WebRTC signaling relay between the two
// members, and the group membership used to broadcast into a room.
package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/pairing"
	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRoomNotFound = errors.New("room: not found")
	ErrNotMember    = errors.New("room: sender is not a member")
)

// Sender delivers an event to a single participant.
type Sender interface {
	Notify(participantID, event string, payload any) error
}

// Room is one live session between two participants.
type Room struct {
	ID        string
	Members   []string
	Names     map[string]string
	CreatedAt time.Time
}

// Manager tracks rooms and relays signaling between room members. It
// implements pairing.RoomAdapter.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	sender Sender
	group  Group
	log    *zap.Logger
}

var _ pairing.RoomAdapter = (*Manager)(nil)

// NewManager creates a Manager that notifies participants through sender and
// keeps group membership in step with room membership.
func NewManager(sender Sender, group Group, logger *zap.Logger) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		sender: sender,
		group:  group,
		log:    logger,
	}
}

// CreateRoom opens a room for a and b, joins both to its group and tells
// each of them to start signaling.
func (m *Manager) CreateRoom(a, b *pairing.Participant) (string, error) {
	if a == nil || b == nil {
		return "", errors.New("room: create needs two participants")
	}
	id := uuid.NewString()

	if err := m.group.Join(id, a.ID); err != nil {
		return "", fmt.Errorf("room: join %s: %w", a.ID, err)
	}
	if err := m.group.Join(id, b.ID); err != nil {
		m.group.Leave(id, a.ID)
		return "", fmt.Errorf("room: join %s: %w", b.ID, err)
	}

	m.mu.Lock()
	m.rooms[id] = &Room{
		ID:        id,
		Members:   []string{a.ID, b.ID},
		Names:     map[string]string{a.ID: a.Name, b.ID: b.Name},
		CreatedAt: time.Now(),
	}
	m.mu.Unlock()

	m.notify(a.ID, protocol.EventSendOffer, protocol.SendOfferMsg{RoomID: id, PartnerName: b.Name})
	m.notify(b.ID, protocol.EventSendOffer, protocol.SendOfferMsg{RoomID: id, PartnerName: a.Name})

	m.log.Debug("room created", zap.String("room", id), zap.String("a", a.ID), zap.String("b", b.ID))
	return id, nil
}

// TeardownRoom removes the room and every member's group membership.
func (m *Manager) TeardownRoom(roomID string) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	delete(m.rooms, roomID)
	m.mu.Unlock()
	if !ok {
		return
	}
	for _, id := range r.Members {
		m.group.Leave(roomID, id)
	}
	m.log.Debug("room torn down", zap.String("room", roomID))
}

// TeardownParticipant removes one member. The room goes away with its last
// member.
func (m *Manager) TeardownParticipant(roomID, participantID string) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	member := false
	for i, id := range r.Members {
		if id == participantID {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			member = true
			break
		}
	}
	empty := len(r.Members) == 0
	if empty {
		delete(m.rooms, roomID)
	}
	m.mu.Unlock()

	if member {
		m.group.Leave(roomID, participantID)
	}
	if empty {
		m.log.Debug("room closed", zap.String("room", roomID))
	}
}

// Offer relays a session description to the sender's peer.
func (m *Manager) Offer(roomID, senderID string, sdp json.RawMessage) error {
	peer, err := m.peer(roomID, senderID)
	if err != nil {
		return err
	}
	return m.sender.Notify(peer, protocol.EventOffer, protocol.ServerOfferMsg{SDP: sdp, RoomID: roomID})
}

// Answer relays the answer to the sender's peer.
func (m *Manager) Answer(roomID, senderID string, sdp json.RawMessage) error {
	peer, err := m.peer(roomID, senderID)
	if err != nil {
		return err
	}
	return m.sender.Notify(peer, protocol.EventAnswer, protocol.ServerAnswerMsg{SDP: sdp, RoomID: roomID})
}

// IceCandidate relays one ICE candidate to the sender's peer.
func (m *Manager) IceCandidate(roomID, senderID string, candidate json.RawMessage, kind string) error {
	peer, err := m.peer(roomID, senderID)
	if err != nil {
		return err
	}
	return m.sender.Notify(peer, protocol.EventAddIceCandidate, protocol.ServerIceCandidateMsg{Candidate: candidate, Type: kind})
}

// Peer returns the other member of roomID.
func (m *Manager) Peer(roomID, participantID string) (string, bool) {
	peer, err := m.peer(roomID, participantID)
	return peer, err == nil
}

// IsMember reports whether participantID belongs to roomID.
func (m *Manager) IsMember(roomID, participantID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	for _, id := range r.Members {
		if id == participantID {
			return true
		}
	}
	return false
}

// Members returns the current members of roomID.
func (m *Manager) Members(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]string(nil), r.Members...)
}

// Count returns the number of open rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *Manager) peer(roomID, senderID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return "", ErrRoomNotFound
	}
	isMember := false
	peer := ""
	for _, id := range r.Members {
		if id == senderID {
			isMember = true
		} else {
			peer = id
		}
	}
	if !isMember {
		return "", ErrNotMember
	}
	if peer == "" {
		return "", ErrRoomNotFound
	}
	return peer, nil
}

func (m *Manager) notify(id, event string, payload any) {
	if err := m.sender.Notify(id, event, payload); err != nil {
		m.log.Warn("room notify failed",
			zap.String("participant", id),
			zap.String("event", event),
			zap.Error(err))
	}
}
