package gateway

import (
	"fmt"

	"github.com/Kunalchandra007/SuddenConnect/internal/pairing"
	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
	"github.com/Kunalchandra007/SuddenConnect/internal/room"
)

// Transport delivers one encoded frame to a connection. ws.Server
// implements it; Send must only queue the frame.
type Transport interface {
	Send(connID string, data []byte) error
}

// Notifier encodes engine and room notifications into protocol frames.
// Participant frames go straight to the transport, room frames through the
// room's group.
type Notifier struct {
	transport Transport
	group     room.Group
}

var (
	_ pairing.Notifier = (*Notifier)(nil)
	_ room.Sender      = (*Notifier)(nil)
)

// NewNotifier creates a Notifier.
func NewNotifier(transport Transport, group room.Group) *Notifier {
	return &Notifier{transport: transport, group: group}
}

// Notify sends event to one participant.
func (n *Notifier) Notify(participantID, event string, payload any) error {
	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		return err
	}
	if err := n.transport.Send(participantID, data); err != nil {
		return fmt.Errorf("gateway: send %s to %s: %w", event, participantID, err)
	}
	return nil
}

// NotifyRoom sends event to every member of a room.
func (n *Notifier) NotifyRoom(roomID, event string, payload any) error {
	data, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		return err
	}
	if err := n.group.Broadcast(roomID, data); err != nil {
		return fmt.Errorf("gateway: broadcast %s to room %s: %w", event, roomID, err)
	}
	return nil
}
