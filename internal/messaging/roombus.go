package messaging

import (
	"github.com/Kunalchandra007/SuddenConnect/internal/room"
	"go.uber.org/zap"
)

// RoomBus implements room.Group over NATS. Each member of a room holds its
// own subscription to the room subject and receives every frame published
// to it.
type RoomBus struct {
	client  *Client
	deliver room.DeliverFunc
	log     *zap.Logger
}

var _ room.Group = (*RoomBus)(nil)

// NewRoomBus creates a bus that hands received frames to deliver.
func NewRoomBus(client *Client, deliver room.DeliverFunc, logger *zap.Logger) *RoomBus {
	return &RoomBus{client: client, deliver: deliver, log: logger}
}

func subscriptionKey(roomID, participantID string) string {
	return "room:" + roomID + ":" + participantID
}

// Join subscribes participantID to the room.
func (b *RoomBus) Join(roomID, participantID string) error {
	return b.client.Subscribe(subscriptionKey(roomID, participantID), RoomSubject(roomID), func(data []byte) {
		if err := b.deliver(participantID, data); err != nil {
			b.log.Debug("room frame not delivered",
				zap.String("room", roomID),
				zap.String("participant", participantID),
				zap.Error(err))
		}
	})
}

// Leave drains the member's subscription, so a frame published to the room
// just before leaving still reaches them.
func (b *RoomBus) Leave(roomID, participantID string) {
	b.client.Unsubscribe(subscriptionKey(roomID, participantID))
}

// Broadcast publishes data to every member of the room.
func (b *RoomBus) Broadcast(roomID string, data []byte) error {
	return b.client.Publish(RoomSubject(roomID), data)
}
