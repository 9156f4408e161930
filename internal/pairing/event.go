package pairing

import "time"

// EventKind names a lifecycle transition.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventQueued       EventKind = "queued"
	EventMatched      EventKind = "matched"
	EventUnpaired     EventKind = "unpaired"
	EventTimeout      EventKind = "timeout"
	EventLeft         EventKind = "left"
	EventDisconnected EventKind = "disconnected"
)

// Event describes one transition for observers such as presence mirrors,
// history stores and message buses. For EventMatched and EventUnpaired,
// ParticipantID and PartnerID are the two sides of the pair; for
// EventUnpaired ParticipantID is the side that ended it.
type Event struct {
	Kind          EventKind     `json:"kind"`
	ParticipantID string        `json:"participantId"`
	PartnerID     string        `json:"partnerId,omitempty"`
	RoomID        string        `json:"roomId,omitempty"`
	Name          string        `json:"name,omitempty"`
	PartnerName   string        `json:"partnerName,omitempty"`
	Reason        Reason        `json:"reason,omitempty"`
	Score         int           `json:"score,omitempty"`
	Fallback      bool          `json:"fallback,omitempty"`
	Wait          time.Duration `json:"wait,omitempty"`
	At            time.Time     `json:"at"`
}
