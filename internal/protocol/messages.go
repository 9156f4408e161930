// Package protocol defines the WebSocket messages exchanged between browsers
// and the SuddenConnect server. Every frame is a JSON object of the form
// {"event": "<name>", "data": {...}}; the event name selects the payload.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Event name constants
// ---------------------------------------------------------------------------

// Client -> Server events.
const (
	EventQueueJoin       = "queue:join"
	EventQueueNext       = "queue:next"
	EventQueueLeave      = "queue:leave"
	EventQueueRetry      = "queue:retry"
	EventOffer           = "offer"
	EventAnswer          = "answer"
	EventAddIceCandidate = "add-ice-candidate"
	EventChatMessage     = "chat:message"
	EventReport          = "report"
	EventPing            = "ping"
)

// Server -> Client events. Offer, answer, add-ice-candidate and chat:message
// are relayed to the partner under the same names they arrive with.
const (
	EventSessionCreated = "session:created"
	EventLobby          = "lobby"
	EventQueueWaiting   = "queue:waiting"
	EventQueueTimeout   = "queue:timeout"
	EventPartnerLeft    = "partner:left"
	EventSendOffer      = "send-offer"
	EventChatSystem     = "chat:system"
	EventReportReceived = "report:received"
	EventRateLimited    = "rate-limited"
	EventError          = "error"
	EventPong           = "pong"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the event name and the still-encoded payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UnmarshalJSON rejects frames without an event name.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var partial struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Event == "" {
		return fmt.Errorf("protocol: missing or empty \"event\" field")
	}
	e.Event = partial.Event
	e.Data = partial.Data
	return nil
}

// hasData reports whether the envelope carries a non-null payload.
func (e *Envelope) hasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

// Preferences is the matching profile a client submits with queue:join or on
// the connect URL.
type Preferences struct {
	Industry   string   `json:"industry"`
	Language   string   `json:"language"`
	SkillLevel string   `json:"skillLevel"`
	Interests  []string `json:"interests"`
}

// QueueJoinMsg updates the participant's display name and preferences.
type QueueJoinMsg struct {
	Name        string       `json:"name"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// QueueNextMsg asks for a new partner.
type QueueNextMsg struct{}

// QueueLeaveMsg leaves the pool or the current pairing.
type QueueLeaveMsg struct{}

// QueueRetryMsg re-enters the pool after a timeout.
type QueueRetryMsg struct{}

// OfferMsg carries a WebRTC session description to the partner.
type OfferMsg struct {
	SDP    json.RawMessage `json:"sdp"`
	RoomID string          `json:"roomId"`
}

// AnswerMsg carries the partner's WebRTC answer.
type AnswerMsg struct {
	SDP    json.RawMessage `json:"sdp"`
	RoomID string          `json:"roomId"`
}

// IceCandidateMsg carries one ICE candidate. Type names the side that
// produced it ("sender" or "receiver").
type IceCandidateMsg struct {
	Candidate json.RawMessage `json:"candidate"`
	RoomID    string          `json:"roomId"`
	Type      string          `json:"type"`
}

// ChatMessageMsg is a text message for the current partner.
type ChatMessageMsg struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// ReportMsg reports the partner in a room for abuse. Reason is one of
// harassment, spam, explicit or other.
type ReportMsg struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// PingMsg is a client keepalive.
type PingMsg struct{}

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

// SessionCreatedMsg tells the client its participant ID.
type SessionCreatedMsg struct {
	ID string `json:"id"`
}

// LobbyMsg confirms the client is connected and waiting.
type LobbyMsg struct{}

// QueueWaitingMsg confirms a retry put the client back in the pool.
type QueueWaitingMsg struct{}

// QueueTimeoutMsg tells the client no partner was found in time.
type QueueTimeoutMsg struct {
	Message  string `json:"message"`
	WaitTime int64  `json:"waitTime"` // milliseconds
}

// PartnerLeftMsg tells the client its partner is gone and why.
type PartnerLeftMsg struct {
	Reason string `json:"reason"`
}

// SendOfferMsg tells both members of a new room to start signaling.
type SendOfferMsg struct {
	RoomID      string `json:"roomId"`
	PartnerName string `json:"partnerName"`
}

// ServerOfferMsg relays the partner's offer.
type ServerOfferMsg struct {
	SDP    json.RawMessage `json:"sdp"`
	RoomID string          `json:"roomId"`
}

// ServerAnswerMsg relays the partner's answer.
type ServerAnswerMsg struct {
	SDP    json.RawMessage `json:"sdp"`
	RoomID string          `json:"roomId"`
}

// ServerIceCandidateMsg relays one of the partner's ICE candidates.
type ServerIceCandidateMsg struct {
	Candidate json.RawMessage `json:"candidate"`
	Type      string          `json:"type"`
}

// ChatSystemMsg is a server-authored line shown in the room's chat.
type ChatSystemMsg struct {
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// ServerChatMsg relays a chat line from the partner.
type ServerChatMsg struct {
	From string `json:"from"`
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// ReportReceivedMsg acknowledges a stored report.
type ReportReceivedMsg struct{}

// RateLimitedMsg is sent when an action was rejected for exceeding its rate.
type RateLimitedMsg struct {
	Action     string `json:"action"`
	RetryAfter int    `json:"retryAfter"`
}

// ErrorMsg communicates an error condition.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a ping.
type PongMsg struct{}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage decodes a raw frame into the event name and its typed
// payload. Unknown and server-only events are errors. Events without a
// payload may omit "data".
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Event {
	case EventQueueJoin:
		var m QueueJoinMsg
		err = env.decode(&m)
		msg = m
	case EventQueueNext:
		msg = QueueNextMsg{}
	case EventQueueLeave:
		msg = QueueLeaveMsg{}
	case EventQueueRetry:
		msg = QueueRetryMsg{}
	case EventOffer:
		var m OfferMsg
		err = env.decode(&m)
		msg = m
	case EventAnswer:
		var m AnswerMsg
		err = env.decode(&m)
		msg = m
	case EventAddIceCandidate:
		var m IceCandidateMsg
		err = env.decode(&m)
		msg = m
	case EventChatMessage:
		var m ChatMessageMsg
		err = env.decode(&m)
		msg = m
	case EventReport:
		var m ReportMsg
		err = env.decode(&m)
		msg = m
	case EventPing:
		msg = PingMsg{}
	default:
		return env.Event, nil, fmt.Errorf("protocol: unknown client event: %q", env.Event)
	}

	if err != nil {
		return env.Event, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Event, err)
	}
	return env.Event, msg, nil
}

func (e *Envelope) decode(v interface{}) error {
	if !e.hasData() {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// NewServerMessage encodes a server event and its payload into one frame.
// A nil payload is sent as an empty object.
func NewServerMessage(event string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}
	out, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
