package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a queue:join message with preferences
// ---------------------------------------------------------------------------

func TestParseClientMessage_QueueJoin(t *testing.T) {
	input := []byte(`{"event":"queue:join","data":{"name":"Ada","preferences":{"industry":"Tech","language":"English","skillLevel":"Junior (1-3 years)","interests":["go","chess"]}}}`)

	event, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != EventQueueJoin {
		t.Fatalf("expected event %q, got %q", EventQueueJoin, event)
	}

	qj, ok := msg.(QueueJoinMsg)
	if !ok {
		t.Fatalf("expected QueueJoinMsg, got %T", msg)
	}
	if qj.Name != "Ada" {
		t.Errorf("expected name %q, got %q", "Ada", qj.Name)
	}
	if qj.Preferences == nil {
		t.Fatal("expected preferences, got nil")
	}
	if qj.Preferences.SkillLevel != "Junior (1-3 years)" {
		t.Errorf("unexpected skill level %q", qj.Preferences.SkillLevel)
	}
	if len(qj.Preferences.Interests) != 2 || qj.Preferences.Interests[1] != "chess" {
		t.Errorf("unexpected interests: %v", qj.Preferences.Interests)
	}
}

// ---------------------------------------------------------------------------
// Test: Events without a payload may omit data
// ---------------------------------------------------------------------------

func TestParseClientMessage_NoData(t *testing.T) {
	for _, event := range []string{EventQueueNext, EventQueueLeave, EventQueueRetry, EventPing} {
		got, msg, err := ParseClientMessage([]byte(`{"event":"` + event + `"}`))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", event, err)
		}
		if got != event {
			t.Errorf("expected event %q, got %q", event, got)
		}
		if msg == nil {
			t.Errorf("%s: expected non-nil message", event)
		}
	}

	_, msg, err := ParseClientMessage([]byte(`{"event":"queue:join","data":null}`))
	if err != nil {
		t.Fatalf("unexpected error for null data: %v", err)
	}
	if qj := msg.(QueueJoinMsg); qj.Name != "" || qj.Preferences != nil {
		t.Errorf("expected zero QueueJoinMsg, got %+v", qj)
	}
}

// ---------------------------------------------------------------------------
// Test: ICE candidates keep their opaque candidate body
// ---------------------------------------------------------------------------

func TestParseClientMessage_IceCandidate(t *testing.T) {
	input := []byte(`{"event":"add-ice-candidate","data":{"candidate":{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 5000 typ host","sdpMid":"0"},"roomId":"r1","type":"sender"}}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ic, ok := msg.(IceCandidateMsg)
	if !ok {
		t.Fatalf("expected IceCandidateMsg, got %T", msg)
	}
	if ic.RoomID != "r1" || ic.Type != "sender" {
		t.Errorf("unexpected candidate routing: %+v", ic)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(ic.Candidate, &body); err != nil {
		t.Fatalf("candidate is not valid JSON: %v", err)
	}
	if body["sdpMid"] != "0" {
		t.Errorf("expected sdpMid 0, got %v", body["sdpMid"])
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a queue:timeout server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_QueueTimeout(t *testing.T) {
	data, err := NewServerMessage(EventQueueTimeout, QueueTimeoutMsg{
		Message:  "We couldn't find a match right now. Please try again later.",
		WaitTime: 300000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Event string                 `json:"event"`
		Data  map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result.Event != EventQueueTimeout {
		t.Errorf("expected event %q, got %q", EventQueueTimeout, result.Event)
	}
	if wait, _ := result.Data["waitTime"].(float64); int64(wait) != 300000 {
		t.Errorf("expected waitTime 300000, got %v", result.Data["waitTime"])
	}
}

func TestNewServerMessage_NilPayload(t *testing.T) {
	data, err := NewServerMessage(EventLobby, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"event":"lobby","data":{}}` {
		t.Errorf("unexpected frame %s", data)
	}
}

// ---------------------------------------------------------------------------
// Test: Unknown and server-only events are rejected
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownEvent(t *testing.T) {
	for _, input := range []string{
		`{"event":"unknown_event","data":{}}`,
		`{"event":"partner:left","data":{"reason":"next"}}`,
	} {
		event, msg, err := ParseClientMessage([]byte(input))
		if err == nil {
			t.Fatalf("expected an error for %s, got nil", input)
		}
		if msg != nil {
			t.Errorf("expected nil message, got %v", msg)
		}
		if event == "" {
			t.Errorf("expected the event name to be returned for %s", input)
		}
	}
}

func TestParseClientMessage_BadPayload(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"event":"chat:message","data":{"text":42}}`))
	if err == nil {
		t.Fatal("expected a decode error, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Round trip of a relayed offer
// ---------------------------------------------------------------------------

func TestRoundTrip_Offer(t *testing.T) {
	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	data, err := NewServerMessage(EventOffer, OfferMsg{SDP: sdp, RoomID: "room-1"})
	if err != nil {
		t.Fatalf("failed to create message: %v", err)
	}

	event, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != EventOffer {
		t.Fatalf("expected event %q, got %q", EventOffer, event)
	}
	offer := msg.(OfferMsg)
	if offer.RoomID != "room-1" {
		t.Errorf("expected roomId room-1, got %q", offer.RoomID)
	}
	if string(offer.SDP) != string(sdp) {
		t.Errorf("sdp mismatch: %s", offer.SDP)
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingEvent(t *testing.T) {
	var env Envelope
	if err := json.Unmarshal([]byte(`{"data":{}}`), &env); err == nil {
		t.Fatal("expected error for missing event field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	var env Envelope
	if err := json.Unmarshal([]byte(`{invalid json}`), &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client events succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllEvents(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"join", `{"event":"queue:join","data":{"name":"x"}}`, EventQueueJoin},
		{"next", `{"event":"queue:next","data":{}}`, EventQueueNext},
		{"leave", `{"event":"queue:leave"}`, EventQueueLeave},
		{"retry", `{"event":"queue:retry"}`, EventQueueRetry},
		{"offer", `{"event":"offer","data":{"sdp":{},"roomId":"r"}}`, EventOffer},
		{"answer", `{"event":"answer","data":{"sdp":{},"roomId":"r"}}`, EventAnswer},
		{"ice", `{"event":"add-ice-candidate","data":{"candidate":{},"roomId":"r","type":"receiver"}}`, EventAddIceCandidate},
		{"chat", `{"event":"chat:message","data":{"roomId":"r","text":"hi"}}`, EventChatMessage},
		{"report", `{"event":"report","data":{"roomId":"r","reason":"spam"}}`, EventReport},
		{"ping", `{"event":"ping"}`, EventPing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if event != tc.want {
				t.Errorf("expected event %q, got %q", tc.want, event)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
