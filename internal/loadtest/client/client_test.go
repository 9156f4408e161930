package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer announces a session id taken from the name query parameter and
// answers every client frame with a chat:message carrying the event name.
func echoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, _ := protocol.NewServerMessage(protocol.EventSessionCreated,
			protocol.SessionCreatedMsg{ID: "id-" + r.URL.Query().Get("name")})
		if err := wsutil.WriteServerText(conn, hello); err != nil {
			return
		}
		for {
			data, err := wsutil.ReadClientText(conn)
			if err != nil {
				return
			}
			var env protocol.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				return
			}
			reply, _ := protocol.NewServerMessage(protocol.EventChatMessage,
				protocol.ServerChatMsg{From: "server", Text: env.Event + ":" + string(env.Data)})
			if err := wsutil.WriteServerText(conn, reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_SessionAndRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c, err := New(ctx, echoServer(t), url.Values{"name": {"ada"}})
	require.NoError(t, err)
	defer c.Close()

	got := make(chan protocol.ServerChatMsg, 1)
	c.On(protocol.EventChatMessage, func(data json.RawMessage) {
		var msg protocol.ServerChatMsg
		if json.Unmarshal(data, &msg) == nil {
			got <- msg
		}
	})

	require.NoError(t, c.WaitForSession(ctx))
	assert.Equal(t, "id-ada", c.ID())

	require.NoError(t, c.Send(protocol.EventQueueNext, nil))
	select {
	case msg := <-got:
		assert.Equal(t, "queue:next:{}", msg.Text)
	case <-ctx.Done():
		t.Fatal("no reply")
	}

	m := c.Metrics()
	assert.Equal(t, 1, m.MessagesSent)
	assert.Equal(t, 2, m.MessagesReceived)
	assert.Positive(t, m.ConnectLatency)
}

func TestClient_CloseEndsWaits(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c, err := New(ctx, echoServer(t), nil)
	require.NoError(t, err)
	require.NoError(t, c.WaitForSession(ctx))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	case <-ctx.Done():
		t.Fatal("Done not closed")
	}
}
