package ws

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Kunalchandra007/SuddenConnect/internal/protocol"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pipeConnection(t *testing.T, id string, queue int) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return newConnection(id, server, nil, queue), client
}

func TestConnection_WriteLoopDeliversInOrder(t *testing.T) {
	c, client := pipeConnection(t, "c1", 4)
	go c.writeLoop(time.Second, func(error) {})

	require.NoError(t, c.Send([]byte("one")))
	require.NoError(t, c.Send([]byte("two")))

	for _, want := range []string{"one", "two"} {
		data, op, err := wsutil.ReadServerData(client)
		require.NoError(t, err)
		assert.Equal(t, ws.OpText, op)
		assert.Equal(t, want, string(data))
	}
}

func TestConnection_SendQueueFull(t *testing.T) {
	c, _ := pipeConnection(t, "c2", 1)

	require.NoError(t, c.Send([]byte("fits")))
	assert.ErrorIs(t, c.Send([]byte("overflow")), ErrSendQueueFull)
}

func TestConnection_SendAfterClose(t *testing.T) {
	c, _ := pipeConnection(t, "c3", 4)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")

	assert.ErrorIs(t, c.Send([]byte("late")), ErrConnClosed)
	select {
	case <-c.Closed():
	default:
		t.Fatal("Closed channel should be closed")
	}
}

func TestConnection_WriteFailureReported(t *testing.T) {
	c, client := pipeConnection(t, "c4", 4)
	client.Close()

	failed := make(chan error, 1)
	go c.writeLoop(time.Second, func(err error) { failed <- err })
	require.NoError(t, c.Send([]byte("nobody listens")))

	select {
	case err := <-failed:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("write failure was not reported")
	}
}

func TestConnectionManager(t *testing.T) {
	cm := NewConnectionManager()
	c, _ := pipeConnection(t, "c5", 1)

	cm.Add(c)
	assert.Equal(t, 1, cm.Count())
	assert.Same(t, c, cm.Get("c5"))
	assert.Len(t, cm.All(), 1)

	assert.True(t, cm.Remove("c5"))
	assert.False(t, cm.Remove("c5"))
	assert.Nil(t, cm.Get("c5"))
	assert.ErrorIs(t, c.Send(nil), ErrConnClosed)
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

func nextFrame(t *testing.T, c *Connection) (string, map[string]interface{}) {
	t.Helper()
	select {
	case data := <-c.send:
		var env struct {
			Event string                 `json:"event"`
			Data  map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &env))
		return env.Event, env.Data
	default:
		t.Fatal("no frame queued")
		return "", nil
	}
}

func TestDispatcher(t *testing.T) {
	d := NewMessageDispatcher(zap.NewNop())
	c, _ := pipeConnection(t, "d1", 8)

	var got interface{}
	d.Register(protocol.EventChatMessage, func(conn *Connection, msg interface{}) {
		assert.Same(t, c, conn)
		got = msg
	})

	d.Dispatch(c, []byte(`{"event":"chat:message","data":{"roomId":"r","text":"hi"}}`))
	assert.Equal(t, protocol.ChatMessageMsg{RoomID: "r", Text: "hi"}, got)

	d.Dispatch(c, []byte(`{"event":"ping"}`))
	event, _ := nextFrame(t, c)
	assert.Equal(t, protocol.EventPong, event)

	d.Dispatch(c, []byte(`not json`))
	event, data := nextFrame(t, c)
	assert.Equal(t, protocol.EventError, event)
	assert.Equal(t, "parse_error", data["code"])

	d.Dispatch(c, []byte(`{"event":"offer","data":{"roomId":"r"}}`))
	event, data = nextFrame(t, c)
	assert.Equal(t, protocol.EventError, event)
	assert.Equal(t, "unsupported_event", data["code"])
}

// ---------------------------------------------------------------------------
// Heartbeat
// ---------------------------------------------------------------------------

func TestCheckConnections_EvictsStale(t *testing.T) {
	h := &recordingHandler{}
	srv, err := NewServer(DefaultServerConfig(), h, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.poller.Close() })

	stale, _ := pipeConnection(t, "stale", 1)
	stale.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())
	fresh, client := pipeConnection(t, "fresh", 1)
	go func() { _, _ = io.Copy(io.Discard, client) }()

	srv.conns.Add(stale)
	srv.conns.Add(fresh)

	checkConnections(srv, HeartbeatConfig{Interval: time.Second, Timeout: time.Second}, time.Now())

	assert.Nil(t, srv.Connections().Get("stale"))
	assert.NotNil(t, srv.Connections().Get("fresh"))
	assert.Equal(t, []string{"stale"}, h.disconnectedIDs())
}
