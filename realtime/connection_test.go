package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chat-relay/domain/event"
)

// dialPair upgrades a test server side connection, wraps it in a started
// Connection, and returns it together with the raw client socket.
func dialPair(t *testing.T) (*Connection, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	ready := make(chan *Connection, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn := NewConnection("c1", ws)
		conn.Start()
		ready <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	conn := <-ready
	t.Cleanup(func() { conn.Close(websocket.CloseNormalClosure, "") })
	return conn, client
}

func TestConnection_Push_Frames_Envelope(t *testing.T) {
	req := require.New(t)
	conn, client := dialPair(t)

	req.NoError(conn.Push(event.NewMessage, map[string]string{"content": "hello"}))

	var env event.Envelope
	req.NoError(client.ReadJSON(&env))
	req.Equal(event.NewMessage, env.Event)
	req.Positive(env.Timestamp)

	var data map[string]string
	req.NoError(json.Unmarshal(env.Data, &data))
	req.Equal("hello", data["content"])
}

func TestConnection_ReadEnvelope_Roundtrip(t *testing.T) {
	req := require.New(t)
	conn, client := dialPair(t)

	req.NoError(client.WriteJSON(event.Envelope{Event: event.Heartbeat}))

	env, err := conn.ReadEnvelope()
	req.NoError(err)
	req.Equal(event.Heartbeat, env.Event)
}

func TestConnection_Malformed_Frame_Is_Not_Fatal(t *testing.T) {
	req := require.New(t)
	conn, client := dialPair(t)

	req.NoError(client.WriteMessage(websocket.TextMessage, []byte("not json")))

	_, err := conn.ReadEnvelope()
	req.Error(err)
	req.True(IsMalformed(err))

	// The transport survives a bad frame
	req.NoError(client.WriteJSON(event.Envelope{Event: event.Heartbeat}))
	env, err := conn.ReadEnvelope()
	req.NoError(err)
	req.Equal(event.Heartbeat, env.Event)
}

func TestConnection_Push_After_Close(t *testing.T) {
	req := require.New(t)
	conn, _ := dialPair(t)

	conn.Close(websocket.CloseNormalClosure, "")
	req.Error(conn.Push(event.Heartbeat, nil))
}
