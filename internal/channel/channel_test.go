package channel

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coview/groupwatch/internal/protocol"
)

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, payload); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectIsIdempotent(t *testing.T) {
	srv := newEchoServer(t)

	c := New(wsURL(srv), func(protocol.Message) {}, slog.Default())

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Connect(ctx), "second connect must no-op")
	assert.True(t, c.Connected())

	c.Disconnect()
	assert.False(t, c.Connected())
}

func TestSendDropsWhenDisconnected(t *testing.T) {
	c := New("ws://127.0.0.1:0", func(protocol.Message) {}, slog.Default())

	// must not panic or error
	c.Send(protocol.Message{Action: protocol.ActionPlaying, Data: true})
	c.Disconnect()
}

func TestRoundTripAndMalformedDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var serverConn *websocket.Conn
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- conn
		select {}
	}))
	defer srv.Close()

	received := make(chan protocol.Message, 2)
	c := New(wsURL(srv), func(msg protocol.Message) { received <- msg }, slog.Default())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	serverConn = <-connCh

	// malformed frame is dropped without surfacing anything
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	// well-formed frame is delivered
	require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, []byte(`{"action":"skipped","data":5,"userName":"bob","watchRoom":"r"}`)))

	select {
	case msg := <-received:
		assert.Equal(t, protocol.ActionSkipped, msg.Action)
		pos, ok := msg.Number()
		require.True(t, ok)
		assert.Equal(t, 5.0, pos)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}

	select {
	case msg := <-received:
		t.Fatalf("unexpected extra message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
