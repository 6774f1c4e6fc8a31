package controller

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coview/groupwatch/internal/protocol"
	"github.com/coview/groupwatch/internal/service/relay"
	"github.com/coview/groupwatch/pkg/ctxlogger"
)

// serveRoom upgrades the connection and relays every frame to the whole
// room, sender included. The relay stays protocol-blind except for one
// case: when a connection drops without a goodbye, the server synthesizes
// the left message on the client's behalf so peers can re-elect.
func (c controller) serveRoom(w http.ResponseWriter, r *http.Request) {
	roomKey := chi.URLParam(r, "room-key")
	if roomKey == "" {
		c.logger.DebugContext(r.Context(), "empty room key")
		c.writeError(w, http.StatusBadRequest, "empty room key")
		return
	}

	username := r.URL.Query().Get("username")
	if username == "" {
		c.logger.DebugContext(r.Context(), "empty username")
		c.writeError(w, http.StatusBadRequest, "empty username")
		return
	}

	ctx := ctxlogger.AppendCtx(r.Context(), slog.String("room_key", roomKey))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("username", username))

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	if err := c.relayService.ConnectClient(ctx, &relay.ConnectClientParams{
		Conn:     conn,
		RoomKey:  roomKey,
		Username: username,
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to connect client", "error", err)
		return
	}

	sawLeft := false
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.logger.DebugContext(ctx, "read failed, disconnecting client", "error", err)
			break
		}

		if err := c.relayService.Broadcast(ctx, conn, payload); err != nil {
			c.logger.DebugContext(ctx, "failed to broadcast", "error", err)
			break
		}

		var msg protocol.Message
		if json.Unmarshal(payload, &msg) == nil && msg.Action == protocol.ActionLeft {
			sawLeft = true
		}
	}

	client, remaining, err := c.relayService.DisconnectClient(ctx, conn)
	if err != nil {
		return
	}

	if !sawLeft {
		left, err := json.Marshal(protocol.Message{
			Action:    protocol.ActionLeft,
			UserName:  client.Username,
			WatchRoom: client.RoomKey,
		})
		if err == nil {
			c.relayService.BroadcastTo(ctx, remaining, left)
		}
	}
}
