package relay

import (
	"context"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/coview/groupwatch/internal/repository/connection"
	"github.com/coview/groupwatch/internal/repository/keymap"
)

type RegisterRoomParams struct {
	RoomKey   string
	AuthToken string
}

// RegisterRoom persists the room-key to content-token association written
// by the hosting client.
func (s *service) RegisterRoom(ctx context.Context, params *RegisterRoomParams) error {
	return s.keymapRepo.RegisterRoomKey(ctx, &keymap.RegisterRoomKeyParams{
		RoomKey:   params.RoomKey,
		AuthToken: params.AuthToken,
	})
}

// ResolveRoom returns the content auth token a joining client needs to load
// the right content before entering the room.
func (s *service) ResolveRoom(ctx context.Context, roomKey string) (string, error) {
	return s.keymapRepo.GetAuthToken(ctx, roomKey)
}

type ConnectClientParams struct {
	Conn     *websocket.Conn
	RoomKey  string
	Username string
}

func (s *service) ConnectClient(ctx context.Context, params *ConnectClientParams) error {
	funcName := "relay.ConnectClient"
	slog.DebugContext(ctx, funcName, "roomKey", params.RoomKey, "username", params.Username)

	if s.connRepo.CountByRoomKey(params.RoomKey) >= s.membersLimit {
		slog.DebugContext(ctx, funcName, "error", ErrRoomFull)
		return ErrRoomFull
	}

	return s.connRepo.Add(params.Conn, connection.Client{
		RoomKey:  params.RoomKey,
		Username: params.Username,
	})
}

// DisconnectClient unregisters the connection and returns who left plus the
// remaining room connections, so the caller can announce the departure.
func (s *service) DisconnectClient(ctx context.Context, conn *websocket.Conn) (connection.Client, []*websocket.Conn, error) {
	client, err := s.connRepo.RemoveByConn(conn)
	if err != nil {
		return connection.Client{}, nil, err
	}
	s.dropWriteLock(conn)

	return client, s.connRepo.GetConnsByRoomKey(client.RoomKey), nil
}

// Broadcast relays one raw payload to every connection in the sender's
// room, the sender included; clients derive self-origin at receipt.
func (s *service) Broadcast(ctx context.Context, sender *websocket.Conn, payload []byte) error {
	client, err := s.connRepo.GetClient(sender)
	if err != nil {
		return err
	}

	s.writeTo(ctx, s.connRepo.GetConnsByRoomKey(client.RoomKey), payload)

	return nil
}

// BroadcastTo writes a payload to an explicit set of connections, for
// server-synthesized announcements.
func (s *service) BroadcastTo(ctx context.Context, conns []*websocket.Conn, payload []byte) {
	s.writeTo(ctx, conns, payload)
}

func (s *service) writeTo(ctx context.Context, conns []*websocket.Conn, payload []byte) {
	funcName := "relay.writeTo"

	for _, conn := range conns {
		mu := s.writeLock(conn)
		mu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, payload)
		mu.Unlock()
		if err != nil {
			// the reader side will notice and disconnect the client
			slog.DebugContext(ctx, funcName, "error", err)
		}
	}
}
