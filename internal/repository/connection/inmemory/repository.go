package inmemory

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/coview/groupwatch/internal/repository/connection"
)

type repo struct {
	mu       sync.RWMutex
	connList map[*websocket.Conn]connection.Client
	roomList map[string]map[*websocket.Conn]struct{}
}

func NewRepo() *repo {
	return &repo{
		connList: make(map[*websocket.Conn]connection.Client),
		roomList: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (r *repo) Add(conn *websocket.Conn, client connection.Client) error {
	funcName := "connection.inmemory.Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "roomKey", client.RoomKey, "username", client.Username)
	if _, ok := r.connList[conn]; ok {
		slog.Info(funcName, "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	r.connList[conn] = client
	if r.roomList[client.RoomKey] == nil {
		r.roomList[client.RoomKey] = make(map[*websocket.Conn]struct{})
	}
	r.roomList[client.RoomKey][conn] = struct{}{}

	return nil
}

func (r *repo) RemoveByConn(conn *websocket.Conn) (connection.Client, error) {
	funcName := "connection.inmemory.RemoveByConn"
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.connList[conn]
	if !ok {
		slog.Debug(funcName, "error", connection.ErrNotFound)
		return connection.Client{}, connection.ErrNotFound
	}

	delete(r.connList, conn)
	if room := r.roomList[client.RoomKey]; room != nil {
		delete(room, conn)
		if len(room) == 0 {
			delete(r.roomList, client.RoomKey)
		}
	}

	slog.Debug(funcName, "roomKey", client.RoomKey, "username", client.Username)
	return client, nil
}

func (r *repo) GetClient(conn *websocket.Conn) (connection.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.connList[conn]
	if !ok {
		return connection.Client{}, connection.ErrNotFound
	}

	return client, nil
}

func (r *repo) GetConnsByRoomKey(roomKey string) []*websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*websocket.Conn, 0, len(r.roomList[roomKey]))
	for conn := range r.roomList[roomKey] {
		conns = append(conns, conn)
	}

	return conns
}

func (r *repo) CountByRoomKey(roomKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.roomList[roomKey])
}
