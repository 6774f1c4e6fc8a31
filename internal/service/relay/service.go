package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/coview/groupwatch/internal/repository/connection"
	"github.com/coview/groupwatch/internal/repository/keymap"
)

var (
	ErrRoomFull        = errors.New("room is full")
	ErrRoomKeyTaken    = keymap.ErrRoomKeyTaken
	ErrRoomKeyNotFound = keymap.ErrRoomKeyNotFound
)

type iKeymapRepo interface {
	RegisterRoomKey(context.Context, *keymap.RegisterRoomKeyParams) error
	GetAuthToken(context.Context, string) (string, error)
}

type iConnRepo interface {
	Add(*websocket.Conn, connection.Client) error
	RemoveByConn(*websocket.Conn) (connection.Client, error)
	GetClient(*websocket.Conn) (connection.Client, error)
	GetConnsByRoomKey(string) []*websocket.Conn
	CountByRoomKey(string) int
}

type Config struct {
	MembersLimit int
}

type service struct {
	keymapRepo iKeymapRepo
	connRepo   iConnRepo

	membersLimit int

	// one write lock per conn; gorilla conns allow one writer at a time,
	// and a stalled conn must not block fan-out to unrelated conns
	locksMu    sync.Mutex
	writeLocks map[*websocket.Conn]*sync.Mutex
}

func NewService(keymapRepo iKeymapRepo, connRepo iConnRepo, cfg *Config) *service {
	return &service{
		keymapRepo:   keymapRepo,
		connRepo:     connRepo,
		membersLimit: cfg.MembersLimit,
		writeLocks:   make(map[*websocket.Conn]*sync.Mutex),
	}
}

func (s *service) writeLock(conn *websocket.Conn) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.writeLocks[conn]
	if !ok {
		mu = &sync.Mutex{}
		s.writeLocks[conn] = mu
	}

	return mu
}

func (s *service) dropWriteLock(conn *websocket.Conn) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	delete(s.writeLocks, conn)
}
