package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/coview/groupwatch/internal/protocol"
)

var ErrMemberNotFound = errors.New("member not found")

// Member is one client known to be present in the room. JoinedAt is the
// sender-reported join time carried on the wire, so every peer orders the
// membership identically; username breaks ties within the same millisecond.
type Member struct {
	ClientId string    `json:"client_id,omitempty"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// State is the whole session, one explicit value instead of scattered
// ambient flags. Snapshot returns read-only copies of it for UI consumers.
type State struct {
	RoomKey        string                 `json:"room_key"`
	LeaderUsername string                 `json:"leader_username"`
	IsLeader       bool                   `json:"is_leader"`
	Members        []Member               `json:"members"`
	UpNext         *protocol.UpNextHolder `json:"up_next,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Manager owns the session state. The reconciler and the message router
// mutate it through methods; nothing else holds a reference to the inner
// state.
type Manager struct {
	mu       sync.RWMutex
	state    State
	username string
	clientId string
	joinedAt time.Time
}

func NewManager(clientId, username string) *Manager {
	return &Manager{
		clientId: clientId,
		username: username,
		joinedAt: time.Now(),
		state:    State{CreatedAt: time.Now()},
	}
}

func (m *Manager) Username() string { return m.username }
func (m *Manager) ClientId() string { return m.clientId }

// JoinedAtMillis is this client's own join time as carried in join and
// joined messages.
func (m *Manager) JoinedAtMillis() int64 { return m.joinedAt.UnixMilli() }

func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.state
	s.Members = slices.Clone(m.state.Members)
	sortMembers(s.Members)
	if m.state.UpNext != nil {
		upNext := *m.state.UpNext
		s.UpNext = &upNext
	}

	return s
}

func (m *Manager) RoomKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.RoomKey
}

func (m *Manager) SetRoomKey(roomKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.RoomKey = roomKey
}

func (m *Manager) IsLeader() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.IsLeader
}

func (m *Manager) SetLeader(isLeader bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.IsLeader = isLeader
	if isLeader {
		m.state.LeaderUsername = m.username
	}
}

func (m *Manager) LeaderUsername() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.LeaderUsername
}

func (m *Manager) UpNext() *protocol.UpNextHolder {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state.UpNext == nil {
		return nil
	}
	upNext := *m.state.UpNext

	return &upNext
}

func (m *Manager) SetUpNext(upNext *protocol.UpNextHolder) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpNext = upNext
}

// AddMember records a newly joined member with its wire-reported join time.
// A zero joinedAt falls back to the local clock. Adding a username that is
// already present keeps the original entry.
func (m *Manager) AddMember(username string, joinedAt time.Time) Member {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, member := range m.state.Members {
		if member.Username == username {
			return member
		}
	}

	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}

	clientId := ""
	if username == m.username {
		clientId = m.clientId
	}

	member := Member{
		ClientId: clientId,
		Username: username,
		JoinedAt: joinedAt,
	}
	m.state.Members = append(m.state.Members, member)

	return member
}

func (m *Manager) RemoveMember(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, member := range m.state.Members {
		if member.Username == username {
			m.state.Members = slices.Delete(m.state.Members, i, i+1)
			return nil
		}
	}

	return ErrMemberNotFound
}

func (m *Manager) Members() []Member {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := slices.Clone(m.state.Members)
	sortMembers(members)

	return members
}

// sortMembers orders by reported join time, username as tiebreak. Callers
// hold the manager lock or own the slice.
func sortMembers(members []Member) {
	slices.SortFunc(members, func(a, b Member) int {
		am, bm := a.JoinedAt.UnixMilli(), b.JoinedAt.UnixMilli()
		if am != bm {
			if am < bm {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Username, b.Username)
	})
}

// Reset clears everything except identity, for reuse after a leave.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = State{CreatedAt: time.Now()}
}
