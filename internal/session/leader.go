package session

import (
	"github.com/coview/groupwatch/internal/protocol"
)

// Elect recomputes the leader after a membership change: the present member
// with the earliest join order wins. It returns the new leader's username
// and, when this client is the designated announcer, the leader message to
// broadcast. Exactly one client announces per change: the new leader itself
// when it is alone, otherwise the earliest-joined member that is not the new
// leader. An empty room elects nobody and announces nothing.
func (m *Manager) Elect() (string, *protocol.Message) {
	members := m.Members()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(members) == 0 {
		m.state.LeaderUsername = ""
		m.state.IsLeader = false
		return "", nil
	}

	newLeader := members[0].Username
	m.state.LeaderUsername = newLeader
	if newLeader != m.username {
		m.state.IsLeader = false
	}

	announcer := newLeader
	if len(members) > 1 {
		announcer = members[1].Username
	}

	if announcer != m.username {
		return newLeader, nil
	}

	return newLeader, &protocol.Message{
		Action:    protocol.ActionLeader,
		Data:      newLeader,
		UserName:  m.username,
		WatchRoom: m.state.RoomKey,
	}
}
