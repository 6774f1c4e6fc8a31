package relay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coview/groupwatch/internal/repository/connection/inmemory"
	keymapRedis "github.com/coview/groupwatch/internal/repository/keymap/redis"
)

func newTestService(t *testing.T, membersLimit int) (*service, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	keymapRepo := keymapRedis.NewRepo(rc, time.Hour)
	connRepo := inmemory.NewRepo()

	return NewService(keymapRepo, connRepo, &Config{MembersLimit: membersLimit}), s
}

func TestRegisterAndResolveRoom(t *testing.T) {
	service, _ := newTestService(t, 10)
	ctx := context.Background()

	err := service.RegisterRoom(ctx, &RegisterRoomParams{
		RoomKey:   "aaaa-bbbb-cccc",
		AuthToken: "token-1",
	})
	require.NoError(t, err)

	authToken, err := service.ResolveRoom(ctx, "aaaa-bbbb-cccc")
	require.NoError(t, err)
	assert.Equal(t, "token-1", authToken)
}

func TestRegisterRoomKeyCollision(t *testing.T) {
	service, _ := newTestService(t, 10)
	ctx := context.Background()

	require.NoError(t, service.RegisterRoom(ctx, &RegisterRoomParams{
		RoomKey:   "aaaa-bbbb-cccc",
		AuthToken: "token-1",
	}))

	err := service.RegisterRoom(ctx, &RegisterRoomParams{
		RoomKey:   "aaaa-bbbb-cccc",
		AuthToken: "token-2",
	})
	assert.ErrorIs(t, err, ErrRoomKeyTaken)

	// the original association survives the collision
	authToken, err := service.ResolveRoom(ctx, "aaaa-bbbb-cccc")
	require.NoError(t, err)
	assert.Equal(t, "token-1", authToken)
}

func TestResolveUnknownRoom(t *testing.T) {
	service, _ := newTestService(t, 10)

	_, err := service.ResolveRoom(context.Background(), "zzzz-zzzz-zzzz")
	assert.ErrorIs(t, err, ErrRoomKeyNotFound)
}

func TestRoomKeyExpires(t *testing.T) {
	service, s := newTestService(t, 10)
	ctx := context.Background()

	require.NoError(t, service.RegisterRoom(ctx, &RegisterRoomParams{
		RoomKey:   "aaaa-bbbb-cccc",
		AuthToken: "token-1",
	}))

	s.FastForward(2 * time.Hour)

	_, err := service.ResolveRoom(ctx, "aaaa-bbbb-cccc")
	assert.ErrorIs(t, err, ErrRoomKeyNotFound)
}

func TestConnectClientEnforcesMembersLimit(t *testing.T) {
	service, _ := newTestService(t, 2)
	ctx := context.Background()

	require.NoError(t, service.ConnectClient(ctx, &ConnectClientParams{
		Conn:     &websocket.Conn{},
		RoomKey:  "aaaa-bbbb-cccc",
		Username: "alice",
	}))
	require.NoError(t, service.ConnectClient(ctx, &ConnectClientParams{
		Conn:     &websocket.Conn{},
		RoomKey:  "aaaa-bbbb-cccc",
		Username: "bob",
	}))

	err := service.ConnectClient(ctx, &ConnectClientParams{
		Conn:     &websocket.Conn{},
		RoomKey:  "aaaa-bbbb-cccc",
		Username: "carol",
	})
	assert.ErrorIs(t, err, ErrRoomFull)

	// a different room is unaffected
	assert.NoError(t, service.ConnectClient(ctx, &ConnectClientParams{
		Conn:     &websocket.Conn{},
		RoomKey:  "dddd-eeee-ffff",
		Username: "carol",
	}))
}

func TestWriteLocksArePerConnection(t *testing.T) {
	service, _ := newTestService(t, 10)
	ctx := context.Background()

	aliceConn := &websocket.Conn{}
	bobConn := &websocket.Conn{}
	require.NoError(t, service.ConnectClient(ctx, &ConnectClientParams{
		Conn:     aliceConn,
		RoomKey:  "aaaa-bbbb-cccc",
		Username: "alice",
	}))
	require.NoError(t, service.ConnectClient(ctx, &ConnectClientParams{
		Conn:     bobConn,
		RoomKey:  "dddd-eeee-ffff",
		Username: "bob",
	}))

	aliceLock := service.writeLock(aliceConn)
	assert.Same(t, aliceLock, service.writeLock(aliceConn), "same conn reuses its lock")
	assert.NotSame(t, aliceLock, service.writeLock(bobConn), "a stalled conn must not gate other rooms")

	// holding one conn's lock leaves writes to the other conn unblocked
	aliceLock.Lock()
	defer aliceLock.Unlock()
	assert.True(t, service.writeLock(bobConn).TryLock())
	service.writeLock(bobConn).Unlock()

	_, _, err := service.DisconnectClient(ctx, aliceConn)
	require.NoError(t, err)
	assert.NotSame(t, aliceLock, service.writeLock(aliceConn), "disconnect releases the conn's lock entry")
}

func TestDisconnectClientReturnsDeparted(t *testing.T) {
	service, _ := newTestService(t, 10)
	ctx := context.Background()

	aliceConn := &websocket.Conn{}
	bobConn := &websocket.Conn{}
	require.NoError(t, service.ConnectClient(ctx, &ConnectClientParams{
		Conn:     aliceConn,
		RoomKey:  "aaaa-bbbb-cccc",
		Username: "alice",
	}))
	require.NoError(t, service.ConnectClient(ctx, &ConnectClientParams{
		Conn:     bobConn,
		RoomKey:  "aaaa-bbbb-cccc",
		Username: "bob",
	}))

	departed, remaining, err := service.DisconnectClient(ctx, aliceConn)
	require.NoError(t, err)
	assert.Equal(t, "alice", departed.Username)
	assert.Equal(t, "aaaa-bbbb-cccc", departed.RoomKey)
	require.Len(t, remaining, 1)
	assert.Same(t, bobConn, remaining[0])

	// a second disconnect of the same conn fails
	_, _, err = service.DisconnectClient(ctx, aliceConn)
	assert.Error(t, err)
}
