package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coview/groupwatch/internal/repository/keymap"
)

type repo struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRepo(rc *redis.Client, ttl time.Duration) *repo {
	return &repo{
		rc:  rc,
		ttl: ttl,
	}
}

func (r repo) getRoomKeyKey(roomKey string) string {
	return "room-key:" + roomKey
}

// RegisterRoomKey claims the key with SetNX so a collision surfaces as
// ErrRoomKeyTaken instead of silently overwriting another room's content.
func (r repo) RegisterRoomKey(ctx context.Context, params *keymap.RegisterRoomKeyParams) error {
	funcName := "keymap.redis.RegisterRoomKey"
	slog.DebugContext(ctx, funcName, "roomKey", params.RoomKey)

	ok, err := r.rc.SetNX(ctx, r.getRoomKeyKey(params.RoomKey), params.AuthToken, r.ttl).Result()
	if err != nil {
		slog.ErrorContext(ctx, funcName, "error", err)
		return err
	}

	if !ok {
		slog.DebugContext(ctx, funcName, "error", keymap.ErrRoomKeyTaken)
		return keymap.ErrRoomKeyTaken
	}

	return nil
}

func (r repo) GetAuthToken(ctx context.Context, roomKey string) (string, error) {
	funcName := "keymap.redis.GetAuthToken"
	slog.DebugContext(ctx, funcName, "roomKey", roomKey)

	authToken, err := r.rc.Get(ctx, r.getRoomKeyKey(roomKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			slog.DebugContext(ctx, funcName, "error", keymap.ErrRoomKeyNotFound)
			return "", keymap.ErrRoomKeyNotFound
		}
		slog.ErrorContext(ctx, funcName, "error", err)
		return "", err
	}

	return authToken, nil
}
