package session

import (
	"strings"

	"github.com/coview/groupwatch/pkg/randstr"
)

const (
	roomKeyBlocks   = 3
	roomKeyBlockLen = 4
)

var roomKeyGenerator = randstr.New([]byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"))

// GenerateRoomKey produces a short shareable code like "x7Kq-9dFa-p02M".
// Not cryptographically secure; collisions are surfaced by the keymap store,
// never retried here.
func GenerateRoomKey() string {
	blocks := make([]string, roomKeyBlocks)
	for i := range blocks {
		blocks[i] = roomKeyGenerator.GenerateRandomString(roomKeyBlockLen)
	}

	return strings.Join(blocks, "-")
}
