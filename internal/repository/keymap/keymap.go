package keymap

import "errors"

var (
	ErrRoomKeyTaken    = errors.New("room key already taken")
	ErrRoomKeyNotFound = errors.New("room key not found")
)

type RegisterRoomKeyParams struct {
	RoomKey   string
	AuthToken string
}
