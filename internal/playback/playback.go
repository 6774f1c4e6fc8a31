package playback

import "context"

// State is the unified playback projection the reconciler reads regardless of
// which surface currently owns it.
type State struct {
	PositionSeconds float64 `json:"position_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	Paused          bool    `json:"paused"`
	Buffering       bool    `json:"buffering"`
	Volume          float64 `json:"volume"`
	Muted           bool    `json:"muted"`
}

// Surface is one playback output: the local media element or a cast device
// handle. Exactly one surface is primary at a time; stale calls against a
// surface that just lost primacy must be idempotent no-ops.
//
// Play may fail (e.g. an autoplay block on the local element). Callers fall
// back to a paused state instead of propagating the error.
type Surface interface {
	Play(ctx context.Context) error
	Pause()
	SeekTo(seconds float64)
	SetVolume(volume float64)
	SetMuted(muted bool)
	State() State
}
