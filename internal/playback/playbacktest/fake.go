// Package playbacktest provides a scripted playback surface for tests.
package playbacktest

import (
	"context"
	"sync"

	"github.com/coview/groupwatch/internal/playback"
)

// FakeSurface records every command and serves a mutable state. PlayErr, if
// set, makes Play fail the way a blocked autoplay does.
type FakeSurface struct {
	mu      sync.Mutex
	state   playback.State
	PlayErr error
	Calls   []string
}

func NewFakeSurface() *FakeSurface {
	return &FakeSurface{
		state: playback.State{Paused: true, Volume: 1},
	}
}

func (f *FakeSurface) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *FakeSurface) Play(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("play")
	if f.PlayErr != nil {
		return f.PlayErr
	}
	f.state.Paused = false

	return nil
}

func (f *FakeSurface) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("pause")
	f.state.Paused = true
}

func (f *FakeSurface) SeekTo(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("seek")
	f.state.PositionSeconds = seconds
}

func (f *FakeSurface) SetVolume(volume float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("volume")
	f.state.Volume = volume
}

func (f *FakeSurface) SetMuted(muted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("muted")
	f.state.Muted = muted
}

func (f *FakeSurface) State() playback.State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

// SetState overwrites the served state, for scripting positions.
func (f *FakeSurface) SetState(state playback.State) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = state
}

// CallNames returns the recorded command names in order.
func (f *FakeSurface) CallNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.Calls))
	copy(out, f.Calls)

	return out
}
