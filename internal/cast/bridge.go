package cast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coview/groupwatch/internal/playback"
)

// Device is the control surface the cast SDK exposes for a connected
// receiver. It satisfies the same contract as the local element, plus the
// SDK keeps the bridge updated through ObserveDeviceState.
type Device interface {
	playback.Surface
}

// Bridge owns the "which surface is primary" flag. While a cast device is
// primary every playback intent is redirected to it; when the device drops,
// the local element resumes from the last device-reported position.
// Switching is atomic: the flag flips first, then subsequent calls follow
// it. In-flight calls against the old surface are stale idempotent no-ops.
type Bridge struct {
	local  playback.Surface
	logger *slog.Logger

	mu        sync.RWMutex
	device    Device
	lastState playback.State
}

func NewBridge(local playback.Surface, logger *slog.Logger) *Bridge {
	return &Bridge{
		local:  local,
		logger: logger,
	}
}

// CastPrimary reports whether a cast device currently owns playback.
func (b *Bridge) CastPrimary() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.device != nil
}

// Primary returns the surface that owns playback right now.
func (b *Bridge) Primary() playback.Surface {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.device != nil {
		return b.device
	}

	return b.local
}

// HandleConnect hands playback over to the device: the local element is
// muted and paused, and every subsequent intent goes to the device. The
// member's leader/follower role is untouched.
func (b *Bridge) HandleConnect(device Device) {
	b.mu.Lock()
	b.device = device
	b.lastState = device.State()
	b.mu.Unlock()

	b.local.Pause()
	b.local.SetMuted(true)
	b.logger.Debug("cast device connected, cast surface is primary")
}

// HandleDisconnect returns playback to the local element, resuming from the
// last position the device reported.
func (b *Bridge) HandleDisconnect(ctx context.Context) {
	b.mu.Lock()
	if b.device == nil {
		b.mu.Unlock()
		return
	}
	last := b.lastState
	b.device = nil
	b.mu.Unlock()

	b.local.SeekTo(last.PositionSeconds)
	b.local.SetMuted(false)
	if !last.Paused {
		if err := b.local.Play(ctx); err != nil {
			b.logger.Debug("local resume rejected, staying paused", "error", err)
			b.local.Pause()
		}
	}
	b.logger.Debug("cast device disconnected, local surface is primary", "position", last.PositionSeconds)
}

// ObserveDeviceState records a device-originated playback update so the
// unified state stays correct while cast is primary, and so a disconnect
// knows where to resume.
func (b *Bridge) ObserveDeviceState(state playback.State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device == nil {
		return
	}
	b.lastState = state
}

// State is the unified projection, read from whichever surface is primary.
func (b *Bridge) State() playback.State {
	return b.Primary().State()
}

func (b *Bridge) Play(ctx context.Context) error {
	return b.Primary().Play(ctx)
}

func (b *Bridge) Pause() {
	b.Primary().Pause()
}

func (b *Bridge) SeekTo(seconds float64) {
	b.Primary().SeekTo(seconds)
}

func (b *Bridge) SetVolume(volume float64) {
	b.Primary().SetVolume(volume)
}

func (b *Bridge) SetMuted(muted bool) {
	b.Primary().SetMuted(muted)
}
