package reconciler

import (
	"github.com/coview/groupwatch/internal/cast"
	"github.com/coview/groupwatch/internal/playback"
	"github.com/coview/groupwatch/internal/protocol"
)

// Event is one normalized input on the engine's bus. Channel messages,
// local-element events, cast SDK events and UI intents all arrive here, so
// the engine has a single ingestion point regardless of origin surface.
type Event interface {
	isEvent()
}

// MessageEvent is an inbound channel message.
type MessageEvent struct {
	Message protocol.Message
}

// PlayIntentEvent is the user pressing play (true) or pause (false).
type PlayIntentEvent struct {
	Play bool
}

// SeekIntentEvent is the user scrubbing to an absolute position.
type SeekIntentEvent struct {
	Position float64
}

// VolumeIntentEvent is the user adjusting volume.
type VolumeIntentEvent struct {
	Volume float64
}

// MuteIntentEvent is the user toggling mute.
type MuteIntentEvent struct {
	Muted bool
}

// CastConnectedEvent reports a cast device becoming available as the
// playback surface.
type CastConnectedEvent struct {
	Device cast.Device
}

// CastDisconnectedEvent reports the cast device dropping.
type CastDisconnectedEvent struct{}

// CastStateEvent carries a device-originated playback update.
type CastStateEvent struct {
	State playback.State
}

// LocalBufferingEvent is the local element entering (true) or leaving
// (false) a buffering stall.
type LocalBufferingEvent struct {
	Buffering bool
}

// EndedEvent is the current content finishing on the primary surface.
type EndedEvent struct{}

func (MessageEvent) isEvent()          {}
func (PlayIntentEvent) isEvent()       {}
func (SeekIntentEvent) isEvent()       {}
func (VolumeIntentEvent) isEvent()     {}
func (MuteIntentEvent) isEvent()       {}
func (CastConnectedEvent) isEvent()    {}
func (CastDisconnectedEvent) isEvent() {}
func (CastStateEvent) isEvent()        {}
func (LocalBufferingEvent) isEvent()   {}
func (EndedEvent) isEvent()            {}
