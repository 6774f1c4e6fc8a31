package router

import "github.com/coview/groupwatch/internal/protocol"

// Effect is a side effect a handler wants performed. Handlers never touch
// the playback surface or the channel themselves; they return effects and
// the reconciler applies them, so every mutation goes through one place.
type Effect interface {
	isEffect()
}

// SetPlaying applies a peer's play/pause to the primary surface without
// rebroadcasting.
type SetPlaying struct {
	Playing bool
}

// SetBuffering pauses (true) or resumes (false) local playback while a peer
// is buffering, with the matching connection banner.
type SetBuffering struct {
	Buffering bool
}

// Seek sets the absolute position on the primary surface. An explicit seek
// always wins over drift tolerance.
type Seek struct {
	Position float64
}

// Reply broadcasts a message back through the channel.
type Reply struct {
	Message protocol.Message
}

// NavigateNext moves the client to the shared next-content target.
type NavigateNext struct{}

// Notice surfaces a line in the session log.
type Notice struct {
	Text string
}

// Chat renders a peer's chat message.
type Chat struct {
	User string
	Text string
}

func (SetPlaying) isEffect()   {}
func (SetBuffering) isEffect() {}
func (Seek) isEffect()         {}
func (Reply) isEffect()        {}
func (NavigateNext) isEffect() {}
func (Notice) isEffect()       {}
func (Chat) isEffect()         {}
