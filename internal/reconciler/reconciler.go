package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coview/groupwatch/internal/cast"
	"github.com/coview/groupwatch/internal/protocol"
	"github.com/coview/groupwatch/internal/router"
	"github.com/coview/groupwatch/internal/session"
)

// Phase is the reconciler's lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseSynced
	PhaseBuffering
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseSynced:
		return "synced"
	case PhaseBuffering:
		return "buffering"
	case PhaseEnded:
		return "ended"
	}
	return "unknown"
}

// Role is the member's position within a synced session.
type Role int

const (
	RoleFollower Role = iota
	RoleLeader
)

const (
	// a declare with no inform reply within this window is abandoned;
	// the next play transition probes again
	declareTimeout = 5 * time.Second

	// how long the volume-changed indicator stays up after the last change
	volumeIndicatorDelay = 2 * time.Second

	eventBufferSize = 64
)

// Channel is the outbound half of the signaling transport the engine
// broadcasts through.
type Channel interface {
	Send(protocol.Message)
	Connected() bool
}

// Notifier receives user-facing notices. Implementations belong to the UI
// layer; a no-op default is used when none is given.
type Notifier interface {
	Notice(text string)
	Chat(user, text string)
	ShowVolume(volume float64)
	HideVolume()
}

// Navigator moves the client to the shared next-content target.
type Navigator interface {
	NavigateNext(upNext *protocol.UpNextHolder)
}

// Catalog resolves up-next metadata for the current content. Only the
// leader consults it; followers receive the result via nextHolder.
type Catalog interface {
	ResolveUpNext(ctx context.Context, mediaId string) (*protocol.UpNextHolder, error)
}

type nopNotifier struct{}

func (nopNotifier) Notice(string)       {}
func (nopNotifier) Chat(string, string) {}
func (nopNotifier) ShowVolume(float64)  {}
func (nopNotifier) HideVolume()         {}

type nopNavigator struct{}

func (nopNavigator) NavigateNext(*protocol.UpNextHolder) {}

// Engine merges local-element events, cast events and peer commands into one
// authoritative playback intent and rebroadcasts its decisions. It runs as a
// single loop over the event bus; nothing else touches the surfaces.
type Engine struct {
	sess      *session.Manager
	bridge    *cast.Bridge
	ch        Channel
	router    *router.Router
	notifier  Notifier
	navigator Navigator
	catalog   Catalog
	logger    *slog.Logger

	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once

	declareWait     time.Duration
	volumeHideDelay time.Duration

	mu             sync.Mutex
	phase          Phase
	currentMediaId string
	declareTimer   *time.Timer
	volumeTimer    *time.Timer
}

type EngineParams struct {
	Session   *session.Manager
	Bridge    *cast.Bridge
	Channel   Channel
	Router    *router.Router
	Notifier  Notifier
	Navigator Navigator
	Catalog   Catalog
	Logger    *slog.Logger
}

func NewEngine(params *EngineParams) *Engine {
	notifier := params.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	navigator := params.Navigator
	if navigator == nil {
		navigator = nopNavigator{}
	}

	return &Engine{
		sess:      params.Session,
		bridge:    params.Bridge,
		ch:        params.Channel,
		router:    params.Router,
		notifier:  notifier,
		navigator: navigator,
		catalog:   params.Catalog,
		logger:    params.Logger,
		events:    make(chan Event, eventBufferSize),
		stop:      make(chan struct{}),
		phase:     PhaseIdle,

		declareWait:     declareTimeout,
		volumeHideDelay: volumeIndicatorDelay,
	}
}

// SetChannel wires the transport after construction; the channel itself is
// built around the engine's message callback.
func (e *Engine) SetChannel(ch Channel) {
	e.ch = ch
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.phase
}

func (e *Engine) setPhase(phase Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.phase = phase
}

func (e *Engine) Role() Role {
	if e.sess.IsLeader() {
		return RoleLeader
	}
	return RoleFollower
}

func (e *Engine) SetCurrentMedia(mediaId string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentMediaId = mediaId
}

// MarkConnecting flags that the channel handshake is in flight; the phase
// settles to synced when the own join echo arrives.
func (e *Engine) MarkConnecting() {
	e.setPhase(PhaseConnecting)
}

// Dispatch puts an event on the bus. It drops the event if the engine was
// stopped; total signaling failure degrades to plain local playback.
func (e *Engine) Dispatch(event Event) {
	select {
	case <-e.stop:
	case e.events <- event:
	}
}

// OnChannelMessage adapts the signaling channel callback onto the bus.
func (e *Engine) OnChannelMessage(msg protocol.Message) {
	e.Dispatch(MessageEvent{Message: msg})
}

// Run drains the bus until the context is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case event := <-e.events:
			e.handleEvent(ctx, event)
		}
	}
}

// Stop halts the loop and cancels every pending timer so nothing fires
// after disconnection. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.declareTimer != nil {
			e.declareTimer.Stop()
			e.declareTimer = nil
		}
		if e.volumeTimer != nil {
			e.volumeTimer.Stop()
			e.volumeTimer = nil
		}
		e.phase = PhaseIdle
	})
}

func (e *Engine) handleEvent(ctx context.Context, event Event) {
	switch event := event.(type) {
	case MessageEvent:
		e.handleMessage(ctx, event.Message)
	case PlayIntentEvent:
		e.handlePlayIntent(ctx, event.Play)
	case SeekIntentEvent:
		e.handleSeekIntent(event.Position)
	case VolumeIntentEvent:
		e.handleVolumeIntent(event.Volume)
	case MuteIntentEvent:
		e.bridge.SetMuted(event.Muted)
	case CastConnectedEvent:
		e.bridge.HandleConnect(event.Device)
	case CastDisconnectedEvent:
		e.bridge.HandleDisconnect(ctx)
	case CastStateEvent:
		e.bridge.ObserveDeviceState(event.State)
	case LocalBufferingEvent:
		e.handleLocalBuffering(event.Buffering)
	case EndedEvent:
		e.handleEnded(ctx)
	}
}

func (e *Engine) handleMessage(ctx context.Context, msg protocol.Message) {
	if msg.Action == protocol.ActionInform && msg.UserName != e.sess.Username() {
		e.stopDeclareTimer()
	}

	for _, effect := range e.router.Dispatch(ctx, msg) {
		e.applyEffect(ctx, effect)
	}

	if msg.UserName == e.sess.Username() && msg.Action == protocol.ActionJoin && e.Phase() == PhaseConnecting {
		e.setPhase(PhaseSynced)
	}
}

func (e *Engine) applyEffect(ctx context.Context, effect router.Effect) {
	switch effect := effect.(type) {
	case router.SetPlaying:
		if effect.Playing {
			e.playSurface(ctx)
		} else {
			e.bridge.Pause()
		}
	case router.SetBuffering:
		if effect.Buffering {
			e.bridge.Pause()
			e.notifier.Notice("poor connection")
			e.setPhase(PhaseBuffering)
		} else {
			e.playSurface(ctx)
			e.notifier.Notice("reconnected")
			e.setPhase(PhaseSynced)
		}
	case router.Seek:
		e.bridge.SeekTo(effect.Position)
	case router.Reply:
		e.ch.Send(effect.Message)
	case router.NavigateNext:
		e.navigator.NavigateNext(e.sess.UpNext())
	case router.Notice:
		e.notifier.Notice(effect.Text)
	case router.Chat:
		e.notifier.Chat(effect.User, effect.Text)
	}
}

// playSurface starts playback on the primary surface, degrading a rejected
// play (blocked autoplay) to a paused state instead of propagating it.
func (e *Engine) playSurface(ctx context.Context) {
	if err := e.bridge.Play(ctx); err != nil {
		e.logger.DebugContext(ctx, "play rejected, falling back to paused", "error", err)
		e.bridge.Pause()
	}
}

func (e *Engine) handlePlayIntent(ctx context.Context, play bool) {
	if play {
		e.playSurface(ctx)
	} else {
		e.bridge.Pause()
	}

	// the leader (or a standalone client) is the authority on play state
	if e.sess.IsLeader() || len(e.sess.Members()) <= 1 {
		e.ch.Send(protocol.Message{
			Action:    protocol.ActionPlaying,
			Data:      play,
			UserName:  e.sess.Username(),
			WatchRoom: e.sess.RoomKey(),
		})
	} else if play {
		// a follower starting playback probes the leader's position once
		e.sendDeclare()
	}
}

func (e *Engine) handleSeekIntent(position float64) {
	e.bridge.SeekTo(position)

	// rebroadcast the surface-reported position: the cast device's time
	// while cast is primary, the local element's otherwise
	e.ch.Send(protocol.Message{
		Action:    protocol.ActionSkipped,
		Data:      e.bridge.State().PositionSeconds,
		UserName:  e.sess.Username(),
		WatchRoom: e.sess.RoomKey(),
	})
}

func (e *Engine) handleVolumeIntent(volume float64) {
	e.bridge.SetVolume(volume)
	e.notifier.ShowVolume(volume)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.volumeTimer != nil {
		e.volumeTimer.Stop()
	}
	e.volumeTimer = time.AfterFunc(e.volumeHideDelay, e.notifier.HideVolume)
}

func (e *Engine) handleLocalBuffering(buffering bool) {
	if buffering {
		e.setPhase(PhaseBuffering)
	} else {
		e.setPhase(PhaseSynced)
	}

	e.ch.Send(protocol.Message{
		Action:    protocol.ActionBuffering,
		Data:      buffering,
		UserName:  e.sess.Username(),
		WatchRoom: e.sess.RoomKey(),
	})
}

// handleEnded drives the shared transition to the next content. The leader
// resolves up-next once and forwards it, so followers navigate to the same
// target without re-resolving it themselves.
func (e *Engine) handleEnded(ctx context.Context) {
	e.setPhase(PhaseEnded)

	if !e.sess.IsLeader() {
		return
	}

	e.mu.Lock()
	mediaId := e.currentMediaId
	e.mu.Unlock()

	if e.catalog != nil && mediaId != "" {
		upNext, err := e.catalog.ResolveUpNext(ctx, mediaId)
		if err != nil {
			e.logger.WarnContext(ctx, "failed to resolve up next", "mediaId", mediaId, "error", err)
		} else if upNext != nil {
			e.sess.SetUpNext(upNext)
			e.ch.Send(protocol.Message{
				Action:    protocol.ActionNextHolder,
				UpNext:    upNext,
				UserName:  e.sess.Username(),
				WatchRoom: e.sess.RoomKey(),
			})
		}
	}

	e.ch.Send(protocol.Message{
		Action:    protocol.ActionNext,
		UserName:  e.sess.Username(),
		WatchRoom: e.sess.RoomKey(),
	})
	e.navigator.NavigateNext(e.sess.UpNext())
}

func (e *Engine) sendDeclare() {
	e.ch.Send(protocol.Message{
		Action:    protocol.ActionDeclare,
		UserName:  e.sess.Username(),
		WatchRoom: e.sess.RoomKey(),
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.declareTimer != nil {
		e.declareTimer.Stop()
	}
	e.declareTimer = time.AfterFunc(e.declareWait, func() {
		e.logger.Debug("no inform reply to declare, abandoning probe")
	})
}

func (e *Engine) stopDeclareTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.declareTimer != nil {
		e.declareTimer.Stop()
		e.declareTimer = nil
	}
}
