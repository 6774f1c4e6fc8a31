package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coview/groupwatch/internal/drift"
	"github.com/coview/groupwatch/internal/playback"
	"github.com/coview/groupwatch/internal/protocol"
	"github.com/coview/groupwatch/internal/session"
)

type iSurface interface {
	State() playback.State
}

type HandlerFunc func(ctx context.Context, msg protocol.Message) []Effect

// Router decodes the inbound message union into exactly one handler per
// action. Unknown or malformed actions are dropped and logged, never
// surfaced to the user.
type Router struct {
	sess    *session.Manager
	surface iSurface
	logger  *slog.Logger

	handlers map[protocol.Action]HandlerFunc

	// username of the leader whose departure is pending announcement,
	// used for the promotion notice.
	departedLeader string
}

func New(sess *session.Manager, surface iSurface, logger *slog.Logger) *Router {
	r := &Router{
		sess:    sess,
		surface: surface,
		logger:  logger,
	}

	r.handlers = map[protocol.Action]HandlerFunc{
		protocol.ActionJoin:        r.handleJoin,
		protocol.ActionJoined:      r.handleJoined,
		protocol.ActionLeft:        r.handleLeft,
		protocol.ActionPlaying:     r.handlePlaying,
		protocol.ActionBuffering:   r.handleBuffering,
		protocol.ActionSkipped:     r.handleSkipped,
		protocol.ActionDeclare:     r.handleDeclare,
		protocol.ActionInform:      r.handleInform,
		protocol.ActionSays:        r.handleSays,
		protocol.ActionNext:        r.handleNext,
		protocol.ActionLeader:      r.handleLeader,
		protocol.ActionNextHolder:  r.handleNextHolder,
		protocol.ActionRequestSync: r.handleRequestSync,
		protocol.ActionSync:        r.handleSync,
	}

	return r
}

// MissingActions reports protocol actions without a registered handler.
// Tests assert it is empty so extending the union forces a handler.
func (r *Router) MissingActions() []protocol.Action {
	var missing []protocol.Action
	for _, action := range protocol.Actions {
		if _, ok := r.handlers[action]; !ok {
			missing = append(missing, action)
		}
	}

	return missing
}

// Dispatch computes the self flag and runs the action's handler. The
// returned effects are applied by the caller in order.
func (r *Router) Dispatch(ctx context.Context, msg protocol.Message) []Effect {
	msg.Self = msg.UserName == r.sess.Username()

	handler, ok := r.handlers[msg.Action]
	if !ok {
		r.logger.DebugContext(ctx, "dropping unknown action", "action", msg.Action, "userName", msg.UserName)
		return nil
	}

	return handler(ctx, msg)
}

func (r *Router) broadcast(action protocol.Action, data any) protocol.Message {
	return protocol.Message{
		Action:    action,
		Data:      data,
		UserName:  r.sess.Username(),
		WatchRoom: r.sess.RoomKey(),
	}
}

// joinTime reads the sender-reported join time carried as unix millis, so
// every peer orders the membership the same way.
func joinTime(msg protocol.Message) time.Time {
	millis, ok := msg.Number()
	if !ok {
		return time.Time{}
	}

	return time.UnixMilli(int64(millis))
}

// handleJoin registers the joiner and answers with this client's own
// presence so the joiner converges on the full member list. The leader
// additionally forwards the up-next holder and an absolute position sync.
func (r *Router) handleJoin(ctx context.Context, msg protocol.Message) []Effect {
	r.sess.AddMember(msg.UserName, joinTime(msg))
	_, leaderMsg := r.sess.Elect()

	var effects []Effect
	if leaderMsg != nil {
		effects = append(effects, Reply{Message: *leaderMsg})
	}
	if msg.Self {
		return effects
	}

	effects = append(effects, Reply{Message: r.broadcast(protocol.ActionJoined, r.sess.JoinedAtMillis())})

	if r.sess.IsLeader() {
		if upNext := r.sess.UpNext(); upNext != nil {
			reply := r.broadcast(protocol.ActionNextHolder, nil)
			reply.UpNext = upNext
			effects = append(effects, Reply{Message: reply})
		}
		effects = append(effects, Reply{Message: r.broadcast(protocol.ActionSync, r.surface.State().PositionSeconds)})
	}

	return effects
}

func (r *Router) handleJoined(ctx context.Context, msg protocol.Message) []Effect {
	r.sess.AddMember(msg.UserName, joinTime(msg))
	_, leaderMsg := r.sess.Elect()

	var effects []Effect
	if leaderMsg != nil {
		effects = append(effects, Reply{Message: *leaderMsg})
	}
	if !msg.Self {
		effects = append(effects, Notice{Text: fmt.Sprintf("%s joined the room", msg.UserName)})
	}

	return effects
}

func (r *Router) handleLeft(ctx context.Context, msg protocol.Message) []Effect {
	if msg.UserName == r.sess.LeaderUsername() {
		r.departedLeader = msg.UserName
	}

	if err := r.sess.RemoveMember(msg.UserName); err != nil {
		r.logger.DebugContext(ctx, "left from unknown member", "userName", msg.UserName)
		return nil
	}
	_, leaderMsg := r.sess.Elect()

	var effects []Effect
	if !msg.Self {
		effects = append(effects, Notice{Text: fmt.Sprintf("%s left the room", msg.UserName)})
	}
	if leaderMsg != nil {
		effects = append(effects, Reply{Message: *leaderMsg})
	}

	return effects
}

func (r *Router) handlePlaying(ctx context.Context, msg protocol.Message) []Effect {
	// echo suppression: own broadcasts never mutate local state again
	if msg.Self {
		return nil
	}

	playing, ok := msg.Bool()
	if !ok {
		r.logger.DebugContext(ctx, "playing without bool data", "userName", msg.UserName)
		return nil
	}

	return []Effect{SetPlaying{Playing: playing}}
}

func (r *Router) handleBuffering(ctx context.Context, msg protocol.Message) []Effect {
	if msg.Self {
		return nil
	}

	buffering, ok := msg.Bool()
	if !ok {
		r.logger.DebugContext(ctx, "buffering without bool data", "userName", msg.UserName)
		return nil
	}

	return []Effect{SetBuffering{Buffering: buffering}}
}

// handleSkipped applies an explicit seek unconditionally, regardless of any
// drift verdict and regardless of arrival order relative to inform.
func (r *Router) handleSkipped(ctx context.Context, msg protocol.Message) []Effect {
	position, ok := msg.Number()
	if !ok {
		r.logger.DebugContext(ctx, "skipped without numeric data", "userName", msg.UserName)
		return nil
	}

	return []Effect{Seek{Position: position}}
}

func (r *Router) handleDeclare(ctx context.Context, msg protocol.Message) []Effect {
	// only the leader answers position probes
	if msg.Self || !r.sess.IsLeader() {
		return nil
	}

	return []Effect{Reply{Message: r.broadcast(protocol.ActionInform, r.surface.State().PositionSeconds)}}
}

func (r *Router) handleInform(ctx context.Context, msg protocol.Message) []Effect {
	if msg.Self || r.sess.IsLeader() {
		return nil
	}

	remote, ok := msg.Number()
	if !ok {
		r.logger.DebugContext(ctx, "inform without numeric data", "userName", msg.UserName)
		return nil
	}

	decision := drift.ShouldResync(r.surface.State().PositionSeconds, remote)
	if !decision.Resync {
		return nil
	}

	return []Effect{Seek{Position: decision.Target}}
}

func (r *Router) handleSays(ctx context.Context, msg protocol.Message) []Effect {
	text, ok := msg.Str()
	if !ok {
		return nil
	}

	return []Effect{Chat{User: msg.UserName, Text: text}}
}

func (r *Router) handleNext(ctx context.Context, msg protocol.Message) []Effect {
	if msg.Self {
		return nil
	}

	return []Effect{NavigateNext{}}
}

func (r *Router) handleLeader(ctx context.Context, msg protocol.Message) []Effect {
	newLeader, ok := msg.Str()
	if !ok {
		r.logger.DebugContext(ctx, "leader without string data", "userName", msg.UserName)
		return nil
	}

	// a joiner that briefly saw itself alone may have announced a stale
	// self-promotion; the current membership is the authority
	if members := r.sess.Members(); len(members) > 0 && members[0].Username != newLeader {
		r.logger.DebugContext(ctx, "dropping stale leader announcement", "newLeader", newLeader)
		return nil
	}

	if newLeader != r.sess.Username() {
		return nil
	}
	if r.sess.IsLeader() {
		// re-announced on a later membership change, nothing new
		return nil
	}

	r.sess.SetLeader(true)

	if msg.Self {
		return []Effect{Notice{Text: "you are the only client"}}
	}

	departed := r.departedLeader
	r.departedLeader = ""
	if departed == "" {
		return []Effect{Notice{Text: "you are now the leader"}}
	}

	return []Effect{Notice{Text: fmt.Sprintf("promoted because %s left", departed)}}
}

func (r *Router) handleNextHolder(ctx context.Context, msg protocol.Message) []Effect {
	if msg.Self || msg.UpNext == nil {
		return nil
	}

	r.sess.SetUpNext(msg.UpNext)

	return nil
}

func (r *Router) handleRequestSync(ctx context.Context, msg protocol.Message) []Effect {
	if msg.Self || !r.sess.IsLeader() {
		return nil
	}

	return []Effect{Reply{Message: r.broadcast(protocol.ActionSync, r.surface.State().PositionSeconds)}}
}

// handleSync applies the leader's absolute position with the same
// precedence as an explicit seek.
func (r *Router) handleSync(ctx context.Context, msg protocol.Message) []Effect {
	if msg.Self {
		return nil
	}

	position, ok := msg.Number()
	if !ok {
		r.logger.DebugContext(ctx, "sync without numeric data", "userName", msg.UserName)
		return nil
	}

	return []Effect{Seek{Position: position}}
}
