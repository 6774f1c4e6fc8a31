package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coview/groupwatch/internal/cast"
	"github.com/coview/groupwatch/internal/playback"
	"github.com/coview/groupwatch/internal/playback/playbacktest"
	"github.com/coview/groupwatch/internal/protocol"
	"github.com/coview/groupwatch/internal/router"
	"github.com/coview/groupwatch/internal/session"
)

type fakeChannel struct {
	mu   sync.Mutex
	sent []protocol.Message
}

func (f *fakeChannel) Send(msg protocol.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
}

func (f *fakeChannel) Connected() bool { return true }

func (f *fakeChannel) sentActions() []protocol.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	actions := make([]protocol.Action, len(f.sent))
	for i, msg := range f.sent {
		actions[i] = msg.Action
	}
	return actions
}

type fakeNotifier struct {
	notices []string
	chats   []string
	volumes []float64

	// guarded separately: HideVolume fires from a timer goroutine
	hiddenMu sync.Mutex
	hidden   int
}

func (f *fakeNotifier) Notice(text string)        { f.notices = append(f.notices, text) }
func (f *fakeNotifier) Chat(user, text string)    { f.chats = append(f.chats, user+": "+text) }
func (f *fakeNotifier) ShowVolume(volume float64) { f.volumes = append(f.volumes, volume) }

func (f *fakeNotifier) HideVolume() {
	f.hiddenMu.Lock()
	defer f.hiddenMu.Unlock()
	f.hidden++
}

func (f *fakeNotifier) hiddenCount() int {
	f.hiddenMu.Lock()
	defer f.hiddenMu.Unlock()
	return f.hidden
}

type fakeNavigator struct {
	targets []*protocol.UpNextHolder
}

func (f *fakeNavigator) NavigateNext(upNext *protocol.UpNextHolder) {
	f.targets = append(f.targets, upNext)
}

type fakeCatalog struct {
	upNext *protocol.UpNextHolder
	err    error
}

func (f *fakeCatalog) ResolveUpNext(ctx context.Context, mediaId string) (*protocol.UpNextHolder, error) {
	return f.upNext, f.err
}

type fixture struct {
	engine    *Engine
	sess      *session.Manager
	local     *playbacktest.FakeSurface
	bridge    *cast.Bridge
	ch        *fakeChannel
	notifier  *fakeNotifier
	navigator *fakeNavigator
	catalog   *fakeCatalog
}

func newFixture(t *testing.T, username string) *fixture {
	t.Helper()

	sess := session.NewManager("client-"+username, username)
	sess.SetRoomKey("aaaa-bbbb-cccc")
	local := playbacktest.NewFakeSurface()
	bridge := cast.NewBridge(local, slog.Default())
	ch := &fakeChannel{}
	notifier := &fakeNotifier{}
	navigator := &fakeNavigator{}
	catalog := &fakeCatalog{}

	engine := NewEngine(&EngineParams{
		Session:   sess,
		Bridge:    bridge,
		Channel:   ch,
		Router:    router.New(sess, bridge, slog.Default()),
		Notifier:  notifier,
		Navigator: navigator,
		Catalog:   catalog,
		Logger:    slog.Default(),
	})

	return &fixture{
		engine:    engine,
		sess:      sess,
		local:     local,
		bridge:    bridge,
		ch:        ch,
		notifier:  notifier,
		navigator: navigator,
		catalog:   catalog,
	}
}

func (f *fixture) receive(t *testing.T, msg protocol.Message) {
	t.Helper()
	f.engine.handleEvent(context.Background(), MessageEvent{Message: msg})
}

func TestRemotePlayingNeverReEmits(t *testing.T) {
	f := newFixture(t, "alice")

	f.receive(t, protocol.Message{Action: protocol.ActionPlaying, Data: true, UserName: "bob", WatchRoom: "aaaa-bbbb-cccc"})

	assert.False(t, f.local.State().Paused, "remote play mutates the surface")
	assert.Empty(t, f.ch.sentActions(), "remote playing must not be re-broadcast")
}

func TestSelfPlayingEchoIsIgnored(t *testing.T) {
	f := newFixture(t, "alice")

	f.receive(t, protocol.Message{Action: protocol.ActionPlaying, Data: true, UserName: "alice", WatchRoom: "aaaa-bbbb-cccc"})

	assert.True(t, f.local.State().Paused)
	assert.Empty(t, f.local.CallNames())
	assert.Empty(t, f.ch.sentActions())
}

func TestOwnJoinEchoSettlesConnection(t *testing.T) {
	f := newFixture(t, "alice")
	f.engine.MarkConnecting()
	require.Equal(t, PhaseConnecting, f.engine.Phase())

	f.receive(t, protocol.Message{Action: protocol.ActionJoin, Data: 100.0, UserName: "alice", WatchRoom: "aaaa-bbbb-cccc"})

	assert.Equal(t, PhaseSynced, f.engine.Phase())
}

func TestSkippedWinsOverDrift(t *testing.T) {
	f := newFixture(t, "alice")
	f.local.SetState(playback.State{PositionSeconds: 50})

	f.receive(t, protocol.Message{Action: protocol.ActionSkipped, Data: 5.0, UserName: "bob", WatchRoom: "aaaa-bbbb-cccc"})

	assert.Equal(t, 5.0, f.local.State().PositionSeconds)
}

func TestLeaderPlayIntentBroadcasts(t *testing.T) {
	f := newFixture(t, "alice")
	f.sess.AddMember("alice", time.UnixMilli(100))
	f.sess.AddMember("bob", time.UnixMilli(200))
	f.sess.SetLeader(true)

	f.engine.handleEvent(context.Background(), PlayIntentEvent{Play: true})

	require.Len(t, f.ch.sent, 1)
	assert.Equal(t, protocol.ActionPlaying, f.ch.sent[0].Action)
	assert.Equal(t, true, f.ch.sent[0].Data)
	assert.False(t, f.local.State().Paused)
}

func TestFollowerPlayIntentProbesLeader(t *testing.T) {
	f := newFixture(t, "bob")
	f.sess.AddMember("alice", time.UnixMilli(100))
	f.sess.AddMember("bob", time.UnixMilli(200))

	f.engine.handleEvent(context.Background(), PlayIntentEvent{Play: true})

	actions := f.ch.sentActions()
	require.Len(t, actions, 1)
	assert.Equal(t, protocol.ActionDeclare, actions[0], "follower probes with declare instead of broadcasting playing")
}

func TestStandalonePlayIntentBroadcasts(t *testing.T) {
	f := newFixture(t, "alice")
	f.sess.AddMember("alice", time.UnixMilli(100))

	f.engine.handleEvent(context.Background(), PlayIntentEvent{Play: false})

	require.Len(t, f.ch.sent, 1)
	assert.Equal(t, protocol.ActionPlaying, f.ch.sent[0].Action)
	assert.Equal(t, false, f.ch.sent[0].Data)
}

func TestPlayRejectionFallsBackToPaused(t *testing.T) {
	f := newFixture(t, "alice")
	f.sess.AddMember("alice", time.UnixMilli(100))
	f.sess.SetLeader(true)
	f.local.PlayErr = errors.New("autoplay blocked")

	f.engine.handleEvent(context.Background(), PlayIntentEvent{Play: true})

	assert.True(t, f.local.State().Paused)
}

func TestSeekIntentBroadcastsSurfacePosition(t *testing.T) {
	f := newFixture(t, "alice")

	f.engine.handleEvent(context.Background(), SeekIntentEvent{Position: 30})

	require.Len(t, f.ch.sent, 1)
	assert.Equal(t, protocol.ActionSkipped, f.ch.sent[0].Action)
	assert.Equal(t, 30.0, f.ch.sent[0].Data)
}

func TestSeekIntentUsesCastTimeWhileCastPrimary(t *testing.T) {
	f := newFixture(t, "alice")
	device := playbacktest.NewFakeSurface()
	f.engine.handleEvent(context.Background(), CastConnectedEvent{Device: device})

	f.engine.handleEvent(context.Background(), SeekIntentEvent{Position: 90})

	require.Len(t, f.ch.sent, 1)
	assert.Equal(t, 90.0, f.ch.sent[0].Data)
	assert.Equal(t, 90.0, device.State().PositionSeconds, "seek lands on the cast device")
	assert.Zero(t, f.local.State().PositionSeconds)
}

func TestCastTakeoverKeepsRole(t *testing.T) {
	f := newFixture(t, "bob")
	f.sess.AddMember("alice", time.UnixMilli(100))
	f.sess.AddMember("bob", time.UnixMilli(200))
	f.engine.setPhase(PhaseSynced)
	require.Equal(t, RoleFollower, f.engine.Role())

	device := playbacktest.NewFakeSurface()
	f.engine.handleEvent(context.Background(), CastConnectedEvent{Device: device})

	assert.True(t, f.bridge.CastPrimary())
	assert.True(t, f.local.State().Paused)
	assert.True(t, f.local.State().Muted)
	assert.Equal(t, RoleFollower, f.engine.Role(), "surface switch must not change the member's role")
	assert.Equal(t, PhaseSynced, f.engine.Phase())
}

func TestCastDisconnectResumesFromReportedPosition(t *testing.T) {
	f := newFixture(t, "alice")
	device := playbacktest.NewFakeSurface()
	f.engine.handleEvent(context.Background(), CastConnectedEvent{Device: device})
	f.engine.handleEvent(context.Background(), CastStateEvent{State: playback.State{PositionSeconds: 321, Paused: false}})

	f.engine.handleEvent(context.Background(), CastDisconnectedEvent{})

	assert.False(t, f.bridge.CastPrimary())
	assert.Equal(t, 321.0, f.local.State().PositionSeconds)
	assert.False(t, f.local.State().Muted)
}

func TestPeerBufferingPausesWithBanner(t *testing.T) {
	f := newFixture(t, "alice")
	f.local.SetState(playback.State{Paused: false})

	f.receive(t, protocol.Message{Action: protocol.ActionBuffering, Data: true, UserName: "bob", WatchRoom: "aaaa-bbbb-cccc"})
	assert.True(t, f.local.State().Paused)
	assert.Equal(t, []string{"poor connection"}, f.notifier.notices)
	assert.Equal(t, PhaseBuffering, f.engine.Phase())

	f.receive(t, protocol.Message{Action: protocol.ActionBuffering, Data: false, UserName: "bob", WatchRoom: "aaaa-bbbb-cccc"})
	assert.False(t, f.local.State().Paused)
	assert.Equal(t, []string{"poor connection", "reconnected"}, f.notifier.notices)
	assert.Equal(t, PhaseSynced, f.engine.Phase())
}

func TestLocalBufferingBroadcasts(t *testing.T) {
	f := newFixture(t, "alice")

	f.engine.handleEvent(context.Background(), LocalBufferingEvent{Buffering: true})

	require.Len(t, f.ch.sent, 1)
	assert.Equal(t, protocol.ActionBuffering, f.ch.sent[0].Action)
	assert.Equal(t, true, f.ch.sent[0].Data)
	assert.Equal(t, PhaseBuffering, f.engine.Phase())
}

func TestLeaderEndedForwardsUpNextAndNavigates(t *testing.T) {
	f := newFixture(t, "alice")
	f.sess.SetLeader(true)
	f.engine.SetCurrentMedia("media-1")
	f.catalog.upNext = &protocol.UpNextHolder{MediaId: "media-2", Name: "next up"}

	f.engine.handleEvent(context.Background(), EndedEvent{})

	actions := f.ch.sentActions()
	assert.Equal(t, []protocol.Action{protocol.ActionNextHolder, protocol.ActionNext}, actions)
	require.Len(t, f.navigator.targets, 1)
	assert.Equal(t, "media-2", f.navigator.targets[0].MediaId)
	assert.Equal(t, PhaseEnded, f.engine.Phase())
}

func TestFollowerEndedStaysPut(t *testing.T) {
	f := newFixture(t, "bob")

	f.engine.handleEvent(context.Background(), EndedEvent{})

	assert.Empty(t, f.ch.sentActions())
	assert.Empty(t, f.navigator.targets)
}

func TestRemoteNextNavigatesToStoredHolder(t *testing.T) {
	f := newFixture(t, "bob")

	holder := protocol.Message{Action: protocol.ActionNextHolder, UserName: "alice", WatchRoom: "aaaa-bbbb-cccc",
		UpNext: &protocol.UpNextHolder{MediaId: "media-2"}}
	f.receive(t, holder)
	f.receive(t, protocol.Message{Action: protocol.ActionNext, UserName: "alice", WatchRoom: "aaaa-bbbb-cccc"})

	require.Len(t, f.navigator.targets, 1)
	require.NotNil(t, f.navigator.targets[0])
	assert.Equal(t, "media-2", f.navigator.targets[0].MediaId)
}

func TestVolumeIntentShowsIndicator(t *testing.T) {
	f := newFixture(t, "alice")

	f.engine.handleEvent(context.Background(), VolumeIntentEvent{Volume: 0.5})

	assert.Equal(t, 0.5, f.local.State().Volume)
	assert.Equal(t, []float64{0.5}, f.notifier.volumes)

	f.engine.Stop()
	f.engine.Stop() // idempotent
}

func TestStopCancelsPendingTimers(t *testing.T) {
	f := newFixture(t, "bob")
	f.engine.volumeHideDelay = 10 * time.Millisecond
	f.engine.declareWait = 10 * time.Millisecond
	f.sess.AddMember("alice", time.UnixMilli(100))
	f.sess.AddMember("bob", time.UnixMilli(200))

	// arm both timers: the volume-indicator hide and the declare probe
	f.engine.handleEvent(context.Background(), VolumeIntentEvent{Volume: 0.4})
	f.engine.handleEvent(context.Background(), PlayIntentEvent{Play: true})

	f.engine.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.notifier.hiddenCount(), "volume indicator must not hide after teardown")
	f.engine.mu.Lock()
	assert.Nil(t, f.engine.volumeTimer)
	assert.Nil(t, f.engine.declareTimer)
	f.engine.mu.Unlock()
}

func TestInformReplyStopsDeclareProbe(t *testing.T) {
	f := newFixture(t, "bob")
	f.sess.AddMember("alice", time.UnixMilli(100))
	f.sess.AddMember("bob", time.UnixMilli(200))

	f.engine.handleEvent(context.Background(), PlayIntentEvent{Play: true})
	f.engine.mu.Lock()
	require.NotNil(t, f.engine.declareTimer)
	f.engine.mu.Unlock()

	f.receive(t, protocol.Message{Action: protocol.ActionInform, Data: 1.0, UserName: "alice", WatchRoom: "aaaa-bbbb-cccc"})

	f.engine.mu.Lock()
	assert.Nil(t, f.engine.declareTimer)
	f.engine.mu.Unlock()
}
