package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/coview/groupwatch/internal/cast"
	"github.com/coview/groupwatch/internal/channel"
	"github.com/coview/groupwatch/internal/playback"
	"github.com/coview/groupwatch/internal/protocol"
	"github.com/coview/groupwatch/internal/reconciler"
	"github.com/coview/groupwatch/internal/router"
	"github.com/coview/groupwatch/internal/session"
)

var (
	// ErrRestrictedRole is the only user-facing error class here: guests
	// may not host or join.
	ErrRestrictedRole = errors.New("restricted role may not host or join a group watch")
	ErrRoomKeyTaken   = errors.New("room key already taken")
	ErrRoomNotFound   = errors.New("room not found")
	ErrNotActive      = errors.New("no active session")
)

// Identity is what the auth/session collaborator exposes: who the user is
// and whether their role is restricted ("guest").
type Identity struct {
	Username   string
	Restricted bool
}

type AuthProvider interface {
	Identity(ctx context.Context) (Identity, error)
}

type Config struct {
	// ServerURL is the http(s) base of the signaling server.
	ServerURL string
}

// Client is the GroupWatch entry point: it owns the session manager, the
// signaling channel, the reconciler and the cast bridge, and runs the
// host/join/leave flows against the signaling server.
type Client struct {
	cfg       *Config
	auth      AuthProvider
	local     playback.Surface
	notifier  reconciler.Notifier
	navigator reconciler.Navigator
	catalog   reconciler.Catalog
	http      *http.Client
	logger    *slog.Logger

	mu     sync.Mutex
	active bool
	sess   *session.Manager
	ch     *channel.Channel
	engine *reconciler.Engine
	cancel context.CancelFunc
}

type Params struct {
	Config    *Config
	Auth      AuthProvider
	Local     playback.Surface
	Notifier  reconciler.Notifier
	Navigator reconciler.Navigator
	Catalog   reconciler.Catalog
	Logger    *slog.Logger
}

func New(params *Params) *Client {
	return &Client{
		cfg:       params.Config,
		auth:      params.Auth,
		local:     params.Local,
		notifier:  params.Notifier,
		navigator: params.Navigator,
		catalog:   params.Catalog,
		http:      &http.Client{},
		logger:    params.Logger,
	}
}

// Host generates a room key, registers it against the content auth token so
// late joiners can resolve what to load, and joins the new room.
func (c *Client) Host(ctx context.Context, contentAuthToken, mediaId string) (string, error) {
	identity, err := c.auth.Identity(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get identity: %w", err)
	}
	if identity.Restricted {
		return "", ErrRestrictedRole
	}

	roomKey := session.GenerateRoomKey()
	if err := c.registerRoomKey(ctx, roomKey, contentAuthToken); err != nil {
		return "", err
	}

	if err := c.connect(ctx, identity, roomKey, mediaId); err != nil {
		return "", err
	}

	return roomKey, nil
}

// Join resolves the room key to the content auth token and connects. The
// returned token tells the caller which content to load before playback.
func (c *Client) Join(ctx context.Context, roomKey, mediaId string) (string, error) {
	identity, err := c.auth.Identity(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get identity: %w", err)
	}
	if identity.Restricted {
		return "", ErrRestrictedRole
	}

	authToken, err := c.resolveRoomKey(ctx, roomKey)
	if err != nil {
		return "", err
	}

	if err := c.connect(ctx, identity, roomKey, mediaId); err != nil {
		return "", err
	}
	c.sendAction(protocol.ActionRequestSync)

	return authToken, nil
}

func (c *Client) connect(ctx context.Context, identity Identity, roomKey, mediaId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return errors.New("session already active")
	}

	sess := session.NewManager(uuid.NewString(), identity.Username)
	sess.SetRoomKey(roomKey)
	bridge := cast.NewBridge(c.local, c.logger)
	engine := reconciler.NewEngine(&reconciler.EngineParams{
		Session:   sess,
		Bridge:    bridge,
		Router:    router.New(sess, bridge, c.logger),
		Notifier:  c.notifier,
		Navigator: c.navigator,
		Catalog:   c.catalog,
		Logger:    c.logger,
	})
	ch := channel.New(c.wsURL(roomKey, identity.Username), engine.OnChannelMessage, c.logger)
	engine.SetChannel(ch)
	engine.SetCurrentMedia(mediaId)

	engine.MarkConnecting()
	if err := ch.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect channel: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	go engine.Run(runCtx)

	c.sess = sess
	c.ch = ch
	c.engine = engine
	c.cancel = cancel
	c.active = true

	ch.Send(protocol.Message{
		Action:    protocol.ActionJoin,
		Data:      sess.JoinedAtMillis(),
		UserName:  sess.Username(),
		WatchRoom: sess.RoomKey(),
	})

	return nil
}

// sendAction sends a room-scoped message only if the channel is connected
// and a room key is set; otherwise it is a no-op.
func (c *Client) sendAction(action protocol.Action) {
	c.mu.Lock()
	ch, sess := c.ch, c.sess
	c.mu.Unlock()

	if ch == nil || sess == nil || !ch.Connected() || sess.RoomKey() == "" {
		return
	}

	ch.Send(protocol.Message{
		Action:    action,
		UserName:  sess.Username(),
		WatchRoom: sess.RoomKey(),
	})
}

// Leave broadcasts the departure, clears the local leader flag and tears
// the channel down. Idempotent; safe when never connected.
func (c *Client) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}

	c.ch.Send(protocol.Message{
		Action:    protocol.ActionLeft,
		UserName:  c.sess.Username(),
		WatchRoom: c.sess.RoomKey(),
	})
	c.sess.SetLeader(false)
	c.engine.Stop()
	c.cancel()
	c.ch.Disconnect()
	c.sess.Reset()
	c.active = false
}

// HandleRoleChange force-disconnects the active session when the role
// drops to guest mid-watch.
func (c *Client) HandleRoleChange(identity Identity) {
	if !identity.Restricted {
		return
	}

	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active {
		c.logger.Info("role changed to restricted, leaving session")
		c.Leave()
	}
}

// Session returns a read-only snapshot of the current session state.
func (c *Client) Session() (session.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return session.State{}, ErrNotActive
	}

	return c.sess.Snapshot(), nil
}

func (c *Client) Engine() *reconciler.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.engine
}

// Play and the other intent helpers put UI intents on the reconciler bus.
func (c *Client) Play(play bool) { c.dispatch(reconciler.PlayIntentEvent{Play: play}) }

func (c *Client) Seek(position float64) { c.dispatch(reconciler.SeekIntentEvent{Position: position}) }

func (c *Client) SetVolume(volume float64) {
	c.dispatch(reconciler.VolumeIntentEvent{Volume: volume})
}

func (c *Client) SetMuted(muted bool) { c.dispatch(reconciler.MuteIntentEvent{Muted: muted}) }

func (c *Client) CastConnected(device cast.Device) {
	c.dispatch(reconciler.CastConnectedEvent{Device: device})
}

func (c *Client) CastDisconnected() { c.dispatch(reconciler.CastDisconnectedEvent{}) }

// Say broadcasts a chat line to the room.
func (c *Client) Say(text string) {
	c.mu.Lock()
	ch, sess := c.ch, c.sess
	c.mu.Unlock()

	if ch == nil || sess == nil {
		return
	}

	ch.Send(protocol.Message{
		Action:    protocol.ActionSays,
		Data:      text,
		UserName:  sess.Username(),
		WatchRoom: sess.RoomKey(),
	})
}

func (c *Client) dispatch(event reconciler.Event) {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	if engine != nil {
		engine.Dispatch(event)
	}
}

func (c *Client) wsURL(roomKey, username string) string {
	base := strings.Replace(c.cfg.ServerURL, "http", "ws", 1)
	query := url.Values{"username": {username}}

	return fmt.Sprintf("%s/ws/%s?%s", base, url.PathEscape(roomKey), query.Encode())
}

type registerRoomRequest struct {
	RoomKey   string `json:"room_key"`
	AuthToken string `json:"auth_token"`
}

type resolveRoomResponse struct {
	AuthToken string `json:"auth_token"`
}

func (c *Client) registerRoomKey(ctx context.Context, roomKey, authToken string) error {
	body, err := json.Marshal(registerRoomRequest{RoomKey: roomKey, AuthToken: authToken})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServerURL+"/api/rooms", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to register room key: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return ErrRoomKeyTaken
	default:
		return fmt.Errorf("unexpected status registering room key: %d", resp.StatusCode)
	}
}

func (c *Client) resolveRoomKey(ctx context.Context, roomKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ServerURL+"/api/rooms/"+url.PathEscape(roomKey), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to resolve room key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrRoomNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status resolving room key: %d", resp.StatusCode)
	}

	var out resolveRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	return out.AuthToken, nil
}
