package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/coview/groupwatch/internal/protocol"
)

// MessageFunc receives every well-formed inbound message, in connection
// order. Malformed payloads never reach it.
type MessageFunc func(protocol.Message)

// Channel is the duplex signaling transport. It knows nothing about the
// protocol beyond the JSON envelope: no retries, no routing. Connect is
// idempotent, Send drops silently while disconnected, Disconnect is always
// safe to call.
type Channel struct {
	url       string
	onMessage MessageFunc
	logger    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(url string, onMessage MessageFunc, logger *slog.Logger) *Channel {
	return &Channel{
		url:       url,
		onMessage: onMessage,
		logger:    logger,
	}
}

func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.conn = conn

	go c.readLoop(conn)

	return nil
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// Send drops the message without error if the channel is not open. Write
// failures close the connection; callers only ever observe Connected()
// flipping to false.
func (c *Channel) Send(msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.logger.Debug("send dropped, channel not connected", "action", msg.Action)
		return
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("send failed, closing channel", "error", err)
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}

	c.conn.Close()
	c.conn = nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Debug("dropping malformed payload", "error", err)
			continue
		}

		c.onMessage(msg)
	}
}
