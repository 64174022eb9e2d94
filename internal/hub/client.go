package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Consumers are listeners;
	// anything they send is discarded.
	maxMessageSize = 512
)

// wsConn is the subset of *websocket.Conn the client pumps use.
type wsConn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one downstream connection: its assigned id, its private
// bounded delivery channel, and the socket it writes to. The hub's
// registry owns the handle; nothing else mutates it.
type Client struct {
	id         uint64
	remoteAddr string
	conn       wsConn
	send       chan []byte
	hub        *Hub
}

// ID returns the connection identifier assigned at registration.
func (c *Client) ID() uint64 {
	return c.id
}

// RemoteAddr returns the consumer's network address, for logging.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// WritePump drains the delivery channel and writes frames to the socket.
// It owns the socket's write side entirely; a write failure or a closed
// channel ends the connection. Run in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.hub.Deregister(c.id)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.logger.Warn().
					Err(err).
					Uint64("connection_id", c.id).
					Msg("Write to client failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump discards inbound frames while enforcing read limits and pong
// deadlines; its real job is detecting disconnects. Run in its own
// goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Deregister(c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error().
					Err(err).
					Uint64("connection_id", c.id).
					Msg("Client read error")
			}
			return
		}
	}
}
