package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 64 << 10
)

// Conn serializes writes to a gorilla connection, which allows one
// concurrent writer only.
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Wrap configures read limits and the pong handler on c.
func Wrap(c *websocket.Conn) *Conn {
	c.SetReadLimit(MaxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(PongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(PongWait))
	})
	return &Conn{conn: c}
}

// WriteTyped sends a strongly-typed payload.
func (c *Conn) WriteTyped(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return c.conn.WriteJSON(v)
}

// WriteError sends an ErrorEvent.
func (c *Conn) WriteError(code, msg string) error {
	return c.WriteTyped(ErrorEvent{Event: EventError, Code: code, Error: msg})
}

// Ping sends a control ping.
func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteWait))
}

// ReadJSON decodes the next message. Any client message extends the read deadline.
func (c *Conn) ReadJSON(v any) error {
	if err := c.conn.ReadJSON(v); err != nil {
		return err
	}
	return c.conn.SetReadDeadline(time.Now().Add(PongWait))
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(WriteWait))
	c.mu.Unlock()
	return c.conn.Close()
}
