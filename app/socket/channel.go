package socket

import (
	"sync"
	"time"

	"fleet-bridge/app/dto"

	"github.com/gorilla/websocket"
)

// Time allowed to write a frame to the peer before giving up on it.
const writeWait = 5 * time.Second

// Close codes specific to this protocol, in the private websocket range.
const (
	CloseAuthTimeout     = 4006
	CloseConnectionLimit = 4029
)

// Channel is one open bidirectional JSON connection to a robot. The hub and
// dispatcher only ever talk to this interface; the websocket details stay
// here.
type Channel interface {
	Send(frame dto.Frame) error
	Close(code int, reason string) error
	RemoteAddr() string
}

// WSChannel adapts a gorilla websocket connection. Writes are serialized
// with a mutex because frames can originate from the read loop, the
// monitor sweep and control-plane pushes at the same time.
type WSChannel struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSChannel(conn *websocket.Conn) *WSChannel {
	return &WSChannel{conn: conn}
}

func (c *WSChannel) Send(frame dto.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

func (c *WSChannel) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.conn.Close()
}

func (c *WSChannel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
