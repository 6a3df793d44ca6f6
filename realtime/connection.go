// Package realtime owns the live side of the system: websocket connections
// and the session registry that maps users to their connected devices.
package realtime

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/domain/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 128
)

// Connection wraps a websocket and serializes outbound writes through a
// buffered channel. It is safe for concurrent use: any goroutine may Push,
// only the internal write loop touches the socket for data frames.
type Connection struct {
	id string

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

func NewConnection(id string, ws *websocket.Conn) *Connection {
	return &Connection{
		id:    id,
		ws:    ws,
		send:  make(chan []byte, sendBufferSize),
		close: make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

// Start installs the pong handler and launches the write loop. It must be
// called exactly once per connection, on the goroutine that will read, and
// before the first ReadEnvelope: the pong handler runs on that same reader
// goroutine, so setting it up here keeps all read-side state on one side.
func (c *Connection) Start() {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.writeLoop()
}

// Push frames payload into an Envelope and enqueues it for delivery.
// If the client is slow and the buffer is full, the connection is closed to
// keep backpressure bounded instead of blocking the rest of the system.
func (c *Connection) Push(eventName string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventName, err)
	}
	frame, err := json.Marshal(event.Envelope{
		Event:     eventName,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", eventName, err)
	}

	select {
	case <-c.close:
		return fmt.Errorf("connection %s closed", c.id)
	case c.send <- frame:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return fmt.Errorf("connection %s buffer exceeded", c.id)
	}
}

// ErrMalformedFrame marks an inbound frame that failed to decode. It is not
// fatal: one bad event must not take down the session, so callers skip the
// frame and keep reading.
var ErrMalformedFrame = stderrors.New("malformed envelope")

// IsMalformed reports whether a read failure was a decode problem rather
// than a dead transport.
func IsMalformed(err error) bool {
	return stderrors.Is(err, ErrMalformedFrame)
}

// ReadEnvelope blocks until the next inbound frame and decodes it.
// The read deadline is refreshed by pongs, so a transport that stops
// answering pings eventually fails the read and tears the session down.
func (c *Connection) ReadEnvelope() (event.Envelope, error) {
	var env event.Envelope
	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return env, nil
}

// Close terminates the connection and stops the write loop. Safe to call
// multiple times; only the first call has an effect.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case frame := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
