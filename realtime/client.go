package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"workchat/domain/event"
	wcerrors "workchat/errors"
)

const (
	maxFrameSize = 64 * 1024
	writeTimeout = 10 * time.Second
)

// Client is one websocket session. It implements the event sink used by
// the broadcast paths; frames queue on a buffered channel and a slow
// session only loses its own copies.
type Client struct {
	sessionID  string
	employeeID string
	conn       *websocket.Conn
	send       chan []byte
	log        *slog.Logger

	// mu guards closed: broadcasts race the teardown path, and a frame
	// must never be pushed onto a closed channel.
	mu     sync.Mutex
	closed bool
}

func newClient(sessionID string, conn *websocket.Conn, bufferSize int, log *slog.Logger) *Client {
	return &Client{
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, bufferSize),
		log:       log,
	}
}

// Consume encodes a domain event and queues it for the write loop.
func (c *Client) Consume(_ context.Context, evt event.DomainEvent) error {
	frame, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.enqueue(payload)
}

func (c *Client) enqueue(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return wcerrors.ErrSlowConsumer
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return wcerrors.ErrSlowConsumer
	}
}

// shutdown stops the write loop. Must only run after the session has
// left the registry, so no new broadcasts can pick this sink up.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// sendFrame queues an ad-hoc frame (errors, acks) for this session only.
func (c *Client) sendFrame(eventName string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.log.Warn("frame encoding failed", "event", eventName, "error", err)
		return
	}
	payload, err := json.Marshal(Frame{Event: eventName, Data: raw})
	if err != nil {
		return
	}
	if err = c.enqueue(payload); err != nil {
		c.log.Debug("frame dropped, session buffer full",
			"session", c.sessionID, "event", eventName)
	}
}

func (c *Client) sendError(code, message string) {
	c.sendFrame("error", map[string]string{"code": code, "message": message})
}

func (c *Client) writeLoop() {
	defer c.conn.Close()
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
