// Package server manages individual WebSocket clients, handling read and
// write pumps, rate limiting, and session cleanup for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roomloft/roomloft/internal/chat"
)

// Client binds one WebSocket connection to its session state machine.
// The readPump goroutine is the only one that touches the session, which
// keeps per-connection handling strictly serial.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	session        *chat.Session
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a Client around conn with a fresh session in the
// connected step. The send channel is buffered to absorb bursts.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		session:        chat.NewSession(uuid.NewString()),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// Session exposes the connection's session state.
func (c *Client) Session() *chat.Session {
	return c.session
}

// GetSendChan returns the client's send channel for reading outgoing frames.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// queueConnected enqueues the connected acknowledgment. Called before
// the client is registered, so it precedes all other traffic.
func (c *Client) queueConnected() {
	payload, err := json.Marshal(chat.ServerEvent{Event: chat.EventConnected})
	if err != nil {
		return
	}
	c.send <- payload
}

// sendEvent delivers one event to this connection only.
func (c *Client) sendEvent(event chat.ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal event", "addr", c.addr, "event", event.Event, "error", err)
		return
	}
	if !c.hub.safeSend(c, payload) {
		slog.Debug("dropped event for unreachable client", "addr", c.addr, "event", event.Event)
	}
}

// processEvent decodes one inbound frame and runs it through the session
// state machine. Panics are contained here so a bad frame can never take
// down the connection or the process.
func (c *Client) processEvent(rawMessage []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered from panic in event handler", "addr", c.addr, "panic", r)
			c.sendEvent(chat.ServerEvent{Event: chat.EventError, Data: chat.ErrorPayload{Message: "Internal server error"}})
		}
	}()

	var env chat.Envelope
	if err := json.Unmarshal(rawMessage, &env); err != nil {
		slog.Debug("invalid frame", "addr", c.addr, "error", err)
		c.sendEvent(chat.ServerEvent{Event: chat.EventError, Data: chat.ErrorPayload{Message: "Invalid event"}})
		return
	}

	c.apply(c.session.Handle(c.hub.Registry(), env))
}

// apply delivers an outcome: replies to this connection, broadcasts to
// room members, and an optional connection close for explicit leaves.
func (c *Client) apply(out chat.Outcome) {
	for _, ev := range out.Replies {
		c.sendEvent(ev)
	}
	for _, b := range out.Broadcasts {
		c.hub.BroadcastRoom(b.RoomID, chat.ServerEvent{Event: chat.EventChatMessage, Data: b.Message})
	}
	if out.Close && c.conn != nil {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("error closing connection after leave", "addr", c.addr, "error", err)
		}
	}
}

// finishSession runs the departure cleanup. The session's terminal step
// makes this idempotent, so a disconnect after an explicit leave is a
// no-op.
func (c *Client) finishSession() {
	out := c.session.Leave(c.hub.Registry())
	for _, b := range out.Broadcasts {
		c.hub.BroadcastRoom(b.RoomID, chat.ServerEvent{Event: chat.EventChatMessage, Data: b.Message})
	}
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		slog.Warn("error setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			slog.Warn("error setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// handleReadError logs the error and reports whether the read loop
// should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		slog.Warn("message exceeded maximum size", "addr", c.addr, "limit", c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		slog.Info("client disconnected", "addr", c.addr, "reason", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		slog.Info("client connection closed", "addr", c.addr, "reason", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		slog.Warn("unexpected WebSocket error", "addr", c.addr, "error", err)
		return true
	}

	slog.Warn("websocket read error", "addr", c.addr, "error", err)
	return true
}

// checkRateLimit reports whether the next inbound event may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		slog.Warn("rate limit exceeded; discarding event", "addr", c.addr, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.finishSession()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
			// Hub loop already stopped; shutdown closes everything.
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				slog.Warn("error closing connection in readPump", "error", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processEvent(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when
// the pump should stop.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("error closing connection in writePump", "error", err)
		}
	}
}

// handleMessage writes one outgoing frame and returns false if the
// connection should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		slog.Warn("error setting write deadline", "addr", c.addr, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("error writing close message", "addr", c.addr, "error", err)
		}
	}
	return false
}

// writeTextMessage writes a frame and drains any queued frames into the
// same WebSocket message, newline separated.
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		slog.Warn("error creating writer", "addr", c.addr, "error", err)
		return false
	}

	if _, err := w.Write(message); err != nil {
		slog.Warn("error writing message", "addr", c.addr, "error", err)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			slog.Warn("error writing frame separator", "addr", c.addr, "error", err)
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			slog.Warn("error writing queued message", "addr", c.addr, "error", err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		slog.Warn("error closing writer", "addr", c.addr, "error", err)
		return false
	}
	return true
}

// handlePing keeps the connection alive between frames.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		slog.Warn("error setting write deadline for ping", "addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("error writing ping message", "addr", c.addr, "error", err)
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
