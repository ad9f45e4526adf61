package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// client is one websocket connection. readPump and writePump each own one side of ws.
type client struct {
	hub    *Hub
	id     string
	ws     *websocket.Conn
	send   chan Envelope
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	identity      atomic.Int64
	authenticated atomic.Bool
	lastActivity  atomic.Int64
}

func newClient(hub *Hub, ws *websocket.Conn) *client {
	id := uuid.NewString()
	c := &client{
		hub:    hub,
		id:     id,
		ws:     ws,
		send:   make(chan Envelope, hub.config.SendBuffer),
		done:   make(chan struct{}),
		logger: hub.logger.With(slog.String("conn_id", id)),
	}
	c.touch()
	return c
}

func (c *client) ID() string {
	return c.id
}

// Send queues env for the write pump. A full buffer means the peer is not keeping up; the connection is closed.
func (c *client) Send(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- env:
		return true
	default:
		c.logger.Warn("Send buffer full, closing connection",
			slog.String("event", env.Event),
		)
		c.Close()
		return false
	}
}

func (c *client) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
	}
	return c.hub.now().Sub(c.LastActivity()) < c.hub.config.PongWait
}

func (c *client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *client) touch() {
	c.lastActivity.Store(c.hub.now().UnixNano())
}

func (c *client) sendEvent(event string, data any) bool {
	env, err := NewEnvelope(event, data)
	if err != nil {
		c.logger.Error("Failed to encode event", slog.String("event", event), slog.Any("error", err))
		return false
	}
	return c.Send(env)
}

// readPump handles inbound frames until the peer goes away or a deadline passes
func (c *client) readPump() {
	defer c.hub.disconnect(c)

	cfg := c.hub.config
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	c.ws.SetReadDeadline(c.hub.now().Add(cfg.AuthTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		if c.authenticated.Load() {
			c.ws.SetReadDeadline(c.hub.now().Add(cfg.PongWait))
		}
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}
		c.touch()
		if c.authenticated.Load() {
			c.ws.SetReadDeadline(c.hub.now().Add(cfg.PongWait))
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.sendEvent(EventError, ErrorEvent{Message: "malformed frame"})
			continue
		}

		if !c.handle(env) {
			return
		}
	}
}

func (c *client) readFailed(err error) {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout() && !c.authenticated.Load():
		c.logger.Info("Authentication timeout, closing connection")
		c.sendEvent(EventAuthenticated, Authenticated{Success: false, Error: "authentication timeout"})
	case errors.As(err, &netErr) && netErr.Timeout():
		c.logger.Info("Liveness window elapsed, closing connection",
			slog.Int64("identity", c.identity.Load()),
		)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Warn("Connection closed unexpectedly", slog.Any("error", err))
	default:
		c.logger.Debug("Connection closed", slog.Any("error", err))
	}
}

// handle dispatches one inbound event and reports whether to keep reading
func (c *client) handle(env Envelope) bool {
	switch env.Event {
	case EventAuthenticate:
		return c.authenticate(env)
	case EventPing:
		var hb Heartbeat
		_ = env.Decode(&hb)
		c.sendEvent(EventPong, Heartbeat{Timestamp: hb.Timestamp})
		return true
	}

	if !c.authenticated.Load() {
		c.logger.Debug("Ignoring event before authentication", slog.String("event", env.Event))
		return true
	}

	switch env.Event {
	case EventJobReceived:
		var ack JobReceived
		if err := env.Decode(&ack); err != nil {
			c.sendEvent(EventError, ErrorEvent{Message: err.Error()})
			return true
		}
		c.logger.Info("Client acknowledged job",
			slog.Int64("identity", c.identity.Load()),
			slog.Int64("job_id", ack.ID),
		)
	case EventPong:
	default:
		c.sendEvent(EventError, ErrorEvent{Message: "unknown event " + env.Event})
	}
	return true
}

func (c *client) authenticate(env Envelope) bool {
	seq := c.hub.dispatcher.Registry().NextSeq()

	var req Authenticate
	if err := env.Decode(&req); err != nil || req.Credential == "" {
		c.rejectAuth("credential is required")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.hub.config.AuthTimeout)
	defer cancel()

	ident, err := c.hub.lookup.Lookup(ctx, req.Credential)
	if err != nil {
		c.logger.Info("Authentication failed", slog.Any("error", err))
		c.rejectAuth("invalid credential")
		return false
	}

	if c.authenticated.Load() && c.identity.Load() != ident.ID {
		c.rejectAuth("connection is bound to another identity")
		return false
	}

	c.identity.Store(ident.ID)
	c.authenticated.Store(true)
	c.ws.SetReadDeadline(c.hub.now().Add(c.hub.config.PongWait))

	accepted, flushed := c.hub.dispatcher.Attach(ident.ID, c, seq)
	if !accepted {
		c.authenticated.Store(false)
		c.rejectAuth("superseded by a newer session")
		return false
	}

	c.sendEvent(EventAuthenticated, Authenticated{
		Success:       true,
		Identity:      ident.ID,
		Subscriptions: []string{JobsSubscription(ident.ID), SubscriptionPresence},
	})

	c.logger.Info("Session authenticated",
		slog.Int64("identity", ident.ID),
		slog.Int("flushed", flushed),
	)
	c.hub.broadcastPresence()
	return true
}

func (c *client) rejectAuth(reason string) {
	c.sendEvent(EventAuthenticated, Authenticated{Success: false, Error: reason})
	c.Close()
}

// writePump serializes all writes to ws and sends websocket pings
func (c *client) writePump() {
	cfg := c.hub.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case env := <-c.send:
			if err := c.write(env); err != nil {
				c.logger.Debug("Write failed", slog.Any("error", err))
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(c.hub.now().Add(cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				c.hub.now().Add(cfg.WriteWait))
			return
		}
	}
}

// flush writes whatever is still queued, such as a final authentication failure
func (c *client) flush() {
	for {
		select {
		case env := <-c.send:
			if err := c.write(env); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *client) write(env Envelope) error {
	c.ws.SetWriteDeadline(c.hub.now().Add(c.hub.config.WriteWait))
	return c.ws.WriteJSON(env)
}
