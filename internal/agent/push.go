package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/print-relay/internal/realtime"
	"github.com/gorilla/websocket"
)

// PushConn is one push channel connection
type PushConn interface {
	Read() (realtime.Envelope, error)
	Write(env realtime.Envelope) error
	Close() error
}

// Dialer opens push channel connections
type Dialer interface {
	Dial(ctx context.Context) (PushConn, error)
}

// WSDialer dials the server's websocket push channel
type WSDialer struct {
	url          string
	dialer       *websocket.Dialer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewWSDialer derives the push channel URL from the server's HTTP base URL.
// readTimeout must exceed the server's ping interval.
func NewWSDialer(serverURL string, readTimeout time.Duration) (*WSDialer, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}

	return &WSDialer{
		url: u.String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		readTimeout:  readTimeout,
		writeTimeout: 10 * time.Second,
	}, nil
}

// URL returns the push channel URL
func (d *WSDialer) URL() string {
	return d.url
}

// Dial opens a connection; the caller authenticates in-band
func (d *WSDialer) Dial(ctx context.Context) (PushConn, error) {
	conn, _, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", d.url, err)
	}

	c := &wsConn{conn: conn, readTimeout: d.readTimeout, writeTimeout: d.writeTimeout}
	conn.SetPingHandler(c.handlePing)
	return c, nil
}

type wsConn struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

// handlePing answers server pings and extends the read deadline
func (c *wsConn) handlePing(data string) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))

	err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.writeTimeout))
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	return err
}

func (c *wsConn) Read() (realtime.Envelope, error) {
	var env realtime.Envelope
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return env, err
	}
	if err := c.conn.ReadJSON(&env); err != nil {
		return env, err
	}
	return env, nil
}

func (c *wsConn) Write(env realtime.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(env)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
