package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cuongbtq/print-relay/internal/identity"
	"github.com/gorilla/websocket"
)

// HubConfig holds push channel timing and sizing
type HubConfig struct {
	AuthTimeout    time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string
	SweepInterval  time.Duration
}

func (c *HubConfig) withDefaults() HubConfig {
	cfg := *c
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 << 10
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return cfg
}

// Hub accepts push connections, runs the authentication handshake and fans out presence
type Hub struct {
	config     HubConfig
	upgrader   websocket.Upgrader
	dispatcher *Dispatcher
	lookup     identity.Lookup
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	wg      sync.WaitGroup
}

// NewHub creates a hub that authenticates connections with lookup
func NewHub(config HubConfig, dispatcher *Dispatcher, lookup identity.Lookup, logger *slog.Logger) *Hub {
	h := &Hub{
		config:     config.withDefaults(),
		dispatcher: dispatcher,
		lookup:     lookup,
		logger:     logger,
		now:        time.Now,
		clients:    make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and starts the connection's pumps.
// The credential is sent in-band with an authenticate event.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := newClient(h, ws)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	c.logger.Debug("Push connection opened", slog.String("remote_addr", r.RemoteAddr))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// disconnect is called once the read pump of c exits
func (h *Hub) disconnect(c *client) {
	c.Close()

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	if c.authenticated.Load() && h.dispatcher.Detach(c.identity.Load(), c.id) {
		c.logger.Info("Session ended", slog.Int64("identity", c.identity.Load()))
		h.broadcastPresence()
	}
}

// broadcastPresence sends the presence aggregate to every registered session
func (h *Hub) broadcastPresence() {
	presence := h.dispatcher.Registry().Snapshot()
	env, err := NewEnvelope(EventPresence, presence)
	if err != nil {
		h.logger.Error("Failed to encode presence", slog.Any("error", err))
		return
	}

	for _, conn := range h.dispatcher.Registry().Conns() {
		conn.Send(env)
	}
}

// Presence returns the current presence aggregate
func (h *Hub) Presence() Presence {
	return h.dispatcher.Registry().Snapshot()
}

// Run sweeps dead sessions and expired pending events until ctx is done, then closes every connection
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-ticker.C:
			swept := h.dispatcher.Registry().Sweep()
			pruned := h.dispatcher.Pending().Prune()
			if swept > 0 || pruned > 0 {
				h.logger.Info("Realtime sweep",
					slog.Int("sessions_evicted", swept),
					slog.Int("pending_expired", pruned),
				)
				if swept > 0 {
					h.broadcastPresence()
				}
			}
		}
	}
}

// Close terminates every open connection and waits for their pumps to exit
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	h.wg.Wait()
	h.logger.Info("Push channel closed", slog.Int("connections", len(clients)))
}
