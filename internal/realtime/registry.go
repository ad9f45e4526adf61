package realtime

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type session struct {
	conn     Conn
	seq      uint64
	joinedAt time.Time
}

// Registry maps each identity to at most one live connection.
// A registration wins only if its sequence number is higher than the current holder's.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*session
	seq      atomic.Uint64
	now      func() time.Time
	logger   *slog.Logger
}

// NewRegistry creates an empty session registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[int64]*session),
		now:      time.Now,
		logger:   logger,
	}
}

// NextSeq returns a new monotonically increasing registration sequence number.
// Take it when the authenticate frame arrives, before the identity lookup.
func (r *Registry) NextSeq() uint64 {
	return r.seq.Add(1)
}

// Register binds conn to identity, closing any previous connection for it.
// It returns false, leaving the registry unchanged, if a newer registration already holds the slot.
func (r *Registry) Register(identity int64, conn Conn, seq uint64) bool {
	r.mu.Lock()
	prev, exists := r.sessions[identity]
	if exists && prev.seq > seq && prev.conn.Alive() {
		r.mu.Unlock()
		r.logger.Warn("Rejected stale session registration",
			slog.Int64("identity", identity),
			slog.String("conn_id", conn.ID()),
			slog.Uint64("seq", seq),
			slog.Uint64("holder_seq", prev.seq),
		)
		return false
	}

	joinedAt := r.now()
	if exists && prev.conn.ID() == conn.ID() {
		joinedAt = prev.joinedAt
	}
	r.sessions[identity] = &session{conn: conn, seq: seq, joinedAt: joinedAt}
	r.mu.Unlock()

	if exists && prev.conn.ID() != conn.ID() {
		r.logger.Info("Evicting previous session",
			slog.Int64("identity", identity),
			slog.String("evicted_conn_id", prev.conn.ID()),
			slog.String("conn_id", conn.ID()),
		)
		prev.conn.Close()
	}

	return true
}

// Lookup returns the identity's live connection. A dead entry is removed.
func (r *Registry) Lookup(identity int64) (Conn, bool) {
	r.mu.Lock()
	s, ok := r.sessions[identity]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	if s.conn.Alive() {
		r.mu.Unlock()
		return s.conn, true
	}
	delete(r.sessions, identity)
	r.mu.Unlock()

	r.logger.Info("Removed stale session",
		slog.Int64("identity", identity),
		slog.String("conn_id", s.conn.ID()),
	)
	s.conn.Close()
	return nil, false
}

// Remove drops the identity's entry only if connID still holds it
func (r *Registry) Remove(identity int64, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[identity]
	if !ok || s.conn.ID() != connID {
		return false
	}
	delete(r.sessions, identity)
	return true
}

// Evict drops and closes the identity's connection, if any
func (r *Registry) Evict(identity int64) bool {
	r.mu.Lock()
	s, ok := r.sessions[identity]
	if ok {
		delete(r.sessions, identity)
	}
	r.mu.Unlock()

	if ok {
		s.conn.Close()
	}
	return ok
}

// Sweep evicts every entry whose connection is no longer alive and returns how many
func (r *Registry) Sweep() int {
	r.mu.Lock()
	var dead []Conn
	for identity, s := range r.sessions {
		if !s.conn.Alive() {
			dead = append(dead, s.conn)
			delete(r.sessions, identity)
		}
	}
	r.mu.Unlock()

	for _, conn := range dead {
		conn.Close()
	}
	return len(dead)
}

// Count returns the number of registered identities
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns the current presence aggregate ordered by identity
func (r *Registry) Snapshot() Presence {
	r.mu.Lock()
	sessions := make([]PresenceSession, 0, len(r.sessions))
	for identity, s := range r.sessions {
		sessions = append(sessions, PresenceSession{
			IdentityID:   identity,
			JoinedAt:     s.joinedAt,
			LastActivity: s.conn.LastActivity(),
		})
	}
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].IdentityID < sessions[j].IdentityID
	})
	return Presence{Count: len(sessions), Sessions: sessions}
}

// Conns returns every registered connection
func (r *Registry) Conns() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]Conn, 0, len(r.sessions))
	for _, s := range r.sessions {
		conns = append(conns, s.conn)
	}
	return conns
}
