package realtime

import "time"

// Conn is a live push connection as seen by the registry and dispatcher
type Conn interface {
	// ID uniquely identifies the connection
	ID() string
	// Send queues the envelope without blocking and reports whether it was accepted
	Send(env Envelope) bool
	// Alive reports whether the connection is open and inside its liveness window
	Alive() bool
	// LastActivity is when the peer was last heard from
	LastActivity() time.Time
	// Close terminates the connection; safe to call more than once
	Close()
}
