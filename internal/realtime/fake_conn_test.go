package realtime

import (
	"sync"
	"time"
)

type fakeConn struct {
	id string

	mu       sync.Mutex
	sent     []Envelope
	closed   bool
	dead     bool
	capacity int // sends accepted before refusing; negative means unlimited
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, capacity: -1}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(env Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || (f.capacity >= 0 && len(f.sent) >= f.capacity) {
		return false
	}
	f.sent = append(f.sent, env)
	return true
}

func (f *fakeConn) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed && !f.dead
}

func (f *fakeConn) LastActivity() time.Time { return time.Time{} }

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = true
}

func (f *fakeConn) events() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Envelope(nil), f.sent...)
}
