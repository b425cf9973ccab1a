package websocket

import (
	"fmt"
	"iter"
	"sync"
)

// Conn is one live connection as seen by the registry and the broadcaster.
type Conn interface {
	ID() string
	IsOpen() bool
	// SendText queues a text frame. It must not block on the network.
	SendText(data []byte) error
}

// Registry tracks live connections by session id.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register fails with ErrDuplicateSession if sessionID is already present; the
// existing connection is left untouched.
func (r *Registry) Register(sessionID string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[sessionID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, sessionID)
	}
	r.conns[sessionID] = conn
	return nil
}

// Unregister is idempotent. It reports whether a connection was removed.
func (r *Registry) Unregister(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[sessionID]; !exists {
		return false
	}
	delete(r.conns, sessionID)
	return true
}

func (r *Registry) Get(sessionID string) (Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.conns[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return conn, nil
}

// AllOpen snapshots the registry at call time. The returned sequence can be
// ranged over any number of times and never holds the registry lock while
// yielding, so registration and removal proceed during enumeration.
func (r *Registry) AllOpen() iter.Seq[Conn] {
	r.mu.RLock()
	snapshot := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		snapshot = append(snapshot, conn)
	}
	r.mu.RUnlock()

	return func(yield func(Conn) bool) {
		for _, conn := range snapshot {
			if !conn.IsOpen() {
				continue
			}
			if !yield(conn) {
				return
			}
		}
	}
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ActiveCount returns the number of registered sessions that are still open.
func (r *Registry) ActiveCount() int {
	n := 0
	for range r.AllOpen() {
		n++
	}
	return n
}
