package chat

import "sync"

// Registry maps a logged-in user to the sender of their single live
// connection. Fanout takes the read lock; connects and disconnects take the
// write lock.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Sender)}
}

// Register installs sender for userID and returns the sender it displaced,
// if any. The displaced sender is neither closed nor notified.
func (r *Registry) Register(userID string, sender Sender) (Sender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced := r.conns[userID]
	r.conns[userID] = sender
	return previous, replaced
}

func (r *Registry) Lookup(userID string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sender, ok := r.conns[userID]
	return sender, ok
}

// Remove drops userID. Removing an absent user is a no-op.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	delete(r.conns, userID)
	r.mu.Unlock()
}

// RemoveIf drops userID only while it still maps to sender, so a connection
// that was displaced by a newer login cannot evict its successor on teardown.
func (r *Registry) RemoveIf(userID string, sender Sender) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[userID]; ok && current == sender {
		delete(r.conns, userID)
		return true
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
