package core

import (
	"context"
	"sync"
)

// Channel is a live outbound half of a connection. Implementations wrap the
// actual transport; the core only ever borrows them for sending.
type Channel interface {
	Send(ctx context.Context, v any) error
}

// PairKey identifies one directed half of a two-party conversation: the
// socket owned by From, opened towards To.
type PairKey struct {
	From int64
	To   int64
}

// Reverse returns the key of the opposite half of the pair.
func (k PairKey) Reverse() PairKey {
	return PairKey{From: k.To, To: k.From}
}

// Registry maps directed pair keys to live channels. It is the sole owner of
// channel handles between Connect and Disconnect. All methods are safe for
// concurrent use; operations are short and never block on I/O.
type Registry struct {
	mu    sync.Mutex
	conns map[PairKey]Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[PairKey]Channel)}
}

// Connect registers a channel under the key. An existing entry for the same
// key is overwritten: last connect wins.
func (r *Registry) Connect(key PairKey, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[key] = ch
}

// Disconnect removes the entry for the key if present. Idempotent.
func (r *Registry) Disconnect(key PairKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, key)
}

// Lookup returns the channel registered under the key, if any.
func (r *Registry) Lookup(key PairKey) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.conns[key]
	return ch, ok
}

// NotifyRegistry maps user ids to live notification channels. Independent of
// the pairwise registry: one entry per user, last connect wins.
type NotifyRegistry struct {
	mu    sync.Mutex
	conns map[int64]Channel
}

// NewNotifyRegistry creates an empty notification registry.
func NewNotifyRegistry() *NotifyRegistry {
	return &NotifyRegistry{conns: make(map[int64]Channel)}
}

// Connect registers a notification channel for the user.
func (r *NotifyRegistry) Connect(userID int64, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = ch
}

// Disconnect removes the user's notification channel if present. Idempotent.
func (r *NotifyRegistry) Disconnect(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, userID)
}

// Lookup returns the user's notification channel, if any.
func (r *NotifyRegistry) Lookup(userID int64) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.conns[userID]
	return ch, ok
}
