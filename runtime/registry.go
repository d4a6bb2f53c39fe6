package runtime

import (
	"sync"

	"courier/contract"
	"courier/domain"
)

// Registry is the in-memory presence table: which users currently hold live
// connections, and through which sinks they can be reached. It is the only
// shared mutable state of the delivery path, so every mutation goes through
// its mutex. A reverse index from connection to owner gives O(1) disconnect
// cleanup without scanning.
//
// Invariant: a user appears in byUser if and only if it owns at least one
// open connection.
type Registry struct {
	mu     sync.RWMutex
	byUser map[domain.UserID]map[domain.ConnectionID]contract.EventSink
	byConn map[domain.ConnectionID]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[domain.UserID]map[domain.ConnectionID]contract.EventSink),
		byConn: make(map[domain.ConnectionID]domain.UserID),
	}
}

// Register attaches a connection to a user. Idempotent per connection:
// registering the same connection twice only refreshes its sink. The return
// value reports whether the user transitioned from offline to online, so
// callers broadcast exactly once per net change, not once per raw call.
func (r *Registry) Register(userID domain.UserID, connID domain.ConnectionID, sink contract.EventSink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byConn[connID]; ok && owner != userID {
		// A connection can only ever belong to one identity. Detach it from
		// the previous owner before attaching, keeping both indexes in step.
		r.detachLocked(owner, connID)
	}

	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[domain.ConnectionID]contract.EventSink)
		r.byUser[userID] = conns
	}
	cameOnline := len(conns) == 0

	conns[connID] = sink
	r.byConn[connID] = userID
	return cameOnline
}

// Deregister detaches a connection from its owner. Unknown connections are a
// defensive no-op: disconnect races must never crash the system or
// double-report an offline transition. The second return value is true only
// when this was the owner's last connection.
func (r *Registry) Deregister(connID domain.ConnectionID) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	return owner, r.detachLocked(owner, connID)
}

func (r *Registry) detachLocked(owner domain.UserID, connID domain.ConnectionID) bool {
	delete(r.byConn, connID)
	conns := r.byUser[owner]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, owner)
		return true
	}
	return false
}

// Lookup returns the sinks of every live connection a user holds. Empty when
// offline. Never blocks beyond the read lock.
func (r *Registry) Lookup(userID domain.UserID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(conns))
	for _, sink := range conns {
		sinks = append(sinks, sink)
	}
	return sinks
}

// OnlineIdentities returns a snapshot of every user with at least one live
// connection, for broadcast-on-change use.
func (r *Registry) OnlineIdentities() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]domain.UserID, 0, len(r.byUser))
	for userID := range r.byUser {
		online = append(online, userID)
	}
	return online
}

// Sinks returns a snapshot of every live sink across all users.
func (r *Registry) Sinks() []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]contract.EventSink, 0, len(r.byConn))
	for _, conns := range r.byUser {
		for _, sink := range conns {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// IsOnline reports whether a user currently holds at least one connection.
func (r *Registry) IsOnline(userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}
