/*
Package chat contains the realtime core: the connection registry, per-connection
protocol sessions, presence tracking, typing notifications, and message fan-out.

This file defines the Registry, the process-wide map from user id to that
user's single live connection. The registry is an injected, explicitly-owned
object (created at server start, torn down at shutdown) so tests can run
independent registries in parallel.
*/
package chat

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Davnspvtltd/teamchat/internal/pkg/logx"
)

// Handle is the registry's view of one live connection. Session implements it;
// tests substitute fakes.
type Handle interface {
	// Deliver queues an outbound frame. Errors mean the frame was dropped for
	// this connection only and must never abort delivery to other peers.
	Deliver(f Frame) error

	// Close shuts the connection down gracefully with the given close code. A
	// session closed because the same user opened a newer connection must not
	// evict its successor during its own cleanup.
	Close(code int, reason string)
}

// Registry holds at most one Handle per user id.
type Registry struct {
	mu     sync.RWMutex
	conns  map[int64]Handle
	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[int64]Handle),
		logger: logx.Logger().With().Str("component", "registry").Logger(),
	}
}

// Register stores the handle for userID. An existing handle for the same user
// is closed gracefully first, keeping the at-most-one-connection invariant.
// Callers trigger the presence update separately.
func (r *Registry) Register(userID int64, h Handle) {
	r.mu.Lock()
	existing, ok := r.conns[userID]
	r.conns[userID] = h
	r.mu.Unlock()

	if ok && existing != h {
		r.logger.Warn().
			Int64("user_id", userID).
			Msg("User already connected. Closing old connection for replacement.")
		existing.Close(WsCloseCodeSessionReplaced, "Session replaced by new connection. Check other tabs.")
	}
}

// Unregister removes the entry for userID, but only while h still owns it.
// A session replaced by a newer connection calls Unregister during its own
// cleanup; the stale-handle guard keeps it from evicting its successor.
// Reports whether h was the registered handle, so the replaced session knows
// the user is still connected and skips the offline transition. Idempotent.
func (r *Registry) Unregister(userID int64, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[userID]; ok && current == h {
		delete(r.conns, userID)
		return true
	}
	return false
}

// Lookup returns the live handle for userID, if any.
func (r *Registry) Lookup(userID int64) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.conns[userID]
	return h, ok
}

// Send delivers one frame to userID's connection if one is registered.
// Returns false when the user has no live connection or delivery failed;
// best-effort only, the REST fetch path recovers missed events.
func (r *Registry) Send(userID int64, f Frame) bool {
	h, ok := r.Lookup(userID)
	if !ok {
		return false
	}

	if err := h.Deliver(f); err != nil {
		r.logger.Warn().Err(err).
			Int64("user_id", userID).
			Str("frame_type", string(f.Type)).
			Msg("Failed to deliver frame to connection")
		return false
	}
	return true
}

// Broadcast sends the frame to every registered connection except
// excludeUserID. Per-recipient failures are logged and skipped so one bad
// peer cannot block delivery to the others.
func (r *Registry) Broadcast(f Frame, excludeUserID int64) {
	r.mu.RLock()
	targets := make(map[int64]Handle, len(r.conns))
	for userID, h := range r.conns {
		if userID != excludeUserID {
			targets[userID] = h
		}
	}
	r.mu.RUnlock()

	for userID, h := range targets {
		if err := h.Deliver(f); err != nil {
			r.logger.Warn().Err(err).
				Int64("user_id", userID).
				Str("frame_type", string(f.Type)).
				Msg("Broadcast delivery failed for connection")
		}
	}
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// Shutdown gracefully closes every registered connection and empties the map.
// The going-away code tells clients this is a server stop, not a replaced
// session, so they do not hammer a dead endpoint under the replacement code.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[int64]Handle)
	r.mu.Unlock()

	for _, h := range conns {
		h.Close(websocket.CloseGoingAway, "Server shutting down.")
	}
}
