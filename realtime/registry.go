package realtime

import (
	"sync"

	"chat-relay/contract"
)

// Registry maps each user to the set of their live sessions. It is the most
// contended structure in the process: written on every connect/disconnect,
// read by every delivery attempt, so reads take the shared lock only.
//
// The invariant everything else relies on: a user "has live presence" iff
// their session set is non-empty.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session // userID -> connectionID -> session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[string]*Session)}
}

// Add registers a session. It reports whether this is the user's first live
// session, which is the only moment an "online" transition may be broadcast.
func (r *Registry) Add(s *Session) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[s.UserID]
	if !ok {
		set = make(map[string]*Session)
		r.sessions[s.UserID] = set
	}
	set[s.ConnectionID] = s
	return !ok
}

// Remove drops one session. It reports whether the user now has zero live
// sessions; only then may presence be downgraded (multi-device rule).
func (r *Registry) Remove(userID, connectionID string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		return false
	}
	if _, ok := set[connectionID]; !ok {
		return false
	}
	delete(set, connectionID)
	if len(set) == 0 {
		delete(r.sessions, userID)
		return true
	}
	return false
}

// DropUser removes every session of the user at once and returns them so the
// caller can close the underlying transports. Used by the heartbeat sweep to
// evict users whose transport died without a clean disconnect.
func (r *Registry) DropUser(userID string) []*Session {
	r.mu.Lock()
	set := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	dropped := make([]*Session, 0, len(set))
	for _, s := range set {
		dropped = append(dropped, s)
	}
	return dropped
}

// Sinks returns the outbound side of every live session of the user.
// An empty result means the user is not reachable for live push.
func (r *Registry) Sinks(userID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sessions[userID]
	if len(set) == 0 {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(set))
	for _, s := range set {
		sinks = append(sinks, s.Sink)
	}
	return sinks
}

// AllSinks returns the sinks of every live session across all users,
// excluding exceptUserID when non-empty. Used for presence broadcasts.
func (r *Registry) AllSinks(exceptUserID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []contract.EventSink
	for userID, set := range r.sessions {
		if exceptUserID != "" && userID == exceptUserID {
			continue
		}
		for _, s := range set {
			sinks = append(sinks, s.Sink)
		}
	}
	return sinks
}

// LiveUsers snapshots the ids of all users with at least one session.
// Sweeps iterate over this snapshot, never over the live map.
func (r *Registry) LiveUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		users = append(users, userID)
	}
	return users
}

// SessionCount returns the number of live sessions (devices) for the user.
func (r *Registry) SessionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID])
}

// TotalSessions returns the number of live sessions across all users.
func (r *Registry) TotalSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, set := range r.sessions {
		total += len(set)
	}
	return total
}
