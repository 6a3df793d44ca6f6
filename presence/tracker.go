// Package presence derives each user's coarse status (online/away/offline)
// from heartbeat and activity recency. The tracker is pure in-memory
// bookkeeping; broadcasting the transitions it reports is the caller's job.
package presence

import (
	"sync"
	"time"

	"chat-relay/domain"
)

// Transition is a status change that should be broadcast to peers.
type Transition struct {
	UserID   string
	Status   domain.Status
	LastSeen time.Time
}

// Tracker owns one PresenceRecord per user who has connected during this
// process lifetime. Records are never deleted so "last seen" stays
// answerable after the last session closes.
//
// Status is always recomputed from the stored clocks; nothing is set and
// left to go stale without a recompute path (the sweeps).
type Tracker struct {
	mu      sync.Mutex
	records map[string]*domain.PresenceRecord

	idleThreshold    time.Duration
	awayThreshold    time.Duration
	heartbeatTimeout time.Duration

	now func() time.Time
}

func NewTracker(idleThreshold, awayThreshold, heartbeatTimeout time.Duration) *Tracker {
	return &Tracker{
		records:          make(map[string]*domain.PresenceRecord),
		idleThreshold:    idleThreshold,
		awayThreshold:    awayThreshold,
		heartbeatTimeout: heartbeatTimeout,
		now:              time.Now,
	}
}

// Connected marks the user online and resets both liveness clocks. Called on
// every connect, regardless of device count; the registry decides whether an
// online broadcast is due.
func (t *Tracker) Connected(userID string) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.records[userID]
	if !ok {
		rec = &domain.PresenceRecord{}
		t.records[userID] = rec
	}
	rec.Status = domain.StatusOnline
	rec.LastHeartbeatAt = now
	rec.LastActivityAt = now
	return Transition{UserID: userID, Status: domain.StatusOnline, LastSeen: now}
}

// Disconnected transitions the user to offline and stamps lastSeen. Only
// called after the last session closed.
func (t *Tracker) Disconnected(userID string) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.records[userID]
	if !ok {
		rec = &domain.PresenceRecord{}
		t.records[userID] = rec
	}
	rec.Status = domain.StatusOffline
	rec.LastSeenAt = now
	return Transition{UserID: userID, Status: domain.StatusOffline, LastSeen: now}
}

// Heartbeat resets the liveness clock. It never changes status by itself and
// never broadcasts; the ack to the sender is the caller's concern.
func (t *Tracker) Heartbeat(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[userID]; ok {
		rec.LastHeartbeatAt = t.now()
	}
}

// Activity resets the idle clock and recomputes status immediately so a user
// coming back from away gets instant "online" feedback instead of waiting
// for the next sweep. The returned bool reports whether status changed.
func (t *Tracker) Activity(userID string) (Transition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[userID]
	if !ok {
		return Transition{}, false
	}
	now := t.now()
	rec.LastActivityAt = now

	previous := rec.Status
	rec.Status = domain.StatusOnline
	if previous == domain.StatusOnline {
		return Transition{}, false
	}
	return Transition{UserID: userID, Status: domain.StatusOnline, LastSeen: now}, true
}

// SetStatus applies an explicit client override. The activity clock is reset
// so the next idle sweep degrades from now, not from stale history.
func (t *Tracker) SetStatus(userID string, status domain.Status) (Transition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[userID]
	if !ok {
		return Transition{}, false
	}
	now := t.now()
	rec.LastActivityAt = now

	if rec.Status == status {
		return Transition{}, false
	}
	rec.Status = status
	if status == domain.StatusOffline {
		rec.LastSeenAt = now
	}
	return Transition{UserID: userID, Status: status, LastSeen: now}, true
}

// Status answers a presence query. A user without a record is offline;
// presence computation never fails.
func (t *Tracker) Status(userID string) domain.Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[userID]
	if !ok {
		return domain.StatusOffline
	}
	return rec.Status
}

// LastSeen returns the recorded lastSeen stamp for the user, if any.
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[userID]
	if !ok || rec.LastSeenAt.IsZero() {
		return time.Time{}, false
	}
	return rec.LastSeenAt, true
}

// SweepHeartbeats scans the given live users and force-offlines every one
// whose last heartbeat is older than the timeout, regardless of activity
// state. A session object can outlive a dead transport; this sweep is the
// only backstop against phantom "online" users.
//
// Deadlines are compared against the clock here rather than trusting timer
// callbacks, so an event-loop stall cannot mask an expired heartbeat.
func (t *Tracker) SweepHeartbeats(liveUsers []string) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var expired []Transition
	for _, userID := range liveUsers {
		rec, ok := t.records[userID]
		if !ok {
			continue
		}
		if now.Sub(rec.LastHeartbeatAt) <= t.heartbeatTimeout {
			continue
		}
		lastSeen := rec.LastHeartbeatAt
		rec.Status = domain.StatusOffline
		rec.LastSeenAt = lastSeen
		expired = append(expired, Transition{UserID: userID, Status: domain.StatusOffline, LastSeen: lastSeen})
	}
	return expired
}

// SweepIdle recomputes status for the given live users from activity recency
// and returns only the transitions that actually changed something, so no
// redundant broadcasts are emitted.
func (t *Tracker) SweepIdle(liveUsers []string) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var changed []Transition
	for _, userID := range liveUsers {
		rec, ok := t.records[userID]
		if !ok {
			continue
		}
		next := domain.StatusFromActivity(now.Sub(rec.LastActivityAt), t.idleThreshold, t.awayThreshold)
		if next == rec.Status {
			continue
		}
		rec.Status = next
		if next == domain.StatusOffline {
			rec.LastSeenAt = now
		}
		changed = append(changed, Transition{UserID: userID, Status: next, LastSeen: now})
	}
	return changed
}
