// Package typing holds the ephemeral, self-expiring typing indicators.
// State is per (conversation, user) pair and lives entirely in memory.
package typing

import (
	"sync"
	"time"
)

type key struct {
	conversationID string
	userID         string
}

// state is one live typing indicator. Expiry is a deadline checked by the
// sweep, not a timer handle: a new typing_start replaces the entry and its
// deadline under the same mutex the sweep holds, so a refresh and a removal
// never interleave.
type state struct {
	recipientID string
	username    string
	startedAt   time.Time
	deadline    time.Time
}

// Expired describes an indicator the sweep removed; the caller owes the
// recipient a synthetic typing_stop.
type Expired struct {
	UserID         string
	ConversationID string
	RecipientID    string
}

// Coordinator throttles upstream typing_start spam and bounds downstream
// staleness with an expiry deadline. The two constants differ on purpose:
// the throttle caps event rate from chatty clients, the expiry caps how long
// a lost stop event can leave a stale indicator. The expiry must exceed the
// client's own re-send interval or a continuously typing user would flicker.
type Coordinator struct {
	mu         sync.Mutex
	states     map[key]*state
	lastSignal map[key]time.Time

	throttle time.Duration
	expiry   time.Duration

	now func() time.Time
}

func NewCoordinator(throttle, expiry time.Duration) *Coordinator {
	return &Coordinator{
		states:     make(map[key]*state),
		lastSignal: make(map[key]time.Time),
		throttle:   throttle,
		expiry:     expiry,
		now:        time.Now,
	}
}

// Start registers (or refreshes) a typing indicator. It reports whether the
// recipient should be notified: a start within the throttle window of the
// previous one is dropped entirely, including its deadline refresh, which
// mirrors how fast keystroke streams are expected to behave.
// Starting while already typing is a refresh, never an error.
func (c *Coordinator) Start(userID, username, conversationID, recipientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{conversationID: conversationID, userID: userID}
	now := c.now()

	if last, ok := c.lastSignal[k]; ok && now.Sub(last) < c.throttle {
		return false
	}
	c.lastSignal[k] = now

	c.states[k] = &state{
		recipientID: recipientID,
		username:    username,
		startedAt:   now,
		deadline:    now.Add(c.expiry),
	}
	return true
}

// Stop removes the indicator. Stopping when not typing is a no-op; the
// caller may still forward the stop to the recipient either way.
func (c *Coordinator) Stop(userID, conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{conversationID: conversationID, userID: userID}
	if _, ok := c.states[k]; !ok {
		return false
	}
	delete(c.states, k)
	return true
}

// IsTyping reports whether an indicator currently exists for the pair.
func (c *Coordinator) IsTyping(userID, conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.states[key{conversationID: conversationID, userID: userID}]
	return ok
}

// SweepExpired removes every indicator whose deadline has passed and returns
// them so synthetic stops can be emitted. The whole scan-and-delete runs
// under the mutex, so a concurrent refresh either lands before the scan and
// keeps its entry, or after it with a fresh one.
func (c *Coordinator) SweepExpired() []Expired {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expired []Expired
	for k, s := range c.states {
		if now.Before(s.deadline) {
			continue
		}
		delete(c.states, k)
		expired = append(expired, Expired{
			UserID:         k.userID,
			ConversationID: k.conversationID,
			RecipientID:    s.recipientID,
		})
	}
	return expired
}

// PurgeUser drops all of the user's indicators and throttle history on full
// disconnect. No stop events are emitted for the purged entries; recipients
// time the indicator out client-side.
func (c *Coordinator) PurgeUser(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	purged := 0
	for k := range c.states {
		if k.userID == userID {
			delete(c.states, k)
			purged++
		}
	}
	for k := range c.lastSignal {
		if k.userID == userID {
			delete(c.lastSignal, k)
		}
	}
	return purged
}

// Active returns the number of live indicators, for telemetry.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}
