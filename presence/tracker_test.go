package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
)

const (
	idleThreshold    = 5 * time.Minute
	awayThreshold    = 15 * time.Minute
	heartbeatTimeout = 60 * time.Second
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time          { return c.current }
func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewTracker(idleThreshold, awayThreshold, heartbeatTimeout)
	tracker.now = clock.now
	return tracker, clock
}

func TestTracker_Connected_Sets_Online(t *testing.T) {
	req := require.New(t)
	tracker, _ := newTestTracker()

	tr := tracker.Connected("alice")

	req.Equal(domain.StatusOnline, tr.Status)
	req.Equal(domain.StatusOnline, tracker.Status("alice"))
}

func TestTracker_Unknown_User_Is_Offline(t *testing.T) {
	req := require.New(t)
	tracker, _ := newTestTracker()

	req.Equal(domain.StatusOffline, tracker.Status("ghost"))
}

func TestTracker_Disconnected_Stamps_LastSeen(t *testing.T) {
	req := require.New(t)
	tracker, clock := newTestTracker()
	tracker.Connected("alice")
	clock.advance(2 * time.Minute)

	tr := tracker.Disconnected("alice")

	req.Equal(domain.StatusOffline, tr.Status)
	req.Equal(clock.current, tr.LastSeen)
	seen, ok := tracker.LastSeen("alice")
	req.True(ok)
	req.Equal(clock.current, seen)
}

func TestTracker_Activity_Promotes_Away_User(t *testing.T) {
	req := require.New(t)
	tracker, clock := newTestTracker()
	tracker.Connected("alice")

	// Given an away user
	clock.advance(idleThreshold + time.Minute)
	changed := tracker.SweepIdle([]string{"alice"})
	req.Len(changed, 1)
	req.Equal(domain.StatusAway, changed[0].Status)

	// When activity arrives, status flips back immediately
	tr, didChange := tracker.Activity("alice")
	req.True(didChange)
	req.Equal(domain.StatusOnline, tr.Status)
}

func TestTracker_Activity_Without_Change_Is_Silent(t *testing.T) {
	req := require.New(t)
	tracker, _ := newTestTracker()
	tracker.Connected("alice")

	_, changed := tracker.Activity("alice")

	req.False(changed)
}

func TestTracker_SetStatus_Same_Status_Not_Reported(t *testing.T) {
	req := require.New(t)
	tracker, _ := newTestTracker()
	tracker.Connected("alice")

	_, changed := tracker.SetStatus("alice", domain.StatusOnline)
	req.False(changed)

	tr, changed := tracker.SetStatus("alice", domain.StatusAway)
	req.True(changed)
	req.Equal(domain.StatusAway, tr.Status)
}

func TestTracker_SweepHeartbeats_Forces_Offline(t *testing.T) {
	req := require.New(t)
	tracker, clock := newTestTracker()
	tracker.Connected("alice")
	tracker.Connected("bob")
	lastBeat := clock.current

	// Given bob kept his heartbeat fresh and alice went silent
	clock.advance(heartbeatTimeout + time.Second)
	tracker.Heartbeat("bob")
	clock.advance(time.Second)

	expired := tracker.SweepHeartbeats([]string{"alice", "bob"})

	req.Len(expired, 1)
	req.Equal("alice", expired[0].UserID)
	req.Equal(domain.StatusOffline, expired[0].Status)
	// lastSeen points at the last heartbeat, not at sweep time
	req.Equal(lastBeat, expired[0].LastSeen)
	req.Equal(domain.StatusOnline, tracker.Status("bob"))
}

func TestTracker_SweepIdle_Degrades_Stepwise(t *testing.T) {
	req := require.New(t)
	tracker, clock := newTestTracker()
	tracker.Connected("alice")

	clock.advance(idleThreshold + time.Second)
	changed := tracker.SweepIdle([]string{"alice"})
	req.Len(changed, 1)
	req.Equal(domain.StatusAway, changed[0].Status)

	// A second sweep without further silence reports nothing
	changed = tracker.SweepIdle([]string{"alice"})
	req.Empty(changed)

	clock.advance(awayThreshold)
	changed = tracker.SweepIdle([]string{"alice"})
	req.Len(changed, 1)
	req.Equal(domain.StatusOffline, changed[0].Status)
}

func TestTracker_Heartbeat_Does_Not_Change_Status(t *testing.T) {
	req := require.New(t)
	tracker, clock := newTestTracker()
	tracker.Connected("alice")

	clock.advance(idleThreshold + time.Second)
	tracker.SweepIdle([]string{"alice"})
	req.Equal(domain.StatusAway, tracker.Status("alice"))

	// Heartbeat proves the transport, not the human
	tracker.Heartbeat("alice")
	req.Equal(domain.StatusAway, tracker.Status("alice"))
}
