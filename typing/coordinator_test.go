package typing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	throttle = 150 * time.Millisecond
	expiry   = 3 * time.Second
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time          { return c.current }
func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestCoordinator() (*Coordinator, *fakeClock) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCoordinator(throttle, expiry)
	c.now = clock.now
	return c, clock
}

func TestCoordinator_First_Start_Notifies(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator()

	req.True(c.Start("alice", "Alice", "conv1", "bob"))
	req.True(c.IsTyping("alice", "conv1"))
}

func TestCoordinator_Start_Within_Throttle_Is_Dropped(t *testing.T) {
	req := require.New(t)
	c, clock := newTestCoordinator()

	req.True(c.Start("alice", "Alice", "conv1", "bob"))
	clock.advance(throttle / 2)
	req.False(c.Start("alice", "Alice", "conv1", "bob"))

	clock.advance(throttle)
	req.True(c.Start("alice", "Alice", "conv1", "bob"))
}

func TestCoordinator_Throttle_Survives_Stop(t *testing.T) {
	req := require.New(t)
	c, clock := newTestCoordinator()

	req.True(c.Start("alice", "Alice", "conv1", "bob"))
	c.Stop("alice", "conv1")

	// A stop does not reset the throttle window
	clock.advance(throttle / 2)
	req.False(c.Start("alice", "Alice", "conv1", "bob"))
}

func TestCoordinator_Stop_When_Not_Typing_Is_NoOp(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator()

	req.False(c.Stop("alice", "conv1"))
}

func TestCoordinator_Conversations_Are_Independent(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator()

	req.True(c.Start("alice", "Alice", "conv1", "bob"))
	req.True(c.Start("alice", "Alice", "conv2", "clara"))

	c.Stop("alice", "conv1")
	req.False(c.IsTyping("alice", "conv1"))
	req.True(c.IsTyping("alice", "conv2"))
}

func TestCoordinator_SweepExpired_Removes_Stale_Indicators(t *testing.T) {
	req := require.New(t)
	c, clock := newTestCoordinator()
	c.Start("alice", "Alice", "conv1", "bob")

	// Not expired yet
	clock.advance(expiry - time.Millisecond)
	req.Empty(c.SweepExpired())

	clock.advance(time.Millisecond)
	expired := c.SweepExpired()
	req.Len(expired, 1)
	req.Equal("alice", expired[0].UserID)
	req.Equal("conv1", expired[0].ConversationID)
	req.Equal("bob", expired[0].RecipientID)
	req.False(c.IsTyping("alice", "conv1"))
}

func TestCoordinator_Refresh_Extends_Deadline(t *testing.T) {
	req := require.New(t)
	c, clock := newTestCoordinator()
	c.Start("alice", "Alice", "conv1", "bob")

	clock.advance(2 * time.Second)
	req.True(c.Start("alice", "Alice", "conv1", "bob"))

	// The original deadline has passed but the refresh moved it
	clock.advance(2 * time.Second)
	req.Empty(c.SweepExpired())
	req.True(c.IsTyping("alice", "conv1"))
}

func TestCoordinator_PurgeUser_Drops_Everything(t *testing.T) {
	req := require.New(t)
	c, clock := newTestCoordinator()
	c.Start("alice", "Alice", "conv1", "bob")
	c.Start("alice", "Alice", "conv2", "clara")
	c.Start("bob", "Bob", "conv1", "alice")

	purged := c.PurgeUser("alice")

	req.Equal(2, purged)
	req.False(c.IsTyping("alice", "conv1"))
	req.True(c.IsTyping("bob", "conv1"))

	// Throttle history went with the purge: an immediate re-start notifies
	clock.advance(time.Millisecond)
	req.True(c.Start("alice", "Alice", "conv1", "bob"))
}
