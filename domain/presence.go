package domain

import "time"

// Status is the coarse connectivity state of a user as seen by peers.
// Degradation is monotonic (online -> away -> offline) and driven by elapsed
// time; upgrades happen only on explicit activity or a fresh heartbeat.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// IsOnline is the two-valued view some clients still expect alongside the
// three-valued status.
func (s Status) IsOnline() bool {
	return s != StatusOffline
}

// StatusFromActivity derives a status from the time elapsed since the user's
// last activity. The thresholds are exclusive on the lower bound: exactly
// idleThreshold of silence is still online.
func StatusFromActivity(elapsed, idleThreshold, awayThreshold time.Duration) Status {
	switch {
	case elapsed > awayThreshold:
		return StatusOffline
	case elapsed > idleThreshold:
		return StatusAway
	default:
		return StatusOnline
	}
}

// PresenceRecord is the in-memory presence state for one user. A record is
// created on first connect and kept for the process lifetime so "last seen"
// stays answerable after the user goes offline.
type PresenceRecord struct {
	Status          Status
	LastHeartbeatAt time.Time
	LastActivityAt  time.Time
	LastSeenAt      time.Time
}
