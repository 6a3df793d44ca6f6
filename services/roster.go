package services

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/presence"
	"chat-relay/repositories"
)

// RosterService assembles the presence view of the user population: stored
// identities overlaid with live tracker state. Live state wins over the
// persisted lastSeen, which may lag a process restart.
type RosterService struct {
	users   repositories.IUserRepository
	tracker *presence.Tracker
	limit   int
}

func NewRosterService(users repositories.IUserRepository, tracker *presence.Tracker, limit int) *RosterService {
	return &RosterService{users: users, tracker: tracker, limit: limit}
}

// Snapshot builds the all_users_status payload sent to a freshly connected
// session: every known user except the connecting one, with current status.
func (s *RosterService) Snapshot(excludeID string) ([]event.UserStatus, error) {
	users, err := s.users.List(excludeID, s.limit)
	if err != nil {
		return nil, err
	}
	roster := make([]event.UserStatus, 0, len(users))
	for _, u := range users {
		status := s.tracker.Status(u.ID)
		lastSeen := u.LastSeen
		if seen, ok := s.tracker.LastSeen(u.ID); ok {
			lastSeen = seen
		}
		roster = append(roster, event.UserStatus{
			UserID:   u.ID,
			Username: u.Username,
			Avatar:   u.Avatar,
			IsOnline: status.IsOnline(),
			Status:   status,
			LastSeen: lastSeen,
		})
	}
	return roster, nil
}

// StatusPayload builds the user_status_changed broadcast body for a
// presence transition.
func StatusPayload(u repositories.User, status domain.Status, tr presence.Transition) event.UserStatus {
	return event.UserStatus{
		UserID:   u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
		IsOnline: status.IsOnline(),
		Status:   status,
		LastSeen: tr.LastSeen,
	}
}
