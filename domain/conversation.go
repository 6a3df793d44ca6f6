package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation is the durable aggregate for a direct exchange between exactly
// two users. There is exactly one conversation per unordered participant pair;
// uniqueness is enforced by the storage key derived from PairKey.
type Conversation struct {
	ID             uuid.UUID      `json:"id"`
	Participants   [2]string      `json:"participants"`
	LastMessageID  *uuid.UUID     `json:"lastMessageId,omitempty"`
	LastActivityAt time.Time      `json:"lastActivityAt"`
	Unread         map[string]int `json:"unread"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// PairKey returns the canonical key for an unordered participant pair.
// PairKey(a, b) == PairKey(b, a), which is what makes find-or-create
// race-free when the key doubles as the storage identity.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

// NewConversation creates the aggregate for a participant pair, in canonical
// order, with zeroed unread counters for both sides.
func NewConversation(a, b string, at time.Time) Conversation {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return Conversation{
		ID:             uuid.New(),
		Participants:   [2]string{a, b},
		LastActivityAt: at,
		Unread:         map[string]int{a: 0, b: 0},
		CreatedAt:      at,
	}
}

// Includes reports whether userID is one of the two participants.
func (c *Conversation) Includes(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// ApplyMessage records a new message: activity moves forward and the
// recipient's unread counter is incremented in the same mutation, so the
// counter can never drift from the activity stamp.
func (c *Conversation) ApplyMessage(messageID uuid.UUID, recipientID string, at time.Time) {
	c.LastMessageID = &messageID
	c.LastActivityAt = at
	if c.Unread == nil {
		c.Unread = make(map[string]int)
	}
	c.Unread[recipientID]++
}

// ResetUnread clears the reader's unread counter.
func (c *Conversation) ResetUnread(readerID string) {
	if c.Unread == nil {
		return
	}
	c.Unread[readerID] = 0
}
