// Package domain contains core concepts of the messaging core.
// This file defines the Message entity and its mutation rules.
// Policy checks (who may edit, time windows) live in the service layer;
// the domain only guarantees structural invariants.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxContentLength is the hard cap on message content, in characters.
const MaxContentLength = 1000

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeAudio MessageType = "audio"
	TypeEmoji MessageType = "emoji"
)

// Valid reports whether t is one of the supported message types.
// The historical image/file types are decommissioned and never accepted.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeAudio, TypeEmoji:
		return true
	}
	return false
}

// AudioInfo is reference metadata returned by the external asset host.
// The binary itself is never stored here.
type AudioInfo struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
	Size     int64   `json:"size"`
}

type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

type EditInfo struct {
	IsEdited        bool       `json:"isEdited"`
	EditedAt        *time.Time `json:"editedAt,omitempty"`
	OriginalContent string     `json:"originalContent,omitempty"`
}

type DeleteInfo struct {
	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty"`
}

// Message is a durable direct message between two users.
// It is soft-deleted only, never removed.
type Message struct {
	ID        uuid.UUID     `json:"id"`
	Sender    string        `json:"sender"`
	Recipient string        `json:"recipient"`
	Content   string        `json:"content"`
	Type      MessageType   `json:"type"`
	Audio     *AudioInfo    `json:"audio,omitempty"`
	ReplyTo   *uuid.UUID    `json:"replyTo,omitempty"`
	Reactions []Reaction    `json:"reactions"`
	ReadBy    []ReadReceipt `json:"readBy"`
	Edited    EditInfo      `json:"edited"`
	Deleted   DeleteInfo    `json:"deleted"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// IsReadBy reports whether userID already has a read receipt on the message.
func (m *Message) IsReadBy(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// MarkReadBy appends a read receipt for userID. It is idempotent: at most one
// receipt per user. Returns true only on the unread to read transition.
func (m *Message) MarkReadBy(userID string, at time.Time) bool {
	if m.IsReadBy(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: userID, ReadAt: at})
	m.UpdatedAt = at
	return true
}

// SetReaction records a reaction with last-write-wins semantics per user:
// a prior reaction from the same user is replaced, never duplicated.
func (m *Message) SetReaction(userID, emoji string, at time.Time) {
	m.clearReaction(userID)
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji, CreatedAt: at})
	m.UpdatedAt = at
}

// ClearReaction removes the user's reaction if one exists.
func (m *Message) ClearReaction(userID string, at time.Time) bool {
	if !m.clearReaction(userID) {
		return false
	}
	m.UpdatedAt = at
	return true
}

func (m *Message) clearReaction(userID string) bool {
	for i, r := range m.Reactions {
		if r.UserID == userID {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return true
		}
	}
	return false
}

// ApplyEdit replaces the content and stamps the edit metadata.
// The pre-edit content is preserved once, on the first edit only.
func (m *Message) ApplyEdit(newContent string, at time.Time) {
	if !m.Edited.IsEdited {
		m.Edited.OriginalContent = m.Content
	}
	m.Content = newContent
	m.Edited.IsEdited = true
	m.Edited.EditedAt = &at
	m.UpdatedAt = at
}

// SoftDelete marks the message deleted. Soft delete is terminal.
func (m *Message) SoftDelete(deletedBy string, at time.Time) {
	m.Deleted.IsDeleted = true
	m.Deleted.DeletedAt = &at
	m.Deleted.DeletedBy = deletedBy
	m.UpdatedAt = at
}
