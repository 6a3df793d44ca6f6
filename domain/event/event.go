// Package event defines the wire-level events exchanged with clients.
// Every frame in both directions is an Envelope; Name constants identify the
// event, payload structs describe the data field.
package event

import (
	"encoding/json"
	"time"

	"chat-relay/domain"
)

// Inbound event names (client -> server).
const (
	SendMessage      = "send_message"
	EditMessage      = "edit_message"
	DeleteMessage    = "delete_message"
	AddReaction      = "add_reaction"
	RemoveReaction   = "remove_reaction"
	MarkMessagesRead = "mark_messages_read"
	TypingStart      = "typing_start"
	TypingStop       = "typing_stop"
	Heartbeat        = "heartbeat"
	UserActivity     = "user_activity"
	UpdateStatus     = "update_status"
)

// Outbound event names (server -> client).
const (
	AllUsersStatus    = "all_users_status"
	UserStatusChanged = "user_status_changed"
	MessageSent       = "message_sent"
	NewMessage        = "new_message"
	MessageEdited     = "message_edited"
	MessageDeleted    = "message_deleted"
	ReactionAdded     = "reaction_added"
	ReactionRemoved   = "reaction_removed"
	MessageRead       = "message_read"
	UserTyping        = "user_typing"
	UserStoppedTyping = "user_stopped_typing"
	HeartbeatAck      = "heartbeat_ack"
)

// Outbound error events. Each carries an ErrorPayload with a short
// machine-checkable reason; a rejected mutation always answers with one of
// these, never with silence.
const (
	MessageError  = "message_error"
	EditError     = "edit_error"
	DeleteError   = "delete_error"
	ReactionError = "reaction_error"
	ReadError     = "read_error"
	StatusError   = "status_error"
)

// Envelope frames every websocket message. Data stays raw on the inbound
// path so the dispatcher can decode it per event.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// UserSummary is the denormalized identity attached to events for display.
type UserSummary struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// UserStatus is one roster entry, and also the payload of
// user_status_changed broadcasts.
type UserStatus struct {
	UserID   string        `json:"userId"`
	Username string        `json:"username"`
	Avatar   string        `json:"avatar,omitempty"`
	IsOnline bool          `json:"isOnline"`
	Status   domain.Status `json:"status"`
	LastSeen time.Time     `json:"lastSeen"`
}

// ReplySnippet is the reduced reply-target view embedded in a MessageView.
type ReplySnippet struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Sender    UserSummary `json:"sender"`
	IsDeleted bool        `json:"isDeleted"`
	CreatedAt time.Time   `json:"createdAt"`
}

// MessageView is the display form of a message: participants and reply
// targets are resolved to summaries so clients never need a second lookup.
type MessageView struct {
	ID        string               `json:"id"`
	Sender    UserSummary          `json:"sender"`
	Recipient UserSummary          `json:"recipient"`
	Content   string               `json:"content"`
	Type      domain.MessageType   `json:"type"`
	Audio     *domain.AudioInfo    `json:"audio,omitempty"`
	ReplyTo   *ReplySnippet        `json:"replyTo,omitempty"`
	Reactions []domain.Reaction    `json:"reactions"`
	ReadBy    []domain.ReadReceipt `json:"readBy"`
	Edited    domain.EditInfo      `json:"edited"`
	Deleted   domain.DeleteInfo    `json:"deleted"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// MessagePayload carries a message event (message_sent, new_message,
// message_edited) together with its conversation.
type MessagePayload struct {
	Message        MessageView `json:"message"`
	ConversationID string      `json:"conversationId"`
}

type MessageDeletedPayload struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	DeletedAt      time.Time `json:"deletedAt"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Emoji     string `json:"emoji,omitempty"`
}

type MessageReadPayload struct {
	MessageID string    `json:"messageId"`
	ReadBy    string    `json:"readBy"`
	ReadAt    time.Time `json:"readAt"`
}

type TypingPayload struct {
	UserID         string `json:"userId"`
	Username       string `json:"username,omitempty"`
	ConversationID string `json:"conversationId"`
	Timestamp      int64  `json:"timestamp"`
}

type HeartbeatAckPayload struct {
	Timestamp int64 `json:"timestamp"`
}
