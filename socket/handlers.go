package socket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/realtime"
	"chat-relay/repositories"
	"chat-relay/services"
)

type sendMessagePayload struct {
	RecipientID string            `json:"recipientId" validate:"required"`
	Content     string            `json:"content"`
	Type        string            `json:"type"`
	ReplyTo     string            `json:"replyTo"`
	Audio       *domain.AudioInfo `json:"audio"`
}

type editMessagePayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	Content   string `json:"content" validate:"required"`
}

type messageIDPayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
}

type addReactionPayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	Emoji     string `json:"emoji" validate:"required"`
}

type markReadPayload struct {
	MessageIDs     []string `json:"messageIds"`
	RecipientID    string   `json:"recipientId"`
	ConversationID string   `json:"conversationId"`
}

type typingPayload struct {
	RecipientID    string `json:"recipientId" validate:"required"`
	ConversationID string `json:"conversationId" validate:"required"`
}

type updateStatusPayload struct {
	Status string `json:"status" validate:"required"`
}

// dispatch routes one inbound envelope to its handler. A handler failure
// answers the originating session with the matching error event; it never
// terminates the connection.
func (c *Controller) dispatch(session *realtime.Session, user repositories.User, env event.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Handler panicked", "event", env.Event, "user", user.ID, "panic", r)
		}
	}()

	switch env.Event {
	case event.SendMessage:
		c.handleSendMessage(session, user, env.Data)
	case event.EditMessage:
		c.handleEditMessage(session, user, env.Data)
	case event.DeleteMessage:
		c.handleDeleteMessage(session, user, env.Data)
	case event.AddReaction:
		c.handleAddReaction(session, user, env.Data)
	case event.RemoveReaction:
		c.handleRemoveReaction(session, user, env.Data)
	case event.MarkMessagesRead:
		c.handleMarkRead(session, user, env.Data)
	case event.TypingStart:
		c.handleTypingStart(user, env.Data)
	case event.TypingStop:
		c.handleTypingStop(user, env.Data)
	case event.Heartbeat:
		c.handleHeartbeat(session, user)
	case event.UserActivity:
		c.handleActivity(user)
	case event.UpdateStatus:
		c.handleUpdateStatus(session, user, env.Data)
	default:
		c.log.Debug("Unknown event", "event", env.Event, "user", user.ID)
	}
}

func (c *Controller) decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.ErrInvalidPayload
	}
	if err := c.validate.Struct(v); err != nil {
		return errors.ErrInvalidPayload
	}
	return nil
}

// fail answers the originating session with an error event. Push failures
// here are terminal for the connection anyway, so they are only logged.
func (c *Controller) fail(session *realtime.Session, errorEvent string, err error) {
	if pushErr := session.Sink.Push(errorEvent, event.ErrorPayload{Error: err.Error()}); pushErr != nil {
		c.log.Debug("Error push failed", "event", errorEvent, "err", pushErr)
	}
}

func (c *Controller) handleSendMessage(session *realtime.Session, user repositories.User, data json.RawMessage) {
	var p sendMessagePayload
	if err := c.decode(data, &p); err != nil {
		c.fail(session, event.MessageError, err)
		return
	}
	input := services.SendMessageInput{
		RecipientID: p.RecipientID,
		Content:     p.Content,
		Type:        domain.MessageType(p.Type),
		Audio:       p.Audio,
	}
	if p.ReplyTo != "" {
		replyTo, err := uuid.Parse(p.ReplyTo)
		if err != nil {
			c.fail(session, event.MessageError, errors.ErrInvalidPayload)
			return
		}
		input.ReplyTo = &replyTo
	}

	sent, err := c.chat.SendMessage(user.ID, input)
	if err != nil {
		c.fail(session, event.MessageError, err)
		return
	}
	payload := event.MessagePayload{Message: sent.View, ConversationID: sent.ConversationID}
	// The sender's own session gets the ack; every sender device and the
	// recipient learn about the message through the router.
	if err := session.Sink.Push(event.MessageSent, payload); err != nil {
		c.log.Debug("Send ack push failed", "user", user.ID, "err", err)
	}
	c.router.Deliver(event.NewMessage, sent.RecipientID, payload)
}

func (c *Controller) handleEditMessage(session *realtime.Session, user repositories.User, data json.RawMessage) {
	var p editMessagePayload
	if err := c.decode(data, &p); err != nil {
		c.fail(session, event.EditError, err)
		return
	}
	edited, err := c.chat.EditMessage(user.ID, uuid.MustParse(p.MessageID), p.Content)
	if err != nil {
		c.fail(session, event.EditError, err)
		return
	}
	payload := event.MessagePayload{Message: edited.View, ConversationID: edited.ConversationID}
	c.router.Deliver(event.MessageEdited, user.ID, payload)
	c.router.Deliver(event.MessageEdited, edited.OtherPartyID, payload)
}

func (c *Controller) handleDeleteMessage(session *realtime.Session, user repositories.User, data json.RawMessage) {
	var p messageIDPayload
	if err := c.decode(data, &p); err != nil {
		c.fail(session, event.DeleteError, err)
		return
	}
	deleted, err := c.chat.SoftDeleteMessage(user.ID, uuid.MustParse(p.MessageID))
	if err != nil {
		c.fail(session, event.DeleteError, err)
		return
	}
	payload := event.MessageDeletedPayload{
		MessageID:      deleted.MessageID.String(),
		ConversationID: deleted.ConversationID,
		DeletedAt:      deleted.DeletedAt,
	}
	c.router.Deliver(event.MessageDeleted, user.ID, payload)
	c.router.Deliver(event.MessageDeleted, deleted.OtherPartyID, payload)
}

func (c *Controller) handleAddReaction(session *realtime.Session, user repositories.User, data json.RawMessage) {
	var p addReactionPayload
	if err := c.decode(data, &p); err != nil {
		c.fail(session, event.ReactionError, err)
		return
	}
	res, err := c.chat.AddReaction(user.ID, uuid.MustParse(p.MessageID), p.Emoji)
	if err != nil {
		c.fail(session, event.ReactionError, err)
		return
	}
	payload := event.ReactionPayload{
		MessageID: res.MessageID.String(),
		UserID:    user.ID,
		Username:  user.Username,
		Emoji:     p.Emoji,
	}
	c.router.Deliver(event.ReactionAdded, user.ID, payload)
	c.router.Deliver(event.ReactionAdded, res.OtherPartyID, payload)
}

func (c *Controller) handleRemoveReaction(session *realtime.Session, user repositories.User, data json.RawMessage) {
	var p messageIDPayload
	if err := c.decode(data, &p); err != nil {
		c.fail(session, event.ReactionError, err)
		return
	}
	res, err := c.chat.RemoveReaction(user.ID, uuid.MustParse(p.MessageID))
	if err != nil {
		c.fail(session, event.ReactionError, err)
		return
	}
	payload := event.ReactionPayload{
		MessageID: res.MessageID.String(),
		UserID:    user.ID,
		Username:  user.Username,
	}
	c.router.Deliver(event.ReactionRemoved, user.ID, payload)
	c.router.Deliver(event.ReactionRemoved, res.OtherPartyID, payload)
}

// handleMarkRead supports two client shapes: an explicit id list, or a peer
// id (sent as recipientId or conversationId) meaning "everything from them".
func (c *Controller) handleMarkRead(session *realtime.Session, user repositories.User, data json.RawMessage) {
	var p markReadPayload
	if err := c.decode(data, &p); err != nil {
		c.fail(session, event.ReadError, err)
		return
	}

	var notes []services.ReadNote
	if len(p.MessageIDs) > 0 {
		ids := make([]uuid.UUID, 0, len(p.MessageIDs))
		for _, raw := range p.MessageIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.fail(session, event.ReadError, errors.ErrInvalidPayload)
				return
			}
			ids = append(ids, id)
		}
		notes = c.chat.MarkRead(user.ID, ids)
	} else {
		senderID := p.RecipientID
		if senderID == "" {
			senderID = p.ConversationID
		}
		if senderID == "" {
			c.fail(session, event.ReadError, errors.ErrInvalidPayload)
			return
		}
		notes = c.chat.MarkReadFromSender(user.ID, senderID)
	}

	for _, note := range notes {
		c.router.Deliver(event.MessageRead, note.SenderID, event.MessageReadPayload{
			MessageID: note.MessageID.String(),
			ReadBy:    user.ID,
			ReadAt:    note.ReadAt,
		})
	}
}

// Typing events carry no error channel; a malformed payload is logged and
// dropped so a buggy client cannot spam error frames at itself.
func (c *Controller) handleTypingStart(user repositories.User, data json.RawMessage) {
	var p typingPayload
	if err := c.decode(data, &p); err != nil {
		c.log.Debug("Invalid typing_start payload", "user", user.ID)
		return
	}
	if !c.typing.Start(user.ID, user.Username, p.ConversationID, p.RecipientID) {
		return
	}
	c.router.Deliver(event.UserTyping, p.RecipientID, event.TypingPayload{
		UserID:         user.ID,
		Username:       user.Username,
		ConversationID: p.ConversationID,
		Timestamp:      time.Now().UnixMilli(),
	})
}

func (c *Controller) handleTypingStop(user repositories.User, data json.RawMessage) {
	var p typingPayload
	if err := c.decode(data, &p); err != nil {
		c.log.Debug("Invalid typing_stop payload", "user", user.ID)
		return
	}
	c.typing.Stop(user.ID, p.ConversationID)
	c.router.Deliver(event.UserStoppedTyping, p.RecipientID, event.TypingPayload{
		UserID:         user.ID,
		ConversationID: p.ConversationID,
		Timestamp:      time.Now().UnixMilli(),
	})
}

func (c *Controller) handleHeartbeat(session *realtime.Session, user repositories.User) {
	c.tracker.Heartbeat(user.ID)
	if err := session.Sink.Push(event.HeartbeatAck, event.HeartbeatAckPayload{Timestamp: time.Now().UnixMilli()}); err != nil {
		c.log.Debug("Heartbeat ack push failed", "user", user.ID, "err", err)
	}
}

func (c *Controller) handleActivity(user repositories.User) {
	transition, changed := c.tracker.Activity(user.ID)
	if !changed {
		return
	}
	c.router.Broadcast(event.UserStatusChanged,
		services.StatusPayload(user, transition.Status, transition), user.ID)
}

func (c *Controller) handleUpdateStatus(session *realtime.Session, user repositories.User, data json.RawMessage) {
	var p updateStatusPayload
	if err := c.decode(data, &p); err != nil {
		c.fail(session, event.StatusError, err)
		return
	}
	status := domain.Status(p.Status)
	if !status.Valid() {
		c.fail(session, event.StatusError, errors.ErrInvalidStatus)
		return
	}
	transition, changed := c.tracker.SetStatus(user.ID, status)
	if !changed {
		return
	}
	c.router.Broadcast(event.UserStatusChanged,
		services.StatusPayload(user, transition.Status, transition), user.ID)
}
