package services

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
)

// ChatService owns every durable message mutation: send, edit, soft-delete,
// reactions and read receipts, plus the paginated conversation queries.
// It enforces the messaging policy; the socket layer only translates events.
type ChatService struct {
	log           *slog.Logger
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository

	maxContentLength int
	editWindow       time.Duration
	now              func() time.Time
}

func NewChatService(
	log *slog.Logger,
	users repositories.IUserRepository,
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	maxContentLength int,
	editWindow time.Duration,
) *ChatService {
	return &ChatService{
		log:              log,
		users:            users,
		conversations:    conversations,
		messages:         messages,
		maxContentLength: maxContentLength,
		editWindow:       editWindow,
		now:              time.Now,
	}
}

type SendMessageInput struct {
	RecipientID string
	Content     string
	Type        domain.MessageType
	ReplyTo     *uuid.UUID
	Audio       *domain.AudioInfo
}

// SentMessage is the outcome of a successful send: the display view for both
// parties and the routing information the delivery layer needs.
type SentMessage struct {
	View           event.MessageView
	ConversationID string
	RecipientID    string
}

// SendMessage validates the recipient and content, persists the message and
// advances the conversation aggregate. Fan-out to live sessions is the
// caller's concern; by the time this returns, the message is durable.
func (s *ChatService) SendMessage(senderID string, in SendMessageInput) (SentMessage, error) {
	sender, err := s.users.Get(senderID)
	if err != nil {
		return SentMessage{}, err
	}
	recipient, err := s.users.Get(in.RecipientID)
	if err != nil {
		if err == errors.ErrUserNotFound {
			return SentMessage{}, errors.ErrRecipientNotFound
		}
		return SentMessage{}, err
	}
	if sender.HasBlocked(recipient.ID) || recipient.HasBlocked(sender.ID) {
		return SentMessage{}, errors.ErrBlocked
	}

	msgType := in.Type
	if msgType == "" {
		msgType = domain.TypeText
	}
	if !msgType.Valid() {
		return SentMessage{}, errors.ErrUnsupportedType
	}

	content := strings.TrimSpace(in.Content)
	if len([]rune(content)) > s.maxContentLength {
		return SentMessage{}, errors.ErrContentTooLong
	}
	if msgType == domain.TypeAudio {
		if in.Audio == nil || in.Audio.URL == "" {
			return SentMessage{}, errors.ErrAudioPayloadNeeded
		}
	} else if content == "" {
		return SentMessage{}, errors.ErrContentRequired
	}

	conv, err := s.conversations.FindOrCreateDirect(sender.ID, recipient.ID)
	if err != nil {
		return SentMessage{}, err
	}

	now := s.now()
	m := domain.Message{
		ID:        uuid.New(),
		Sender:    sender.ID,
		Recipient: recipient.ID,
		Content:   content,
		Type:      msgType,
		Audio:     in.Audio,
		ReplyTo:   in.ReplyTo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Store(m); err != nil {
		return SentMessage{}, err
	}
	if _, err := s.conversations.ApplyMessage(sender.ID, recipient.ID, m.ID, recipient.ID, now); err != nil {
		return SentMessage{}, err
	}

	return SentMessage{
		View:           s.view(m, s.cacheOf(sender, recipient)),
		ConversationID: conv.ID.String(),
		RecipientID:    recipient.ID,
	}, nil
}

// EditedMessage carries the post-edit view and the other party to notify.
type EditedMessage struct {
	View           event.MessageView
	ConversationID string
	OtherPartyID   string
}

// EditMessage applies the edit policy in its fixed order: sender-only,
// text-only, not-deleted, inside the edit window, content actually differs.
// The first violated constraint is the error the client sees.
func (s *ChatService) EditMessage(editorID string, messageID uuid.UUID, newContent string) (EditedMessage, error) {
	content := strings.TrimSpace(newContent)
	if content == "" {
		return EditedMessage{}, errors.ErrContentRequired
	}
	if len([]rune(content)) > s.maxContentLength {
		return EditedMessage{}, errors.ErrContentTooLong
	}

	now := s.now()
	m, err := s.messages.Mutate(messageID, func(m *domain.Message) error {
		if m.Sender != editorID {
			return errors.ErrEditNotSender
		}
		if m.Type != domain.TypeText {
			return errors.ErrEditNotText
		}
		if m.Deleted.IsDeleted {
			return errors.ErrEditDeleted
		}
		if now.Sub(m.CreatedAt) > s.editWindow {
			return errors.ErrEditWindowExpired
		}
		if m.Content == content {
			return errors.ErrEditUnchanged
		}
		m.ApplyEdit(content, now)
		return nil
	})
	if err != nil {
		return EditedMessage{}, err
	}

	conv, err := s.conversations.Get(m.Sender, m.Recipient)
	if err != nil {
		return EditedMessage{}, err
	}
	return EditedMessage{
		View:           s.view(m, s.loadParties(m)),
		ConversationID: conv.ID.String(),
		OtherPartyID:   s.otherParty(m, editorID),
	}, nil
}

// DeletedMessage reports a completed soft-delete.
type DeletedMessage struct {
	MessageID      uuid.UUID
	ConversationID string
	DeletedAt      time.Time
	OtherPartyID   string
}

// SoftDeleteMessage marks the message deleted. Deletion is terminal; a
// second delete answers AlreadyDeleted instead of silently succeeding.
func (s *ChatService) SoftDeleteMessage(requesterID string, messageID uuid.UUID) (DeletedMessage, error) {
	now := s.now()
	m, err := s.messages.Mutate(messageID, func(m *domain.Message) error {
		if m.Sender != requesterID {
			return errors.ErrDeleteNotSender
		}
		if m.Deleted.IsDeleted {
			return errors.ErrAlreadyDeleted
		}
		m.SoftDelete(requesterID, now)
		return nil
	})
	if err != nil {
		return DeletedMessage{}, err
	}

	conv, err := s.conversations.Get(m.Sender, m.Recipient)
	if err != nil {
		return DeletedMessage{}, err
	}
	return DeletedMessage{
		MessageID:      m.ID,
		ConversationID: conv.ID.String(),
		DeletedAt:      *m.Deleted.DeletedAt,
		OtherPartyID:   s.otherParty(m, requesterID),
	}, nil
}

// ReactionResult reports a reaction change and who else should hear about it.
type ReactionResult struct {
	MessageID    uuid.UUID
	OtherPartyID string
}

// AddReaction sets the user's reaction with replace-by-user semantics. Only
// the two conversation parties may react, and never on a deleted message.
func (s *ChatService) AddReaction(userID string, messageID uuid.UUID, emoji string) (ReactionResult, error) {
	now := s.now()
	m, err := s.messages.Mutate(messageID, func(m *domain.Message) error {
		if m.Sender != userID && m.Recipient != userID {
			return errors.ErrReactionForbidden
		}
		if m.Deleted.IsDeleted {
			return errors.ErrReactToDeleted
		}
		m.SetReaction(userID, emoji, now)
		return nil
	})
	if err != nil {
		return ReactionResult{}, err
	}
	return ReactionResult{MessageID: m.ID, OtherPartyID: s.otherParty(m, userID)}, nil
}

// RemoveReaction clears the user's reaction, if any.
func (s *ChatService) RemoveReaction(userID string, messageID uuid.UUID) (ReactionResult, error) {
	now := s.now()
	m, err := s.messages.Mutate(messageID, func(m *domain.Message) error {
		if m.Sender != userID && m.Recipient != userID {
			return errors.ErrReactionForbidden
		}
		if !m.ClearReaction(userID, now) {
			return errors.ErrReactionNotPresent
		}
		return nil
	})
	if err != nil {
		return ReactionResult{}, err
	}
	return ReactionResult{MessageID: m.ID, OtherPartyID: s.otherParty(m, userID)}, nil
}

// ReadNote is one read receipt to forward to the message's sender.
type ReadNote struct {
	MessageID uuid.UUID
	SenderID  string
	ReadAt    time.Time
}

// MarkRead marks the given messages read for readerID. Only messages
// actually addressed to the reader qualify; marking is idempotent and a note
// is produced at most once per unread-to-read transition. Per-message
// failures are logged and skipped so one bad id cannot starve the rest.
func (s *ChatService) MarkRead(readerID string, messageIDs []uuid.UUID) []ReadNote {
	now := s.now()
	var notes []ReadNote
	senders := make(map[string]struct{})
	for _, id := range messageIDs {
		m, transitioned, err := s.messages.MarkRead(id, readerID, now)
		if err != nil {
			s.log.Warn("Mark read failed", "message", id, "reader", readerID, "err", err)
			continue
		}
		if !transitioned {
			continue
		}
		notes = append(notes, ReadNote{MessageID: m.ID, SenderID: m.Sender, ReadAt: now})
		senders[m.Sender] = struct{}{}
	}
	for senderID := range senders {
		if err := s.conversations.ResetUnread(senderID, readerID, readerID); err != nil {
			s.log.Warn("Unread reset failed", "reader", readerID, "sender", senderID, "err", err)
		}
	}
	return notes
}

// MarkReadFromSender marks every unread message from senderID to readerID.
func (s *ChatService) MarkReadFromSender(readerID, senderID string) []ReadNote {
	ids, err := s.messages.UnreadFrom(senderID, readerID)
	if err != nil {
		s.log.Warn("Unread lookup failed", "reader", readerID, "sender", senderID, "err", err)
		return nil
	}
	return s.MarkRead(readerID, ids)
}

// GetConversation returns one page of the exchange between userID and
// peerID, newest first, with participants and reply targets denormalized.
// Soft-deleted messages are included so clients can render placeholders.
func (s *ChatService) GetConversation(userID, peerID string, page, limit int) ([]event.MessageView, error) {
	msgs, err := s.messages.ListBetween(userID, peerID, page, limit)
	if err != nil {
		return nil, err
	}
	cache := make(map[string]repositories.User)
	views := make([]event.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, s.view(m, cache))
	}
	return views, nil
}

// UnreadCount answers how many messages addressed to userID are still
// unread and not deleted.
func (s *ChatService) UnreadCount(userID string) (int, error) {
	return s.messages.UnreadCount(userID)
}

func (s *ChatService) otherParty(m domain.Message, userID string) string {
	if m.Sender == userID {
		return m.Recipient
	}
	return m.Sender
}

func (s *ChatService) cacheOf(users ...repositories.User) map[string]repositories.User {
	cache := make(map[string]repositories.User, len(users))
	for _, u := range users {
		cache[u.ID] = u
	}
	return cache
}

func (s *ChatService) loadParties(m domain.Message) map[string]repositories.User {
	cache := make(map[string]repositories.User, 2)
	s.summary(m.Sender, cache)
	s.summary(m.Recipient, cache)
	return cache
}

// summary resolves a user to its display form, tolerating absence: a
// vanished user still renders as a bare id instead of failing the view.
func (s *ChatService) summary(userID string, cache map[string]repositories.User) event.UserSummary {
	if u, ok := cache[userID]; ok {
		return event.UserSummary{UserID: u.ID, Username: u.Username, Avatar: u.Avatar}
	}
	u, err := s.users.Get(userID)
	if err != nil {
		return event.UserSummary{UserID: userID}
	}
	cache[userID] = u
	return event.UserSummary{UserID: u.ID, Username: u.Username, Avatar: u.Avatar}
}

func (s *ChatService) view(m domain.Message, cache map[string]repositories.User) event.MessageView {
	v := event.MessageView{
		ID:        m.ID.String(),
		Sender:    s.summary(m.Sender, cache),
		Recipient: s.summary(m.Recipient, cache),
		Content:   m.Content,
		Type:      m.Type,
		Audio:     m.Audio,
		Reactions: m.Reactions,
		ReadBy:    m.ReadBy,
		Edited:    m.Edited,
		Deleted:   m.Deleted,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.ReplyTo != nil {
		if target, err := s.messages.Get(*m.ReplyTo); err == nil {
			v.ReplyTo = &event.ReplySnippet{
				ID:        target.ID.String(),
				Content:   target.Content,
				Sender:    s.summary(target.Sender, cache),
				IsDeleted: target.Deleted.IsDeleted,
				CreatedAt: target.CreatedAt,
			}
		}
	}
	return v
}
