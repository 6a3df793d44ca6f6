package services

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/repositories"
)

const editWindow = 15 * time.Minute

type chatFixture struct {
	users         *mocks.MockIUserRepository
	conversations *mocks.MockIConversationRepository
	messages      *mocks.MockIMessageRepository
	service       *ChatService
	now           time.Time
}

func newChatFixture(t *testing.T) *chatFixture {
	ctrl := gomock.NewController(t)
	f := &chatFixture{
		users:         mocks.NewMockIUserRepository(ctrl),
		conversations: mocks.NewMockIConversationRepository(ctrl),
		messages:      mocks.NewMockIMessageRepository(ctrl),
		now:           time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewChatService(slog.Default(), f.users, f.conversations, f.messages,
		domain.MaxContentLength, editWindow)
	f.service.now = func() time.Time { return f.now }
	return f
}

// passthroughMutate makes the mock repository behave like the real one: load
// the given message, run the mutation, fail or return the mutated copy.
func passthroughMutate(f *chatFixture, m domain.Message) {
	f.messages.EXPECT().
		Mutate(m.ID, gomock.Any()).
		DoAndReturn(func(_ uuid.UUID, fn func(*domain.Message) error) (domain.Message, error) {
			copied := m
			if err := fn(&copied); err != nil {
				return domain.Message{}, err
			}
			return copied, nil
		})
}

func (f *chatFixture) knownUsers(users ...repositories.User) {
	for _, u := range users {
		f.users.EXPECT().Get(u.ID).Return(u, nil).AnyTimes()
	}
}

func TestSendMessage_Persists_And_Returns_View(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	f.knownUsers(
		repositories.User{ID: "alice", Username: "Alice"},
		repositories.User{ID: "bob", Username: "Bob"},
	)
	conv := domain.NewConversation("alice", "bob", f.now)
	f.conversations.EXPECT().FindOrCreateDirect("alice", "bob").Return(conv, nil)

	var stored domain.Message
	f.messages.EXPECT().Store(gomock.Any()).DoAndReturn(func(m domain.Message) error {
		stored = m
		return nil
	})
	f.conversations.EXPECT().
		ApplyMessage("alice", "bob", gomock.Any(), "bob", f.now).
		Return(conv, nil)

	sent, err := f.service.SendMessage("alice", SendMessageInput{
		RecipientID: "bob",
		Content:     "  hello bob  ",
	})

	req.NoError(err)
	req.Equal("hello bob", stored.Content)
	req.Equal(domain.TypeText, stored.Type)
	req.Equal("bob", sent.RecipientID)
	req.Equal(conv.ID.String(), sent.ConversationID)
	req.Equal("Alice", sent.View.Sender.Username)
	req.Equal("hello bob", sent.View.Content)
}

func TestSendMessage_Unknown_Recipient(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	f.knownUsers(repositories.User{ID: "alice"})
	f.users.EXPECT().Get("ghost").Return(repositories.User{}, errors.ErrUserNotFound)

	_, err := f.service.SendMessage("alice", SendMessageInput{RecipientID: "ghost", Content: "hi"})

	req.ErrorIs(err, errors.ErrRecipientNotFound)
}

func TestSendMessage_Blocked_Either_Direction(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	f.knownUsers(
		repositories.User{ID: "alice", Blocked: []string{"bob"}},
		repositories.User{ID: "bob"},
		repositories.User{ID: "clara"},
		repositories.User{ID: "dave", Blocked: []string{"clara"}},
	)

	_, err := f.service.SendMessage("alice", SendMessageInput{RecipientID: "bob", Content: "hi"})
	req.ErrorIs(err, errors.ErrBlocked)

	_, err = f.service.SendMessage("clara", SendMessageInput{RecipientID: "dave", Content: "hi"})
	req.ErrorIs(err, errors.ErrBlocked)
}

func TestSendMessage_Content_Rules(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	f.knownUsers(repositories.User{ID: "alice"}, repositories.User{ID: "bob"})

	// Whitespace only counts as empty
	_, err := f.service.SendMessage("alice", SendMessageInput{RecipientID: "bob", Content: "   "})
	req.ErrorIs(err, errors.ErrContentRequired)

	_, err = f.service.SendMessage("alice", SendMessageInput{
		RecipientID: "bob",
		Content:     strings.Repeat("x", domain.MaxContentLength+1),
	})
	req.ErrorIs(err, errors.ErrContentTooLong)

	_, err = f.service.SendMessage("alice", SendMessageInput{
		RecipientID: "bob", Content: "hi", Type: "image",
	})
	req.ErrorIs(err, errors.ErrUnsupportedType)
}

func TestSendMessage_Audio_Needs_Payload(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	f.knownUsers(repositories.User{ID: "alice"}, repositories.User{ID: "bob"})

	_, err := f.service.SendMessage("alice", SendMessageInput{
		RecipientID: "bob", Type: domain.TypeAudio,
	})
	req.ErrorIs(err, errors.ErrAudioPayloadNeeded)

	// With a payload, empty content is fine
	conv := domain.NewConversation("alice", "bob", f.now)
	f.conversations.EXPECT().FindOrCreateDirect("alice", "bob").Return(conv, nil)
	f.messages.EXPECT().Store(gomock.Any()).Return(nil)
	f.conversations.EXPECT().
		ApplyMessage("alice", "bob", gomock.Any(), "bob", f.now).
		Return(conv, nil)

	sent, err := f.service.SendMessage("alice", SendMessageInput{
		RecipientID: "bob",
		Type:        domain.TypeAudio,
		Audio:       &domain.AudioInfo{URL: "https://cdn/a.ogg", Duration: 2.5},
	})
	req.NoError(err)
	req.Equal(domain.TypeAudio, sent.View.Type)
}

func baseMessage(f *chatFixture) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		Sender:    "alice",
		Recipient: "bob",
		Content:   "original",
		Type:      domain.TypeText,
		CreatedAt: f.now.Add(-time.Minute),
		UpdatedAt: f.now.Add(-time.Minute),
	}
}

func TestEditMessage_Constraint_Order(t *testing.T) {
	f := newChatFixture(t)

	deleted := baseMessage(f)
	deleted.SoftDelete("alice", f.now)
	expired := baseMessage(f)
	expired.CreatedAt = f.now.Add(-editWindow - time.Second)
	audio := baseMessage(f)
	audio.Type = domain.TypeAudio
	// A message violating several constraints still answers with the
	// highest-ranked one: sender beats everything else.
	foreignAndExpired := expired
	foreignAndExpired.Sender = "bob"
	foreignAndExpired.Recipient = "alice"

	cases := []struct {
		name    string
		editor  string
		message domain.Message
		content string
		want    error
	}{
		{"not the sender wins", "alice", foreignAndExpired, "new", errors.ErrEditNotSender},
		{"only text is editable", "alice", audio, "new", errors.ErrEditNotText},
		{"deleted cannot be edited", "alice", deleted, "new", errors.ErrEditDeleted},
		{"window expired", "alice", expired, "new", errors.ErrEditWindowExpired},
		{"unchanged content", "alice", baseMessage(f), "original", errors.ErrEditUnchanged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			passthroughMutate(f, tc.message)

			_, err := f.service.EditMessage(tc.editor, tc.message.ID, tc.content)

			req.ErrorIs(err, tc.want)
		})
	}
}

func TestEditMessage_Preserves_Original_Content(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	f.knownUsers(
		repositories.User{ID: "alice", Username: "Alice"},
		repositories.User{ID: "bob", Username: "Bob"},
	)
	m := baseMessage(f)
	passthroughMutate(f, m)
	conv := domain.NewConversation("alice", "bob", f.now)
	f.conversations.EXPECT().Get("alice", "bob").Return(conv, nil)

	edited, err := f.service.EditMessage("alice", m.ID, "rewritten")

	req.NoError(err)
	req.Equal("rewritten", edited.View.Content)
	req.True(edited.View.Edited.IsEdited)
	req.Equal("original", edited.View.Edited.OriginalContent)
	req.Equal("bob", edited.OtherPartyID)
}

func TestEditMessage_Rejects_Empty_Content(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	_, err := f.service.EditMessage("alice", uuid.New(), "   ")

	req.ErrorIs(err, errors.ErrContentRequired)
}

func TestSoftDeleteMessage_Policy(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	m := baseMessage(f)
	passthroughMutate(f, m)
	_, err := f.service.SoftDeleteMessage("bob", m.ID)
	req.ErrorIs(err, errors.ErrDeleteNotSender)

	alreadyDeleted := baseMessage(f)
	alreadyDeleted.SoftDelete("alice", f.now.Add(-time.Second))
	passthroughMutate(f, alreadyDeleted)
	_, err = f.service.SoftDeleteMessage("alice", alreadyDeleted.ID)
	req.ErrorIs(err, errors.ErrAlreadyDeleted)
}

func TestSoftDeleteMessage_Succeeds_For_Sender(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	m := baseMessage(f)
	passthroughMutate(f, m)
	conv := domain.NewConversation("alice", "bob", f.now)
	f.conversations.EXPECT().Get("alice", "bob").Return(conv, nil)

	deleted, err := f.service.SoftDeleteMessage("alice", m.ID)

	req.NoError(err)
	req.Equal(m.ID, deleted.MessageID)
	req.Equal(f.now, deleted.DeletedAt)
	req.Equal("bob", deleted.OtherPartyID)
}

func TestAddReaction_Policy(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	m := baseMessage(f)
	passthroughMutate(f, m)
	_, err := f.service.AddReaction("mallory", m.ID, "x")
	req.ErrorIs(err, errors.ErrReactionForbidden)

	deleted := baseMessage(f)
	deleted.SoftDelete("alice", f.now)
	passthroughMutate(f, deleted)
	_, err = f.service.AddReaction("bob", deleted.ID, "x")
	req.ErrorIs(err, errors.ErrReactToDeleted)
}

func TestAddReaction_Recipient_Can_React(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	m := baseMessage(f)
	passthroughMutate(f, m)

	res, err := f.service.AddReaction("bob", m.ID, "heart")

	req.NoError(err)
	req.Equal(m.ID, res.MessageID)
	req.Equal("alice", res.OtherPartyID)
}

func TestRemoveReaction_Requires_Existing(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	m := baseMessage(f)
	passthroughMutate(f, m)

	_, err := f.service.RemoveReaction("bob", m.ID)

	req.ErrorIs(err, errors.ErrReactionNotPresent)
}

func TestMarkRead_Notes_Only_Transitions(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	unread := baseMessage(f)
	alreadyRead := baseMessage(f)
	notMine := baseMessage(f)
	notMine.Recipient = "clara"

	f.messages.EXPECT().MarkRead(unread.ID, "bob", f.now).Return(unread, true, nil)
	f.messages.EXPECT().MarkRead(alreadyRead.ID, "bob", f.now).Return(alreadyRead, false, nil)
	f.messages.EXPECT().MarkRead(notMine.ID, "bob", f.now).Return(notMine, false, nil)
	// One distinct sender produced a transition, one reset only
	f.conversations.EXPECT().ResetUnread("alice", "bob", "bob").Return(nil)

	notes := f.service.MarkRead("bob", []uuid.UUID{unread.ID, alreadyRead.ID, notMine.ID})

	req.Len(notes, 1)
	req.Equal(unread.ID, notes[0].MessageID)
	req.Equal("alice", notes[0].SenderID)
	req.Equal(f.now, notes[0].ReadAt)
}

func TestMarkRead_Skips_Failed_Messages(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	bad := uuid.New()
	good := baseMessage(f)
	f.messages.EXPECT().MarkRead(bad, "bob", f.now).Return(domain.Message{}, false, errors.ErrMessageNotFound)
	f.messages.EXPECT().MarkRead(good.ID, "bob", f.now).Return(good, true, nil)
	f.conversations.EXPECT().ResetUnread("alice", "bob", "bob").Return(nil)

	notes := f.service.MarkRead("bob", []uuid.UUID{bad, good.ID})

	req.Len(notes, 1)
	req.Equal(good.ID, notes[0].MessageID)
}

func TestMarkReadFromSender_Resolves_Ids(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	m := baseMessage(f)
	f.messages.EXPECT().UnreadFrom("alice", "bob").Return([]uuid.UUID{m.ID}, nil)
	f.messages.EXPECT().MarkRead(m.ID, "bob", f.now).Return(m, true, nil)
	f.conversations.EXPECT().ResetUnread("alice", "bob", "bob").Return(nil)

	notes := f.service.MarkReadFromSender("bob", "alice")

	req.Len(notes, 1)
}

func TestGetConversation_Resolves_Reply_Snippets(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	f.knownUsers(
		repositories.User{ID: "alice", Username: "Alice"},
		repositories.User{ID: "bob", Username: "Bob"},
	)

	target := baseMessage(f)
	reply := baseMessage(f)
	reply.Sender, reply.Recipient = "bob", "alice"
	reply.ReplyTo = &target.ID

	f.messages.EXPECT().ListBetween("bob", "alice", 1, 50).Return([]domain.Message{reply}, nil)
	f.messages.EXPECT().Get(target.ID).Return(target, nil)

	views, err := f.service.GetConversation("bob", "alice", 1, 50)

	req.NoError(err)
	req.Len(views, 1)
	req.NotNil(views[0].ReplyTo)
	req.Equal(target.ID.String(), views[0].ReplyTo.ID)
	req.Equal("Alice", views[0].ReplyTo.Sender.Username)
}
