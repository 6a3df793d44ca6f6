package repositories

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/errors"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func textMessage(sender, recipient, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		Type:      domain.TypeText,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func Test_Store_And_Get_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t))

	m := textMessage("alice", "bob", "hello", time.Now().UTC())
	req.NoError(repository.Store(m))

	fetched, err := repository.Get(m.ID)
	req.NoError(err)
	req.Equal(m.ID, fetched.ID)
	req.Equal("hello", fetched.Content)
	req.Equal("alice", fetched.Sender)
}

func Test_Get_Unknown_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t))

	_, err := repository.Get(uuid.New())
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func Test_ListBetween_Newest_First(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t))
	at := time.Now().UTC()

	first := textMessage("alice", "bob", "first", at)
	second := textMessage("bob", "alice", "second", at.Add(1*time.Minute))
	third := textMessage("alice", "bob", "third", at.Add(2*time.Minute))
	for _, m := range []domain.Message{first, second, third} {
		req.NoError(repository.Store(m))
	}
	// A message in another conversation never leaks in
	req.NoError(repository.Store(textMessage("alice", "clara", "elsewhere", at)))

	fetched, err := repository.ListBetween("alice", "bob", 1, 10)
	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal("third", fetched[0].Content)
	req.Equal("second", fetched[1].Content)
	req.Equal("first", fetched[2].Content)
}

func Test_ListBetween_Pagination(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t))
	at := time.Now().UTC()

	for i := 0; i < 5; i++ {
		m := textMessage("alice", "bob", "msg", at.Add(time.Duration(i)*time.Minute))
		req.NoError(repository.Store(m))
	}

	page1, err := repository.ListBetween("alice", "bob", 1, 2)
	req.NoError(err)
	req.Len(page1, 2)

	page3, err := repository.ListBetween("alice", "bob", 3, 2)
	req.NoError(err)
	req.Len(page3, 1)

	empty, err := repository.ListBetween("alice", "bob", 4, 2)
	req.NoError(err)
	req.Empty(empty)
}

func Test_MarkRead_Transitions_Once(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t))

	m := textMessage("alice", "bob", "hello", time.Now().UTC())
	req.NoError(repository.Store(m))

	count, err := repository.UnreadCount("bob")
	req.NoError(err)
	req.Equal(1, count)

	_, transitioned, err := repository.MarkRead(m.ID, "bob", time.Now().UTC())
	req.NoError(err)
	req.True(transitioned)

	// Second read is idempotent
	fetched, transitioned, err := repository.MarkRead(m.ID, "bob", time.Now().UTC())
	req.NoError(err)
	req.False(transitioned)
	req.Len(fetched.ReadBy, 1)

	count, err = repository.UnreadCount("bob")
	req.NoError(err)
	req.Equal(0, count)
}

func Test_MarkRead_Ignores_Non_Recipient(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t))

	m := textMessage("alice", "bob", "hello", time.Now().UTC())
	req.NoError(repository.Store(m))

	// The sender reading their own message is not a receipt
	_, transitioned, err := repository.MarkRead(m.ID, "alice", time.Now().UTC())
	req.NoError(err)
	req.False(transitioned)

	fetched, err := repository.Get(m.ID)
	req.NoError(err)
	req.Empty(fetched.ReadBy)

	count, err := repository.UnreadCount("bob")
	req.NoError(err)
	req.Equal(1, count)
}

func Test_SoftDelete_Removes_Unread_Entry(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t))

	m := textMessage("alice", "bob", "hello", time.Now().UTC())
	req.NoError(repository.Store(m))

	_, err := repository.Mutate(m.ID, func(m *domain.Message) error {
		m.SoftDelete("alice", time.Now().UTC())
		return nil
	})
	req.NoError(err)

	count, err := repository.UnreadCount("bob")
	req.NoError(err)
	req.Equal(0, count)
}

func Test_Mutate_Rolls_Back_On_Error(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t))

	m := textMessage("alice", "bob", "original", time.Now().UTC())
	req.NoError(repository.Store(m))

	_, err := repository.Mutate(m.ID, func(m *domain.Message) error {
		m.Content = "mutated"
		return errors.ErrEditNotSender
	})
	req.ErrorIs(err, errors.ErrEditNotSender)

	fetched, err := repository.Get(m.ID)
	req.NoError(err)
	req.Equal("original", fetched.Content)
}

func Test_UnreadFrom_Filters_By_Sender(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t))
	at := time.Now().UTC()

	fromAlice := textMessage("alice", "bob", "one", at)
	fromClara := textMessage("clara", "bob", "two", at.Add(time.Second))
	req.NoError(repository.Store(fromAlice))
	req.NoError(repository.Store(fromClara))

	ids, err := repository.UnreadFrom("alice", "bob")
	req.NoError(err)
	req.Len(ids, 1)
	req.Equal(fromAlice.ID, ids[0])
}
