//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/errors"
)

type IConversationRepository interface {
	FindOrCreateDirect(a, b string) (domain.Conversation, error)
	Get(a, b string) (domain.Conversation, error)
	ApplyMessage(a, b string, messageID uuid.UUID, recipientID string, at time.Time) (domain.Conversation, error)
	ResetUnread(a, b, readerID string) error
}

// ConversationRepository persists conversation aggregates under
// "conv:{pairKey}". The pair key doubles as the uniqueness constraint:
// two racing first-contact creates target the same key inside serializable
// transactions, so one wins and the retry sees the winner. No
// application-level locking is involved.
type ConversationRepository struct {
	db  *badger.DB
	now func() time.Time
}

func NewConversationRepository(db *badger.DB) ConversationRepository {
	return ConversationRepository{db: db, now: time.Now}
}

func convKey(a, b string) []byte {
	return []byte("conv:" + domain.PairKey(a, b))
}

// FindOrCreateDirect returns the single conversation for the unordered pair,
// creating it lazily on first contact.
func (r ConversationRepository) FindOrCreateDirect(a, b string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		key := convKey(a, b)
		err := getJSON(txn, key, &conv)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		conv = domain.NewConversation(a, b, r.now())
		return setJSON(txn, key, conv)
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (r ConversationRepository) Get(a, b string) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, convKey(a, b), &conv)
	})
	if err == badger.ErrKeyNotFound {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// ApplyMessage advances lastActivity and increments the recipient's unread
// counter in a single transaction. Read-then-write across two calls is never
// assumed atomic; the whole mutation happens inside one commit.
func (r ConversationRepository) ApplyMessage(a, b string, messageID uuid.UUID, recipientID string, at time.Time) (domain.Conversation, error) {
	var conv domain.Conversation
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		key := convKey(a, b)
		if err := getJSON(txn, key, &conv); err != nil {
			return err
		}
		conv.ApplyMessage(messageID, recipientID, at)
		return setJSON(txn, key, conv)
	})
	if err == badger.ErrKeyNotFound {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// ResetUnread zeroes the reader's counter after a mark-read.
func (r ConversationRepository) ResetUnread(a, b, readerID string) error {
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		key := convKey(a, b)
		var conv domain.Conversation
		if err := getJSON(txn, key, &conv); err != nil {
			return err
		}
		conv.ResetUnread(readerID)
		return setJSON(txn, key, conv)
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrConversationNotFound
	}
	return err
}
