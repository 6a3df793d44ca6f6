//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"chat-relay/domain"
	"chat-relay/errors"
)

type IMessageRepository interface {
	Store(m domain.Message) error
	Get(id uuid.UUID) (domain.Message, error)
	Mutate(id uuid.UUID, fn func(*domain.Message) error) (domain.Message, error)
	MarkRead(id uuid.UUID, readerID string, at time.Time) (domain.Message, bool, error)
	ListBetween(a, b string, page, limit int) ([]domain.Message, error)
	UnreadCount(userID string) (int, error)
	UnreadFrom(senderID, recipientID string) ([]uuid.UUID, error)
}

// MessageRepository persists messages in BadgerDB under three key families:
//
//	msg:{pairKey}:{timestamp_padded}:{uuid}  - the message document
//	msgid:{uuid}                             - message id -> storage key
//	unread:{recipientId}:{storage key}       - unread index, value = sender id
//
// The 19-digit zero-padded nanosecond timestamp makes lexicographic order
// chronological, so conversation pages are a single reverse prefix scan.
// The UUID suffix disambiguates two messages stored in the same nanosecond.
// The unread index is created on store and removed on read or soft-delete,
// which keeps UnreadCount a plain prefix count.
type MessageRepository struct {
	db *badger.DB
}

func NewMessageRepository(db *badger.DB) MessageRepository {
	return MessageRepository{db: db}
}

func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		domain.PairKey(m.Sender, m.Recipient),
		m.CreatedAt.UnixNano(),
		m.ID,
	))
}

func messageIDKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func unreadKey(recipientID string, storageKey []byte) []byte {
	return []byte("unread:" + recipientID + ":" + string(storageKey))
}

// Store persists a new message together with its id and unread index entries
// in one transaction.
func (r MessageRepository) Store(m domain.Message) error {
	key := messageKey(m)
	return updateWithRetry(r.db, func(txn *badger.Txn) error {
		if err := setJSON(txn, key, m); err != nil {
			return err
		}
		if err := txn.Set(messageIDKey(m.ID), key); err != nil {
			return err
		}
		return txn.Set(unreadKey(m.Recipient, key), []byte(m.Sender))
	})
}

func (r MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var m domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		key, err := r.resolveKey(txn, id)
		if err != nil {
			return err
		}
		return getJSON(txn, key, &m)
	})
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// Mutate loads the message, applies fn, and writes the result back within a
// single transaction, so every mutation is atomic with respect to the one
// document it touches. If fn flips the message to deleted, the unread index
// entry is dropped in the same commit: deleted messages never count as
// unread.
func (r MessageRepository) Mutate(id uuid.UUID, fn func(*domain.Message) error) (domain.Message, error) {
	var m domain.Message
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		key, err := r.resolveKey(txn, id)
		if err != nil {
			return err
		}
		if err := getJSON(txn, key, &m); err != nil {
			return err
		}
		wasDeleted := m.Deleted.IsDeleted
		if err := fn(&m); err != nil {
			return err
		}
		if err := setJSON(txn, key, m); err != nil {
			return err
		}
		if !wasDeleted && m.Deleted.IsDeleted {
			if err := txn.Delete(unreadKey(m.Recipient, key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// MarkRead records the reader's receipt. Only the addressed recipient
// qualifies: anyone else, the sender included, leaves the message untouched.
// The second return value reports the unread-to-read transition: true at
// most once per (message, reader), which is what gates the read-receipt
// notification upstream.
func (r MessageRepository) MarkRead(id uuid.UUID, readerID string, at time.Time) (domain.Message, bool, error) {
	var m domain.Message
	var transitioned bool
	err := updateWithRetry(r.db, func(txn *badger.Txn) error {
		key, err := r.resolveKey(txn, id)
		if err != nil {
			return err
		}
		if err := getJSON(txn, key, &m); err != nil {
			return err
		}
		if m.Recipient != readerID {
			transitioned = false
			return nil
		}
		transitioned = m.MarkReadBy(readerID, at)
		if !transitioned {
			return nil
		}
		if err := setJSON(txn, key, m); err != nil {
			return err
		}
		return txn.Delete(unreadKey(readerID, key))
	})
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, false, errors.ErrMessageNotFound
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	return m, transitioned, nil
}

// ListBetween returns one page of the conversation between a and b, newest
// first. Soft-deleted messages are included on purpose so clients can render
// their placeholders.
func (r MessageRepository) ListBetween(a, b string, page, limit int) ([]domain.Message, error) {
	if page < 1 {
		page = 1
	}
	skip := (page - 1) * limit

	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("msg:" + domain.PairKey(a, b) + ":")
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible timestamp, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		skipped := 0
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if skipped < skip {
				skipped++
				continue
			}
			if limit > 0 && len(messages) == limit {
				break
			}
			var m domain.Message
			err := it.Item().Value(func(val []byte) error {
				return decodeJSON(val, &m)
			})
			if err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	return messages, err
}

// UnreadCount counts messages addressed to userID that are neither read by
// them nor soft-deleted. Both exclusions are structural: read and deleted
// messages have no index entry left to count.
func (r MessageRepository) UnreadCount(userID string) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("unread:" + userID + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// UnreadFrom lists ids of unread messages sent by senderID to recipientID,
// which backs the "mark everything from this user read" path.
func (r MessageRepository) UnreadFrom(senderID, recipientID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("unread:" + recipientID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var sender string
			err := item.Value(func(val []byte) error {
				sender = string(val)
				return nil
			})
			if err != nil {
				return err
			}
			if sender != senderID {
				continue
			}
			// The storage key ends with the message UUID.
			storageKey := string(item.Key())
			id, err := uuid.Parse(storageKey[strings.LastIndex(storageKey, ":")+1:])
			if err != nil {
				return fmt.Errorf("corrupt unread index key %q: %w", storageKey, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func (r MessageRepository) resolveKey(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(messageIDKey(id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
