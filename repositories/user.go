//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"chat-relay/errors"
)

// User is the slice of the externally-owned user document this core reads
// and writes: identity for display, block lists for send policy, lastSeen
// for the roster. Registration and credentials live elsewhere.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	Blocked   []string  `json:"blocked,omitempty"`
	LastSeen  time.Time `json:"lastSeen"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasBlocked reports whether the user has blocked otherID.
func (u User) HasBlocked(otherID string) bool {
	return lo.Contains(u.Blocked, otherID)
}

type IUserRepository interface {
	Save(u User) error
	Get(id string) (User, error)
	List(excludeID string, limit int) ([]User, error)
	UpdateLastSeen(id string, at time.Time) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func (r UserRepository) Save(u User) error {
	return updateWithRetry(r.db, func(txn *badger.Txn) error {
		return setJSON(txn, userKey(u.ID), u)
	})
}

// Get retrieves a user or fails with ErrUserNotFound.
func (r UserRepository) Get(id string) (User, error) {
	var u User
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &u)
	})
	if err == badger.ErrKeyNotFound {
		return User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// List returns up to limit users, excluding excludeID. Used for the roster
// snapshot sent to a freshly connected session.
func (r UserRepository) List(excludeID string, limit int) ([]User, error) {
	var users []User
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		prefix := []byte("user:")
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(users) == limit {
				break
			}
			var u User
			err := it.Item().Value(func(val []byte) error {
				return decodeJSON(val, &u)
			})
			if err != nil {
				return err
			}
			if u.ID == excludeID {
				continue
			}
			users = append(users, u)
		}
		return nil
	})
	return users, err
}

// UpdateLastSeen persists the offline stamp so "last seen" survives restarts.
func (r UserRepository) UpdateLastSeen(id string, at time.Time) error {
	return updateWithRetry(r.db, func(txn *badger.Txn) error {
		var u User
		if err := getJSON(txn, userKey(id), &u); err != nil {
			return err
		}
		u.LastSeen = at
		return setJSON(txn, userKey(id), u)
	})
}
