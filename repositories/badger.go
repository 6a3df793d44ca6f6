package repositories

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"
)

// maxTxnRetries bounds retries of serializable transactions that lost a
// conflict. Badger aborts the later committer under SSI; retrying re-reads
// the winner's state, which is exactly the serialization find-or-create and
// counter updates need.
const maxTxnRetries = 5

func updateWithRetry(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
	return err
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func decodeJSON(val []byte, v any) error {
	return json.Unmarshal(val, v)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}
