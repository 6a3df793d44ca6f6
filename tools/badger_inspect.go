package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"

	"chat-relay/domain"
	"chat-relay/repositories"
)

// Read-only inspector for the relay's key families:
//
//	msg:     message documents
//	conv:    conversation aggregates
//	user:    user documents
//	unread:  unread index (value = sender id)
//	msgid:   message id -> storage key
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, conv:, user:, unread:, msgid:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Timestamp", "Parties", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				row, err := describe(key, v)
				if err != nil {
					// Log and keep scanning instead of stopping the whole dump
					fmt.Printf("Error decoding key %s: %v\n", key, err)
					return nil
				}
				table.Append(row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func describe(key string, value []byte) ([]string, error) {
	switch {
	case strings.HasPrefix(key, "msg:"):
		var m domain.Message
		if err := json.Unmarshal(value, &m); err != nil {
			return nil, err
		}
		detail := m.Content
		if m.Deleted.IsDeleted {
			detail = "(deleted)"
		}
		if len(detail) > 40 {
			detail = detail[:40]
		}
		return []string{
			key, strings.ToUpper(string(m.Type)),
			m.CreatedAt.Format("15:04:05"),
			m.Sender + " -> " + m.Recipient,
			detail,
		}, nil

	case strings.HasPrefix(key, "conv:"):
		var c domain.Conversation
		if err := json.Unmarshal(value, &c); err != nil {
			return nil, err
		}
		return []string{
			key, "CONV",
			c.LastActivityAt.Format("15:04:05"),
			c.Participants[0] + " | " + c.Participants[1],
			fmt.Sprintf("unread=%v", c.Unread),
		}, nil

	case strings.HasPrefix(key, "user:"):
		var u repositories.User
		if err := json.Unmarshal(value, &u); err != nil {
			return nil, err
		}
		return []string{
			key, "USER",
			u.LastSeen.Format("15:04:05"),
			u.Username,
			fmt.Sprintf("blocked=%d", len(u.Blocked)),
		}, nil

	case strings.HasPrefix(key, "unread:"):
		return []string{key, "UNREAD", "", "from " + string(value), ""}, nil

	default:
		return []string{key, "RAW", "", "", string(value)}, nil
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// If corruption is detected, retry a write open to allow the truncate
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
