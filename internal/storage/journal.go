// Package storage persists the message queue so a device restart does not
// lose front-of-house state. The journal is a recovery aid, not a public
// format: the only durable contract WallCue exposes is the sync wire structs.
//
// bbolt is the backing store because it is pure Go (no CGO, no external
// process), ACID even across crashes, and a single file in the data dir.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/rcalder/wallcue/internal/types"
)

// ErrNotFound is returned when a message has no journal entry.
var ErrNotFound = errors.New("storage: not found")

var bucketMessages = []byte("messages")

const journalFile = "queue.db"

// Journal is the bbolt-backed queue journal. The store mirrors every
// mutation into it best-effort and replays it on startup.
//
// All methods are safe for concurrent use (bbolt serializes writers).
type Journal struct {
	db *bbolt.DB
}

// Open opens (or creates) the journal inside dir.
func Open(dir string) (*Journal, error) {
	path := filepath.Join(dir, journalFile)
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: 0})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMessages)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: init bucket: %w", err)
	}

	return &Journal{db: db}, nil
}

// Put upserts the journal entry for msg, keyed by its ID.
func (j *Journal) Put(msg *types.Message) error {
	val, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("journal: marshal %s: %w", msg.ID, err)
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMessages).Put([]byte(msg.ID), val)
	})
}

// Get retrieves one message by ID. Returns ErrNotFound if absent.
func (j *Journal) Get(id string) (*types.Message, error) {
	var msg types.Message
	err := j.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketMessages).Get([]byte(id))
		if val == nil {
			return ErrNotFound
		}
		return json.Unmarshal(val, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Delete removes the journal entry for id. Deleting an absent id is a no-op.
func (j *Journal) Delete(id string) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMessages).Delete([]byte(id))
	})
}

// Clear drops every journal entry in one transaction.
func (j *Journal) Clear() error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketMessages); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketMessages)
		return err
	})
}

// Load returns every journaled message. Entries that fail to decode are
// skipped — a half-written entry must not block startup. ULID keys make the
// iteration order the creation order, which Load preserves.
func (j *Journal) Load() ([]*types.Message, error) {
	var msgs []*types.Message
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMessages).ForEach(func(k, v []byte) error {
			var m types.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return nil // skip corrupt entry
			}
			msgs = append(msgs, &m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Close closes the underlying bbolt database.
func (j *Journal) Close() error {
	return j.db.Close()
}
