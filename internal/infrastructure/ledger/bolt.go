// Package ledger records one-time deliveries in an embedded bolt file so a
// restart does not re-fire them.
package ledger

import (
	"context"
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "deliveries"

// Bolt is a file-backed notification.Ledger.
type Bolt struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the ledger file at path.
func Open(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db, now: time.Now}, nil
}

func (l *Bolt) Close() error {
	return l.db.Close()
}

// Claim stores key with the claim time unless it already exists.
func (l *Bolt) Claim(_ context.Context, key string) (bool, error) {
	claimed := false
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b.Get([]byte(key)) != nil {
			return nil
		}
		claimed = true
		return b.Put([]byte(key), []byte(l.now().UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (l *Bolt) Release(_ context.Context, key string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
}

// ClaimedAt reports when key was claimed.
func (l *Bolt) ClaimedAt(key string) (time.Time, bool, error) {
	var at time.Time
	found := false
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v == nil {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return err
		}
		at, found = t, true
		return nil
	})
	return at, found, err
}
