// Package sealedstore provides the durable, fsync-before-response key/value
// storage shared by the key store and the slashing-protection database. It
// is a thin wrapper around bbolt: every Update transaction fsyncs its
// transaction log before Commit returns, so a 200 response to a caller is
// only ever sent after the write it describes is durable on disk.
package sealedstore

import (
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store wraps a single bbolt database file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at dataDir/filename
// and ensures the given top-level buckets exist.
func Open(dataDir, filename string, buckets ...[]byte) (*Store, error) {
	path := filepath.Join(dataDir, filename)

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	store := &Store{db: db}

	if err := store.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %q: %w", bucket, err)
			}
		}

		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn inside a read-write transaction. Returning a non-nil error
// from fn rolls the transaction back; otherwise Commit (and its fsync)
// happens before Update returns.
func (s *Store) Update(fn func(tx *bolt.Tx) error) error {
	return s.db.Update(fn)
}

// View runs fn inside a read-only transaction.
func (s *Store) View(fn func(tx *bolt.Tx) error) error {
	return s.db.View(fn)
}
