// Package boltstore persists cart identifiers in a single-file BoltDB
// database. The cart id is the only client-side durable state; everything
// else is re-derived from the remote platform on session start.
package boltstore

import (
	"context"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/go-faster/errors"
)

const bucketName = "cart_sessions"

// DB wraps a BoltDB file holding one cart id per session token.
type DB struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and ensures the session
// bucket exists.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt db")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bucket")
	}

	return &DB{db: db}, nil
}

// Close releases the database file lock.
func (d *DB) Close() error {
	return d.db.Close()
}

// IDs returns the cart-id store scoped to one session token. The returned
// value implements session.IDStore.
func (d *DB) IDs(token string) *IDStore {
	return &IDStore{db: d.db, key: []byte(token)}
}

// IDStore persists a single cart id under one session key.
type IDStore struct {
	db  *bolt.DB
	key []byte
}

// Save stores id, replacing any previous value.
func (s *IDStore) Save(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(s.key, []byte(id))
	})
	if err != nil {
		return errors.Wrap(err, "save cart id")
	}
	return nil
}

// Load returns the stored id, or "" when none is stored.
func (s *IDStore) Load(_ context.Context) (string, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketName)).Get(s.key); v != nil {
			id = string(v)
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "load cart id")
	}
	return id, nil
}

// Clear removes the stored id. Clearing an absent id is a no-op.
func (s *IDStore) Clear(_ context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete(s.key)
	})
	if err != nil {
		return errors.Wrap(err, "clear cart id")
	}
	return nil
}
