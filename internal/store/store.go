// Package store provides the durable transactional store contract consumed
// by the registry, with SQLite and in-memory implementations.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: not found")

// Buckets used by the registry.
const (
	BucketElements    = "elements"
	BucketScreens     = "screens"
	BucketContainers  = "containers"
	BucketCorrections = "corrections"
	BucketVocabulary  = "vocabulary"
)

// Tx is the set of operations available both on a store and inside a
// transaction. Values are opaque bytes; callers choose the encoding.
type Tx interface {
	// Get returns the value stored under bucket/key, or ErrNotFound.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Upsert inserts or replaces the value stored under bucket/key.
	Upsert(ctx context.Context, bucket, key string, value []byte) error

	// Delete removes bucket/key. Deleting a missing key is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// Scan calls fn for every key in bucket in key order. Returning an
	// error from fn stops the scan and is returned.
	Scan(ctx context.Context, bucket string, fn func(key string, value []byte) error) error
}

// Store is a transactional key/value store.
type Store interface {
	Tx

	// Transaction runs fn atomically. If fn returns an error every write
	// made through tx is discarded.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the store.
	Close() error
}
