package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrClosed is returned by a MemoryStore after Close.
var ErrClosed = errors.New("store: closed")

// MemoryStore is an in-process Store. It is used when no database path is
// configured and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Upsert(ctx context.Context, bucket, key string, value []byte) error {
	return m.Transaction(ctx, func(tx Tx) error { return tx.Upsert(ctx, bucket, key, value) })
}

func (m *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	return m.Transaction(ctx, func(tx Tx) error { return tx.Delete(ctx, bucket, key) })
}

func (m *MemoryStore) Scan(ctx context.Context, bucket string, fn func(key string, value []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	keys, values := snapshotBucket(m.data[bucket])
	m.mu.RUnlock()

	for i, k := range keys {
		if err := fn(k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Transaction stages writes in an overlay and applies them only when fn
// succeeds. Transactions are serialized.
func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	tx := &memTx{base: m.data, writes: make(map[string]map[string]*[]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for bucket, kv := range tx.writes {
		for key, v := range kv {
			if v == nil {
				delete(m.data[bucket], key)
				continue
			}
			if m.data[bucket] == nil {
				m.data[bucket] = make(map[string][]byte)
			}
			m.data[bucket][key] = *v
		}
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of keys in bucket.
func (m *MemoryStore) Len(bucket string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[bucket])
}

// memTx reads through its own pending writes to the base data. A nil
// pointer in writes marks a deletion.
type memTx struct {
	base   map[string]map[string][]byte
	writes map[string]map[string]*[]byte
}

func (t *memTx) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if v, ok := t.writes[bucket][key]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return append([]byte(nil), (*v)...), nil
	}
	v, ok := t.base[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (t *memTx) Upsert(ctx context.Context, bucket, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := append([]byte(nil), value...)
	t.bucket(bucket)[key] = &v
	return nil
}

func (t *memTx) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.bucket(bucket)[key] = nil
	return nil
}

func (t *memTx) Scan(ctx context.Context, bucket string, fn func(key string, value []byte) error) error {
	merged := make(map[string][]byte, len(t.base[bucket]))
	for k, v := range t.base[bucket] {
		merged[k] = v
	}
	for k, v := range t.writes[bucket] {
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = *v
		}
	}
	keys, values := snapshotBucket(merged)
	for i, k := range keys {
		if err := fn(k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) bucket(name string) map[string]*[]byte {
	b, ok := t.writes[name]
	if !ok {
		b = make(map[string]*[]byte)
		t.writes[name] = b
	}
	return b
}

func snapshotBucket(b map[string][]byte) ([]string, [][]byte) {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = append([]byte(nil), b[k]...)
	}
	return keys, values
}
