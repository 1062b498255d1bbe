package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mj1618/voxnav/internal/store"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// write is one store mutation. A nil value deletes the key.
type write struct {
	bucket string
	key    string
	value  []byte
}

func (w write) id() string {
	return w.bucket + "\x00" + w.key
}

func (w write) apply(ctx context.Context, tx store.Tx) error {
	if w.value == nil {
		return tx.Delete(ctx, w.bucket, w.key)
	}
	return tx.Upsert(ctx, w.bucket, w.key, w.value)
}

type queued struct {
	write
	seq uint64
}

// writeQueue holds writes that failed to reach the store. Writes to the same
// key coalesce so only the newest value is retried. When the queue is full
// the oldest write is dropped.
type writeQueue struct {
	mu    sync.Mutex
	items map[string]queued
	seq   uint64
	max   int
	log   *zap.Logger

	// io is held for the whole of a commit or flush, so a flush never
	// writes a queued value after a newer commit of the same key.
	io chan struct{}
}

func newWriteQueue(max int, log *zap.Logger) *writeQueue {
	return &writeQueue{items: make(map[string]queued), max: max, log: log, io: make(chan struct{}, 1)}
}

// acquire takes the store write slot or gives up when ctx ends.
func (q *writeQueue) acquire(ctx context.Context) error {
	select {
	case q.io <- struct{}{}:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (q *writeQueue) release() {
	<-q.io
}

func (q *writeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// supersede removes queued writes for the given keys; a newer write to the
// same key is about to be attempted.
func (q *writeQueue) supersede(ws []write) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return
	}
	for _, w := range ws {
		delete(q.items, w.id())
	}
}

func (q *writeQueue) push(ws []write) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, w := range ws {
		q.seq++
		q.items[w.id()] = queued{write: w, seq: q.seq}
	}
	for len(q.items) > q.max {
		var oldestKey string
		var oldest uint64
		for k, it := range q.items {
			if oldestKey == "" || it.seq < oldest {
				oldestKey, oldest = k, it.seq
			}
		}
		it := q.items[oldestKey]
		delete(q.items, oldestKey)
		q.log.Error("retry queue full, dropping write",
			zap.String("bucket", it.bucket), zap.String("key", it.key))
	}
}

// snapshot returns the queued writes in the order they were queued.
func (q *writeQueue) snapshot() []queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]queued, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// ack removes flushed writes that were not re-queued in the meantime.
func (q *writeQueue) ack(done []queued) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, d := range done {
		if cur, ok := q.items[d.id()]; ok && cur.seq == d.seq {
			delete(q.items, d.id())
		}
	}
}

// commit applies ws in one store transaction. On failure the writes are
// queued for retry and ErrRegistryUnavailable is returned; the cache has
// already been updated by the caller.
func (r *Registry) commit(ctx context.Context, ws []write) error {
	if len(ws) == 0 {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()
	if err := r.queue.acquire(sctx); err != nil {
		// A queued value with a higher seq survives the ack of a flush
		// that is still running.
		r.queue.push(ws)
		r.log.Warn("store busy, write queued for retry",
			zap.Int("writes", len(ws)), zap.Int("pending", r.queue.len()), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer r.queue.release()

	r.queue.supersede(ws)
	err := r.store.Transaction(sctx, func(tx store.Tx) error {
		for _, w := range ws {
			if err := w.apply(sctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	r.queue.push(ws)
	r.log.Warn("store write failed, queued for retry",
		zap.Int("writes", len(ws)), zap.Int("pending", r.queue.len()), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
}

func (r *Registry) retryLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.opts.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if r.queue.len() == 0 {
				continue
			}
			if err := r.flush(context.Background()); err != nil {
				r.log.Debug("retry flush failed", zap.Error(err))
			}
		}
	}
}

// flush retries every queued write in a single transaction. It holds the
// store write slot from snapshot to ack.
func (r *Registry) flush(ctx context.Context) error {
	if r.queue.len() == 0 {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()
	if err := r.queue.acquire(sctx); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrRegistryUnavailable, err)
	}
	defer r.queue.release()

	items := r.queue.snapshot()
	if len(items) == 0 {
		return nil
	}
	batch := ulid.Make().String()
	err := r.store.Transaction(sctx, func(tx store.Tx) error {
		for _, it := range items {
			if err := it.apply(sctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: flush %s: %v", ErrRegistryUnavailable, batch, err)
	}
	r.queue.ack(items)
	r.log.Info("flushed queued writes", zap.String("batch", batch), zap.Int("writes", len(items)))
	return nil
}

// Flush synchronously retries queued writes.
func (r *Registry) Flush(ctx context.Context) error {
	return r.flush(ctx)
}
