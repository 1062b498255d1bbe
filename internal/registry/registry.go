// Package registry is the system of record for observed UI elements: an
// in-memory cache of elements, their parent/child edges and usage analytics,
// mirrored write-through to a durable store.
//
// Reads are served from sharded maps under read locks. Writes to the same
// identity are serialized by a striped lock; writes to different identities
// proceed concurrently. When the store is unreachable the registry keeps
// serving from cache, queues writes for retry and reports
// ErrRegistryUnavailable without failing the caller.
package registry

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mj1618/voxnav/internal/fingerprint"
	"github.com/mj1618/voxnav/internal/keylock"
	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrRegistryUnavailable reports that the durable store could not be
	// reached in time. It is never fatal: reads fall back to the cache and
	// writes are queued for retry.
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrUnknownIdentity is returned for operations on identities that are
	// neither cached nor stored.
	ErrUnknownIdentity = errors.New("unknown identity")
)

// Options configures a Registry. Zero values select the defaults.
type Options struct {
	Quantum       int           // bounds quantization step for identities
	MaxElements   int           // size bound that triggers automatic pruning
	MaxAge        time.Duration // age bound applied by automatic pruning (0 = none)
	StoreTimeout  time.Duration // per-call store timeout
	RetryInterval time.Duration // how often queued writes are retried
	MaxPending    int           // bound on the retry queue
	Shards        int           // number of cache shards
	Logger        *zap.Logger
	Now           func() time.Time
}

func (o *Options) defaults() {
	if o.MaxElements <= 0 {
		o.MaxElements = 5000
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 250 * time.Millisecond
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 2 * time.Second
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 4096
	}
	if o.Shards <= 0 {
		o.Shards = 32
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// entry is a published cache record. el is never mutated after the entry
// is stored in a shard; updates publish a new entry.
type entry struct {
	el   model.Element
	tick atomic.Uint64
}

type shard struct {
	mu       sync.RWMutex
	elements map[string]*entry
}

// Registry caches elements and mirrors every write to a store.Store.
type Registry struct {
	store store.Store
	opts  Options
	log   *zap.Logger
	fp    fingerprint.ElementFingerprinter

	shards []shard
	locks  *keylock.Striped
	clock  atomic.Uint64 // monotonic LRU counter
	loads  singleflight.Group

	mu         sync.RWMutex
	containers map[string]model.Container
	refs       map[string]map[string]string // container -> provider ref -> identity
	lineage    map[string]string            // lineage -> most recent identity
	screens    map[string]*model.Screen     // container|fingerprint -> screen

	queue *writeQueue

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New returns a Registry backed by st and starts its retry loop. The caller
// owns the lifecycle and must call Close.
func New(st store.Store, opts Options) *Registry {
	opts.defaults()
	r := &Registry{
		store:      st,
		opts:       opts,
		log:        opts.Logger.Named("registry"),
		fp:         fingerprint.ElementFingerprinter{Quantum: opts.Quantum},
		shards:     make([]shard, opts.Shards),
		locks:      keylock.New(opts.Shards * 2),
		containers: make(map[string]model.Container),
		refs:       make(map[string]map[string]string),
		lineage:    make(map[string]string),
		screens:    make(map[string]*model.Screen),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i].elements = make(map[string]*entry)
	}
	r.queue = newWriteQueue(opts.MaxPending, r.log)
	go r.retryLoop()
	return r
}

// Close stops the retry loop and makes a final attempt to flush queued
// writes. It does not close the underlying store.
func (r *Registry) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.stop) })
	<-r.done
	if err := r.flush(ctx); err != nil {
		return err
	}
	if n := r.queue.len(); n > 0 {
		return fmt.Errorf("%w: %d writes not persisted", ErrRegistryUnavailable, n)
	}
	return nil
}

func (r *Registry) shardFor(identity string) *shard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return &r.shards[h.Sum32()%uint32(len(r.shards))]
}

func (r *Registry) now() time.Time {
	return r.opts.Now().UTC()
}

func (r *Registry) lookup(identity string) (*entry, bool) {
	sh := r.shardFor(identity)
	sh.mu.RLock()
	e, ok := sh.elements[identity]
	sh.mu.RUnlock()
	return e, ok
}

// publish stores el as a new entry, carrying the LRU tick forward when
// bump is false.
func (r *Registry) publish(el model.Element, bump bool) {
	sh := r.shardFor(el.Identity)
	ne := &entry{el: el}
	sh.mu.Lock()
	old, ok := sh.elements[el.Identity]
	if ok && !bump {
		ne.tick.Store(old.tick.Load())
	} else {
		ne.tick.Store(r.clock.Add(1))
	}
	sh.elements[el.Identity] = ne
	sh.mu.Unlock()
}

// Get returns the element for identity. Cache misses consult the store; if
// the store is unreachable the miss is reported as ErrRegistryUnavailable.
func (r *Registry) Get(ctx context.Context, identity string) (model.Element, bool, error) {
	if e, ok := r.lookup(identity); ok {
		e.tick.Store(r.clock.Add(1))
		return cloneElement(e.el), true, nil
	}

	v, err, _ := r.loads.Do(identity, func() (any, error) {
		sctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
		defer cancel()
		raw, err := r.store.Get(sctx, store.BucketElements, identity)
		if err != nil {
			return nil, err
		}
		el, err := decodeElement(raw)
		if err != nil {
			return nil, err
		}
		r.publishIfAbsent(el)
		return el, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.Element{}, false, nil
	}
	if err != nil {
		r.log.Warn("element read degraded to cache", zap.String("identity", identity), zap.Error(err))
		return model.Element{}, false, fmt.Errorf("%w: get %s: %v", ErrRegistryUnavailable, identity, err)
	}
	return cloneElement(v.(model.Element)), true, nil
}

func (r *Registry) publishIfAbsent(el model.Element) {
	sh := r.shardFor(el.Identity)
	sh.mu.Lock()
	if _, ok := sh.elements[el.Identity]; !ok {
		ne := &entry{el: el}
		ne.tick.Store(r.clock.Add(1))
		sh.elements[el.Identity] = ne
	}
	sh.mu.Unlock()

	r.mu.Lock()
	if el.Lineage != "" {
		if cur, ok := r.lineage[el.Lineage]; !ok || cur == "" {
			r.lineage[el.Lineage] = el.Identity
		}
	}
	r.mu.Unlock()
}

// Children returns the ordered child identities of identity that are still
// registered.
func (r *Registry) Children(identity string) []string {
	e, ok := r.lookup(identity)
	if !ok {
		return nil
	}
	var out []string
	for _, c := range e.el.ChildIdentities {
		if _, ok := r.lookup(c); ok {
			out = append(out, c)
		}
	}
	return out
}

// Elements returns the cached elements of containerID in its current
// epoch, in document order of their most recent scan.
func (r *Registry) Elements(containerID string) []model.Element {
	epoch := r.CurrentEpoch(containerID)
	var out []model.Element
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, e := range sh.elements {
			if e.el.ContainerID == containerID && e.el.Epoch == epoch {
				out = append(out, cloneElement(e.el))
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Identity < out[j].Identity
	})
	return out
}

// Len returns the number of cached elements.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.elements)
		sh.mu.RUnlock()
	}
	return n
}

// IsStale reports whether el belongs to an epoch its container has since
// left behind.
func (r *Registry) IsStale(el model.Element) bool {
	return el.Epoch < r.CurrentEpoch(el.ContainerID)
}

// Pending returns the number of writes waiting for retry.
func (r *Registry) Pending() int {
	return r.queue.len()
}

// Degraded reports whether the store is currently considered unreachable.
func (r *Registry) Degraded() bool {
	return r.queue.len() > 0
}

func cloneElement(el model.Element) model.Element {
	if el.ChildIdentities != nil {
		el.ChildIdentities = append([]string(nil), el.ChildIdentities...)
	}
	return el
}
