package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// flakyStore fails every call while down is set.
type flakyStore struct {
	*store.MemoryStore
	down atomic.Bool
}

var errDown = errors.New("store down")

func (f *flakyStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.down.Load() {
		return nil, errDown
	}
	return f.MemoryStore.Get(ctx, bucket, key)
}

func (f *flakyStore) Scan(ctx context.Context, bucket string, fn func(string, []byte) error) error {
	if f.down.Load() {
		return errDown
	}
	return f.MemoryStore.Scan(ctx, bucket, fn)
}

func (f *flakyStore) Transaction(ctx context.Context, fn func(store.Tx) error) error {
	if f.down.Load() {
		return errDown
	}
	return f.MemoryStore.Transaction(ctx, fn)
}

// blockingStore never answers; every call waits for its context to end.
type blockingStore struct {
	*store.MemoryStore
}

func (blockingStore) Get(ctx context.Context, _, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStore) Scan(ctx context.Context, _ string, _ func(string, []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingStore) Transaction(ctx context.Context, _ func(store.Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// hookStore runs a one-shot hook at the start of the next transaction.
type hookStore struct {
	flakyStore
	mu   sync.Mutex
	hook func()
}

func (h *hookStore) onNextTx(fn func()) {
	h.mu.Lock()
	h.hook = fn
	h.mu.Unlock()
}

func (h *hookStore) Transaction(ctx context.Context, fn func(store.Tx) error) error {
	h.mu.Lock()
	hook := h.hook
	h.hook = nil
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	return h.flakyStore.Transaction(ctx, fn)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T, st store.Store, opts Options) (*Registry, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	if opts.Now == nil {
		opts.Now = clk.Now
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = time.Hour
	}
	r := New(st, opts)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, clk
}

func button(ref, parent, text string, x, y int) model.Snapshot {
	return model.Snapshot{
		Ref:        ref,
		ParentRef:  parent,
		Role:       "btn",
		Text:       text,
		Bounds:     model.Bounds{X: x, Y: y, Width: 80, Height: 40},
		Flags:      model.Flags{Clickable: true},
		AppID:      "com.example.mail",
		AppVersion: "1.0",
	}
}

func tree() []model.Snapshot {
	return model.Normalize([]model.Snapshot{
		{Ref: "1", Role: "group", Bounds: model.Bounds{Width: 400, Height: 800}, AppID: "com.example.mail", AppVersion: "1.0"},
		button("2", "1", "Inbox", 0, 0),
		button("3", "1", "Sent", 100, 0),
		button("4", "1", "Drafts", 200, 0),
	})
}

func TestUpsert_Idempotent(t *testing.T) {
	ctx := context.Background()
	r, clk := newTestRegistry(t, store.NewMemoryStore(), Options{})

	s := button("1", "", "Compose", 10, 10)
	id1, err := r.Upsert(ctx, s)
	require.NoError(t, err)
	first, ok, err := r.Get(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(time.Minute)
	id2, err := r.Upsert(ctx, s)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, r.Len())
	second, _, _ := r.Get(ctx, id2)
	assert.Equal(t, first.FirstSeenAt, second.FirstSeenAt)
	assert.True(t, second.LastSeenAt.After(first.LastSeenAt))
}

func TestUpsertTree_Edges(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, store.NewMemoryStore(), Options{})

	ids, err := r.UpsertTree(ctx, tree())
	require.NoError(t, err)
	require.Len(t, ids, 4)

	assert.Equal(t, ids[1:], r.Children(ids[0]))
	child, ok, err := r.Get(ctx, ids[2])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids[0], child.ParentIdentity)
	assert.Equal(t, 1, child.Depth)

	// A later single upsert attaches to the parent through the burst refs.
	extra, err := r.Upsert(ctx, button("5", "1", "Spam", 300, 0))
	require.NoError(t, err)
	assert.Equal(t, append(ids[1:], extra), r.Children(ids[0]))
}

func TestGet_MissReadsStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r1, _ := newTestRegistry(t, st, Options{})
	id, err := r1.Upsert(ctx, button("1", "", "Archive", 0, 0))
	require.NoError(t, err)

	r2, _ := newTestRegistry(t, st, Options{})
	el, ok, err := r2.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Archive", el.Text)

	_, ok, err = r2.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTouch(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, store.NewMemoryStore(), Options{})
	id, err := r.Upsert(ctx, button("1", "", "Send", 0, 0))
	require.NoError(t, err)

	require.NoError(t, r.Touch(ctx, id))
	require.NoError(t, r.Touch(ctx, id))
	el, _, _ := r.Get(ctx, id)
	assert.Equal(t, 2, el.UseCount)
	assert.False(t, el.LastUsedAt.IsZero())

	assert.ErrorIs(t, r.Touch(ctx, "nope"), ErrUnknownIdentity)
}

func TestVersionBump_RemapsEpoch(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, store.NewMemoryStore(), Options{})

	old := button("1", "", "Settings", 0, 0)
	oldID, err := r.Upsert(ctx, old)
	require.NoError(t, err)
	require.NoError(t, r.Touch(ctx, oldID))
	assert.Equal(t, 1, r.CurrentEpoch("com.example.mail"))

	upgraded := old
	upgraded.AppVersion = "2.0"
	newID, err := r.Upsert(ctx, upgraded)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)
	assert.Equal(t, 2, r.CurrentEpoch("com.example.mail"))

	stale, ok, err := r.Get(ctx, oldID)
	require.NoError(t, err)
	require.True(t, ok, "remap keeps old entries")
	assert.True(t, r.IsStale(stale))

	fresh, _, _ := r.Get(ctx, newID)
	assert.False(t, r.IsStale(fresh))
	assert.Equal(t, oldID, fresh.Supersedes)
	assert.Equal(t, 1, fresh.UseCount)
	assert.Equal(t, stale.FirstSeenAt, fresh.FirstSeenAt)

	for _, el := range r.Elements("com.example.mail") {
		assert.Equal(t, 2, el.Epoch)
	}
}

func TestRemapEpoch_Validates(t *testing.T) {
	r, _ := newTestRegistry(t, store.NewMemoryStore(), Options{})
	_, err := r.RemapEpoch(context.Background(), "c", 3, 3)
	assert.Error(t, err)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()

	t.Run("lru", func(t *testing.T) {
		r, _ := newTestRegistry(t, store.NewMemoryStore(), Options{})
		a, _ := r.Upsert(ctx, button("1", "", "A", 0, 0))
		b, _ := r.Upsert(ctx, button("2", "", "B", 100, 0))
		c, _ := r.Upsert(ctx, button("3", "", "C", 200, 0))
		_, _, _ = r.Get(ctx, a) // a is now most recently used

		n, err := r.Prune(ctx, PrunePolicy{MaxElements: 2})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, ok, _ := r.Get(ctx, b)
		assert.False(t, ok)
		for _, id := range []string{a, c} {
			_, ok, _ := r.Get(ctx, id)
			assert.True(t, ok)
		}
	})

	t.Run("age", func(t *testing.T) {
		r, clk := newTestRegistry(t, store.NewMemoryStore(), Options{})
		old, _ := r.Upsert(ctx, button("1", "", "Old", 0, 0))
		clk.Advance(2 * time.Hour)
		recent, _ := r.Upsert(ctx, button("2", "", "New", 100, 0))

		n, err := r.Prune(ctx, PrunePolicy{MaxAge: time.Hour})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, ok, _ := r.Get(ctx, old)
		assert.False(t, ok)
		_, ok, _ = r.Get(ctx, recent)
		assert.True(t, ok)
	})

	t.Run("automatic", func(t *testing.T) {
		r, _ := newTestRegistry(t, store.NewMemoryStore(), Options{MaxElements: 2})
		for i, name := range []string{"A", "B", "C", "D"} {
			_, err := r.Upsert(ctx, button(name, "", name, i*100, 0))
			require.NoError(t, err)
		}
		assert.Equal(t, 2, r.Len())
	})
}

func TestDegradedStore_QueuesAndFlushes(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{MemoryStore: store.NewMemoryStore()}
	r, _ := newTestRegistry(t, st, Options{})

	st.down.Store(true)
	id, err := r.Upsert(ctx, button("1", "", "Reply", 0, 0))
	require.ErrorIs(t, err, ErrRegistryUnavailable)
	require.NotEmpty(t, id)
	assert.True(t, r.Degraded())

	// The cache still serves the element.
	el, ok, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Reply", el.Text)

	// A cache miss during the outage is reported but not fatal.
	_, ok, err = r.Get(ctx, "unknown")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)

	require.Error(t, r.Flush(ctx))
	st.down.Store(false)
	require.NoError(t, r.Flush(ctx))
	assert.Zero(t, r.Pending())
	assert.False(t, r.Degraded())

	_, err = st.MemoryStore.Get(ctx, store.BucketElements, id)
	assert.NoError(t, err)
}

func TestFlush_DoesNotOverwriteNewerCommit(t *testing.T) {
	ctx := context.Background()
	st := &hookStore{flakyStore: flakyStore{MemoryStore: store.NewMemoryStore()}}
	r, _ := newTestRegistry(t, st, Options{})

	st.down.Store(true)
	id, err := r.Upsert(ctx, button("1", "", "Reply", 0, 0))
	require.ErrorIs(t, err, ErrRegistryUnavailable)
	require.NotZero(t, r.Pending())
	st.down.Store(false)

	// A touch lands while the flush transaction is starting.
	touched := make(chan error, 1)
	st.onNextTx(func() {
		go func() { touched <- r.Touch(ctx, id) }()
		time.Sleep(20 * time.Millisecond)
	})
	require.NoError(t, r.Flush(ctx))
	require.NoError(t, <-touched)

	cached, ok, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, cached.UseCount)

	raw, err := st.MemoryStore.Get(ctx, store.BucketElements, id)
	require.NoError(t, err)
	stored, err := decodeElement(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UseCount)
	assert.Zero(t, r.Pending())
}

func TestStoreTimeout(t *testing.T) {
	ctx := context.Background()
	const timeout = 50 * time.Millisecond
	r, _ := newTestRegistry(t, blockingStore{store.NewMemoryStore()}, Options{StoreTimeout: timeout})

	start := time.Now()
	id, err := r.Upsert(ctx, button("1", "", "Reply", 0, 0))
	require.ErrorIs(t, err, ErrRegistryUnavailable)
	// One write for the new container and one for the element.
	assert.Less(t, time.Since(start), 2*timeout+time.Second)

	start = time.Now()
	err = r.Touch(ctx, id)
	require.ErrorIs(t, err, ErrRegistryUnavailable)
	assert.Less(t, time.Since(start), timeout+time.Second)

	// Cached reads never touch the store.
	start = time.Now()
	el, ok, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, el.UseCount)
	assert.Less(t, time.Since(start), timeout)

	start = time.Now()
	_, ok, err = r.Get(ctx, "unknown")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrRegistryUnavailable)
	assert.Less(t, time.Since(start), timeout+time.Second)
	assert.True(t, r.Degraded())
}

func TestWriteQueue_CoalescesAndBounds(t *testing.T) {
	q := newWriteQueue(2, zap.NewNop())

	q.push([]write{{"b", "k1", []byte("1")}})
	q.push([]write{{"b", "k1", []byte("2")}})
	assert.Equal(t, 1, q.len())

	q.push([]write{{"b", "k2", []byte("x")}, {"b", "k3", []byte("y")}})
	assert.Equal(t, 2, q.len())
	items := q.snapshot()
	assert.Equal(t, "k2", items[0].key)
	assert.Equal(t, "k3", items[1].key)
}

func TestRecordScreen(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, store.NewMemoryStore(), Options{})

	s, first, err := r.RecordScreen(ctx, "app", "Inbox", "fp-inbox", "")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, 1, s.VisitCount)

	_, first, err = r.RecordScreen(ctx, "app", "Message", "fp-msg", "fp-inbox")
	require.NoError(t, err)
	assert.True(t, first)

	s, first, err = r.RecordScreen(ctx, "app", "Inbox", "fp-inbox", "fp-msg")
	require.NoError(t, err)
	assert.False(t, first)
	assert.Equal(t, 2, s.VisitCount)
	assert.Equal(t, map[string]int{"fp-msg": 1}, s.Transitions)

	screens := r.Screens("app")
	require.Len(t, screens, 2)
	msg, ok := r.Screen("app", "fp-msg")
	require.True(t, ok)
	assert.Equal(t, map[string]int{"fp-inbox": 1}, msg.Transitions)
}

func TestLearningStore(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, store.NewMemoryStore(), Options{})

	require.NoError(t, r.SaveCorrection(ctx, model.LearnedCorrection{OriginalText: "open setings", CorrectedText: "open settings", Confidence: 0.9}))
	require.NoError(t, r.SaveVocabulary(ctx, model.VocabularyEntry{Token: "settings", Variations: []string{"setings"}}))

	cs, err := r.Corrections(ctx)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "open settings", cs[0].CorrectedText)

	vs, err := r.Vocabulary(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.True(t, vs[0].HasVariation("setings"))

	require.NoError(t, r.DeleteCorrection(ctx, "open setings"))
	require.NoError(t, r.DeleteVocabulary(ctx, "settings"))
	cs, _ = r.Corrections(ctx)
	vs, _ = r.Vocabulary(ctx)
	assert.Empty(t, cs)
	assert.Empty(t, vs)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r1, _ := newTestRegistry(t, st, Options{})
	ids, err := r1.UpsertTree(ctx, tree())
	require.NoError(t, err)
	_, _, err = r1.RecordScreen(ctx, "com.example.mail", "", "fp", "")
	require.NoError(t, err)

	r2, _ := newTestRegistry(t, st, Options{})
	require.NoError(t, r2.Load(ctx))
	assert.Equal(t, 4, r2.Len())
	assert.Equal(t, 1, r2.CurrentEpoch("com.example.mail"))
	assert.Equal(t, ids[1:], r2.Children(ids[0]))
	assert.Len(t, r2.Screens(""), 1)
	require.Len(t, r2.Containers(), 1)
	assert.Equal(t, "1.0", r2.Containers()[0].Version)
}

func TestConcurrentUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, store.NewMemoryStore(), Options{})
	id, err := r.Upsert(ctx, button("1", "", "Shared", 0, 0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = r.Upsert(ctx, button("1", "", "Shared", 0, 0))
				_, _, _ = r.Get(ctx, id)
				_ = r.Touch(ctx, id)
			}
		}()
	}
	wg.Wait()

	el, _, _ := r.Get(ctx, id)
	assert.Equal(t, 400, el.UseCount)
	assert.Equal(t, 1, r.Len())
}
