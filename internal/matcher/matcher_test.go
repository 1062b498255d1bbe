package matcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore is an in-memory Store.
type memStore struct {
	mu          sync.Mutex
	corrections map[string]model.LearnedCorrection
	vocab       map[string]model.VocabularyEntry
}

func newMemStore() *memStore {
	return &memStore{corrections: map[string]model.LearnedCorrection{}, vocab: map[string]model.VocabularyEntry{}}
}

func (s *memStore) SaveCorrection(_ context.Context, c model.LearnedCorrection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrections[c.OriginalText] = c
	return nil
}

func (s *memStore) DeleteCorrection(_ context.Context, original string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.corrections, original)
	return nil
}

func (s *memStore) Corrections(context.Context) ([]model.LearnedCorrection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LearnedCorrection
	for _, c := range s.corrections {
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) SaveVocabulary(_ context.Context, v model.VocabularyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vocab[v.Token] = v
	return nil
}

func (s *memStore) DeleteVocabulary(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vocab, token)
	return nil
}

func (s *memStore) Vocabulary(context.Context) ([]model.VocabularyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.VocabularyEntry
	for _, v := range s.vocab {
		out = append(out, v)
	}
	return out, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMatch_LearnedCorrection(t *testing.T) {
	ctx := context.Background()
	m := New(newMemStore(), Options{})
	require.NoError(t, m.Learn(ctx, "open setings", "open settings", 0.9))

	got := m.Match(ctx, "Open setings", "en-US")
	assert.Equal(t, SourceLearned, got.Source)
	assert.Equal(t, "open settings", got.Text)
	assert.GreaterOrEqual(t, got.Confidence, 0.9)
}

func TestMatch_FuzzyVocabulary(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Options{})
	require.NoError(t, m.Observe(ctx, "Settings", "Bluetooth"))

	got := m.Match(ctx, "opn settings", "en")
	assert.Equal(t, SourceFuzzy, got.Source)
	assert.Equal(t, "open settings", got.Text)
	assert.GreaterOrEqual(t, got.Confidence, DefaultFuzzyThreshold)

	got = m.Match(ctx, "open blutooth", "en")
	assert.Equal(t, SourceFuzzy, got.Source)
	assert.Equal(t, "open bluetooth", got.Text)
	assert.InDelta(t, 8.0/9.0, got.Confidence, 1e-9)
}

func TestMatch_LearnedVariationIsFuzzyHit(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Options{MaxCorrections: 1})
	require.NoError(t, m.Learn(ctx, "call mom", "call mum", 0.8))
	require.NoError(t, m.Learn(ctx, "text dad", "text dave", 0.8)) // evicts "call mom"

	got := m.Match(ctx, "call mom", "en")
	assert.Equal(t, SourceFuzzy, got.Source)
	assert.Equal(t, "call mum", got.Text)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestMatch_CatalogTiers(t *testing.T) {
	ctx := context.Background()
	m := New(nil, Options{})

	tests := []struct {
		text, locale string
		source       Source
		wantText     string
		wantLocale   string
	}{
		{"Go back", "en-US", SourceCatalog, "go back", "en"},
		{"open the inbox", "en", SourceCatalog, "open the inbox", "en"},
		{"Einstellungen öffnen", "de-DE", SourceCatalog, "einstellungen öffnen", "de"},
		{"tippe auf senden", "de-AT", SourceCatalog, "tippe auf senden", "de"},
		{"go back", "de", SourceFallback, "go back", "en"},
		{"open settings", "fr-FR", SourceFallback, "open settings", "en"},
		{"xyzzy", "en", SourceNone, "xyzzy", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.text+"/"+tt.locale, func(t *testing.T) {
			got := m.Match(ctx, tt.text, tt.locale)
			assert.Equal(t, tt.source, got.Source)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantLocale, got.Locale)
		})
	}

	assert.Equal(t, SourceNone, m.Match(ctx, "  ?! ", "en").Source)
}

func TestLearn_BumpsAndEvicts(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	m := New(st, Options{MaxCorrections: 2})

	require.NoError(t, m.Learn(ctx, "opn mail", "open mail", 0.7))
	require.NoError(t, m.Learn(ctx, "opn mail", "open mail", 0.9))
	require.NoError(t, m.Learn(ctx, "cal bob", "call bob", 0.8))
	m.Match(ctx, "opn mail", "en") // most recently used

	require.NoError(t, m.Learn(ctx, "txt amy", "text amy", 0.8))

	cs := m.Corrections()
	require.Len(t, cs, 2)
	assert.Equal(t, "txt amy", cs[0].OriginalText)
	assert.Equal(t, "opn mail", cs[1].OriginalText)
	assert.Equal(t, 2, cs[1].UseCount)
	assert.Equal(t, 0.9, cs[1].Confidence)

	_, persisted := st.corrections["cal bob"]
	assert.False(t, persisted, "evicted correction is deleted from the store")

	var vocab model.VocabularyEntry
	for _, v := range m.Vocabulary() {
		if v.Token == "open mail" {
			vocab = v
		}
	}
	assert.True(t, vocab.HasVariation("opn mail"))
	assert.Equal(t, 2, vocab.Frequency)
}

func TestLearn_Rejects(t *testing.T) {
	m := New(nil, Options{})
	assert.Error(t, m.Learn(context.Background(), "", "open", 1))
	assert.NoError(t, m.Learn(context.Background(), "Open", "open", 1))
	assert.Empty(t, m.Corrections())
}

func TestLoad_RestoresLearnedState(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	m1 := New(st, Options{})
	require.NoError(t, m1.Learn(ctx, "open setings", "open settings", 0.9))

	m2 := New(st, Options{})
	require.NoError(t, m2.Load(ctx))
	got := m2.Match(ctx, "open setings", "en")
	assert.Equal(t, SourceLearned, got.Source)
	assert.Len(t, m2.Vocabulary(), 1)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	st := newMemStore()
	m := New(st, Options{Now: clk.Now})

	require.NoError(t, m.Learn(ctx, "old one", "old", 1))
	clk.Advance(48 * time.Hour)
	require.NoError(t, m.Learn(ctx, "new one", "new", 1))

	nc, nv, err := m.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, nc)
	assert.Equal(t, 1, nv)
	require.Len(t, m.Corrections(), 1)
	assert.Equal(t, "new one", m.Corrections()[0].OriginalText)
	assert.Len(t, st.corrections, 1)
}

func TestParseCatalog_Errors(t *testing.T) {
	for name, data := range map[string]string{
		"empty":            "fallback: en\n",
		"missing fallback": "fallback: fr\nlocales:\n  en: [go back]\n",
		"bad locale":       "fallback: en\nlocales:\n  en: [go back]\n  not_a_locale!: [x]\n",
		"bad yaml":         "locales: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestCatalog_Resolve(t *testing.T) {
	c := DefaultCatalog()
	for in, want := range map[string]string{"": "en", "en-GB": "en", "de-CH": "de", "es-MX": "es"} {
		got, ok := c.Resolve(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := c.Resolve("ja")
	assert.False(t, ok)
}

func TestWatchCatalog_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fallback: en\nlocales:\n  en: [go back]\n"), 0o644))

	m := New(nil, Options{})
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	m.SetCatalog(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.WatchCatalog(ctx, path) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	assert.Equal(t, SourceNone, m.Match(ctx, "launch rockets", "en").Source)

	require.Eventually(t, func() bool {
		// Rewrite until the watcher has registered the directory.
		_ = os.WriteFile(path, []byte("fallback: en\nlocales:\n  en: [go back, launch rockets]\n"), 0o644)
		return m.Match(ctx, "launch rockets", "en").Source == SourceCatalog
	}, 5*time.Second, 200*time.Millisecond)
}
