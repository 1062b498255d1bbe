// Package matcher maps raw recognized command text to a known command. It
// tries, in order: corrections learned from earlier confirmed commands,
// fuzzy matching against the vocabulary and catalog, an exact catalog match
// for the requested locale, and the catalog of the fallback locale.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mj1618/voxnav/internal/keylock"
	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/textnorm"
	"go.uber.org/zap"
)

// Source identifies the tier that produced a match.
type Source int

const (
	SourceNone Source = iota
	SourceLearned
	SourceFuzzy
	SourceCatalog
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceLearned:
		return "learned"
	case SourceFuzzy:
		return "fuzzy"
	case SourceCatalog:
		return "catalog"
	case SourceFallback:
		return "fallback"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(text []byte) error {
	for src := SourceNone; src <= SourceFallback; src++ {
		if src.String() == string(text) {
			*s = src
			return nil
		}
	}
	return fmt.Errorf("unknown match source %q", text)
}

// MatchResult is the outcome of Match. For SourceNone, Text is the
// normalized input and Confidence is 0.
type MatchResult struct {
	Text       string  `yaml:"text"             json:"text"`
	Source     Source  `yaml:"source"           json:"source"`
	Confidence float64 `yaml:"confidence"       json:"confidence"`
	Locale     string  `yaml:"locale,omitempty" json:"locale,omitempty"`
}

// Store persists learned state. The registry implements it.
type Store interface {
	SaveCorrection(ctx context.Context, c model.LearnedCorrection) error
	DeleteCorrection(ctx context.Context, original string) error
	Corrections(ctx context.Context) ([]model.LearnedCorrection, error)
	SaveVocabulary(ctx context.Context, v model.VocabularyEntry) error
	DeleteVocabulary(ctx context.Context, token string) error
	Vocabulary(ctx context.Context) ([]model.VocabularyEntry, error)
}

// DefaultFuzzyThreshold is the minimum similarity a fuzzy match needs.
const DefaultFuzzyThreshold = 0.85

// Options configures a Matcher. Zero values select the defaults.
type Options struct {
	FuzzyThreshold float64
	MaxCorrections int
	MaxVocabulary  int
	Catalog        *Catalog
	Logger         *zap.Logger
	Now            func() time.Time
}

type correctionEntry struct {
	c    model.LearnedCorrection
	tick atomic.Uint64
}

type vocabEntry struct {
	v    model.VocabularyEntry
	tick atomic.Uint64
}

// Matcher is safe for concurrent use. Matching takes only read locks.
type Matcher struct {
	store Store
	opts  Options
	log   *zap.Logger

	catalog atomic.Pointer[Catalog]
	locks   *keylock.Striped
	clock   atomic.Uint64

	cmu         sync.RWMutex
	corrections map[string]*correctionEntry

	vmu   sync.RWMutex
	vocab map[string]*vocabEntry
}

// New returns a Matcher. st may be nil, in which case learned state lives
// only in memory.
func New(st Store, opts Options) *Matcher {
	if opts.FuzzyThreshold <= 0 || opts.FuzzyThreshold > 1 {
		opts.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if opts.MaxCorrections <= 0 {
		opts.MaxCorrections = 1000
	}
	if opts.MaxVocabulary <= 0 {
		opts.MaxVocabulary = 5000
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Matcher{
		store:       st,
		opts:        opts,
		log:         opts.Logger.Named("matcher"),
		locks:       keylock.New(0),
		corrections: make(map[string]*correctionEntry),
		vocab:       make(map[string]*vocabEntry),
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	m.catalog.Store(opts.Catalog)
	return m
}

// SetCatalog atomically replaces the catalog.
func (m *Matcher) SetCatalog(c *Catalog) {
	if c != nil {
		m.catalog.Store(c)
	}
}

// Catalog returns the current catalog.
func (m *Matcher) Catalog() *Catalog {
	return m.catalog.Load()
}

// Match maps rawText to a known command for locale.
func (m *Matcher) Match(ctx context.Context, rawText, locale string) MatchResult {
	text := textnorm.Normalize(rawText)
	if text == "" {
		return MatchResult{Source: SourceNone, Locale: locale}
	}

	if c, ok := m.lookupCorrection(text); ok {
		return MatchResult{Text: c.CorrectedText, Source: SourceLearned, Confidence: c.Confidence, Locale: locale}
	}

	cat := m.catalog.Load()
	key, keyOK := cat.Resolve(locale)

	if r, ok := m.fuzzy(text, cat, key, keyOK); ok {
		r.Locale = locale
		return r
	}

	if keyOK && cat.Lookup(text, key) {
		return MatchResult{Text: text, Source: SourceCatalog, Confidence: 1, Locale: key}
	}
	if fb := cat.Fallback(); (!keyOK || key != fb) && cat.Lookup(text, fb) {
		return MatchResult{Text: text, Source: SourceFallback, Confidence: 1, Locale: fb}
	}

	m.log.Debug("no match", zap.String("text", text), zap.String("locale", locale))
	return MatchResult{Text: text, Source: SourceNone, Locale: locale}
}

func (m *Matcher) lookupCorrection(text string) (model.LearnedCorrection, bool) {
	m.cmu.RLock()
	e, ok := m.corrections[text]
	m.cmu.RUnlock()
	if !ok {
		return model.LearnedCorrection{}, false
	}
	e.tick.Store(m.clock.Add(1))
	return e.c, true
}

// fuzzyTarget is a phrase a fuzzy match may produce; spelling is the form
// compared against, which for vocabulary variations differs from text.
type fuzzyTarget struct {
	text     string
	spelling string
}

// candidates returns the phrases fuzzy matching compares against: the
// vocabulary with its known variations and the exact catalog phrases of the
// resolved and fallback locales.
func (m *Matcher) candidates(cat *Catalog, key string, keyOK bool) ([]fuzzyTarget, map[string]bool) {
	var out []fuzzyTarget
	words := make(map[string]bool)

	m.vmu.RLock()
	for token, e := range m.vocab {
		out = append(out, fuzzyTarget{token, token})
		for _, v := range e.v.Variations {
			out = append(out, fuzzyTarget{token, v})
		}
		if !strings.Contains(token, " ") {
			words[token] = true
		}
	}
	m.vmu.RUnlock()

	locales := []string{cat.Fallback()}
	if keyOK && key != cat.Fallback() {
		locales = append(locales, key)
	}
	for _, k := range locales {
		for _, p := range cat.Phrases(k) {
			out = append(out, fuzzyTarget{p, p})
		}
		for w := range cat.Words(k) {
			words[w] = true
		}
	}
	return out, words
}

// fuzzy compares the whole text against known phrases, then word by word
// against known words. Text that is already a known phrase falls through
// so the catalog tiers can claim it.
func (m *Matcher) fuzzy(text string, cat *Catalog, key string, keyOK bool) (MatchResult, bool) {
	targets, words := m.candidates(cat, key, keyOK)

	var best fuzzyTarget
	bestScore := 0.0
	for _, t := range targets {
		if t.spelling == text && t.text == text {
			return MatchResult{}, false
		}
		score := textnorm.Ratio(text, t.spelling)
		if score > bestScore || (score == bestScore && t.text < best.text) {
			best, bestScore = t, score
		}
	}
	if bestScore >= m.opts.FuzzyThreshold {
		return MatchResult{Text: best.text, Source: SourceFuzzy, Confidence: bestScore}, true
	}

	tokens := strings.Fields(text)
	if len(tokens) < 2 {
		return MatchResult{}, false
	}
	confidence, replaced := 1.0, 0
	for i, tok := range tokens {
		if words[tok] {
			continue
		}
		var bestWord string
		bestWordScore := 0.0
		for w := range words {
			score := textnorm.Ratio(tok, w)
			if score > bestWordScore || (score == bestWordScore && w < bestWord) {
				bestWord, bestWordScore = w, score
			}
		}
		if bestWordScore < m.opts.FuzzyThreshold {
			return MatchResult{}, false
		}
		tokens[i] = bestWord
		confidence = min(confidence, bestWordScore)
		replaced++
	}
	if replaced == 0 {
		return MatchResult{}, false
	}
	return MatchResult{Text: strings.Join(tokens, " "), Source: SourceFuzzy, Confidence: confidence}, true
}
