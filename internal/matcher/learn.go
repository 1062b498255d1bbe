package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/textnorm"
	"go.uber.org/zap"
)

// maxObservedWords bounds the length of screen labels added to the
// vocabulary by Observe.
const maxObservedWords = 4

// Learn records that original was confirmed to mean corrected. It upserts
// the correction, bumps its use count, evicts the least recently used
// correction when full and adds original as a variation of the corrected
// vocabulary entry. Persistence failures are returned but the in-memory
// state is always updated.
func (m *Matcher) Learn(ctx context.Context, original, corrected string, confidence float64) error {
	o, c := textnorm.Normalize(original), textnorm.Normalize(corrected)
	if o == "" || c == "" {
		return fmt.Errorf("learn: empty text")
	}
	if o == c {
		return nil
	}
	confidence = min(max(confidence, 0), 1)
	now := m.opts.Now().UTC()

	unlock := m.locks.Lock(o)
	defer unlock()

	m.cmu.Lock()
	lc := model.LearnedCorrection{OriginalText: o, CorrectedText: c, Confidence: confidence, LastUsedAt: now}
	if prev, ok := m.corrections[o]; ok {
		lc.UseCount = prev.c.UseCount
		if prev.c.CorrectedText == c {
			lc.Confidence = max(prev.c.Confidence, confidence)
		}
	}
	lc.UseCount++
	ne := &correctionEntry{c: lc}
	ne.tick.Store(m.clock.Add(1))
	m.corrections[o] = ne
	evicted := m.evictCorrectionsLocked()
	m.cmu.Unlock()

	ve, vEvicted := m.addVocabulary(c, o, now)

	if m.store == nil {
		return nil
	}
	var errs []error
	if err := m.store.SaveCorrection(ctx, lc); err != nil {
		errs = append(errs, err)
	}
	for _, e := range evicted {
		if err := m.store.DeleteCorrection(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.store.SaveVocabulary(ctx, ve); err != nil {
		errs = append(errs, err)
	}
	for _, t := range vEvicted {
		if err := m.store.DeleteVocabulary(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		m.log.Warn("learned state not persisted", zap.String("original", o), zap.Error(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}

// evictCorrectionsLocked removes least recently used corrections beyond the
// bound and returns their keys. m.cmu must be held.
func (m *Matcher) evictCorrectionsLocked() []string {
	var evicted []string
	for len(m.corrections) > m.opts.MaxCorrections {
		var oldestKey string
		var oldest uint64
		for k, e := range m.corrections {
			if t := e.tick.Load(); oldestKey == "" || t < oldest {
				oldestKey, oldest = k, t
			}
		}
		delete(m.corrections, oldestKey)
		evicted = append(evicted, oldestKey)
	}
	return evicted
}

// addVocabulary bumps token and records variation (if non-empty). It
// returns the updated entry and the tokens evicted to stay in bounds.
func (m *Matcher) addVocabulary(token, variation string, now time.Time) (model.VocabularyEntry, []string) {
	m.vmu.Lock()
	defer m.vmu.Unlock()

	v := model.VocabularyEntry{Token: token}
	if prev, ok := m.vocab[token]; ok {
		v = prev.v
		v.Variations = append([]string(nil), prev.v.Variations...)
	}
	if variation != "" && variation != token && !v.HasVariation(variation) {
		v.Variations = append(v.Variations, variation)
	}
	v.Frequency++
	v.LastSeenAt = now
	ne := &vocabEntry{v: v}
	ne.tick.Store(m.clock.Add(1))
	m.vocab[token] = ne

	var evicted []string
	for len(m.vocab) > m.opts.MaxVocabulary {
		var oldestKey string
		var oldest uint64
		for k, e := range m.vocab {
			if t := e.tick.Load(); oldestKey == "" || t < oldest {
				oldestKey, oldest = k, t
			}
		}
		delete(m.vocab, oldestKey)
		evicted = append(evicted, oldestKey)
	}
	return v, evicted
}

// Observe grows the vocabulary from text seen on screen. Labels longer than
// a few words are skipped. Only entries that did not exist before are
// persisted.
func (m *Matcher) Observe(ctx context.Context, texts ...string) error {
	now := m.opts.Now().UTC()
	var errs []error
	for _, raw := range texts {
		t := textnorm.Normalize(raw)
		if t == "" || len(strings.Fields(t)) > maxObservedWords {
			continue
		}
		m.vmu.RLock()
		_, known := m.vocab[t]
		m.vmu.RUnlock()

		v, evicted := m.addVocabulary(t, "", now)
		if m.store == nil || known {
			continue
		}
		if err := m.store.SaveVocabulary(ctx, v); err != nil {
			errs = append(errs, err)
		}
		for _, e := range evicted {
			if err := m.store.DeleteVocabulary(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Prune removes corrections not used and vocabulary not seen within maxAge.
// It returns the number of corrections and vocabulary entries removed.
func (m *Matcher) Prune(ctx context.Context, maxAge time.Duration) (int, int, error) {
	if maxAge <= 0 {
		return 0, 0, nil
	}
	cutoff := m.opts.Now().UTC().Add(-maxAge)

	var corrections, tokens []string
	m.cmu.Lock()
	for k, e := range m.corrections {
		if e.c.LastUsedAt.Before(cutoff) {
			delete(m.corrections, k)
			corrections = append(corrections, k)
		}
	}
	m.cmu.Unlock()

	m.vmu.Lock()
	for k, e := range m.vocab {
		if e.v.LastSeenAt.Before(cutoff) {
			delete(m.vocab, k)
			tokens = append(tokens, k)
		}
	}
	m.vmu.Unlock()

	var errs []error
	if m.store != nil {
		for _, k := range corrections {
			if err := m.store.DeleteCorrection(ctx, k); err != nil {
				errs = append(errs, err)
			}
		}
		for _, k := range tokens {
			if err := m.store.DeleteVocabulary(ctx, k); err != nil {
				errs = append(errs, err)
			}
		}
	}
	m.log.Info("pruned learned state", zap.Int("corrections", len(corrections)), zap.Int("vocabulary", len(tokens)))
	return len(corrections), len(tokens), errors.Join(errs...)
}

// Load restores corrections and vocabulary from the store. Entries are
// ranked for eviction by when they were last used.
func (m *Matcher) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	cs, err := m.store.Corrections(ctx)
	if err != nil {
		return fmt.Errorf("loading corrections: %w", err)
	}
	vs, err := m.store.Vocabulary(ctx)
	if err != nil {
		return fmt.Errorf("loading vocabulary: %w", err)
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].LastUsedAt.Before(cs[j].LastUsedAt) })
	sort.Slice(vs, func(i, j int) bool { return vs[i].LastSeenAt.Before(vs[j].LastSeenAt) })

	m.cmu.Lock()
	for _, c := range cs {
		e := &correctionEntry{c: c}
		e.tick.Store(m.clock.Add(1))
		m.corrections[c.OriginalText] = e
	}
	m.evictCorrectionsLocked()
	m.cmu.Unlock()

	m.vmu.Lock()
	for _, v := range vs {
		e := &vocabEntry{v: v}
		e.tick.Store(m.clock.Add(1))
		m.vocab[v.Token] = e
	}
	m.vmu.Unlock()

	m.log.Info("learned state loaded", zap.Int("corrections", len(cs)), zap.Int("vocabulary", len(vs)))
	return nil
}

// Corrections returns the learned corrections, most recently used first.
func (m *Matcher) Corrections() []model.LearnedCorrection {
	m.cmu.RLock()
	type ranked struct {
		c    model.LearnedCorrection
		tick uint64
	}
	rs := make([]ranked, 0, len(m.corrections))
	for _, e := range m.corrections {
		rs = append(rs, ranked{e.c, e.tick.Load()})
	}
	m.cmu.RUnlock()
	sort.Slice(rs, func(i, j int) bool { return rs[i].tick > rs[j].tick })
	out := make([]model.LearnedCorrection, len(rs))
	for i, r := range rs {
		out[i] = r.c
	}
	return out
}

// Vocabulary returns the vocabulary sorted by token.
func (m *Matcher) Vocabulary() []model.VocabularyEntry {
	m.vmu.RLock()
	out := make([]model.VocabularyEntry, 0, len(m.vocab))
	for _, e := range m.vocab {
		out = append(out, e.v)
	}
	m.vmu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}
