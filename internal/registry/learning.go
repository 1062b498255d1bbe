package registry

import (
	"context"
	"fmt"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/store"
)

// The learning store persists matcher state. The matcher owns the in-memory
// copy; the registry only mirrors it to the store with the same retry
// semantics as element writes.

// SaveCorrection persists c keyed by its original text.
func (r *Registry) SaveCorrection(ctx context.Context, c model.LearnedCorrection) error {
	return r.commit(ctx, []write{{store.BucketCorrections, c.OriginalText, encode(c)}})
}

// DeleteCorrection removes the correction for original.
func (r *Registry) DeleteCorrection(ctx context.Context, original string) error {
	return r.commit(ctx, []write{{bucket: store.BucketCorrections, key: original}})
}

// Corrections returns every persisted correction.
func (r *Registry) Corrections(ctx context.Context) ([]model.LearnedCorrection, error) {
	return scanAll[model.LearnedCorrection](ctx, r, store.BucketCorrections)
}

// SaveVocabulary persists v keyed by its token.
func (r *Registry) SaveVocabulary(ctx context.Context, v model.VocabularyEntry) error {
	return r.commit(ctx, []write{{store.BucketVocabulary, v.Token, encode(v)}})
}

// DeleteVocabulary removes the vocabulary entry for token.
func (r *Registry) DeleteVocabulary(ctx context.Context, token string) error {
	return r.commit(ctx, []write{{bucket: store.BucketVocabulary, key: token}})
}

// Vocabulary returns every persisted vocabulary entry.
func (r *Registry) Vocabulary(ctx context.Context) ([]model.VocabularyEntry, error) {
	return scanAll[model.VocabularyEntry](ctx, r, store.BucketVocabulary)
}

func scanAll[T any](ctx context.Context, r *Registry, bucket string) ([]T, error) {
	sctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()
	var out []T
	err := r.store.Scan(sctx, bucket, func(key string, value []byte) error {
		v, err := decode[T](value)
		if err != nil {
			return fmt.Errorf("decode %s/%s: %w", bucket, key, err)
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrRegistryUnavailable, bucket, err)
	}
	return out, nil
}
