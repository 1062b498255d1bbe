package registry

import (
	"context"
	"sort"
	"time"

	"github.com/mj1618/voxnav/internal/store"
	"go.uber.org/zap"
)

// PrunePolicy bounds the registry. Elements not seen for longer than MaxAge
// are removed first; then the least recently used elements are removed
// until at most MaxElements remain. Zero fields disable their bound.
type PrunePolicy struct {
	MaxElements int
	MaxAge      time.Duration
}

type pruneCandidate struct {
	identity string
	lineage  string
	entry    *entry
	tick     uint64
	seen     time.Time
}

// Prune evicts elements according to policy and returns how many were
// removed.
func (r *Registry) Prune(ctx context.Context, policy PrunePolicy) (int, error) {
	var all []pruneCandidate
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for id, e := range sh.elements {
			all = append(all, pruneCandidate{
				identity: id,
				lineage:  e.el.Lineage,
				entry:    e,
				tick:     e.tick.Load(),
				seen:     e.el.LastSeenAt,
			})
		}
		sh.mu.RUnlock()
	}

	var victims, keep []pruneCandidate
	if policy.MaxAge > 0 {
		cutoff := r.now().Add(-policy.MaxAge)
		for _, c := range all {
			if c.seen.Before(cutoff) {
				victims = append(victims, c)
			} else {
				keep = append(keep, c)
			}
		}
	} else {
		keep = all
	}
	if policy.MaxElements > 0 && len(keep) > policy.MaxElements {
		sort.Slice(keep, func(i, j int) bool { return keep[i].tick < keep[j].tick })
		excess := len(keep) - policy.MaxElements
		victims = append(victims, keep[:excess]...)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	var ws []write
	removed := make(map[string]string, len(victims))
	for _, v := range victims {
		sh := r.shardFor(v.identity)
		sh.mu.Lock()
		// Skip entries republished since the scan.
		if cur, ok := sh.elements[v.identity]; ok && cur == v.entry {
			delete(sh.elements, v.identity)
			removed[v.identity] = v.lineage
			ws = append(ws, write{bucket: store.BucketElements, key: v.identity})
		}
		sh.mu.Unlock()
	}

	r.mu.Lock()
	for id, lin := range removed {
		if r.lineage[lin] == id {
			delete(r.lineage, lin)
		}
	}
	r.mu.Unlock()

	r.log.Info("pruned elements", zap.Int("removed", len(removed)), zap.Int("remaining", r.Len()))
	return len(removed), r.commit(ctx, ws)
}
