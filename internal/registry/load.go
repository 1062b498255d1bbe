package registry

import (
	"context"
	"sort"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/store"
	"go.uber.org/zap"
)

// Load warms the cache from the store: containers, screens and elements.
// Elements are ranked for LRU by when they were last seen.
func (r *Registry) Load(ctx context.Context) error {
	containers, err := scanAll[model.Container](ctx, r, store.BucketContainers)
	if err != nil {
		return err
	}
	screens, err := scanAll[model.Screen](ctx, r, store.BucketScreens)
	if err != nil {
		return err
	}
	elements, err := scanAll[model.Element](ctx, r, store.BucketElements)
	if err != nil {
		return err
	}
	sort.Slice(elements, func(i, j int) bool {
		return elements[i].LastSeenAt.Before(elements[j].LastSeenAt)
	})

	r.mu.Lock()
	for _, c := range containers {
		r.containers[c.ID] = c
	}
	for i := range screens {
		s := screens[i]
		r.screens[screenKey(s.ContainerID, s.Fingerprint)] = &s
	}
	r.mu.Unlock()

	for _, el := range elements {
		sh := r.shardFor(el.Identity)
		sh.mu.Lock()
		if _, ok := sh.elements[el.Identity]; !ok {
			e := &entry{el: el}
			e.tick.Store(r.clock.Add(1))
			sh.elements[el.Identity] = e
		}
		sh.mu.Unlock()
	}

	r.mu.Lock()
	for _, el := range elements {
		if el.Lineage == "" {
			continue
		}
		cur, ok := r.lineage[el.Lineage]
		if !ok {
			r.lineage[el.Lineage] = el.Identity
			continue
		}
		if ce, ok := r.lookup(cur); ok && ce.el.Epoch < el.Epoch {
			r.lineage[el.Lineage] = el.Identity
		}
	}
	r.mu.Unlock()

	r.log.Info("registry loaded",
		zap.Int("containers", len(containers)),
		zap.Int("screens", len(screens)),
		zap.Int("elements", len(elements)))
	return nil
}
