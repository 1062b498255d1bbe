package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/store"
	"go.uber.org/zap"
)

// Upsert records a single observed element and returns its identity. The
// parent is resolved through the refs of the container's most recent burst.
// A non-nil error wrapping ErrRegistryUnavailable means the element is
// cached but not yet persisted.
func (r *Registry) Upsert(ctx context.Context, s model.Snapshot) (string, error) {
	ids, err := r.upsert(ctx, []model.Snapshot{s}, false)
	if len(ids) == 0 {
		return "", err
	}
	return ids[0], err
}

// UpsertTree records one complete burst of snapshots for a container and
// returns their identities in input order. Child lists of every element in
// the burst are rebuilt from it, and the whole burst is persisted in one
// transaction.
func (r *Registry) UpsertTree(ctx context.Context, snaps []model.Snapshot) ([]string, error) {
	return r.upsert(ctx, snaps, true)
}

func refKey(containerID, ref string) string {
	return containerID + "\x00" + ref
}

func (r *Registry) upsert(ctx context.Context, snaps []model.Snapshot, full bool) ([]string, error) {
	if len(snaps) == 0 {
		return nil, nil
	}
	now := r.now()
	var soft error

	epochs := make(map[string]int)
	for _, s := range snaps {
		if s.AppID == "" {
			return nil, fmt.Errorf("upsert: snapshot %q has no container id", s.Ref)
		}
		if _, ok := epochs[s.AppID]; ok {
			continue
		}
		c, err := r.ObserveContainer(ctx, s.AppID, s.AppVersion)
		if err != nil {
			if !errors.Is(err, ErrRegistryUnavailable) {
				return nil, err
			}
			soft = err
		}
		epochs[s.AppID] = c.Epoch
	}

	ids := make([]string, len(snaps))
	last := make(map[string]int, len(snaps))
	burstRefs := make(map[string]string, len(snaps))
	for i, s := range snaps {
		ids[i] = r.fp.Fingerprint(s, s.AppID, epochs[s.AppID])
		last[ids[i]] = i
		if s.Ref != "" {
			burstRefs[refKey(s.AppID, s.Ref)] = ids[i]
		}
	}

	parents := make([]string, len(snaps))
	children := make(map[string][]string)
	external := make(map[string][]string)
	r.mu.RLock()
	for i, s := range snaps {
		if s.ParentRef == "" {
			continue
		}
		p, ok := burstRefs[refKey(s.AppID, s.ParentRef)]
		if !ok {
			p = r.refs[s.AppID][s.ParentRef]
		}
		if p == "" || p == ids[i] {
			continue
		}
		parents[i] = p
		if _, inBurst := last[p]; inBurst {
			if !slices.Contains(children[p], ids[i]) {
				children[p] = append(children[p], ids[i])
			}
		} else {
			external[p] = append(external[p], ids[i])
		}
	}
	r.mu.RUnlock()

	var ws []write
	published := make([]model.Element, 0, len(last))
	for i, s := range snaps {
		id := ids[i]
		if last[id] != i {
			continue
		}
		el := model.Element{
			Identity:       id,
			ContainerID:    s.AppID,
			Epoch:          epochs[s.AppID],
			Lineage:        r.fp.Lineage(s, s.AppID),
			Role:           s.Role,
			Text:           s.Text,
			Description:    s.Description,
			Bounds:         s.Bounds,
			Flags:          s.Flags,
			ParentIdentity: parents[i],
			Depth:          s.Depth,
			Order:          s.Order,
			FirstSeenAt:    now,
			LastSeenAt:     now,
		}

		unlock := r.locks.Lock(id)
		if prev, ok := r.lookup(id); ok {
			el.FirstSeenAt = prev.el.FirstSeenAt
			el.UseCount = prev.el.UseCount
			el.LastUsedAt = prev.el.LastUsedAt
			el.Supersedes = prev.el.Supersedes
			if full {
				el.ChildIdentities = children[id]
			} else {
				el.ChildIdentities = slices.Clone(prev.el.ChildIdentities)
			}
		} else {
			el.ChildIdentities = children[id]
			if pred, ok := r.predecessor(el); ok {
				el.FirstSeenAt = pred.FirstSeenAt
				el.UseCount = pred.UseCount
				el.LastUsedAt = pred.LastUsedAt
				el.Supersedes = pred.Identity
			}
		}
		r.publish(el, true)
		unlock()

		published = append(published, el)
		ws = append(ws, write{store.BucketElements, id, encodeElement(el)})
	}

	for p, kids := range external {
		if el, ok := r.adopt(p, kids); ok {
			ws = append(ws, write{store.BucketElements, p, encodeElement(el)})
		}
	}

	r.mu.Lock()
	for _, el := range published {
		r.lineage[el.Lineage] = el.Identity
	}
	if full {
		for cid := range epochs {
			r.refs[cid] = make(map[string]string)
		}
	}
	for i, s := range snaps {
		if s.Ref == "" {
			continue
		}
		if r.refs[s.AppID] == nil {
			r.refs[s.AppID] = make(map[string]string)
		}
		r.refs[s.AppID][s.Ref] = ids[i]
	}
	r.mu.Unlock()

	if err := r.commit(ctx, ws); err != nil {
		soft = err
	}
	r.log.Debug("upserted elements", zap.Int("elements", len(published)), zap.Bool("burst", full))

	if r.Len() > r.opts.MaxElements {
		if _, err := r.Prune(ctx, PrunePolicy{MaxElements: r.opts.MaxElements, MaxAge: r.opts.MaxAge}); err != nil {
			soft = err
		}
	}
	return ids, soft
}

// predecessor returns the element from an earlier epoch that el continues,
// found through its lineage.
func (r *Registry) predecessor(el model.Element) (model.Element, bool) {
	r.mu.RLock()
	pid, ok := r.lineage[el.Lineage]
	r.mu.RUnlock()
	if !ok || pid == el.Identity {
		return model.Element{}, false
	}
	e, ok := r.lookup(pid)
	if !ok || e.el.Epoch >= el.Epoch {
		return model.Element{}, false
	}
	return e.el, true
}

// adopt appends kids to the child list of a parent outside the current
// burst.
func (r *Registry) adopt(parent string, kids []string) (model.Element, bool) {
	unlock := r.locks.Lock(parent)
	defer unlock()
	e, ok := r.lookup(parent)
	if !ok {
		return model.Element{}, false
	}
	el := cloneElement(e.el)
	changed := false
	for _, k := range kids {
		if !slices.Contains(el.ChildIdentities, k) {
			el.ChildIdentities = append(el.ChildIdentities, k)
			changed = true
		}
	}
	if !changed {
		return model.Element{}, false
	}
	r.publish(el, false)
	return el, true
}

// Touch records one successful use of identity.
func (r *Registry) Touch(ctx context.Context, identity string) error {
	if _, ok, err := r.Get(ctx, identity); !ok {
		if err != nil {
			return err
		}
		return fmt.Errorf("touch %s: %w", identity, ErrUnknownIdentity)
	}

	unlock := r.locks.Lock(identity)
	e, ok := r.lookup(identity)
	if !ok {
		unlock()
		return fmt.Errorf("touch %s: %w", identity, ErrUnknownIdentity)
	}
	el := cloneElement(e.el)
	el.UseCount++
	el.LastUsedAt = r.now()
	r.publish(el, true)
	unlock()

	return r.commit(ctx, []write{{store.BucketElements, identity, encodeElement(el)}})
}

// CurrentEpoch returns the epoch of containerID, or 0 if it was never
// observed.
func (r *Registry) CurrentEpoch(containerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.containers[containerID].Epoch
}

// Container returns the recorded state of containerID.
func (r *Registry) Container(containerID string) (model.Container, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.containers[containerID]
	return c, ok
}

// Containers returns every known container sorted by id.
func (r *Registry) Containers() []model.Container {
	r.mu.RLock()
	out := make([]model.Container, 0, len(r.containers))
	for _, c := range r.containers {
		out = append(out, c)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Container) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ObserveContainer registers a sighting of containerID at version. The first
// sighting opens epoch 1; a different non-empty version opens the next epoch
// and remaps the previous one.
func (r *Registry) ObserveContainer(ctx context.Context, containerID, version string) (model.Container, error) {
	unlock := r.locks.Lock("container\x00" + containerID)
	defer unlock()

	r.mu.Lock()
	c, ok := r.containers[containerID]
	switch {
	case !ok:
		c = model.Container{ID: containerID, Version: version, Epoch: 1}
		r.containers[containerID] = c
		r.mu.Unlock()
		r.log.Info("new container", zap.String("container", containerID), zap.String("version", version))
		return c, r.commit(ctx, []write{{store.BucketContainers, containerID, encode(c)}})
	case version != "" && version != c.Version:
		old := c.Epoch
		c.Version = version
		r.containers[containerID] = c
		r.mu.Unlock()
		if _, err := r.RemapEpoch(ctx, containerID, old, old+1); err != nil {
			c, _ = r.Container(containerID)
			return c, err
		}
		c, _ = r.Container(containerID)
		return c, nil
	default:
		r.mu.Unlock()
		return c, nil
	}
}

// RemapEpoch moves containerID from oldEpoch to newEpoch. Entries of the old
// epoch are kept but become stale; elements observed again in the new epoch
// continue them through their lineage. It returns the number of entries
// that became stale.
func (r *Registry) RemapEpoch(ctx context.Context, containerID string, oldEpoch, newEpoch int) (int, error) {
	if newEpoch <= oldEpoch {
		return 0, fmt.Errorf("remap %s: new epoch %d must be greater than %d", containerID, newEpoch, oldEpoch)
	}

	r.mu.Lock()
	c, ok := r.containers[containerID]
	if !ok {
		c = model.Container{ID: containerID}
	}
	if c.Epoch > oldEpoch && c.Epoch >= newEpoch {
		r.mu.Unlock()
		return 0, nil
	}
	c.Epoch = newEpoch
	r.containers[containerID] = c
	delete(r.refs, containerID)
	r.mu.Unlock()

	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, e := range sh.elements {
			if e.el.ContainerID == containerID && e.el.Epoch == oldEpoch {
				n++
			}
		}
		sh.mu.RUnlock()
	}

	r.log.Info("container epoch remapped",
		zap.String("container", containerID),
		zap.Int("from", oldEpoch), zap.Int("to", newEpoch), zap.Int("stale", n))
	return n, r.commit(ctx, []write{{store.BucketContainers, containerID, encode(c)}})
}
