package registry

import (
	"context"
	"maps"
	"sort"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/store"
)

func screenKey(containerID, fp string) string {
	return containerID + "|" + fp
}

func cloneScreen(s *model.Screen) model.Screen {
	out := *s
	out.Transitions = maps.Clone(s.Transitions)
	return out
}

// RecordScreen counts a visit to the screen with fingerprint fp. When from
// names a different screen of the same container, the transition from it is
// counted too. The returned flag is true for a first visit.
func (r *Registry) RecordScreen(ctx context.Context, containerID, titleHint, fp, from string) (model.Screen, bool, error) {
	now := r.now()
	var ws []write

	r.mu.Lock()
	key := screenKey(containerID, fp)
	s, ok := r.screens[key]
	if !ok {
		s = &model.Screen{
			Fingerprint: fp,
			ContainerID: containerID,
			TitleHint:   titleHint,
			FirstSeenAt: now,
		}
		r.screens[key] = s
	}
	s.VisitCount++
	s.LastVisitedAt = now
	if titleHint != "" {
		s.TitleHint = titleHint
	}
	ws = append(ws, write{store.BucketScreens, key, encode(s)})

	if from != "" && from != fp {
		if prev, ok := r.screens[screenKey(containerID, from)]; ok {
			if prev.Transitions == nil {
				prev.Transitions = make(map[string]int)
			}
			prev.Transitions[fp]++
			ws = append(ws, write{store.BucketScreens, screenKey(containerID, from), encode(prev)})
		}
	}
	out := cloneScreen(s)
	r.mu.Unlock()

	return out, !ok, r.commit(ctx, ws)
}

// Screen returns the screen of containerID with fingerprint fp.
func (r *Registry) Screen(containerID, fp string) (model.Screen, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.screens[screenKey(containerID, fp)]
	if !ok {
		return model.Screen{}, false
	}
	return cloneScreen(s), true
}

// Screens returns the known screens of containerID, most recently visited
// first. An empty containerID returns every screen.
func (r *Registry) Screens(containerID string) []model.Screen {
	r.mu.RLock()
	var out []model.Screen
	for _, s := range r.screens {
		if containerID == "" || s.ContainerID == containerID {
			out = append(out, cloneScreen(s))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastVisitedAt.Equal(out[j].LastVisitedAt) {
			return out[i].LastVisitedAt.After(out[j].LastVisitedAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}
