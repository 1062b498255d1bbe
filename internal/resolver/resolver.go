// Package resolver turns parsed command intents into concrete element
// identities.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/spatial"
	"github.com/mj1618/voxnav/internal/textnorm"
)

// DefaultNameThreshold is the minimum edit-distance similarity for a name
// that is not contained in an element label.
const DefaultNameThreshold = 0.7

// Registry is the part of the element registry the resolver reads.
type Registry interface {
	Get(ctx context.Context, identity string) (model.Element, bool, error)
	Elements(containerID string) []model.Element
	CurrentEpoch(containerID string) int
	IsStale(el model.Element) bool
}

// Navigator finds spatial neighbours among the identities in within.
type Navigator interface {
	NearestInDirection(ctx context.Context, from string, dir spatial.Direction, within ...string) (string, bool, error)
	Nearest(ctx context.Context, from string, within ...string) (string, bool, error)
}

// View is what the user currently sees: the active container epoch, the
// visible elements in document order and the focused element.
type View struct {
	ContainerID string
	Epoch       int
	Visible     []string
	Focused     string
	Generation  uint64
}

// ViewSource supplies the current view.
type ViewSource interface {
	View() View
}

// StaticView is a ViewSource that always returns the same view.
type StaticView View

func (v StaticView) View() View { return View(v) }

// Options configures a Resolver.
type Options struct {
	NameThreshold float64
}

// Resolver resolves intents against the registry and the current view.
type Resolver struct {
	reg       Registry
	nav       Navigator
	views     ViewSource
	threshold float64
}

// New returns a Resolver.
func New(reg Registry, nav Navigator, views ViewSource, opts Options) *Resolver {
	if opts.NameThreshold <= 0 || opts.NameThreshold > 1 {
		opts.NameThreshold = DefaultNameThreshold
	}
	return &Resolver{reg: reg, nav: nav, views: views, threshold: opts.NameThreshold}
}

// ResolveAction resolves in and pairs the identity with the intent's action.
func (r *Resolver) ResolveAction(ctx context.Context, in Intent) (model.ResolvedAction, error) {
	id, err := r.Resolve(ctx, in)
	if err != nil {
		return model.ResolvedAction{}, err
	}
	return model.ResolvedAction{Action: in.Action, TargetIdentity: id}, nil
}

// Resolve returns the identity of the element in targets. Failures are
// *ResolveError values that unwrap to ErrUnresolvable, ErrAmbiguousTarget,
// ErrStaleIdentity or ErrMalformedCommand; store outages surface as the
// registry's own error.
func (r *Resolver) Resolve(ctx context.Context, in Intent) (string, error) {
	if err := checkContext(ctx); err != nil {
		return "", err
	}
	var (
		id  string
		err error
	)
	switch t := in.Target.(type) {
	case ByIdentity:
		id, err = r.byIdentity(ctx, t)
	case ByName:
		id, err = r.byName(t)
	case ByOrdinal:
		id, err = r.byOrdinal(ctx, t)
	case ByDirection:
		id, err = r.byDirection(ctx, t)
	case ByNearest:
		id, err = r.byNearest(ctx)
	case ByFocus:
		id, err = r.byFocus(ctx, in.Action)
	case nil:
		return "", newError(ErrMalformedCommand, "intent has no target")
	default:
		return "", newError(ErrMalformedCommand, "unsupported target %T", t)
	}
	if err != nil {
		return "", err
	}
	if err := checkContext(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Resolver) byIdentity(ctx context.Context, t ByIdentity) (string, error) {
	el, ok, err := r.reg.Get(ctx, t.Identity)
	if !ok {
		if err != nil {
			return "", err
		}
		return "", newError(ErrUnresolvable, "no element %s", t.Identity)
	}
	if r.reg.IsStale(el) {
		return "", newError(ErrStaleIdentity, "%s belongs to epoch %d, %s is at epoch %d",
			t.Identity, el.Epoch, el.ContainerID, r.reg.CurrentEpoch(el.ContainerID))
	}
	return el.Identity, nil
}

// view returns the current view, failing if it predates the container's
// current epoch.
func (r *Resolver) view() (View, error) {
	v := r.views.View()
	if v.ContainerID == "" {
		return v, newError(ErrUnresolvable, "no active view")
	}
	if cur := r.reg.CurrentEpoch(v.ContainerID); v.Epoch != 0 && v.Epoch < cur {
		return v, newError(ErrStaleIdentity, "view of %s is from epoch %d, container is at epoch %d",
			v.ContainerID, v.Epoch, cur)
	}
	return v, nil
}

type nameMatch struct {
	el    model.Element
	exact bool
	score float64
}

// rank orders name matches: exact first, then higher similarity, then
// interactive over static, then most recently seen. Zero means a tie.
func rank(a, b nameMatch) int {
	switch {
	case a.exact != b.exact:
		return boolRank(a.exact)
	case a.score != b.score:
		if a.score > b.score {
			return -1
		}
		return 1
	case a.el.Flags.Interactive() != b.el.Flags.Interactive():
		return boolRank(a.el.Flags.Interactive())
	case !a.el.LastSeenAt.Equal(b.el.LastSeenAt):
		if a.el.LastSeenAt.After(b.el.LastSeenAt) {
			return -1
		}
		return 1
	}
	return 0
}

func boolRank(first bool) int {
	if first {
		return -1
	}
	return 1
}

func (r *Resolver) byName(t ByName) (string, error) {
	name := textnorm.Normalize(t.Name)
	if name == "" {
		return "", newError(ErrMalformedCommand, "empty name")
	}
	v, err := r.view()
	if err != nil {
		return "", err
	}

	onScreen := make(map[string]bool, len(v.Visible))
	for _, id := range v.Visible {
		onScreen[id] = true
	}
	var matches []nameMatch
	for _, el := range r.reg.Elements(v.ContainerID) {
		if !onScreen[el.Identity] {
			continue
		}
		m := nameMatch{el: el}
		for _, field := range []string{el.Text, el.Description} {
			f := textnorm.Normalize(field)
			if f == "" {
				continue
			}
			if f == name {
				m.exact, m.score = true, 1
				break
			}
			s := textnorm.Containment(name, f)
			if s == 0 {
				if ratio := textnorm.Ratio(name, f); ratio >= r.threshold {
					s = ratio
				}
			}
			m.score = max(m.score, s)
		}
		if m.exact || m.score > 0 {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return "", newError(ErrUnresolvable, "nothing named %q on screen", t.Name)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if c := rank(matches[i], matches[j]); c != 0 {
			return c < 0
		}
		return matches[i].el.Identity < matches[j].el.Identity
	})
	best := matches[0]
	tied := []string{best.el.Identity}
	for _, m := range matches[1:] {
		if rank(best, m) != 0 {
			break
		}
		tied = append(tied, m.el.Identity)
	}
	if len(tied) > 1 {
		return "", &ResolveError{Kind: ErrAmbiguousTarget, Detail: fmt.Sprintf("name %q", t.Name), Candidates: tied}
	}
	return best.el.Identity, nil
}

// Enumerate returns the visible interactive elements of the view in
// document order, optionally restricted to role. This is the list ordinal
// commands count over.
func (r *Resolver) Enumerate(ctx context.Context, role string) ([]model.Element, error) {
	v, err := r.view()
	if err != nil {
		return nil, err
	}
	var out []model.Element
	for _, id := range v.Visible {
		el, ok, err := r.reg.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok || r.reg.IsStale(el) {
			continue
		}
		if !el.Flags.Interactive() || el.Bounds.Empty() {
			continue
		}
		if role != "" && el.Role != role {
			continue
		}
		out = append(out, el)
	}
	return out, nil
}

func (r *Resolver) byOrdinal(ctx context.Context, t ByOrdinal) (string, error) {
	if t.Index == 0 {
		return "", newError(ErrMalformedCommand, "ordinals start at 1")
	}
	list, err := r.Enumerate(ctx, t.Role)
	if err != nil {
		return "", err
	}
	i := t.Index - 1
	if t.Index < 0 {
		i = len(list) + t.Index
	}
	if i < 0 || i >= len(list) {
		return "", newError(ErrUnresolvable, "ordinal %d out of range, %d visible", t.Index, len(list))
	}
	return list[i].Identity, nil
}

func (r *Resolver) byDirection(ctx context.Context, t ByDirection) (string, error) {
	v, err := r.view()
	if err != nil {
		return "", err
	}
	if v.Focused == "" {
		return "", newError(ErrUnresolvable, "no focused element to move %s from", t.Direction)
	}
	if len(v.Visible) == 0 {
		return "", newError(ErrUnresolvable, "nothing on screen")
	}
	id, ok, err := r.nav.NearestInDirection(ctx, v.Focused, t.Direction, v.Visible...)
	if errors.Is(err, spatial.ErrUnknownReference) {
		return "", newError(ErrUnresolvable, "focused element %s is not registered", v.Focused)
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return "", newError(ErrUnresolvable, "nothing %s of the focused element", t.Direction)
	}
	return id, nil
}

func (r *Resolver) byNearest(ctx context.Context) (string, error) {
	v, err := r.view()
	if err != nil {
		return "", err
	}
	if v.Focused == "" {
		return "", newError(ErrUnresolvable, "no focused element to search around")
	}
	if len(v.Visible) == 0 {
		return "", newError(ErrUnresolvable, "nothing on screen")
	}
	id, ok, err := r.nav.Nearest(ctx, v.Focused, v.Visible...)
	if errors.Is(err, spatial.ErrUnknownReference) {
		return "", newError(ErrUnresolvable, "focused element %s is not registered", v.Focused)
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return "", newError(ErrUnresolvable, "nothing near the focused element")
	}
	return id, nil
}

func (r *Resolver) byFocus(ctx context.Context, action model.ActionKind) (string, error) {
	v, err := r.view()
	if err != nil {
		return "", err
	}
	if v.Focused != "" {
		el, ok, err := r.reg.Get(ctx, v.Focused)
		if err != nil {
			return "", err
		}
		if ok && !r.reg.IsStale(el) {
			return el.Identity, nil
		}
	}
	if action == model.ActionScrollUp || action == model.ActionScrollDown {
		for _, id := range v.Visible {
			el, ok, err := r.reg.Get(ctx, id)
			if err != nil {
				return "", err
			}
			if ok && el.Flags.Scrollable && !el.Bounds.Empty() {
				return el.Identity, nil
			}
		}
		return "", newError(ErrUnresolvable, "nothing scrollable on screen")
	}
	return "", newError(ErrUnresolvable, "no focused element")
}
