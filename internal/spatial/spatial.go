// Package spatial answers directional and nearest-neighbour queries over the
// registered elements of a container.
package spatial

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mj1618/voxnav/internal/model"
)

// ErrUnknownReference is returned when the reference element is not
// registered.
var ErrUnknownReference = errors.New("unknown reference element")

// Direction is a screen direction relative to a reference element.
type Direction int

const (
	Left Direction = iota + 1
	Right
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// ParseDirection accepts the spoken forms of a direction.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "west":
		return Left, true
	case "right", "east":
		return Right, true
	case "up", "above", "north":
		return Up, true
	case "down", "below", "south":
		return Down, true
	}
	return 0, false
}

// Source is the part of the registry the navigator reads.
type Source interface {
	Get(ctx context.Context, identity string) (model.Element, bool, error)
	Elements(containerID string) []model.Element
}

// DefaultConeAngle is the half-angle, in degrees, of the tolerance cone
// around the search axis.
const DefaultConeAngle = 45.0

// coneEpsilon keeps elements exactly on the cone boundary inside it.
const coneEpsilon = 1e-9

// Navigator selects neighbours of a reference element.
type Navigator struct {
	src   Source
	slope float64 // max perpendicular offset per unit of axis distance
}

// New returns a Navigator over src. coneAngle is the half-angle in degrees;
// values outside (0, 90) select DefaultConeAngle.
func New(src Source, coneAngle float64) *Navigator {
	if coneAngle <= 0 || coneAngle >= 90 {
		coneAngle = DefaultConeAngle
	}
	return &Navigator{src: src, slope: math.Tan(coneAngle * math.Pi / 180)}
}

type candidate struct {
	el   model.Element
	axis float64
	perp float64
}

// better reports whether a beats b: smaller axis distance, then smaller
// perpendicular offset, then more recently seen, then identity.
func better(a, b candidate) bool {
	if a.axis != b.axis {
		return a.axis < b.axis
	}
	if a.perp != b.perp {
		return a.perp < b.perp
	}
	if !a.el.LastSeenAt.Equal(b.el.LastSeenAt) {
		return a.el.LastSeenAt.After(b.el.LastSeenAt)
	}
	return a.el.Identity < b.el.Identity
}

// NearestInDirection returns the closest interactive element in direction
// dir from the element from. When within is non-empty only those identities
// are candidates. The boolean is false when nothing lies inside the
// tolerance cone; that is not an error.
func (n *Navigator) NearestInDirection(ctx context.Context, from string, dir Direction, within ...string) (string, bool, error) {
	ref, candidates, err := n.candidates(ctx, from, within)
	if err != nil {
		return "", false, err
	}
	fx, fy := ref.Bounds.Center()

	var best *candidate
	for _, el := range candidates {
		cx, cy := el.Bounds.Center()
		var axis, perp float64
		switch dir {
		case Left:
			axis, perp = fx-cx, math.Abs(cy-fy)
		case Right:
			axis, perp = cx-fx, math.Abs(cy-fy)
		case Up:
			axis, perp = fy-cy, math.Abs(cx-fx)
		case Down:
			axis, perp = cy-fy, math.Abs(cx-fx)
		default:
			return "", false, fmt.Errorf("nearest in direction: invalid direction %d", dir)
		}
		if axis <= 0 || perp > axis*n.slope+coneEpsilon {
			continue
		}
		c := candidate{el: el, axis: axis, perp: perp}
		if best == nil || better(c, *best) {
			best = &c
		}
	}
	if best == nil {
		return "", false, nil
	}
	return best.el.Identity, true, nil
}

// Nearest returns the interactive element whose center is closest to the
// center of from, in any direction. within restricts the candidates as for
// NearestInDirection.
func (n *Navigator) Nearest(ctx context.Context, from string, within ...string) (string, bool, error) {
	ref, candidates, err := n.candidates(ctx, from, within)
	if err != nil {
		return "", false, err
	}
	fx, fy := ref.Bounds.Center()

	var best *candidate
	for _, el := range candidates {
		cx, cy := el.Bounds.Center()
		c := candidate{el: el, axis: math.Hypot(cx-fx, cy-fy)}
		if best == nil || better(c, *best) {
			best = &c
		}
	}
	if best == nil {
		return "", false, nil
	}
	return best.el.Identity, true, nil
}

// candidates returns the reference element and the interactive, visible
// elements of its container's current epoch, excluding the reference. A
// non-empty within keeps only the listed identities.
func (n *Navigator) candidates(ctx context.Context, from string, within []string) (model.Element, []model.Element, error) {
	ref, ok, err := n.src.Get(ctx, from)
	if err != nil {
		return model.Element{}, nil, err
	}
	if !ok {
		return model.Element{}, nil, fmt.Errorf("%w: %s", ErrUnknownReference, from)
	}
	var keep map[string]bool
	if len(within) > 0 {
		keep = make(map[string]bool, len(within))
		for _, id := range within {
			keep[id] = true
		}
	}
	var out []model.Element
	for _, el := range model.FilterInteractive(n.src.Elements(ref.ContainerID)) {
		if el.Identity == ref.Identity || (keep != nil && !keep[el.Identity]) {
			continue
		}
		out = append(out, el)
	}
	return ref, out, nil
}
