package resolver

import (
	"fmt"
	"strings"

	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/spatial"
)

// Target is the closed set of ways a command can name its element.
type Target interface {
	isTarget()
	fmt.Stringer
}

// ByIdentity names an element by its identity.
type ByIdentity struct {
	Identity string
}

// ByName names an element by its visible text or description.
type ByName struct {
	Name string
}

// ByOrdinal names the Index-th visible interactive element, 1-indexed.
// Negative indexes count from the end, so -1 is the last element. A
// non-empty Role restricts the enumeration ("the second button").
type ByOrdinal struct {
	Index int
	Role  string
}

// ByDirection names the nearest element in a direction from the focus.
type ByDirection struct {
	Direction spatial.Direction
}

// ByNearest names the interactive element closest to the focus in any
// direction.
type ByNearest struct{}

// ByFocus names the focused element.
type ByFocus struct{}

func (ByIdentity) isTarget()  {}
func (ByName) isTarget()      {}
func (ByOrdinal) isTarget()   {}
func (ByDirection) isTarget() {}
func (ByNearest) isTarget()   {}
func (ByFocus) isTarget()     {}

func (t ByIdentity) String() string  { return "uuid " + t.Identity }
func (t ByName) String() string      { return fmt.Sprintf("%q", t.Name) }
func (t ByDirection) String() string { return t.Direction.String() }
func (ByNearest) String() string     { return "nearest" }
func (ByFocus) String() string       { return "focus" }

func (t ByOrdinal) String() string {
	s := fmt.Sprintf("#%d", t.Index)
	if t.Role != "" {
		s += " " + t.Role
	}
	return s
}

// Intent is a parsed command: an action and the element it targets.
type Intent struct {
	Action model.ActionKind
	Target Target
}

// String renders the intent for logs. A zero action or a missing target
// is left out rather than printed as a placeholder.
func (i Intent) String() string {
	var parts []string
	if i.Action != 0 {
		parts = append(parts, i.Action.String())
	}
	if i.Target != nil {
		parts = append(parts, i.Target.String())
	}
	return strings.Join(parts, " ")
}
