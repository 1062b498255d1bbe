package model

import (
	"fmt"
	"time"
)

// Bounds is a screen rectangle in pixels.
type Bounds struct {
	X      int `yaml:"x"      json:"x"`
	Y      int `yaml:"y"      json:"y"`
	Width  int `yaml:"w"      json:"w"`
	Height int `yaml:"h"      json:"h"`
}

// Center returns the center point of the rectangle.
func (b Bounds) Center() (float64, float64) {
	return float64(b.X) + float64(b.Width)/2, float64(b.Y) + float64(b.Height)/2
}

// Empty reports whether the rectangle has zero area (off-screen or virtualized).
func (b Bounds) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Quantize snaps every coordinate down to a multiple of step so that
// sub-pixel jitter between reads does not change the value.
func (b Bounds) Quantize(step int) Bounds {
	if step <= 1 {
		return b
	}
	q := func(v int) int {
		if v < 0 {
			return -((-v + step - 1) / step) * step
		}
		return (v / step) * step
	}
	return Bounds{X: q(b.X), Y: q(b.Y), Width: q(b.Width), Height: q(b.Height)}
}

// Flags are the interactive capabilities reported by the accessibility layer.
type Flags struct {
	Clickable     bool `yaml:"clickable,omitempty"      json:"clickable,omitempty"`
	LongClickable bool `yaml:"long_clickable,omitempty" json:"long_clickable,omitempty"`
	Scrollable    bool `yaml:"scrollable,omitempty"     json:"scrollable,omitempty"`
	Focusable     bool `yaml:"focusable,omitempty"      json:"focusable,omitempty"`
}

// Interactive reports whether any capability is set.
func (f Flags) Interactive() bool {
	return f.Clickable || f.LongClickable || f.Scrollable || f.Focusable
}

// String renders the flags as a fixed-width code, e.g. "cl--" for a
// clickable, long-clickable element.
func (f Flags) String() string {
	b := []byte("----")
	if f.Clickable {
		b[0] = 'c'
	}
	if f.LongClickable {
		b[1] = 'l'
	}
	if f.Scrollable {
		b[2] = 's'
	}
	if f.Focusable {
		b[3] = 'f'
	}
	return string(b)
}

// Element is a registry record for one observed UI element. Elements are
// owned by the registry; the identity is always derived from the element's
// attributes and never assigned by callers.
type Element struct {
	Identity        string    `yaml:"id"                     json:"id"`
	ContainerID     string    `yaml:"container"              json:"container"`
	Epoch           int       `yaml:"epoch"                  json:"epoch"`
	Lineage         string    `yaml:"lineage,omitempty"      json:"lineage,omitempty"`
	Supersedes      string    `yaml:"supersedes,omitempty"   json:"supersedes,omitempty"`
	Role            string    `yaml:"r"                      json:"r"`
	Text            string    `yaml:"t,omitempty"            json:"t,omitempty"`
	Description     string    `yaml:"d,omitempty"            json:"d,omitempty"`
	Bounds          Bounds    `yaml:"b"                      json:"b"`
	Flags           Flags     `yaml:"flags,omitempty"        json:"flags,omitempty"`
	ParentIdentity  string    `yaml:"parent,omitempty"       json:"parent,omitempty"`
	ChildIdentities []string  `yaml:"children,omitempty"     json:"children,omitempty"`
	Depth           int       `yaml:"depth"                  json:"depth"`
	Order           int       `yaml:"order"                  json:"order"`
	FirstSeenAt     time.Time `yaml:"first_seen"             json:"first_seen"`
	LastSeenAt      time.Time `yaml:"last_seen"              json:"last_seen"`
	UseCount        int       `yaml:"uses,omitempty"         json:"uses,omitempty"`
	LastUsedAt      time.Time `yaml:"last_used,omitempty"    json:"last_used,omitempty"`
}

// Label returns the best human-facing label: text, then description.
func (e Element) Label() string {
	if e.Text != "" {
		return e.Text
	}
	return e.Description
}

// Decorative reports whether the element carries no text, no description
// and no interactive capability.
func (e Element) Decorative() bool {
	return e.Text == "" && e.Description == "" && !e.Flags.Interactive()
}

// ActionKind is the gesture a resolved command asks the executor to perform.
type ActionKind int

const (
	ActionClick ActionKind = iota + 1
	ActionLongClick
	ActionScrollUp
	ActionScrollDown
	ActionFocus
)

func (a ActionKind) String() string {
	switch a {
	case ActionClick:
		return "click"
	case ActionLongClick:
		return "long-click"
	case ActionScrollUp:
		return "scroll-up"
	case ActionScrollDown:
		return "scroll-down"
	case ActionFocus:
		return "focus"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a ActionKind) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *ActionKind) UnmarshalText(text []byte) error {
	for k := ActionClick; k <= ActionFocus; k++ {
		if k.String() == string(text) {
			*a = k
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", text)
}

// ResolvedAction is what the core hands to the external action executor.
type ResolvedAction struct {
	Action         ActionKind `yaml:"action"  json:"action"`
	TargetIdentity string     `yaml:"target"  json:"target"`
}
