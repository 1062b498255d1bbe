package model

import "time"

// Snapshot is one element as observed by the UI-tree provider. Ref and
// ParentRef are provider-local handles that are only meaningful inside a
// single batch.
type Snapshot struct {
	Ref         string `yaml:"ref"                   json:"ref"`
	ParentRef   string `yaml:"parent,omitempty"      json:"parent,omitempty"`
	Role        string `yaml:"r"                     json:"r"`
	Text        string `yaml:"t,omitempty"           json:"t,omitempty"`
	Description string `yaml:"d,omitempty"           json:"d,omitempty"`
	Bounds      Bounds `yaml:"b"                     json:"b"`
	Flags       Flags  `yaml:"flags,omitempty"       json:"flags,omitempty"`
	AppID       string `yaml:"app,omitempty"         json:"app,omitempty"`
	AppVersion  string `yaml:"version,omitempty"     json:"version,omitempty"`
	Focused     bool   `yaml:"f,omitempty"           json:"f,omitempty"`

	// Filled in by Normalize.
	Depth int    `yaml:"depth,omitempty" json:"depth,omitempty"`
	Index int    `yaml:"index,omitempty" json:"index,omitempty"`
	Order int    `yaml:"order,omitempty" json:"order,omitempty"`
	Path  string `yaml:"path,omitempty"  json:"path,omitempty"`
}

// Decorative reports whether the snapshot carries no text, no description
// and no interactive capability.
func (s Snapshot) Decorative() bool {
	return s.Text == "" && s.Description == "" && !s.Flags.Interactive()
}

// Node is the nested form of a snapshot, as written in replay files.
type Node struct {
	Role        string `yaml:"r"                json:"r"`
	Text        string `yaml:"t,omitempty"      json:"t,omitempty"`
	Description string `yaml:"d,omitempty"      json:"d,omitempty"`
	Bounds      Bounds `yaml:"b"                json:"b"`
	Flags       Flags  `yaml:"flags,omitempty"  json:"flags,omitempty"`
	Focused     bool   `yaml:"f,omitempty"      json:"f,omitempty"`
	Children    []Node `yaml:"c,omitempty"      json:"c,omitempty"`
}

// Batch is the full element set of one observed UI change for a container.
type Batch struct {
	ID         string     `yaml:"id,omitempty"        json:"id,omitempty"`
	AppID      string     `yaml:"app"                 json:"app"`
	AppVersion string     `yaml:"version,omitempty"   json:"version,omitempty"`
	TitleHint  string     `yaml:"title,omitempty"     json:"title,omitempty"`
	ObservedAt time.Time  `yaml:"ts,omitempty"        json:"ts,omitempty"`
	Elements   []Snapshot `yaml:"elements,omitempty"  json:"elements,omitempty"`
	Tree       []Node     `yaml:"tree,omitempty"      json:"tree,omitempty"`
}

// Snapshots returns the batch as a normalized flat list. Tree-form batches
// are flattened first; container attributes are copied onto every element.
func (b Batch) Snapshots() []Snapshot {
	snaps := b.Elements
	if len(b.Tree) > 0 {
		snaps = FlattenNodes(b.Tree)
	}
	out := make([]Snapshot, len(snaps))
	for i, s := range snaps {
		if s.AppID == "" {
			s.AppID = b.AppID
		}
		if s.AppVersion == "" {
			s.AppVersion = b.AppVersion
		}
		out[i] = s
	}
	return Normalize(out)
}
