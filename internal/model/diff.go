package model

import "fmt"

// ChangeType represents the kind of change between two scans.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
	ChangeChanged ChangeType = "changed"
)

// Change is a single element difference between two scans of a container.
type Change struct {
	Type     ChangeType           `yaml:"type"              json:"type"`
	Identity string               `yaml:"id"                json:"id"`
	Role     string               `yaml:"r,omitempty"       json:"r,omitempty"`
	Label    string               `yaml:"label,omitempty"   json:"label,omitempty"`
	Fields   map[string][2]string `yaml:"fields,omitempty"  json:"fields,omitempty"`
}

// ScanDiff is the result of comparing two scans by identity.
type ScanDiff struct {
	Added          []Change `yaml:"added,omitempty"   json:"added,omitempty"`
	Removed        []Change `yaml:"removed,omitempty" json:"removed,omitempty"`
	Changed        []Change `yaml:"changed,omitempty" json:"changed,omitempty"`
	UnchangedCount int      `yaml:"unchanged_count"   json:"unchanged_count"`
}

// Empty reports whether the two scans were identical.
func (d ScanDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffScans compares two element lists keyed by identity. Role, text and
// description are part of the identity, so a matched pair can only differ
// in mutable properties: exact bounds, flags, and tree position.
func DiffScans(prev, curr []Element) ScanDiff {
	prevByID := make(map[string]Element, len(prev))
	for _, el := range prev {
		prevByID[el.Identity] = el
	}
	currByID := make(map[string]struct{}, len(curr))
	for _, el := range curr {
		currByID[el.Identity] = struct{}{}
	}

	var diff ScanDiff
	for _, el := range curr {
		p, existed := prevByID[el.Identity]
		if !existed {
			diff.Added = append(diff.Added, Change{Type: ChangeAdded, Identity: el.Identity, Role: el.Role, Label: el.Label()})
			continue
		}
		if fields := diffProperties(p, el); fields != nil {
			diff.Changed = append(diff.Changed, Change{Type: ChangeChanged, Identity: el.Identity, Role: el.Role, Label: el.Label(), Fields: fields})
		} else {
			diff.UnchangedCount++
		}
	}
	for _, el := range prev {
		if _, ok := currByID[el.Identity]; !ok {
			diff.Removed = append(diff.Removed, Change{Type: ChangeRemoved, Identity: el.Identity, Role: el.Role, Label: el.Label()})
		}
	}
	return diff
}

// diffProperties compares the mutable properties of two elements that share
// an identity.
func diffProperties(prev, curr Element) map[string][2]string {
	diffs := make(map[string][2]string)
	if prev.Bounds != curr.Bounds {
		diffs["b"] = [2]string{fmt.Sprintf("%v", prev.Bounds), fmt.Sprintf("%v", curr.Bounds)}
	}
	if prev.Flags != curr.Flags {
		diffs["flags"] = [2]string{prev.Flags.String(), curr.Flags.String()}
	}
	if prev.ParentIdentity != curr.ParentIdentity {
		diffs["parent"] = [2]string{prev.ParentIdentity, curr.ParentIdentity}
	}
	if prev.Order != curr.Order {
		diffs["order"] = [2]string{fmt.Sprint(prev.Order), fmt.Sprint(curr.Order)}
	}
	if len(diffs) == 0 {
		return nil
	}
	return diffs
}
