package model

import (
	"fmt"
	"strconv"
)

// FlattenNodes converts a tree of nodes into a flat list of snapshots in
// document order. Refs are assigned sequentially ("1", "2", ...) and each
// child carries its parent's ref.
func FlattenNodes(nodes []Node) []Snapshot {
	var result []Snapshot
	next := 0
	for _, n := range nodes {
		flattenRecursive(n, "", &next, &result)
	}
	return result
}

func flattenRecursive(n Node, parentRef string, next *int, result *[]Snapshot) {
	*next++
	ref := strconv.Itoa(*next)
	*result = append(*result, Snapshot{
		Ref:         ref,
		ParentRef:   parentRef,
		Role:        n.Role,
		Text:        n.Text,
		Description: n.Description,
		Bounds:      n.Bounds,
		Flags:       n.Flags,
		Focused:     n.Focused,
	})
	for _, child := range n.Children {
		flattenRecursive(child, ref, next, result)
	}
}

// Normalize fills in Depth, Index, Order and Path for a flat snapshot list.
// Order is the position in document order. Path is the ancestor chain of
// role[sibling-index] segments joined with " > ", which gives non-text
// controls a stable structural identity. Elements whose ParentRef is unknown
// are treated as roots. Raw platform classes are mapped to role codes. The
// input slice is not modified.
func Normalize(snaps []Snapshot) []Snapshot {
	out := make([]Snapshot, len(snaps))
	copy(out, snaps)

	byRef := make(map[string]int, len(out))
	for i := range out {
		if out[i].Ref == "" {
			out[i].Ref = strconv.Itoa(i + 1)
		}
		out[i].Role = MapRole(out[i].Role)
		byRef[out[i].Ref] = i
	}

	children := make(map[string][]int, len(out))
	var roots []int
	for i := range out {
		if _, ok := byRef[out[i].ParentRef]; ok && out[i].ParentRef != out[i].Ref {
			children[out[i].ParentRef] = append(children[out[i].ParentRef], i)
			continue
		}
		out[i].ParentRef = ""
		roots = append(roots, i)
	}

	order := 0
	visited := make([]bool, len(out))
	var walk func(idx []int, depth int, parentPath string)
	walk = func(idx []int, depth int, parentPath string) {
		for sibling, i := range idx {
			if visited[i] {
				continue
			}
			visited[i] = true
			s := &out[i]
			s.Depth = depth
			s.Index = sibling
			s.Order = order
			order++
			seg := fmt.Sprintf("%s[%d]", s.Role, sibling)
			if parentPath != "" {
				s.Path = parentPath + " > " + seg
			} else {
				s.Path = seg
			}
			walk(children[s.Ref], depth+1, s.Path)
		}
	}
	walk(roots, 0, "")

	// Anything left over sits on a parent cycle; keep it reachable as a root.
	for i := range out {
		if !visited[i] {
			out[i].ParentRef = ""
			walk([]int{i}, 0, "")
		}
	}

	sorted := make([]Snapshot, len(out))
	for _, s := range out {
		sorted[s.Order] = s
	}
	return sorted
}
