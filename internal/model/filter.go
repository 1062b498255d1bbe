package model

import "strings"

// DropDecorative returns only the snapshots that carry text, a description
// or an interactive capability. Purely structural containers are removed;
// the order of the remaining snapshots is preserved.
func DropDecorative(snaps []Snapshot) []Snapshot {
	result := make([]Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.Decorative() {
			continue
		}
		result = append(result, s)
	}
	return result
}

// FilterByText returns the elements whose text or description contains the
// given text (case-insensitive).
func FilterByText(elements []Element, text string) []Element {
	if text == "" {
		return elements
	}
	textLower := strings.ToLower(text)
	var result []Element
	for _, el := range elements {
		if TextMatches(el, textLower) {
			result = append(result, el)
		}
	}
	return result
}

// TextMatches reports whether the element's text or description contains
// textLower, which must already be lower-cased.
func TextMatches(el Element, textLower string) bool {
	return strings.Contains(strings.ToLower(el.Text), textLower) ||
		strings.Contains(strings.ToLower(el.Description), textLower)
}

// FilterInteractive returns the elements that have at least one interactive
// flag and a non-empty on-screen rectangle.
func FilterInteractive(elements []Element) []Element {
	var result []Element
	for _, el := range elements {
		if el.Flags.Interactive() && !el.Bounds.Empty() {
			result = append(result, el)
		}
	}
	return result
}
