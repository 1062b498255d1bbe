// Package fingerprint derives deterministic identities for UI elements and
// whole screens from their structural and content attributes.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/mj1618/voxnav/internal/model"
)

// DefaultQuantum is the default bounds quantization step in pixels.
const DefaultQuantum = 8

// namespace scopes element identities so they never collide with UUIDs
// minted for other purposes.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("voxnav:element"))

// ElementFingerprinter computes element identities.
type ElementFingerprinter struct {
	// Quantum is the grid step bounds are snapped to before hashing.
	// Zero means DefaultQuantum.
	Quantum int
}

// Fingerprint returns the identity of s within the given container epoch.
// The identity is a name-based UUID over
// "container@epoch | role | quantized-bounds | content-hash".
func (f ElementFingerprinter) Fingerprint(s model.Snapshot, containerID string, epoch int) string {
	payload := containerID + "@" + strconv.Itoa(epoch) + "|" + f.body(s)
	return uuid.NewSHA1(namespace, []byte(payload)).String()
}

// Lineage returns the epoch-independent fingerprint of s. Two elements in
// different epochs of the same container share a lineage when nothing but
// the epoch differs.
func (f ElementFingerprinter) Lineage(s model.Snapshot, containerID string) string {
	return uuid.NewSHA1(namespace, []byte(containerID+"|"+f.body(s))).String()
}

func (f ElementFingerprinter) body(s model.Snapshot) string {
	q := f.Quantum
	if q <= 0 {
		q = DefaultQuantum
	}
	b := s.Bounds.Quantize(q)
	return fmt.Sprintf("%s|%d,%d,%d,%d|%s", s.Role, b.X, b.Y, b.Width, b.Height, ContentHash(s))
}

// ContentHash hashes an element's text and description. When both are
// empty it hashes the structural path instead, so icon-only controls still
// get distinct identities.
func ContentHash(s model.Snapshot) string {
	h := sha256.New()
	if s.Text == "" && s.Description == "" {
		fmt.Fprintf(h, "path:%s", s.Path)
	} else {
		fmt.Fprintf(h, "text:%s\x1fdesc:%s", s.Text, s.Description)
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
