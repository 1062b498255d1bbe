package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/mj1618/voxnav/internal/model"
)

// DefaultTopK is the default number of elements that contribute to a screen
// fingerprint.
const DefaultTopK = 10

// ScreenFingerprinter computes screen identities from a bounded, ordered
// subset of the screen's elements.
type ScreenFingerprinter struct {
	// TopK bounds how many non-decorative elements are hashed. Zero means
	// DefaultTopK.
	TopK int
}

// Fingerprint identifies the logical screen shown by elements. Decorative
// elements are dropped, the rest are ordered by depth (document order
// breaks ties) and only the first K contribute. Bounds and values are not
// hashed, so scrolling and typing do not change the fingerprint. With no
// elements the result depends only on containerID and titleHint.
func (f ScreenFingerprinter) Fingerprint(containerID, titleHint string, elements []model.Snapshot) string {
	k := f.TopK
	if k <= 0 {
		k = DefaultTopK
	}

	kept := model.DropDecorative(elements)
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Depth != kept[j].Depth {
			return kept[i].Depth < kept[j].Depth
		}
		return kept[i].Order < kept[j].Order
	})
	if len(kept) > k {
		kept = kept[:k]
	}

	var b strings.Builder
	b.WriteString(containerID)
	b.WriteString("|")
	b.WriteString(titleHint)
	for _, s := range kept {
		fmt.Fprintf(&b, "\n%s:%s:%s:%s", s.Role, s.Text, s.Description, s.Flags)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum[:16])
}
