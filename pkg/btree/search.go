// ABOUTME: binary search and the B-link high-key right-traversal rule
// ABOUTME: implements spec.md §4.4's Find

package btree

import (
	"bytes"

	"github.com/kbolino/blinkkv/pkg/page"
)

// binarySearch returns the index of an exact match, or -(low+1) on miss,
// where low is the insertion position that keeps keys sorted (spec.md
// §4.4).
func binarySearch(keys [][]byte, key []byte) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		cmp := bytes.Compare(keys[mid], key)
		switch {
		case cmp == 0:
			return mid
		case cmp < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -(lo + 1)
}

// Find maps key to its leaf data pointer, or ErrKeyNotExists on miss.
func (t *Tree) Find(key []byte) (int64, error) {
	n, err := t.getNode(t.rootID(), page.NullID)
	if err != nil {
		return 0, err
	}
	for {
		n.bodyMu.RLock()

		if n.Next != page.NullID && len(n.HighKey) > 0 && bytes.Compare(key, n.HighKey) > 0 {
			next, parent := n.Next, n.Parent
			n.bodyMu.RUnlock()
			sib, err := t.getNode(next, parent)
			if err != nil {
				return 0, err
			}
			n = sib
			continue
		}

		idx := binarySearch(n.Keys, key)
		if n.Type() == page.Leaf {
			defer n.bodyMu.RUnlock()
			if idx < 0 {
				return 0, ErrKeyNotExists
			}
			return n.Pointers[idx], nil
		}

		var pos int
		if idx >= 0 {
			pos = idx + 1
		} else {
			pos = -(idx + 1)
		}
		childID, parent := n.Pointers[pos], n.ID()
		n.bodyMu.RUnlock()

		child, err := t.getNode(childID, parent)
		if err != nil {
			return 0, err
		}
		n = child
	}
}
