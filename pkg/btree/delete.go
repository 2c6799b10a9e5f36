// ABOUTME: Remove and the destroy/merge cascade
// ABOUTME: implements spec.md §4.4's deletion algorithm

package btree

import (
	"bytes"

	"github.com/kbolino/blinkkv/pkg/page"
)

// Remove deletes key, returning its former data pointer, or
// ErrKeyNotExists if absent.
func (t *Tree) Remove(key []byte) (int64, error) {
	n, err := t.lockLeafForRemove(key)
	if err != nil {
		return 0, err
	}
	defer n.Mu.Unlock()

	n.bodyMu.Lock()
	idx := binarySearch(n.Keys, key)
	if idx < 0 {
		n.bodyMu.Unlock()
		return 0, ErrKeyNotExists
	}
	ptr := n.Pointers[idx]
	n.Keys = removeKeyAt(n.Keys, idx)
	n.Pointers = removePtrAt(n.Pointers, idx)
	n.MarkDirty()

	isRoot := n.ID() == t.rootID()
	empty := len(n.Keys) == 0 && !isRoot
	needMerge := !empty && !isRoot && n.needMerge(t.cfg)
	n.bodyMu.Unlock()

	switch {
	case empty:
		if err := t.destroy(n); err != nil {
			return ptr, err
		}
	case needMerge:
		if err := t.merge(n); err != nil {
			return ptr, err
		}
	}
	return ptr, nil
}

// lockLeafForRemove mirrors lockLeafForInsert's descent and redirect logic.
func (t *Tree) lockLeafForRemove(key []byte) (*Node, error) {
	n, err := t.getNode(t.rootID(), page.NullID)
	if err != nil {
		return nil, err
	}
	for {
		n.bodyMu.RLock()
		if n.Next != page.NullID && len(n.HighKey) > 0 && bytes.Compare(key, n.HighKey) > 0 {
			next, parent := n.Next, n.Parent
			n.bodyMu.RUnlock()
			n, err = t.getNode(next, parent)
			if err != nil {
				return nil, err
			}
			continue
		}
		if n.Type() == page.Leaf {
			n.bodyMu.RUnlock()
			n.Mu.Lock()
			n.bodyMu.RLock()
			redirect := n.Next != page.NullID && len(n.HighKey) > 0 && bytes.Compare(key, n.HighKey) > 0
			next, parent := n.Next, n.Parent
			n.bodyMu.RUnlock()
			if redirect {
				n.Mu.Unlock()
				n, err = t.getNode(next, parent)
				if err != nil {
					return nil, err
				}
				continue
			}
			return n, nil
		}

		idx := binarySearch(n.Keys, key)
		var pos int
		if idx >= 0 {
			pos = idx + 1
		} else {
			pos = -(idx + 1)
		}
		childID, parent := n.Pointers[pos], n.ID()
		n.bodyMu.RUnlock()
		n, err = t.getNode(childID, parent)
		if err != nil {
			return nil, err
		}
	}
}

// destroy removes n's pointer from its parent, unlinks it from the
// sibling chain, and returns its page to the free list (spec.md §4.4).
// The root is never destroyed this way — Remove only calls destroy on
// non-root nodes.
func (t *Tree) destroy(n *Node) error {
	n.bodyMu.RLock()
	parentID, prevID, nextID := n.Parent, n.Prev, n.Next
	n.bodyMu.RUnlock()

	if _, err := t.demote(parentID, n.ID()); err != nil {
		return err
	}

	if prevID != page.NullID {
		if p, err := t.getNode(prevID, page.NullID); err == nil {
			p.bodyMu.Lock()
			p.Next = nextID
			p.MarkDirty()
			p.bodyMu.Unlock()
		}
	}
	if nextID != page.NullID {
		if nx, err := t.getNode(nextID, page.NullID); err == nil {
			nx.bodyMu.Lock()
			nx.Prev = prevID
			nx.MarkDirty()
			nx.bodyMu.Unlock()
		}
	}

	return t.destroyNode(n)
}
