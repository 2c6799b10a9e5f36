// ABOUTME: demote, merge, and the root-collapse cascade
// ABOUTME: implements spec.md §4.4's merge algorithm

package btree

import "github.com/kbolino/blinkkv/pkg/page"

// demote removes childID's pointer and its adjoining separator key from
// parentID, recursing into destroy/merge/collapse if the parent is now
// empty or under-filled (spec.md §4.4 "Demote"). Returns the removed
// separator key.
func (t *Tree) demote(parentID page.ID, childID page.ID) ([]byte, error) {
	parent, err := t.getNode(parentID, page.NullID)
	if err != nil {
		return nil, err
	}
	parent.Mu.Lock()

	parent.bodyMu.Lock()
	idx := -1
	for i, p := range parent.Pointers {
		if p == int64(childID) {
			idx = i
			break
		}
	}
	if idx < 0 {
		parent.bodyMu.Unlock()
		parent.Mu.Unlock()
		return nil, ErrChildNotExists
	}

	var sep []byte
	if idx == 0 {
		sep = parent.Keys[0]
		parent.Keys = removeKeyAt(parent.Keys, 0)
	} else {
		sep = parent.Keys[idx-1]
		parent.Keys = removeKeyAt(parent.Keys, idx-1)
	}
	parent.Pointers = removePtrAt(parent.Pointers, idx)
	parent.MarkDirty()

	isRoot := parent.ID() == t.rootID()
	collapse := isRoot && len(parent.Pointers) == 1
	empty := !isRoot && len(parent.Pointers) == 0
	needMerge := !isRoot && !empty && parent.needMerge(t.cfg)
	parent.bodyMu.Unlock()

	var recErr error
	switch {
	case collapse:
		recErr = t.collapseRoot(parent)
	case empty:
		recErr = t.destroy(parent)
	case needMerge:
		recErr = t.merge(parent)
	}
	parent.Mu.Unlock()
	return sep, recErr
}

// merge combines n with a mergeable neighbor sharing its parent —
// preferring prev, else next — per spec.md §4.4 "Merge". If no neighbor
// qualifies, n is left under-filled (a transient state spec.md §3 allows
// outside a structural op... here, simply until a future insert/remove
// revisits the node).
func (t *Tree) merge(n *Node) error {
	n.bodyMu.RLock()
	prevID, nextID, parentID := n.Prev, n.Next, n.Parent
	n.bodyMu.RUnlock()

	var left, right *Node
	if prevID != page.NullID {
		if p, err := t.getNode(prevID, page.NullID); err == nil {
			p.bodyMu.RLock()
			ok := p.Parent == parentID && p.needMerge(t.cfg)
			p.bodyMu.RUnlock()
			if ok {
				left, right = p, n
			}
		}
	}
	if left == nil && nextID != page.NullID {
		if nx, err := t.getNode(nextID, page.NullID); err == nil {
			nx.bodyMu.RLock()
			ok := nx.Parent == parentID && nx.needMerge(t.cfg)
			nx.bodyMu.RUnlock()
			if ok {
				left, right = n, nx
			}
		}
	}
	if left == nil {
		return nil
	}
	t.hooks.NodeMerge()

	sep, err := t.demote(parentID, right.ID())
	if err != nil {
		return err
	}

	left.bodyMu.Lock()
	right.bodyMu.RLock()
	if left.Type() == page.Leaf {
		left.Keys = append(left.Keys, right.Keys...)
		left.Pointers = append(left.Pointers, right.Pointers...)
	} else {
		combined := make([][]byte, 0, len(left.Keys)+1+len(right.Keys))
		combined = append(combined, left.Keys...)
		combined = append(combined, sep)
		combined = append(combined, right.Keys...)
		left.Keys = combined
		left.Pointers = append(left.Pointers, right.Pointers...)
	}
	left.HighKey = right.HighKey
	left.Next = right.Next
	left.MarkDirty()
	rightNext := right.Next
	right.bodyMu.RUnlock()
	left.bodyMu.Unlock()

	if rightNext != page.NullID {
		if rn, err := t.getNode(rightNext, page.NullID); err == nil {
			rn.bodyMu.Lock()
			rn.Prev = left.ID()
			rn.MarkDirty()
			rn.bodyMu.Unlock()
		}
	}

	return t.destroyNode(right)
}

// collapseRoot absorbs the root's single remaining child into the root
// page itself, keeping the root's id stable — the delete-side mirror of
// splitRootInPlace.
func (t *Tree) collapseRoot(root *Node) error {
	root.bodyMu.RLock()
	childID := page.ID(root.Pointers[0])
	root.bodyMu.RUnlock()

	child, err := t.getNode(childID, page.NullID)
	if err != nil {
		return err
	}

	child.bodyMu.Lock()
	childType := child.Type()
	keys := child.Keys
	ptrs := child.Pointers
	child.bodyMu.Unlock()

	root.bodyMu.Lock()
	root.SetType(childType)
	root.Keys = keys
	root.Pointers = ptrs
	root.HighKey = nil
	root.Prev = page.NullID
	root.Next = page.NullID
	root.MarkDirty()
	root.bodyMu.Unlock()

	return t.destroyNode(child)
}
