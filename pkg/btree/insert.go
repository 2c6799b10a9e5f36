// ABOUTME: Add and the split cascade (non-root split, root split-in-place, promote)
// ABOUTME: implements spec.md §4.4's insertion algorithm

package btree

import (
	"bytes"

	"github.com/kbolino/blinkkv/pkg/page"
)

// Add maps key to ptr, returning ErrKeyExists if key is already present.
func (t *Tree) Add(key []byte, ptr int64) error {
	n, err := t.lockLeafForInsert(key)
	if err != nil {
		return err
	}
	defer n.Mu.Unlock()
	return t.addToNode(n, key, ptr)
}

// lockLeafForInsert traverses to the leaf that should hold key, following
// sibling redirects both during the lock-free descent and after taking the
// structural lock (spec.md §4.4, §5: a splitter updates its own high key
// before exposing its sibling, so a redirect discovered under the lock is
// always consistent).
func (t *Tree) lockLeafForInsert(key []byte) (*Node, error) {
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
			// re-check after acquiring the structural lock: a split may
			// have redirected key to a new sibling in the meantime.
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

// addToNode inserts key/ptr into the already-locked leaf n, splitting if
// the resulting node needs it.
func (t *Tree) addToNode(n *Node, key []byte, ptr int64) error {
	n.bodyMu.Lock()
	idx := binarySearch(n.Keys, key)
	if idx >= 0 {
		n.bodyMu.Unlock()
		return ErrKeyExists
	}
	pos := -(idx + 1)
	n.Keys = insertKeyAt(n.Keys, pos, key)
	n.Pointers = insertPtrAt(n.Pointers, pos, ptr)
	n.MarkDirty()
	needSplit := n.needSplit(t.cfg)
	n.bodyMu.Unlock()

	if !needSplit {
		return nil
	}
	return t.split(n)
}

// split performs a non-root split (spec.md §4.4 "Split (non-root)") unless
// n is the root, in which case it promotes in place. The caller must hold
// n.Mu.
func (t *Tree) split(n *Node) error {
	t.hooks.NodeSplit()
	if n.ID() == t.rootID() {
		return t.splitRootInPlace(n)
	}

	n.bodyMu.Lock()
	isLeaf := n.Type() == page.Leaf
	m := len(n.Keys) / 2

	var sepKey []byte
	var rightKeys [][]byte
	var rightPtrs []int64
	if isLeaf {
		rightKeys = append([][]byte{}, n.Keys[m:]...)
		rightPtrs = append([]int64{}, n.Pointers[m:]...)
		sepKey = append([]byte{}, rightKeys[0]...)
		n.Keys = n.Keys[:m]
		n.Pointers = n.Pointers[:m]
	} else {
		sepKey = append([]byte{}, n.Keys[m]...)
		rightKeys = append([][]byte{}, n.Keys[m+1:]...)
		rightPtrs = append([]int64{}, n.Pointers[m+1:]...)
		n.Keys = n.Keys[:m]
		n.Pointers = n.Pointers[:m+1]
	}
	oldHighKey, oldNext, parent := n.HighKey, n.Next, n.Parent
	n.bodyMu.Unlock()

	sibling, err := t.newNodePage(n.Type())
	if err != nil {
		return err
	}
	sibling.bodyMu.Lock()
	sibling.Parent = parent
	sibling.Keys = rightKeys
	sibling.Pointers = rightPtrs
	sibling.HighKey = oldHighKey
	sibling.Prev = n.ID()
	sibling.Next = oldNext
	sibling.MarkDirty()
	sibling.bodyMu.Unlock()

	n.bodyMu.Lock()
	n.HighKey = sepKey
	n.Next = sibling.ID()
	n.MarkDirty()
	n.bodyMu.Unlock()

	if oldNext != page.NullID {
		if next, err := t.getNode(oldNext, parent); err == nil {
			next.bodyMu.Lock()
			next.Prev = sibling.ID()
			next.MarkDirty()
			next.bodyMu.Unlock()
		}
	}

	return t.promote(parent, sepKey, sibling.ID())
}

// splitRootInPlace implements spec.md §4.4 "Split (root)": the root keeps
// its id, becoming a 1-key internal node over two fresh children that
// inherit null sibling pointers.
func (t *Tree) splitRootInPlace(n *Node) error {
	n.bodyMu.Lock()
	isLeaf := n.Type() == page.Leaf
	m := len(n.Keys) / 2

	var sepKey []byte
	var leftKeys, rightKeys [][]byte
	var leftPtrs, rightPtrs []int64
	if isLeaf {
		leftKeys = append([][]byte{}, n.Keys[:m]...)
		leftPtrs = append([]int64{}, n.Pointers[:m]...)
		rightKeys = append([][]byte{}, n.Keys[m:]...)
		rightPtrs = append([]int64{}, n.Pointers[m:]...)
		sepKey = append([]byte{}, rightKeys[0]...)
	} else {
		sepKey = append([]byte{}, n.Keys[m]...)
		leftKeys = append([][]byte{}, n.Keys[:m]...)
		leftPtrs = append([]int64{}, n.Pointers[:m+1]...)
		rightKeys = append([][]byte{}, n.Keys[m+1:]...)
		rightPtrs = append([]int64{}, n.Pointers[m+1:]...)
	}
	childType := n.Type()
	n.bodyMu.Unlock()

	left, err := t.newNodePage(childType)
	if err != nil {
		return err
	}
	right, err := t.newNodePage(childType)
	if err != nil {
		return err
	}

	left.bodyMu.Lock()
	left.Parent = t.rootID()
	left.Keys = leftKeys
	left.Pointers = leftPtrs
	left.HighKey = append([]byte{}, sepKey...)
	left.Prev = page.NullID
	left.Next = right.ID()
	left.MarkDirty()
	left.bodyMu.Unlock()

	right.bodyMu.Lock()
	right.Parent = t.rootID()
	right.Keys = rightKeys
	right.Pointers = rightPtrs
	right.HighKey = nil
	right.Prev = left.ID()
	right.Next = page.NullID
	right.MarkDirty()
	right.bodyMu.Unlock()

	n.bodyMu.Lock()
	n.SetType(page.Internal)
	n.Keys = [][]byte{sepKey}
	n.Pointers = []int64{left.ID(), right.ID()}
	n.HighKey = nil
	n.Prev = page.NullID
	n.Next = page.NullID
	n.MarkDirty()
	n.bodyMu.Unlock()
	return nil
}

// promote inserts separator at parentID together with a pointer to right,
// splitting the parent recursively if needed (spec.md §4.4 "Promote").
// The left sibling is assumed already linked into parent's pointer array
// (it existed there before the split); only right is new.
func (t *Tree) promote(parentID page.ID, sepKey []byte, rightID page.ID) error {
	parent, err := t.getNode(parentID, page.NullID)
	if err != nil {
		return err
	}
	parent.Mu.Lock()

	parent.bodyMu.Lock()
	idx := binarySearch(parent.Keys, sepKey)
	pos := idx
	if idx < 0 {
		pos = -(idx + 1)
	}
	parent.Keys = insertKeyAt(parent.Keys, pos, sepKey)
	parent.Pointers = insertPtrAt(parent.Pointers, pos+1, int64(rightID))
	parent.MarkDirty()
	needSplit := parent.needSplit(t.cfg)
	parent.bodyMu.Unlock()

	var splitErr error
	if needSplit {
		splitErr = t.split(parent)
	}
	parent.Mu.Unlock()
	return splitErr
}
