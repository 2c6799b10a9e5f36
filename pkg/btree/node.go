// ABOUTME: B-link-tree node: parsed header/body over a page, with prefix compression
// ABOUTME: serialization follows spec.md §6's node body layout exactly

package btree

import (
	"bytes"
	"encoding/binary"
	"os"
	"sync"

	"github.com/kbolino/blinkkv/pkg/page"
)

// nodeExtraSize is parent(8) + key_count(4) + prefix_len(4), appended after
// the base page header per spec.md §6.
const nodeExtraSize = 8 + 4 + 4

// Node wraps a page holding one B-link-tree node: an internal node whose
// pointers are child ids, or a leaf whose pointers are data pointers.
type Node struct {
	p *page.Page

	// Mu is the per-node structural-mutation semaphore (spec.md §5):
	// serializes Add/Remove bodies at this node. Find does not take it.
	Mu sync.Mutex

	// bodyMu guards the decoded fields below against concurrent
	// read (Find) and write (Add/Remove/split/merge) access, separate
	// from Mu: sibling-redirected Find never blocks behind a structural
	// mutation at an unrelated node.
	bodyMu sync.RWMutex

	Parent   page.ID
	Keys     [][]byte
	Pointers []int64
	HighKey  []byte
	Prev     page.ID
	Next     page.ID

	prefix    []byte
	keyCount  uint32
	prefixLen uint32

	dirty bool
}

// newNode allocates a Node wrapping p, wiring p.Extra to the node itself so
// Load/Flush transparently carry the extended header.
func newNode(p *page.Page) *Node {
	n := &Node{p: p, Prev: page.NullID, Next: page.NullID, Parent: page.NullID}
	p.Extra = n
	return n
}

// ID returns the node's backing page id (== node id per spec.md §3).
func (n *Node) ID() page.ID { return n.p.ID() }

// Type returns internal or leaf.
func (n *Node) Type() page.Type { return n.p.Header.Type }

// SetType sets the node's type, used when the root promotes in-place.
func (n *Node) SetType(t page.Type) { n.p.Header.Type = t }

// MarkDirty flags the node as needing a flush before its cache slot or the
// tree is closed.
func (n *Node) MarkDirty() { n.dirty = true }

// Dirty reports whether the node has unflushed in-memory changes.
func (n *Node) Dirty() bool { return n.dirty }

// ExtraSize implements page.Codec.
func (n *Node) ExtraSize() int { return nodeExtraSize }

// EncodeExtra implements page.Codec; reflects the current in-memory body,
// so callers must have already called encodeBody (or rely on Flush, which
// does) before this runs.
func (n *Node) EncodeExtra(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(n.Parent))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(n.Keys)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(n.prefix)))
}

// DecodeExtra implements page.Codec.
func (n *Node) DecodeExtra(buf []byte) {
	n.Parent = int64(binary.LittleEndian.Uint64(buf[0:8]))
	n.keyCount = binary.LittleEndian.Uint32(buf[8:12])
	n.prefixLen = binary.LittleEndian.Uint32(buf[12:16])
}

// Load reads the node's page and decodes its body.
func (n *Node) Load(f *os.File) error {
	if err := n.p.Load(f); err != nil {
		return err
	}
	if n.p.Header.Type == page.Unused {
		return nil
	}
	return n.decodeBody(n.p.Payload()[:n.p.Header.DataLen])
}

// Flush re-encodes the node's body and header and writes the page.
func (n *Node) Flush(f *os.File) error {
	buf, err := n.encodeBody()
	if err != nil {
		return err
	}
	n.p.SetPayload(buf, uint32(len(buf)))
	if err := n.p.Flush(f); err != nil {
		return err
	}
	n.dirty = false
	return nil
}

func commonPrefix(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

func (n *Node) isLeaf() bool { return n.p.Header.Type == page.Leaf }

// encodeBody serializes prefix + key suffixes + pointers + high key +
// sibling ids, per spec.md §6.
func (n *Node) encodeBody() ([]byte, error) {
	var prefix []byte
	if len(n.Keys) > 0 {
		prefix = commonPrefix(n.Keys[0], n.Keys[len(n.Keys)-1])
	}
	n.prefix = prefix

	var buf bytes.Buffer
	buf.Write(prefix)
	for _, k := range n.Keys {
		suffix := k[len(prefix):]
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(suffix)))
		buf.Write(lenBuf[:])
		buf.Write(suffix)
	}
	for _, ptr := range n.Pointers {
		var ptrBuf [8]byte
		binary.LittleEndian.PutUint64(ptrBuf[:], uint64(ptr))
		buf.Write(ptrBuf[:])
	}
	var hkLenBuf [4]byte
	binary.LittleEndian.PutUint32(hkLenBuf[:], uint32(len(n.HighKey)))
	buf.Write(hkLenBuf[:])
	buf.Write(n.HighKey)
	var sibBuf [16]byte
	binary.LittleEndian.PutUint64(sibBuf[0:8], uint64(n.Prev))
	binary.LittleEndian.PutUint64(sibBuf[8:16], uint64(n.Next))
	buf.Write(sibBuf[:])

	if uint32(buf.Len()) > n.p.WorkSize() {
		return nil, ErrExceededMaxKeyCount
	}
	return buf.Bytes(), nil
}

func (n *Node) decodeBody(payload []byte) error {
	r := bytes.NewReader(payload)

	prefix := make([]byte, n.prefixLen)
	if _, err := r.Read(prefix); err != nil && n.prefixLen > 0 {
		return err
	}
	n.prefix = prefix

	n.Keys = make([][]byte, n.keyCount)
	for i := range n.Keys {
		var lenBuf [4]byte
		if _, err := r.Read(lenBuf[:]); err != nil {
			return err
		}
		suffixLen := binary.LittleEndian.Uint32(lenBuf[:])
		suffix := make([]byte, suffixLen)
		if suffixLen > 0 {
			if _, err := r.Read(suffix); err != nil {
				return err
			}
		}
		key := make([]byte, 0, len(prefix)+int(suffixLen))
		key = append(key, prefix...)
		key = append(key, suffix...)
		n.Keys[i] = key
	}

	pointerCount := n.keyCount
	if !n.isLeaf() {
		pointerCount++
	}
	n.Pointers = make([]int64, pointerCount)
	for i := range n.Pointers {
		var ptrBuf [8]byte
		if _, err := r.Read(ptrBuf[:]); err != nil {
			return err
		}
		n.Pointers[i] = int64(binary.LittleEndian.Uint64(ptrBuf[:]))
	}

	var hkLenBuf [4]byte
	if _, err := r.Read(hkLenBuf[:]); err != nil {
		return err
	}
	hkLen := binary.LittleEndian.Uint32(hkLenBuf[:])
	n.HighKey = nil
	if hkLen > 0 {
		n.HighKey = make([]byte, hkLen)
		if _, err := r.Read(n.HighKey); err != nil {
			return err
		}
	}

	var sibBuf [16]byte
	if _, err := r.Read(sibBuf[:]); err != nil {
		return err
	}
	n.Prev = int64(binary.LittleEndian.Uint64(sibBuf[0:8]))
	n.Next = int64(binary.LittleEndian.Uint64(sibBuf[8:16]))
	return nil
}

// needSplit reports size pressure: too many keys or a body too large to
// serialize (spec.md §4.4).
func (n *Node) needSplit(cfg Config) bool {
	if uint32(len(n.Keys)) > cfg.MaxKeysOnEachNode {
		return true
	}
	buf, err := n.encodeBody()
	if err != nil {
		return true
	}
	return uint32(len(buf)) > n.p.WorkSize()
}

// needMerge reports under-fill: too few keys or a body under half the
// work size (spec.md §4.4).
func (n *Node) needMerge(cfg Config) bool {
	if uint32(len(n.Keys)) < cfg.MinKeysOnEachNode/2 {
		return true
	}
	buf, err := n.encodeBody()
	if err != nil {
		return false
	}
	return uint32(len(buf)) < n.p.WorkSize()/2
}
