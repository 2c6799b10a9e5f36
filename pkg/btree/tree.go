// ABOUTME: the B-link-tree: node resolution, open/close, root management
// ABOUTME: implements spec.md §4.4's tree-level lifecycle

package btree

import (
	"encoding/binary"
	"sync"

	"github.com/kbolino/blinkkv/internal/logger"
	"github.com/kbolino/blinkkv/pkg/cache"
	"github.com/kbolino/blinkkv/pkg/page"
	"github.com/kbolino/blinkkv/pkg/pagedfile"
)

// HeaderExt lets a layer above Tree (storage.Store) widen the file header
// further still, chaining through the tree's own HeaderExt implementation —
// composition standing in for "file ⊂ tree ⊂ storage" (spec.md §9).
type HeaderExt = pagedfile.HeaderExt

// rootNodeID is the reserved id of the root node/page (spec.md §3).
const rootNodeID page.ID = 0

// Hooks lets a caller observe structural events and cache traffic without
// Tree depending on internal/metrics directly — satisfied by
// *metrics.Metrics via matching method names.
type Hooks interface {
	NodeSplit()
	NodeMerge()
	NodeDestroy()
	NodeCacheHit()
	NodeCacheMiss()
	NodeCacheEviction()
}

// noopHooks discards every event; the default until SetHooks is called.
type noopHooks struct{}

func (noopHooks) NodeSplit()        {}
func (noopHooks) NodeMerge()        {}
func (noopHooks) NodeDestroy()      {}
func (noopHooks) NodeCacheHit()     {}
func (noopHooks) NodeCacheMiss()    {}
func (noopHooks) NodeCacheEviction() {}

// Tree is a B-link-tree built on top of a PagedFile. Its header extends the
// file header with the root node id.
type Tree struct {
	PF    *pagedfile.PagedFile
	cfg   Config
	log   *logger.Logger
	hooks Hooks

	cache *cache.Cache[int64, *Node]

	liveMu    sync.Mutex
	live      map[int64]*Node
	getNodeMu sync.Mutex

	root page.ID
	next HeaderExt // storage.Store's availability directory, if any
}

// SetHooks installs the metrics observer used by split/merge/destroy and
// the node cache. Safe to call once right after Open, before concurrent
// use begins.
func (t *Tree) SetHooks(h Hooks) { t.hooks = h }

// Open creates or opens path as a B-link-tree file.
func Open(path string, cfg Config, log *logger.Logger) (*Tree, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Noop()
	}
	log = log.Component("btree")
	t := &Tree{
		cfg:   cfg,
		log:   log,
		hooks: noopHooks{},
		live:  make(map[int64]*Node),
		root:  rootNodeID,
	}
	t.cache = cache.New[int64, *Node](cfg.NCachedNodes, t.evictNode)

	t.PF = pagedfile.New(path, cfg.pageConfig())
	t.PF.Header.Ext = t
	if err := t.PF.Open(); err != nil {
		return nil, err
	}
	if err := t.ensureRoot(); err != nil {
		t.PF.Close()
		return nil, err
	}
	log.Info("opened tree").Str("path", path).Int64("root", t.root).Send()
	return t, nil
}

// SetHeaderExt chains a further HeaderExt after the tree's own root field,
// used by storage.Store to append its availability directory.
func (t *Tree) SetHeaderExt(next HeaderExt) { t.next = next }

// ExtSize implements pagedfile.HeaderExt.
func (t *Tree) ExtSize() int {
	n := 8
	if t.next != nil {
		n += t.next.ExtSize()
	}
	return n
}

// EncodeExt implements pagedfile.HeaderExt.
func (t *Tree) EncodeExt(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(t.root))
	if t.next != nil {
		t.next.EncodeExt(buf[8:])
	}
}

// DecodeExt implements pagedfile.HeaderExt.
func (t *Tree) DecodeExt(buf []byte) {
	t.root = int64(binary.LittleEndian.Uint64(buf[0:8]))
	if t.next != nil {
		t.next.DecodeExt(buf[8:])
	}
}

func (t *Tree) rootID() page.ID { return rootNodeID }

// ensureRoot loads the root page, creating it as an empty leaf if the file
// is new (spec.md §4.4 "Open").
func (t *Tree) ensureRoot() error {
	root, err := t.getNode(rootNodeID, page.NullID)
	if err != nil {
		return err
	}
	switch root.Type() {
	case page.Unused:
		if t.PF.Header.PageCount == 0 {
			t.PF.Header.PageCount = 1
			t.PF.MarkHeaderDirty()
		}
		root.SetType(page.Leaf)
		root.Keys = nil
		root.Pointers = nil
		root.HighKey = nil
		root.Prev = page.NullID
		root.Next = page.NullID
		root.MarkDirty()
	case page.Internal, page.Leaf:
		// already initialized, nothing to do
	default:
		return ErrInvalidNode
	}
	return nil
}

// Close flushes the root, drains the node cache (flushing every other
// dirty node through the eviction path), and closes the backing file —
// spec.md §4.4 "Close".
func (t *Tree) Close() error {
	if !t.PF.IsOpen() {
		return ErrInvalidBTree
	}
	root, err := t.getNode(rootNodeID, page.NullID)
	if err == nil {
		if err := root.Flush(t.PF.File()); err != nil {
			return err
		}
	}
	if err := t.cache.Clear(); err != nil {
		return err
	}
	t.log.Info("closed tree").Send()
	return t.PF.Close()
}

// getNode resolves id through the cache, then the live-objects map, then
// disk, installing parent if it is not page.NullID (spec.md §4.4).
func (t *Tree) getNode(id page.ID, parent page.ID) (*Node, error) {
	if id == page.NullID {
		return nil, ErrChildNotExists
	}
	if n, ok := t.cache.Get(id); ok {
		t.hooks.NodeCacheHit()
		t.setParent(n, parent)
		return n, nil
	}

	t.getNodeMu.Lock()
	defer t.getNodeMu.Unlock()

	if n, ok := t.cache.Get(id); ok {
		t.hooks.NodeCacheHit()
		t.setParent(n, parent)
		return n, nil
	}

	t.liveMu.Lock()
	if n, ok := t.live[id]; ok {
		t.liveMu.Unlock()
		t.hooks.NodeCacheHit()
		if err := t.cache.Put(id, n); err != nil {
			return nil, err
		}
		t.setParent(n, parent)
		return n, nil
	}
	t.liveMu.Unlock()

	t.hooks.NodeCacheMiss()
	p := t.PF.NewPage(id)
	n := newNode(p)
	if err := n.Load(t.PF.File()); err != nil {
		return nil, err
	}
	if n.Type() != page.Unused && n.Type() != page.Internal && n.Type() != page.Leaf {
		return nil, ErrInvalidNode
	}
	t.setParent(n, parent)

	t.liveMu.Lock()
	t.live[id] = n
	t.liveMu.Unlock()

	if err := t.cache.Put(id, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (t *Tree) setParent(n *Node, parent page.ID) {
	if parent == page.NullID {
		return
	}
	n.bodyMu.Lock()
	n.Parent = parent
	n.bodyMu.Unlock()
}

// newNodePage allocates a fresh node of typ on a free page.
func (t *Tree) newNodePage(typ page.Type) (*Node, error) {
	p, err := t.PF.GetFreePage()
	if err != nil {
		return nil, err
	}
	n := newNode(p)
	n.SetType(typ)
	n.MarkDirty()

	t.liveMu.Lock()
	t.live[n.ID()] = n
	t.liveMu.Unlock()
	if err := t.cache.Put(n.ID(), n); err != nil {
		return nil, err
	}
	return n, nil
}

// evictNode is the cache's eviction callback: flush the node if dirty,
// then drop it from the live table (spec.md §4.3/§4.4).
func (t *Tree) evictNode(id int64, n *Node) error {
	t.hooks.NodeCacheEviction()
	if n.Dirty() {
		t.log.Debug("evicting dirty node").Int64("id", id).Send()
		if err := n.Flush(t.PF.File()); err != nil {
			return err
		}
	}
	t.liveMu.Lock()
	delete(t.live, id)
	t.liveMu.Unlock()
	return nil
}

// destroyNode returns a node's page to the free list and drops it from
// the cache and live table without flushing it (spec.md §4.4 "destroy").
func (t *Tree) destroyNode(n *Node) error {
	t.hooks.NodeDestroy()
	id := n.ID()
	t.cache.Remove(id)
	t.liveMu.Lock()
	delete(t.live, id)
	t.liveMu.Unlock()
	return t.PF.UnlinkPagesFrom(id)
}
