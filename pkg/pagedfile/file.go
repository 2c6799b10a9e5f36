// ABOUTME: owns the OS file, file header, free-page list, and live-page table
// ABOUTME: implements spec.md §4.2's open/close/free-page/record semantics

package pagedfile

import (
	"os"
	"sync"

	"github.com/kbolino/blinkkv/pkg/page"
)

// PagedFile owns an OS file, a header, and the table of pages currently
// live in memory. It is the foundation btree.Tree and storage.Store build
// on; HeaderExt lets them widen the on-disk header without PagedFile
// knowing their concrete type.
type PagedFile struct {
	Path string
	Cfg  page.Config

	Header Header

	f *os.File

	openMu sync.Mutex // serializes Open/Close
	freeMu sync.Mutex // serializes free-page allocation

	liveMu sync.Mutex
	live   map[page.ID]*page.Page // pages currently held by some caller

	opened bool
}

// New constructs an unopened PagedFile. Set Header.Ext before calling Open
// if a higher layer needs to widen the header.
func New(path string, cfg page.Config) *PagedFile {
	return &PagedFile{
		Path: path,
		Cfg:  cfg,
		live: make(map[page.ID]*page.Page),
	}
}

// Open creates or opens the backing file. Calling Open twice fails with
// ErrFileAlreadyOpened.
func (pf *PagedFile) Open() error {
	pf.openMu.Lock()
	defer pf.openMu.Unlock()

	if pf.opened {
		return ErrFileAlreadyOpened
	}

	f, err := os.OpenFile(pf.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	pf.f = f

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	if stat.Size() == 0 {
		pf.Header = Header{
			PageSize:      pf.Cfg.PageSize,
			PageCount:     0,
			FirstFreePage: page.NullID,
			LastFreePage:  page.NullID,
			Ext:           pf.Header.Ext,
		}
		pf.Header.markDirty()
		if err := pf.flushHeaderLocked(); err != nil {
			f.Close()
			return err
		}
	} else {
		if err := pf.loadHeaderLocked(); err != nil {
			f.Close()
			return err
		}
	}

	pf.opened = true
	return nil
}

// Close flushes the header and closes the file handle. Calling Close twice
// fails with ErrFileAlreadyClosed.
func (pf *PagedFile) Close() error {
	pf.openMu.Lock()
	defer pf.openMu.Unlock()

	if !pf.opened {
		return ErrFileAlreadyClosed
	}

	if err := pf.flushHeaderLocked(); err != nil {
		return err
	}
	if err := pf.f.Close(); err != nil {
		return err
	}
	pf.opened = false
	return nil
}

// IsOpen reports whether the file is currently open.
func (pf *PagedFile) IsOpen() bool {
	pf.openMu.Lock()
	defer pf.openMu.Unlock()
	return pf.opened
}

func (pf *PagedFile) loadHeaderLocked() error {
	buf := make([]byte, pf.Cfg.FileHeaderSize)
	if _, err := pf.f.ReadAt(buf, 0); err != nil {
		return err
	}
	pf.Header.decode(buf)
	return nil
}

func (pf *PagedFile) flushHeaderLocked() error {
	if !pf.Header.dirty {
		return nil
	}
	buf := make([]byte, pf.Cfg.FileHeaderSize)
	pf.Header.encode(buf)
	if _, err := pf.f.WriteAt(buf, 0); err != nil {
		return err
	}
	pf.Header.dirty = false
	return nil
}

// FlushHeader forces the header to disk even if the caller hasn't closed
// the file yet.
func (pf *PagedFile) FlushHeader() error {
	pf.openMu.Lock()
	defer pf.openMu.Unlock()
	if !pf.opened {
		return ErrClosed
	}
	return pf.flushHeaderLocked()
}

// MarkHeaderDirty flags the header for the next flush; callers that mutate
// fields the header doesn't own directly (e.g. btree.Tree.root via its
// HeaderExt) must call this themselves.
func (pf *PagedFile) MarkHeaderDirty() { pf.Header.markDirty() }

// File exposes the underlying *os.File for page I/O.
func (pf *PagedFile) File() *os.File { return pf.f }

// NewPage allocates a bare in-memory page object for id without reading or
// writing anything; callers attach a Codec and Load explicitly.
func (pf *PagedFile) NewPage(id page.ID) *page.Page {
	return page.New(id, pf.Cfg)
}

// trackLive records p as currently held by some caller, so a concurrent
// resolver for the same id observes the same object instead of creating a
// duplicate (spec.md §4.4's "get_node" three-tier resolution applies this
// pattern one layer up, in btree.Tree; PagedFile exposes the primitive).
func (pf *PagedFile) trackLive(p *page.Page) {
	pf.liveMu.Lock()
	pf.live[p.ID()] = p
	pf.liveMu.Unlock()
}

// Live returns a page previously tracked via trackLive, if any.
func (pf *PagedFile) Live(id page.ID) (*page.Page, bool) {
	pf.liveMu.Lock()
	defer pf.liveMu.Unlock()
	p, ok := pf.live[id]
	return p, ok
}

// Untrack removes id from the live table (called once a cache eviction has
// flushed the page and nothing else needs to discover it that way).
func (pf *PagedFile) Untrack(id page.ID) {
	pf.liveMu.Lock()
	delete(pf.live, id)
	pf.liveMu.Unlock()
}

// GetOrCreatePage resolves id to a page object, tracking it as live.
// Callers are responsible for attaching the right Codec before Load if the
// page is expected to carry an extended header.
func (pf *PagedFile) GetOrCreatePage(id page.ID) (*page.Page, error) {
	if id < 0 {
		return nil, ErrInvalidPage
	}
	if p, ok := pf.Live(id); ok {
		return p, nil
	}
	p := pf.NewPage(id)
	pf.trackLive(p)
	return p, nil
}

// GetFreePage returns a page ready for reuse: either the head of the free
// list (loaded from disk, type reset to Unused) or a brand new page at the
// end of the file. Serialized by freeMu so two concurrent allocators never
// claim the same id (spec.md §4.2).
func (pf *PagedFile) GetFreePage() (*page.Page, error) {
	pf.freeMu.Lock()
	defer pf.freeMu.Unlock()

	if pf.Header.FirstFreePage != page.NullID {
		id := pf.Header.FirstFreePage
		p, err := pf.GetOrCreatePage(id)
		if err != nil {
			return nil, err
		}
		if err := p.Load(pf.f); err != nil {
			return nil, err
		}
		pf.Header.FirstFreePage = p.Header.Next
		if pf.Header.FirstFreePage == page.NullID {
			pf.Header.LastFreePage = page.NullID
		}
		pf.Header.markDirty()
		p.Reset()
		return p, nil
	}

	id := page.ID(pf.Header.PageCount)
	pf.Header.PageCount++
	pf.Header.markDirty()
	p, err := pf.GetOrCreatePage(id)
	if err != nil {
		return nil, err
	}
	p.Header = page.Header{Type: page.Unused, Next: page.NullID}
	return p, nil
}

// UnlinkPagesFrom threads the page chain starting at f (following each
// page's Next) onto the tail of the free list. The walk to find the new
// tail is bounded by PageCount hops as a
// defensive guard against a corrupted cyclic free list (spec.md §9's Open
// Question).
func (pf *PagedFile) UnlinkPagesFrom(f page.ID) error {
	pf.freeMu.Lock()
	defer pf.freeMu.Unlock()

	// Every page in the chain being freed must carry type Unused per
	// spec.md §3's "type is unused iff the page is on the free list"
	// invariant, not just the chain's head.
	newTail := page.NullID
	cur := f
	for i := uint64(0); i < pf.Header.PageCount+1; i++ {
		p, err := pf.GetOrCreatePage(cur)
		if err != nil {
			return err
		}
		if err := p.Load(pf.f); err != nil {
			return err
		}
		p.Header.Type = page.Unused
		if err := p.Flush(pf.f); err != nil {
			return err
		}
		if p.Header.Next == page.NullID {
			newTail = cur
			break
		}
		cur = p.Header.Next
	}
	if newTail == page.NullID {
		return ErrCorruptFreeList
	}

	if pf.Header.FirstFreePage == page.NullID {
		pf.Header.FirstFreePage = f
	} else {
		tail, err := pf.GetOrCreatePage(pf.Header.LastFreePage)
		if err != nil {
			return err
		}
		if err := tail.Load(pf.f); err != nil {
			return err
		}
		tail.Header.Next = f
		if err := tail.Flush(pf.f); err != nil {
			return err
		}
	}

	pf.Header.LastFreePage = newTail
	pf.Header.markDirty()
	return nil
}
