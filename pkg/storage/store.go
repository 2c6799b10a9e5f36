// ABOUTME: data-page heap and availability directory over a btree.Tree's paged file
// ABOUTME: implements spec.md §4.5's add_value/find_value/update_value/remove_value

package storage

import (
	"encoding/binary"
	"sync"

	"github.com/kbolino/blinkkv/internal/logger"
	"github.com/kbolino/blinkkv/pkg/btree"
	"github.com/kbolino/blinkkv/pkg/cache"
	"github.com/kbolino/blinkkv/pkg/page"
)

// availabilityEntrySize is page-id(8) + free-space(4), per spec.md §6.
const availabilityEntrySize = 8 + 4

// DirectoryHeaderSize is the on-disk size of Store's header extension for a
// directory bounded at maxAvailablePages entries: count(8) plus that many
// (page-id, free-space) pairs.
func DirectoryHeaderSize(maxAvailablePages int) int {
	return 8 + maxAvailablePages*availabilityEntrySize
}

// Hooks lets a caller observe data-page traffic without Store depending on
// internal/metrics directly — satisfied by *metrics.Metrics via matching
// method names, mirroring btree.Hooks.
type Hooks interface {
	DataPageReclaim()
	DataPageCacheEviction()
}

// noopHooks discards every event; the default until SetHooks is called.
type noopHooks struct{}

func (noopHooks) DataPageReclaim()       {}
func (noopHooks) DataPageCacheEviction() {}

// Store extends a btree.Tree with a data-page heap: values live in data
// pages discovered via an in-header availability directory, and the tree's
// leaves hold the resulting data pointers.
type Store struct {
	Tree  *btree.Tree
	cfg   Config
	log   *logger.Logger
	hooks Hooks

	dpCache *cache.Cache[int64, *DataPage]

	liveMu sync.Mutex
	live   map[int64]*DataPage

	dirMu         sync.Mutex
	dir           map[int64]uint32
	maxAvailPages int
	minAvailSpace uint32
	maxEmptySlots int
}

// newStore wires a Store on top of an already-open Tree, chaining the
// availability directory after the tree's own header extension (spec.md §9
// "file ⊂ tree ⊂ storage").
func newStore(tree *btree.Tree, cfg Config, log *logger.Logger) *Store {
	s := &Store{
		Tree:          tree,
		cfg:           cfg,
		log:           log.Component("storage"),
		hooks:         noopHooks{},
		live:          make(map[int64]*DataPage),
		dir:           make(map[int64]uint32),
		maxAvailPages: int(cfg.MaxAvailablePages),
		minAvailSpace: cfg.MinAvailableSpace,
		maxEmptySlots: int(cfg.MaxEmptyValuesOnEachPage),
	}
	s.dpCache = cache.New[int64, *DataPage](int(cfg.NCachedDataPages), s.evictDataPage)
	tree.SetHeaderExt(s)
	return s
}

// SetHooks installs the metrics observer used by data-page reclamation and
// the data-page cache. Safe to call once right after newStore, before
// concurrent use begins.
func (s *Store) SetHooks(h Hooks) { s.hooks = h }

// ExtSize implements pagedfile.HeaderExt.
func (s *Store) ExtSize() int { return DirectoryHeaderSize(s.maxAvailPages) }

// EncodeExt implements pagedfile.HeaderExt.
func (s *Store) EncodeExt(buf []byte) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(s.dir)))
	off := 8
	n := 0
	for id, free := range s.dir {
		if n >= s.maxAvailPages {
			break
		}
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(id))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], free)
		off += availabilityEntrySize
		n++
	}
}

// DecodeExt implements pagedfile.HeaderExt.
func (s *Store) DecodeExt(buf []byte) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	count := binary.LittleEndian.Uint64(buf[0:8])
	off := 8
	s.dir = make(map[int64]uint32, count)
	for i := uint64(0); i < count && i < uint64(s.maxAvailPages); i++ {
		id := int64(binary.LittleEndian.Uint64(buf[off : off+8]))
		free := binary.LittleEndian.Uint32(buf[off+8 : off+12])
		s.dir[id] = free
		off += availabilityEntrySize
	}
}

// noteAvailability (re)inserts or removes pageID's directory entry
// depending on whether free meets minAvailSpace, per spec.md §4.5 and the
// original's storage.cpp confirming this runs on every add/remove, not
// just creation.
func (s *Store) noteAvailability(pageID int64, free uint32) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	if free >= s.minAvailSpace {
		if _, listed := s.dir[pageID]; listed || len(s.dir) < s.maxAvailPages {
			s.dir[pageID] = free
		}
	} else {
		delete(s.dir, pageID)
	}
	s.Tree.PF.MarkHeaderDirty()
}

// forgetAvailability removes pageID from the directory unconditionally,
// used when a page is reclaimed back to the free list.
func (s *Store) forgetAvailability(pageID int64) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	delete(s.dir, pageID)
	s.Tree.PF.MarkHeaderDirty()
}

// findAvailablePage returns the id of a directory page with at least need
// free bytes, if any.
func (s *Store) findAvailablePage(need uint32) (int64, bool) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	for id, free := range s.dir {
		if free >= need {
			return id, true
		}
	}
	return 0, false
}

// getDataPage resolves id through the cache, the live table, then disk,
// mirroring btree.Tree.getNode's three-tier resolution (spec.md §4.4/§4.5).
func (s *Store) getDataPage(id page.ID) (*DataPage, error) {
	if dp, ok := s.dpCache.Get(id); ok {
		return dp, nil
	}

	s.liveMu.Lock()
	if dp, ok := s.live[id]; ok {
		s.liveMu.Unlock()
		if err := s.dpCache.Put(id, dp); err != nil {
			return nil, err
		}
		return dp, nil
	}
	s.liveMu.Unlock()

	p := s.Tree.PF.NewPage(id)
	dp := newDataPage(p)
	if err := dp.Load(s.Tree.PF.File()); err != nil {
		return nil, err
	}
	if dp.Type() != page.Unused && dp.Type() != page.Data {
		return nil, ErrInvalidPageType
	}

	s.liveMu.Lock()
	s.live[id] = dp
	s.liveMu.Unlock()
	if err := s.dpCache.Put(id, dp); err != nil {
		return nil, err
	}
	return dp, nil
}

// newDataPageOnFreeSpace allocates a fresh data page on a free page slot.
func (s *Store) newDataPageOnFreeSpace() (*DataPage, error) {
	p, err := s.Tree.PF.GetFreePage()
	if err != nil {
		return nil, err
	}
	dp := newDataPage(p)
	dp.SetType(page.Data)
	dp.MarkDirty()

	s.liveMu.Lock()
	s.live[dp.ID()] = dp
	s.liveMu.Unlock()
	if err := s.dpCache.Put(dp.ID(), dp); err != nil {
		return nil, err
	}
	return dp, nil
}

// evictDataPage is the data-page cache's eviction callback.
func (s *Store) evictDataPage(id int64, dp *DataPage) error {
	s.hooks.DataPageCacheEviction()
	if dp.Dirty() {
		s.log.Debug("evicting dirty data page").Int64("id", id).Send()
		if err := dp.Flush(s.Tree.PF.File()); err != nil {
			return err
		}
	}
	s.liveMu.Lock()
	delete(s.live, id)
	s.liveMu.Unlock()
	return nil
}

// destroyDataPage returns dp's page to the free list, dropping it from the
// cache and live table and from the availability directory.
func (s *Store) destroyDataPage(dp *DataPage) error {
	id := dp.ID()
	s.dpCache.Remove(id)
	s.liveMu.Lock()
	delete(s.live, id)
	s.liveMu.Unlock()
	s.forgetAvailability(id)
	return s.Tree.PF.UnlinkPagesFrom(id)
}

// AddValue packs data into an available (or freshly created) data page and
// returns its data pointer (spec.md §4.5 "add_value").
func (s *Store) AddValue(data []byte) (int64, error) {
	need := uint32(4 + len(data))
	if need > s.Tree.PF.Cfg.WorkSize() {
		return 0, ErrValueTooLong
	}

	var dp *DataPage
	if id, ok := s.findAvailablePage(need); ok {
		loaded, err := s.getDataPage(id)
		if err != nil {
			return 0, err
		}
		dp = loaded
	} else {
		created, err := s.newDataPageOnFreeSpace()
		if err != nil {
			return 0, err
		}
		dp = created
	}

	if len(dp.slots) >= maxSlotID+1 {
		return 0, ErrValueTooLong
	}
	vid := dp.add(data)
	if err := dp.Flush(s.Tree.PF.File()); err != nil {
		return 0, err
	}
	s.noteAvailability(int64(dp.ID()), dp.freeSpace())
	return encodeDataPointer(dp.ID(), vid), nil
}

// FindValue returns a copy of the value at ptr (spec.md §4.5 "find_value").
func (s *Store) FindValue(ptr int64) ([]byte, error) {
	pageID, vid := decodeDataPointer(ptr)
	dp, err := s.getDataPage(pageID)
	if err != nil {
		return nil, err
	}
	return dp.get(vid)
}

// UpdateValue replaces the bytes at ptr in place (spec.md §4.5
// "update_value").
func (s *Store) UpdateValue(ptr int64, data []byte) error {
	pageID, vid := decodeDataPointer(ptr)
	dp, err := s.getDataPage(pageID)
	if err != nil {
		return err
	}
	if err := dp.set(vid, data); err != nil {
		return err
	}
	if err := dp.Flush(s.Tree.PF.File()); err != nil {
		return err
	}
	s.noteAvailability(int64(dp.ID()), dp.freeSpace())
	return nil
}

// RemoveValue tombstones the slot at ptr, reclaiming the page to the free
// list once it is entirely tombstoned and has accumulated
// max_empty_values_on_each_page tombstones (spec.md §4.5 "remove_value").
func (s *Store) RemoveValue(ptr int64) error {
	pageID, vid := decodeDataPointer(ptr)
	dp, err := s.getDataPage(pageID)
	if err != nil {
		return err
	}
	if err := dp.tombstone(vid); err != nil {
		return err
	}

	if dp.allTombstoned() && dp.tombstoneCount() >= s.maxEmptySlots {
		dp.slots = nil
		dp.SetType(page.Unused)
		dp.MarkDirty()
		s.hooks.DataPageReclaim()
		return s.destroyDataPage(dp)
	}

	if err := dp.Flush(s.Tree.PF.File()); err != nil {
		return err
	}
	s.noteAvailability(int64(dp.ID()), dp.freeSpace())
	return nil
}

// Close drains the data-page cache, flushing every dirty page.
func (s *Store) Close() error {
	if !s.Tree.PF.IsOpen() {
		return ErrInvalidStorage
	}
	return s.dpCache.Clear()
}

func encodeDataPointer(pageID page.ID, vid uint16) int64 {
	return (pageID << 16) | int64(vid)
}

func decodeDataPointer(ptr int64) (page.ID, uint16) {
	return ptr >> 16, uint16(ptr & 0xffff)
}
