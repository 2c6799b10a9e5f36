// ABOUTME: file header layout and the header-extension chaining hook
// ABOUTME: replaces the original's virtual header-factory inheritance chain

package pagedfile

import (
	"encoding/binary"

	"github.com/kbolino/blinkkv/pkg/page"
)

// baseHeaderSize is page_size(4) + page_count(8) + first_free_page(8) +
// last_free_page(8), per spec.md §6's on-disk layout.
const baseHeaderSize = 4 + 8 + 8 + 8

// HeaderExt lets a layer built on top of PagedFile (btree.Tree,
// storage.Store) append its own fields to the file header. The tree chains
// the store's extension after its own via btree.Tree.SetHeaderExt, the same
// way "file ⊂ tree ⊂ storage" chains in the
// original C++ class hierarchy — composition instead of inheritance, per
// spec.md §9.
type HeaderExt interface {
	ExtSize() int
	EncodeExt(buf []byte)
	DecodeExt(buf []byte)
}

// Header is the in-memory file header: page_size/page_count/free-list
// bounds plus whatever HeaderExt the owning layer registered.
type Header struct {
	PageSize      uint32
	PageCount     uint64
	FirstFreePage page.ID
	LastFreePage  page.ID

	Ext   HeaderExt
	dirty bool
}

func (h *Header) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.PageSize)
	binary.LittleEndian.PutUint64(buf[4:12], h.PageCount)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.FirstFreePage))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(h.LastFreePage))
	if h.Ext != nil {
		h.Ext.EncodeExt(buf[baseHeaderSize:])
	}
}

func (h *Header) decode(buf []byte) {
	h.PageSize = binary.LittleEndian.Uint32(buf[0:4])
	h.PageCount = binary.LittleEndian.Uint64(buf[4:12])
	h.FirstFreePage = int64(binary.LittleEndian.Uint64(buf[12:20]))
	h.LastFreePage = int64(binary.LittleEndian.Uint64(buf[20:28]))
	if h.Ext != nil {
		h.Ext.DecodeExt(buf[baseHeaderSize:])
	}
}

func (h *Header) markDirty() { h.dirty = true }
