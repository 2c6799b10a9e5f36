// ABOUTME: data page: a page holding an ordered sequence of length-prefixed value slots
// ABOUTME: serialization follows spec.md §6's "Data-page body" layout exactly

package storage

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/kbolino/blinkkv/pkg/page"
)

// dataPageExtraSize is value_count(4), appended after the base page header
// per spec.md §6 (data pages carry no parent/key_count/prefix_len — those
// are node-only fields).
const dataPageExtraSize = 4

// maxSlotID is the largest value id a data pointer's low 16 bits can hold
// (spec.md §9: "a data page therefore cannot exceed 65,536 slots").
const maxSlotID = 0xffff

// DataPage wraps a page holding value slots. A slot whose stored length is
// zero is a tombstone; its index is preserved until the page is reclaimed.
type DataPage struct {
	p *page.Page

	slots      [][]byte
	valueCount uint32 // slot count read from the header, consumed by Load
	dirty      bool
}

func newDataPage(p *page.Page) *DataPage {
	dp := &DataPage{p: p}
	p.Extra = dp
	return dp
}

// ID returns the data page's backing page id.
func (dp *DataPage) ID() page.ID { return dp.p.ID() }

// Type returns the page's on-disk type (page.Data once initialized).
func (dp *DataPage) Type() page.Type { return dp.p.Header.Type }

// SetType sets the page's on-disk type, used when a free-list page is
// repurposed as a data page.
func (dp *DataPage) SetType(t page.Type) { dp.p.Header.Type = t }

// MarkDirty flags the page as needing a flush before its cache slot or the
// store is closed.
func (dp *DataPage) MarkDirty() { dp.dirty = true }

// Dirty reports whether the page has unflushed in-memory changes.
func (dp *DataPage) Dirty() bool { return dp.dirty }

// ExtraSize implements page.Codec.
func (dp *DataPage) ExtraSize() int { return dataPageExtraSize }

// EncodeExtra implements page.Codec.
func (dp *DataPage) EncodeExtra(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(dp.slots)))
}

// DecodeExtra implements page.Codec.
func (dp *DataPage) DecodeExtra(buf []byte) {
	dp.valueCount = binary.LittleEndian.Uint32(buf[0:4])
}

// Load reads the page and decodes its slot directory.
func (dp *DataPage) Load(f *os.File) error {
	if err := dp.p.Load(f); err != nil {
		return err
	}
	if dp.p.Header.Type == page.Unused {
		return nil
	}
	return dp.decodeBody(dp.p.Payload()[:dp.p.Header.DataLen])
}

func (dp *DataPage) Flush(f *os.File) error {
	buf, err := dp.encodeBody()
	if err != nil {
		return err
	}
	dp.p.SetPayload(buf, uint32(len(buf)))
	if err := dp.p.Flush(f); err != nil {
		return err
	}
	dp.dirty = false
	return nil
}

func (dp *DataPage) encodeBody() ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range dp.slots {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	if uint32(buf.Len()) > dp.p.WorkSize() {
		return nil, ErrValueTooLong
	}
	return buf.Bytes(), nil
}

func (dp *DataPage) decodeBody(payload []byte) error {
	r := bytes.NewReader(payload)
	dp.slots = make([][]byte, dp.valueCount)
	for i := range dp.slots {
		var lenBuf [4]byte
		if _, err := r.Read(lenBuf[:]); err != nil {
			return err
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if n == 0 {
			continue // tombstone
		}
		v := make([]byte, n)
		if _, err := r.Read(v); err != nil {
			return err
		}
		dp.slots[i] = v
	}
	return nil
}

// usedBytes is the serialized body size at rest.
func (dp *DataPage) usedBytes() uint32 {
	var n uint32
	for _, v := range dp.slots {
		n += 4 + uint32(len(v))
	}
	return n
}

// freeSpace is the remaining room for a new slot's length prefix plus bytes.
func (dp *DataPage) freeSpace() uint32 {
	used := dp.usedBytes()
	if used > dp.p.WorkSize() {
		return 0
	}
	return dp.p.WorkSize() - used
}

// add appends data as a new slot, returning its index. The caller must have
// already checked freeSpace() >= 4+len(data) and len(dp.slots) < maxSlotID+1.
func (dp *DataPage) add(data []byte) uint16 {
	dp.slots = append(dp.slots, data)
	dp.MarkDirty()
	return uint16(len(dp.slots) - 1)
}

// get returns a copy of slot vid, or ErrValueNotExists if out of range or
// tombstoned.
func (dp *DataPage) get(vid uint16) ([]byte, error) {
	if int(vid) >= len(dp.slots) || dp.slots[vid] == nil {
		return nil, ErrValueNotExists
	}
	out := make([]byte, len(dp.slots[vid]))
	copy(out, dp.slots[vid])
	return out, nil
}

// set replaces slot vid's bytes in place, failing the same way get does.
func (dp *DataPage) set(vid uint16, data []byte) error {
	if int(vid) >= len(dp.slots) || dp.slots[vid] == nil {
		return ErrValueNotExists
	}
	dp.slots[vid] = data
	dp.MarkDirty()
	return nil
}

// tombstone clears slot vid's bytes, keeping its index reserved.
func (dp *DataPage) tombstone(vid uint16) error {
	if int(vid) >= len(dp.slots) || dp.slots[vid] == nil {
		return ErrValueNotExists
	}
	dp.slots[vid] = nil
	dp.MarkDirty()
	return nil
}

// tombstoneCount reports how many slots are currently tombstoned.
func (dp *DataPage) tombstoneCount() int {
	n := 0
	for _, v := range dp.slots {
		if v == nil {
			n++
		}
	}
	return n
}

// allTombstoned reports whether every slot on the page is a tombstone.
func (dp *DataPage) allTombstoned() bool {
	return dp.tombstoneCount() == len(dp.slots)
}
