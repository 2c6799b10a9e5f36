// ABOUTME: variable-length record chains spanning one or more pages
// ABOUTME: implements spec.md §4.2's WriteRecord/ReadRecord over the free list

package pagedfile

import (
	"bytes"

	"github.com/kbolino/blinkkv/pkg/page"
)

// WriteRecord stores data as a chain of pages, returning the id of the
// first page (the record's identity). typ is the type assigned to the
// first page; overflow pages are always tagged page.Overflow.
func (pf *PagedFile) WriteRecord(data []byte, typ page.Type) (page.ID, error) {
	first, err := pf.GetFreePage()
	if err != nil {
		return page.NullID, err
	}
	first.Header.Type = typ
	first.Header.RecordLen = uint32(len(data))

	if err := pf.fillChain(first, data); err != nil {
		return page.NullID, err
	}
	return first.ID(), nil
}

// OverwriteRecord replaces the record whose first page is id with data,
// reusing pages already in the chain and unlinking any surplus tail.
func (pf *PagedFile) OverwriteRecord(id page.ID, data []byte, typ page.Type) error {
	first, err := pf.GetOrCreatePage(id)
	if err != nil {
		return err
	}
	if err := first.Load(pf.f); err != nil {
		return err
	}
	first.Header.Type = typ
	first.Header.RecordLen = uint32(len(data))
	return pf.fillChain(first, data)
}

// fillChain writes data across first and however many additional pages are
// needed, repurposing first's existing next-chain where possible and
// unlinking any leftover tail once the data is exhausted.
func (pf *PagedFile) fillChain(first *page.Page, data []byte) error {
	r := bytes.NewReader(data)

	cur := first
	oldNext := first.Header.Next
	for {
		if _, err := cur.Write(r); err != nil {
			return err
		}
		if r.Len() == 0 {
			break
		}

		var next *page.Page
		if oldNext != page.NullID {
			n, err := pf.GetOrCreatePage(oldNext)
			if err != nil {
				return err
			}
			if err := n.Load(pf.f); err != nil {
				return err
			}
			oldNext = n.Header.Next
			next = n
		} else {
			n, err := pf.GetFreePage()
			if err != nil {
				return err
			}
			next = n
		}
		next.Header.Type = page.Overflow
		cur.Header.Next = next.ID()
		if err := cur.Flush(pf.f); err != nil {
			return err
		}
		cur = next
	}

	cur.Header.Next = page.NullID
	if err := cur.Flush(pf.f); err != nil {
		return err
	}

	if oldNext != page.NullID {
		if err := pf.UnlinkPagesFrom(oldNext); err != nil {
			return err
		}
	}
	return nil
}

// ReadRecord follows the page chain starting at id and returns the
// concatenated record bytes.
func (pf *PagedFile) ReadRecord(id page.ID) ([]byte, error) {
	first, err := pf.GetOrCreatePage(id)
	if err != nil {
		return nil, err
	}
	if err := first.Load(pf.f); err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, first.Header.RecordLen))
	cur := first
	for {
		if err := cur.Read(buf); err != nil {
			return nil, err
		}
		if cur.Header.Next == page.NullID {
			break
		}
		next, err := pf.GetOrCreatePage(cur.Header.Next)
		if err != nil {
			return nil, err
		}
		if err := next.Load(pf.f); err != nil {
			return nil, err
		}
		cur = next
	}
	return buf.Bytes()[:first.Header.RecordLen], nil
}
