// ABOUTME: tests for WriteRecord/ReadRecord overflow-chain handling
// ABOUTME: covers single-page records, multi-page overflow, and shrink-on-overwrite

package pagedfile

import (
	"bytes"
	"testing"

	"github.com/kbolino/blinkkv/pkg/page"
)

func TestWriteReadRecordSinglePage(t *testing.T) {
	pf := openTestFile(t)

	id, err := pf.WriteRecord([]byte("short record"), page.Leaf)
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	got, err := pf.ReadRecord(id)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !bytes.Equal(got, []byte("short record")) {
		t.Errorf("ReadRecord = %q, want %q", got, "short record")
	}
}

func TestWriteReadRecordSpansOverflowPages(t *testing.T) {
	pf := openTestFile(t)

	data := bytes.Repeat([]byte("0123456789"), 50) // larger than one page's work size
	id, err := pf.WriteRecord(data, page.Leaf)
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	got, err := pf.ReadRecord(id)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadRecord returned %d bytes, want %d matching bytes", len(got), len(data))
	}
}

func TestOverwriteRecordShrinkUnlinksSurplusTail(t *testing.T) {
	pf := openTestFile(t)

	big := bytes.Repeat([]byte("x"), 600)
	id, err := pf.WriteRecord(big, page.Leaf)
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	pagesBefore := pf.Header.PageCount

	small := []byte("tiny")
	if err := pf.OverwriteRecord(id, small, page.Leaf); err != nil {
		t.Fatalf("OverwriteRecord: %v", err)
	}
	got, err := pf.ReadRecord(id)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !bytes.Equal(got, small) {
		t.Errorf("ReadRecord after shrink = %q, want %q", got, small)
	}
	// the surplus overflow pages must be back on the free list rather than
	// requiring new file growth for the next allocation.
	if _, err := pf.GetFreePage(); err != nil {
		t.Fatalf("GetFreePage: %v", err)
	}
	if pf.Header.PageCount != pagesBefore {
		t.Errorf("PageCount grew to %d after reusing an unlinked overflow page, want unchanged %d", pf.Header.PageCount, pagesBefore)
	}
}

func TestOverwriteRecordGrowAddsOverflowPages(t *testing.T) {
	pf := openTestFile(t)

	id, err := pf.WriteRecord([]byte("tiny"), page.Leaf)
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	big := bytes.Repeat([]byte("y"), 600)
	if err := pf.OverwriteRecord(id, big, page.Leaf); err != nil {
		t.Fatalf("OverwriteRecord: %v", err)
	}
	got, err := pf.ReadRecord(id)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if !bytes.Equal(got, big) {
		t.Errorf("ReadRecord after grow returned %d bytes, want %d matching bytes", len(got), len(big))
	}
}
