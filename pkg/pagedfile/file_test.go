// ABOUTME: integration tests for Open/Close, free-page allocation, and
// ABOUTME: unlinking against a real file

package pagedfile

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/kbolino/blinkkv/pkg/page"
)

func testConfig() page.Config {
	return page.Config{PageSize: 256, PageHeaderSize: page.HeaderSize, FileHeaderSize: baseHeaderSize}
}

func openTestFile(t *testing.T) *PagedFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file.db")
	pf := New(path, testConfig())
	if err := pf.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if pf.IsOpen() {
			if err := pf.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		}
	})
	return pf
}

func TestOpenTwiceFails(t *testing.T) {
	pf := openTestFile(t)
	if err := pf.Open(); !errors.Is(err, ErrFileAlreadyOpened) {
		t.Errorf("second Open = %v, want ErrFileAlreadyOpened", err)
	}
}

func TestCloseTwiceFails(t *testing.T) {
	pf := openTestFile(t)
	if err := pf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pf.Close(); !errors.Is(err, ErrFileAlreadyClosed) {
		t.Errorf("second Close = %v, want ErrFileAlreadyClosed", err)
	}
}

func TestGetFreePageGrowsFileWhenNoFreeList(t *testing.T) {
	pf := openTestFile(t)

	p1, err := pf.GetFreePage()
	if err != nil {
		t.Fatalf("GetFreePage: %v", err)
	}
	p2, err := pf.GetFreePage()
	if err != nil {
		t.Fatalf("GetFreePage: %v", err)
	}
	if p1.ID() == p2.ID() {
		t.Errorf("GetFreePage returned duplicate id %d", p1.ID())
	}
	if pf.Header.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", pf.Header.PageCount)
	}
}

func TestUnlinkThenGetFreePageReusesPage(t *testing.T) {
	pf := openTestFile(t)

	p, err := pf.GetFreePage()
	if err != nil {
		t.Fatalf("GetFreePage: %v", err)
	}
	p.Header.Type = page.Leaf
	if err := p.Flush(pf.File()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	reusedID := p.ID()

	if err := pf.UnlinkPagesFrom(reusedID); err != nil {
		t.Fatalf("UnlinkPagesFrom: %v", err)
	}
	if pf.Header.FirstFreePage != reusedID {
		t.Errorf("FirstFreePage = %d, want %d", pf.Header.FirstFreePage, reusedID)
	}

	reused, err := pf.GetFreePage()
	if err != nil {
		t.Fatalf("GetFreePage after unlink: %v", err)
	}
	if reused.ID() != reusedID {
		t.Errorf("GetFreePage returned id %d, want reused id %d", reused.ID(), reusedID)
	}
	if reused.Header.Type != page.Unused {
		t.Errorf("reused page type = %v, want Unused", reused.Header.Type)
	}
	if pf.Header.FirstFreePage != page.NullID {
		t.Errorf("FirstFreePage after reuse = %d, want NullID", pf.Header.FirstFreePage)
	}
}

func TestUnlinkMultiplePagesQueuesInOrder(t *testing.T) {
	pf := openTestFile(t)

	p1, _ := pf.GetFreePage()
	p2, _ := pf.GetFreePage()

	if err := pf.UnlinkPagesFrom(p1.ID()); err != nil {
		t.Fatalf("UnlinkPagesFrom(p1): %v", err)
	}
	if err := pf.UnlinkPagesFrom(p2.ID()); err != nil {
		t.Fatalf("UnlinkPagesFrom(p2): %v", err)
	}

	first, err := pf.GetFreePage()
	if err != nil {
		t.Fatalf("GetFreePage: %v", err)
	}
	if first.ID() != p1.ID() {
		t.Errorf("first reused id = %d, want %d (FIFO free list)", first.ID(), p1.ID())
	}
	second, err := pf.GetFreePage()
	if err != nil {
		t.Fatalf("GetFreePage: %v", err)
	}
	if second.ID() != p2.ID() {
		t.Errorf("second reused id = %d, want %d (FIFO free list)", second.ID(), p2.ID())
	}
}

func TestHeaderPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.db")
	cfg := testConfig()

	pf := New(path, cfg)
	if err := pf.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := pf.GetFreePage(); err != nil {
			t.Fatalf("GetFreePage: %v", err)
		}
	}
	if err := pf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	pf2 := New(path, cfg)
	if err := pf2.Open(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer pf2.Close()
	if pf2.Header.PageCount != 5 {
		t.Errorf("PageCount after reopen = %d, want 5", pf2.Header.PageCount)
	}
}
