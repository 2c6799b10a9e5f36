// ABOUTME: unit tests for Page header/payload encode-decode and the
// ABOUTME: never-written-page EOF-as-unused fallback

package page

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func testFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "pages.db"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func testConfig() Config {
	return Config{PageSize: 256, PageHeaderSize: HeaderSize, FileHeaderSize: 0}
}

func TestPageFlushLoadRoundTrip(t *testing.T) {
	f := testFile(t)
	cfg := testConfig()

	p := New(3, cfg)
	p.Header.Type = Leaf
	p.SetPayload([]byte("hello page"), uint32(len("hello page")))
	if err := p.Flush(f); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	out := New(3, cfg)
	if err := out.Load(f); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Header.Type != Leaf {
		t.Errorf("Type = %v, want %v", out.Header.Type, Leaf)
	}
	if out.Header.DataLen != uint32(len("hello page")) {
		t.Errorf("DataLen = %d, want %d", out.Header.DataLen, len("hello page"))
	}
	if !bytes.Equal(out.Payload()[:out.Header.DataLen], []byte("hello page")) {
		t.Errorf("Payload = %q, want %q", out.Payload()[:out.Header.DataLen], "hello page")
	}
}

func TestPageLoadNeverWrittenIsUnused(t *testing.T) {
	f := testFile(t)
	cfg := testConfig()

	p := New(10, cfg)
	if err := p.Load(f); err != nil {
		t.Fatalf("Load on never-written page: %v", err)
	}
	if p.Header.Type != Unused {
		t.Errorf("Type = %v, want Unused", p.Header.Type)
	}
	if p.Header.Next != NullID {
		t.Errorf("Next = %d, want NullID", p.Header.Next)
	}
}

func TestPageResetClearsHeaderAndPayload(t *testing.T) {
	cfg := testConfig()
	p := New(1, cfg)
	p.Header.Type = Leaf
	p.Header.Next = 5
	p.SetPayload([]byte("data"), 4)

	p.Reset()

	if p.Header.Type != Unused {
		t.Errorf("Type after Reset = %v, want Unused", p.Header.Type)
	}
	if p.Header.Next != NullID {
		t.Errorf("Next after Reset = %d, want NullID", p.Header.Next)
	}
	for i, b := range p.Payload() {
		if b != 0 {
			t.Fatalf("Payload[%d] = %d after Reset, want 0", i, b)
		}
	}
}

// codecStub is a minimal page.Codec for exercising the extended-header path.
type codecStub struct{ value uint32 }

func (c *codecStub) ExtraSize() int { return 4 }
func (c *codecStub) EncodeExtra(buf []byte) {
	buf[0] = byte(c.value)
	buf[1] = byte(c.value >> 8)
	buf[2] = byte(c.value >> 16)
	buf[3] = byte(c.value >> 24)
}
func (c *codecStub) DecodeExtra(buf []byte) {
	c.value = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

func TestPageExtendedHeaderRoundTrip(t *testing.T) {
	f := testFile(t)
	cfg := Config{PageSize: 256, PageHeaderSize: HeaderSize + 4, FileHeaderSize: 0}

	p := New(0, cfg)
	p.Header.Type = Internal
	stub := &codecStub{value: 424242}
	p.Extra = stub
	p.SetPayload([]byte("payload"), 7)
	if err := p.Flush(f); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	out := New(0, cfg)
	outStub := &codecStub{}
	out.Extra = outStub
	if err := out.Load(f); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if outStub.value != 424242 {
		t.Errorf("decoded extra = %d, want 424242", outStub.value)
	}
}
