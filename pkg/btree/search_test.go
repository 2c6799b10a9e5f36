// ABOUTME: unit tests for binarySearch's exact-match/insertion-point contract

package btree

import "testing"

func TestBinarySearchExactMatch(t *testing.T) {
	keys := [][]byte{[]byte("b"), []byte("d"), []byte("f")}
	if idx := binarySearch(keys, []byte("d")); idx != 1 {
		t.Errorf("binarySearch(d) = %d, want 1", idx)
	}
}

func TestBinarySearchInsertionPoint(t *testing.T) {
	keys := [][]byte{[]byte("b"), []byte("d"), []byte("f")}

	cases := []struct {
		key  string
		want int // encoded as -(pos+1)
	}{
		{"a", -1},
		{"c", -2},
		{"e", -3},
		{"g", -4},
	}
	for _, c := range cases {
		got := binarySearch(keys, []byte(c.key))
		if got != c.want {
			t.Errorf("binarySearch(%s) = %d, want %d", c.key, got, c.want)
		}
	}
}

func TestBinarySearchEmpty(t *testing.T) {
	if idx := binarySearch(nil, []byte("a")); idx != -1 {
		t.Errorf("binarySearch(nil, a) = %d, want -1", idx)
	}
}
