// ABOUTME: performance benchmarks for Tree add/find/remove
// ABOUTME: mirrors the teacher's pkg/storage/benchmark_test.go shape

package btree

import (
	"fmt"
	"path/filepath"
	"testing"
)

func openBenchTree(b *testing.B) *Tree {
	b.Helper()
	path := filepath.Join(b.TempDir(), "bench.db")
	tr, err := Open(path, testConfig(), nil)
	if err != nil {
		b.Fatalf("Open: %v", err)
	}
	b.Cleanup(func() {
		if err := tr.Close(); err != nil {
			b.Errorf("Close: %v", err)
		}
	})
	return tr
}

func BenchmarkTreeAdd(b *testing.B) {
	tr := openBenchTree(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := tr.Add(key(i), int64(i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTreeFind(b *testing.B) {
	tr := openBenchTree(b)

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		if err := tr.Add(key(i), int64(i)); err != nil {
			b.Fatalf("Add: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tr.Find(key(i % numKeys)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTreeRemove(b *testing.B) {
	tr := openBenchTree(b)

	numKeys := b.N
	for i := 0; i < numKeys; i++ {
		if err := tr.Add(key(i), int64(i)); err != nil {
			b.Fatalf("Add: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tr.Remove(key(i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTreeAddBatchSizes(b *testing.B) {
	sizes := []int{10, 100, 1000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("batch_%d", size), func(b *testing.B) {
			tr := openBenchTree(b)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for j := 0; j < size; j++ {
					n := i*size + j
					if err := tr.Add(key(n), int64(n)); err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}
