// ABOUTME: performance benchmarks for Engine insert/select/update/erase
// ABOUTME: mirrors the teacher's pkg/storage/benchmark_test.go shape

package storage

import (
	"fmt"
	"path/filepath"
	"testing"
)

func openBenchEngine(b *testing.B) *Engine {
	b.Helper()
	path := filepath.Join(b.TempDir(), "bench.db")
	e, err := Open(path, testConfig(), nil)
	if err != nil {
		b.Fatalf("Open: %v", err)
	}
	b.Cleanup(func() {
		if err := e.Close(); err != nil {
			b.Errorf("Close: %v", err)
		}
	})
	return e
}

func BenchmarkEngineInsert(b *testing.B) {
	e := openBenchEngine(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		val := []byte(fmt.Sprintf("value%010d", i))
		if err := e.Insert(key, val); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineSelect(b *testing.B) {
	e := openBenchEngine(b)

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		val := []byte(fmt.Sprintf("value%010d", i))
		if err := e.Insert(key, val); err != nil {
			b.Fatalf("Insert: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("key%010d", i%numKeys))
		if _, err := e.Select(key); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineUpdate(b *testing.B) {
	e := openBenchEngine(b)

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		val := []byte(fmt.Sprintf("value%010d", i))
		if err := e.Insert(key, val); err != nil {
			b.Fatalf("Insert: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("key%010d", i%numKeys))
		val := []byte(fmt.Sprintf("newvalue%010d", i))
		if err := e.Update(key, val); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineErase(b *testing.B) {
	e := openBenchEngine(b)

	numKeys := b.N
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		val := []byte(fmt.Sprintf("value%010d", i))
		if err := e.Insert(key, val); err != nil {
			b.Fatalf("Insert: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		if err := e.Erase(key); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineInsertBatchSizes(b *testing.B) {
	sizes := []int{10, 100, 1000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("batch_%d", size), func(b *testing.B) {
			e := openBenchEngine(b)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for j := 0; j < size; j++ {
					key := []byte(fmt.Sprintf("key%010d", i*size+j))
					val := []byte(fmt.Sprintf("value%010d", i*size+j))
					if err := e.Insert(key, val); err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}
