// ABOUTME: small slice helpers shared by insert/split/delete/merge

package btree

func insertKeyAt(keys [][]byte, pos int, key []byte) [][]byte {
	keys = append(keys, nil)
	copy(keys[pos+1:], keys[pos:])
	keys[pos] = key
	return keys
}

func insertPtrAt(ptrs []int64, pos int, ptr int64) []int64 {
	ptrs = append(ptrs, 0)
	copy(ptrs[pos+1:], ptrs[pos:])
	ptrs[pos] = ptr
	return ptrs
}

func removeKeyAt(keys [][]byte, pos int) [][]byte {
	return append(keys[:pos], keys[pos+1:]...)
}

func removePtrAt(ptrs []int64, pos int) []int64 {
	return append(ptrs[:pos], ptrs[pos+1:]...)
}
