// ABOUTME: sentinel errors for the B-link-tree subsystem
// ABOUTME: mirrors spec.md §7's structural/validation error taxonomy

package btree

import "errors"

var (
	// ErrKeyExists is returned by Add when the key is already present.
	ErrKeyExists = errors.New("btree: key already exists")
	// ErrKeyNotExists is returned by Remove/Find when the key is absent.
	ErrKeyNotExists = errors.New("btree: key does not exist")
	// ErrInvalidNode is returned when a page's on-disk type is neither
	// internal nor leaf where one was expected.
	ErrInvalidNode = errors.New("btree: invalid node")
	// ErrNodeUnavailable is returned when a node cannot be resolved
	// through the cache, the live table, or disk.
	ErrNodeUnavailable = errors.New("btree: node unavailable")
	// ErrChildNotExists is returned when a parent's pointer array doesn't
	// contain the expected child id during promote/demote.
	ErrChildNotExists = errors.New("btree: child does not exist")
	// ErrExceededMaxKeyCount is returned when a node body cannot be
	// serialized within its work size even after split.
	ErrExceededMaxKeyCount = errors.New("btree: exceeded max key count")
	// ErrInvalidBTree is returned by Close on an already-closed tree.
	ErrInvalidBTree = errors.New("btree: invalid btree")
	// ErrKeyTooLong is returned when a key exceeds the per-node capacity
	// implied by min_keys_on_each_node and the page work size.
	ErrKeyTooLong = errors.New("btree: key too long")
)
