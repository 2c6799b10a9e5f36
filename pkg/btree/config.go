// ABOUTME: tree-level tunables, defaulted the way config.h fixes them upstream
// ABOUTME: mirrors original_source/include/spiderdb/core/config.h

package btree

import "github.com/kbolino/blinkkv/pkg/page"

// Config holds the tunables spec.md §6 lists for the paged file and the
// tree. Open replaces zero-valued fields with the DefaultConfig values.
type Config struct {
	PageSize       uint32
	PageHeaderSize uint32
	FileHeaderSize uint32

	MinKeysOnEachNode uint32
	MaxKeysOnEachNode uint32
	NCachedNodes      int
}

// DefaultConfig returns the defaults fixed by the original C++
// implementation's config.h, which spec.md §6 leaves to the implementer.
func DefaultConfig() Config {
	return Config{
		PageSize:          16384,
		PageHeaderSize:    page.HeaderSize + nodeExtraSize,
		FileHeaderSize:    28 + 8, // pagedfile base header + root id
		MinKeysOnEachNode: 100,
		MaxKeysOnEachNode: 1000,
		NCachedNodes:      1000,
	}
}

// withDefaults fills any zero-valued field in c from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PageSize == 0 {
		c.PageSize = d.PageSize
	}
	if c.PageHeaderSize == 0 {
		c.PageHeaderSize = d.PageHeaderSize
	}
	if c.FileHeaderSize == 0 {
		c.FileHeaderSize = d.FileHeaderSize
	}
	if c.MinKeysOnEachNode == 0 {
		c.MinKeysOnEachNode = d.MinKeysOnEachNode
	}
	if c.MaxKeysOnEachNode == 0 {
		c.MaxKeysOnEachNode = d.MaxKeysOnEachNode
	}
	if c.NCachedNodes == 0 {
		c.NCachedNodes = d.NCachedNodes
	}
	return c
}

// pageConfig derives the page.Config this tree's pages are laid out with.
func (c Config) pageConfig() page.Config {
	return page.Config{
		PageSize:       c.PageSize,
		PageHeaderSize: c.PageHeaderSize,
		FileHeaderSize: c.FileHeaderSize,
	}
}

// MaxKeyLen is the longest key that's guaranteed to fit min_keys_on_each_node
// keys on a single node, per spec.md §6's key-length constraint.
func (c Config) MaxKeyLen() uint32 {
	return c.pageConfig().WorkSize() / c.MinKeysOnEachNode
}
