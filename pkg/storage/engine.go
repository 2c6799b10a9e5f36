// ABOUTME: top-level database facade composing btree.Tree with the data-page value store
// ABOUTME: implements spec.md §4.5's "Top-level operations" and §6's external interface

package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbolino/blinkkv/internal/logger"
	"github.com/kbolino/blinkkv/internal/metrics"
	"github.com/kbolino/blinkkv/pkg/btree"
)

// Config is the single configuration struct for an Engine, covering the
// paged file, the tree, and the data-page store (spec.md §6's
// "Configuration" table, defaults fixed by original_source/config.h per
// SPEC_FULL.md §7).
type Config struct {
	PageSize uint32

	MinKeysOnEachNode uint32
	MaxKeysOnEachNode uint32
	NCachedNodes      int

	NCachedDataPages         int
	MaxAvailablePages        uint32
	MinAvailableSpace        uint32
	MaxEmptyValuesOnEachPage uint32
}

// DefaultConfig returns the tunables original_source/config.h fixes,
// extended with this module's data-page defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:                 16384,
		MinKeysOnEachNode:        100,
		MaxKeysOnEachNode:        1000,
		NCachedNodes:             1000,
		NCachedDataPages:         1000,
		MaxAvailablePages:        256,
		MinAvailableSpace:        256,
		MaxEmptyValuesOnEachPage: 16,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PageSize == 0 {
		c.PageSize = d.PageSize
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
	if c.NCachedDataPages == 0 {
		c.NCachedDataPages = d.NCachedDataPages
	}
	if c.MaxAvailablePages == 0 {
		c.MaxAvailablePages = d.MaxAvailablePages
	}
	if c.MinAvailableSpace == 0 {
		c.MinAvailableSpace = d.MinAvailableSpace
	}
	if c.MaxEmptyValuesOnEachPage == 0 {
		c.MaxEmptyValuesOnEachPage = d.MaxEmptyValuesOnEachPage
	}
	return c
}

func (c Config) btreeConfig() btree.Config {
	bc := btree.DefaultConfig()
	bc.PageSize = c.PageSize
	bc.MinKeysOnEachNode = c.MinKeysOnEachNode
	bc.MaxKeysOnEachNode = c.MaxKeysOnEachNode
	bc.NCachedNodes = c.NCachedNodes
	// the file header must reserve room for both the tree's root id and
	// this store's availability directory, chained per pagedfile.HeaderExt
	// (spec.md §9 "file ⊂ tree ⊂ storage").
	bc.FileHeaderSize = 28 + 8 + uint32(DirectoryHeaderSize(int(c.MaxAvailablePages)))
	return bc
}

// Engine is the top-level facade: Open/Close/Insert/Update/Erase/Select,
// composed from Store + Tree exactly per spec.md §4.5.
type Engine struct {
	tree     *btree.Tree
	store    *Store
	cfg      Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

// Registry exposes the Engine's private Prometheus registry so a caller can
// serve it over HTTP (e.g. promhttp.HandlerFor), without forcing every
// Engine in a process onto the package-global default registry.
func (e *Engine) Registry() *prometheus.Registry { return e.registry }

// Open creates or opens path as a database file.
func Open(path string, cfg Config, log *logger.Logger) (*Engine, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Noop()
	}
	engineLog := log.Component("engine")

	tree, err := btree.Open(path, cfg.btreeConfig(), log)
	if err != nil {
		return nil, err
	}
	store := newStore(tree, cfg, log)

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	tree.SetHooks(m)
	store.SetHooks(m)

	e := &Engine{
		tree:     tree,
		store:    store,
		cfg:      cfg,
		log:      engineLog,
		metrics:  m,
		registry: registry,
	}
	engineLog.Info("opened engine").Str("path", path).Send()
	return e, nil
}

// Close flushes and closes the data-page store, the tree, and the paged
// file, in that order (spec.md §4.5/§6).
func (e *Engine) Close() error {
	if err := e.store.Close(); err != nil {
		return err
	}
	if err := e.tree.Close(); err != nil {
		return err
	}
	e.log.Info("closed engine").Send()
	return nil
}

func (e *Engine) record(op string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
	}
	e.metrics.RecordOperation(op, status, time.Since(start))
	e.log.LogOperation(op, time.Since(start), *err)
}

// validateKey enforces spec.md §6's key constraints.
func (e *Engine) validateKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if uint32(len(key)) > e.cfg.btreeConfig().MaxKeyLen() {
		return ErrKeyTooLong
	}
	return nil
}

// Insert stores value under key: add_value(value) then add_key(key, ptr),
// with a compensating remove_value on a key-exists failure (spec.md §4.5
// "insert").
func (e *Engine) Insert(key, value []byte) (err error) {
	start := time.Now()
	defer e.record("insert", start, &err)

	if verr := e.validateKey(key); verr != nil {
		err = verr
		return
	}
	if len(value) == 0 {
		err = ErrEmptyValue
		return
	}

	ptr, aerr := e.store.AddValue(value)
	if aerr != nil {
		err = aerr
		return
	}
	if kerr := e.tree.Add(key, ptr); kerr != nil {
		if rerr := e.store.RemoveValue(ptr); rerr != nil {
			err = rerr
			return
		}
		err = kerr
		return
	}
	return
}

// Update replaces the value stored under key (spec.md §4.5 "update").
func (e *Engine) Update(key, value []byte) (err error) {
	start := time.Now()
	defer e.record("update", start, &err)

	if verr := e.validateKey(key); verr != nil {
		err = verr
		return
	}
	if len(value) == 0 {
		err = ErrEmptyValue
		return
	}

	ptr, ferr := e.tree.Find(key)
	if ferr != nil {
		err = ferr
		return
	}
	err = e.store.UpdateValue(ptr, value)
	return
}

// Erase removes key (spec.md §4.5 "erase").
func (e *Engine) Erase(key []byte) (err error) {
	start := time.Now()
	defer e.record("erase", start, &err)

	if verr := e.validateKey(key); verr != nil {
		err = verr
		return
	}

	ptr, rerr := e.tree.Remove(key)
	if rerr != nil {
		err = rerr
		return
	}
	err = e.store.RemoveValue(ptr)
	return
}

// Select returns the value stored under key (spec.md §4.5 "select").
func (e *Engine) Select(key []byte) (value []byte, err error) {
	start := time.Now()
	defer e.record("select", start, &err)

	if verr := e.validateKey(key); verr != nil {
		err = verr
		return
	}

	ptr, ferr := e.tree.Find(key)
	if ferr != nil {
		err = ferr
		return
	}
	value, err = e.store.FindValue(ptr)
	return
}
