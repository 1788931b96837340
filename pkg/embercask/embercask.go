// Package embercask is the public entry point to the embedded key-value
// store: an append-only log with an in-memory index, following the
// Bitcask design. It is a thin facade over internal/engine that applies
// WriteOptions/ReadOptions defaults and exposes the engine's operations
// through a single DB handle per open database.
package embercask

import (
	"context"

	"github.com/iamNilotpal/embercask/internal/engine"
	"github.com/iamNilotpal/embercask/internal/iterator"
	"github.com/iamNilotpal/embercask/pkg/errors"
	"github.com/iamNilotpal/embercask/pkg/logger"
	"github.com/iamNilotpal/embercask/pkg/options"
	"github.com/iamNilotpal/embercask/pkg/seginfo"
)

// DB is a handle to one open database. It is safe for concurrent use by
// multiple goroutines.
type DB struct {
	engine *engine.Engine
	opts   *options.Options
}

// Open opens the database at path, creating it if it does not exist. path
// identifies both the database and its metadata file; segment files are
// stored in the Options.SegmentOptions.Directory subdirectory beside it,
// named with Options.SegmentOptions.Prefix. ctx is accepted for
// parity with the rest of the engine's operation surface and for future
// cancellable recovery, but Open itself does not block on ctx today.
func Open(ctx context.Context, path string, opts ...options.OptionFunc) (*DB, error) {
	o := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(seginfo.DatabaseName(path))
	eng, err := engine.Open(path, &engine.Config{Options: &o, Logger: log})
	if err != nil {
		return nil, err
	}

	return &DB{engine: eng, opts: &o}, nil
}

// Put stores key=value, using the default (non-forced-sync) write options.
func (db *DB) Put(ctx context.Context, key, value []byte) error {
	return db.PutWithOptions(ctx, key, value, options.DefaultWriteOptions())
}

// PutWithOptions stores key=value under the given WriteOptions.
func (db *DB) PutWithOptions(ctx context.Context, key, value []byte, wo options.WriteOptions) error {
	if len(key) == 0 {
		return errors.NewRequiredFieldError("key")
	}
	return db.engine.Put(key, value, wo)
}

// Get returns the live value for key, using the default read options (read
// cache enabled).
func (db *DB) Get(ctx context.Context, key []byte) ([]byte, error) {
	return db.GetWithOptions(ctx, key, options.DefaultReadOptions())
}

// GetWithOptions returns the live value for key under the given
// ReadOptions.
func (db *DB) GetWithOptions(ctx context.Context, key []byte, ro options.ReadOptions) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.NewRequiredFieldError("key")
	}
	return db.engine.Get(key, ro)
}

// Delete removes key, using the default (non-forced-sync) write options.
// It returns a not-found error if key has no live entry, even though the
// tombstone is still written durably.
func (db *DB) Delete(ctx context.Context, key []byte) error {
	return db.DeleteWithOptions(ctx, key, options.DefaultWriteOptions())
}

// DeleteWithOptions removes key under the given WriteOptions.
func (db *DB) DeleteWithOptions(ctx context.Context, key []byte, wo options.WriteOptions) error {
	if len(key) == 0 {
		return errors.NewRequiredFieldError("key")
	}
	return db.engine.Delete(key, wo)
}

// Flush forces the active segment's buffered bytes to the kernel.
func (db *DB) Flush(ctx context.Context) error {
	return db.engine.Flush()
}

// Compact drains and processes the current compaction task queue
// synchronously, in addition to the engine's own periodic background pass.
func (db *DB) Compact(ctx context.Context) error {
	return db.engine.Compact()
}

// Iterator returns a lazy, single-pass view over every live key as of the
// moment Iterator is called.
func (db *DB) Iterator(ctx context.Context) *iterator.Iterator {
	return db.engine.Iterator()
}

// Close flushes and releases every resource held by db. Close is
// idempotent: calling it more than once returns engine.ErrEngineClosed.
func (db *DB) Close(ctx context.Context) error {
	return db.engine.Close()
}
