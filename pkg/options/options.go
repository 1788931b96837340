// Package options provides data structures and functions for configuring
// the Embercask database. It defines various parameters that control
// Embercask's storage behavior, performance, and maintenance operations,
// such as directory paths, segment characteristics, and compaction
// intervals.
package options

import (
	"strings"
	"time"

	"github.com/iamNilotpal/embercask/pkg/errors"
)

// Defines configurable parameters for each segment.
// It provides fine-grained control over segment behavior, performance, and resource utilization.
type segmentOptions struct {
	// Defines the maximum size a segment can grow to before rotation.
	// Appending a record that would exceed this ceiling triggers rotation;
	// a single record larger than the ceiling is rejected as unsupported.
	//
	//  - Default: 32MiB
	//  - Maximum: 256MiB
	//  - Minimum: 1MiB
	Size uint64 `json:"maxSegmentSize"`

	// Specifies where segment files are stored, relative to the directory
	// that holds the database's metadata file.
	//
	// Default: "segments"
	Directory string `json:"directory"`

	// Defines the filename prefix for segment files.
	// Final filenames are `prefix_<id>.data` and `prefix_<id>.index`.
	//
	// Default: "segment"
	Prefix string `json:"prefix"`
}

// Defines configurable parameters for background compaction.
type compactionOptions struct {
	// ThresholdBytes is the free-byte count a segment must cross before it
	// is enrolled in the compaction queue.
	//
	// Default: 0.75 * segment ceiling
	ThresholdBytes uint64 `json:"thresholdBytes"`

	// Interval is how often the compaction worker polls the task queue.
	//
	// Default: 5s
	Interval time.Duration `json:"interval"`
}

// Defines configurable parameters for the segmented, block-aligned read
// cache.
type readCacheOptions struct {
	// Enable turns the read cache on or off globally. Individual reads can
	// still opt out via ReadOptions.UseReadCache.
	//
	// Default: true
	Enable bool `json:"enable"`

	// Bytes is the total memory budget for cached blocks across all shards.
	//
	// Default: 32MiB
	Bytes uint64 `json:"bytes"`

	// Shards is the number of independently-locked LRU shards the budget is
	// divided across.
	//
	// Default: 16
	Shards int `json:"shards"`
}

// FileStrategy selects the backing I/O strategy for segment files.
type FileStrategy string

const (
	// FileStrategyPread backs segment files with pread/pwrite and an
	// in-memory staging buffer for the active segment.
	FileStrategyPread FileStrategy = "pread"
	// FileStrategyMMap backs segment files with a memory-mapped file.
	FileStrategyMMap FileStrategy = "mmap"
)

// Defines the configuration parameters for an Embercask DB instance.
// It provides control over storage, performance and maintenance aspects.
type Options struct {
	// DataDir is carried in Options but is not read by the engine: the
	// metadata file lives at the path passed to Open, and segment files in
	// SegmentOptions.Directory next to it.
	//
	// Default: "/var/lib/embercask"
	DataDir string `json:"dataDir"`

	// FileStrategy selects the I/O backend (pread or mmap) used for both
	// the active segment and read-only segment handles.
	//
	// Default: FileStrategyPread
	FileStrategy FileStrategy `json:"fileStrategy"`

	// MaxOpenFiles bounds the open read-only segment handle pool.
	//
	// Default: 16
	MaxOpenFiles int `json:"maxOpenFiles"`

	// CompressValue enables value compression via the configured codec.
	//
	// Default: true
	CompressValue bool `json:"compressValue"`

	// SyncInterval is how often the background sync worker forces the
	// active data file to stable storage.
	//
	// Default: 10s
	SyncInterval time.Duration `json:"syncInterval"`

	// SyncMaxIOError is the number of consecutive sync failures tolerated
	// before the engine transitions to read-only.
	//
	// Default: 32
	SyncMaxIOError int `json:"syncMaxIOError"`

	// Configures segment management including size limits and naming convention.
	SegmentOptions *segmentOptions `json:"segmentOptions"`

	// Configures the background compactor.
	CompactionOptions *compactionOptions `json:"compactionOptions"`

	// Configures the block read cache.
	ReadCacheOptions *readCacheOptions `json:"readCacheOptions"`
}

// WriteOptions controls the durability of an individual Put or Delete.
type WriteOptions struct {
	// Sync forces the active data file to stable storage before the call
	// returns, at the cost of latency.
	Sync bool
}

// ReadOptions controls how an individual Get is served.
type ReadOptions struct {
	// UseReadCache routes the read through the block cache. When false,
	// the record is read directly from the segment file, bypassing the
	// cache for this call only.
	UseReadCache bool
}

// DefaultWriteOptions returns the zero-value WriteOptions (no forced sync).
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{Sync: false}
}

// DefaultReadOptions returns ReadOptions with the read cache enabled.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{UseReadCache: true}
}

// OptionFunc is a function type that modifies the Embercask system's configuration.
type OptionFunc func(*Options)

// Applies a predefined set of default configuration values to the Options struct.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		opts := NewDefaultOptions()
		*o = opts
	}
}

// Sets the primary data directory for Embercask.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// Sets how often the compaction worker polls the task queue.
func WithCompactInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval > 0 {
			o.CompactionOptions.Interval = interval
		}
	}
}

// Sets the free-byte threshold that enrolls a segment for compaction.
func WithCompactionThreshold(bytes uint64) OptionFunc {
	return func(o *Options) {
		if bytes > 0 {
			o.CompactionOptions.ThresholdBytes = bytes
		}
	}
}

// Sets the directory specifically for storing segment files.
func WithSegmentDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.SegmentOptions.Directory = directory
		}
	}
}

// Sets the file name prefix for segment files.
func WithSegmentPrefix(prefix string) OptionFunc {
	return func(o *Options) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			o.SegmentOptions.Prefix = prefix
		}
	}
}

// Sets the maximum size of individual segment files.
func WithSegmentSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size >= MinSegmentSize && size <= MaxSegmentSize {
			o.SegmentOptions.Size = size
		}
	}
}

// Sets the I/O backend used for segment files.
func WithFileStrategy(strategy FileStrategy) OptionFunc {
	return func(o *Options) {
		if strategy == FileStrategyPread || strategy == FileStrategyMMap {
			o.FileStrategy = strategy
		}
	}
}

// Sets the capacity of the open read-only segment handle pool.
func WithMaxOpenFiles(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.MaxOpenFiles = n
		}
	}
}

// Enables or disables value compression.
func WithCompressValue(enable bool) OptionFunc {
	return func(o *Options) {
		o.CompressValue = enable
	}
}

// Sets the periodic sync interval.
func WithSyncInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval > 0 {
			o.SyncInterval = interval
		}
	}
}

// Sets how many consecutive sync failures are tolerated before the engine
// becomes read-only.
func WithSyncMaxIOError(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.SyncMaxIOError = n
		}
	}
}

// Enables or disables the block read cache globally.
func WithReadCacheEnable(enable bool) OptionFunc {
	return func(o *Options) {
		o.ReadCacheOptions.Enable = enable
	}
}

// Sets the total byte budget for the block read cache.
func WithReadCacheBytes(bytes uint64) OptionFunc {
	return func(o *Options) {
		if bytes > 0 {
			o.ReadCacheOptions.Bytes = bytes
		}
	}
}

// Sets the shard count for the block read cache.
func WithReadCacheShards(shards int) OptionFunc {
	return func(o *Options) {
		if shards > 0 {
			o.ReadCacheOptions.Shards = shards
		}
	}
}

// Validate checks that the fully-assembled Options are internally
// consistent. The With* funcs silently reject out-of-range input on their
// own, but Options can also be built by hand, so Validate is the one place
// that catches a bad combination before it reaches the engine.
func (o *Options) Validate() error {
	if o.SegmentOptions.Size < MinSegmentSize || o.SegmentOptions.Size > MaxSegmentSize {
		return errors.NewFieldRangeError(
			"SegmentOptions.Size", o.SegmentOptions.Size, MinSegmentSize, MaxSegmentSize,
		)
	}

	if o.CompactionOptions.ThresholdBytes == 0 {
		return errors.NewRequiredFieldError("CompactionOptions.ThresholdBytes")
	}
	if o.CompactionOptions.ThresholdBytes > o.SegmentOptions.Size {
		return errors.NewFieldRangeError(
			"CompactionOptions.ThresholdBytes", o.CompactionOptions.ThresholdBytes, uint64(1), o.SegmentOptions.Size,
		)
	}

	if o.ReadCacheOptions.Enable && o.ReadCacheOptions.Shards <= 0 {
		return errors.NewConfigurationValidationError(
			"ReadCacheOptions.Shards", "must be positive when the read cache is enabled",
		)
	}

	if o.MaxOpenFiles <= 0 {
		return errors.NewFieldFormatError("MaxOpenFiles", o.MaxOpenFiles, "positive integer")
	}

	return nil
}
