package options

import "time"

const (
	// Specifies the default value of Options.DataDir. The engine does not read
	// DataDir; files are placed relative to the database path given to Open.
	DefaultDataDir = "/var/lib/embercask"

	// Defines the default time duration between automatic compaction polls.
	// The compaction worker wakes up this often to check whether any segment
	// has crossed the dead-byte threshold; it does not mean compaction itself
	// only happens every 5 seconds.
	DefaultCompactInterval = time.Second * 5

	// Represents the minimum allowed size for a segment file in bytes (1MiB).
	MinSegmentSize uint64 = 1 * 1024 * 1024

	// Represents the maximum allowed size for a segment file in bytes (256MiB).
	MaxSegmentSize uint64 = 256 * 1024 * 1024

	// Specifies the default target size for a new segment file in bytes (32MiB).
	DefaultSegmentSize uint64 = 32 * 1024 * 1024

	// DefaultCompactionThresholdBytes is 0.75 * DefaultSegmentSize: a segment
	// is enrolled for compaction once at least this many of its bytes are
	// dead (overwritten or deleted).
	DefaultCompactionThresholdBytes uint64 = DefaultSegmentSize / 4 * 3

	// Specifies the default subdirectory within the main data directory
	// where segment files will be stored.
	DefaultSegmentDirectory = "segments"

	// Defines the default prefix for segment file names.
	// For example, a segment file might be named "segment_1.data".
	DefaultSegmentPrefix = "segment"

	// DefaultMaxOpenFiles bounds the open read-only segment handle pool.
	DefaultMaxOpenFiles = 16

	// DefaultCompressValue enables Snappy compression of stored values.
	DefaultCompressValue = true

	// DefaultSyncInterval is how often the background worker forces the
	// active data file to stable storage.
	DefaultSyncInterval = time.Second * 10

	// DefaultSyncMaxIOError is the number of consecutive sync failures
	// tolerated before the engine transitions to read-only.
	DefaultSyncMaxIOError = 32

	// DefaultReadCacheEnable turns the block read cache on by default.
	DefaultReadCacheEnable = true

	// DefaultReadCacheBytes is the total memory budget for cached blocks (32MiB).
	DefaultReadCacheBytes uint64 = 32 * 1024 * 1024

	// DefaultReadCacheShards is the number of independently-locked LRU shards
	// the read cache budget is divided across.
	DefaultReadCacheShards = 16
)

// Holds the default configuration settings for an Embercask instance.
var defaultOptions = Options{
	DataDir:        DefaultDataDir,
	FileStrategy:   FileStrategyPread,
	MaxOpenFiles:   DefaultMaxOpenFiles,
	CompressValue:  DefaultCompressValue,
	SyncInterval:   DefaultSyncInterval,
	SyncMaxIOError: DefaultSyncMaxIOError,
	SegmentOptions: &segmentOptions{
		Size:      DefaultSegmentSize,
		Prefix:    DefaultSegmentPrefix,
		Directory: DefaultSegmentDirectory,
	},
	CompactionOptions: &compactionOptions{
		ThresholdBytes: DefaultCompactionThresholdBytes,
		Interval:       DefaultCompactInterval,
	},
	ReadCacheOptions: &readCacheOptions{
		Enable: DefaultReadCacheEnable,
		Bytes:  DefaultReadCacheBytes,
		Shards: DefaultReadCacheShards,
	},
}

// NewDefaultOptions returns a fresh copy of the default configuration. The
// nested option structs are allocated anew so callers mutating the returned
// value (via With* funcs) never alias the package-level defaults.
func NewDefaultOptions() Options {
	o := defaultOptions
	segCopy := *defaultOptions.SegmentOptions
	compCopy := *defaultOptions.CompactionOptions
	cacheCopy := *defaultOptions.ReadCacheOptions
	o.SegmentOptions = &segCopy
	o.CompactionOptions = &compCopy
	o.ReadCacheOptions = &cacheCopy
	return o
}
