// Package file provides the two capability interfaces the engine needs
// from a segment file — random reads, and durable appends — each with a
// pread-based and an mmap-based implementation, selected by Strategy.
// Callers depend only on Readable / ReadWrite; neither implementation
// leaks its backing strategy.
package file

import (
	"errors"
	"sync"
)

// Strategy selects which backend a segment file uses.
type Strategy int

const (
	// StrategyPread backs reads and writes with os.File pread/pwrite and an
	// in-memory staging buffer for unflushed writes.
	StrategyPread Strategy = iota
	// StrategyMMap backs reads and writes with a memory-mapped file.
	StrategyMMap
)

// ErrOverflow is returned by Allocate when n would push the file past its
// capacity. The file manager reacts to this by rotating to a new segment.
var ErrOverflow = errors.New("file: allocate would exceed segment capacity")

// Readable is a random-access read view over a file. Implementations are
// safe for concurrent use by multiple goroutines; reads never block on a
// writer's allocate/flush.
type Readable interface {
	// ReadAt reads len(dst) bytes starting at offset, returning the number
	// of bytes actually read. Short reads at end-of-file return
	// io.ErrUnexpectedEOF (where io.ReaderAt would return io.EOF); a read
	// starting at or past end-of-file returns 0 and io.EOF.
	ReadAt(offset int64, dst []byte) (int, error)

	// Size returns the file's logical size: the capacity for a
	// preallocated active segment, or the actual file size for a sealed,
	// read-only segment.
	Size() int64

	// Close releases any resources (mapped memory, file descriptor) held
	// by this view.
	Close() error
}

// ReadWrite extends Readable with the append path the active segment uses.
// allocate/flush are serialized by an internal write lock; reads are not.
type ReadWrite interface {
	Readable

	// Allocate atomically reserves n contiguous bytes and returns a
	// buffer the caller serializes the record into, along with the byte
	// offset of the reservation. Returns ErrOverflow if the reservation
	// would exceed capacity.
	Allocate(n int) (buf []byte, offset int64, err error)

	// Flush pushes dirty bytes toward the kernel. force=false is
	// best-effort (a buffered backend may only flush once its dirty
	// region crosses an internal threshold); force=true flushes
	// unconditionally.
	Flush(force bool) error

	// Sync forces previously-flushed bytes to stable storage.
	Sync() error
}

// flushThreshold is the dirty-byte watermark a best-effort Flush(false)
// honors for the pread-staged backend; it mirrors the block cache's 4 KiB
// granularity so a best-effort flush tends to write whole blocks.
const flushThreshold = 4096

// writeLock is embedded by both ReadWrite implementations so Allocate and
// Flush serialize against each other without serializing against ReadAt.
type writeLock struct {
	mu sync.Mutex
}

// OpenReadable opens path as a read-only segment file under strategy. Used
// by the file manager to acquire sealed, immutable segments.
func OpenReadable(strategy Strategy, path string) (Readable, error) {
	switch strategy {
	case StrategyMMap:
		return openMMapReadable(path)
	default:
		return openPreadReadable(path)
	}
}

// OpenReadWrite opens (creating if necessary) path as the active segment
// file under strategy, preallocated to capacity bytes. used is the number
// of leading bytes already occupied by live records — 0 for a freshly
// rotated segment, or a watermark recovered by scanning the data file when
// resuming a segment that was active at crash time.
func OpenReadWrite(strategy Strategy, path string, capacity, used int64) (ReadWrite, error) {
	switch strategy {
	case StrategyMMap:
		return openMMapReadWrite(path, capacity, used)
	default:
		return openPreadReadWrite(path, capacity, used)
	}
}
