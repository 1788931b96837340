// Package engine implements the storage engine: the key index, the
// compaction hints and task queue, and the put/get/delete/flush/compact
// operations that sit on top of the file manager and metadata log. A
// single mutex protects the index, the hints map, and the task queue
// together; the active data file has its own write lock inside the file
// manager.
package engine

import (
	stdErrors "errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iamNilotpal/embercask/internal/cache"
	"github.com/iamNilotpal/embercask/internal/compaction"
	"github.com/iamNilotpal/embercask/internal/compress"
	"github.com/iamNilotpal/embercask/internal/file"
	"github.com/iamNilotpal/embercask/internal/filemanager"
	"github.com/iamNilotpal/embercask/internal/index"
	"github.com/iamNilotpal/embercask/internal/iterator"
	"github.com/iamNilotpal/embercask/internal/metadata"
	"github.com/iamNilotpal/embercask/internal/record"
	"github.com/iamNilotpal/embercask/pkg/errors"
	"github.com/iamNilotpal/embercask/pkg/filesys"
	"github.com/iamNilotpal/embercask/pkg/logger"
	"github.com/iamNilotpal/embercask/pkg/options"
	"github.com/iamNilotpal/embercask/pkg/seginfo"
	"go.uber.org/zap"
)

// ErrEngineClosed is returned by every operation once Close has run.
var ErrEngineClosed = stdErrors.New("engine: operation on closed engine")

// Config bundles everything Open needs to construct an Engine.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// Engine is the storage engine for one database: the key index, the
// compaction bookkeeping, and the background sync/compaction workers,
// wired to a file manager and metadata log for one on-disk database.
type Engine struct {
	opts  *options.Options
	log   *zap.SugaredLogger
	codec compress.Codec

	segDir string
	prefix string

	fm     *filemanager.FileManager
	meta   *metadata.Log
	blocks *cache.BlockCache

	mu    sync.Mutex
	idx   *index.KeyIndex
	hints map[uint32]*compaction.Hint
	tasks []uint32

	readOnly atomic.Bool
	syncErrs atomic.Int32
	closed   atomic.Bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// Open opens (or creates) the database at path and recovers its key index
// from the metadata log's live-segment set. Segment files live in a
// "segments" subdirectory (configurable via Options.SegmentOptions)
// alongside the metadata file at path itself.
func Open(path string, cfg *Config) (*Engine, error) {
	opts := cfg.Options
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	segDir := filepath.Join(filepath.Dir(path), opts.SegmentOptions.Directory)

	if err := filesys.CreateDir(filepath.Dir(path), 0o755, true); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, filepath.Dir(path))
	}

	meta, err := metadata.Open(path)
	if err != nil {
		return nil, err
	}

	strategy := file.StrategyPread
	if opts.FileStrategy == options.FileStrategyMMap {
		strategy = file.StrategyMMap
	}

	fm, err := filemanager.Open(filemanager.Config{
		Logger:       logger.Named(log, "filemanager"),
		DataDir:      segDir,
		Prefix:       opts.SegmentOptions.Prefix,
		Strategy:     strategy,
		Capacity:     int64(opts.SegmentOptions.Size),
		MaxOpenFiles: opts.MaxOpenFiles,
		Metadata:     meta,
	})
	if err != nil {
		meta.Close()
		return nil, err
	}

	e := &Engine{
		opts:   opts,
		log:    logger.Named(log, "engine"),
		codec:  compress.Select(opts.CompressValue),
		segDir: segDir,
		prefix: opts.SegmentOptions.Prefix,
		fm:     fm,
		meta:   meta,
		idx:    index.New(),
		hints:  make(map[uint32]*compaction.Hint),
	}

	blocks, err := cache.NewBlockCache(opts.ReadCacheOptions.Bytes, opts.ReadCacheOptions.Shards, fm.ReadBlock)
	if err != nil {
		fm.Close()
		meta.Close()
		return nil, err
	}
	e.blocks = blocks

	if err := e.recover(); err != nil {
		fm.Close()
		meta.Close()
		return nil, err
	}

	e.stop = make(chan struct{})
	e.wg.Add(2)
	go e.syncLoop()
	go e.compactLoop()

	return e, nil
}

// recover replays every live segment's records into the key index,
// ascending by id, preferring each segment's index file and falling back
// to scanning its data file when the index file is missing or unreadable
// (the active segment at crash time, or any segment orphaned mid-rotation).
func (e *Engine) recover() error {
	for _, id := range e.meta.Snapshot() {
		idxPath := seginfo.IndexPath(e.segDir, e.prefix, id)
		if buf, err := os.ReadFile(idxPath); err == nil {
			e.applyIndexFile(id, buf)
			continue
		}

		dataPath := seginfo.DataPath(e.segDir, e.prefix, id)
		buf, err := os.ReadFile(dataPath)
		if err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read segment during recovery").
				WithSegmentID(int(id)).WithPath(dataPath)
		}
		e.applyDataFile(id, buf)
	}
	return nil
}

func (e *Engine) applyIndexFile(id uint32, buf []byte) {
	var offset int
	for offset < len(buf) {
		rec, n, err := record.DecodeIndexRecord(buf[offset:])
		if err != nil {
			e.log.Warnw("truncated segment index file, stopping replay", "segment", id, "error", err)
			break
		}
		offset += n
		e.applyEntry(id, rec.Offset, rec.Length, rec.Type, string(rec.Key))
	}
}

// applyDataFile is the fallback path: it decodes data records directly,
// stopping at the first decode failure or zero-length key, which can only
// be unwritten, zero-filled padding past the segment's true end.
func (e *Engine) applyDataFile(id uint32, buf []byte) {
	var offset int64
	for int(offset) < len(buf) {
		rec, n, err := record.DecodeDataRecord(buf[offset:])
		if err != nil || len(rec.Key) == 0 {
			break
		}
		e.applyEntry(id, uint32(offset), uint32(n), rec.Type, string(rec.Key))
		offset += int64(n)
	}
}

// applyEntry implements the recovery application rule for one log entry.
// It runs only from recover at Open time, before the background workers
// start, so nothing else can observe e.idx/e.hints/e.tasks concurrently
// and it does not take e.mu.
func (e *Engine) applyEntry(segID uint32, offset uint32, length uint32, typ record.Type, key string) {
	loc := index.RecordLocation{SegmentID: segID, Offset: offset}
	existing, ok := e.idx.Get(key)

	switch typ {
	case record.Set:
		switch {
		case !ok:
			e.idx.Set(key, index.Dir{Location: loc, EntrySize: length})
		case loc.Less(existing.Location):
			e.addFreeLocked(segID, uint64(length))
		case existing.Location.Less(loc):
			e.addFreeLocked(existing.Location.SegmentID, uint64(existing.EntrySize))
			e.idx.Set(key, index.Dir{Location: loc, EntrySize: length})
		}
	case record.Delete:
		e.addFreeLocked(segID, uint64(length))
		if ok && existing.Location.Less(loc) {
			e.addFreeLocked(existing.Location.SegmentID, uint64(existing.EntrySize))
			e.idx.Delete(key)
		}
	}
}

// addFreeLocked credits segID with n reclaimable bytes and, the first time
// this crosses the compaction threshold, enrolls it in the task queue. The
// active segment is never enrolled: it is still being written to and
// cannot be compacted.
func (e *Engine) addFreeLocked(segID uint32, n uint64) {
	h, ok := e.hints[segID]
	if !ok {
		h = &compaction.Hint{}
		e.hints[segID] = h
	}
	if h.AddFree(n, e.opts.CompactionOptions.ThresholdBytes) && segID != e.fm.ActiveID() {
		e.tasks = append(e.tasks, segID)
	}
}

// Put writes key=value as a live record. If wo.Sync is set, the active
// segment is forced to stable storage before Put returns.
func (e *Engine) Put(key, value []byte, wo options.WriteOptions) error {
	return e.write(record.Set, key, value, wo)
}

// Delete writes a tombstone for key. If the key has no live entry, the
// tombstone is still written durably, but Delete returns a not-found error
// to the caller.
func (e *Engine) Delete(key []byte, wo options.WriteOptions) error {
	return e.write(record.Delete, key, nil, wo)
}

func (e *Engine) write(typ record.Type, key, value []byte, wo options.WriteOptions) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if e.readOnly.Load() {
		return errors.NewUnsupportedError("engine is read-only after repeated sync failures")
	}

	stored := value
	if typ == record.Set {
		stored = e.codec.Encode(value)
	} else {
		stored = nil
	}

	encoded := record.EncodeDataRecord(typ, key, stored, uint32(time.Now().Unix()))
	if int64(len(encoded)) > int64(e.opts.SegmentOptions.Size) {
		return errors.NewUnsupportedError("record exceeds segment ceiling")
	}

	loc, err := e.fm.Append(typ, key, encoded)
	if err != nil {
		return err
	}

	keyStr := string(key)
	size := uint32(len(encoded))
	var notFound bool

	e.mu.Lock()
	existing, ok := e.idx.Get(keyStr)
	switch typ {
	case record.Delete:
		e.addFreeLocked(loc.SegmentID, uint64(size))
		if !ok {
			notFound = true
		} else {
			e.addFreeLocked(existing.Location.SegmentID, uint64(existing.EntrySize))
			e.idx.Delete(keyStr)
		}
	case record.Set:
		if ok {
			e.addFreeLocked(existing.Location.SegmentID, uint64(existing.EntrySize))
		}
		e.idx.Set(keyStr, index.Dir{Location: loc, EntrySize: size})
	}
	e.mu.Unlock()

	if wo.Sync {
		if err := e.fm.Sync(); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "sync failed")
		}
	}

	if notFound {
		return errors.NewNotFoundError(keyStr)
	}
	return nil
}

// Get returns the live value for key, decompressing it if the engine has
// value compression enabled.
func (e *Engine) Get(key []byte, ro options.ReadOptions) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	keyStr := string(key)
	e.mu.Lock()
	dir, ok := e.idx.Get(keyStr)
	e.mu.Unlock()
	if !ok {
		return nil, errors.NewNotFoundError(keyStr)
	}

	var buf []byte
	if ro.UseReadCache && e.opts.ReadCacheOptions.Enable {
		b, err := e.blocks.Fetch(dir.Location.SegmentID, int64(dir.Location.Offset), int(dir.EntrySize))
		if err != nil {
			return nil, err
		}
		buf = b
	} else {
		rf, release, err := e.fm.Acquire(dir.Location.SegmentID)
		if err != nil {
			return nil, err
		}
		tmp := make([]byte, dir.EntrySize)
		_, err = rf.ReadAt(int64(dir.Location.Offset), tmp)
		release()
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read record").
				WithSegmentID(int(dir.Location.SegmentID)).WithOffset(int(dir.Location.Offset))
		}
		buf = tmp
	}

	rec, _, err := record.DecodeDataRecord(buf)
	if err != nil {
		return nil, err
	}
	if rec.Type == record.Delete {
		return nil, errors.NewNotFoundError(keyStr)
	}

	value, err := e.codec.Decode(rec.Value)
	if err != nil {
		return nil, errors.NewCorruptionError(err, int(dir.Location.SegmentID), int(dir.Location.Offset))
	}
	return value, nil
}

// Flush forces the active segment's buffered bytes to the kernel.
func (e *Engine) Flush() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.fm.Flush(true)
}

// Iterator returns a lazy, single-pass view over every live key, snapshot
// at the moment Iterator is called.
func (e *Engine) Iterator() *iterator.Iterator {
	e.mu.Lock()
	snap := e.idx.Snapshot()
	e.mu.Unlock()
	return iterator.New(e.fm, e.codec, snap)
}

// Compact drains and processes the entire current compaction task queue
// synchronously. A segment that is the active segment when it is popped
// is put back for the next round instead of being processed now.
func (e *Engine) Compact() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	e.mu.Lock()
	pending := e.tasks
	e.tasks = nil
	e.mu.Unlock()

	var retry []uint32
	for _, id := range pending {
		if id == e.fm.ActiveID() {
			retry = append(retry, id)
			continue
		}
		if err := e.compactSegment(id); err != nil {
			e.log.Warnw("compaction pass failed for segment, will retry", "segment", id, "error", err)
			retry = append(retry, id)
		}
	}

	if len(retry) > 0 {
		e.mu.Lock()
		e.tasks = append(e.tasks, retry...)
		e.mu.Unlock()
	}
	return nil
}

// compactSegment rewrites every still-live Set record of segment id to the
// active segment, then removes id entirely. A decode failure partway
// through is treated as the segment's truthful end, mirroring recovery.
func (e *Engine) compactSegment(id uint32) error {
	e.mu.Lock()
	if h, ok := e.hints[id]; ok {
		h.State = compaction.Compacting
	}
	e.mu.Unlock()

	rf, release, err := e.fm.Acquire(id)
	if err != nil {
		return err
	}

	size := rf.Size()
	buf := make([]byte, size)
	_, err = rf.ReadAt(0, buf)
	release()
	if err != nil && err != io.ErrUnexpectedEOF {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read segment for compaction").WithSegmentID(int(id))
	}

	var offset int64
	for int(offset) < len(buf) {
		rec, n, derr := record.DecodeDataRecord(buf[offset:])
		if derr != nil || len(rec.Key) == 0 {
			break
		}
		curOffset := uint32(offset)
		offset += int64(n)

		if rec.Type != record.Set {
			continue
		}

		key := string(rec.Key)
		old := index.RecordLocation{SegmentID: id, Offset: curOffset}

		e.mu.Lock()
		dir, ok := e.idx.Get(key)
		stale := !ok || !dir.Location.Equal(old)
		e.mu.Unlock()
		if stale {
			continue
		}

		encoded := record.EncodeDataRecord(rec.Type, rec.Key, rec.Value, rec.Timestamp)
		newLoc, aerr := e.fm.Append(rec.Type, rec.Key, encoded)
		if aerr != nil {
			return aerr
		}
		newSize := uint32(len(encoded))

		e.mu.Lock()
		cur, ok := e.idx.Get(key)
		switch {
		case !ok:
			e.addFreeLocked(newLoc.SegmentID, uint64(newSize))
		case cur.Location.Equal(old) || cur.Location.Less(newLoc):
			e.idx.Set(key, index.Dir{Location: newLoc, EntrySize: newSize})
		default:
			e.addFreeLocked(newLoc.SegmentID, uint64(newSize))
		}
		e.mu.Unlock()
	}

	e.mu.Lock()
	delete(e.hints, id)
	e.mu.Unlock()

	e.blocks.Invalidate(id)
	return e.fm.Remove(id)
}

func (e *Engine) syncLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if err := e.fm.Sync(); err != nil {
				n := e.syncErrs.Add(1)
				if errors.IsStorageError(err) {
					se, _ := errors.AsStorageError(err)
					e.log.Warnw("periodic sync failed",
						"consecutive_errors", n, "code", se.Code(), "segment", se.SegmentId(), "details", errors.GetErrorDetails(err))
				} else {
					e.log.Warnw("periodic sync failed", "consecutive_errors", n, "error", err)
				}
				if int(n) >= e.opts.SyncMaxIOError && e.readOnly.CompareAndSwap(false, true) {
					e.log.Errorw("engine entering read-only mode after repeated sync failures", "consecutive_errors", n)
				}
			} else {
				e.syncErrs.Store(0)
			}
		}
	}
}

func (e *Engine) compactLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.CompactionOptions.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if err := e.Compact(); err != nil {
				e.log.Warnw("compaction pass errored", "error", err)
			}
		}
	}
}

// Close stops the background workers, flushes and closes the file manager
// and metadata log, and releases the key index.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	close(e.stop)
	e.wg.Wait()

	if err := e.fm.Flush(true); err != nil {
		e.log.Warnw("flush on close failed", "error", err)
	}
	if err := e.fm.Close(); err != nil {
		e.log.Warnw("file manager close failed", "error", err)
	}
	if err := e.meta.Close(); err != nil {
		e.log.Warnw("metadata close failed", "error", err)
	}
	e.idx.Close()
	return nil
}
