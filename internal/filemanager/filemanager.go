// Package filemanager owns the single active segment a database appends
// to, rotates it when full, and lazily opens sealed segments read-only
// through a bounded LRU of handles. It is the sole writer of segment data
// and index files; the engine never touches a segment file directly.
package filemanager

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iamNilotpal/embercask/internal/file"
	"github.com/iamNilotpal/embercask/internal/index"
	"github.com/iamNilotpal/embercask/internal/metadata"
	"github.com/iamNilotpal/embercask/internal/record"
	"github.com/iamNilotpal/embercask/pkg/errors"
	"github.com/iamNilotpal/embercask/pkg/filesys"
	"github.com/iamNilotpal/embercask/pkg/seginfo"
	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
)

// Config bundles everything FileManager needs to open or create segments.
type Config struct {
	Logger       *zap.SugaredLogger
	DataDir      string
	Prefix       string
	Strategy     file.Strategy
	Capacity     int64
	MaxOpenFiles int
	Metadata     *metadata.Log
}

// openHandle is a reference-counted wrapper around a sealed segment's
// Readable view: the open-files LRU can evict it while a reader still has
// it in hand, in which case the underlying file is closed only once the
// last reader releases it.
type openHandle struct {
	mu      sync.Mutex
	file    file.Readable
	refs    int
	evicted bool
}

func (h *openHandle) acquire() {
	h.mu.Lock()
	h.refs++
	h.mu.Unlock()
}

func (h *openHandle) release() {
	h.mu.Lock()
	h.refs--
	shouldClose := h.refs <= 0 && h.evicted
	h.mu.Unlock()
	if shouldClose {
		h.file.Close()
	}
}

func (h *openHandle) evict() {
	h.mu.Lock()
	h.evicted = true
	shouldClose := h.refs <= 0
	h.mu.Unlock()
	if shouldClose {
		h.file.Close()
	}
}

// segInFlight is the active segment's in-memory index buffer together with
// a count of appends still in the middle of writing their index entry.
// Rotation drains the buffer to disk only after pending reaches zero, so a
// segment's index file is never missing entries for data that is already
// durable in its data file.
type segInFlight struct {
	buf     []byte
	pending sync.WaitGroup
}

// FileManager owns the active segment and the pool of open, read-only
// sealed segments.
type FileManager struct {
	log      *zap.SugaredLogger
	dataDir  string
	prefix   string
	strategy file.Strategy
	capacity int64
	meta     *metadata.Log

	mu         sync.Mutex
	activeID   uint32
	activeData file.ReadWrite
	indexBufs  map[uint32]*segInFlight
	openFiles  *lru.LRU[uint32, *openHandle]
}

// Open discovers the database's live segments from cfg.Metadata and
// prepares the active segment for appends: a fresh database gets segment
// 1, an existing one resumes the highest live segment id (rebuilding its
// watermark by scanning the data file, since a segment's index file is
// only written by rotation or by Close) unless that segment already has
// an index file — after a clean Close, or a crash between sealing it and
// creating its successor — in which case a new active segment is created.
func Open(cfg Config) (*FileManager, error) {
	if err := filesys.CreateDir(cfg.DataDir, 0o755, true); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, cfg.DataDir)
	}

	onEvict := func(_ uint32, h *openHandle) { h.evict() }
	openFiles, err := lru.NewLRU[uint32, *openHandle](max(cfg.MaxOpenFiles, 1), onEvict)
	if err != nil {
		return nil, err
	}

	fm := &FileManager{
		log:       cfg.Logger,
		dataDir:   cfg.DataDir,
		prefix:    cfg.Prefix,
		strategy:  cfg.Strategy,
		capacity:  cfg.Capacity,
		meta:      cfg.Metadata,
		indexBufs: make(map[uint32]*segInFlight),
		openFiles: openFiles,
	}

	activeID, used, err := fm.discoverActiveSegment()
	if err != nil {
		return nil, err
	}

	dataPath := seginfo.DataPath(fm.dataDir, fm.prefix, activeID)
	rw, err := file.OpenReadWrite(fm.strategy, dataPath, fm.capacity, used)
	if err != nil {
		classified := errors.ClassifyFileOpenError(err, dataPath, filepath.Base(dataPath))
		if se, ok := errors.AsStorageError(classified); ok {
			se.WithSegmentID(int(activeID))
		}
		return nil, classified
	}

	fm.activeID = activeID
	fm.activeData = rw
	fm.indexBufs[activeID] = &segInFlight{}
	return fm, nil
}

func (fm *FileManager) discoverActiveSegment() (id uint32, used int64, err error) {
	ids := fm.meta.Snapshot()
	if len(ids) == 0 {
		if err := fm.meta.Create(1); err != nil {
			return 0, 0, err
		}
		return 1, 0, nil
	}

	last := ids[len(ids)-1]
	idxPath := seginfo.IndexPath(fm.dataDir, fm.prefix, last)
	if _, statErr := os.Stat(idxPath); statErr == nil {
		next := last + 1
		if err := fm.meta.Create(next); err != nil {
			return 0, 0, err
		}
		return next, 0, nil
	}

	dataPath := seginfo.DataPath(fm.dataDir, fm.prefix, last)
	used, err = scanUsedBytes(dataPath)
	if err != nil {
		return 0, 0, err
	}
	return last, used, nil
}

// scanUsedBytes replays a data file from its start, returning the offset
// of the first record that fails to decode (corruption, not-enough-input,
// or — a deliberate extension to the codec's literal contract — a
// zero-length key, which can only occur in unwritten, zero-filled
// preallocated padding and would otherwise decode as a spuriously valid
// empty record, since a CRC-32 checksum over zero bytes is itself zero).
func scanUsedBytes(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read segment for recovery scan").WithPath(path)
	}

	var offset int64
	for int(offset) < len(data) {
		rec, n, decErr := record.DecodeDataRecord(data[offset:])
		if decErr != nil || len(rec.Key) == 0 {
			break
		}
		offset += int64(n)
	}
	return offset, nil
}

// Append serializes a single record into the active segment, rotating to
// a new segment first if it would not fit. It returns the record's
// location for installation into the key index.
func (fm *FileManager) Append(typ record.Type, key, encoded []byte) (index.RecordLocation, error) {
	if int64(len(encoded)) > fm.capacity {
		return index.RecordLocation{}, errors.NewUnsupportedError("record exceeds segment capacity")
	}

	for {
		fm.mu.Lock()
		activeID := fm.activeID
		activeData := fm.activeData
		seg := fm.indexBufs[activeID]
		seg.pending.Add(1)
		fm.mu.Unlock()

		buf, offset, err := activeData.Allocate(len(encoded))
		if err != nil {
			seg.pending.Done()
			if err != file.ErrOverflow {
				return index.RecordLocation{}, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to allocate record")
			}

			fm.mu.Lock()
			if fm.activeID == activeID {
				if rerr := fm.rotateLocked(activeID + 1); rerr != nil {
					fm.mu.Unlock()
					return index.RecordLocation{}, rerr
				}
			}
			fm.mu.Unlock()
			continue
		}

		copy(buf, encoded)
		if err := activeData.Flush(false); err != nil {
			fm.log.Warnw("best-effort flush failed", "segment", activeID, "error", err)
		}

		idxRec := record.EncodeIndexRecord(typ, uint32(offset), uint32(len(encoded)), key)
		fm.mu.Lock()
		seg.buf = append(seg.buf, idxRec...)
		fm.mu.Unlock()
		seg.pending.Done()

		return index.RecordLocation{SegmentID: activeID, Offset: uint32(offset)}, nil
	}
}

// rotateLocked seals the current active segment and installs newID as the
// new active segment. Called with fm.mu held.
func (fm *FileManager) rotateLocked(newID uint32) error {
	oldID := fm.activeID
	oldData := fm.activeData
	oldSeg := fm.indexBufs[oldID]

	oldDataPath := seginfo.DataPath(fm.dataDir, fm.prefix, oldID)
	if err := oldData.Flush(true); err != nil {
		classified := errors.ClassifySyncError(err, filepath.Base(oldDataPath), oldDataPath, 0)
		if se, ok := errors.AsStorageError(classified); ok {
			se.WithSegmentID(int(oldID))
		}
		return classified
	}

	dataPath := seginfo.DataPath(fm.dataDir, fm.prefix, newID)
	newData, err := file.OpenReadWrite(fm.strategy, dataPath, fm.capacity, 0)
	if err != nil {
		classified := errors.ClassifyFileOpenError(err, dataPath, filepath.Base(dataPath))
		if se, ok := errors.AsStorageError(classified); ok {
			se.WithSegmentID(int(newID))
		}
		return classified
	}
	if err := fm.meta.Create(newID); err != nil {
		newData.Close()
		return err
	}

	fm.activeID = newID
	fm.activeData = newData
	fm.indexBufs[newID] = &segInFlight{}

	go fm.finalizeSegment(oldID, oldData)
	return nil
}

// finalizeSegment runs asynchronously after rotation: it waits for every
// append already admitted to the sealed segment to finish recording its
// index entry, writes the segment's on-disk index file, and retries
// fsyncing the data file every second until it succeeds.
func (fm *FileManager) finalizeSegment(id uint32, data file.ReadWrite) {
	fm.mu.Lock()
	seg := fm.indexBufs[id]
	fm.mu.Unlock()

	seg.pending.Wait()

	fm.mu.Lock()
	buf := seg.buf
	delete(fm.indexBufs, id)
	fm.mu.Unlock()

	idxPath := seginfo.IndexPath(fm.dataDir, fm.prefix, id)
	if err := os.WriteFile(idxPath, buf, 0644); err != nil {
		fm.log.Errorw("failed to write segment index file", "segment", id, "error", err)
	}

	dataPath := seginfo.DataPath(fm.dataDir, fm.prefix, id)
	for {
		if err := data.Sync(); err != nil {
			classified := errors.ClassifySyncError(err, filepath.Base(dataPath), dataPath, 0)
			if se, ok := errors.AsStorageError(classified); ok {
				se.WithSegmentID(int(id))
			}
			fm.log.Warnw("retrying segment fsync",
				"segment", id, "code", errors.GetErrorCode(classified), "details", errors.GetErrorDetails(classified))
			time.Sleep(time.Second)
			continue
		}
		break
	}
	data.Close()
}

// Acquire returns a Readable view of segment id and a release function the
// caller must call when done with it. For the active segment, release is
// a no-op; for a sealed segment, it decrements the open-files pool's
// refcount, closing the handle if it had meanwhile been evicted.
func (fm *FileManager) Acquire(id uint32) (file.Readable, func(), error) {
	fm.mu.Lock()
	if id == fm.activeID {
		rw := fm.activeData
		fm.mu.Unlock()
		return rw, func() {}, nil
	}
	if h, ok := fm.openFiles.Get(id); ok {
		h.acquire()
		fm.mu.Unlock()
		return h.file, func() { h.release() }, nil
	}
	fm.mu.Unlock()

	path := seginfo.DataPath(fm.dataDir, fm.prefix, id)
	rf, err := file.OpenReadable(fm.strategy, path)
	if err != nil {
		classified := errors.ClassifyFileOpenError(err, path, filepath.Base(path))
		if se, ok := errors.AsStorageError(classified); ok {
			se.WithSegmentID(int(id))
		}
		return nil, nil, classified
	}

	h := &openHandle{file: rf, refs: 1}
	fm.mu.Lock()
	fm.openFiles.Add(id, h)
	fm.mu.Unlock()
	return rf, func() { h.release() }, nil
}

// ReadBlock reads up to len(dst) bytes of segment id's data file at
// offset. It satisfies internal/cache.Opener.
func (fm *FileManager) ReadBlock(id uint32, offset int64, dst []byte) (int, error) {
	rf, release, err := fm.Acquire(id)
	if err != nil {
		return 0, err
	}
	defer release()
	return rf.ReadAt(offset, dst)
}

// Remove evicts id from the open-files pool, marks it deleted in the
// metadata log, and unlinks both its data and index files. The caller
// must ensure id is not the active segment and that no compaction is
// still reading from it.
func (fm *FileManager) Remove(id uint32) error {
	fm.mu.Lock()
	fm.openFiles.Remove(id)
	fm.mu.Unlock()

	if err := fm.meta.Delete(id); err != nil {
		return err
	}

	dataPath := seginfo.DataPath(fm.dataDir, fm.prefix, id)
	idxPath := seginfo.IndexPath(fm.dataDir, fm.prefix, id)
	if err := os.Remove(dataPath); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to remove segment data file").WithPath(dataPath)
	}
	if err := os.Remove(idxPath); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to remove segment index file").WithPath(idxPath)
	}
	return nil
}

// ActiveID returns the id of the segment currently open for appends.
func (fm *FileManager) ActiveID() uint32 {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.activeID
}

// Flush delegates to the active segment's Flush.
func (fm *FileManager) Flush(force bool) error {
	fm.mu.Lock()
	data := fm.activeData
	fm.mu.Unlock()
	return data.Flush(force)
}

// Sync delegates to the active segment's Sync.
func (fm *FileManager) Sync() error {
	fm.mu.Lock()
	id := fm.activeID
	data := fm.activeData
	fm.mu.Unlock()

	if err := data.Sync(); err != nil {
		path := seginfo.DataPath(fm.dataDir, fm.prefix, id)
		classified := errors.ClassifySyncError(err, filepath.Base(path), path, 0)
		if se, ok := errors.AsStorageError(classified); ok {
			se.WithSegmentID(int(id))
		}
		return classified
	}
	return nil
}

// Close flushes and closes the active segment, writes its index file from
// the in-memory index buffer, and evicts every open sealed-segment handle.
func (fm *FileManager) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	for _, id := range fm.openFiles.Keys() {
		if h, ok := fm.openFiles.Peek(id); ok {
			h.evict()
		}
	}
	fm.openFiles.Purge()

	if err := fm.activeData.Close(); err != nil {
		return err
	}
	if seg := fm.indexBufs[fm.activeID]; seg != nil {
		idxPath := seginfo.IndexPath(fm.dataDir, fm.prefix, fm.activeID)
		if err := os.WriteFile(idxPath, seg.buf, 0644); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write segment index file").WithPath(idxPath)
		}
	}
	return nil
}
