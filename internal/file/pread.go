package file

import (
	"io"
	"os"
	"sync/atomic"
)

// preadReadable is a read-only view over a sealed segment file, backed by
// os.File.ReadAt. Safe for concurrent use: os.File.ReadAt takes no internal
// lock shared with writers.
type preadReadable struct {
	f    *os.File
	size int64
}

// openPreadReadable opens path read-only and stats its current size.
func openPreadReadable(path string) (*preadReadable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &preadReadable{f: f, size: st.Size()}, nil
}

func (r *preadReadable) ReadAt(offset int64, dst []byte) (int, error) {
	n, err := r.f.ReadAt(dst, offset)
	if err == io.EOF && n > 0 && n < len(dst) {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func (r *preadReadable) Size() int64 { return r.size }

func (r *preadReadable) Close() error { return r.f.Close() }

// preadReadWrite is the active segment's pread/pwrite backend: an
// in-memory staging buffer mirrors the file's capacity-length contents,
// Allocate bumps a watermark within it, and Flush pwrites the
// not-yet-written suffix to disk.
type preadReadWrite struct {
	writeLock
	f        *os.File
	capacity int64
	used     atomic.Int64 // high-water mark of bytes reserved via Allocate
	flushed  atomic.Int64 // prefix of buf already pwritten to disk
	buf      []byte       // capacity-length staging buffer
}

// openPreadReadWrite opens (creating if necessary) an active segment file
// preallocated to capacity bytes. used is the number of leading bytes that
// are already live records — 0 for a brand new segment, or the watermark
// discovered by a data-file scan when reopening a segment that was active
// at crash time.
func openPreadReadWrite(path string, capacity, used int64) (*preadReadWrite, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() < capacity {
		if err := f.Truncate(capacity); err != nil {
			f.Close()
			return nil, err
		}
	}

	buf := make([]byte, capacity)
	if used > 0 {
		if _, err := f.ReadAt(buf[:used], 0); err != nil && err != io.EOF {
			f.Close()
			return nil, err
		}
	}

	w := &preadReadWrite{f: f, capacity: capacity, buf: buf}
	w.used.Store(used)
	w.flushed.Store(used)
	return w, nil
}

func (w *preadReadWrite) Allocate(n int) ([]byte, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	used := w.used.Load()
	if used+int64(n) > w.capacity {
		return nil, 0, ErrOverflow
	}
	w.used.Store(used + int64(n))
	return w.buf[used : used+int64(n)], used, nil
}

func (w *preadReadWrite) ReadAt(offset int64, dst []byte) (int, error) {
	used := w.used.Load()
	if offset >= used {
		return 0, io.EOF
	}
	end := offset + int64(len(dst))
	if end > used {
		end = used
	}
	n := copy(dst, w.buf[offset:end])
	if n < len(dst) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// Size reports the segment's preallocated capacity, not the live watermark.
func (w *preadReadWrite) Size() int64 { return w.capacity }

func (w *preadReadWrite) Flush(force bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(force)
}

func (w *preadReadWrite) flushLocked(force bool) error {
	used := w.used.Load()
	flushed := w.flushed.Load()
	dirty := used - flushed
	if dirty <= 0 {
		return nil
	}
	if !force && dirty < flushThreshold {
		return nil
	}
	if _, err := w.f.WriteAt(w.buf[flushed:used], flushed); err != nil {
		return err
	}
	w.flushed.Store(used)
	return nil
}

func (w *preadReadWrite) Sync() error {
	w.mu.Lock()
	if err := w.flushLocked(true); err != nil {
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()
	return w.f.Sync()
}

func (w *preadReadWrite) Close() error {
	if err := w.Flush(true); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
