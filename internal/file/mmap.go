package file

import (
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// mmapReadable is a read-only view over a sealed segment file backed by a
// shared memory mapping. Grounded on the mmap read path other embedded
// stores in this lineage use for sealed, immutable files.
type mmapReadable struct {
	f    *os.File
	data []byte
}

func openMMapReadable(path string) (*mmapReadable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	var data []byte
	if st.Size() > 0 {
		data, err = unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			f.Close()
			return nil, err
		}
	}
	return &mmapReadable{f: f, data: data}, nil
}

func (m *mmapReadable) ReadAt(offset int64, dst []byte) (int, error) {
	if offset >= int64(len(m.data)) {
		return 0, io.EOF
	}
	end := offset + int64(len(dst))
	if end > int64(len(m.data)) {
		end = int64(len(m.data))
	}
	n := copy(dst, m.data[offset:end])
	if n < len(dst) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (m *mmapReadable) Size() int64 { return int64(len(m.data)) }

func (m *mmapReadable) Close() error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			m.f.Close()
			return err
		}
	}
	return m.f.Close()
}

// mmapReadWrite is the active segment's mmap+msync backend: Allocate hands
// out slices directly into the mapping (writes land in the kernel page
// cache the instant the caller copies into them — Flush is therefore a
// no-op), and Sync msyncs the mapping to stable storage.
type mmapReadWrite struct {
	writeLock
	f    *os.File
	data []byte
	used atomic.Int64
}

func openMMapReadWrite(path string, capacity, used int64) (*mmapReadWrite, error) {
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

	data, err := unix.Mmap(int(f.Fd()), 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &mmapReadWrite{f: f, data: data}
	w.used.Store(used)
	return w, nil
}

func (w *mmapReadWrite) Allocate(n int) ([]byte, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	used := w.used.Load()
	if used+int64(n) > int64(len(w.data)) {
		return nil, 0, ErrOverflow
	}
	w.used.Store(used + int64(n))
	return w.data[used : used+int64(n)], used, nil
}

func (w *mmapReadWrite) ReadAt(offset int64, dst []byte) (int, error) {
	used := w.used.Load()
	if offset >= used {
		return 0, io.EOF
	}
	end := offset + int64(len(dst))
	if end > used {
		end = used
	}
	n := copy(dst, w.data[offset:end])
	if n < len(dst) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (w *mmapReadWrite) Size() int64 { return int64(len(w.data)) }

// Flush is a no-op: every byte written into the mapping is already visible
// in the kernel page cache, which is everything Flush promises.
func (w *mmapReadWrite) Flush(bool) error { return nil }

func (w *mmapReadWrite) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.data) == 0 {
		return nil
	}
	return unix.Msync(w.data, unix.MS_SYNC)
}

func (w *mmapReadWrite) Close() error {
	if err := w.Sync(); err != nil {
		w.f.Close()
		return err
	}
	if err := unix.Munmap(w.data); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
