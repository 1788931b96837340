package file

import (
	"bytes"
	"path/filepath"
	"testing"
)

func testStrategies() []Strategy {
	return []Strategy{StrategyPread, StrategyMMap}
}

func TestReadWrite_allocateAndReadBack(t *testing.T) {
	for _, strategy := range testStrategies() {
		path := filepath.Join(t.TempDir(), "segment.data")
		rw, err := OpenReadWrite(strategy, path, 1024, 0)
		if err != nil {
			t.Fatalf("OpenReadWrite(%v): %v", strategy, err)
		}
		defer rw.Close()

		payload := []byte("hello, embercask")
		buf, offset, err := rw.Allocate(len(payload))
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if offset != 0 {
			t.Errorf("Allocate offset = %d, want 0", offset)
		}
		copy(buf, payload)

		got := make([]byte, len(payload))
		if _, err := rw.ReadAt(0, got); err != nil {
			t.Fatalf("ReadAt: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("ReadAt = %q, want %q", got, payload)
		}
	}
}

func TestReadWrite_allocateOverflow(t *testing.T) {
	for _, strategy := range testStrategies() {
		path := filepath.Join(t.TempDir(), "segment.data")
		rw, err := OpenReadWrite(strategy, path, 8, 0)
		if err != nil {
			t.Fatalf("OpenReadWrite(%v): %v", strategy, err)
		}
		defer rw.Close()

		if _, _, err := rw.Allocate(16); err != ErrOverflow {
			t.Errorf("Allocate(16) on an 8-byte segment err = %v, want ErrOverflow", err)
		}
	}
}

func TestReadWrite_syncThenReopenSealed(t *testing.T) {
	for _, strategy := range testStrategies() {
		path := filepath.Join(t.TempDir(), "segment.data")
		rw, err := OpenReadWrite(strategy, path, 64, 0)
		if err != nil {
			t.Fatalf("OpenReadWrite(%v): %v", strategy, err)
		}

		payload := []byte("durable bytes")
		buf, _, err := rw.Allocate(len(payload))
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		copy(buf, payload)
		if err := rw.Sync(); err != nil {
			t.Fatalf("Sync: %v", err)
		}
		if err := rw.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		rf, err := OpenReadable(strategy, path)
		if err != nil {
			t.Fatalf("OpenReadable(%v): %v", strategy, err)
		}
		defer rf.Close()

		got := make([]byte, len(payload))
		if _, err := rf.ReadAt(0, got); err != nil {
			t.Fatalf("ReadAt: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("ReadAt = %q, want %q", got, payload)
		}
		if rf.Size() != 64 {
			t.Errorf("Size() = %d, want 64 (preallocated capacity)", rf.Size())
		}
	}
}

func TestReadWrite_reopenActiveWithUsedWatermark(t *testing.T) {
	for _, strategy := range testStrategies() {
		path := filepath.Join(t.TempDir(), "segment.data")
		rw, err := OpenReadWrite(strategy, path, 64, 0)
		if err != nil {
			t.Fatalf("OpenReadWrite(%v): %v", strategy, err)
		}

		payload := []byte("already-written")
		buf, _, err := rw.Allocate(len(payload))
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		copy(buf, payload)
		if err := rw.Sync(); err != nil {
			t.Fatalf("Sync: %v", err)
		}
		if err := rw.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		rw2, err := OpenReadWrite(strategy, path, 64, int64(len(payload)))
		if err != nil {
			t.Fatalf("reopen OpenReadWrite(%v): %v", strategy, err)
		}
		defer rw2.Close()

		got := make([]byte, len(payload))
		if _, err := rw2.ReadAt(0, got); err != nil {
			t.Fatalf("ReadAt after reopen: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("ReadAt after reopen = %q, want %q", got, payload)
		}

		buf2, offset, err := rw2.Allocate(4)
		if err != nil {
			t.Fatalf("Allocate after reopen: %v", err)
		}
		if offset != int64(len(payload)) {
			t.Errorf("Allocate after reopen offset = %d, want %d", offset, len(payload))
		}
		copy(buf2, "more")
	}
}
