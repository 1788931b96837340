package filemanager

import (
	"path/filepath"
	"testing"

	"github.com/iamNilotpal/embercask/internal/file"
	"github.com/iamNilotpal/embercask/internal/metadata"
	"github.com/iamNilotpal/embercask/internal/record"
	"github.com/iamNilotpal/embercask/pkg/logger"
)

func newTestManager(t *testing.T, capacity int64) (*FileManager, *metadata.Log) {
	t.Helper()
	dir := t.TempDir()
	meta, err := metadata.Open(filepath.Join(dir, "db.db"))
	if err != nil {
		t.Fatalf("metadata.Open: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	fm, err := Open(Config{
		Logger:       logger.Nop(),
		DataDir:      dir,
		Prefix:       "segment",
		Strategy:     file.StrategyPread,
		Capacity:     capacity,
		MaxOpenFiles: 4,
		Metadata:     meta,
	})
	if err != nil {
		t.Fatalf("filemanager.Open: %v", err)
	}
	t.Cleanup(func() { fm.Close() })
	return fm, meta
}

func TestAppend_thenAcquireReadsBackSameBytes(t *testing.T) {
	fm, _ := newTestManager(t, 1<<20)

	encoded := record.EncodeDataRecord(record.Set, []byte("k"), []byte("v"), 0)
	loc, err := fm.Append(record.Set, []byte("k"), encoded)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if loc.SegmentID != 1 {
		t.Fatalf("SegmentID = %d, want 1", loc.SegmentID)
	}

	rf, release, err := fm.Acquire(loc.SegmentID)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	got := make([]byte, len(encoded))
	if _, err := rf.ReadAt(int64(loc.Offset), got); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	rec, _, err := record.DecodeDataRecord(got)
	if err != nil {
		t.Fatalf("DecodeDataRecord: %v", err)
	}
	if string(rec.Value) != "v" {
		t.Errorf("Value = %q, want %q", rec.Value, "v")
	}
}

func TestAppend_rotatesWhenSegmentFull(t *testing.T) {
	// Small enough that a handful of records overflow it.
	fm, meta := newTestManager(t, 256)

	value := make([]byte, 64)
	var lastSeg uint32
	for i := 0; i < 20; i++ {
		encoded := record.EncodeDataRecord(record.Set, []byte("k"), value, 0)
		loc, err := fm.Append(record.Set, []byte("k"), encoded)
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		lastSeg = loc.SegmentID
	}

	if lastSeg < 2 {
		t.Errorf("last append landed in segment %d, want rotation to have occurred", lastSeg)
	}
	if fm.ActiveID() != lastSeg {
		t.Errorf("ActiveID() = %d, want %d", fm.ActiveID(), lastSeg)
	}

	live := meta.Snapshot()
	if len(live) < 2 {
		t.Errorf("metadata live-segment set = %v, want at least 2 entries after rotation", live)
	}
}

func TestAppend_rejectsRecordLargerThanCapacity(t *testing.T) {
	fm, _ := newTestManager(t, 32)

	encoded := record.EncodeDataRecord(record.Set, []byte("k"), make([]byte, 256), 0)
	if _, err := fm.Append(record.Set, []byte("k"), encoded); err == nil {
		t.Error("Append with an oversized record succeeded, want an error")
	}
}

func TestRemove_deletesFilesAndUpdatesMetadata(t *testing.T) {
	fm, meta := newTestManager(t, 256)

	value := make([]byte, 64)
	for i := 0; i < 20; i++ {
		encoded := record.EncodeDataRecord(record.Set, []byte("k"), value, 0)
		if _, err := fm.Append(record.Set, []byte("k"), encoded); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	live := meta.Snapshot()
	if len(live) < 2 {
		t.Fatalf("need at least 2 live segments to exercise Remove, got %v", live)
	}
	sealed := live[0]
	if sealed == fm.ActiveID() {
		t.Fatalf("first live segment %d is still active, want a sealed predecessor", sealed)
	}

	if err := fm.Remove(sealed); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	for _, id := range meta.Snapshot() {
		if id == sealed {
			t.Errorf("segment %d still present in metadata after Remove", sealed)
		}
	}
	if _, _, err := fm.Acquire(sealed); err == nil {
		t.Errorf("Acquire(%d) after Remove succeeded, want an error", sealed)
	}
}
