package iterator

import (
	"testing"

	"github.com/iamNilotpal/embercask/internal/compress"
	"github.com/iamNilotpal/embercask/internal/file"
	"github.com/iamNilotpal/embercask/internal/index"
	"github.com/iamNilotpal/embercask/internal/record"
)

// memSegment is a minimal file.Readable over an in-memory byte slice, just
// enough for the iterator to Acquire and ReadAt against.
type memSegment struct {
	buf []byte
}

func (m *memSegment) ReadAt(offset int64, dst []byte) (int, error) {
	n := copy(dst, m.buf[offset:])
	return n, nil
}

func (m *memSegment) Size() int64 { return int64(len(m.buf)) }

func (m *memSegment) Close() error { return nil }

// fakeFileManager hands out memSegment views keyed by segment id.
type fakeFileManager struct {
	segments map[uint32]*memSegment
}

func (f *fakeFileManager) Acquire(id uint32) (file.Readable, func(), error) {
	return f.segments[id], func() {}, nil
}

func TestIterator_walksSnapshotAndSkipsCorruption(t *testing.T) {
	seg := &memSegment{}
	append1 := func(typ record.Type, key, value []byte) uint32 {
		off := uint32(len(seg.buf))
		seg.buf = append(seg.buf, record.EncodeDataRecord(typ, key, value, 0)...)
		return off
	}

	offA := append1(record.Set, []byte("a"), []byte("alpha"))
	offB := append1(record.Set, []byte("b"), []byte("beta"))
	offC := append1(record.Set, []byte("c"), []byte("gamma"))

	// Corrupt record "b" in place so the iterator must skip it.
	bRec := record.EncodeDataRecord(record.Set, []byte("b"), []byte("beta"), 0)
	seg.buf[offB+uint32(len(bRec))-1] ^= 0xFF

	fm := &fakeFileManager{segments: map[uint32]*memSegment{1: seg}}
	snapshot := map[string]index.Dir{
		"a": {Location: index.RecordLocation{SegmentID: 1, Offset: offA}, EntrySize: uint32(len(record.EncodeDataRecord(record.Set, []byte("a"), []byte("alpha"), 0)))},
		"b": {Location: index.RecordLocation{SegmentID: 1, Offset: offB}, EntrySize: uint32(len(bRec))},
		"c": {Location: index.RecordLocation{SegmentID: 1, Offset: offC}, EntrySize: uint32(len(record.EncodeDataRecord(record.Set, []byte("c"), []byte("gamma"), 0)))},
	}

	it := New(fm, compress.NewIdentity(), snapshot)
	if got := it.Remaining(); got != 3 {
		t.Fatalf("Remaining() before any Next = %d, want 3", got)
	}

	got := map[string]string{}
	for {
		view, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got[string(view.Key)] = string(view.Value)
	}

	want := map[string]string{"a": "alpha", "c": "gamma"}
	if len(got) != len(want) {
		t.Fatalf("got %d live views, want %d (got=%v)", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("key %q = %q, want %q", k, got[k], v)
		}
	}
	if _, corrupted := got["b"]; corrupted {
		t.Errorf("corrupted key %q surfaced by iterator, want silently skipped", "b")
	}

	if it.Remaining() != 0 {
		t.Errorf("Remaining() after exhaustion = %d, want 0", it.Remaining())
	}
	if _, ok, err := it.Next(); ok || err != nil {
		t.Errorf("Next() after exhaustion = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

func TestIterator_decompressesValues(t *testing.T) {
	seg := &memSegment{}
	codec := compress.NewSnappy()
	plain := []byte("a value long enough to compress nicely nicely nicely")
	compressed := codec.Encode(plain)

	off := uint32(len(seg.buf))
	seg.buf = append(seg.buf, record.EncodeDataRecord(record.Set, []byte("k"), compressed, 0)...)

	fm := &fakeFileManager{segments: map[uint32]*memSegment{1: seg}}
	snapshot := map[string]index.Dir{
		"k": {
			Location:  index.RecordLocation{SegmentID: 1, Offset: off},
			EntrySize: uint32(record.DataHeaderSize + 1 + len(compressed)),
		},
	}

	it := New(fm, codec, snapshot)
	view, ok, err := it.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = (ok=%v, err=%v)", ok, err)
	}
	if string(view.Value) != string(plain) {
		t.Errorf("Value = %q, want %q", view.Value, plain)
	}
}

// ensure the fakeFileManager satisfies segmentAcquirer; compile-time check
// guards against a signature drift between the two packages.
var _ segmentAcquirer = (*fakeFileManager)(nil)
