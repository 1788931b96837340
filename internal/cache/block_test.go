package cache

import (
	"bytes"
	"testing"
)

// fakeSegment backs an Opener with an in-memory byte slice, so tests can
// exercise BlockCache without touching the file manager.
type fakeSegment struct {
	data  []byte
	reads int
}

func (f *fakeSegment) open(segmentID uint32, offset int64, dst []byte) (int, error) {
	f.reads++
	if offset >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(dst, f.data[offset:])
	return n, nil
}

func TestBlockKey_roundTripsSegmentAndOffset(t *testing.T) {
	key := BlockKey(7, 12345)
	if got := SegmentOf(key); got != 7 {
		t.Errorf("SegmentOf = %d, want 7", got)
	}
	if got := BlockOffsetOf(key); got != blockAlign(12345) {
		t.Errorf("BlockOffsetOf = %d, want %d", got, blockAlign(12345))
	}
}

func TestBlockCache_fetchSingleBlockIsZeroCopy(t *testing.T) {
	seg := &fakeSegment{data: bytes.Repeat([]byte{0xAB}, BlockSize)}
	for i := 0; i < 32; i++ {
		seg.data[i] = byte(i)
	}

	bc, err := NewBlockCache(BlockSize*4, 2, seg.open)
	if err != nil {
		t.Fatalf("NewBlockCache: %v", err)
	}

	got, err := bc.Fetch(1, 0, 16)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := make([]byte, 16)
	for i := range want {
		want[i] = byte(i)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Fetch = %v, want %v", got, want)
	}

	// A second fetch within the same block must not re-read the segment.
	readsBefore := seg.reads
	if _, err := bc.Fetch(1, 4, 8); err != nil {
		t.Fatalf("Fetch (cached): %v", err)
	}
	if seg.reads != readsBefore {
		t.Errorf("reads = %d, want unchanged from %d (expected cache hit)", seg.reads, readsBefore)
	}
}

func TestBlockCache_fetchSpanningMultipleBlocks(t *testing.T) {
	data := make([]byte, BlockSize*3)
	for i := range data {
		data[i] = byte(i)
	}
	seg := &fakeSegment{data: data}

	bc, err := NewBlockCache(BlockSize*8, 1, seg.open)
	if err != nil {
		t.Fatalf("NewBlockCache: %v", err)
	}

	start := int64(BlockSize - 10)
	length := 30 // spans the boundary between block 0 and block 1
	got, err := bc.Fetch(1, start, length)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := data[start : start+int64(length)]
	if !bytes.Equal(got, want) {
		t.Errorf("Fetch across blocks = %v, want %v", got, want)
	}
}

func TestBlockCache_invalidateDropsOnlyThatSegment(t *testing.T) {
	segA := &fakeSegment{data: bytes.Repeat([]byte{0x01}, BlockSize)}
	segB := &fakeSegment{data: bytes.Repeat([]byte{0x02}, BlockSize)}

	opener := func(segmentID uint32, offset int64, dst []byte) (int, error) {
		if segmentID == 1 {
			return segA.open(segmentID, offset, dst)
		}
		return segB.open(segmentID, offset, dst)
	}

	bc, err := NewBlockCache(BlockSize*8, 4, opener)
	if err != nil {
		t.Fatalf("NewBlockCache: %v", err)
	}

	if _, err := bc.Fetch(1, 0, 8); err != nil {
		t.Fatalf("Fetch(1): %v", err)
	}
	if _, err := bc.Fetch(2, 0, 8); err != nil {
		t.Fatalf("Fetch(2): %v", err)
	}

	bc.Invalidate(1)

	readsBeforeA := segA.reads
	if _, err := bc.Fetch(1, 0, 8); err != nil {
		t.Fatalf("Fetch(1) after invalidate: %v", err)
	}
	if segA.reads != readsBeforeA+1 {
		t.Errorf("segment 1 reads = %d, want %d (expected a fresh load after invalidation)", segA.reads, readsBeforeA+1)
	}

	readsBeforeB := segB.reads
	if _, err := bc.Fetch(2, 0, 8); err != nil {
		t.Fatalf("Fetch(2) after invalidating segment 1: %v", err)
	}
	if segB.reads != readsBeforeB {
		t.Errorf("segment 2 reads = %d, want unchanged from %d (invalidate(1) must not evict segment 2)", segB.reads, readsBeforeB)
	}
}
