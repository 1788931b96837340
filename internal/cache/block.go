package cache

import (
	"github.com/iamNilotpal/embercask/pkg/errors"
)

// BlockSize is the fixed unit the block cache caches and fetches in: a 4
// KiB slice of a segment's data file.
const BlockSize = 4096

// Opener reads up to len(dst) bytes of segmentID's data file at offset
// into dst, returning the number of bytes actually read. Implementations
// (the file manager) acquire and release the underlying file handle
// around the read themselves; the block cache never keeps a segment open.
type Opener func(segmentID uint32, offset int64, dst []byte) (int, error)

// BlockKey packs a segment id and a 4 KiB-aligned byte offset into the
// single 64-bit key the cache is addressed by: segment id in the high 32
// bits, the aligned offset in the low 32 bits.
func BlockKey(segmentID uint32, offset int64) uint64 {
	aligned := blockAlign(offset)
	return (uint64(segmentID) << 32) | uint64(uint32(aligned))
}

// SegmentOf recovers the segment id encoded in a block key.
func SegmentOf(key uint64) uint32 { return uint32(key >> 32) }

// BlockOffsetOf recovers the 4 KiB-aligned byte offset encoded in a block
// key.
func BlockOffsetOf(key uint64) int64 { return int64(uint32(key)) }

func blockAlign(offset int64) int64 { return offset &^ (BlockSize - 1) }

// BlockCache is the segmented, block-aligned read cache: it maps (segment
// id, aligned offset) to a 4 KiB block and assembles record bytes by
// stitching together the blocks a record spans.
type BlockCache struct {
	blocks *Segmented[uint64, []byte]
	opener Opener
}

// NewBlockCache builds a BlockCache with the given total byte budget split
// evenly across shardCount independently-locked shards. Each shard's
// capacity in blocks is ceil(totalBytes/shardCount)/BlockSize.
func NewBlockCache(totalBytes uint64, shardCount int, opener Opener) (*BlockCache, error) {
	if shardCount < 1 {
		shardCount = 1
	}
	perShardBytes := (totalBytes + uint64(shardCount) - 1) / uint64(shardCount)
	blocksPerShard := int(perShardBytes / BlockSize)
	if blocksPerShard < 1 {
		blocksPerShard = 1
	}

	blocks, err := NewSegmented[uint64, []byte](shardCount, blocksPerShard, HashUint64, nil)
	if err != nil {
		return nil, err
	}
	return &BlockCache{blocks: blocks, opener: opener}, nil
}

// loadBlock fetches the 4 KiB block at (segmentID, alignedOffset), reading
// it from disk on a cache miss. The loader runs under the owning shard's
// lock (single-flight per shard), opening the segment via c.opener if it
// isn't already open.
func (c *BlockCache) loadBlock(segmentID uint32, alignedOffset int64) ([]byte, error) {
	key := BlockKey(segmentID, alignedOffset)
	return c.blocks.GetOrCompute(key, func() ([]byte, error) {
		buf := make([]byte, BlockSize)
		n, err := c.opener(segmentID, alignedOffset, buf)
		if err != nil && n == 0 {
			return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read block").
				WithSegmentID(int(segmentID)).WithOffset(int(alignedOffset))
		}
		return buf[:n], nil
	})
}

// Fetch assembles the length bytes of a record starting at (segmentID,
// offset) from one or more cached blocks. When the whole record lies
// within a single block, Fetch returns a sub-slice of that cached block
// directly rather than copying — a zero-copy fast path that is an
// optimization, not a contract: callers must not mutate the returned
// slice, since it may be shared with the cache.
func (c *BlockCache) Fetch(segmentID uint32, offset int64, length int) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}

	firstBlock := blockAlign(offset)
	lastBlock := blockAlign(offset + int64(length) - 1)

	if firstBlock == lastBlock {
		block, err := c.loadBlock(segmentID, firstBlock)
		if err != nil {
			return nil, err
		}
		start := int(offset - firstBlock)
		end := start + length
		if end > len(block) {
			return nil, errors.NewStorageError(nil, errors.ErrorCodeIO, "record extends past end of block read").
				WithSegmentID(int(segmentID)).WithOffset(int(offset))
		}
		return block[start:end], nil
	}

	out := make([]byte, 0, length)
	cur := offset
	remaining := length
	for remaining > 0 {
		blockStart := blockAlign(cur)
		block, err := c.loadBlock(segmentID, blockStart)
		if err != nil {
			return nil, err
		}

		within := int(cur - blockStart)
		if within >= len(block) {
			return nil, errors.NewStorageError(nil, errors.ErrorCodeIO, "record extends past end of segment").
				WithSegmentID(int(segmentID)).WithOffset(int(cur))
		}

		take := len(block) - within
		if take > remaining {
			take = remaining
		}
		out = append(out, block[within:within+take]...)
		cur += int64(take)
		remaining -= take
	}
	return out, nil
}

// Invalidate drops every cached block belonging to segmentID. The file
// manager calls this after deleting a compacted segment so stale blocks
// never outlive the file they were read from.
func (c *BlockCache) Invalidate(segmentID uint32) {
	for _, shard := range c.blocks.shards {
		shard.mu.Lock()
		for _, key := range shard.lru.Keys() {
			if SegmentOf(key) == segmentID {
				shard.lru.Remove(key)
			}
		}
		shard.mu.Unlock()
	}
}
