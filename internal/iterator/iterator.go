// Package iterator implements the full-store scan: a lazy, single-pass,
// non-restartable sequence over every live key, built from a snapshot of
// the key index taken at construction time.
package iterator

import (
	"io"

	"github.com/iamNilotpal/embercask/internal/compress"
	"github.com/iamNilotpal/embercask/internal/file"
	"github.com/iamNilotpal/embercask/internal/index"
	"github.com/iamNilotpal/embercask/internal/record"
)

// View is one record surfaced by the iterator. Consumers must copy Key and
// Value before calling Next again — the iterator reuses no buffers across
// calls, but makes no promise to keep them alive either.
type View struct {
	Type      record.Type
	Key       []byte
	Value     []byte
	Timestamp uint32
}

// segmentAcquirer is the slice of the file manager the iterator needs:
// random reads into any live segment.
type segmentAcquirer interface {
	Acquire(id uint32) (file.Readable, func(), error)
}

type entry struct {
	key string
	dir index.Dir
}

// Iterator walks a point-in-time snapshot of the key index, decoding each
// key's record from its recorded segment and offset.
type Iterator struct {
	fm      segmentAcquirer
	codec   compress.Codec
	entries []entry
	pos     int
}

// New builds an Iterator over snapshot, a copy of the key index taken
// under the engine's lock. The iterator never touches the live index
// again.
func New(fm segmentAcquirer, codec compress.Codec, snapshot map[string]index.Dir) *Iterator {
	entries := make([]entry, 0, len(snapshot))
	for k, d := range snapshot {
		entries = append(entries, entry{key: k, dir: d})
	}
	return &Iterator{fm: fm, codec: codec, entries: entries}
}

// Next returns the next view in the scan. ok is false once the sequence is
// exhausted. A record whose checksum fails to verify is skipped silently —
// the iterator moves on to the next key rather than surfacing an error for
// one bad record in an otherwise-healthy store.
func (it *Iterator) Next() (view *View, ok bool, err error) {
	for it.pos < len(it.entries) {
		e := it.entries[it.pos]
		it.pos++

		rf, release, aerr := it.fm.Acquire(e.dir.Location.SegmentID)
		if aerr != nil {
			return nil, false, aerr
		}

		buf := make([]byte, e.dir.EntrySize)
		_, rerr := rf.ReadAt(int64(e.dir.Location.Offset), buf)
		release()
		// A short read (io.ErrUnexpectedEOF) is not reported as an I/O
		// error, the same as in Engine.Get; the partly filled buffer then
		// fails to decode below and the record is skipped.
		if rerr != nil && rerr != io.ErrUnexpectedEOF {
			return nil, false, rerr
		}

		rec, _, derr := record.DecodeDataRecord(buf)
		if derr != nil {
			continue
		}

		value := rec.Value
		if it.codec != nil {
			if v, cerr := it.codec.Decode(rec.Value); cerr == nil {
				value = v
			}
		}

		return &View{Type: rec.Type, Key: rec.Key, Value: value, Timestamp: rec.Timestamp}, true, nil
	}
	return nil, false, nil
}

// Remaining reports how many keys the iterator has not yet visited,
// including the one that would be returned by the next call to Next.
func (it *Iterator) Remaining() int {
	return len(it.entries) - it.pos
}
