// Package index is the in-memory key index: a map from key to the location
// and size of its most recent live record. It holds exactly one entry per
// live key and is mutated synchronously on every put, delete, and
// compaction completion. The index has no lock of its own — per the
// design, the engine's single mutex protects it, the compaction hints, and
// the compaction task list together.
package index

// RecordLocation identifies a physical record: which segment it lives in
// and its byte offset within that segment's data file. Locations are
// totally ordered lexicographically by (SegmentID, Offset); for a given
// key, the location with the largest pair is the authoritative version.
type RecordLocation struct {
	SegmentID uint32
	Offset    uint32
}

// Less reports whether l sorts before other under the (SegmentID, Offset)
// lexicographic order.
func (l RecordLocation) Less(other RecordLocation) bool {
	if l.SegmentID != other.SegmentID {
		return l.SegmentID < other.SegmentID
	}
	return l.Offset < other.Offset
}

// Equal reports whether l and other identify the same physical record.
func (l RecordLocation) Equal(other RecordLocation) bool {
	return l.SegmentID == other.SegmentID && l.Offset == other.Offset
}

// Dir is the value half of a key index entry: where the record lives and
// how many bytes it occupies on disk.
type Dir struct {
	Location  RecordLocation
	EntrySize uint32
}

// KeyIndex maps key bytes to their Dir. It is a plain map with no internal
// synchronization; callers hold the engine mutex around every access.
type KeyIndex struct {
	entries map[string]Dir
}

// New returns an empty KeyIndex pre-sized for an initial working set.
func New() *KeyIndex {
	return &KeyIndex{entries: make(map[string]Dir, 4096)}
}

// Get returns the Dir for key, if present.
func (idx *KeyIndex) Get(key string) (Dir, bool) {
	d, ok := idx.entries[key]
	return d, ok
}

// Set installs or overwrites key's Dir.
func (idx *KeyIndex) Set(key string, dir Dir) {
	idx.entries[key] = dir
}

// Delete removes key's entry, if any.
func (idx *KeyIndex) Delete(key string) {
	delete(idx.entries, key)
}

// Len returns the number of live keys.
func (idx *KeyIndex) Len() int {
	return len(idx.entries)
}

// Snapshot returns a point-in-time copy of every (key, Dir) pair. Used by
// the segment iterator, which must not observe mutations made after its
// construction.
func (idx *KeyIndex) Snapshot() map[string]Dir {
	out := make(map[string]Dir, len(idx.entries))
	for k, v := range idx.entries {
		out[k] = v
	}
	return out
}

// Close releases the index's backing map.
func (idx *KeyIndex) Close() {
	clear(idx.entries)
}
