// Package seginfo names and parses the on-disk files that make up a
// segment: a data file and an index file sharing a numeric id, stored in
// a directory the caller supplies (the engine uses the segment
// subdirectory next to the database's metadata file).
//
// Filename format: <prefix>_<id>.data and <prefix>_<id>.index, where id is
// the segment's decimal id with no padding (ids are tracked authoritatively
// by the metadata log, not discovered by directory listing, so sort order
// of filenames is never load-bearing).
package seginfo

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DataExt  = ".data"
	IndexExt = ".index"
)

// DataFileName returns the data file name for segment id under prefix.
func DataFileName(prefix string, id uint32) string {
	return fmt.Sprintf("%s_%d%s", prefix, id, DataExt)
}

// IndexFileName returns the index file name for segment id under prefix.
func IndexFileName(prefix string, id uint32) string {
	return fmt.Sprintf("%s_%d%s", prefix, id, IndexExt)
}

// DataPath joins dir and the segment's data file name.
func DataPath(dir, prefix string, id uint32) string {
	return filepath.Join(dir, DataFileName(prefix, id))
}

// IndexPath joins dir and the segment's index file name.
func IndexPath(dir, prefix string, id uint32) string {
	return filepath.Join(dir, IndexFileName(prefix, id))
}

// ParseID extracts the segment id from a data or index filename produced by
// DataFileName/IndexFileName. It returns an error if filename does not
// start with prefix+"_" or does not end with a recognized extension.
func ParseID(filename, prefix string) (uint32, error) {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if ext != DataExt && ext != IndexExt {
		return 0, fmt.Errorf("seginfo: %q has unrecognized extension %q", filename, ext)
	}

	trimmed := strings.TrimSuffix(base, ext)
	want := prefix + "_"
	if !strings.HasPrefix(trimmed, want) {
		return 0, fmt.Errorf("seginfo: %q does not start with prefix %q", filename, prefix)
	}

	idStr := strings.TrimPrefix(trimmed, want)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("seginfo: %q has non-numeric segment id: %w", filename, err)
	}
	return uint32(id), nil
}

// DatabaseName derives the database's name from its path by stripping a
// trailing file extension, e.g. "/tmp/a.db" -> "a". The metadata file's
// header stores this name.
func DatabaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
