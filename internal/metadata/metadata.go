// Package metadata persists the ordered set of live segment ids for a
// database: a header naming the database, followed by an append-only log
// of Create/Delete entries. The live-segment set is the fold of that log.
// The file is tiny, so every mutation is fsynced before it returns.
package metadata

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/iamNilotpal/embercask/pkg/errors"
	"github.com/iamNilotpal/embercask/pkg/seginfo"
	"github.com/natefinch/atomic"
)

// EntryType distinguishes a segment coming into existence from one being
// reclaimed.
type EntryType uint8

const (
	EntryCreate EntryType = 0
	EntryDelete EntryType = 1
)

const entrySize = 1 + 4 // type(u8) + segment id(u32)

// Log is the metadata manager: the live-segments set plus the database
// name, backed by an append-only file at the database path.
type Log struct {
	mu   sync.Mutex
	path string
	name string
	f    *os.File
	live map[uint32]struct{}
}

// Open initializes the metadata log at path. If the file does not exist,
// it is bootstrapped with a header carrying the database's name (derived
// from path by stripping its extension). Otherwise the existing file is
// replayed entry by entry to reconstruct the live-segment set.
func Open(path string) (*Log, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := bootstrap(path, seginfo.DatabaseName(path)); err != nil {
			return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to bootstrap metadata log").WithPath(path)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}

	name, live, err := replay(f)
	if err != nil {
		f.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeCorruption, "failed to replay metadata log").WithPath(path)
	}

	return &Log{path: path, name: name, f: f, live: live}, nil
}

// bootstrap atomically writes a fresh metadata file containing only the
// header. Using an atomic rename here means a crash mid-bootstrap never
// leaves a half-written header behind for the next Open to choke on.
func bootstrap(path, name string) error {
	buf := make([]byte, 2+len(name))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(name)))
	copy(buf[2:], name)
	return atomic.WriteFile(path, bytes.NewReader(buf))
}

func replay(f *os.File) (name string, live map[uint32]struct{}, err error) {
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return "", nil, err
	}
	r := bufio.NewReader(f)

	var nameLen uint16
	if err = binary.Read(r, binary.BigEndian, &nameLen); err != nil {
		return "", nil, err
	}
	nameBuf := make([]byte, nameLen)
	if _, err = io.ReadFull(r, nameBuf); err != nil {
		return "", nil, err
	}
	name = string(nameBuf)

	live = make(map[uint32]struct{})
	entry := make([]byte, entrySize)
	for {
		if _, err = io.ReadFull(r, entry); err != nil {
			if err == io.EOF {
				err = nil
			}
			break
		}
		id := binary.BigEndian.Uint32(entry[1:5])
		switch EntryType(entry[0]) {
		case EntryCreate:
			live[id] = struct{}{}
		case EntryDelete:
			delete(live, id)
		}
	}
	return name, live, err
}

// Name returns the database name recorded in the header.
func (l *Log) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

// Create appends a Create entry for id, fsyncs, and enrolls it in the live
// set.
func (l *Log) Create(id uint32) error {
	return l.append(EntryCreate, id, true)
}

// Delete appends a Delete entry for id, fsyncs, and removes it from the
// live set.
func (l *Log) Delete(id uint32) error {
	return l.append(EntryDelete, id, false)
}

func (l *Log) append(typ EntryType, id uint32, live bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := make([]byte, entrySize)
	entry[0] = byte(typ)
	binary.BigEndian.PutUint32(entry[1:5], id)

	if _, err := l.f.Seek(0, io.SeekEnd); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to seek metadata log").WithPath(l.path)
	}
	if _, err := l.f.Write(entry); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to append metadata entry").WithPath(l.path)
	}
	if err := l.f.Sync(); err != nil {
		return errors.ClassifySyncError(err, filepath.Base(l.path), l.path, 0)
	}

	if live {
		l.live[id] = struct{}{}
	} else {
		delete(l.live, id)
	}
	return nil
}

// Snapshot returns the current live-segment set as an ascending slice.
func (l *Log) Snapshot() []uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]uint32, 0, len(l.live))
	for id := range l.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
