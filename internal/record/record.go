// Package record implements the on-disk encoding of data and index
// records: big-endian, packed, with no padding between fields.
package record

import (
	"encoding/binary"

	"github.com/iamNilotpal/embercask/pkg/checksum"
	"github.com/iamNilotpal/embercask/pkg/errors"
)

// Type distinguishes a live write from a tombstone.
type Type uint8

const (
	// Set records a live key-value write.
	Set Type = iota
	// Delete is a tombstone marking a key removed.
	Delete
)

// DataHeaderSize is the fixed, packed size of a DataRecord header:
// checksum(4) + type(1) + key_size(1) + value_size(4) + timestamp(4).
const DataHeaderSize = 14

// IndexHeaderSize is the fixed, packed size of an IndexRecord header:
// type(1) + offset(4) + length(4) + key_size(1).
const IndexHeaderSize = 10

// DataRecord is the on-disk form of a single write.
type DataRecord struct {
	Checksum  uint32
	Type      Type
	Timestamp uint32
	Key       []byte
	Value     []byte
}

// Size returns the total encoded length of r: header plus key and value.
func (r *DataRecord) Size() int {
	return DataHeaderSize + len(r.Key) + len(r.Value)
}

// checksummer is package-level because every record in the engine is
// checksummed the same way (CRC-32 IEEE over key+value).
var checksummer = checksum.NewCRC32IEEE()

// EncodeDataRecord serializes a Set/Delete record, computing its checksum
// over key+value. The caller is responsible for compressing the value (or
// not) before calling this.
func EncodeDataRecord(typ Type, key, value []byte, timestamp uint32) []byte {
	buf := make([]byte, DataHeaderSize+len(key)+len(value))

	sum := checksummer.Calculate(append(append([]byte{}, key...), value...))
	binary.BigEndian.PutUint32(buf[0:4], sum)
	buf[4] = byte(typ)
	buf[5] = byte(len(key))
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(value)))
	binary.BigEndian.PutUint32(buf[10:14], timestamp)
	copy(buf[DataHeaderSize:], key)
	copy(buf[DataHeaderSize+len(key):], value)

	return buf
}

// DecodeDataRecord parses a DataRecord from the front of buf. Decoding is
// partial-aware: if buf is shorter than the header, or shorter than
// header+key+value, it returns errors.NewNotEnoughInputError(consumed=0)
// without consuming any bytes, signalling the caller to read more (or, at
// end of segment, treat this as the segment boundary. It also verifies the
// checksum and returns a corruption error (still reporting how many bytes
// the record occupies) if it disagrees.
func DecodeDataRecord(buf []byte) (*DataRecord, int, error) {
	if len(buf) < DataHeaderSize {
		return nil, 0, errors.NewNotEnoughInputError(DataHeaderSize, len(buf))
	}

	keySize := int(buf[5])
	valueSize := int(binary.BigEndian.Uint32(buf[6:10]))
	total := DataHeaderSize + keySize + valueSize
	if len(buf) < total {
		return nil, 0, errors.NewNotEnoughInputError(total, len(buf))
	}

	r := &DataRecord{
		Checksum:  binary.BigEndian.Uint32(buf[0:4]),
		Type:      Type(buf[4]),
		Timestamp: binary.BigEndian.Uint32(buf[10:14]),
		Key:       append([]byte{}, buf[DataHeaderSize:DataHeaderSize+keySize]...),
		Value:     append([]byte{}, buf[DataHeaderSize+keySize:total]...),
	}

	if !checksummer.Verify(append(append([]byte{}, r.Key...), r.Value...), r.Checksum) {
		return r, total, errors.NewCorruptionError(nil, 0, 0).WithDetail("key", string(r.Key))
	}

	return r, total, nil
}

// IndexRecord mirrors a DataRecord minus its value payload: enough to
// rebuild a KeyIndex entry without reading the data file.
type IndexRecord struct {
	Type   Type
	Offset uint32
	Length uint32
	Key    []byte
}

// Size returns the total encoded length of r.
func (r *IndexRecord) Size() int {
	return IndexHeaderSize + len(r.Key)
}

// EncodeIndexRecord serializes an IndexRecord mirroring the data record at
// (offset, length) for key.
func EncodeIndexRecord(typ Type, offset, length uint32, key []byte) []byte {
	buf := make([]byte, IndexHeaderSize+len(key))
	buf[0] = byte(typ)
	binary.BigEndian.PutUint32(buf[1:5], offset)
	binary.BigEndian.PutUint32(buf[5:9], length)
	buf[9] = byte(len(key))
	copy(buf[IndexHeaderSize:], key)
	return buf
}

// DecodeIndexRecord parses an IndexRecord from the front of buf, with the
// same partial-aware contract as DecodeDataRecord.
func DecodeIndexRecord(buf []byte) (*IndexRecord, int, error) {
	if len(buf) < IndexHeaderSize {
		return nil, 0, errors.NewNotEnoughInputError(IndexHeaderSize, len(buf))
	}

	keySize := int(buf[9])
	total := IndexHeaderSize + keySize
	if len(buf) < total {
		return nil, 0, errors.NewNotEnoughInputError(total, len(buf))
	}

	r := &IndexRecord{
		Type:   Type(buf[0]),
		Offset: binary.BigEndian.Uint32(buf[1:5]),
		Length: binary.BigEndian.Uint32(buf[5:9]),
		Key:    append([]byte{}, buf[IndexHeaderSize:total]...),
	}
	return r, total, nil
}
