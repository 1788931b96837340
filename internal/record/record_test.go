package record

import (
	"bytes"
	"testing"

	"github.com/iamNilotpal/embercask/pkg/errors"
)

func TestEncodeDecodeDataRecord(t *testing.T) {
	key := []byte("hello")
	value := []byte("world, this is a value")

	encoded := EncodeDataRecord(Set, key, value, 1234)
	if len(encoded) != DataHeaderSize+len(key)+len(value) {
		t.Fatalf("Encode: got length %d, want %d", len(encoded), DataHeaderSize+len(key)+len(value))
	}

	rec, n, err := DecodeDataRecord(encoded)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if n != len(encoded) {
		t.Errorf("Decode consumed %d bytes, want %d", n, len(encoded))
	}
	if rec.Type != Set {
		t.Errorf("Decode type = %v, want Set", rec.Type)
	}
	if rec.Timestamp != 1234 {
		t.Errorf("Decode timestamp = %d, want 1234", rec.Timestamp)
	}
	if !bytes.Equal(rec.Key, key) {
		t.Errorf("Decode key = %q, want %q", rec.Key, key)
	}
	if !bytes.Equal(rec.Value, value) {
		t.Errorf("Decode value = %q, want %q", rec.Value, value)
	}
}

func TestDecodeDataRecord_notEnoughInput(t *testing.T) {
	encoded := EncodeDataRecord(Set, []byte("k"), []byte("value"), 1)

	for _, n := range []int{0, 3, DataHeaderSize - 1, DataHeaderSize, len(encoded) - 1} {
		_, consumed, err := DecodeDataRecord(encoded[:n])
		if !errors.IsNotEnoughInput(err) {
			t.Errorf("DecodeDataRecord(%d bytes) err = %v, want not-enough-input", n, err)
		}
		if consumed != 0 {
			t.Errorf("DecodeDataRecord(%d bytes) consumed = %d, want 0", n, consumed)
		}
	}
}

func TestDecodeDataRecord_corruption(t *testing.T) {
	encoded := EncodeDataRecord(Set, []byte("k"), []byte("value"), 1)
	encoded[len(encoded)-1] ^= 0xFF // flip a value byte without touching the header

	rec, n, err := DecodeDataRecord(encoded)
	if !errors.IsCorruption(err) {
		t.Fatalf("Decode corrupted record err = %v, want corruption", err)
	}
	if n != len(encoded) {
		t.Errorf("Decode corrupted record still reports consumed = %d, want %d", n, len(encoded))
	}
	if rec == nil {
		t.Fatal("Decode corrupted record returned nil rec, want the decoded (but rejected) record")
	}
}

func TestEncodeDecodeIndexRecord(t *testing.T) {
	key := []byte("some-key")
	encoded := EncodeIndexRecord(Delete, 4096, 128, key)

	rec, n, err := DecodeIndexRecord(encoded)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if n != len(encoded) {
		t.Errorf("Decode consumed %d, want %d", n, len(encoded))
	}
	if rec.Type != Delete || rec.Offset != 4096 || rec.Length != 128 {
		t.Errorf("Decode = %+v, want {Type:Delete Offset:4096 Length:128}", rec)
	}
	if !bytes.Equal(rec.Key, key) {
		t.Errorf("Decode key = %q, want %q", rec.Key, key)
	}
}

func TestDecodeIndexRecord_notEnoughInput(t *testing.T) {
	encoded := EncodeIndexRecord(Set, 0, 10, []byte("abc"))
	_, _, err := DecodeIndexRecord(encoded[:IndexHeaderSize-1])
	if !errors.IsNotEnoughInput(err) {
		t.Errorf("err = %v, want not-enough-input", err)
	}
}

func TestDataRecordSize(t *testing.T) {
	r := &DataRecord{Key: []byte("abc"), Value: []byte("defgh")}
	if got, want := r.Size(), DataHeaderSize+3+5; got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}
