// Package compress provides the value compression codecs the storage
// engine can apply before appending a record to a segment. Compression is
// applied to the value only; keys, headers, and checksums are always
// stored uncompressed so the engine can scan records without touching the
// codec.
package compress

import "github.com/golang/snappy"

// Codec compresses and decompresses record values.
type Codec interface {
	// Encode returns a (possibly) compressed copy of value.
	Encode(value []byte) []byte

	// Decode reverses Encode. It returns an error if src is not valid
	// output of this codec's Encode.
	Decode(src []byte) ([]byte, error)
}

// snappyCodec compresses values with Snappy, the block codec already used
// by a peer embedded store in this lineage.
type snappyCodec struct{}

// NewSnappy returns a Codec backed by github.com/golang/snappy.
func NewSnappy() Codec {
	return snappyCodec{}
}

func (snappyCodec) Encode(value []byte) []byte {
	return snappy.Encode(nil, value)
}

func (snappyCodec) Decode(src []byte) ([]byte, error) {
	return snappy.Decode(nil, src)
}

// identityCodec is the no-op codec used when CompressValue is disabled.
type identityCodec struct{}

// NewIdentity returns a Codec that stores values as-is.
func NewIdentity() Codec {
	return identityCodec{}
}

func (identityCodec) Encode(value []byte) []byte {
	return value
}

func (identityCodec) Decode(src []byte) ([]byte, error) {
	return src, nil
}

// Select returns the Snappy codec when enabled is true, otherwise the
// identity codec. Engine construction calls this once with
// options.Options.CompressValue.
func Select(enabled bool) Codec {
	if enabled {
		return NewSnappy()
	}
	return NewIdentity()
}
