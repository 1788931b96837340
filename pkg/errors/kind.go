package errors

import stdErrors "errors"

// Kind is the small, stable classification every operation in the storage
// engine's public surface promises to return. It exists alongside the wider
// ErrorCode taxonomy: ErrorCode is for logging and diagnostics, Kind is for
// callers deciding what to do next (retry, surface to a user, give up).
type Kind int

const (
	KindOK Kind = iota
	KindNotFound
	KindCorruption
	KindUnsupported
	KindInvalidArgument
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotFound:
		return "not-found"
	case KindCorruption:
		return "corruption"
	case KindUnsupported:
		return "unsupported"
	case KindInvalidArgument:
		return "invalid-argument"
	default:
		return "io"
	}
}

// kindOf maps the wider ErrorCode taxonomy down to the six user-facing
// kinds. Codes with no explicit entry fall through to KindIO, the closest
// analogue of "unexpected system failure" in the spec's taxonomy.
func kindOf(code ErrorCode) Kind {
	switch code {
	case ErrorCodeNotFound, ErrorCodeIndexKeyNotFound:
		return KindNotFound
	case ErrorCodeCorruption, ErrorCodeSegmentCorrupted, ErrorCodeIndexCorrupted:
		return KindCorruption
	case ErrorCodeUnsupported:
		return KindUnsupported
	case ErrorCodeInvalidInput:
		return KindInvalidArgument
	default:
		return KindIO
	}
}

// kindCarrier is implemented by every error type in this package.
type kindCarrier interface {
	Kind() Kind
}

// KindOf extracts the Kind of any error produced by this package, walking
// the error chain with errors.As. Errors that don't originate here are
// reported as KindIO, matching the engine's "unexpected failure" fallback.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}

	var kc kindCarrier
	if stdErrors.As(err, &kc) {
		return kc.Kind()
	}
	return KindIO
}

// IsNotFound reports whether err classifies as KindNotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsCorruption reports whether err classifies as KindCorruption.
func IsCorruption(err error) bool { return KindOf(err) == KindCorruption }

// IsUnsupported reports whether err classifies as KindUnsupported.
func IsUnsupported(err error) bool { return KindOf(err) == KindUnsupported }

// NewNotFoundError creates a generic not-found error for a missing key.
// Use NewKeyNotFoundError instead when index-specific context is available.
func NewNotFoundError(key string) *IndexError {
	return NewIndexError(nil, ErrorCodeNotFound, "key not found").
		WithKey(key).
		WithOperation("Get")
}

// NewCorruptionError creates a storage error for a record that failed its
// checksum or could not be decoded.
func NewCorruptionError(err error, segmentID int, offset int) *StorageError {
	return NewStorageError(err, ErrorCodeCorruption, "record failed integrity check").
		WithSegmentID(segmentID).
		WithOffset(offset)
}

// NewUnsupportedError creates a validation error for an operation the
// engine cannot currently perform (read-only mode, oversized record).
func NewUnsupportedError(reason string) *ValidationError {
	return NewValidationError(nil, ErrorCodeUnsupported, reason)
}

// NewNotEnoughInputError reports that a codec needs `want` bytes to decode a
// complete record but was only handed `got`. It is a control-flow signal
// between the record codec and its callers (segment scans, recovery), not a
// Kind a caller of the public API ever sees directly — end-of-segment
// padding surfaces this way too.
func NewNotEnoughInputError(want, got int) *StorageError {
	return NewStorageError(nil, ErrorCodeNotEnoughInput, "not enough input to decode record").
		WithDetail("wanted_bytes", want).
		WithDetail("got_bytes", got)
}

// IsNotEnoughInput reports whether err is the NewNotEnoughInputError signal.
func IsNotEnoughInput(err error) bool {
	return GetErrorCode(err) == ErrorCodeNotEnoughInput
}
