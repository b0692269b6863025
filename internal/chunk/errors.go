package chunk

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolDesync is matched by every error that means sender and
	// receiver disagree about a transfer.
	ErrProtocolDesync   = errors.New("chunk: protocol desync")
	ErrInvalidCap       = errors.New("chunk: max per chunk must be positive")
	ErrNegativeLength   = errors.New("chunk: negative collection length")
	ErrNoActiveTransfer = fmt.Errorf("%w: chunk outside an open transfer", ErrProtocolDesync)
)

// OutOfOrderChunkError reports an offset that does not match the cursor.
type OutOfOrderChunkError struct {
	Transfer string
	Expected uint32
	Got      uint32
}

func (e OutOfOrderChunkError) Error() string {
	return fmt.Sprintf("chunk: %s out of order: expected offset %d, got %d", e.Transfer, e.Expected, e.Got)
}

func (e OutOfOrderChunkError) Is(target error) bool {
	return target == ErrProtocolDesync
}

// SizeMismatchError reports a transfer whose accumulated length differs
// from the length announced for it.
type SizeMismatchError struct {
	Transfer string
	Want     int
	Got      int
}

func (e SizeMismatchError) Error() string {
	return fmt.Sprintf("chunk: %s size mismatch: want %d elements, got %d", e.Transfer, e.Want, e.Got)
}

func (e SizeMismatchError) Is(target error) bool {
	return target == ErrProtocolDesync
}

// SourceChangedError reports a pagination source that produced a different
// number of elements than it claimed when pagination started.
type SourceChangedError struct {
	Claimed  int
	Produced int
}

func (e SourceChangedError) Error() string {
	return fmt.Sprintf("chunk: source changed during pagination: claimed %d, produced at least %d", e.Claimed, e.Produced)
}
