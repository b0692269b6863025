package channel

import (
	"errors"
	"fmt"
)

var (
	ErrRegistrySealed = errors.New("channel: registry sealed")
	ErrReserved       = errors.New("channel: reserved or out-of-range id")
	ErrWrongDirection = errors.New("channel: wrong direction")
	ErrNilHandler     = errors.New("channel: nil handler")
	ErrSignalPayload  = errors.New("channel: signal carries payload")
)

// DuplicateChannelError reports a second registration for one id.
type DuplicateChannelError struct {
	ID ID
}

func (e DuplicateChannelError) Error() string {
	return fmt.Sprintf("channel: %s (%d) already registered", e.ID, uint32(e.ID))
}

// UnknownChannelError reports a dispatch on an id without a handler.
type UnknownChannelError struct {
	ID ID
}

func (e UnknownChannelError) Error() string {
	return fmt.Sprintf("channel: no handler for %s (%d)", e.ID, uint32(e.ID))
}

// DecodeError reports a payload that does not match its channel's record
// layout.
type DecodeError struct {
	ID  ID
	Err error
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("channel: decode %s: %v", e.ID, e.Err)
}

func (e DecodeError) Unwrap() error {
	return e.Err
}
