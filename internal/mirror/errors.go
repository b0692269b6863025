package mirror

import (
	"errors"
	"fmt"

	"github.com/MatthiasLenz/TechniteLogic/internal/chunk"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/channel"
)

// ErrSessionFailed is returned by every handler once a fatal error has been
// recorded, until Reset.
var ErrSessionFailed = errors.New("mirror: session failed")

// UnexpectedMessageError reports a message the current session state does
// not allow.
type UnexpectedMessageError struct {
	Channel channel.ID
	State   State
}

func (e UnexpectedMessageError) Error() string {
	return fmt.Sprintf("mirror: %s not allowed in state %s", e.Channel, e.State)
}

func (e UnexpectedMessageError) Is(target error) bool {
	return target == chunk.ErrProtocolDesync
}

// ConfigValidationError reports a grid configuration that does not match
// the locally known content types.
type ConfigValidationError struct {
	Want int
	Got  int
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("mirror: matter yield table has %d entries, %d content types are known", e.Got, e.Want)
}

// IsConnectionFatal reports whether the byte stream itself can no longer
// be trusted.
func IsConnectionFatal(err error) bool {
	var unknown channel.UnknownChannelError
	var decode channel.DecodeError
	return errors.As(err, &unknown) || errors.As(err, &decode)
}
