// Package transport carries framed channel messages over a TCP stream or a
// websocket and reconnects with backoff.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/channel"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/frame"
)

var (
	ErrPeerClosed         = errors.New("transport: peer closed connection")
	ErrClosed             = errors.New("transport: connection closed")
	ErrUnexpectedMessage  = errors.New("transport: unexpected websocket message type")
	ErrSequenceRegression = errors.New("transport: frame sequence did not increase")
)

// DispatchFunc handles one inbound channel message. A non-nil error ends
// Serve.
type DispatchFunc func(id channel.ID, payload []byte) error

// Conn is one live connection to the server.
type Conn interface {
	channel.Sender
	// Serve reads frames and dispatches them in arrival order until the
	// peer closes, a dispatch fails or ctx ends.
	Serve(ctx context.Context, dispatch DispatchFunc) error
	Close() error
	RemoteAddr() string
}

// serveFrames is the read loop shared by every carrier.
func serveFrames(ctx context.Context, remote string, next func() (frame.Frame, error), dispatch DispatchFunc) error {
	var lastSeq uint64
	for {
		f, err := next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if f.Header.Sequence <= lastSeq {
			return fmt.Errorf("%w: %d after %d", ErrSequenceRegression, f.Header.Sequence, lastSeq)
		}
		lastSeq = f.Header.Sequence
		id := channel.ID(f.Header.Channel)
		log.Debug().
			Str("remote", remote).
			Str("channel", id.String()).
			Uint64("seq", f.Header.Sequence).
			Int("bytes", len(f.Payload)).
			Msg("transport recv")
		if err := dispatch(id, f.Payload); err != nil {
			return err
		}
	}
}
