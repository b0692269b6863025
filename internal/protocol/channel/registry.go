package channel

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Sender delivers one encoded payload on a client-to-server channel.
type Sender interface {
	Send(id ID, payload []byte) error
}

type route struct {
	dispatch func(payload []byte) error
}

// Registry maps inbound channel ids to decoder+handler pairs. It is filled
// once during startup and sealed; after Seal it is read-only and safe for
// concurrent Dispatch.
type Registry struct {
	routes [Count]*route
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register binds a typed decoder and handler to id.
func Register[T any](r *Registry, id ID, decode func([]byte) (T, error), handle func(T) error) error {
	if decode == nil || handle == nil {
		return ErrNilHandler
	}
	if id.IsSignal() {
		return fmt.Errorf("%w: %s is a signal channel", ErrWrongDirection, id)
	}
	return r.bind(id, &route{dispatch: func(payload []byte) error {
		msg, err := decode(payload)
		if err != nil {
			return DecodeError{ID: id, Err: err}
		}
		return handle(msg)
	}})
}

// RegisterSignal binds a payload-less handler to id.
func RegisterSignal(r *Registry, id ID, handle func() error) error {
	if handle == nil {
		return ErrNilHandler
	}
	if id.Valid() && !id.IsSignal() {
		return fmt.Errorf("%w: %s carries a payload", ErrWrongDirection, id)
	}
	return r.bind(id, &route{dispatch: func(payload []byte) error {
		if len(payload) != 0 {
			return DecodeError{ID: id, Err: fmt.Errorf("%w: %d bytes", ErrSignalPayload, len(payload))}
		}
		return handle()
	}})
}

func (r *Registry) bind(id ID, rt *route) error {
	if r.sealed {
		return ErrRegistrySealed
	}
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrReserved, uint32(id))
	}
	if id.Direction() != ServerToClient {
		return fmt.Errorf("%w: %s is %s", ErrWrongDirection, id, id.Direction())
	}
	if r.routes[id] != nil {
		return DuplicateChannelError{ID: id}
	}
	r.routes[id] = rt
	log.Debug().Str("channel", id.String()).Msg("channel.Registry bind")
	return nil
}

// Seal freezes the mapping.
func (r *Registry) Seal() {
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	return r.sealed
}

// Bound lists registered ids in ascending order.
func (r *Registry) Bound() []ID {
	out := make([]ID, 0, Count)
	for id := Unused + 1; id < Count; id++ {
		if r.routes[id] != nil {
			out = append(out, id)
		}
	}
	return out
}

// Dispatch decodes raw with the decoder bound to id and invokes its handler.
func (r *Registry) Dispatch(id ID, raw []byte) error {
	if !id.Valid() || r.routes[id] == nil {
		return UnknownChannelError{ID: id}
	}
	return r.routes[id].dispatch(raw)
}
