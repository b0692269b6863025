package chunk

import (
	"github.com/rs/zerolog/log"
)

// Sink receives the records of one transfer in order.
type Sink[T any] interface {
	// Begin discards whatever an earlier transfer left behind.
	Begin()
	Put(items []T) error
	// Finish runs once after the terminal chunk has been put.
	Finish() error
}

// Mode selects how a Transfer recognises ordering and completion.
type Mode uint8

const (
	// Boundary transfers open on First and complete on Last.
	Boundary Mode = iota + 1
	// Offset transfers open at offset 0, require offset == cursor, and
	// complete on an explicit Last flag or on reaching a known total.
	Offset
)

func (m Mode) String() string {
	switch m {
	case Boundary:
		return "boundary"
	case Offset:
		return "offset"
	default:
		return "unknown"
	}
}

// Chunk is the receive-side view of either envelope flavour.
type Chunk[T any] struct {
	Offset uint32
	First  bool
	Last   bool
	Items  []T
}

// Transfer tracks one collection transfer at a time and feeds a Sink.
type Transfer[T any] struct {
	name   string
	mode   Mode
	sink   Sink[T]
	total  int
	active bool
	cursor uint32
	chunks int
}

// NewBoundaryTransfer builds a first/last flagged transfer.
func NewBoundaryTransfer[T any](name string, sink Sink[T]) *Transfer[T] {
	return &Transfer[T]{name: name, mode: Boundary, sink: sink, total: -1}
}

// NewOffsetTransfer builds an offset transfer completed by an explicit
// terminal flag.
func NewOffsetTransfer[T any](name string, sink Sink[T]) *Transfer[T] {
	return &Transfer[T]{name: name, mode: Offset, sink: sink, total: -1}
}

// newCountedTransfer builds an offset transfer that completes once total
// elements have arrived.
func newCountedTransfer[T any](name string, sink Sink[T], total int) *Transfer[T] {
	if total < 0 {
		total = 0
	}
	return &Transfer[T]{name: name, mode: Offset, sink: sink, total: total}
}

// Active reports whether a transfer has started and not yet completed.
func (t *Transfer[T]) Active() bool {
	return t.active
}

// Cursor is the offset the next chunk must carry.
func (t *Transfer[T]) Cursor() uint32 {
	return t.cursor
}

// Abort forgets the open transfer without touching the sink.
func (t *Transfer[T]) Abort() {
	t.active = false
	t.cursor = 0
	t.chunks = 0
}

// Accept applies one chunk. It reports whether the transfer completed with
// this chunk. On error the sink has not been touched by this chunk.
func (t *Transfer[T]) Accept(c Chunk[T]) (bool, error) {
	switch t.mode {
	case Boundary:
		return t.acceptBoundary(c)
	default:
		return t.acceptOffset(c)
	}
}

func (t *Transfer[T]) acceptBoundary(c Chunk[T]) (bool, error) {
	if c.First {
		if t.active {
			log.Warn().
				Str("transfer", t.name).
				Int("chunks", t.chunks).
				Msg("chunk.Transfer first chunk discards unfinished pass")
		}
		t.sink.Begin()
		t.active = true
		t.chunks = 0
	}
	if !t.active {
		return false, ErrNoActiveTransfer
	}
	if err := t.sink.Put(c.Items); err != nil {
		return false, err
	}
	t.chunks++
	log.Debug().
		Str("transfer", t.name).
		Int("items", len(c.Items)).
		Bool("first", c.First).
		Bool("last", c.Last).
		Msg("chunk.Transfer accepted")
	if !c.Last {
		return false, nil
	}
	t.Abort()
	return true, t.sink.Finish()
}

func (t *Transfer[T]) acceptOffset(c Chunk[T]) (bool, error) {
	if c.Offset != t.cursor {
		return false, OutOfOrderChunkError{Transfer: t.name, Expected: t.cursor, Got: c.Offset}
	}
	end := int(t.cursor) + len(c.Items)
	if t.total >= 0 && end > t.total {
		return false, SizeMismatchError{Transfer: t.name, Want: t.total, Got: end}
	}
	if !t.active {
		t.sink.Begin()
		t.active = true
		t.chunks = 0
	}
	if err := t.sink.Put(c.Items); err != nil {
		return false, err
	}
	t.cursor = uint32(end)
	t.chunks++
	log.Debug().
		Str("transfer", t.name).
		Uint32("offset", c.Offset).
		Int("items", len(c.Items)).
		Bool("last", c.Last).
		Msg("chunk.Transfer accepted")

	complete := c.Last || (t.total >= 0 && end == t.total)
	if !complete {
		return false, nil
	}
	if t.total >= 0 && end != t.total {
		t.Abort()
		return false, SizeMismatchError{Transfer: t.name, Want: t.total, Got: end}
	}
	t.Abort()
	return true, t.sink.Finish()
}

// Accumulator is a Sink that collects a whole transfer and hands it on.
type Accumulator[T any] struct {
	items    []T
	expected int
	done     func([]T) error
}

// NewAccumulator collects into a slice and calls done with it on Finish.
// expected < 0 disables the final size check.
func NewAccumulator[T any](expected int, done func([]T) error) *Accumulator[T] {
	return &Accumulator[T]{expected: expected, done: done}
}

func (a *Accumulator[T]) Begin() {
	a.items = nil
}

func (a *Accumulator[T]) Put(items []T) error {
	a.items = append(a.items, items...)
	return nil
}

func (a *Accumulator[T]) Finish() error {
	items := a.items
	a.items = nil
	if a.expected >= 0 && len(items) != a.expected {
		return SizeMismatchError{Transfer: "accumulator", Want: a.expected, Got: len(items)}
	}
	if a.done == nil {
		return nil
	}
	return a.done(items)
}

// Len is the number of elements gathered so far.
func (a *Accumulator[T]) Len() int {
	return len(a.items)
}
