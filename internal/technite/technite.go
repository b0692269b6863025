// Package technite tracks the client-side mirror of every simulation unit
// and the instruction each one is about to receive.
package technite

import (
	"iter"

	"github.com/rs/zerolog/log"
)

// Resources held by one technite.
type Resources struct {
	Energy uint8
	Matter uint8
}

// State is one unit state record as pushed by the server.
type State struct {
	Location   uint32
	Resources  Resources
	TaskResult uint8
	State      uint8
}

// TaskNone leaves a unit idle for the next round.
const TaskNone uint8 = 0

// Instruction is one unit instruction record sent back to the server.
type Instruction struct {
	NextTask  uint8
	Target    uint8
	Parameter uint8
}

// Technite is one tracked unit.
type Technite struct {
	State
	Instruction Instruction

	touched uint64
}

// Collection is keyed by location and ordered by arrival within the current
// full-state pass. Instruction export follows that order.
type Collection struct {
	byLocation map[uint32]*Technite
	order      []*Technite
	generation uint64
	stale      int
	passes     uint64
}

func NewCollection() *Collection {
	return &Collection{
		byLocation: make(map[uint32]*Technite),
		generation: 1,
	}
}

// Reset starts a new full-state pass. Every tracked unit is dropped from the
// live view at once; storage is reclaimed by the next Cleanup.
func (c *Collection) Reset() {
	c.generation++
	c.stale = len(c.byLocation)
	c.order = c.order[:0]
}

// CreateOrUpdate inserts an unseen location or overwrites the resource and
// state fields of a known one. A repeated record within one pass keeps the
// unit's position.
func (c *Collection) CreateOrUpdate(s State) *Technite {
	t, ok := c.byLocation[s.Location]
	if !ok {
		t = &Technite{}
		c.byLocation[s.Location] = t
	}
	t.State = s
	if t.touched != c.generation {
		if ok {
			c.stale--
		}
		t.touched = c.generation
		t.Instruction = Instruction{}
		c.order = append(c.order, t)
	}
	return t
}

// Cleanup evicts every unit the current pass did not touch and returns how
// many were removed.
func (c *Collection) Cleanup() int {
	if c.stale == 0 {
		return 0
	}
	removed := 0
	for loc, t := range c.byLocation {
		if t.touched != c.generation {
			delete(c.byLocation, loc)
			removed++
		}
	}
	c.stale = 0
	return removed
}

// Clear drops everything, including storage.
func (c *Collection) Clear() {
	clear(c.byLocation)
	c.order = nil
	c.stale = 0
	c.passes = 0
	c.generation++
}

func (c *Collection) Count() int {
	return len(c.order)
}

// Stale is the number of units awaiting eviction.
func (c *Collection) Stale() int {
	return c.stale
}

// Passes counts completed full-state passes.
func (c *Collection) Passes() uint64 {
	return c.passes
}

func (c *Collection) Lookup(location uint32) (*Technite, bool) {
	t, ok := c.byLocation[location]
	if !ok || t.touched != c.generation {
		return nil, false
	}
	return t, true
}

// All yields live units in export order.
func (c *Collection) All() iter.Seq[*Technite] {
	return func(yield func(*Technite) bool) {
		for _, t := range c.order {
			if !yield(t) {
				return
			}
		}
	}
}

// Instructions yields each live unit's instruction in export order.
func (c *Collection) Instructions() iter.Seq[Instruction] {
	return func(yield func(Instruction) bool) {
		for _, t := range c.order {
			if !yield(t.Instruction) {
				return
			}
		}
	}
}

// States copies the live unit states in export order.
func (c *Collection) States() []State {
	out := make([]State, len(c.order))
	for i, t := range c.order {
		out[i] = t.State
	}
	return out
}

// Begin, Put and Finish let a boundary-flagged transfer drive the
// collection directly.
func (c *Collection) Begin() {
	c.Reset()
}

func (c *Collection) Put(states []State) error {
	for _, s := range states {
		c.CreateOrUpdate(s)
	}
	return nil
}

func (c *Collection) Finish() error {
	removed := c.Cleanup()
	c.passes++
	log.Debug().
		Int("units", c.Count()).
		Int("evicted", removed).
		Uint64("pass", c.passes).
		Msg("technite.Collection pass complete")
	return nil
}
