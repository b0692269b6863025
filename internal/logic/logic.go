// Package logic is the boundary between the mirror and the rules that pick
// each unit's next task.
package logic

import (
	"github.com/MatthiasLenz/TechniteLogic/internal/grid"
	"github.com/MatthiasLenz/TechniteLogic/internal/technite"
)

// World is the mirrored state a Decider reads. Units is the only part a
// Decider may write, and only through each unit's Instruction field.
type World struct {
	Grid        *grid.Grid
	Units       *technite.Collection
	MatterYield []uint8
}

// Decider assigns an instruction to every tracked unit before a round is
// exported.
type Decider interface {
	Decide(w World) error
}

// Func adapts a plain function to Decider.
type Func func(w World) error

func (f Func) Decide(w World) error {
	return f(w)
}

// Idle keeps every unit on TaskNone.
type Idle struct{}

func (Idle) Decide(w World) error {
	for t := range w.Units.All() {
		t.Instruction = technite.Instruction{NextTask: technite.TaskNone}
	}
	return nil
}
