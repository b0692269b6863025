package mirror

import (
	"github.com/MatthiasLenz/TechniteLogic/internal/grid"
	"github.com/MatthiasLenz/TechniteLogic/internal/technite"
)

// Snapshot is a detached copy of the mirror taken between messages.
type Snapshot struct {
	State  State
	Grid   grid.Snapshot
	Units  []technite.State
	Yields []uint8
	Deltas uint64
	Rounds uint64
}

func (m *Mirror) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:  m.state,
		Grid:   m.grid.Snapshot(),
		Units:  m.units.States(),
		Yields: append([]uint8(nil), m.yields...),
		Deltas: m.deltas,
		Rounds: m.rounds,
	}
}

// Restore replaces all mirrored state with s. Open transfers are dropped.
func (m *Mirror) Restore(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.grid.Restore(s.Grid); err != nil {
		return err
	}
	m.nodes.Abort()
	m.states.Abort()
	m.units.Clear()
	for _, st := range s.Units {
		m.units.CreateOrUpdate(st)
	}
	m.yields = append([]uint8(nil), s.Yields...)
	m.deltas = s.Deltas
	m.rounds = s.Rounds
	m.failed = nil
	m.transition(s.State)
	return nil
}
