// Package mirror reconciles the server's session bootstrap and ongoing
// updates into one consistent client-side copy of the world.
package mirror

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/MatthiasLenz/TechniteLogic/internal/catalog"
	"github.com/MatthiasLenz/TechniteLogic/internal/chunk"
	"github.com/MatthiasLenz/TechniteLogic/internal/delta"
	"github.com/MatthiasLenz/TechniteLogic/internal/grid"
	"github.com/MatthiasLenz/TechniteLogic/internal/logic"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/channel"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/message"
	"github.com/MatthiasLenz/TechniteLogic/internal/technite"
)

// TransitionFunc observes state changes. It runs with the mirror locked
// and must not call back into the mirror.
type TransitionFunc func(from, to State)

type Option func(*Mirror)

func WithTransitionHook(fn TransitionFunc) Option {
	return func(m *Mirror) {
		m.onTransition = fn
	}
}

// Mirror is safe for concurrent use. Handlers are expected to be driven by
// a single read loop; the mutex serializes them against out-of-band readers.
type Mirror struct {
	mu sync.Mutex

	state   State
	failed  error
	catalog *catalog.Catalog
	yields  []uint8

	grid  *grid.Grid
	units *technite.Collection

	nodes    *chunk.Transfer[grid.Node]
	topology *chunk.Accumulator[grid.Node]
	states   *chunk.Transfer[technite.State]

	deltas uint64
	rounds uint64

	onTransition TransitionFunc
}

func New(cat *catalog.Catalog, opts ...Option) *Mirror {
	m := &Mirror{
		catalog: cat,
		yields:  cat.Yields(),
		grid:    grid.New(),
		units:   technite.NewCollection(),
	}
	m.topology = chunk.NewAccumulator(-1, m.topologyComplete)
	m.nodes = chunk.NewOffsetTransfer[grid.Node]("node_chunk", m.topology)
	m.states = chunk.NewBoundaryTransfer[technite.State]("technite_state_chunk", m.units)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bind registers the mirror's handlers for every inbound channel except
// InstructTechnites, which belongs to the round controller.
func (m *Mirror) Bind(r *channel.Registry) error {
	return errors.Join(
		channel.Register(r, channel.TechniteStateChunk, message.DecodeStateChunk, m.HandleStateChunk),
		channel.Register(r, channel.NodeChunk, message.DecodeNodeChunk, m.HandleNodeChunk),
		channel.Register(r, channel.GridConfig, message.DecodeGridConfig, m.HandleGridConfig),
		channel.Register(r, channel.GridDelta, message.DecodeGridDelta, m.HandleGridDelta),
		channel.Register(r, channel.WorldInfo, message.DecodeWorldInfo, m.HandleWorldInfo),
	)
}

func (m *Mirror) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err is the fatal error that ended the session, if any.
func (m *Mirror) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

// Reset discards all mirrored state and clears a recorded failure.
func (m *Mirror) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes.Abort()
	m.states.Abort()
	m.grid.Clear()
	m.units.Clear()
	m.yields = m.catalog.Yields()
	m.failed = nil
	m.deltas = 0
	m.rounds = 0
	m.transition(Uninitialized)
}

func (m *Mirror) HandleNodeChunk(c message.NodeChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guard(channel.NodeChunk, func() error {
		if c.Offset != m.nodes.Cursor() {
			return chunk.OutOfOrderChunkError{Transfer: "node_chunk", Expected: m.nodes.Cursor(), Got: c.Offset}
		}
		if m.state != Uninitialized && m.state != AssemblingTopology {
			log.Info().Str("state", m.state.String()).Msg("mirror.Mirror topology restart")
			m.grid.Clear()
		}
		if m.state != AssemblingTopology {
			m.transition(AssemblingTopology)
		}
		_, err := m.nodes.Accept(chunk.Chunk[grid.Node]{Offset: c.Offset, Last: c.IsLast, Items: c.Nodes})
		return err
	})
}

func (m *Mirror) topologyComplete(nodes []grid.Node) error {
	if err := m.grid.SetTopology(nodes); err != nil {
		return fmt.Errorf("%w: %w", chunk.ErrProtocolDesync, err)
	}
	log.Info().Int("nodes", len(nodes)).Msg("mirror.Mirror topology complete")
	m.transition(TopologyComplete)
	return nil
}

func (m *Mirror) HandleGridConfig(c message.GridConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guard(channel.GridConfig, func() error {
		switch m.state {
		case TopologyComplete, ConfiguringGrid, Ready:
		default:
			return UnexpectedMessageError{Channel: channel.GridConfig, State: m.state}
		}
		if len(c.MatterYield) != m.catalog.Count() {
			return ConfigValidationError{Want: m.catalog.Count(), Got: len(c.MatterYield)}
		}
		m.grid.Configure(grid.Config{
			HeightPerLayer:    c.HeightPerLayer,
			NumLayersPerStack: c.NumLayersPerStack,
			MatterYield:       c.MatterYield,
		})
		m.yields = append([]uint8(nil), c.MatterYield...)
		log.Info().
			Float32("height_per_layer", c.HeightPerLayer).
			Int32("layers_per_stack", c.NumLayersPerStack).
			Int("content_types", len(c.MatterYield)).
			Msg("mirror.Mirror grid configured")
		if m.state != ConfiguringGrid {
			m.transition(ConfiguringGrid)
		}
		return nil
	})
}

func (m *Mirror) HandleWorldInfo(w message.WorldInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guard(channel.WorldInfo, func() error {
		switch m.state {
		case ConfiguringGrid, Ready:
		default:
			return UnexpectedMessageError{Channel: channel.WorldInfo, State: m.state}
		}
		m.grid.SetCoreContent(w.CoreContent)
		log.Info().
			Uint8("core_content", w.CoreContent).
			Str("content", m.catalog.Name(w.CoreContent)).
			Msg("mirror.Mirror world info")
		if m.state != Ready {
			m.transition(Ready)
		}
		return nil
	})
}

func (m *Mirror) HandleGridDelta(d delta.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guard(channel.GridDelta, func() error {
		switch m.state {
		case TopologyComplete, ConfiguringGrid, Ready:
		default:
			return UnexpectedMessageError{Channel: channel.GridDelta, State: m.state}
		}
		if err := m.grid.ApplyDelta(d); err != nil {
			return err
		}
		m.deltas++
		return nil
	})
}

func (m *Mirror) HandleStateChunk(c message.StateChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guard(channel.TechniteStateChunk, func() error {
		done, err := m.states.Accept(chunk.Chunk[technite.State]{First: c.IsFirst(), Last: c.IsLast(), Items: c.States})
		if err != nil {
			return err
		}
		if done {
			log.Info().
				Int("units", m.units.Count()).
				Uint64("pass", m.units.Passes()).
				Msg("mirror.Mirror unit state refreshed")
		}
		return nil
	})
}

// PrepareRound evicts stale units, lets d assign instructions and returns
// them in export order.
func (m *Mirror) PrepareRound(d logic.Decider) ([]technite.Instruction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []technite.Instruction
	err := m.guard(channel.InstructTechnites, func() error {
		if m.state != Ready {
			return UnexpectedMessageError{Channel: channel.InstructTechnites, State: m.state}
		}
		if evicted := m.units.Cleanup(); evicted > 0 {
			log.Debug().Int("evicted", evicted).Msg("mirror.Mirror round cleanup")
		}
		if err := d.Decide(logic.World{Grid: m.grid, Units: m.units, MatterYield: m.yields}); err != nil {
			return fmt.Errorf("mirror: decide: %w", err)
		}
		out = make([]technite.Instruction, 0, m.units.Count())
		for ins := range m.units.Instructions() {
			out = append(out, ins)
		}
		m.rounds++
		return nil
	})
	return out, err
}

// guard rejects work on a failed session and records the first fatal
// error.
func (m *Mirror) guard(id channel.ID, fn func() error) error {
	if m.failed != nil {
		return fmt.Errorf("%w: %w", ErrSessionFailed, m.failed)
	}
	if err := fn(); err != nil {
		m.failed = err
		log.Error().
			Err(err).
			Str("channel", id.String()).
			Str("state", m.state.String()).
			Msg("mirror.Mirror session failed")
		return err
	}
	return nil
}

func (m *Mirror) transition(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("mirror.Mirror transition")
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
}

// Status is a point-in-time summary for logging.
type Status struct {
	State         State
	Nodes         int
	Units         int
	StaleUnits    int
	CoreContent   uint8
	HasWorld      bool
	Deltas        uint64
	Passes        uint64
	Rounds        uint64
	// PendingNodes counts nodes gathered by an unfinished topology transfer.
	PendingNodes  int
	// StatePassOpen is set between the first and last state chunk of a pass.
	StatePassOpen bool
	Err           error
}

func (m *Mirror) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	core, hasWorld := m.grid.CoreContent()
	st := Status{
		State:       m.state,
		Nodes:       m.grid.NodeCount(),
		Units:       m.units.Count(),
		StaleUnits:  m.units.Stale(),
		CoreContent: core,
		HasWorld:    hasWorld,
		Deltas:      m.deltas,
		Passes:      m.units.Passes(),
		Rounds:      m.rounds,
		Err:         m.failed,
	}
	if m.nodes.Active() {
		st.PendingNodes = m.topology.Len()
	}
	st.StatePassOpen = m.states.Active()
	return st
}

// Yields is the matter yield table in effect.
func (m *Mirror) Yields() []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint8(nil), m.yields...)
}

// Inspect runs fn with the mirror locked. fn must not retain g or units.
func (m *Mirror) Inspect(fn func(g *grid.Grid, units *technite.Collection)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.grid, m.units)
}
