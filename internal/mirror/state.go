package mirror

import "fmt"

// State is the session bootstrap phase.
type State uint8

const (
	Uninitialized State = iota
	AssemblingTopology
	TopologyComplete
	ConfiguringGrid
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case AssemblingTopology:
		return "assembling_topology"
	case TopologyComplete:
		return "topology_complete"
	case ConfiguringGrid:
		return "configuring_grid"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}
