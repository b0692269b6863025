// Package grid mirrors the server's node graph, its configuration and the
// per-node content arrays that grid deltas rewrite.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/MatthiasLenz/TechniteLogic/internal/delta"
)

var ErrNoTopology = errors.New("grid: topology not assembled")

// Vec3 is a point or direction in world space.
type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Scale(f float32) Vec3 {
	return Vec3{v.X * f, v.Y * f, v.Z * f}
}

func (v Vec3) Length() float64 {
	x, y, z := float64(v.X), float64(v.Y), float64(v.Z)
	return math.Sqrt(x*x + y*y + z*z)
}

// Node is one vertical stack of cells and its horizontal neighbours.
type Node struct {
	Neighbors      []uint32
	StackBase      Vec3
	StackDirection Vec3
}

// Config is the per-session grid configuration.
type Config struct {
	HeightPerLayer    float32
	NumLayersPerStack int32
	MatterYield       []uint8
}

// Cell is the mirrored content of one node.
type Cell struct {
	Content   uint8
	Structure uint8
	Faction   uint8
}

// InvalidNeighborError reports a topology edge pointing past the node list.
type InvalidNeighborError struct {
	Node     int
	Neighbor uint32
	Nodes    int
}

func (e InvalidNeighborError) Error() string {
	return fmt.Sprintf("grid: node %d references neighbor %d of %d nodes", e.Node, e.Neighbor, e.Nodes)
}

// Grid is not safe for concurrent use; the mirror serializes access.
type Grid struct {
	nodes     []Node
	content   []byte
	structure []byte
	faction   []byte

	config     Config
	configured bool

	coreContent uint8
	hasWorld    bool
}

func New() *Grid {
	return &Grid{}
}

// SetTopology installs a complete node list and sizes the content arrays to
// match it. Content, configuration and world info from an earlier topology
// are dropped.
func (g *Grid) SetTopology(nodes []Node) error {
	for i, n := range nodes {
		for _, nb := range n.Neighbors {
			if int(nb) >= len(nodes) {
				return InvalidNeighborError{Node: i, Neighbor: nb, Nodes: len(nodes)}
			}
		}
	}
	g.nodes = nodes
	g.content = make([]byte, len(nodes))
	g.structure = make([]byte, len(nodes))
	g.faction = make([]byte, len(nodes))
	g.config = Config{}
	g.configured = false
	g.coreContent = 0
	g.hasWorld = false
	return nil
}

// HasTopology reports whether the content arrays exist.
func (g *Grid) HasTopology() bool {
	return g.content != nil
}

func (g *Grid) NodeCount() int {
	return len(g.nodes)
}

func (g *Grid) Node(i int) (Node, bool) {
	if i < 0 || i >= len(g.nodes) {
		return Node{}, false
	}
	return g.nodes[i], true
}

// LayerPosition is the world position of a layer within a node's stack.
func (g *Grid) LayerPosition(node int, layer int) (Vec3, bool) {
	n, ok := g.Node(node)
	if !ok || !g.configured || layer < 0 || int32(layer) >= g.config.NumLayersPerStack {
		return Vec3{}, false
	}
	return n.StackBase.Add(n.StackDirection.Scale(float32(layer) * g.config.HeightPerLayer)), true
}

// Configure installs cfg. Validation against local constants belongs to the
// caller.
func (g *Grid) Configure(cfg Config) {
	cfg.MatterYield = append([]uint8(nil), cfg.MatterYield...)
	g.config = cfg
	g.configured = true
}

func (g *Grid) Config() (Config, bool) {
	return g.config, g.configured
}

func (g *Grid) SetCoreContent(c uint8) {
	g.coreContent = c
	g.hasWorld = true
}

func (g *Grid) CoreContent() (uint8, bool) {
	return g.coreContent, g.hasWorld
}

// ApplyDelta rewrites a node window of all three content arrays. A failing
// delta leaves the arrays untouched.
func (g *Grid) ApplyDelta(d delta.Delta) error {
	if !g.HasTopology() {
		return ErrNoTopology
	}
	return delta.ApplyDelta(delta.Targets{
		Content:   g.content,
		Structure: g.structure,
		Faction:   g.faction,
	}, d)
}

func (g *Grid) Cell(i int) (Cell, bool) {
	if i < 0 || i >= len(g.content) {
		return Cell{}, false
	}
	return Cell{Content: g.content[i], Structure: g.structure[i], Faction: g.faction[i]}, true
}

// Clear drops everything.
func (g *Grid) Clear() {
	*g = Grid{}
}

// Snapshot is a detached copy of the grid for persistence.
type Snapshot struct {
	Nodes       []Node
	Content     []byte
	Structure   []byte
	Faction     []byte
	Config      Config
	Configured  bool
	CoreContent uint8
	HasWorld    bool
}

func (g *Grid) Snapshot() Snapshot {
	return Snapshot{
		Nodes:       cloneNodes(g.nodes),
		Content:     cloneBytes(g.content),
		Structure:   cloneBytes(g.structure),
		Faction:     cloneBytes(g.faction),
		Config:      Config{HeightPerLayer: g.config.HeightPerLayer, NumLayersPerStack: g.config.NumLayersPerStack, MatterYield: cloneBytes(g.config.MatterYield)},
		Configured:  g.configured,
		CoreContent: g.coreContent,
		HasWorld:    g.hasWorld,
	}
}

// Restore replaces the grid with s. The three arrays must match the node
// count.
func (g *Grid) Restore(s Snapshot) error {
	n := len(s.Nodes)
	if s.Content != nil && (len(s.Content) != n || len(s.Structure) != n || len(s.Faction) != n) {
		return fmt.Errorf("grid: snapshot arrays do not match %d nodes", n)
	}
	*g = Grid{
		nodes:       s.Nodes,
		content:     s.Content,
		structure:   s.Structure,
		faction:     s.Faction,
		config:      s.Config,
		configured:  s.Configured,
		coreContent: s.CoreContent,
		hasWorld:    s.HasWorld,
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		out[i].Neighbors = append([]uint32(nil), n.Neighbors...)
	}
	return out
}
