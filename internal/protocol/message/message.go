// Package message holds the record layouts carried by each channel and
// their binary codecs.
package message

import (
	"errors"
	"fmt"

	"github.com/MatthiasLenz/TechniteLogic/internal/delta"
	"github.com/MatthiasLenz/TechniteLogic/internal/grid"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/wire"
	"github.com/MatthiasLenz/TechniteLogic/internal/technite"
)

// State chunk flags.
const (
	FlagIsFirst uint8 = 0x1
	FlagIsLast  uint8 = 0x2

	knownFlags = FlagIsFirst | FlagIsLast
)

// MaxInstructionsPerChunk caps TechniteInstructionChunk payloads.
const MaxInstructionsPerChunk = 10000

const (
	stateSize       = 8
	instructionSize = 3
	minNodeSize     = 4 + 6*4
	blockSize       = 5
)

var (
	ErrUnknownFlags   = errors.New("message: unknown chunk flags")
	ErrTooManyRecords = errors.New("message: too many records for one chunk")
)

// StateChunk is a boundary-flagged run of unit states.
type StateChunk struct {
	Flags  uint8
	States []technite.State
}

func (c StateChunk) IsFirst() bool { return c.Flags&FlagIsFirst != 0 }
func (c StateChunk) IsLast() bool  { return c.Flags&FlagIsLast != 0 }

// InstructionChunk is an offset-flagged run of unit instructions.
type InstructionChunk struct {
	Offset       uint32
	Instructions []technite.Instruction
}

// NodeChunk is an offset-flagged run of grid nodes; IsLast closes the
// topology.
type NodeChunk struct {
	Offset uint32
	IsLast bool
	Nodes  []grid.Node
}

type GridConfig struct {
	HeightPerLayer    float32
	NumLayersPerStack int32
	MatterYield       []uint8
}

type WorldInfo struct {
	CoreContent uint8
}

func EncodeStateChunk(c StateChunk) []byte {
	w := wire.NewWriter(5 + stateSize*len(c.States))
	w.U8(c.Flags)
	w.Count(len(c.States))
	for _, s := range c.States {
		w.U32(s.Location)
		w.U8(s.Resources.Energy)
		w.U8(s.Resources.Matter)
		w.U8(s.TaskResult)
		w.U8(s.State)
	}
	return w.Bytes()
}

func DecodeStateChunk(b []byte) (StateChunk, error) {
	r := wire.NewReader(b)
	var c StateChunk
	c.Flags = r.U8()
	if r.Err() == nil && c.Flags&^knownFlags != 0 {
		return StateChunk{}, fmt.Errorf("%w: 0x%02x", ErrUnknownFlags, c.Flags)
	}
	n := r.Count(stateSize)
	c.States = make([]technite.State, n)
	for i := range c.States {
		c.States[i] = technite.State{
			Location:   r.U32(),
			Resources:  technite.Resources{Energy: r.U8(), Matter: r.U8()},
			TaskResult: r.U8(),
			State:      r.U8(),
		}
	}
	if err := r.Close(); err != nil {
		return StateChunk{}, err
	}
	return c, nil
}

func EncodeInstructionChunk(c InstructionChunk) []byte {
	w := wire.NewWriter(8 + instructionSize*len(c.Instructions))
	w.U32(c.Offset)
	w.Count(len(c.Instructions))
	for _, ins := range c.Instructions {
		w.U8(ins.NextTask)
		w.U8(ins.Target)
		w.U8(ins.Parameter)
	}
	return w.Bytes()
}

func DecodeInstructionChunk(b []byte) (InstructionChunk, error) {
	r := wire.NewReader(b)
	var c InstructionChunk
	c.Offset = r.U32()
	n := r.Count(instructionSize)
	if n > MaxInstructionsPerChunk {
		return InstructionChunk{}, fmt.Errorf("%w: %d > %d", ErrTooManyRecords, n, MaxInstructionsPerChunk)
	}
	c.Instructions = make([]technite.Instruction, n)
	for i := range c.Instructions {
		c.Instructions[i] = technite.Instruction{NextTask: r.U8(), Target: r.U8(), Parameter: r.U8()}
	}
	if err := r.Close(); err != nil {
		return InstructionChunk{}, err
	}
	return c, nil
}

func EncodeNodeChunk(c NodeChunk) []byte {
	w := wire.NewWriter(9 + minNodeSize*len(c.Nodes))
	w.U32(c.Offset)
	w.Bool(c.IsLast)
	w.Count(len(c.Nodes))
	for _, n := range c.Nodes {
		w.Count(len(n.Neighbors))
		for _, nb := range n.Neighbors {
			w.U32(nb)
		}
		putVec3(w, n.StackBase)
		putVec3(w, n.StackDirection)
	}
	return w.Bytes()
}

func DecodeNodeChunk(b []byte) (NodeChunk, error) {
	r := wire.NewReader(b)
	var c NodeChunk
	c.Offset = r.U32()
	c.IsLast = r.Bool()
	n := r.Count(minNodeSize)
	c.Nodes = make([]grid.Node, n)
	for i := range c.Nodes {
		k := r.Count(4)
		neighbors := make([]uint32, k)
		for j := range neighbors {
			neighbors[j] = r.U32()
		}
		c.Nodes[i] = grid.Node{
			Neighbors:      neighbors,
			StackBase:      readVec3(r),
			StackDirection: readVec3(r),
		}
		if r.Err() != nil {
			break
		}
	}
	if err := r.Close(); err != nil {
		return NodeChunk{}, err
	}
	return c, nil
}

func EncodeGridConfig(c GridConfig) []byte {
	w := wire.NewWriter(12 + len(c.MatterYield))
	w.F32(c.HeightPerLayer)
	w.I32(c.NumLayersPerStack)
	w.Count(len(c.MatterYield))
	w.Raw(c.MatterYield)
	return w.Bytes()
}

func DecodeGridConfig(b []byte) (GridConfig, error) {
	r := wire.NewReader(b)
	var c GridConfig
	c.HeightPerLayer = r.F32()
	c.NumLayersPerStack = r.I32()
	c.MatterYield = r.Raw(r.Count(1))
	if err := r.Close(); err != nil {
		return GridConfig{}, err
	}
	if c.MatterYield == nil {
		c.MatterYield = []uint8{}
	}
	return c, nil
}

func EncodeGridDelta(d delta.Delta) []byte {
	w := wire.NewWriter(20 + blockSize*(len(d.ContentBlocks)+len(d.StructureBlocks)+len(d.FactionBlocks)))
	w.U32(d.NodeOffset)
	w.U32(d.NodeCount)
	for _, blocks := range [][]delta.Block{d.ContentBlocks, d.StructureBlocks, d.FactionBlocks} {
		w.Count(len(blocks))
		for _, bl := range blocks {
			w.U32(bl.Repetition)
			w.U8(bl.Value)
		}
	}
	return w.Bytes()
}

func DecodeGridDelta(b []byte) (delta.Delta, error) {
	r := wire.NewReader(b)
	var d delta.Delta
	d.NodeOffset = r.U32()
	d.NodeCount = r.U32()
	layers := []*[]delta.Block{&d.ContentBlocks, &d.StructureBlocks, &d.FactionBlocks}
	for _, dst := range layers {
		n := r.Count(blockSize)
		blocks := make([]delta.Block, n)
		for i := range blocks {
			blocks[i] = delta.Block{Repetition: r.U32(), Value: r.U8()}
			if r.Err() == nil && blocks[i].Repetition == 0 {
				return delta.Delta{}, fmt.Errorf("%w: block %d", delta.ErrZeroRepetition, i)
			}
		}
		*dst = blocks
	}
	if err := r.Close(); err != nil {
		return delta.Delta{}, err
	}
	return d, nil
}

func EncodeWorldInfo(w WorldInfo) []byte {
	return []byte{w.CoreContent}
}

func DecodeWorldInfo(b []byte) (WorldInfo, error) {
	r := wire.NewReader(b)
	info := WorldInfo{CoreContent: r.U8()}
	if err := r.Close(); err != nil {
		return WorldInfo{}, err
	}
	return info, nil
}

func putVec3(w *wire.Writer, v grid.Vec3) {
	w.F32(v.X)
	w.F32(v.Y)
	w.F32(v.Z)
}

func readVec3(r *wire.Reader) grid.Vec3 {
	return grid.Vec3{X: r.F32(), Y: r.F32(), Z: r.F32()}
}
