// Package delta decodes run-length encoded per-node byte updates and applies
// them to the grid's parallel content arrays.
package delta

import (
	"errors"
	"fmt"

	"github.com/MatthiasLenz/TechniteLogic/internal/chunk"
)

var ErrZeroRepetition = errors.New("delta: block repetition must be at least 1")

// Block is one run: Value repeated Repetition times.
type Block struct {
	Repetition uint32
	Value      uint8
}

// Delta rewrites the node window [NodeOffset, NodeOffset+NodeCount) of the
// content, structure-count and faction arrays.
type Delta struct {
	NodeOffset      uint32
	NodeCount       uint32
	ContentBlocks   []Block
	StructureBlocks []Block
	FactionBlocks   []Block
}

// Targets are the three parallel arrays a Delta rewrites.
type Targets struct {
	Content   []byte
	Structure []byte
	Faction   []byte
}

// BlockLengthMismatchError reports block runs that do not add up to the
// node count of their delta.
type BlockLengthMismatchError struct {
	Layer    string
	Expected uint64
	Got      uint64
}

func (e BlockLengthMismatchError) Error() string {
	if e.Layer == "" {
		return fmt.Sprintf("delta: block lengths sum to %d, expected %d", e.Got, e.Expected)
	}
	return fmt.Sprintf("delta: %s block lengths sum to %d, expected %d", e.Layer, e.Got, e.Expected)
}

func (e BlockLengthMismatchError) Is(target error) bool {
	return target == chunk.ErrProtocolDesync
}

// OutOfBoundsError reports a window that runs past the end of its target.
type OutOfBoundsError struct {
	Layer  string
	Offset uint64
	Count  uint64
	Len    int
}

func (e OutOfBoundsError) Error() string {
	return fmt.Sprintf("delta: %s window [%d,%d) exceeds length %d", e.Layer, e.Offset, e.Offset+e.Count, e.Len)
}

func (e OutOfBoundsError) Is(target error) bool {
	return target == chunk.ErrProtocolDesync
}

// Sum adds the repetitions of blocks.
func Sum(blocks []Block) uint64 {
	var total uint64
	for _, b := range blocks {
		total += uint64(b.Repetition)
	}
	return total
}

// Decode expands blocks into exactly expected bytes. Lengths are checked
// before anything is allocated.
func Decode(blocks []Block, expected uint32) ([]byte, error) {
	if err := validate(blocks, expected); err != nil {
		return nil, err
	}
	out := make([]byte, 0, expected)
	for _, b := range blocks {
		for i := uint32(0); i < b.Repetition; i++ {
			out = append(out, b.Value)
		}
	}
	return out, nil
}

func validate(blocks []Block, expected uint32) error {
	for _, b := range blocks {
		if b.Repetition == 0 {
			return ErrZeroRepetition
		}
	}
	if total := Sum(blocks); total != uint64(expected) {
		return BlockLengthMismatchError{Expected: uint64(expected), Got: total}
	}
	return nil
}

// Apply overwrites target[offset:offset+len(decoded)].
func Apply(target []byte, offset uint32, decoded []byte) error {
	if err := checkBounds("target", target, offset, uint64(len(decoded))); err != nil {
		return err
	}
	copy(target[offset:], decoded)
	return nil
}

// ApplyDelta checks every window and every block sequence before the first
// byte is written, so a failing delta leaves all targets untouched. Runs are
// expanded straight into the targets.
func ApplyDelta(t Targets, d Delta) error {
	layers := []struct {
		name   string
		blocks []Block
		target []byte
	}{
		{"content", d.ContentBlocks, t.Content},
		{"structure", d.StructureBlocks, t.Structure},
		{"faction", d.FactionBlocks, t.Faction},
	}

	for _, layer := range layers {
		if err := checkBounds(layer.name, layer.target, d.NodeOffset, uint64(d.NodeCount)); err != nil {
			return err
		}
	}
	for _, layer := range layers {
		if err := validate(layer.blocks, d.NodeCount); err != nil {
			var mismatch BlockLengthMismatchError
			if errors.As(err, &mismatch) {
				mismatch.Layer = layer.name
				return mismatch
			}
			return fmt.Errorf("delta: %s: %w", layer.name, err)
		}
	}
	for _, layer := range layers {
		pos := int(d.NodeOffset)
		for _, b := range layer.blocks {
			run := layer.target[pos : pos+int(b.Repetition)]
			for i := range run {
				run[i] = b.Value
			}
			pos += len(run)
		}
	}
	return nil
}

func checkBounds(layer string, target []byte, offset uint32, n uint64) error {
	if uint64(offset)+n > uint64(len(target)) {
		return OutOfBoundsError{Layer: layer, Offset: uint64(offset), Count: n, Len: len(target)}
	}
	return nil
}

// Encode run-length encodes values; it is the inverse of Decode.
func Encode(values []byte) []Block {
	if len(values) == 0 {
		return nil
	}
	out := make([]Block, 0, 4)
	cur := Block{Repetition: 1, Value: values[0]}
	for _, v := range values[1:] {
		if v == cur.Value {
			cur.Repetition++
			continue
		}
		out = append(out, cur)
		cur = Block{Repetition: 1, Value: v}
	}
	return append(out, cur)
}
