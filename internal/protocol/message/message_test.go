package message

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/MatthiasLenz/TechniteLogic/internal/delta"
	"github.com/MatthiasLenz/TechniteLogic/internal/grid"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/wire"
	"github.com/MatthiasLenz/TechniteLogic/internal/technite"
	"github.com/MatthiasLenz/TechniteLogic/internal/testutil/testlog"
)

func TestStateChunkLayout(t *testing.T) {
	testlog.Start(t)
	c := StateChunk{
		Flags: FlagIsFirst | FlagIsLast,
		States: []technite.State{
			{Location: 0x01020304, Resources: technite.Resources{Energy: 5, Matter: 6}, TaskResult: 7, State: 8},
		},
	}
	b := EncodeStateChunk(c)
	want := []byte{0x03, 1, 0, 0, 0, 0x04, 0x03, 0x02, 0x01, 5, 6, 7, 8}
	if !bytes.Equal(b, want) {
		t.Fatalf("unexpected encoding % x", b)
	}
	got, err := DecodeStateChunk(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, c) || !got.IsFirst() || !got.IsLast() {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestStateChunkRejectsMalformed(t *testing.T) {
	testlog.Start(t)
	good := EncodeStateChunk(StateChunk{States: make([]technite.State, 2)})
	cases := []struct {
		name string
		raw  []byte
		want error
	}{
		{"empty", nil, wire.ErrShortBuffer},
		{"truncated", good[:len(good)-1], wire.ErrCountTooLarge},
		{"trailing", append(append([]byte(nil), good...), 0), wire.ErrTrailingBytes},
		{"flags", []byte{0x80, 0, 0, 0, 0}, ErrUnknownFlags},
		{"huge count", []byte{0, 0xff, 0xff, 0xff, 0xff}, wire.ErrCountTooLarge},
	}
	for _, tc := range cases {
		if _, err := DecodeStateChunk(tc.raw); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestInstructionChunkRoundTrip(t *testing.T) {
	testlog.Start(t)
	c := InstructionChunk{
		Offset:       10000,
		Instructions: []technite.Instruction{{NextTask: 1, Target: 2, Parameter: 3}, {NextTask: 4}},
	}
	b := EncodeInstructionChunk(c)
	if len(b) != 8+2*3 {
		t.Fatalf("unexpected size %d", len(b))
	}
	got, err := DecodeInstructionChunk(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestInstructionChunkCap(t *testing.T) {
	testlog.Start(t)
	b := EncodeInstructionChunk(InstructionChunk{Instructions: make([]technite.Instruction, MaxInstructionsPerChunk+1)})
	if _, err := DecodeInstructionChunk(b); !errors.Is(err, ErrTooManyRecords) {
		t.Fatalf("expected ErrTooManyRecords, got %v", err)
	}
}

func TestNodeChunkRoundTrip(t *testing.T) {
	testlog.Start(t)
	c := NodeChunk{
		Offset: 64,
		IsLast: true,
		Nodes: []grid.Node{
			{Neighbors: []uint32{1, 2, 3}, StackBase: grid.Vec3{X: 1, Y: 2, Z: 3}, StackDirection: grid.Vec3{Z: 1}},
			{Neighbors: []uint32{}, StackBase: grid.Vec3{X: -1.5}},
		},
	}
	got, err := DecodeNodeChunk(EncodeNodeChunk(c))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, c)
	}
}

func TestNodeChunkRejectsBadBool(t *testing.T) {
	testlog.Start(t)
	b := EncodeNodeChunk(NodeChunk{})
	b[4] = 2
	if _, err := DecodeNodeChunk(b); !errors.Is(err, wire.ErrInvalidBool) {
		t.Fatalf("expected ErrInvalidBool, got %v", err)
	}
}

func TestGridConfigRoundTrip(t *testing.T) {
	testlog.Start(t)
	c := GridConfig{HeightPerLayer: 0.25, NumLayersPerStack: -3, MatterYield: []uint8{0, 1, 4, 9}}
	got, err := DecodeGridConfig(EncodeGridConfig(c))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	empty, err := DecodeGridConfig(EncodeGridConfig(GridConfig{}))
	if err != nil || empty.MatterYield == nil || len(empty.MatterYield) != 0 {
		t.Fatalf("expected empty non-nil yield table, got %+v err=%v", empty, err)
	}
}

func TestGridDeltaRoundTrip(t *testing.T) {
	testlog.Start(t)
	d := delta.Delta{
		NodeOffset:      100,
		NodeCount:       4,
		ContentBlocks:   []delta.Block{{Repetition: 2, Value: 5}, {Repetition: 2, Value: 7}},
		StructureBlocks: []delta.Block{{Repetition: 4, Value: 0}},
		FactionBlocks:   []delta.Block{},
	}
	got, err := DecodeGridDelta(EncodeGridDelta(d))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, d) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestGridDeltaRejectsZeroRepetition(t *testing.T) {
	testlog.Start(t)
	b := EncodeGridDelta(delta.Delta{
		NodeCount:     1,
		ContentBlocks: []delta.Block{{Repetition: 0, Value: 1}},
	})
	if _, err := DecodeGridDelta(b); !errors.Is(err, delta.ErrZeroRepetition) {
		t.Fatalf("expected ErrZeroRepetition, got %v", err)
	}
}

func TestWorldInfo(t *testing.T) {
	testlog.Start(t)
	got, err := DecodeWorldInfo(EncodeWorldInfo(WorldInfo{CoreContent: 12}))
	if err != nil || got.CoreContent != 12 {
		t.Fatalf("unexpected world info %+v err=%v", got, err)
	}
	if _, err := DecodeWorldInfo([]byte{1, 2}); !errors.Is(err, wire.ErrTrailingBytes) {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
	if _, err := DecodeWorldInfo(nil); !errors.Is(err, wire.ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}
