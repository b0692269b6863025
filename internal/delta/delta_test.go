package delta

import (
	"bytes"
	"errors"
	"runtime"
	"testing"

	"github.com/MatthiasLenz/TechniteLogic/internal/chunk"
	"github.com/MatthiasLenz/TechniteLogic/internal/testutil/testlog"
)

func filled(n int, v byte) []byte {
	return bytes.Repeat([]byte{v}, n)
}

func TestDecodeExpandsRuns(t *testing.T) {
	testlog.Start(t)
	got, err := Decode([]Block{{2, 5}, {1, 9}, {3, 0}}, 6)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, []byte{5, 5, 9, 0, 0, 0}) {
		t.Fatalf("unexpected decode: %v", got)
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	testlog.Start(t)
	for _, expected := range []uint32{3, 5} {
		_, err := Decode([]Block{{2, 1}, {2, 2}}, expected)
		var mismatch BlockLengthMismatchError
		if !errors.As(err, &mismatch) || mismatch.Got != 4 || mismatch.Expected != uint64(expected) {
			t.Fatalf("expected=%d want BlockLengthMismatchError, got %v", expected, err)
		}
		if !errors.Is(err, chunk.ErrProtocolDesync) {
			t.Fatalf("mismatch must classify as desync")
		}
	}
}

func TestDecodeRejectsZeroRepetition(t *testing.T) {
	testlog.Start(t)
	if _, err := Decode([]Block{{0, 1}, {2, 2}}, 2); !errors.Is(err, ErrZeroRepetition) {
		t.Fatalf("expected ErrZeroRepetition, got %v", err)
	}
}

func TestApplyOutOfBounds(t *testing.T) {
	testlog.Start(t)
	target := filled(4, 1)
	err := Apply(target, 3, []byte{7, 7})
	var oob OutOfBoundsError
	if !errors.As(err, &oob) || oob.Len != 4 {
		t.Fatalf("expected OutOfBoundsError, got %v", err)
	}
	if !bytes.Equal(target, filled(4, 1)) {
		t.Fatalf("target mutated: %v", target)
	}
	if err := Apply(target, 2, []byte{7, 7}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !bytes.Equal(target, []byte{1, 1, 7, 7}) {
		t.Fatalf("unexpected target: %v", target)
	}
}

func TestApplyDeltaScenario(t *testing.T) {
	testlog.Start(t)
	targets := Targets{
		Content:   filled(110, 1),
		Structure: filled(110, 2),
		Faction:   filled(110, 3),
	}
	d := Delta{
		NodeOffset:      100,
		NodeCount:       4,
		ContentBlocks:   []Block{{Repetition: 2, Value: 5}, {Repetition: 2, Value: 7}},
		StructureBlocks: []Block{{Repetition: 4, Value: 8}},
		FactionBlocks:   []Block{{Repetition: 1, Value: 0}, {Repetition: 3, Value: 4}},
	}
	if err := ApplyDelta(targets, d); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if !bytes.Equal(targets.Content[100:102], []byte{5, 5}) || !bytes.Equal(targets.Content[102:104], []byte{7, 7}) {
		t.Fatalf("content window wrong: %v", targets.Content[98:106])
	}
	if !bytes.Equal(targets.Structure[100:104], filled(4, 8)) {
		t.Fatalf("structure window wrong: %v", targets.Structure[100:104])
	}
	if !bytes.Equal(targets.Faction[100:104], []byte{0, 4, 4, 4}) {
		t.Fatalf("faction window wrong: %v", targets.Faction[100:104])
	}
	for _, layer := range []struct {
		name string
		data []byte
		fill byte
	}{
		{"content", targets.Content, 1},
		{"structure", targets.Structure, 2},
		{"faction", targets.Faction, 3},
	} {
		if !bytes.Equal(layer.data[:100], filled(100, layer.fill)) || !bytes.Equal(layer.data[104:], filled(6, layer.fill)) {
			t.Fatalf("%s changed outside window", layer.name)
		}
	}
}

func TestApplyDeltaMismatchMutatesNothing(t *testing.T) {
	testlog.Start(t)
	targets := Targets{
		Content:   filled(16, 1),
		Structure: filled(16, 2),
		Faction:   filled(16, 3),
	}
	d := Delta{
		NodeOffset:      4,
		NodeCount:       4,
		ContentBlocks:   []Block{{4, 9}},
		StructureBlocks: []Block{{4, 9}},
		FactionBlocks:   []Block{{3, 9}},
	}
	err := ApplyDelta(targets, d)
	var mismatch BlockLengthMismatchError
	if !errors.As(err, &mismatch) || mismatch.Layer != "faction" {
		t.Fatalf("expected faction BlockLengthMismatchError, got %v", err)
	}
	if !bytes.Equal(targets.Content, filled(16, 1)) || !bytes.Equal(targets.Structure, filled(16, 2)) || !bytes.Equal(targets.Faction, filled(16, 3)) {
		t.Fatalf("targets mutated by rejected delta")
	}
}

func TestApplyDeltaOutOfBoundsMutatesNothing(t *testing.T) {
	testlog.Start(t)
	targets := Targets{
		Content:   filled(8, 1),
		Structure: filled(8, 2),
		Faction:   filled(6, 3),
	}
	d := Delta{
		NodeOffset:      4,
		NodeCount:       4,
		ContentBlocks:   []Block{{4, 9}},
		StructureBlocks: []Block{{4, 9}},
		FactionBlocks:   []Block{{4, 9}},
	}
	err := ApplyDelta(targets, d)
	var oob OutOfBoundsError
	if !errors.As(err, &oob) || oob.Layer != "faction" {
		t.Fatalf("expected faction OutOfBoundsError, got %v", err)
	}
	if !bytes.Equal(targets.Content, filled(8, 1)) || !bytes.Equal(targets.Structure, filled(8, 2)) {
		t.Fatalf("targets mutated by rejected delta")
	}
}

func TestApplyDeltaOversizedWindowRejectedWithoutAllocation(t *testing.T) {
	testlog.Start(t)
	targets := Targets{
		Content:   filled(8, 1),
		Structure: filled(8, 2),
		Faction:   filled(8, 3),
	}
	const count = 1 << 28
	d := Delta{
		NodeCount:       count,
		ContentBlocks:   []Block{{count, 9}},
		StructureBlocks: []Block{{count, 9}},
		FactionBlocks:   []Block{{count, 9}},
	}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	err := ApplyDelta(targets, d)
	runtime.ReadMemStats(&after)

	var oob OutOfBoundsError
	if !errors.As(err, &oob) || oob.Layer != "content" || oob.Count != count {
		t.Fatalf("expected content OutOfBoundsError, got %v", err)
	}
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 1<<20 {
		t.Fatalf("rejected delta allocated %d bytes", grew)
	}
	if !bytes.Equal(targets.Content, filled(8, 1)) {
		t.Fatalf("targets mutated by rejected delta")
	}
}

func TestApplyDeltaZeroRepetitionMutatesNothing(t *testing.T) {
	testlog.Start(t)
	targets := Targets{
		Content:   filled(4, 1),
		Structure: filled(4, 2),
		Faction:   filled(4, 3),
	}
	d := Delta{
		NodeCount:       2,
		ContentBlocks:   []Block{{2, 9}},
		StructureBlocks: []Block{{2, 9}},
		FactionBlocks:   []Block{{0, 9}, {2, 9}},
	}
	if err := ApplyDelta(targets, d); !errors.Is(err, ErrZeroRepetition) {
		t.Fatalf("expected ErrZeroRepetition, got %v", err)
	}
	if !bytes.Equal(targets.Content, filled(4, 1)) || !bytes.Equal(targets.Structure, filled(4, 2)) {
		t.Fatalf("targets mutated by rejected delta")
	}
}

func TestEncodeInvertsDecode(t *testing.T) {
	testlog.Start(t)
	values := []byte{1, 1, 1, 4, 4, 0, 1}
	blocks := Encode(values)
	if len(blocks) != 4 {
		t.Fatalf("unexpected block count: %v", blocks)
	}
	got, err := Decode(blocks, uint32(len(values)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, values) {
		t.Fatalf("round trip mismatch: %v", got)
	}
	if Encode(nil) != nil {
		t.Fatalf("expected nil for empty input")
	}
}
