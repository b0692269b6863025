package chunk

import (
	"errors"
	"reflect"
	"testing"

	"github.com/MatthiasLenz/TechniteLogic/internal/testutil/testlog"
)

type recordingSink struct {
	begins   int
	finishes int
	items    []int
}

func (s *recordingSink) Begin() {
	s.begins++
	s.items = nil
}

func (s *recordingSink) Put(items []int) error {
	s.items = append(s.items, items...)
	return nil
}

func (s *recordingSink) Finish() error {
	s.finishes++
	return nil
}

func TestOffsetTransferOutOfOrderLeavesAccumulator(t *testing.T) {
	testlog.Start(t)
	acc := NewAccumulator[int](-1, nil)
	tr := NewOffsetTransfer[int]("nodes", acc)
	if _, err := tr.Accept(Chunk[int]{Offset: 0, Items: []int{1, 2}}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	for _, off := range []uint32{0, 1, 3} {
		_, err := tr.Accept(Chunk[int]{Offset: off, Items: []int{9}})
		var ooo OutOfOrderChunkError
		if !errors.As(err, &ooo) || ooo.Expected != 2 || ooo.Got != off {
			t.Fatalf("offset=%d expected OutOfOrderChunkError, got %v", off, err)
		}
		if !errors.Is(err, ErrProtocolDesync) {
			t.Fatalf("out of order must classify as desync")
		}
		if acc.Len() != 2 || tr.Cursor() != 2 {
			t.Fatalf("accumulator changed: len=%d cursor=%d", acc.Len(), tr.Cursor())
		}
	}

	done, err := tr.Accept(Chunk[int]{Offset: 2, Items: []int{3}, Last: true})
	if err != nil || !done {
		t.Fatalf("expected completion, done=%v err=%v", done, err)
	}
	if tr.Active() || tr.Cursor() != 0 {
		t.Fatalf("transfer state not cleared")
	}
}

func TestOffsetTransferFirstChunkMustStartAtZero(t *testing.T) {
	testlog.Start(t)
	sink := &recordingSink{}
	tr := NewOffsetTransfer[int]("nodes", sink)
	_, err := tr.Accept(Chunk[int]{Offset: 5, Items: []int{1}})
	var ooo OutOfOrderChunkError
	if !errors.As(err, &ooo) || ooo.Expected != 0 {
		t.Fatalf("expected OutOfOrderChunkError, got %v", err)
	}
	if sink.begins != 0 {
		t.Fatalf("sink must not be reset by a rejected chunk")
	}
}

func TestOffsetTransferHandsOffOnTerminalChunk(t *testing.T) {
	testlog.Start(t)
	var got []int
	acc := NewAccumulator(-1, func(items []int) error {
		got = items
		return nil
	})
	tr := NewOffsetTransfer[int]("nodes", acc)
	chunks := []Chunk[int]{
		{Offset: 0, Items: []int{1, 2, 3}},
		{Offset: 3, Items: []int{4, 5, 6}},
		{Offset: 6, Items: []int{7}, Last: true},
	}
	for i, c := range chunks {
		done, err := tr.Accept(c)
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if done != (i == len(chunks)-1) {
			t.Fatalf("chunk %d unexpected done=%v", i, done)
		}
	}
	if !reflect.DeepEqual(got, []int{1, 2, 3, 4, 5, 6, 7}) {
		t.Fatalf("unexpected result: %v", got)
	}

	// A later transfer starts over at offset 0.
	if _, err := tr.Accept(Chunk[int]{Offset: 0, Items: []int{8}, Last: true}); err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	if !reflect.DeepEqual(got, []int{8}) {
		t.Fatalf("second transfer result: %v", got)
	}
}

func TestCountedTransferSizeChecks(t *testing.T) {
	testlog.Start(t)
	sink := &recordingSink{}
	tr := newCountedTransfer[int]("instructions", sink, 3)
	_, err := tr.Accept(Chunk[int]{Offset: 0, Items: []int{1, 2, 3, 4}})
	var mismatch SizeMismatchError
	if !errors.As(err, &mismatch) || !errors.Is(err, ErrProtocolDesync) {
		t.Fatalf("expected SizeMismatchError, got %v", err)
	}
	if sink.begins != 0 {
		t.Fatalf("overflowing chunk must not touch sink")
	}

	_, err = tr.Accept(Chunk[int]{Offset: 0, Items: []int{1}, Last: true})
	if !errors.As(err, &mismatch) || mismatch.Want != 3 || mismatch.Got != 1 {
		t.Fatalf("expected early terminal mismatch, got %v", err)
	}
	if sink.finishes != 0 {
		t.Fatalf("mismatched transfer must not finish")
	}
}

func TestAccumulatorExpectedSize(t *testing.T) {
	testlog.Start(t)
	acc := NewAccumulator[int](2, nil)
	acc.Begin()
	_ = acc.Put([]int{1})
	err := acc.Finish()
	if !errors.Is(err, ErrProtocolDesync) {
		t.Fatalf("expected desync, got %v", err)
	}
}

func TestBoundaryTransferFirstDiscardsUnfinishedPass(t *testing.T) {
	testlog.Start(t)
	sink := &recordingSink{}
	tr := NewBoundaryTransfer[int]("units", sink)
	if _, err := tr.Accept(Chunk[int]{First: true, Items: []int{1, 2}}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := tr.Accept(Chunk[int]{First: true, Items: []int{3}}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if sink.begins != 2 || !reflect.DeepEqual(sink.items, []int{3}) {
		t.Fatalf("expected discard, begins=%d items=%v", sink.begins, sink.items)
	}
	done, err := tr.Accept(Chunk[int]{Last: true, Items: []int{4}})
	if err != nil || !done {
		t.Fatalf("expected completion, done=%v err=%v", done, err)
	}
	if sink.finishes != 1 {
		t.Fatalf("expected one finish, got %d", sink.finishes)
	}
}

func TestBoundaryTransferRequiresFirst(t *testing.T) {
	testlog.Start(t)
	sink := &recordingSink{}
	tr := NewBoundaryTransfer[int]("units", sink)
	if _, err := tr.Accept(Chunk[int]{Items: []int{1}}); !errors.Is(err, ErrNoActiveTransfer) {
		t.Fatalf("expected ErrNoActiveTransfer, got %v", err)
	}
	if !errors.Is(ErrNoActiveTransfer, ErrProtocolDesync) {
		t.Fatalf("ErrNoActiveTransfer must classify as desync")
	}
	done, err := tr.Accept(Chunk[int]{First: true, Last: true})
	if err != nil || !done {
		t.Fatalf("single empty pass must complete, done=%v err=%v", done, err)
	}
	if sink.begins != 1 || sink.finishes != 1 {
		t.Fatalf("empty pass must still reset and finish: %+v", sink)
	}
}
