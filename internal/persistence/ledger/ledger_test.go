package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MatthiasLenz/TechniteLogic/internal/grid"
	"github.com/MatthiasLenz/TechniteLogic/internal/mirror"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/message"
	"github.com/MatthiasLenz/TechniteLogic/internal/round"
	"github.com/MatthiasLenz/TechniteLogic/internal/testutil/testlog"
)

func openTemp(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "ledger.sqlite")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestRecordRoundsAndTransitions(t *testing.T) {
	testlog.Start(t)
	l, _ := openTemp(t)
	ctx := context.Background()

	start := time.Unix(100, 0)
	l.RecordRound(round.Record{Round: 1, Units: 10001, Chunks: 2, Started: start, Finished: start.Add(time.Millisecond)})
	l.RecordRound(round.Record{Round: 2, Units: 0, Chunks: 1, Started: start, Finished: start})
	l.RecordTransition(mirror.Uninitialized, mirror.AssemblingTopology)
	l.RecordTransition(mirror.AssemblingTopology, mirror.TopologyComplete)

	if err := l.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	rounds, err := l.Rounds(ctx, 0)
	if err != nil {
		t.Fatalf("rounds: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(rounds))
	}
	if rounds[0].Round != 1 || rounds[0].Units != 10001 || rounds[0].Chunks != 2 {
		t.Fatalf("unexpected first round %+v", rounds[0])
	}
	if !rounds[0].Finished.Equal(start.Add(time.Millisecond)) {
		t.Fatalf("finished time mismatch: %v", rounds[0].Finished)
	}

	trs, err := l.Transitions(ctx, 0)
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(trs) != 2 || trs[0].To != "assembling_topology" || trs[1].From != "assembling_topology" || trs[1].To != "topology_complete" {
		t.Fatalf("unexpected transitions %+v", trs)
	}
	if trs[0].Seq >= trs[1].Seq {
		t.Fatalf("transition sequence not increasing: %+v", trs)
	}

	limited, err := l.Rounds(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limited rounds: %v len=%d", err, len(limited))
	}
}

func TestCloseDrainsQueueAndReopenReads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := uint64(1); i <= 5; i++ {
		l.RecordRound(round.Record{Round: i, Units: int(i)})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	// writes after close are ignored
	l.RecordRound(round.Record{Round: 99})
	if _, err := l.Rounds(context.Background(), 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := l.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from flush, got %v", err)
	}

	db, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("open read-only: %v", err)
	}
	defer db.Close()
	rows, err := QueryRounds(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 5 || rows[4].Round != 5 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestRecordConcurrentWithClose(t *testing.T) {
	testlog.Start(t)
	l, err := Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			for i := 0; i < 500; i++ {
				l.RecordRound(round.Record{Round: uint64(w*1000 + i)})
				l.RecordTransition(mirror.Ready, mirror.Uninitialized)
				_ = l.Flush(context.Background())
			}
		}(w)
	}
	close(start)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	if err := l.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestMirrorTransitionHook(t *testing.T) {
	testlog.Start(t)
	l, _ := openTemp(t)
	m := mirror.New(nil, mirror.WithTransitionHook(l.RecordTransition))
	if err := m.HandleNodeChunk(message.NodeChunk{IsLast: true, Nodes: []grid.Node{{}}}); err != nil {
		t.Fatalf("node chunk: %v", err)
	}
	m.Reset()
	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	trs, err := l.Transitions(context.Background(), 0)
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	want := []string{"assembling_topology", "topology_complete", "uninitialized"}
	if len(trs) != len(want) {
		t.Fatalf("expected %d transitions, got %+v", len(want), trs)
	}
	for i, w := range want {
		if trs[i].To != w {
			t.Fatalf("transition %d: want %s got %s", i, w, trs[i].To)
		}
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	testlog.Start(t)
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := OpenReadOnly(filepath.Join(t.TempDir(), "missing.sqlite")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
