package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/MatthiasLenz/TechniteLogic/internal/mirror"
	"github.com/MatthiasLenz/TechniteLogic/internal/round"
)

var ErrClosed = errors.New("ledger: closed")

// RoundRow is one completed instruction round.
type RoundRow struct {
	Round    uint64
	Units    int
	Chunks   int
	Started  time.Time
	Finished time.Time
}

// TransitionRow is one mirror state change.
type TransitionRow struct {
	Seq  int64
	From string
	To   string
	At   time.Time
}

type reqKind uint8

const (
	reqRound reqKind = iota + 1
	reqTransition
	reqFlush
)

type req struct {
	kind  reqKind
	round round.Record
	from  mirror.State
	to    mirror.State
	at    time.Time
	done  chan struct{}
}

// Ledger is an append-only sqlite index of rounds and session transitions.
// Writes are queued to a single writer goroutine and never block the caller;
// when the queue is full the entry is dropped.
type Ledger struct {
	db  *sql.DB
	ch  chan req
	now func() time.Time

	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against close(ch).
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	l := &Ledger{
		db:  db,
		ch:  make(chan req, 1024),
		now: time.Now,
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.loop()
	}()
	return l, nil
}

func initPragmas(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("ledger: %s: %w", s, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rounds (
			round INTEGER NOT NULL,
			units INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			started_ns INTEGER NOT NULL,
			finished_ns INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS rounds_round ON rounds(round);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			at_ns INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("ledger: schema: %w", err)
		}
	}
	return nil
}

func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.ch)
		l.mu.Unlock()
		l.wg.Wait()
		err = l.db.Close()
	})
	return err
}

// RecordRound satisfies round.Recorder.
func (l *Ledger) RecordRound(r round.Record) {
	l.enqueue(req{kind: reqRound, round: r})
}

// RecordTransition has the shape of mirror.TransitionFunc.
func (l *Ledger) RecordTransition(from, to mirror.State) {
	l.enqueue(req{kind: reqTransition, from: from, to: to, at: l.now()})
}

// Dropped reports how many entries were discarded because the queue was full.
func (l *Ledger) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *Ledger) enqueue(r req) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- r:
	default:
		l.dropped.Add(1)
	}
}

// Flush waits until every entry queued before the call is written.
func (l *Ledger) Flush(ctx context.Context) error {
	if l == nil {
		return ErrClosed
	}
	done := make(chan struct{})
	if err := l.send(ctx, req{kind: reqFlush, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send blocks until r is queued. The writer keeps draining while the read
// lock is held, so Close cannot be starved.
func (l *Ledger) send(ctx context.Context, r req) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	select {
	case l.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Ledger) isClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

func (l *Ledger) loop() {
	insertRound, err := l.db.Prepare(`INSERT INTO rounds(round,units,chunks,started_ns,finished_ns) VALUES(?,?,?,?,?)`)
	if err != nil {
		log.Error().Err(err).Msg("ledger.Ledger prepare rounds")
	}
	insertTransition, err := l.db.Prepare(`INSERT INTO transitions(from_state,to_state,at_ns) VALUES(?,?,?)`)
	if err != nil {
		log.Error().Err(err).Msg("ledger.Ledger prepare transitions")
	}
	defer func() {
		if insertRound != nil {
			_ = insertRound.Close()
		}
		if insertTransition != nil {
			_ = insertTransition.Close()
		}
	}()

	for r := range l.ch {
		switch r.kind {
		case reqRound:
			if insertRound == nil {
				continue
			}
			if _, err := insertRound.Exec(
				int64(r.round.Round),
				r.round.Units,
				r.round.Chunks,
				r.round.Started.UnixNano(),
				r.round.Finished.UnixNano(),
			); err != nil {
				log.Warn().Err(err).Uint64("round", r.round.Round).Msg("ledger.Ledger round insert failed")
			}
		case reqTransition:
			if insertTransition == nil {
				continue
			}
			if _, err := insertTransition.Exec(r.from.String(), r.to.String(), r.at.UnixNano()); err != nil {
				log.Warn().Err(err).Str("to", r.to.String()).Msg("ledger.Ledger transition insert failed")
			}
		case reqFlush:
			close(r.done)
		}
	}
}

// Rounds lists recorded rounds, oldest first. limit <= 0 returns all rows.
func (l *Ledger) Rounds(ctx context.Context, limit int) ([]RoundRow, error) {
	if l.isClosed() {
		return nil, ErrClosed
	}
	return QueryRounds(ctx, l.db, limit)
}

// Transitions lists recorded state changes in insertion order.
func (l *Ledger) Transitions(ctx context.Context, limit int) ([]TransitionRow, error) {
	if l.isClosed() {
		return nil, ErrClosed
	}
	return QueryTransitions(ctx, l.db, limit)
}

// QueryRounds reads the rounds table from an already open database.
func QueryRounds(ctx context.Context, db *sql.DB, limit int) ([]RoundRow, error) {
	q := `SELECT round,units,chunks,started_ns,finished_ns FROM rounds ORDER BY rowid`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundRow
	for rows.Next() {
		var (
			r                 RoundRow
			n                 int64
			started, finished int64
		)
		if err := rows.Scan(&n, &r.Units, &r.Chunks, &started, &finished); err != nil {
			return nil, err
		}
		r.Round = uint64(n)
		r.Started = time.Unix(0, started)
		r.Finished = time.Unix(0, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

func QueryTransitions(ctx context.Context, db *sql.DB, limit int) ([]TransitionRow, error) {
	q := `SELECT seq,from_state,to_state,at_ns FROM transitions ORDER BY seq`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransitionRow
	for rows.Next() {
		var (
			r  TransitionRow
			at int64
		)
		if err := rows.Scan(&r.Seq, &r.From, &r.To, &at); err != nil {
			return nil, err
		}
		r.At = time.Unix(0, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// OpenReadOnly opens an existing ledger file for inspection. The connection
// runs with query_only so the WAL sidecar files can still be created.
func OpenReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
