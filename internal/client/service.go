// Package client runs the technite mirror session against a game server:
// it dials, announces readiness, serves inbound channels and reconnects
// after a session ends.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MatthiasLenz/TechniteLogic/internal/catalog"
	"github.com/MatthiasLenz/TechniteLogic/internal/config"
	"github.com/MatthiasLenz/TechniteLogic/internal/logic"
	"github.com/MatthiasLenz/TechniteLogic/internal/mirror"
	"github.com/MatthiasLenz/TechniteLogic/internal/persistence/ledger"
	"github.com/MatthiasLenz/TechniteLogic/internal/persistence/snapshot"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/channel"
	"github.com/MatthiasLenz/TechniteLogic/internal/round"
	"github.com/MatthiasLenz/TechniteLogic/internal/transport"
)

var ErrInvalidHeartbeatInterval = errors.New("client: invalid heartbeat interval")

type Option func(*Service)

// WithDecider replaces the idle decision logic.
func WithDecider(d logic.Decider) Option {
	return func(s *Service) {
		s.decider = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service owns one mirror and keeps it attached to the server across
// reconnects.
type Service struct {
	cfg     config.Config
	now     func() time.Time
	decider logic.Decider
	rng     *rand.Rand

	catalog  *catalog.Catalog
	mirror   *mirror.Mirror
	rounds   *round.Controller
	registry *channel.Registry
	sender   *connSender
	dialer   *transport.Dialer
	ledger   *ledger.Ledger

	sessions atomic.Uint64
}

// NewService performs the bootstrap: catalog load, optional ledger open,
// mirror and round controller construction, registry build and seal.
func NewService(cfg config.Config, opts ...Option) (*Service, error) {
	if cfg.HeartbeatInterval <= 0 {
		return nil, ErrInvalidHeartbeatInterval
	}
	s := &Service{
		cfg:    cfg,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sender: &connSender{},
	}
	for _, opt := range opts {
		opt(s)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	s.catalog = cat

	dialer, err := transport.NewDialer(cfg.Transport)
	if err != nil {
		return nil, err
	}
	s.dialer = dialer

	var mirrorOpts []mirror.Option
	roundOpts := []round.Option{
		round.WithMaxPerChunk(cfg.MaxInstructionsPerChunk),
		round.WithClock(s.now),
	}
	if cfg.LedgerPath != "" {
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		s.ledger = l
		mirrorOpts = append(mirrorOpts, mirror.WithTransitionHook(l.RecordTransition))
		roundOpts = append(roundOpts, round.WithRecorder(l))
	}

	s.mirror = mirror.New(cat, mirrorOpts...)
	s.rounds = round.New(s.mirror, s.decider, s.sender, roundOpts...)

	s.registry = channel.NewRegistry()
	if err := errors.Join(s.mirror.Bind(s.registry), s.rounds.Bind(s.registry)); err != nil {
		_ = s.ledger.Close()
		return nil, err
	}
	s.registry.Seal()

	log.Info().
		Str("client_id", cfg.ClientID).
		Str("transport", string(s.dialer.Config().Kind)).
		Str("addr", s.dialer.Config().Address).
		Int("content_types", cat.Count()).
		Int("channels", len(s.registry.Bound())).
		Bool("ledger", s.ledger != nil).
		Msg("client.Service bootstrap ready")
	return s, nil
}

func (s *Service) Mirror() *mirror.Mirror {
	return s.mirror
}

// Sessions is the number of sessions that have been served.
func (s *Service) Sessions() uint64 {
	return s.sessions.Load()
}

// Run dials and serves sessions until ctx ends or the dialer gives up.
// On return the ledger is closed and, when configured, a snapshot written.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeat(hbCtx)
	}()

	err := s.supervise(ctx)
	stopHeartbeat()
	wg.Wait()
	return errors.Join(err, s.shutdown())
}

func (s *Service) supervise(ctx context.Context) error {
	for {
		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client: connect: %w", err)
		}

		err = s.serveSession(ctx, conn)
		n := s.sessions.Add(1)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().
			Err(err).
			Uint64("session", n).
			Str("state", s.mirror.State().String()).
			Bool("connection_fatal", mirror.IsConnectionFatal(err)).
			Msg("client.Service session ended")
		s.mirror.Reset()

		delay := transport.NextBackoffDelay(s.dialer.Config().Backoff, 1, s.rng)
		if err := transport.Sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// serveSession announces readiness and dispatches inbound frames until the
// connection or a handler fails.
func (s *Service) serveSession(ctx context.Context, conn transport.Conn) error {
	s.sender.set(conn)
	defer func() {
		s.sender.set(nil)
		_ = conn.Close()
	}()

	if err := conn.Send(channel.Ready, nil); err != nil {
		return fmt.Errorf("client: send ready: %w", err)
	}
	log.Info().Str("remote", conn.RemoteAddr()).Msg("client.Service ready sent")
	return conn.Serve(ctx, s.registry.Dispatch)
}

func (s *Service) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.mirror.Status()
			ev := log.Info().
				Str("state", st.State.String()).
				Int("nodes", st.Nodes).
				Int("units", st.Units).
				Int("stale_units", st.StaleUnits).
				Bool("has_world", st.HasWorld).
				Uint64("deltas", st.Deltas).
				Uint64("passes", st.Passes).
				Uint64("rounds", st.Rounds).
				Int("pending_nodes", st.PendingNodes).
				Bool("state_pass_open", st.StatePassOpen).
				Uint64("sessions", s.sessions.Load())
			if st.HasWorld {
				ev = ev.Str("core", s.catalog.Name(st.CoreContent))
			}
			if st.Err != nil {
				ev = ev.AnErr("session_err", st.Err)
			}
			ev.Msg("client.Service heartbeat")
		}
	}
}

func (s *Service) shutdown() error {
	var errs []error
	if s.cfg.SnapshotPath != "" {
		snap := snapshot.FromMirror(s.cfg.ClientID, s.mirror.Snapshot(), s.now())
		if err := snapshot.Write(s.cfg.SnapshotPath, snap); err != nil {
			errs = append(errs, fmt.Errorf("client: write snapshot: %w", err))
		} else {
			log.Info().
				Str("path", s.cfg.SnapshotPath).
				Str("state", snap.Header.State).
				Int("units", snap.Header.Units).
				Msg("client.Service snapshot written")
		}
	}
	if err := s.ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("client: close ledger: %w", err))
	}
	return errors.Join(errs...)
}

// connSender forwards to whichever connection is live. The round controller
// is built once and outlives individual connections.
type connSender struct {
	mu   sync.RWMutex
	conn transport.Conn
}

func (c *connSender) set(conn transport.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *connSender) Send(id channel.ID, payload []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return transport.ErrClosed
	}
	return conn.Send(id, payload)
}
