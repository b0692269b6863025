package transport

import (
	"context"
	"crypto/tls"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Dialer opens connections described by a Config.
type Dialer struct {
	cfg Config
	rng *rand.Rand
}

func NewDialer(cfg Config) (*Dialer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dialer{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (d *Dialer) Config() Config {
	return d.cfg
}

// Dial connects, retrying with backoff until MaxConnectAttempts is reached
// or ctx ends.
func (d *Dialer) Dial(ctx context.Context) (Conn, error) {
	var attempt int
	for {
		attempt++
		conn, err := d.DialOnce(ctx)
		if err == nil {
			log.Info().
				Str("kind", string(d.cfg.Kind)).
				Str("addr", d.cfg.Address).
				Int("attempt", attempt).
				Msg("transport.Dialer connected")
			return conn, nil
		}
		log.Warn().
			Err(err).
			Str("kind", string(d.cfg.Kind)).
			Str("addr", d.cfg.Address).
			Int("attempt", attempt).
			Msg("transport.Dialer dial failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if d.cfg.MaxConnectAttempts > 0 && attempt >= d.cfg.MaxConnectAttempts {
			return nil, err
		}
		if err := Sleep(ctx, NextBackoffDelay(d.cfg.Backoff, attempt, d.rng)); err != nil {
			return nil, err
		}
	}
}

// DialOnce makes a single connection attempt.
func (d *Dialer) DialOnce(ctx context.Context) (Conn, error) {
	switch d.cfg.Kind {
	case KindWebSocket:
		wd := websocket.Dialer{HandshakeTimeout: d.cfg.HandshakeTimeout}
		if strings.HasPrefix(d.cfg.Address, "wss://") {
			tlsCfg, err := d.cfg.TLS.clientTLSConfig(d.cfg.Address)
			if err != nil {
				return nil, err
			}
			wd.TLSClientConfig = tlsCfg
		}
		dialCtx, cancel := context.WithTimeout(ctx, d.cfg.ConnectTimeout+d.cfg.HandshakeTimeout)
		defer cancel()
		conn, resp, err := wd.DialContext(dialCtx, d.cfg.Address, http.Header{})
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, err
		}
		return NewWebSocketConn(conn, d.cfg), nil
	default:
		nd := net.Dialer{Timeout: d.cfg.ConnectTimeout}
		raw, err := nd.DialContext(ctx, "tcp", d.cfg.Address)
		if err != nil {
			return nil, err
		}
		if !d.cfg.TLS.Enabled {
			return NewStreamConn(raw, d.cfg), nil
		}
		tlsCfg, err := d.cfg.TLS.clientTLSConfig(d.cfg.Address)
		if err != nil {
			_ = raw.Close()
			return nil, err
		}
		conn := tls.Client(raw, tlsCfg)
		handshakeCtx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout)
		defer cancel()
		if err := conn.HandshakeContext(handshakeCtx); err != nil {
			_ = raw.Close()
			return nil, err
		}
		return NewStreamConn(conn, d.cfg), nil
	}
}
