package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/frame"
)

// Kind selects the byte carrier under the frame codec.
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindWebSocket Kind = "ws"
)

var (
	ErrAddressRequired = errors.New("transport: address required")
	ErrUnknownKind     = errors.New("transport: unknown kind")
)

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

type Config struct {
	Kind             Kind
	Address          string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// MaxConnectAttempts <= 0 retries until the context ends.
	MaxConnectAttempts int
	Backoff            BackoffConfig
	Limits             frame.Limits
	TLS                TLSConfig
}

func DefaultConfig() Config {
	return Config{
		Kind:             KindTCP,
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     15 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		Limits: frame.DefaultLimits(),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Kind == "" {
		c.Kind = def.Kind
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	c.Limits = c.Limits.WithDefaults()
	return c
}

func (c Config) Validate() error {
	addr := strings.TrimSpace(c.Address)
	if addr == "" {
		return ErrAddressRequired
	}
	switch c.Kind {
	case KindTCP:
		if strings.Contains(addr, "://") {
			return fmt.Errorf("transport: tcp address must be host:port, got %q", addr)
		}
	case KindWebSocket:
		u, err := url.Parse(addr)
		if err != nil {
			return fmt.Errorf("transport: websocket address: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("transport: websocket address needs ws:// or wss://, got %q", addr)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	return c.TLS.validate()
}
