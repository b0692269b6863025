// Package config loads the client configuration: a TOML file laid over
// defaults, then TECHNITE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/message"
	"github.com/MatthiasLenz/TechniteLogic/internal/transport"
)

var (
	ErrClientIDRequired = errors.New("config: client_id required")
	ErrInvalidChunkCap  = errors.New("config: max_instructions_per_chunk out of range")
)

type Config struct {
	ClientID                string
	Transport               transport.Config
	HeartbeatInterval       time.Duration
	MaxInstructionsPerChunk int
	CatalogPath             string
	SnapshotPath            string
	LedgerPath              string
}

func DefaultConfig() Config {
	tc := transport.DefaultConfig()
	tc.Address = "127.0.0.1:5000"
	return Config{
		ClientID:                "technite-client",
		Transport:               tc,
		HeartbeatInterval:       10 * time.Second,
		MaxInstructionsPerChunk: message.MaxInstructionsPerChunk,
	}
}

// fileConfig is the technite.toml key mapping.
type fileConfig struct {
	ClientID                string        `toml:"client_id"`
	Transport               string        `toml:"transport"`
	Address                 string        `toml:"address"`
	ConnectTimeout          time.Duration `toml:"connect_timeout"`
	HandshakeTimeout        time.Duration `toml:"handshake_timeout"`
	WriteTimeout            time.Duration `toml:"write_timeout"`
	MaxConnectAttempts      int           `toml:"max_connect_attempts"`
	MaxPayloadBytes         uint64        `toml:"max_payload_bytes"`
	BackoffInitial          time.Duration `toml:"backoff_initial"`
	BackoffMultiplier       float64       `toml:"backoff_multiplier"`
	BackoffMax              time.Duration `toml:"backoff_max"`
	BackoffJitter           bool          `toml:"backoff_jitter"`
	TLSEnabled              bool          `toml:"tls_enabled"`
	TLSServerName           string        `toml:"tls_server_name"`
	TLSCAFile               string        `toml:"tls_ca_file"`
	TLSCertFile             string        `toml:"tls_cert_file"`
	TLSKeyFile              string        `toml:"tls_key_file"`
	TLSInsecureSkipVerify   bool          `toml:"tls_insecure_skip_verify"`
	HeartbeatInterval       time.Duration `toml:"heartbeat_interval"`
	MaxInstructionsPerChunk int           `toml:"max_instructions_per_chunk"`
	CatalogPath             string        `toml:"catalog_path"`
	SnapshotPath            string        `toml:"snapshot_path"`
	LedgerPath              string        `toml:"ledger_path"`
}

// envConfig holds the TECHNITE_* overrides. Unset variables leave the
// prefilled value alone.
type envConfig struct {
	ClientID     string        `env:"TECHNITE_CLIENT_ID"`
	Transport    string        `env:"TECHNITE_TRANSPORT"`
	Address      string        `env:"TECHNITE_ADDRESS"`
	Heartbeat    time.Duration `env:"TECHNITE_HEARTBEAT_INTERVAL"`
	MaxAttempts  int           `env:"TECHNITE_MAX_CONNECT_ATTEMPTS"`
	CatalogPath  string        `env:"TECHNITE_CATALOG"`
	SnapshotPath string        `env:"TECHNITE_SNAPSHOT"`
	LedgerPath   string        `env:"TECHNITE_LEDGER"`
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		cfg, err = applyFile(cfg, path)
		if err != nil {
			return Config{}, err
		}
	}
	cfg, err := applyEnv(cfg)
	if err != nil {
		return Config{}, err
	}
	cfg.Transport = cfg.Transport.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg Config, path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load technite config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load technite config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("client_id") {
		cfg.ClientID = strings.TrimSpace(raw.ClientID)
	}
	if meta.IsDefined("transport") {
		cfg.Transport.Kind = transport.Kind(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("address") {
		cfg.Transport.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("connect_timeout") {
		cfg.Transport.ConnectTimeout = raw.ConnectTimeout
	}
	if meta.IsDefined("handshake_timeout") {
		cfg.Transport.HandshakeTimeout = raw.HandshakeTimeout
	}
	if meta.IsDefined("write_timeout") {
		cfg.Transport.WriteTimeout = raw.WriteTimeout
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Transport.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.Transport.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("backoff_initial") {
		cfg.Transport.Backoff.InitialDelay = raw.BackoffInitial
	}
	if meta.IsDefined("backoff_multiplier") {
		cfg.Transport.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_max") {
		cfg.Transport.Backoff.MaxDelay = raw.BackoffMax
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.Transport.Backoff.Jitter = raw.BackoffJitter
	}
	if meta.IsDefined("tls_enabled") {
		cfg.Transport.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_server_name") {
		cfg.Transport.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Transport.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Transport.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Transport.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_insecure_skip_verify") {
		cfg.Transport.TLS.InsecureSkipVerify = raw.TLSInsecureSkipVerify
	}
	if meta.IsDefined("heartbeat_interval") {
		cfg.HeartbeatInterval = raw.HeartbeatInterval
	}
	if meta.IsDefined("max_instructions_per_chunk") {
		cfg.MaxInstructionsPerChunk = raw.MaxInstructionsPerChunk
	}
	if meta.IsDefined("catalog_path") {
		cfg.CatalogPath = strings.TrimSpace(raw.CatalogPath)
	}
	if meta.IsDefined("snapshot_path") {
		cfg.SnapshotPath = strings.TrimSpace(raw.SnapshotPath)
	}
	if meta.IsDefined("ledger_path") {
		cfg.LedgerPath = strings.TrimSpace(raw.LedgerPath)
	}
	return cfg, nil
}

func applyEnv(cfg Config) (Config, error) {
	ov := envConfig{
		ClientID:     cfg.ClientID,
		Transport:    string(cfg.Transport.Kind),
		Address:      cfg.Transport.Address,
		Heartbeat:    cfg.HeartbeatInterval,
		MaxAttempts:  cfg.Transport.MaxConnectAttempts,
		CatalogPath:  cfg.CatalogPath,
		SnapshotPath: cfg.SnapshotPath,
		LedgerPath:   cfg.LedgerPath,
	}
	if err := env.Parse(&ov); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.ClientID = strings.TrimSpace(ov.ClientID)
	cfg.Transport.Kind = transport.Kind(strings.TrimSpace(ov.Transport))
	cfg.Transport.Address = strings.TrimSpace(ov.Address)
	cfg.HeartbeatInterval = ov.Heartbeat
	cfg.Transport.MaxConnectAttempts = ov.MaxAttempts
	cfg.CatalogPath = strings.TrimSpace(ov.CatalogPath)
	cfg.SnapshotPath = strings.TrimSpace(ov.SnapshotPath)
	cfg.LedgerPath = strings.TrimSpace(ov.LedgerPath)
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return ErrClientIDRequired
	}
	if c.MaxInstructionsPerChunk <= 0 || c.MaxInstructionsPerChunk > message.MaxInstructionsPerChunk {
		return fmt.Errorf("%w: %d (1..%d)", ErrInvalidChunkCap, c.MaxInstructionsPerChunk, message.MaxInstructionsPerChunk)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("config: negative heartbeat_interval %s", c.HeartbeatInterval)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
