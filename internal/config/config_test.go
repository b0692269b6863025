package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MatthiasLenz/TechniteLogic/internal/testutil/testlog"
	"github.com/MatthiasLenz/TechniteLogic/internal/transport"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "technite.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := DefaultConfig()
	if cfg.ClientID != def.ClientID || cfg.Transport.Address != def.Transport.Address {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.MaxInstructionsPerChunk != 10000 {
		t.Fatalf("unexpected cap %d", cfg.MaxInstructionsPerChunk)
	}
}

func TestTemplateLoadsAsDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "technite.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	def := DefaultConfig()
	if cfg.Transport.Backoff != def.Transport.Backoff {
		t.Fatalf("template backoff drifted: %+v vs %+v", cfg.Transport.Backoff, def.Transport.Backoff)
	}
	if cfg.HeartbeatInterval != def.HeartbeatInterval || cfg.Transport.Limits != def.Transport.Limits {
		t.Fatalf("template drifted from defaults: %+v", cfg)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
client_id = "alpha"
transport = "ws"
address = "ws://sim.local:9000/mirror"
connect_timeout = "2s"
max_connect_attempts = 3
backoff_initial = "100ms"
backoff_jitter = false
max_instructions_per_chunk = 500
snapshot_path = "/tmp/mirror.snap"
ledger_path = "/tmp/ledger.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ClientID != "alpha" || cfg.Transport.Kind != transport.KindWebSocket {
		t.Fatalf("unexpected identity %+v", cfg)
	}
	if cfg.Transport.ConnectTimeout != 2*time.Second || cfg.Transport.MaxConnectAttempts != 3 {
		t.Fatalf("unexpected transport %+v", cfg.Transport)
	}
	if cfg.Transport.Backoff.InitialDelay != 100*time.Millisecond || cfg.Transport.Backoff.Jitter {
		t.Fatalf("unexpected backoff %+v", cfg.Transport.Backoff)
	}
	if cfg.Transport.WriteTimeout != DefaultConfig().Transport.WriteTimeout {
		t.Fatalf("undefined keys must keep defaults")
	}
	if cfg.MaxInstructionsPerChunk != 500 || cfg.SnapshotPath != "/tmp/mirror.snap" || cfg.LedgerPath != "/tmp/ledger.db" {
		t.Fatalf("unexpected paths %+v", cfg)
	}
}

func TestLoadTLSKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
address = "sim.local:5000"
tls_enabled = true
tls_server_name = "sim.local"
tls_ca_file = "/etc/technite/ca.crt"
tls_cert_file = "/etc/technite/client.crt"
tls_key_file = "/etc/technite/client.key"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tc := cfg.Transport.TLS
	if !tc.Enabled || tc.ServerName != "sim.local" || tc.CAFile != "/etc/technite/ca.crt" || tc.KeyFile != "/etc/technite/client.key" {
		t.Fatalf("unexpected tls config %+v", tc)
	}

	path = writeConfig(t, `
tls_enabled = true
`)
	if _, err := Load(path); !errors.Is(err, transport.ErrTLSCAFileRequired) {
		t.Fatalf("expected ErrTLSCAFileRequired, got %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "client_id = \"alpha\"\naddress = \"10.0.0.1:5000\"\n")
	t.Setenv("TECHNITE_ADDRESS", "10.0.0.2:6000")
	t.Setenv("TECHNITE_CATALOG", "/etc/technite/types.yaml")
	t.Setenv("TECHNITE_HEARTBEAT_INTERVAL", "30s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ClientID != "alpha" {
		t.Fatalf("file value must survive when env is unset, got %q", cfg.ClientID)
	}
	if cfg.Transport.Address != "10.0.0.2:6000" || cfg.CatalogPath != "/etc/technite/types.yaml" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Fatalf("unexpected heartbeat %s", cfg.HeartbeatInterval)
	}
}

func TestEnvParseError(t *testing.T) {
	testlog.Start(t)
	t.Setenv("TECHNITE_MAX_CONNECT_ATTEMPTS", "many")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected env parse error")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"empty client":  "client_id = \"  \"\n",
		"bad transport": "transport = \"udp\"\n",
		"zero cap":      "max_instructions_per_chunk = 0\n",
		"cap too large": "max_instructions_per_chunk = 10001\n",
		"empty address": "address = \"\"\n",
		"unknown key":   "adress = \"x:1\"\n",
		"bad toml":      "client_id = \n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(writeConfig(t, "client_id = \"\"\n")); !errors.Is(err, ErrClientIDRequired) {
		t.Fatalf("expected ErrClientIDRequired, got %v", err)
	}
	if _, err := Load(writeConfig(t, "max_instructions_per_chunk = -1\n")); !errors.Is(err, ErrInvalidChunkCap) {
		t.Fatalf("expected ErrInvalidChunkCap, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
