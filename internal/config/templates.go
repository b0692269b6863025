package config

import (
	"fmt"
	"os"
)

// Template is a commented technite.toml matching DefaultConfig.
func Template() string {
	return clientTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(clientTemplate), 0o600)
}

const clientTemplate = `# technite mirror client
client_id = "technite-client"

# "tcp" (address is host:port) or "ws" (address is a ws:// or wss:// URL)
transport = "tcp"
address = "127.0.0.1:5000"
connect_timeout = "5s"
handshake_timeout = "5s"
write_timeout = "15s"
# 0 keeps retrying until shutdown
max_connect_attempts = 0
max_payload_bytes = 8388608

backoff_initial = "250ms"
backoff_multiplier = 2.0
backoff_max = "5s"
backoff_jitter = true

# tcp only; ws picks TLS from a wss:// address and shares the trust settings
tls_enabled = false
tls_server_name = ""
tls_ca_file = ""
tls_cert_file = ""
tls_key_file = ""
tls_insecure_skip_verify = false

heartbeat_interval = "10s"
max_instructions_per_chunk = 10000

# empty selects the built-in content type catalog
catalog_path = ""
# empty disables the shutdown snapshot
snapshot_path = ""
# empty disables the round ledger
ledger_path = ""
`
