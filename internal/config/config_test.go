package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dantte-lp/nat64d/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Admin.Addr != "127.0.0.1:8064" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, "127.0.0.1:8064")
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.NAT64.MaxStoredPkts != 10 {
		t.Errorf("NAT64.MaxStoredPkts = %d, want 10", cfg.NAT64.MaxStoredPkts)
	}
	if cfg.NAT64.TTL.TCPEstMillis != (2 * time.Hour).Milliseconds() {
		t.Errorf("NAT64.TTL.TCPEstMillis = %d, want %d", cfg.NAT64.TTL.TCPEstMillis, (2 * time.Hour).Milliseconds())
	}
	if len(cfg.Pool4) != 1 {
		t.Fatalf("Pool4 count = %d, want 1", len(cfg.Pool4))
	}
	if cfg.Pool4[0].PortLo != 61001 || cfg.Pool4[0].PortHi != 65535 {
		t.Errorf("Pool4[0] ports = %d-%d, want 61001-65535", cfg.Pool4[0].PortLo, cfg.Pool4[0].PortHi)
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestToNATDBConvertsMillisToDuration(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.NAT64.TTL.UDPMillis = 5000
	cfg.NAT64.MaxStoredPkts = 7

	ndb := cfg.ToNATDB()
	if ndb.TTL.UDP != 5*time.Second {
		t.Errorf("ToNATDB().TTL.UDP = %v, want 5s", ndb.TTL.UDP)
	}
	if ndb.MaxStoredPkts != 7 {
		t.Errorf("ToNATDB().MaxStoredPkts = %d, want 7", ndb.MaxStoredPkts)
	}
	if ndb.FArgs != cfg.NAT64.FArgs {
		t.Errorf("ToNATDB().FArgs = %b, want %b", ndb.FArgs, cfg.NAT64.FArgs)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
admin:
  addr: ":8888"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
nat64:
  max_stored_pkts: 20
  drop_by_addr: true
pool4:
  - addr: "198.51.100.1"
    port_lo: 1024
    port_hi: 2048
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":8888" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":8888")
	}
	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.NAT64.MaxStoredPkts != 20 {
		t.Errorf("NAT64.MaxStoredPkts = %d, want 20", cfg.NAT64.MaxStoredPkts)
	}
	if !cfg.NAT64.DropByAddr {
		t.Error("NAT64.DropByAddr = false, want true")
	}
	if len(cfg.Pool4) != 1 || cfg.Pool4[0].Addr != "198.51.100.1" {
		t.Fatalf("Pool4 = %+v, want one range at 198.51.100.1", cfg.Pool4)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	yamlContent := `
admin:
  addr: ":55555"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":55555" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":55555")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}
	if cfg.NAT64.MaxStoredPkts != 10 {
		t.Errorf("NAT64.MaxStoredPkts = %d, want default 10", cfg.NAT64.MaxStoredPkts)
	}
	if len(cfg.Pool4) != 1 {
		t.Errorf("Pool4 count = %d, want default 1", len(cfg.Pool4))
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty admin addr",
			modify: func(cfg *config.Config) {
				cfg.Admin.Addr = ""
			},
			wantErr: config.ErrEmptyAdminAddr,
		},
		{
			name: "negative max stored pkts",
			modify: func(cfg *config.Config) {
				cfg.NAT64.MaxStoredPkts = -1
			},
			wantErr: config.ErrInvalidMaxStoredPkts,
		},
		{
			name: "zero bib capacity",
			modify: func(cfg *config.Config) {
				cfg.NAT64.BIBCapacity = 0
			},
			wantErr: config.ErrInvalidCapacity,
		},
		{
			name: "no pool4 ranges",
			modify: func(cfg *config.Config) {
				cfg.Pool4 = nil
			},
			wantErr: config.ErrNoPool4,
		},
		{
			name: "pool4 port_lo above port_hi",
			modify: func(cfg *config.Config) {
				cfg.Pool4 = []config.Pool4Range{{Addr: "203.0.113.1", PortLo: 100, PortHi: 50}}
			},
			wantErr: config.ErrInvalidPool4Range,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv via t.Setenv).

	yamlContent := `
admin:
  addr: ":8064"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NAT64D_ADMIN_ADDR", ":9999")
	t.Setenv("NAT64D_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":9999" {
		t.Errorf("Admin.Addr = %q, want %q (from env)", cfg.Admin.Addr, ":9999")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "nat64d.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
