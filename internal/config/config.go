// Package config manages nat64d daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and in-code defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/nat64d/internal/natdb"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete nat64d configuration.
type Config struct {
	Admin   AdminConfig   `koanf:"admin"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	NAT64   NAT64Config   `koanf:"nat64"`
	Pool4   []Pool4Range  `koanf:"pool4"`
}

// AdminConfig holds the administrative HTTP server configuration.
type AdminConfig struct {
	// Addr is the HTTP listen address (e.g., "127.0.0.1:8064").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// NAT64Config holds the BIB/session table parameters (spec.md §6).
type NAT64Config struct {
	// TTL holds each session class's idle timeout, given on the wire in
	// milliseconds and converted to time.Duration by ToNATDB.
	TTL TTLConfigMillis `koanf:"ttl"`

	// DropByAddr enables address-dependent filtering for UDP/ICMP.
	DropByAddr bool `koanf:"drop_by_addr"`

	// DropExternalTCP rejects a v4-originated SYN lacking a prior v6
	// session instead of parking it in the packet queue.
	DropExternalTCP bool `koanf:"drop_external_tcp"`

	// MaxStoredPkts bounds the TCP packet queue (type-1 + type-2 combined).
	MaxStoredPkts int `koanf:"max_stored_pkts"`

	// BIBLogging and SessionLogging are passed through to natdb.Config;
	// neither the table nor the daemon reads them, and no add/remove log
	// lines are emitted.
	BIBLogging     bool `koanf:"bib_logging"`
	SessionLogging bool `koanf:"session_logging"`

	// FArgs is Jool's address-dependent-filtering argument bitmask.
	FArgs uint8 `koanf:"f_args"`

	// Plateau is the MTU plateau list used by the ICMP/translation layer
	// (an external collaborator of this package's Database).
	Plateau []int `koanf:"plateau"`

	// BIBCapacity and SessionCapacity size each protocol table's arena.
	BIBCapacity     int `koanf:"bib_capacity"`
	SessionCapacity int `koanf:"session_capacity"`

	// CleanInterval is how often the daemon sweeps expired sessions.
	CleanInterval time.Duration `koanf:"clean_interval"`
}

// TTLConfigMillis is the wire form of natdb.TTLConfig: milliseconds
// instead of time.Duration, matching Jool's sysctl/netlink units.
type TTLConfigMillis struct {
	TCPEstMillis   int64 `koanf:"tcp_est_ms"`
	TCPTransMillis int64 `koanf:"tcp_trans_ms"`
	UDPMillis      int64 `koanf:"udp_ms"`
	ICMPMillis     int64 `koanf:"icmp_ms"`
	SYNMillis      int64 `koanf:"syn_ms"`
}

// Pool4Range is one pool4 address/port range entry (spec.md §6 default
// pool4 port range 61001-65535). Validate checks these ranges, but
// nothing in this repository builds a natdb.MaskDomain from them; natdb
// itself never parses this shape.
type Pool4Range struct {
	Mark    uint32 `koanf:"mark"`
	Addr    string `koanf:"addr"`
	PortLo  uint16 `koanf:"port_lo"`
	PortHi  uint16 `koanf:"port_hi"`
	Dynamic bool   `koanf:"dynamic"`
}

// -------------------------------------------------------------------------
// Conversion
// -------------------------------------------------------------------------

// ToNATDB converts the wire configuration into an internal/natdb.Config,
// turning millisecond TTLs into time.Duration ticks the table consults
// directly (mirrors the teacher's configSessionToBFD conversion step).
func (c *Config) ToNATDB() natdb.Config {
	return natdb.Config{
		TTL: natdb.TTLConfig{
			TCPEst:   time.Duration(c.NAT64.TTL.TCPEstMillis) * time.Millisecond,
			TCPTrans: time.Duration(c.NAT64.TTL.TCPTransMillis) * time.Millisecond,
			UDP:      time.Duration(c.NAT64.TTL.UDPMillis) * time.Millisecond,
			ICMP:     time.Duration(c.NAT64.TTL.ICMPMillis) * time.Millisecond,
			SYN:      time.Duration(c.NAT64.TTL.SYNMillis) * time.Millisecond,
		},
		DropByAddr:      c.NAT64.DropByAddr,
		DropExternalTCP: c.NAT64.DropExternalTCP,
		MaxStoredPkts:   c.NAT64.MaxStoredPkts,
		BIBLogging:      c.NAT64.BIBLogging,
		SessionLogging:  c.NAT64.SessionLogging,
		FArgs:           c.NAT64.FArgs,
		Plateau:         c.NAT64.Plateau,
	}
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with Jool's stock defaults
// (spec.md §6).
func DefaultConfig() *Config {
	ttl := natdb.DefaultTTLConfig()
	return &Config{
		Admin: AdminConfig{
			Addr: "127.0.0.1:8064",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		NAT64: NAT64Config{
			TTL: TTLConfigMillis{
				TCPEstMillis:   ttl.TCPEst.Milliseconds(),
				TCPTransMillis: ttl.TCPTrans.Milliseconds(),
				UDPMillis:      ttl.UDP.Milliseconds(),
				ICMPMillis:     ttl.ICMP.Milliseconds(),
				SYNMillis:      ttl.SYN.Milliseconds(),
			},
			DropByAddr:      false,
			DropExternalTCP: false,
			MaxStoredPkts:   10,
			BIBLogging:      false,
			SessionLogging:  false,
			FArgs:           natdb.DefaultFArgs,
			Plateau:         natdb.DefaultPlateau(),
			BIBCapacity:     65536,
			SessionCapacity: 65536,
			CleanInterval:   2 * time.Second,
		},
		Pool4: []Pool4Range{
			{Mark: 0, Addr: "203.0.113.1", PortLo: 61001, PortHi: 65535, Dynamic: false},
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for nat64d configuration.
// Variables are named NAT64D_<section>_<key>, e.g., NAT64D_ADMIN_ADDR.
const envPrefix = "NAT64D_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NAT64D_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms NAT64D_ADMIN_ADDR -> admin.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":              defaults.Admin.Addr,
		"metrics.addr":            defaults.Metrics.Addr,
		"metrics.path":            defaults.Metrics.Path,
		"log.level":               defaults.Log.Level,
		"log.format":              defaults.Log.Format,
		"nat64.ttl.tcp_est_ms":    defaults.NAT64.TTL.TCPEstMillis,
		"nat64.ttl.tcp_trans_ms":  defaults.NAT64.TTL.TCPTransMillis,
		"nat64.ttl.udp_ms":        defaults.NAT64.TTL.UDPMillis,
		"nat64.ttl.icmp_ms":       defaults.NAT64.TTL.ICMPMillis,
		"nat64.ttl.syn_ms":        defaults.NAT64.TTL.SYNMillis,
		"nat64.drop_by_addr":      defaults.NAT64.DropByAddr,
		"nat64.drop_external_tcp": defaults.NAT64.DropExternalTCP,
		"nat64.max_stored_pkts":   defaults.NAT64.MaxStoredPkts,
		"nat64.bib_logging":       defaults.NAT64.BIBLogging,
		"nat64.session_logging":   defaults.NAT64.SessionLogging,
		"nat64.f_args":            defaults.NAT64.FArgs,
		"nat64.bib_capacity":      defaults.NAT64.BIBCapacity,
		"nat64.session_capacity":  defaults.NAT64.SessionCapacity,
		"nat64.clean_interval":    defaults.NAT64.CleanInterval.String(),
		"nat64.plateau":           defaults.NAT64.Plateau,
	}

	pool4 := make([]map[string]any, 0, len(defaults.Pool4))
	for _, r := range defaults.Pool4 {
		pool4 = append(pool4, map[string]any{
			"mark": r.Mark, "addr": r.Addr, "port_lo": r.PortLo, "port_hi": r.PortHi, "dynamic": r.Dynamic,
		})
	}
	defaultMap["pool4"] = pool4

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrInvalidMaxStoredPkts indicates max_stored_pkts is negative.
	ErrInvalidMaxStoredPkts = errors.New("nat64.max_stored_pkts must be >= 0")

	// ErrInvalidCapacity indicates a table capacity is not positive.
	ErrInvalidCapacity = errors.New("nat64.bib_capacity and session_capacity must be > 0")

	// ErrNoPool4 indicates no pool4 range was configured.
	ErrNoPool4 = errors.New("at least one pool4 range must be configured")

	// ErrInvalidPool4Range indicates a pool4 range has port_lo > port_hi
	// or an unparseable address.
	ErrInvalidPool4Range = errors.New("pool4 range has port_lo > port_hi or an invalid address")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}
	if cfg.NAT64.MaxStoredPkts < 0 {
		return ErrInvalidMaxStoredPkts
	}
	if cfg.NAT64.BIBCapacity <= 0 || cfg.NAT64.SessionCapacity <= 0 {
		return ErrInvalidCapacity
	}
	if len(cfg.Pool4) == 0 {
		return ErrNoPool4
	}
	for i, r := range cfg.Pool4 {
		if _, err := netip.ParseAddr(r.Addr); err != nil || r.PortLo > r.PortHi {
			return fmt.Errorf("pool4[%d]: %w", i, ErrInvalidPool4Range)
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
