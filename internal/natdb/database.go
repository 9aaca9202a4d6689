package natdb

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Database is the top-level BIB/session store: one Table per protocol,
// sharing a single hot-swappable Config (spec.md §5). It owns nothing
// about packet translation or pool4 address selection — those stay with
// the caller, which supplies a MaskDomain per v6-side call.
type Database struct {
	udp  *Table
	tcp  *Table
	icmp *Table

	cfg atomic.Pointer[Config]

	logger *slog.Logger
}

// DatabaseOption configures optional Database parameters.
type DatabaseOption func(*Database)

// WithStats sets the StatsSink every table reports counters to. If sink
// is nil the option is ignored and tables fall back to a no-op sink.
func WithStats(sink StatsSink) DatabaseOption {
	return func(d *Database) {
		if sink != nil {
			d.tcp.stats, d.udp.stats, d.icmp.stats = sink, sink, sink
		}
	}
}

// WithProbe sets the ProbeSink the TCP table uses for FATE_PROBE.
func WithProbe(sink ProbeSink) DatabaseOption {
	return func(d *Database) {
		d.tcp.probe = sink
	}
}

// WithICMP sets the ICMPSink every table uses to report dropped stored
// packets.
func WithICMP(sink ICMPSink) DatabaseOption {
	return func(d *Database) {
		d.tcp.icmp, d.udp.icmp, d.icmp.icmp = sink, sink, sink
	}
}

// NewDatabase builds the three protocol tables from cfg's capacities and
// TTLs. cfg is copied into the atomic config slot; later reconfiguration
// goes through Configure.
func NewDatabase(cfg Config, bibCapacity, sessionCapacity int, logger *slog.Logger, opts ...DatabaseOption) *Database {
	noop := noopSink{}
	d := &Database{
		udp:    NewTable(ProtoUDP, bibCapacity, sessionCapacity, 0, noop, nil, noop),
		tcp:    NewTable(ProtoTCP, bibCapacity, sessionCapacity, cfg.MaxStoredPkts, noop, nil, noop),
		icmp:   NewTable(ProtoICMP, bibCapacity, sessionCapacity, 0, noop, nil, noop),
		logger: logger.With(slog.String("component", "natdb.database")),
	}
	d.cfg.Store(&cfg)

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the currently active configuration. Safe for concurrent
// use with Configure.
func (d *Database) Config() Config {
	return *d.cfg.Load()
}

// Configure atomically swaps in a new configuration, applying its TCP
// packet-queue capacity to the live queue immediately so a reload can
// tighten or loosen max_stored_pkts without a restart (spec.md §6).
func (d *Database) Configure(cfg Config) {
	d.tcp.mu.Lock()
	if d.tcp.queue != nil {
		d.tcp.queue.setCapacity(cfg.MaxStoredPkts)
	}
	d.tcp.mu.Unlock()

	d.cfg.Store(&cfg)
	d.logger.Info("configuration reloaded",
		slog.Duration("tcp_est_ttl", cfg.TTL.TCPEst),
		slog.Duration("tcp_trans_ttl", cfg.TTL.TCPTrans),
		slog.Duration("udp_ttl", cfg.TTL.UDP),
		slog.Duration("icmp_ttl", cfg.TTL.ICMP),
		slog.Duration("syn_ttl", cfg.TTL.SYN),
		slog.Bool("drop_by_addr", cfg.DropByAddr),
		slog.Bool("drop_external_tcp", cfg.DropExternalTCP),
		slog.Int("max_stored_pkts", cfg.MaxStoredPkts),
	)
}

// UDP returns the UDP table.
func (d *Database) UDP() *Table { return d.udp }

// TCP returns the TCP table.
func (d *Database) TCP() *Table { return d.tcp }

// ICMP returns the ICMP table.
func (d *Database) ICMP() *Table { return d.icmp }

// Table returns the table for proto, or nil for an unrecognized protocol.
func (d *Database) Table(proto Protocol) *Table {
	switch proto {
	case ProtoUDP:
		return d.udp
	case ProtoTCP:
		return d.tcp
	case ProtoICMP:
		return d.icmp
	default:
		return nil
	}
}

// RunCleaner periodically calls Clean on all three tables using the
// then-current Config, until ctx is cancelled. This is the daemon's
// equivalent of db.c's periodic session_cleanup timer (spec.md §5).
func (d *Database) RunCleaner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cleanOnce()
		}
	}
}

func (d *Database) cleanOnce() {
	cfg := d.Config()
	now := time.Now()
	d.udp.Clean(&cfg, now)
	d.tcp.Clean(&cfg, now)
	d.icmp.Clean(&cfg, now)
}

// noopSink is the zero-value StatsSink/ICMPSink used when the caller
// supplies none via WithStats/WithICMP — mirrors the teacher's
// noopMetrics/noopSender placeholder pattern (internal/bfd/session.go).
type noopSink struct{}

func (noopSink) Inc(Stat) {}

func (noopSink) SendPortUnreachable(QueuedPacketSnapshot) error { return nil }
