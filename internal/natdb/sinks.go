package natdb

import "log/slog"

// Stat enumerates every countable event named in spec.md §6. Table
// operations increment a Stat directly where the event happens; there is
// no one-to-one mapping from the Kinds in errors.go.
type Stat uint8

const (
	StatPool4Exhausted Stat = iota
	StatSO1StoredPkt
	StatSO1Exists
	StatSO1Full
	StatSO2StoredPkt
	StatSO2Full
	StatADF
	StatNoBIB
	StatExternalSYNProhibited
	StatTCPSM
	StatUnknown6
	StatUnknown4
)

func (s Stat) String() string {
	switch s {
	case StatPool4Exhausted:
		return "POOL4_EXHAUSTED"
	case StatSO1StoredPkt:
		return "SO1_STORED_PKT"
	case StatSO1Exists:
		return "SO1_EXISTS"
	case StatSO1Full:
		return "SO1_FULL"
	case StatSO2StoredPkt:
		return "SO2_STORED_PKT"
	case StatSO2Full:
		return "SO2_FULL"
	case StatADF:
		return "ADF"
	case StatNoBIB:
		return "NO_BIB"
	case StatExternalSYNProhibited:
		return "EXTERNAL_SYN_PROHIBITED"
	case StatTCPSM:
		return "TCP_SM"
	case StatUnknown6:
		return "UNKNOWN6"
	case StatUnknown4:
		return "UNKNOWN4"
	default:
		return "UNKNOWN"
	}
}

// StatsSink receives one increment per countable event. internal/natstats
// implements this with Prometheus counters; LoggingSinks below is the
// degenerate implementation used when nothing else is wired.
type StatsSink interface {
	Inc(stat Stat)
}

// ProbeSink sends a zero-payload TCP ACK toward the v6 endpoint identified
// by (src6, dst6) — src6 being the real IPv6 node's address (the BIB's
// Src6), dst6 the synthesised v6 representation of the v4 peer (the
// session's Dst6). Per spec.md §9's open question, any checksum marking
// on the resulting packet is this sink's concern, not the table's.
type ProbeSink interface {
	SendProbe(src6, dst6 TransportAddr, proto Protocol) error
}

// ICMPSink emits a port-unreachable error toward the source of a packet
// that the table is giving up on — principally an expired packet-queue
// node (spec.md §4.D prepare_clean).
type ICMPSink interface {
	SendPortUnreachable(pkt QueuedPacketSnapshot) error
}

// LoggingSinks implements ProbeSink, ICMPSink and StatsSink by logging
// through slog instead of touching a network — the same role as the
// teacher's noopSender/noopMetrics placeholders in internal/server, used
// so the core and the daemon can be exercised without a real translator
// or exporter attached.
type LoggingSinks struct {
	Logger *slog.Logger
}

func NewLoggingSinks(logger *slog.Logger) *LoggingSinks {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingSinks{Logger: logger}
}

func (l *LoggingSinks) SendProbe(src6, dst6 TransportAddr, proto Protocol) error {
	l.Logger.Debug("tcp probe", "src6", src6, "dst6", dst6, "proto", proto)
	return nil
}

func (l *LoggingSinks) SendPortUnreachable(pkt QueuedPacketSnapshot) error {
	l.Logger.Debug("icmp port unreachable", "src4", pkt.Src4, "dst4", pkt.Dst4)
	return nil
}

func (l *LoggingSinks) Inc(stat Stat) {
	l.Logger.Debug("stat", "counter", stat.String())
}
