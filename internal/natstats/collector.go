// Package natstats implements internal/natdb.StatsSink with Prometheus
// counters, one per enumeration value in spec.md §6.
package natstats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/nat64d/internal/natdb"
)

const (
	namespace = "nat64d"
	subsystem = "bib"
)

const labelProto = "proto"

// Collector owns one Prometheus counter vector keyed by (stat, proto),
// where proto is the name of the protocol table (udp, tcp, icmp) that
// reported the event. natdb.Table has no notion of Prometheus; the
// natdb.StatsSink values returned by ForProtocol are attached to each
// table with Table.SetStats so each table's Inc calls land under the
// right label.
type Collector struct {
	events *prometheus.CounterVec
	proto  string
}

// NewCollector creates the shared counter vector, registering it against
// reg (prometheus.DefaultRegisterer if nil). Call ForProtocol to obtain
// the per-table StatsSink.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Total BIB/session table events, by kind and protocol.",
		}, []string{"stat", labelProto}),
	}

	reg.MustRegister(c.events)
	return c
}

// ForProtocol returns a StatsSink that labels every Inc with proto. The
// returned value shares the underlying CounterVec, so registering once
// and calling ForProtocol three times (udp, tcp, icmp) is the intended
// use, mirroring how the teacher's Collector is shared across sessions
// and only the label values vary per call.
func (c *Collector) ForProtocol(proto string) natdb.StatsSink {
	return &protoSink{events: c.events, proto: proto}
}

type protoSink struct {
	events *prometheus.CounterVec
	proto  string
}

func (s *protoSink) Inc(stat natdb.Stat) {
	s.events.WithLabelValues(stat.String(), s.proto).Inc()
}
