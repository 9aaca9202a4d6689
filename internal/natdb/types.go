package natdb

import (
	"fmt"
	"net/netip"
)

// Protocol identifies which of the three per-protocol tables an operation
// targets. TCP gets its own state machine and expirer lists; UDP and ICMP
// share the simpler "one Established list" shape.
type Protocol uint8

const (
	ProtoUnknown Protocol = iota
	ProtoTCP
	ProtoUDP
	ProtoICMP
)

func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	case ProtoICMP:
		return "ICMP"
	default:
		return "unknown"
	}
}

// TransportAddr is an (address, port) pair. For ICMP "port" carries the
// ICMP identifier, mirroring db.c's use of ipvX_transport_addr for all
// three protocols.
type TransportAddr struct {
	Addr netip.Addr
	Port uint16
}

func (t TransportAddr) String() string {
	return fmt.Sprintf("%s#%d", t.Addr, t.Port)
}

func (t TransportAddr) IsValid() bool { return t.Addr.IsValid() }

// compareTransportAddr orders first by address bytes, then by port. Used
// as the three-way comparator for every tree keyed by a TransportAddr.
func compareTransportAddr(a, b TransportAddr) int {
	if c := a.Addr.Compare(b.Addr); c != 0 {
		return c
	}
	switch {
	case a.Port < b.Port:
		return -1
	case a.Port > b.Port:
		return 1
	default:
		return 0
	}
}

// Tuple6 is the 5-tuple (well, 4-tuple plus protocol) of a packet arriving
// from the IPv6 side: a real IPv6 node talking to the NAT64's synthesised
// representation of an IPv4 destination.
type Tuple6 struct {
	Src6  TransportAddr
	Dst6  TransportAddr
	Proto Protocol
}

// Tuple4 is the tuple of a packet arriving from the IPv4 side: a real IPv4
// peer talking to one of the translator's pool4 transport addresses.
type Tuple4 struct {
	Src4  TransportAddr
	Dst4  TransportAddr
	Proto Protocol
}

// State is the TCP session state machine's state, per spec.md §4.C. CLOSED
// is implicit (absence of a session) and has no State value of its own;
// ESTABLISHED is the zero value, which also makes it the natural default
// for UDP/ICMP sessions that never run through the state machine.
type State uint8

const (
	StateEstablished State = iota
	StateV6Init
	StateV4Init
	StateV4FinRcv
	StateV6FinRcv
	StateV4FinV6FinRcv
	StateTrans
)

func (s State) String() string {
	switch s {
	case StateEstablished:
		return "ESTABLISHED"
	case StateV6Init:
		return "V6_INIT"
	case StateV4Init:
		return "V4_INIT"
	case StateV4FinRcv:
		return "V4_FIN_RCV"
	case StateV6FinRcv:
		return "V6_FIN_RCV"
	case StateV4FinV6FinRcv:
		return "V4_FIN_V6_FIN_RCV"
	case StateTrans:
		return "TRANS"
	default:
		return "UNKNOWN"
	}
}

// TimerType identifies which of a table's three expirer lists a session
// belongs to.
type TimerType uint8

const (
	TimerEstablished TimerType = iota
	TimerTransitory
	TimerSYN4
)

func (t TimerType) String() string {
	switch t {
	case TimerEstablished:
		return "established"
	case TimerTransitory:
		return "transitory"
	case TimerSYN4:
		return "syn4"
	default:
		return "unknown"
	}
}
