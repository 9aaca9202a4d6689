// Package natdb implements the NAT64 Binding Information Base and Session
// Database (RFC 6146 Section 3).
//
// A Database holds three Tables, one per transport protocol (UDP, TCP,
// ICMP). Each Table pairs an ordered index keyed by the node's IPv6
// transport address with one keyed by the translator-assigned IPv4
// transport address, sharing the same arena-backed BIBEntry; every BIB
// entry in turn owns an ordered index of its SessionEntry children. TCP
// additionally runs the state machine in fsm.go and a packet queue for
// Simultaneous Open (pktqueue.go); UDP and ICMP never attach stored
// packets or run anything but the Established expirer list.
package natdb
