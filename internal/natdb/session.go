package natdb

import "time"

// SessionEntry is one active v6<->v4 conversation anchored by a BIB entry.
// The back-reference to bib is weak in the ownership sense described in
// SPEC_FULL.md §9: it is never used to extend the BIB's lifetime, and the table
// always detaches (and, for UDP/ICMP, frees) sessions before their parent
// BIB entry is ever released.
type SessionEntry struct {
	Dst6 TransportAddr
	Dst4 TransportAddr

	State      State
	UpdateTime time.Time

	Stored *QueuedPacket // non-nil only for a type-2 attachment (TCP only)

	bib *BIBEntry

	treeHook *Node[TransportAddr, *SessionEntry] // node within bib.sessions

	timer              TimerType
	listPrev, listNext *SessionEntry // expirer list links; nil when detached

	slot int32
}

// SessionSnapshot is a read-only copy of a SessionEntry plus its BIB,
// handed to callers after the table lock has been released — the same
// copy-out convention as bfd.SessionSnapshot in the teacher.
type SessionSnapshot struct {
	Dst6       TransportAddr
	Dst4       TransportAddr
	State      State
	UpdateTime time.Time
	HasStored  bool
	BIB        BIBSnapshot
}

func (s *SessionEntry) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		Dst6:       s.Dst6,
		Dst4:       s.Dst4,
		State:      s.State,
		UpdateTime: s.UpdateTime,
		HasStored:  s.Stored != nil,
		BIB:        s.bib.Snapshot(),
	}
}
