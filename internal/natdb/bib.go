package natdb

// BIBEntry is a Binding Information Base record: the (v6, v4, protocol)
// identity a table entry owns, plus its session sub-tree. A BIBEntry
// lives in exactly one protocol table and is indexed simultaneously by a
// v6-keyed tree node and a v4-keyed tree node (hook6/hook4) — one arena
// slot, two index containers, per the dual-indexing note in SPEC_FULL.md
// §9 rather than two owning trees.
type BIBEntry struct {
	Src6     TransportAddr
	Src4     TransportAddr
	Proto    Protocol
	IsStatic bool

	sessions *Tree[TransportAddr, *SessionEntry]

	hook6 *Node[TransportAddr, *BIBEntry]
	hook4 *Node[TransportAddr, *BIBEntry]

	slot int32
}

// BIBSnapshot is a read-only copy of a BIBEntry, handed to callers after
// the table lock has been released.
type BIBSnapshot struct {
	Src6     TransportAddr
	Src4     TransportAddr
	Proto    Protocol
	IsStatic bool
}

func (b *BIBEntry) Snapshot() BIBSnapshot {
	return BIBSnapshot{Src6: b.Src6, Src4: b.Src4, Proto: b.Proto, IsStatic: b.IsStatic}
}

func (b *BIBEntry) sessionCount() int {
	if b.sessions == nil {
		return 0
	}
	return b.sessions.Len()
}
