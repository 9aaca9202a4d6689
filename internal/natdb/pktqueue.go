package natdb

import "time"

// QueuedPacket is a type-1 stored SYN packet: a v4-originated SYN with no
// matching BIB yet, held in case the v6 side follows within the SYN4
// window (spec.md §3/§4.D). Type-2 attachments (ADF-gated SYNs against an
// existing BIB) are stored directly on a session's Stored field instead —
// see SessionEntry.Stored — but both count against max_stored_pkts.
// Src4 is the pool4-facing address the SYN targeted (what becomes the new
// BIB's Src4 once a matching v6 packet arrives); Dst4 is the real v4 peer
// that sent it (what becomes the new session's Dst4). Dst6 is the
// translator's already-computed v6 representation of that peer.
type QueuedPacket struct {
	Dst6    TransportAddr
	Src4    TransportAddr
	Dst4    TransportAddr
	Arrival time.Time
	Raw     []byte

	listPrev, listNext *QueuedPacket
}

// QueuedPacketSnapshot is a read-only copy handed to an ICMPSink after the
// table lock has been released.
type QueuedPacketSnapshot struct {
	Dst6    TransportAddr
	Src4    TransportAddr
	Dst4    TransportAddr
	Arrival time.Time
}

func (p *QueuedPacket) Snapshot() QueuedPacketSnapshot {
	return QueuedPacketSnapshot{Dst6: p.Dst6, Src4: p.Src4, Dst4: p.Dst4, Arrival: p.Arrival}
}

// packetQueue holds type-1 nodes for one TCP table. It shares the table's
// lock (spec.md §5) — every method here assumes the caller already holds
// it. count tracks type-1 nodes plus type-2 attachments (which live on a
// SessionEntry.Stored instead of this list) so max_stored_pkts bounds
// both together, per spec.md §4.D.
type packetQueue struct {
	head, tail *QueuedPacket
	type1Count int
	attached   int
	capacity   int
}

func newPacketQueue(capacity int) *packetQueue {
	return &packetQueue{capacity: capacity}
}

// setCapacity updates max_stored_pkts in place, so a live config reload
// (Database.Configure) can tighten or loosen the bound without discarding
// whatever is already queued.
func (q *packetQueue) setCapacity(n int) { q.capacity = n }

func (q *packetQueue) total() int { return q.type1Count + q.attached }

// add stores pkt as a type-1 node if there is room, returning ErrNoSpace
// (stats SO1_FULL/SO2_FULL, decided by the caller) once max_stored_pkts
// is reached.
func (q *packetQueue) add(pkt *QueuedPacket) error {
	if q.total() >= q.capacity {
		return newErr(KindNoSpace, "pktqueue.add", nil)
	}
	pkt.listPrev = q.tail
	pkt.listNext = nil
	if q.tail != nil {
		q.tail.listNext = pkt
	} else {
		q.head = pkt
	}
	q.tail = pkt
	q.type1Count++
	return nil
}

func (q *packetQueue) remove(pkt *QueuedPacket) {
	if pkt.listPrev != nil {
		pkt.listPrev.listNext = pkt.listNext
	} else if q.head == pkt {
		q.head = pkt.listNext
	} else {
		return // not a member
	}
	if pkt.listNext != nil {
		pkt.listNext.listPrev = pkt.listPrev
	} else {
		q.tail = pkt.listPrev
	}
	pkt.listPrev, pkt.listNext = nil, nil
	q.type1Count--
}

// find returns the first type-1 node whose (dst6, src4) matches the given
// v6 destination and a candidate the MaskDomain would currently accept —
// used to resolve a v6-side Simultaneous Open (spec.md §4.D find).
func (q *packetQueue) find(dst6 TransportAddr, masks MaskDomain) *QueuedPacket {
	for n := q.head; n != nil; n = n.listNext {
		if n.Dst6 == dst6 && masks.Matches(n.Src4) {
			return n
		}
	}
	return nil
}

// exists reports whether an identical (src4, dst4) SYN is already queued —
// used to dedupe a retransmitted type-1 SYN (stats SO1_EXISTS) instead of
// storing a second copy.
func (q *packetQueue) exists(src4, dst4 TransportAddr) bool {
	for n := q.head; n != nil; n = n.listNext {
		if n.Src4 == src4 && n.Dst4 == dst4 {
			return true
		}
	}
	return false
}

// prepareClean detaches every type-1 node whose age is at least ttl into
// the returned slice, for the caller to ICMP-error after releasing the
// lock (spec.md §4.D prepare_clean, §4.E deferred emission). Nodes are
// appended in arrival order, so the first still-fresh node ends the walk.
func (q *packetQueue) prepareClean(now time.Time, ttl time.Duration) []*QueuedPacket {
	var expired []*QueuedPacket
	for n := q.head; n != nil; {
		if now.Sub(n.Arrival) < ttl {
			break
		}
		next := n.listNext
		q.remove(n)
		expired = append(expired, n)
		n = next
	}
	return expired
}

// rm evicts any type-1 node whose Src4 equals v4 — used by AddStatic when
// a newly added static BIB claims an address a stored packet was using
// (spec.md §4.D rm). RemoveRange and Flush do not call it.
func (q *packetQueue) rm(v4 TransportAddr) {
	for n := q.head; n != nil; {
		next := n.listNext
		if n.Src4 == v4 {
			q.remove(n)
		}
		n = next
	}
}

func (q *packetQueue) attachOne()  { q.attached++ }
func (q *packetQueue) detachOne() {
	if q.attached > 0 {
		q.attached--
	}
}
