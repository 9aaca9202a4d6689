package natdb

import (
	"net/netip"
	"sync"
	"time"
)

// Result is returned by every add operation: a copy of the BIB entry the
// operation resolved to and, when one exists yet, the session.
type Result struct {
	BIB     BIBSnapshot
	Session SessionSnapshot
}

// probeJob is a deferred TCP probe, queued while the table lock is held and
// sent afterward (spec.md §4.D/§4.E "no suspension points while locked").
type probeJob struct {
	Src6, Dst6 TransportAddr
}

// deferredWork accumulates everything a locked table operation decided to
// do but can't do yet: arena releases, probes and ICMP errors all wait for
// the lock to be released before they run, per db.c's probes/rm_list
// pattern (post_fate, commit_delete_list).
type deferredWork struct {
	freeBIBs     []*BIBEntry
	freeSessions []*SessionEntry
	probes       []probeJob
	icmps        []*QueuedPacket
}

// Table is one protocol's BIB/session database: two BIB indices sharing
// one arena-backed entry (tree6 keyed by the real v6 node's address, tree4
// keyed by the translator-assigned v4 address), an arena-backed session
// tree per BIB, three expirer lists (UDP and ICMP only ever use the
// Established one), and — for TCP — the packet queue. One Table per
// Protocol; Database owns the three of them.
type Table struct {
	mu    sync.Mutex
	proto Protocol

	tree6 *Tree[TransportAddr, *BIBEntry]
	tree4 *Tree[TransportAddr, *BIBEntry]

	bibs     *bibArena
	sessions *sessionArena
	expirers *expirerSet
	queue    *packetQueue // nil outside the TCP table

	sessionCount int

	stats StatsSink
	probe ProbeSink
	icmp  ICMPSink
}

// NewTable builds an empty table for proto. bibCapacity/sessionCapacity
// size the two slab arenas (spec.md §4.B); maxStoredPkts seeds the TCP
// table's packet queue capacity and is ignored for UDP/ICMP.
func NewTable(proto Protocol, bibCapacity, sessionCapacity, maxStoredPkts int, stats StatsSink, probe ProbeSink, icmp ICMPSink) *Table {
	t := &Table{
		proto:    proto,
		tree6:    NewTree[TransportAddr, *BIBEntry](compareTransportAddr),
		tree4:    NewTree[TransportAddr, *BIBEntry](compareTransportAddr),
		bibs:     newBIBArena(bibCapacity),
		sessions: newSessionArena(sessionCapacity),
		expirers: newExpirerSet(),
		stats:    stats,
		probe:    probe,
		icmp:     icmp,
	}
	if proto == ProtoTCP {
		t.queue = newPacketQueue(maxStoredPkts)
	}
	return t
}

// SetStats replaces the table's StatsSink, e.g. to attach a
// protocol-labeled internal/natstats.Collector after construction.
func (t *Table) SetStats(sink StatsSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = sink
}

// SetProbe replaces the table's ProbeSink.
func (t *Table) SetProbe(sink ProbeSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probe = sink
}

// SetICMP replaces the table's ICMPSink.
func (t *Table) SetICMP(sink ICMPSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.icmp = sink
}

func aliasICMPDst4(proto Protocol, bibSrc4, dst4 TransportAddr) TransportAddr {
	if proto == ProtoICMP {
		dst4.Port = bibSrc4.Port
	}
	return dst4
}

// runDeferred performs every side effect a locked call staged, after the
// lock has been released. Order matches db.c's end-of-function sequence:
// arena frees first (cheap, no I/O), then probes and ICMP errors.
func (t *Table) runDeferred(work *deferredWork) {
	for _, s := range work.freeSessions {
		t.sessions.release(s)
	}
	for _, b := range work.freeBIBs {
		t.bibs.release(b)
	}
	if t.probe != nil {
		for _, p := range work.probes {
			_ = t.probe.SendProbe(p.Src6, p.Dst6, t.proto)
		}
	}
	if t.icmp != nil {
		for _, pkt := range work.icmps {
			_ = t.icmp.SendPortUnreachable(pkt.Snapshot())
		}
	}
}

// findBIB6 looks up src6, evicting it first if masks says it has gone
// stale (Issue #216: pool4 was reconfigured and the BIB's v4 address is no
// longer a candidate). A stale BIB reports as not-found so the caller
// falls through to the create path and picks a fresh address.
func (t *Table) findBIB6(src6 TransportAddr, masks MaskDomain, work *deferredWork) (*BIBEntry, bool) {
	node, found, _ := t.tree6.FindSlot(src6)
	if !found {
		return nil, false
	}
	bib := node.Value()
	if masks != nil && masks.IsDynamic() && !masks.Matches(bib.Src4) {
		t.evictBIB(bib, work)
		return nil, false
	}
	return bib, true
}

// evictBIB unlinks bib from both trees and stages it and every one of its
// sessions for release, converting any type-2 stored packet into a
// deferred ICMP error along the way (detach_bib/detach_sessions in db.c).
func (t *Table) evictBIB(bib *BIBEntry, work *deferredWork) {
	t.tree6.Erase(bib.hook6)
	t.tree4.Erase(bib.hook4)

	if bib.sessions != nil {
		for n := bib.sessions.First(); n != nil; n = bib.sessions.Next(n) {
			s := n.Value()
			t.expirers.detach(s)
			if s.Stored != nil {
				work.icmps = append(work.icmps, s.Stored)
				s.Stored = nil
				if t.queue != nil {
					t.queue.detachOne()
				}
			}
			work.freeSessions = append(work.freeSessions, s)
			t.sessionCount--
		}
	}
	work.freeBIBs = append(work.freeBIBs, bib)
}

// removeSessionLocked forgets one session: detaches its expirer link,
// converts any stored packet into a deferred ICMP error (db.c's rm()
// unconditionally runs handle_probe, unlike the silent kill_stored_pkt a
// collision callback's has_stored=false triggers), erases it from its
// BIB's session tree, and — if the BIB is dynamic and now empty — forgets
// the BIB too.
func (t *Table) removeSessionLocked(session *SessionEntry, work *deferredWork) {
	bib := session.bib
	t.expirers.detach(session)
	if session.Stored != nil {
		work.icmps = append(work.icmps, session.Stored)
		session.Stored = nil
		if t.queue != nil {
			t.queue.detachOne()
		}
	}
	bib.sessions.Erase(session.treeHook)
	work.freeSessions = append(work.freeSessions, session)
	t.sessionCount--

	if !bib.IsStatic && bib.sessions.Len() == 0 {
		t.tree6.Erase(bib.hook6)
		t.tree4.Erase(bib.hook4)
		work.freeBIBs = append(work.freeBIBs, bib)
	}
}

// killStoredPkt silently drops a type-2 stored packet — the reaction to a
// collision callback clearing HasStored, as opposed to removeSessionLocked
// and schedulePostFate, which turn it into a deferred ICMP error instead.
func (t *Table) killStoredPkt(session *SessionEntry) {
	if session.Stored == nil {
		return
	}
	session.Stored = nil
	if t.queue != nil {
		t.queue.detachOne()
	}
}

// schedulePostFate is FATE_PROBE's side effect: a session with a type-2
// stored packet converts it to a deferred ICMP error (the SO never
// completed, so there is nothing to probe); otherwise a real TCP probe is
// queued toward the v6 endpoint (db.c's handle_probe).
func (t *Table) schedulePostFate(session *SessionEntry, work *deferredWork) {
	if session.Stored != nil {
		work.icmps = append(work.icmps, session.Stored)
		session.Stored = nil
		if t.queue != nil {
			t.queue.detachOne()
		}
		return
	}
	work.probes = append(work.probes, probeJob{Src6: session.bib.Src6, Dst6: session.Dst6})
}

// applyCollision runs cb against session's mutable view, copies the
// resulting state back, and carries out whichever Fate it returned
// (decide_fate in db.c).
func (t *Table) applyCollision(session *SessionEntry, cb CollisionCallback, work *deferredWork) error {
	view := &SessionView{
		Dst6:       session.Dst6,
		Dst4:       session.Dst4,
		State:      session.State,
		UpdateTime: session.UpdateTime,
		HasStored:  session.Stored != nil,
		TimerType:  session.timer,
	}
	fate := cb(view)

	session.State = view.State
	session.UpdateTime = view.UpdateTime
	if !view.HasStored {
		t.killStoredPkt(session)
	}

	switch fate {
	case FateTimerEst:
		t.expirers.attachTail(session, TimerEstablished)
	case FateProbe:
		t.schedulePostFate(session, work)
		t.expirers.attachTail(session, TimerTransitory)
	case FateTimerTrans:
		t.expirers.attachTail(session, TimerTransitory)
	case FateRM:
		t.removeSessionLocked(session, work)
	case FatePreserve:
		// Leave state, timestamp and list membership untouched.
	case FateDrop:
		return newErr(KindTCPStateViolation, "tcp.collision", nil)
	case FateTimerSlow:
		t.expirers.attachOrdered(session, view.TimerType)
	}
	return nil
}

// allocateMask draws v4 transport addresses from masks until it finds one
// the v4 tree doesn't already hold, writing it into bib.Src4 and returning
// the insertion slot for it. db.c's find_available_mask additionally
// fast-paths "consecutive" candidates past the BIB immediately following
// the last collision to avoid re-descending the tree; this function does
// not: it ignores the consecutive flag Next returns and runs a full
// Tree.FindSlot (O(log n)) for every candidate.
func (t *Table) allocateMask(bib *BIBEntry, masks MaskDomain) (Slot[TransportAddr, *BIBEntry], error) {
	first, _, err := masks.Next()
	if err != nil {
		return Slot[TransportAddr, *BIBEntry]{}, err
	}
	candidate := first
	for {
		_, found, slot4 := t.tree4.FindSlot(candidate)
		if !found {
			bib.Src4 = candidate
			return slot4, nil
		}
		candidate, _, err = masks.Next()
		if err != nil {
			return Slot[TransportAddr, *BIBEntry]{}, err
		}
		if candidate == first {
			return Slot[TransportAddr, *BIBEntry]{}, newErr(KindPoolExhausted, "table.allocate_mask", nil)
		}
	}
}

// commitSession attaches a new session to an already-indexed bib.
func (t *Table) commitSession(bib *BIBEntry, slot Slot[TransportAddr, *SessionEntry], dst6, dst4 TransportAddr, state State, timer TimerType, candSession *SessionEntry, now time.Time) *SessionEntry {
	session := candSession
	*session = SessionEntry{Dst6: dst6, Dst4: dst4, State: state, UpdateTime: now, bib: bib, slot: session.slot}
	node := bib.sessions.Commit(slot, dst4, session)
	session.treeHook = node
	t.expirers.attachTail(session, timer)
	t.sessionCount++
	return session
}

// createBIBAndSession mints a brand new BIB entry (allocating its v4
// address from masks) plus its first session, and indexes both.
func (t *Table) createBIBAndSession(src6, dst6, dst4 TransportAddr, masks MaskDomain, state State, timer TimerType, candBIB *BIBEntry, candSession *SessionEntry, slot6 Slot[TransportAddr, *BIBEntry], now time.Time, work *deferredWork) (*BIBEntry, *SessionEntry, error) {
	bib := candBIB
	*bib = BIBEntry{Src6: src6, Proto: t.proto, sessions: NewTree[TransportAddr, *SessionEntry](compareTransportAddr), slot: bib.slot}

	slot4, err := t.allocateMask(bib, masks)
	if err != nil {
		work.freeBIBs = append(work.freeBIBs, candBIB)
		work.freeSessions = append(work.freeSessions, candSession)
		t.stats.Inc(StatPool4Exhausted)
		return nil, nil, err
	}

	sessDst4 := aliasICMPDst4(t.proto, bib.Src4, dst4)

	node6 := t.tree6.Commit(slot6, src6, bib)
	node4 := t.tree4.Commit(slot4, bib.Src4, bib)
	bib.hook6, bib.hook4 = node6, node4

	session := t.commitSession(bib, Slot[TransportAddr, *SessionEntry]{}, dst6, sessDst4, state, timer, candSession, now)
	return bib, session, nil
}

func (t *Table) anySessionToAddress(bib *BIBEntry, addr netip.Addr) bool {
	for n := bib.sessions.First(); n != nil; n = bib.sessions.Next(n) {
		if n.Value().Dst4.Addr == addr {
			return true
		}
	}
	return false
}

// promoteSO finishes a Simultaneous Open: a type-1 stored v4 SYN had no
// matching BIB; now a v6 SYN arrived asking for the same conversation.
// The pool4 address the v4 side implicitly chose (pkt.Src4) becomes the
// new BIB's address directly — no masks.Next() call needed, mirroring
// upgrade_pktqueue_session's "pretend @sos has been a valid V4 INIT
// session all along."
func (t *Table) promoteSO(pkt *QueuedPacket, tuple Tuple6, candBIB *BIBEntry, candSession *SessionEntry, now time.Time, work *deferredWork) (*BIBEntry, *SessionEntry, error) {
	_, found6, slot6 := t.tree6.FindSlot(tuple.Src6)
	_, found4, slot4 := t.tree4.FindSlot(pkt.Src4)
	if found6 || found4 {
		work.freeBIBs = append(work.freeBIBs, candBIB)
		work.freeSessions = append(work.freeSessions, candSession)
		return nil, nil, newErr(KindAlreadyExists, "promote_so", nil)
	}

	bib := candBIB
	*bib = BIBEntry{Src6: tuple.Src6, Src4: pkt.Src4, Proto: ProtoTCP, sessions: NewTree[TransportAddr, *SessionEntry](compareTransportAddr), slot: bib.slot}
	node6 := t.tree6.Commit(slot6, tuple.Src6, bib)
	node4 := t.tree4.Commit(slot4, pkt.Src4, bib)
	bib.hook6, bib.hook4 = node6, node4

	session := t.commitSession(bib, Slot[TransportAddr, *SessionEntry]{}, pkt.Dst6, pkt.Dst4, StateV4Init, TimerSYN4, candSession, now)
	return bib, session, nil
}

// Add6 resolves a UDP/ICMP packet arriving from the IPv6 side: dst4 is the
// translator's already-computed v4 representation of the destination
// (spec.md §4.C add6).
func (t *Table) Add6(tuple Tuple6, dst4 TransportAddr, masks MaskDomain) (Result, error) {
	if tuple.Proto != t.proto {
		return Result{}, newErr(KindUnknownProtocol, "add6", nil)
	}

	candBIB, err := t.bibs.alloc()
	if err != nil {
		return Result{}, err
	}
	candSession, err := t.sessions.alloc()
	if err != nil {
		t.bibs.release(candBIB)
		return Result{}, err
	}

	t.mu.Lock()
	var work deferredWork
	now := time.Now()

	bib, found := t.findBIB6(tuple.Src6, masks, &work)

	var session *SessionEntry
	var opErr error

	if found {
		work.freeBIBs = append(work.freeBIBs, candBIB)
		sessDst4 := aliasICMPDst4(t.proto, bib.Src4, dst4)
		node, sfound, sslot := bib.sessions.FindSlot(sessDst4)
		if sfound {
			work.freeSessions = append(work.freeSessions, candSession)
			session = node.Value()
			t.expirers.attachTail(session, TimerEstablished)
			session.UpdateTime = now
		} else {
			session = t.commitSession(bib, sslot, tuple.Dst6, sessDst4, StateEstablished, TimerEstablished, candSession, now)
		}
	} else {
		_, _, slot6 := t.tree6.FindSlot(tuple.Src6)
		bib, session, opErr = t.createBIBAndSession(tuple.Src6, tuple.Dst6, dst4, masks, StateEstablished, TimerEstablished, candBIB, candSession, slot6, now, &work)
	}

	t.mu.Unlock()
	t.runDeferred(&work)

	if opErr != nil {
		t.stats.Inc(StatUnknown6)
		return Result{}, opErr
	}
	res := Result{BIB: bib.Snapshot()}
	if session != nil {
		res.Session = session.Snapshot()
	}
	return res, nil
}

// AddTCP6 is Add6's TCP counterpart: isSYN tells it whether the incoming
// segment carries the SYN flag (needed to tell a CLOSED-state handshake
// attempt from a stray non-SYN packet), and cb decides the fate of any
// session already in flight (spec.md §4.C add_tcp6).
func (t *Table) AddTCP6(tuple Tuple6, dst4 TransportAddr, masks MaskDomain, isSYN bool, cb CollisionCallback) (Result, error) {
	if tuple.Proto != ProtoTCP || t.proto != ProtoTCP {
		return Result{}, newErr(KindUnknownProtocol, "add_tcp6", nil)
	}

	candBIB, err := t.bibs.alloc()
	if err != nil {
		return Result{}, err
	}
	candSession, err := t.sessions.alloc()
	if err != nil {
		t.bibs.release(candBIB)
		return Result{}, err
	}

	t.mu.Lock()
	var work deferredWork
	now := time.Now()

	bib, found := t.findBIB6(tuple.Src6, masks, &work)

	var session *SessionEntry
	var opErr error

	switch {
	case found:
		node, sfound, sslot := bib.sessions.FindSlot(dst4)
		switch {
		case sfound:
			work.freeBIBs = append(work.freeBIBs, candBIB)
			work.freeSessions = append(work.freeSessions, candSession)
			session = node.Value()
			if opErr = t.applyCollision(session, cb, &work); opErr != nil {
				t.stats.Inc(StatTCPSM)
			}
		case !isSYN:
			work.freeBIBs = append(work.freeBIBs, candBIB)
			work.freeSessions = append(work.freeSessions, candSession)
			// CLOSED beginning, non-SYN packet: report the BIB, create nothing.
		default:
			// New session under an already-existing BIB: no SO promotion
			// applies here (that only resolves a still-BIB-less v4 SYN).
			work.freeBIBs = append(work.freeBIBs, candBIB)
			session = t.commitSession(bib, sslot, tuple.Dst6, dst4, StateV6Init, TimerTransitory, candSession, now)
		}
	case !isSYN:
		work.freeBIBs = append(work.freeBIBs, candBIB)
		work.freeSessions = append(work.freeSessions, candSession)
		opErr = newErr(KindNoSuchEntry, "add_tcp6", nil)
		t.stats.Inc(StatNoBIB)
	default:
		if pkt := t.queue.find(tuple.Dst6, masks); pkt != nil {
			t.queue.remove(pkt)
			bib, session, opErr = t.promoteSO(pkt, tuple, candBIB, candSession, now, &work)
		} else {
			_, _, slot6 := t.tree6.FindSlot(tuple.Src6)
			bib, session, opErr = t.createBIBAndSession(tuple.Src6, tuple.Dst6, dst4, masks, StateV6Init, TimerTransitory, candBIB, candSession, slot6, now, &work)
		}
	}

	// Snapshot before runDeferred releases a session or BIB removed above.
	res := Result{}
	if opErr == nil && bib != nil {
		res.BIB = bib.Snapshot()
	}
	if opErr == nil && session != nil {
		res.Session = session.Snapshot()
	}
	t.mu.Unlock()
	t.runDeferred(&work)

	if opErr != nil {
		return Result{}, opErr
	}
	return res, nil
}

// Add4 resolves a UDP/ICMP packet arriving from the IPv4 side. tuple.Dst4
// is the pool4 address the packet targeted (the BIB key); dst6 is the
// translator's already-computed v6 representation of tuple.Src4 (spec.md
// §4.C add4).
func (t *Table) Add4(tuple Tuple4, dst6 TransportAddr, cfg *Config) (Result, error) {
	if tuple.Proto != t.proto {
		return Result{}, newErr(KindUnknownProtocol, "add4", nil)
	}

	t.mu.Lock()
	var work deferredWork
	now := time.Now()

	node, found := t.tree4.Find(tuple.Dst4)
	if !found {
		t.mu.Unlock()
		t.stats.Inc(StatNoBIB)
		return Result{}, newErr(KindNoSuchEntry, "add4", nil)
	}
	bib := node.Value()

	candSession, allocErr := t.sessions.alloc()
	if allocErr != nil {
		t.mu.Unlock()
		return Result{}, allocErr
	}

	sessKey := aliasICMPDst4(t.proto, bib.Src4, tuple.Src4)
	snode, sfound, sslot := bib.sessions.FindSlot(sessKey)

	var session *SessionEntry
	var opErr error

	switch {
	case sfound:
		work.freeSessions = append(work.freeSessions, candSession)
		session = snode.Value()
		t.expirers.attachTail(session, TimerEstablished)
		session.UpdateTime = now
	case cfg.DropByAddr && !t.anySessionToAddress(bib, tuple.Src4.Addr):
		work.freeSessions = append(work.freeSessions, candSession)
		t.stats.Inc(StatADF)
		opErr = newErr(KindAddressFilterRejected, "add4", nil)
	default:
		session = t.commitSession(bib, sslot, dst6, sessKey, StateEstablished, TimerEstablished, candSession, now)
	}

	t.mu.Unlock()
	t.runDeferred(&work)

	if opErr != nil {
		return Result{}, opErr
	}
	res := Result{BIB: bib.Snapshot()}
	if session != nil {
		res.Session = session.Snapshot()
	}
	return res, nil
}

// AddTCP4 resolves a TCP segment arriving from the IPv4 side. isSYN marks
// a handshake attempt; raw is the segment payload to hold onto if it ends
// up stored (type-1 when no BIB exists yet, type-2 when a BIB exists but
// address-dependent filtering withholds the new session). stored reports
// which of those happened, so the caller knows not to forward the packet
// and instead keep it until the matching v6 traffic (or the SYN4 timer)
// resolves things (spec.md §4.C/§4.D add_tcp4). A SYN that would otherwise
// open a brand-new session (no matching BIB, or a BIB with no matching
// session) is rejected with ErrExternalSYNProhibited when cfg.DropExternalTCP
// is set, before either packet-queue path is considered.
func (t *Table) AddTCP4(tuple Tuple4, dst6 TransportAddr, isSYN bool, raw []byte, cfg *Config, cb CollisionCallback) (res Result, stored bool, err error) {
	if tuple.Proto != ProtoTCP || t.proto != ProtoTCP {
		return Result{}, false, newErr(KindUnknownProtocol, "add_tcp4", nil)
	}

	t.mu.Lock()
	var work deferredWork
	now := time.Now()

	node, found := t.tree4.Find(tuple.Dst4)
	if !found {
		defer t.mu.Unlock()
		if !isSYN {
			t.stats.Inc(StatNoBIB)
			return Result{}, false, newErr(KindNoSuchEntry, "add_tcp4", nil)
		}
		if cfg.DropExternalTCP {
			t.stats.Inc(StatExternalSYNProhibited)
			return Result{}, false, newErr(KindExternalSYNProhibited, "add_tcp4", nil)
		}
		if t.queue.exists(tuple.Dst4, tuple.Src4) {
			t.stats.Inc(StatSO1Exists)
			return Result{}, true, nil
		}
		pkt := &QueuedPacket{Dst6: dst6, Src4: tuple.Dst4, Dst4: tuple.Src4, Arrival: now, Raw: raw}
		if addErr := t.queue.add(pkt); addErr != nil {
			t.stats.Inc(StatSO1Full)
			return Result{}, false, addErr
		}
		t.stats.Inc(StatSO1StoredPkt)
		return Result{}, true, nil
	}
	bib := node.Value()

	candSession, allocErr := t.sessions.alloc()
	if allocErr != nil {
		t.mu.Unlock()
		return Result{}, false, allocErr
	}

	snode, sfound, sslot := bib.sessions.FindSlot(tuple.Src4)

	var session *SessionEntry
	var opErr error

	switch {
	case sfound:
		work.freeSessions = append(work.freeSessions, candSession)
		session = snode.Value()
		if opErr = t.applyCollision(session, cb, &work); opErr != nil {
			t.stats.Inc(StatTCPSM)
		}
	case !isSYN:
		work.freeSessions = append(work.freeSessions, candSession)
		t.stats.Inc(StatNoBIB)
		opErr = newErr(KindNoSuchEntry, "add_tcp4", nil)
	case cfg.DropExternalTCP:
		work.freeSessions = append(work.freeSessions, candSession)
		t.stats.Inc(StatExternalSYNProhibited)
		opErr = newErr(KindExternalSYNProhibited, "add_tcp4", nil)
	case cfg.DropByAddr && !t.anySessionToAddress(bib, tuple.Src4.Addr):
		if t.queue.total() >= t.queue.capacity {
			work.freeSessions = append(work.freeSessions, candSession)
			t.stats.Inc(StatSO2Full)
			opErr = newErr(KindNoSpace, "add_tcp4", nil)
		} else {
			session = t.commitSession(bib, sslot, dst6, tuple.Src4, StateV4Init, TimerSYN4, candSession, now)
			session.Stored = &QueuedPacket{Dst6: dst6, Src4: tuple.Dst4, Dst4: tuple.Src4, Arrival: now, Raw: raw}
			t.queue.attachOne()
			t.stats.Inc(StatSO2StoredPkt)
			stored = true
		}
	default:
		session = t.commitSession(bib, sslot, dst6, tuple.Src4, StateV4Init, TimerTransitory, candSession, now)
	}

	t.mu.Unlock()
	t.runDeferred(&work)

	if opErr != nil {
		return Result{}, false, opErr
	}
	res = Result{BIB: bib.Snapshot()}
	if session != nil {
		res.Session = session.Snapshot()
	}
	return res, stored, nil
}

// Find6 looks up a BIB entry by its v6 side and returns a snapshot of it
// plus all of its current sessions.
func (t *Table) Find6(src6 TransportAddr) (BIBSnapshot, []SessionSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, found := t.tree6.Find(src6)
	if !found {
		return BIBSnapshot{}, nil, false
	}
	bib := node.Value()
	return bib.Snapshot(), snapshotSessions(bib), true
}

// Find4 looks up a BIB entry by its v4 side.
func (t *Table) Find4(dst4 TransportAddr) (BIBSnapshot, []SessionSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, found := t.tree4.Find(dst4)
	if !found {
		return BIBSnapshot{}, nil, false
	}
	bib := node.Value()
	return bib.Snapshot(), snapshotSessions(bib), true
}

func snapshotSessions(bib *BIBEntry) []SessionSnapshot {
	if bib.sessions.Len() == 0 {
		return nil
	}
	out := make([]SessionSnapshot, 0, bib.sessions.Len())
	for n := bib.sessions.First(); n != nil; n = bib.sessions.Next(n) {
		out = append(out, n.Value().Snapshot())
	}
	return out
}

// ForEach walks BIB entries in v4-address order starting at (or just
// after) start, stopping when cb returns false. Used by the admin
// listing endpoint to paginate without holding the lock for the whole
// table (spec.md §4.F).
func (t *Table) ForEach(start TransportAddr, inclusive bool, cb func(BIBSnapshot) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tree4.ForEach(start, inclusive, func(_ TransportAddr, bib *BIBEntry) bool {
		return cb(bib.Snapshot())
	})
}

// ForEachSession walks every session of the BIB keyed by src4 in
// dst4-address order starting at (or just after) start.
func (t *Table) ForEachSession(src4, start TransportAddr, inclusive bool, cb func(SessionSnapshot) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, found := t.tree4.Find(src4)
	if !found {
		return false
	}
	node.Value().sessions.ForEach(start, inclusive, func(_ TransportAddr, s *SessionEntry) bool {
		return cb(s.Snapshot())
	})
	return true
}

// AddStatic registers a manually configured, non-expiring BIB entry
// (spec.md §4.C add_static). Any stored packet whose Src4 collides with
// the new entry's v4 address is dropped silently, matching db.c's
// bib_add's call into pktqueue_rm before indexing the new entry.
func (t *Table) AddStatic(src6, src4 TransportAddr) (BIBSnapshot, error) {
	candBIB, err := t.bibs.alloc()
	if err != nil {
		return BIBSnapshot{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, found := t.tree6.Find(src6); found {
		t.bibs.release(candBIB)
		return BIBSnapshot{}, newErr(KindAlreadyExists, "add_static", nil)
	}
	if _, found := t.tree4.Find(src4); found {
		t.bibs.release(candBIB)
		return BIBSnapshot{}, newErr(KindAlreadyExists, "add_static", nil)
	}

	if t.queue != nil {
		t.queue.rm(src4)
	}

	bib := candBIB
	*bib = BIBEntry{Src6: src6, Src4: src4, Proto: t.proto, IsStatic: true, sessions: NewTree[TransportAddr, *SessionEntry](compareTransportAddr), slot: bib.slot}
	_, _, slot6 := t.tree6.FindSlot(src6)
	_, _, slot4 := t.tree4.FindSlot(src4)
	bib.hook6 = t.tree6.Commit(slot6, src6, bib)
	bib.hook4 = t.tree4.Commit(slot4, src4, bib)

	return bib.Snapshot(), nil
}

// Remove deletes the BIB entry keyed by (src6, src4), static or not, along
// with every one of its sessions (spec.md §4.C remove / bib_rm).
func (t *Table) Remove(src6, src4 TransportAddr) error {
	t.mu.Lock()
	node, found := t.tree6.Find(src6)
	if !found {
		t.mu.Unlock()
		return ErrNoSuchEntry
	}
	bib := node.Value()
	if bib.Src4 != src4 {
		t.mu.Unlock()
		return ErrNoSuchEntry
	}

	var work deferredWork
	t.evictBIB(bib, &work)
	t.mu.Unlock()
	t.runDeferred(&work)
	return nil
}

// RemoveRange deletes every BIB entry whose v4 address falls in
// [lo, hi] inclusive (spec.md §4.C remove_range). Entries are collected
// into a snapshot slice before any eviction, so the walk over tree4 never
// runs while evictBIB is erasing nodes from and rebalancing that tree.
func (t *Table) RemoveRange(lo, hi TransportAddr) int {
	t.mu.Lock()

	var targets []*BIBEntry
	for n := t.tree4.Seek(lo, true); n != nil; n = t.tree4.Next(n) {
		if compareTransportAddr(n.Key(), hi) > 0 {
			break
		}
		targets = append(targets, n.Value())
	}

	var work deferredWork
	for _, bib := range targets {
		t.evictBIB(bib, &work)
	}

	t.mu.Unlock()
	t.runDeferred(&work)
	return len(targets)
}

// Flush deletes every entry in the table (spec.md §4.C flush). Same
// snapshot-then-evict shape as RemoveRange, for the same reason.
func (t *Table) Flush() int {
	t.mu.Lock()

	var targets []*BIBEntry
	for n := t.tree4.First(); n != nil; n = t.tree4.Next(n) {
		targets = append(targets, n.Value())
	}

	var work deferredWork
	for _, bib := range targets {
		t.evictBIB(bib, &work)
	}

	t.mu.Unlock()
	t.runDeferred(&work)
	return len(targets)
}

// Clean runs one pass of the expiry engine (spec.md §4.E, §5's periodic
// sweep): every session whose UpdateTime has aged past its class's TTL is
// handed to the TCP state machine (for the TCP table) or removed outright
// (for UDP/ICMP), and any type-1 packets that outlived the SYN TTL are
// handed back for the caller to ICMP-error.
func (t *Table) Clean(cfg *Config, now time.Time) {
	t.mu.Lock()
	var work deferredWork

	if t.proto == ProtoTCP {
		t.sweep(t.expirers.established, cfg.TTL.TCPEst, now, NewTCPCollision(EventTimer, now), &work)
		t.sweep(t.expirers.transitory, cfg.TTL.TCPTrans, now, NewTCPCollision(EventTimer, now), &work)
		t.sweep(t.expirers.syn4, cfg.TTL.SYN, now, NewTCPCollision(EventTimer, now), &work)
		if t.queue != nil {
			for _, pkt := range t.queue.prepareClean(now, cfg.TTL.SYN) {
				work.icmps = append(work.icmps, pkt)
			}
		}
	} else {
		ttl := cfg.TTL.UDP
		if t.proto == ProtoICMP {
			ttl = cfg.TTL.ICMP
		}
		t.sweepExpire(t.expirers.established, ttl, now, &work)
	}

	t.mu.Unlock()
	t.runDeferred(&work)
}

// sweep walks list from its head (oldest UpdateTime first) removing or
// re-filing sessions whose age is at least ttl, applying cb to decide
// each one's fate, and stops at the first still-fresh session — mirroring
// db.c's expire loops, which rely on the lists staying ordered by update
// time (established/transitory via attachTail, syn4 via attachOrdered).
func (t *Table) sweep(list *expirerList, ttl time.Duration, now time.Time, cb CollisionCallback, work *deferredWork) {
	for !list.empty() {
		session := list.head
		if now.Sub(session.UpdateTime) < ttl {
			return
		}
		_ = t.applyCollision(session, cb, work)
	}
}

// sweepExpire is sweep's non-TCP counterpart: no state machine, no
// probing, just unconditional removal once a session ages out.
func (t *Table) sweepExpire(list *expirerList, ttl time.Duration, now time.Time, work *deferredWork) {
	for !list.empty() {
		session := list.head
		if now.Sub(session.UpdateTime) < ttl {
			return
		}
		t.removeSessionLocked(session, work)
	}
}
