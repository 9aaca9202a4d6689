package natdb

// expirerList is a doubly-linked list of sessions ordered by UpdateTime
// ascending; a sweep walks from head and stops at the first entry whose
// deadline hasn't passed (spec.md §4.E). linkTail is used by every fate
// that re-arms a session's timer normally (handle_fate_timer in db.c);
// linkOrdered is FATE_TIMER_SLOW's contract, which inserts in place
// instead of assuming "now" is later than everything already queued
// (queue_unsorted_session).
type expirerList struct {
	which      TimerType
	head, tail *SessionEntry
	count      int
}

func newExpirerList(which TimerType) *expirerList {
	return &expirerList{which: which}
}

func (l *expirerList) empty() bool { return l.head == nil }

func (l *expirerList) linkTail(s *SessionEntry) {
	s.listPrev = l.tail
	s.listNext = nil
	if l.tail != nil {
		l.tail.listNext = s
	} else {
		l.head = s
	}
	l.tail = s
	l.count++
}

func (l *expirerList) linkOrdered(s *SessionEntry) {
	n := l.tail
	for n != nil && n.UpdateTime.After(s.UpdateTime) {
		n = n.listPrev
	}
	if n == nil {
		s.listPrev = nil
		s.listNext = l.head
		if l.head != nil {
			l.head.listPrev = s
		} else {
			l.tail = s
		}
		l.head = s
	} else {
		s.listPrev = n
		s.listNext = n.listNext
		if n.listNext != nil {
			n.listNext.listPrev = s
		} else {
			l.tail = s
		}
		n.listNext = s
	}
	l.count++
}

func (l *expirerList) unlink(s *SessionEntry) {
	if s.listPrev != nil {
		s.listPrev.listNext = s.listNext
	} else if l.head == s {
		l.head = s.listNext
	} else {
		return // s is not a member of l
	}
	if s.listNext != nil {
		s.listNext.listPrev = s.listPrev
	} else {
		l.tail = s.listPrev
	}
	s.listPrev, s.listNext = nil, nil
	l.count--
}

// expirerSet holds a table's three expirer lists and moves sessions
// between them without ever losing track of which list a session is
// currently linked into.
type expirerSet struct {
	established *expirerList
	transitory  *expirerList
	syn4        *expirerList
}

func newExpirerSet() *expirerSet {
	return &expirerSet{
		established: newExpirerList(TimerEstablished),
		transitory:  newExpirerList(TimerTransitory),
		syn4:        newExpirerList(TimerSYN4),
	}
}

func (e *expirerSet) list(t TimerType) *expirerList {
	switch t {
	case TimerTransitory:
		return e.transitory
	case TimerSYN4:
		return e.syn4
	default:
		return e.established
	}
}

// linked reports whether s is currently a member of its last-recorded
// list. A session that was never attached has listPrev == listNext == nil
// and is not any list's head, so this is conclusive.
func (e *expirerSet) linked(s *SessionEntry) bool {
	return s.listPrev != nil || s.listNext != nil || e.list(s.timer).head == s
}

func (e *expirerSet) detach(s *SessionEntry) {
	if !e.linked(s) {
		return
	}
	e.list(s.timer).unlink(s)
}

// attachTail moves s (detaching it from wherever it is first) to the tail
// of the `which` list — the "touch" operation run on every fate that
// updates UpdateTime normally.
func (e *expirerSet) attachTail(s *SessionEntry, which TimerType) {
	e.detach(s)
	s.timer = which
	e.list(which).linkTail(s)
}

// attachOrdered is the TIMER_SLOW variant: s is inserted at the position
// its UpdateTime dictates rather than assumed to be the newest.
func (e *expirerSet) attachOrdered(s *SessionEntry, which TimerType) {
	e.detach(s)
	s.timer = which
	e.list(which).linkOrdered(s)
}
