package natdb

import (
	"testing"
	"time"
)

func mkSession(t time.Time) *SessionEntry {
	return &SessionEntry{UpdateTime: t}
}

func TestExpirerSetAttachTailOrder(t *testing.T) {
	t.Parallel()
	set := newExpirerSet()
	base := time.Unix(1000, 0)

	s1 := mkSession(base)
	s2 := mkSession(base.Add(time.Second))
	s3 := mkSession(base.Add(2 * time.Second))

	set.attachTail(s1, TimerEstablished)
	set.attachTail(s2, TimerEstablished)
	set.attachTail(s3, TimerEstablished)

	var order []*SessionEntry
	for n := set.established.head; n != nil; n = n.listNext {
		order = append(order, n)
	}
	if len(order) != 3 || order[0] != s1 || order[1] != s2 || order[2] != s3 {
		t.Fatalf("unexpected order: %v", order)
	}

	// Re-touching s1 should move it to the tail.
	s1.UpdateTime = base.Add(3 * time.Second)
	set.attachTail(s1, TimerEstablished)

	order = nil
	for n := set.established.head; n != nil; n = n.listNext {
		order = append(order, n)
	}
	if len(order) != 3 || order[2] != s1 {
		t.Fatalf("s1 not moved to tail: %v", order)
	}
}

func TestExpirerSetMoveAcrossLists(t *testing.T) {
	t.Parallel()
	set := newExpirerSet()
	s := mkSession(time.Unix(1, 0))

	set.attachTail(s, TimerEstablished)
	if set.established.count != 1 {
		t.Fatalf("established.count = %d, want 1", set.established.count)
	}

	set.attachTail(s, TimerTransitory)
	if set.established.count != 0 {
		t.Fatalf("established.count after move = %d, want 0", set.established.count)
	}
	if set.transitory.count != 1 {
		t.Fatalf("transitory.count = %d, want 1", set.transitory.count)
	}
	if s.timer != TimerTransitory {
		t.Fatalf("s.timer = %v, want TimerTransitory", s.timer)
	}
}

func TestExpirerListOrderedInsert(t *testing.T) {
	t.Parallel()
	set := newExpirerSet()
	base := time.Unix(1000, 0)

	late := mkSession(base.Add(10 * time.Second))
	set.attachTail(late, TimerSYN4)

	early := mkSession(base)
	set.attachOrdered(early, TimerSYN4)

	if set.syn4.head != early || set.syn4.tail != late {
		t.Fatalf("ordered insert did not preserve ascending order")
	}
}

func TestExpirerSetDetach(t *testing.T) {
	t.Parallel()
	set := newExpirerSet()
	s1 := mkSession(time.Unix(1, 0))
	s2 := mkSession(time.Unix(2, 0))
	set.attachTail(s1, TimerEstablished)
	set.attachTail(s2, TimerEstablished)

	set.detach(s1)
	if set.established.count != 1 {
		t.Fatalf("count after detach = %d, want 1", set.established.count)
	}
	if set.established.head != s2 {
		t.Fatalf("head after detach = %v, want s2", set.established.head)
	}

	// Detaching again is a no-op.
	set.detach(s1)
	if set.established.count != 1 {
		t.Fatalf("double-detach changed count")
	}
}
