package natdb

import (
	"errors"
	"net/netip"
	"testing"
	"time"
)

func TestPacketQueueCapacity(t *testing.T) {
	t.Parallel()
	q := newPacketQueue(2)
	addr := netip.MustParseAddr("203.0.113.1")

	p1 := &QueuedPacket{Src4: TransportAddr{Addr: addr, Port: 1}}
	p2 := &QueuedPacket{Src4: TransportAddr{Addr: addr, Port: 2}}
	p3 := &QueuedPacket{Src4: TransportAddr{Addr: addr, Port: 3}}

	if err := q.add(p1); err != nil {
		t.Fatalf("add p1: %v", err)
	}
	if err := q.add(p2); err != nil {
		t.Fatalf("add p2: %v", err)
	}
	if err := q.add(p3); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("add p3: %v, want ErrNoSpace", err)
	}
}

func TestPacketQueueAttachedCountsTowardCapacity(t *testing.T) {
	t.Parallel()
	q := newPacketQueue(1)
	q.attachOne()

	p := &QueuedPacket{}
	if err := q.add(p); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("add with 1 attached: %v, want ErrNoSpace", err)
	}

	q.detachOne()
	if err := q.add(p); err != nil {
		t.Fatalf("add after detach: %v", err)
	}
}

func TestPacketQueuePrepareCleanExpiresOldest(t *testing.T) {
	t.Parallel()
	q := newPacketQueue(10)
	now := time.Unix(1000, 0)

	old := &QueuedPacket{Arrival: now.Add(-10 * time.Second)}
	fresh := &QueuedPacket{Arrival: now.Add(-1 * time.Second)}
	if err := q.add(old); err != nil {
		t.Fatal(err)
	}
	if err := q.add(fresh); err != nil {
		t.Fatal(err)
	}

	expired := q.prepareClean(now, 6*time.Second)
	if len(expired) != 1 || expired[0] != old {
		t.Fatalf("expired = %v, want [old]", expired)
	}
	if q.type1Count != 1 {
		t.Fatalf("type1Count = %d, want 1", q.type1Count)
	}
}

func TestPacketQueueFindMatchesMask(t *testing.T) {
	t.Parallel()
	q := newPacketQueue(10)
	v6 := netip.MustParseAddr("64:ff9b::203.0.113.5")
	v4 := netip.MustParseAddr("192.0.2.1")
	dst6 := TransportAddr{Addr: v6, Port: 80}

	pkt := &QueuedPacket{Dst6: dst6, Src4: TransportAddr{Addr: v4, Port: 61001}}
	if err := q.add(pkt); err != nil {
		t.Fatal(err)
	}

	masks := NewStaticMaskDomain(1, addrRange{Addr: v4, PortLo: 61001, PortHi: 61001})
	if found := q.find(dst6, masks); found != pkt {
		t.Fatalf("find = %v, want pkt", found)
	}

	otherDst := TransportAddr{Addr: v6, Port: 81}
	if found := q.find(otherDst, masks); found != nil {
		t.Fatalf("find with mismatched dst6 = %v, want nil", found)
	}
}

func TestPacketQueueRmEvictsBySrc4(t *testing.T) {
	t.Parallel()
	q := newPacketQueue(10)
	v4 := netip.MustParseAddr("192.0.2.1")
	victim := TransportAddr{Addr: v4, Port: 61001}

	p1 := &QueuedPacket{Src4: victim}
	p2 := &QueuedPacket{Src4: TransportAddr{Addr: v4, Port: 61002}}
	q.add(p1)
	q.add(p2)

	q.rm(victim)
	if q.type1Count != 1 {
		t.Fatalf("type1Count after rm = %d, want 1", q.type1Count)
	}
	if q.head != p2 {
		t.Fatalf("head after rm = %v, want p2", q.head)
	}
}
