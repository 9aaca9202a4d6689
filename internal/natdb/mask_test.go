package natdb

import (
	"errors"
	"net/netip"
	"testing"
)

func TestStaticMaskDomainRoundRobin(t *testing.T) {
	t.Parallel()
	addr := netip.MustParseAddr("192.0.2.1")
	d := NewStaticMaskDomain(1, addrRange{Addr: addr, PortLo: 61001, PortHi: 61002})

	first, consecutive, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Port != 61001 || consecutive {
		t.Fatalf("first = %v, consecutive=%v, want port 61001, consecutive=false", first, consecutive)
	}

	second, consecutive, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Port != 61002 || !consecutive {
		t.Fatalf("second = %v, consecutive=%v, want port 61002, consecutive=true", second, consecutive)
	}

	third, consecutive, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if third.Port != 61001 || consecutive {
		t.Fatalf("third = %v, consecutive=%v, want wraparound to 61001, consecutive=false", third, consecutive)
	}
}

func TestMaskDomainExhaustedOnEmptyRanges(t *testing.T) {
	t.Parallel()
	d := NewStaticMaskDomain(1)
	if _, _, err := d.Next(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Next on empty domain: %v, want ErrPoolExhausted", err)
	}
}

func TestRingMaskDomainReconfigureInvalidatesMatches(t *testing.T) {
	t.Parallel()
	a1 := netip.MustParseAddr("192.0.2.1")
	a2 := netip.MustParseAddr("192.0.2.2")
	d := NewRingMaskDomain(1, addrRange{Addr: a1, PortLo: 61001, PortHi: 61001})

	stale := TransportAddr{Addr: a1, Port: 61001}
	if !d.Matches(stale) {
		t.Fatalf("expected initial range to match")
	}

	d.Reconfigure(addrRange{Addr: a2, PortLo: 61001, PortHi: 61001})
	if d.Matches(stale) {
		t.Fatalf("expected reconfigured domain to no longer match the old address")
	}
	if !d.IsDynamic() {
		t.Fatalf("RingMaskDomain.IsDynamic() = false, want true")
	}
}
