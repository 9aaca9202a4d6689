package natdb

import (
	"net/netip"
	"sync"
)

// MaskDomain is the pool4 address/port generator: an external collaborator
// per spec.md §1 that the table only consumes. Next yields the next
// candidate v4 transport address for a fresh BIB entry; consecutive
// reports whether that candidate is the immediate successor (same
// address, port+1) of the previously-yielded candidate; Table ignores it
// and searches the v4 tree in full for every candidate (see
// Table.allocateMask). Matches reports whether an address
// is still covered by the domain's current configuration (used to detect
// Issue #216 staleness); IsDynamic distinguishes a reconfigurable pool
// from one that can never go stale; Mark identifies which fwmark/pool
// this domain represents, for the "pool exhausted, mark M" error.
type MaskDomain interface {
	Next() (addr TransportAddr, consecutive bool, err error)
	Matches(TransportAddr) bool
	IsDynamic() bool
	Mark() uint32
}

// addrRange is one contiguous (address, port-low, port-high) candidate
// range, the unit pool4.c iterates over.
type addrRange struct {
	Addr   netip.Addr
	PortLo uint16
	PortHi uint16
}

func (r addrRange) contains(t TransportAddr) bool {
	return t.Addr == r.Addr && t.Port >= r.PortLo && t.Port <= r.PortHi
}

// maskCursor is the round-robin walk shared by StaticMaskDomain and
// RingMaskDomain; the two types differ only in whether ranges can be
// swapped out after construction.
type maskCursor struct {
	mu     sync.Mutex
	mark   uint32
	ranges []addrRange
	ri     int
	port   uint16
	inited bool
}

func (c *maskCursor) next() (TransportAddr, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.ranges) == 0 {
		return TransportAddr{}, false, newErr(KindPoolExhausted, "mask_domain.next", nil)
	}

	if !c.inited {
		c.ri = 0
		c.port = c.ranges[0].PortLo
		c.inited = true
		return TransportAddr{Addr: c.ranges[0].Addr, Port: c.port}, false, nil
	}

	consecutive := true
	r := c.ranges[c.ri]
	if c.port < r.PortHi {
		c.port++
	} else {
		c.ri = (c.ri + 1) % len(c.ranges)
		c.port = c.ranges[c.ri].PortLo
		consecutive = false
	}
	return TransportAddr{Addr: c.ranges[c.ri].Addr, Port: c.port}, consecutive, nil
}

func (c *maskCursor) matches(t TransportAddr) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.ranges {
		if r.contains(t) {
			return true
		}
	}
	return false
}

func (c *maskCursor) reconfigure(ranges []addrRange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ranges = ranges
	c.ri = 0
	c.inited = false
}

// StaticMaskDomain round-robins a fixed, never-changing list of ranges.
// IsDynamic is always false, so callers never run the Issue #216 eviction
// path against it — useful for tests, where the pool truly cannot go
// stale mid-run.
type StaticMaskDomain struct {
	cursor maskCursor
}

// NewStaticMaskDomain builds a domain over one or more
// (address, portLow, portHigh) ranges.
func NewStaticMaskDomain(mark uint32, ranges ...addrRange) *StaticMaskDomain {
	return &StaticMaskDomain{cursor: maskCursor{mark: mark, ranges: ranges}}
}

func (d *StaticMaskDomain) Next() (TransportAddr, bool, error) { return d.cursor.next() }
func (d *StaticMaskDomain) Matches(t TransportAddr) bool       { return d.cursor.matches(t) }
func (d *StaticMaskDomain) IsDynamic() bool                    { return false }
func (d *StaticMaskDomain) Mark() uint32                       { return d.cursor.mark }

// RingMaskDomain is a reconfigurable pool4 stand-in: Reconfigure atomically
// swaps the candidate ranges, which is how tests exercise Issue #216 (a
// BIB's v4 address falling outside the newly-configured ranges). IsDynamic
// is always true.
type RingMaskDomain struct {
	cursor maskCursor
}

func NewRingMaskDomain(mark uint32, ranges ...addrRange) *RingMaskDomain {
	return &RingMaskDomain{cursor: maskCursor{mark: mark, ranges: ranges}}
}

// Reconfigure replaces the candidate ranges. Existing BIB entries whose
// v4 address is no longer covered become stale — the table detects this
// lazily, on the next v6 packet for that entry (Issue #216).
func (d *RingMaskDomain) Reconfigure(ranges ...addrRange) { d.cursor.reconfigure(ranges) }

func (d *RingMaskDomain) Next() (TransportAddr, bool, error) { return d.cursor.next() }
func (d *RingMaskDomain) Matches(t TransportAddr) bool       { return d.cursor.matches(t) }
func (d *RingMaskDomain) IsDynamic() bool                    { return true }
func (d *RingMaskDomain) Mark() uint32                       { return d.cursor.mark }
