package natdb

import "time"

// TTLConfig holds the idle timeouts for each session class (spec.md §6).
// TCPEst and TCPTrans apply to TCP's Established and Transitory lists
// respectively; UDP and ICMP apply to their own tables' single
// Established list; SYN bounds how long a type-1 stored SYN, or a
// type-2 session still in V4_INIT, waits for its v6 half.
type TTLConfig struct {
	TCPEst   time.Duration
	TCPTrans time.Duration
	UDP      time.Duration
	ICMP     time.Duration
	SYN      time.Duration
}

// DefaultTTLConfig matches Jool's stock session-timeout defaults.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		TCPEst:   2 * time.Hour,
		TCPTrans: 4 * time.Minute,
		UDP:      300 * time.Second,
		ICMP:     60 * time.Second,
		SYN:      6 * time.Second,
	}
}

// Config bundles the knobs a Table consults on the add path: whether
// address-dependent filtering rejects (or, for TCP, gates storage of) a
// v4-side packet lacking a prior v6 session, and how many packets may sit
// in the table's packet queue at once (spec.md §4.D, §6).
//
// BIBLogging, SessionLogging, FArgs and Plateau round out the wire shape
// of Jool's session record (spec.md §6) but belong to external
// collaborators the core never touches directly: neither this package
// nor cmd/nat64d reads the two logging flags or emits BIB/session log
// lines, and Plateau only matters to the translation/ICMP
// layer this package never performs. FArgs is carried for the same
// reason db.c carries it alongside drop_by_addr: a future finer-grained
// address-dependent-filtering mode keyed on a subset of the 4-tuple,
// which this table does not implement — anySessionToAddress always
// compares the full peer address, equivalent to FArgs's default bitmask.
type Config struct {
	TTL             TTLConfig
	DropByAddr      bool
	DropExternalTCP bool
	MaxStoredPkts   int
	BIBLogging      bool
	SessionLogging  bool
	FArgs           uint8
	Plateau         []int
}

// DefaultFArgs mirrors Jool's DEFAULT_F_ARGS (src addr + src port + dst addr).
const DefaultFArgs uint8 = 0b1011

// DefaultPlateau mirrors Jool's stock MTU plateau list (RFC 1191).
func DefaultPlateau() []int {
	return []int{65535, 32000, 17914, 8166, 4352, 2002, 1492, 1006, 508, 296, 68}
}

// DefaultConfig mirrors Jool's module defaults.
func DefaultConfig() Config {
	return Config{
		TTL:             DefaultTTLConfig(),
		DropByAddr:      false,
		DropExternalTCP: false,
		MaxStoredPkts:   10,
		BIBLogging:      false,
		SessionLogging:  false,
		FArgs:           DefaultFArgs,
		Plateau:         DefaultPlateau(),
	}
}
