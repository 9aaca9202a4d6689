package natdb

import "time"

// Event is a stimulus fed into the TCP state machine: either a flag
// observed on an incoming packet, or a timer tick delivered by the expiry
// engine when a session's deadline passes.
type Event uint8

const (
	EventV6SYN Event = iota
	EventV4SYN
	EventV6FIN
	EventV4FIN
	EventV6RST
	EventV4RST
	EventData
	EventTimer
)

func (e Event) String() string {
	switch e {
	case EventV6SYN:
		return "v6-syn"
	case EventV4SYN:
		return "v4-syn"
	case EventV6FIN:
		return "v6-fin"
	case EventV4FIN:
		return "v4-fin"
	case EventV6RST:
		return "v6-rst"
	case EventV4RST:
		return "v4-rst"
	case EventData:
		return "data"
	case EventTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// Fate is the decision a collision callback returns for an existing
// session, per spec.md §4.C. It is deliberately a plain tagged value
// rather than a polymorphic callback result — fate dispatch as a tagged
// variant, per the design notes in SPEC_FULL.md §9 — so the table can
// switch on it without any dynamic dispatch.
type Fate uint8

const (
	FateTimerEst Fate = iota + 1
	FateTimerTrans
	FateTimerSlow
	FateProbe
	FateRM
	FatePreserve
	FateDrop
)

func (f Fate) String() string {
	switch f {
	case FateTimerEst:
		return "TIMER_EST"
	case FateTimerTrans:
		return "TIMER_TRANS"
	case FateTimerSlow:
		return "TIMER_SLOW"
	case FateProbe:
		return "PROBE"
	case FateRM:
		return "RM"
	case FatePreserve:
		return "PRESERVE"
	case FateDrop:
		return "DROP"
	default:
		return "unknown"
	}
}

// tcpFSM is the pure (state, event) -> (state, fate) function backing the
// default CollisionCallback. It has no access to the table, the arena, or
// any lock — the same shape as the teacher's bfd FSM in internal/bfd/fsm.go.
//
// Reconstructed from RFC 6146 §3.5.2 and the state names used throughout
// original_source/src/module/nat64/bib/db.c and constants.h; the upstream
// tcp.c that would hold Jool's own copy of this table was not part of the
// retrieved source, so the transitions below are this package's own
// RFC-faithful rendition rather than a line-for-line port.
func tcpFSM(state State, ev Event) (State, Fate) {
	switch state {
	case StateV6Init:
		switch ev {
		case EventV6SYN:
			return StateV6Init, FateTimerTrans // retransmitted SYN, re-arm
		case EventV4SYN:
			return StateEstablished, FateTimerEst // SYN-ACK from v4 side
		case EventV6FIN, EventV4FIN:
			return StateTrans, FateTimerTrans // aborted before handshake completed
		case EventV6RST, EventV4RST:
			return StateTrans, FateRM
		case EventTimer:
			return StateTrans, FateRM // handshake never completed in time
		default:
			return state, FatePreserve
		}

	case StateV4Init:
		switch ev {
		case EventV4SYN:
			return StateV4Init, FateTimerSlow // retransmitted SYN on SYN4 list
		case EventV6SYN:
			return StateEstablished, FateTimerEst // v6 side completes the SO handshake
		case EventV6FIN, EventV4FIN:
			return StateTrans, FateTimerTrans
		case EventV6RST, EventV4RST:
			return StateTrans, FateRM
		case EventTimer:
			return StateTrans, FateRM // SO never completed within the SYN4 window
		default:
			return state, FatePreserve
		}

	case StateEstablished:
		switch ev {
		case EventV6FIN:
			return StateV6FinRcv, FateTimerTrans
		case EventV4FIN:
			return StateV4FinRcv, FateTimerTrans
		case EventV6RST, EventV4RST:
			return StateTrans, FateRM
		case EventData:
			return state, FateTimerEst
		case EventTimer:
			return StateTrans, FateProbe // idle: probe before giving up
		case EventV6SYN, EventV4SYN:
			return state, FatePreserve // duplicate/retransmitted SYN, harmless
		default:
			return state, FatePreserve
		}

	case StateV6FinRcv:
		switch ev {
		case EventV4FIN:
			return StateV4FinV6FinRcv, FateTimerTrans
		case EventV6RST, EventV4RST:
			return StateTrans, FateRM
		case EventV6SYN:
			return state, FateDrop // new SYN while v6 side is already closing
		case EventData, EventV4SYN:
			return state, FateTimerTrans
		case EventTimer:
			return StateTrans, FateRM
		default:
			return state, FatePreserve
		}

	case StateV4FinRcv:
		switch ev {
		case EventV6FIN:
			return StateV4FinV6FinRcv, FateTimerTrans
		case EventV6RST, EventV4RST:
			return StateTrans, FateRM
		case EventV4SYN:
			return state, FateDrop
		case EventData, EventV6SYN:
			return state, FateTimerTrans
		case EventTimer:
			return StateTrans, FateRM
		default:
			return state, FatePreserve
		}

	case StateV4FinV6FinRcv:
		switch ev {
		case EventV6SYN, EventV4SYN:
			return state, FateDrop // both sides already closing
		case EventV6RST, EventV4RST:
			return StateTrans, FateRM
		case EventTimer:
			return StateTrans, FateRM
		default:
			return state, FateTimerTrans
		}

	case StateTrans:
		switch ev {
		case EventTimer:
			return state, FateRM // final grace period elapsed
		case EventV6RST, EventV4RST:
			return state, FateRM
		default:
			return state, FateTimerTrans // any further traffic just extends the grace period
		}

	default:
		return state, FateDrop
	}
}

// CollisionCallback is the caller-supplied (translator-supplied) fate
// decision function add_tcp6/add_tcp4 run against an existing session —
// spec.md §4.C's collision_cb. view is mutable in place: the callback may
// update view.State and view.UpdateTime; the table copies those fields
// back after the call (the same tstobs/tstose round-trip db.c performs
// around its own collision callback).
type CollisionCallback func(view *SessionView) Fate

// SessionView is the mutable projection of a session handed to a
// CollisionCallback. TimerType only matters when the callback returns
// FateTimerSlow, in which case it names the list to insert into.
type SessionView struct {
	Dst6       TransportAddr
	Dst4       TransportAddr
	State      State
	UpdateTime time.Time
	HasStored  bool
	TimerType  TimerType
}

// NewTCPCollision returns a CollisionCallback implementing the canonical
// TCP state machine's reaction to a single incoming event, stamping
// UpdateTime with now on every non-PRESERVE, non-DROP transition.
func NewTCPCollision(ev Event, now time.Time) CollisionCallback {
	return func(view *SessionView) Fate {
		newState, fate := tcpFSM(view.State, ev)
		view.State = newState
		switch fate {
		case FatePreserve, FateDrop:
			// no timestamp change
		default:
			view.UpdateTime = now
		}
		return fate
	}
}
