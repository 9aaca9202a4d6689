package natdb

import (
	"testing"
	"time"
)

func TestTCPFSMEstablishedFlow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		state     State
		event     Event
		wantState State
		wantFate  Fate
	}{
		{"v6 syn then v4 syn completes handshake", StateV6Init, EventV4SYN, StateEstablished, FateTimerEst},
		{"v6 syn retransmit stays v6 init", StateV6Init, EventV6SYN, StateV6Init, FateTimerTrans},
		{"established idle timer probes", StateEstablished, EventTimer, StateTrans, FateProbe},
		{"trans timer removes", StateTrans, EventTimer, StateTrans, FateRM},
		{"established v6 fin begins half close", StateEstablished, EventV6FIN, StateV6FinRcv, FateTimerTrans},
		{"v6 fin then v4 fin reaches double fin", StateV6FinRcv, EventV4FIN, StateV4FinV6FinRcv, FateTimerTrans},
		{"rst always tears down", StateEstablished, EventV6RST, StateTrans, FateRM},
		{"double fin new syn is a violation", StateV4FinV6FinRcv, EventV6SYN, StateV4FinV6FinRcv, FateDrop},
		{"so syn4 retransmit stays on syn4 list", StateV4Init, EventV4SYN, StateV4Init, FateTimerSlow},
		{"so completed by v6 syn", StateV4Init, EventV6SYN, StateEstablished, FateTimerEst},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotState, gotFate := tcpFSM(tc.state, tc.event)
			if gotState != tc.wantState || gotFate != tc.wantFate {
				t.Fatalf("tcpFSM(%v, %v) = (%v, %v), want (%v, %v)",
					tc.state, tc.event, gotState, gotFate, tc.wantState, tc.wantFate)
			}
		})
	}
}

func TestNewTCPCollisionAppliesTimestamp(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	cb := NewTCPCollision(EventV4SYN, now)

	view := &SessionView{State: StateV6Init, UpdateTime: time.Unix(1, 0)}
	fate := cb(view)

	if fate != FateTimerEst {
		t.Fatalf("fate = %v, want FateTimerEst", fate)
	}
	if view.State != StateEstablished {
		t.Fatalf("state = %v, want StateEstablished", view.State)
	}
	if !view.UpdateTime.Equal(now) {
		t.Fatalf("UpdateTime = %v, want %v", view.UpdateTime, now)
	}
}

func TestNewTCPCollisionPreserveDoesNotTouchTimestamp(t *testing.T) {
	t.Parallel()
	original := time.Unix(5, 0)
	cb := NewTCPCollision(EventV6SYN, time.Unix(1000, 0))

	view := &SessionView{State: StateEstablished, UpdateTime: original}
	fate := cb(view)

	if fate != FatePreserve {
		t.Fatalf("fate = %v, want FatePreserve", fate)
	}
	if !view.UpdateTime.Equal(original) {
		t.Fatalf("UpdateTime changed on PRESERVE: %v", view.UpdateTime)
	}
}
