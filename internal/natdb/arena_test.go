package natdb

import (
	"errors"
	"testing"
)

func TestBIBArenaExhaustion(t *testing.T) {
	t.Parallel()
	a := newBIBArena(2)

	e1, err := a.alloc()
	if err != nil {
		t.Fatalf("alloc 1: %v", err)
	}
	e2, err := a.alloc()
	if err != nil {
		t.Fatalf("alloc 2: %v", err)
	}
	if a.inUse() != 2 {
		t.Fatalf("inUse = %d, want 2", a.inUse())
	}

	if _, err := a.alloc(); !errors.Is(err, ErrNoMemory) {
		t.Fatalf("alloc on exhausted arena: %v, want ErrNoMemory", err)
	}

	a.release(e1)
	if a.inUse() != 1 {
		t.Fatalf("inUse after release = %d, want 1", a.inUse())
	}
	e3, err := a.alloc()
	if err != nil {
		t.Fatalf("alloc after release: %v", err)
	}
	if e3 != e1 {
		t.Fatalf("expected released slot to be recycled")
	}
	_ = e2
}

func TestSessionArenaRecycledSlotIsZeroed(t *testing.T) {
	t.Parallel()
	a := newSessionArena(1)

	e, err := a.alloc()
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	e.State = StateV4Init
	a.release(e)

	e2, err := a.alloc()
	if err != nil {
		t.Fatalf("alloc after release: %v", err)
	}
	if e2.State != StateEstablished {
		t.Fatalf("recycled slot State = %v, want zero value", e2.State)
	}
}
