package natdb

import (
	"math/rand"
	"sort"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func intCompare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func TestTreeFindSlotCommit(t *testing.T) {
	t.Parallel()
	tree := NewTree[int, string](intCompare)

	for _, k := range []int{5, 3, 8, 1, 4, 7, 9} {
		_, found, slot := tree.FindSlot(k)
		if found {
			t.Fatalf("key %d unexpectedly already present", k)
		}
		tree.Commit(slot, k, "v")
	}

	if tree.Len() != 7 {
		t.Fatalf("Len() = %d, want 7", tree.Len())
	}

	for _, k := range []int{5, 3, 8, 1, 4, 7, 9} {
		n, found := tree.Find(k)
		if !found || n.Key() != k {
			t.Fatalf("Find(%d) = (%v, %v)", k, n, found)
		}
	}

	if _, found := tree.Find(42); found {
		t.Fatalf("Find(42) unexpectedly found")
	}
}

func TestTreeOrderedTraversal(t *testing.T) {
	t.Parallel()
	tree := NewTree[int, int](intCompare)
	values := []int{50, 20, 70, 10, 30, 60, 80, 5, 15, 25, 90}
	for _, v := range values {
		_, _, slot := tree.FindSlot(v)
		tree.Commit(slot, v, v*2)
	}

	var got []int
	for n := tree.First(); n != nil; n = tree.Next(n) {
		got = append(got, n.Key())
	}

	want := append([]int(nil), values...)
	sort.Ints(want)
	if len(got) != len(want) {
		t.Fatalf("traversal length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("traversal[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestTreeEraseKeepsOrder(t *testing.T) {
	t.Parallel()
	tree := NewTree[int, int](intCompare)
	for i := 0; i < 200; i++ {
		_, _, slot := tree.FindSlot(i)
		tree.Commit(slot, i, i)
	}

	r := rand.New(rand.NewSource(1))
	remaining := map[int]bool{}
	for i := 0; i < 200; i++ {
		remaining[i] = true
	}
	for len(remaining) > 50 {
		var victim int
		for k := range remaining {
			victim = k
			break
		}
		n, found := tree.Find(victim)
		if !found {
			t.Fatalf("Find(%d) missing before erase", victim)
		}
		tree.Erase(n)
		delete(remaining, victim)
		_ = r
	}

	var got []int
	for n := tree.First(); n != nil; n = tree.Next(n) {
		got = append(got, n.Key())
	}
	if len(got) != len(remaining) {
		t.Fatalf("post-erase traversal length = %d, want %d", len(got), len(remaining))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("traversal not strictly increasing at %d: %d >= %d", i, got[i-1], got[i])
		}
	}
	for _, k := range got {
		if !remaining[k] {
			t.Fatalf("unexpected surviving key %d", k)
		}
	}
}

func TestTreeSeekPagination(t *testing.T) {
	t.Parallel()
	tree := NewTree[int, int](intCompare)
	for _, k := range []int{10, 20, 30, 40, 50} {
		_, _, slot := tree.FindSlot(k)
		tree.Commit(slot, k, k)
	}

	if n := tree.Seek(25, true); n == nil || n.Key() != 30 {
		t.Fatalf("Seek(25, true) = %v, want 30", n)
	}
	if n := tree.Seek(30, true); n == nil || n.Key() != 30 {
		t.Fatalf("Seek(30, true) = %v, want 30 (inclusive)", n)
	}
	if n := tree.Seek(30, false); n == nil || n.Key() != 40 {
		t.Fatalf("Seek(30, false) = %v, want 40 (exclusive)", n)
	}
	if n := tree.Seek(50, false); n != nil {
		t.Fatalf("Seek(50, false) = %v, want nil", n)
	}
	if n := tree.Seek(100, true); n != nil {
		t.Fatalf("Seek(100, true) = %v, want nil (past end)", n)
	}
}

func TestTreeForEachStopsEarly(t *testing.T) {
	t.Parallel()
	tree := NewTree[int, int](intCompare)
	for i := 0; i < 10; i++ {
		_, _, slot := tree.FindSlot(i)
		tree.Commit(slot, i, i)
	}

	var seen []int
	tree.ForEach(3, true, func(k, v int) bool {
		seen = append(seen, k)
		return k < 6
	})
	want := []int{3, 4, 5, 6}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}
