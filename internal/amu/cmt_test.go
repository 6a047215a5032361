package amu

import "testing"

// TestCMTReserveInsertRetrieve covers the Reserve -> Insert -> RetrievePPA
// lifecycle a CMT miss drives.
func TestCMTReserveInsertRetrieve(t *testing.T) {
	c := NewCMT(2)
	if err := c.Reserve(0, 5); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if c.Exists(0, 5) {
		t.Fatalf("a reserved-but-not-inserted slot must not report Exists")
	}
	if !c.IsSlotReservedWaiting(0, 5) {
		t.Fatalf("expected the slot to be WAITING")
	}
	if err := c.Insert(0, 5, 42, 0xFF); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !c.Exists(0, 5) {
		t.Fatalf("expected the slot to be VALID after Insert")
	}
	ppa, err := c.RetrievePPA(0, 5)
	if err != nil || ppa != 42 {
		t.Fatalf("expected ppa=42, got %d err=%v", ppa, err)
	}
}

// TestCMTReserveTwiceFails covers Reserve's duplicate-key guard: a key cannot
// be reserved twice without an intervening Remove/eviction.
func TestCMTReserveTwiceFails(t *testing.T) {
	c := NewCMT(2)
	if err := c.Reserve(0, 5); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := c.Reserve(0, 5); err == nil {
		t.Fatalf("expected a second Reserve of the same key to fail")
	}
}

// TestCMTReserveAtCapacityFails covers invariant I7: the caller must evict
// before reserving once the CMT is full.
func TestCMTReserveAtCapacityFails(t *testing.T) {
	c := NewCMT(1)
	if err := c.Reserve(0, 1); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := c.Insert(0, 1, 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := c.Reserve(0, 2); err == nil {
		t.Fatalf("expected Reserve to fail when the CMT is at capacity")
	}
}

// TestCMTEvictOneIsLRU covers the CMT's LRU discipline: the least-recently
// touched entry is the one EvictOne removes.
func TestCMTEvictOneIsLRU(t *testing.T) {
	c := NewCMT(2)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(c.Reserve(0, 1))
	must(c.Insert(0, 1, 1, 0))
	must(c.Reserve(0, 2))
	must(c.Insert(0, 2, 2, 0))

	// Touch (0,1) so (0,2) becomes the LRU victim.
	if _, err := c.RetrievePPA(0, 1); err != nil {
		t.Fatalf("RetrievePPA: %v", err)
	}

	slot, ok := c.EvictOne()
	if !ok || slot.LPA != 2 {
		t.Fatalf("expected LPA 2 to be evicted, got %+v ok=%v", slot, ok)
	}
	if c.Exists(0, 2) {
		t.Fatalf("evicted entry must no longer Exist")
	}
	if !c.Exists(0, 1) {
		t.Fatalf("the touched entry must survive eviction")
	}
}

// TestCMTUpdateMarksDirty covers the dirty bit the writeback path consults.
func TestCMTUpdateMarksDirty(t *testing.T) {
	c := NewCMT(1)
	if err := c.Reserve(0, 1); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := c.Insert(0, 1, 1, 0); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if c.IsDirty(0, 1) {
		t.Fatalf("a freshly inserted slot must not be dirty")
	}
	if err := c.Update(0, 1, 2, 0xFF); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !c.IsDirty(0, 1) {
		t.Fatalf("expected Update to mark the slot dirty")
	}
	c.MakeClean(0, 1)
	if c.IsDirty(0, 1) {
		t.Fatalf("expected MakeClean to clear the dirty bit")
	}
}

// TestCMTSharedAcrossStreams covers equal-size-partitioning vs. shared mode:
// a CMT keyed by (stream, lpa) must not confuse two streams' same-numbered
// LPA.
func TestCMTSharedAcrossStreams(t *testing.T) {
	c := NewCMT(4)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(c.Reserve(0, 1))
	must(c.Insert(0, 1, 100, 0))
	must(c.Reserve(1, 1))
	must(c.Insert(1, 1, 200, 0))

	p0, err := c.RetrievePPA(0, 1)
	if err != nil || p0 != 100 {
		t.Fatalf("expected stream 0's lpa 1 -> ppa 100, got %d err=%v", p0, err)
	}
	p1, err := c.RetrievePPA(1, 1)
	if err != nil || p1 != 200 {
		t.Fatalf("expected stream 1's lpa 1 -> ppa 200, got %d err=%v", p1, err)
	}
}
