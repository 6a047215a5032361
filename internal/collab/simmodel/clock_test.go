package simmodel

import "testing"

func TestClockIsMonotone(t *testing.T) {
	c := NewClock()
	prev := c.Now()
	for i := 0; i < 100; i++ {
		next := c.Now()
		if next <= prev {
			t.Fatalf("expected a strictly increasing tick, got %d then %d", prev, next)
		}
		prev = next
	}
}

func TestGCWearLevelingStopsWhenPlaneIsFull(t *testing.T) {
	bm := NewBlockManager(1, 1)
	gcwl := NewGCWearLeveling(bm, 4)
	p := testPlane()
	if gcwl.StopServicingWrites(p) {
		t.Fatalf("expected writes to be admitted before the plane fills")
	}
	if _, err := bm.AllocateBlockAndPageForUserWrite(p); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !gcwl.StopServicingWrites(p) {
		t.Fatalf("expected writes to stop once the only block is full")
	}
	if gcwl.MinimumFreePagesBeforeGC() != 4 {
		t.Fatalf("expected MinimumFreePagesBeforeGC to return the configured threshold")
	}
}
