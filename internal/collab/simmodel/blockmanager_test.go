package simmodel

import (
	"testing"

	"github.com/ronshih/caftlsim/internal/collab"
)

func testPlane() collab.PlaneRef { return collab.PlaneRef{Channel: 0, Chip: 0, Die: 0, Plane: 0} }

func TestBlockManagerAllocateFillsBlockThenAdvances(t *testing.T) {
	bm := NewBlockManager(2, 2)
	p := testPlane()
	var refs []collab.PageRef
	for i := 0; i < 4; i++ {
		ref, err := bm.AllocateBlockAndPageForUserWrite(p)
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		refs = append(refs, ref)
	}
	if refs[0].Block != refs[1].Block {
		t.Fatalf("expected the first two allocations to share block 0, got %+v %+v", refs[0], refs[1])
	}
	if refs[2].Block == refs[0].Block {
		t.Fatalf("expected the block to roll over once full, got %+v then %+v", refs[1], refs[2])
	}
}

func TestBlockManagerExhaustsAllBlocks(t *testing.T) {
	bm := NewBlockManager(1, 1)
	p := testPlane()
	if _, err := bm.AllocateBlockAndPageForUserWrite(p); err != nil {
		t.Fatalf("first allocate: %v", err)
	}
	if _, err := bm.AllocateBlockAndPageForUserWrite(p); err == nil {
		t.Fatalf("expected the second allocate to fail once the only block is full")
	}
}

func TestBlockManagerHasFreePage(t *testing.T) {
	bm := NewBlockManager(1, 1)
	p := testPlane()
	if !bm.HasFreePage(p) {
		t.Fatalf("expected a free page before any allocation")
	}
	if _, err := bm.AllocateBlockAndPageForUserWrite(p); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if bm.HasFreePage(p) {
		t.Fatalf("expected no free page once the only block is full")
	}
}

func TestBlockManagerInvalidatePageTogglesValidity(t *testing.T) {
	bm := NewBlockManager(1, 2)
	p := testPlane()
	ref, err := bm.AllocateBlockAndPageForUserWrite(p)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !bm.IsPageValid(ref) {
		t.Fatalf("expected a freshly written page to be valid")
	}
	if err := bm.InvalidatePage(ref); err != nil {
		t.Fatalf("InvalidatePage: %v", err)
	}
	if bm.IsPageValid(ref) {
		t.Fatalf("expected the page to be invalid after InvalidatePage")
	}
}

func TestBlockManagerPreconditioning(t *testing.T) {
	bm := NewBlockManager(2, 4)
	p := testPlane()
	refs, err := bm.AllocatePagesInBlockAndInvalidateRemainingForPreconditioning(p, 2)
	if err != nil {
		t.Fatalf("precondition: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 valid page refs, got %d", len(refs))
	}
	for _, r := range refs {
		if !bm.IsPageValid(r) {
			t.Fatalf("expected preconditioned page %+v to be valid", r)
		}
	}
}

func TestBlockManagerDistinctPlanesAreIndependent(t *testing.T) {
	bm := NewBlockManager(1, 1)
	p0 := collab.PlaneRef{Channel: 0, Chip: 0, Die: 0, Plane: 0}
	p1 := collab.PlaneRef{Channel: 0, Chip: 0, Die: 0, Plane: 1}
	if _, err := bm.AllocateBlockAndPageForUserWrite(p0); err != nil {
		t.Fatalf("allocate p0: %v", err)
	}
	if !bm.HasFreePage(p1) {
		t.Fatalf("expected plane 1 to be unaffected by plane 0's allocation")
	}
}
