package simmodel

import "testing"

func TestTSUSchedulesSubmittedBatchInOrder(t *testing.T) {
	bm := NewBlockManager(1, 1)
	fc := NewFlashController(bm)
	tsu := NewTSU(fc)

	var serviced []any
	fc.ConnectTransactionServiced(func(tr any) { serviced = append(serviced, tr) })

	tsu.PrepareForSubmit()
	if err := tsu.Submit("first"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := tsu.Submit("second"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	tsu.Schedule()

	if len(serviced) != 2 || serviced[0] != "first" || serviced[1] != "second" {
		t.Fatalf("expected [first second] in order, got %v", serviced)
	}
}

func TestTSUPrepareForSubmitClearsPriorBatch(t *testing.T) {
	bm := NewBlockManager(1, 1)
	fc := NewFlashController(bm)
	tsu := NewTSU(fc)

	var count int
	fc.ConnectTransactionServiced(func(tr any) { count++ })

	tsu.PrepareForSubmit()
	if err := tsu.Submit("stale"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// A fresh PrepareForSubmit with nothing submitted after it must not
	// replay the previous batch.
	tsu.PrepareForSubmit()
	tsu.Schedule()

	if count != 0 {
		t.Fatalf("expected 0 serviced callbacks, got %d", count)
	}
}

func TestFlashControllerGetMetadata(t *testing.T) {
	bm := NewBlockManager(1, 2)
	fc := NewFlashController(bm)
	p := testPlane()
	ref, err := bm.AllocateBlockAndPageForTranslationWrite(p)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	md, err := fc.GetMetadata(ref)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if !md.HoldsMappingData || !md.Valid {
		t.Fatalf("expected a translation page to report HoldsMappingData=true Valid=true, got %+v", md)
	}
}
