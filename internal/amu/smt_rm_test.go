package amu

import "testing"

// TestSharedTablesSMTRoundTrip covers the VPA -> PPA indirection SMT holds
// for shared (refcount >= 2) pages.
func TestSharedTablesSMTRoundTrip(t *testing.T) {
	s := NewSharedTables()
	vpa := ToVPA(7)
	if s.InSMT(vpa) {
		t.Fatalf("expected no SMT entry before UpdateSMT")
	}
	s.UpdateSMT(vpa, 7)
	ppa, ok := s.GetSMT(vpa)
	if !ok || ppa != 7 {
		t.Fatalf("expected SMT[%d]=7, got %d ok=%v", vpa, ppa, ok)
	}
	s.EraseSMT(vpa)
	if s.InSMT(vpa) {
		t.Fatalf("expected EraseSMT to remove the entry")
	}
}

// TestSharedTablesRMInvalidate covers the invalidate-in-place semantics
// onlineCreateEntryForReads relies on.
func TestSharedTablesRMInvalidate(t *testing.T) {
	s := NewSharedTables()
	s.UpdateRM(10, RMEntry{Fingerprint: "A", LPA: 0})
	s.InvalidateRM(10)
	rm, ok := s.GetRM(10)
	if !ok || !rm.Invalid {
		t.Fatalf("expected RM[10].Invalid=true, got %+v ok=%v", rm, ok)
	}
}

// TestOnlineCreateEntryForReadsSkipsInvalid covers Open Question O1's exact
// selection rule: the first non-invalid RM entry in insertion order.
func TestOnlineCreateEntryForReadsSkipsInvalid(t *testing.T) {
	s := NewSharedTables()
	s.UpdateRM(1, RMEntry{Fingerprint: "A", LPA: 0})
	s.UpdateRM(2, RMEntry{Fingerprint: "B", LPA: 1})
	s.InvalidateRM(1)

	ppa, entry, ok := s.onlineCreateEntryForReads()
	if !ok || ppa != 2 || entry.Fingerprint != "B" {
		t.Fatalf("expected (2, B, true), got (%d, %+v, %v)", ppa, entry, ok)
	}
}

// TestOnlineCreateEntryForReadsEmptyWhenAllInvalid covers the case where no
// live RM entry exists at all: the shortcut must not fabricate one.
func TestOnlineCreateEntryForReadsEmptyWhenAllInvalid(t *testing.T) {
	s := NewSharedTables()
	s.UpdateRM(1, RMEntry{Fingerprint: "A", LPA: 0})
	s.InvalidateRM(1)

	_, _, ok := s.onlineCreateEntryForReads()
	if ok {
		t.Fatalf("expected ok=false when every RM entry is invalid")
	}
}

// TestEraseRMRemovesFromOrder covers GC's block-erase path: EraseRM must
// also drop the ppa from rmOrder so onlineCreateEntryForReads never sees it
// again.
func TestEraseRMRemovesFromOrder(t *testing.T) {
	s := NewSharedTables()
	s.UpdateRM(1, RMEntry{Fingerprint: "A", LPA: 0})
	s.EraseRM(1)
	if _, ok := s.GetRM(1); ok {
		t.Fatalf("expected GetRM to report absent after EraseRM")
	}
	if _, _, ok := s.onlineCreateEntryForReads(); ok {
		t.Fatalf("expected no RM entries to remain after erase")
	}
}
