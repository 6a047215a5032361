package amu

import "testing"

// TestStoreMappingTableOnFlashAtStartPrimesGTD covers the startup step that
// gives every translation page an initial MPPN before replay begins.
func TestStoreMappingTableOnFlashAtStartPrimesGTD(t *testing.T) {
	engine, d := newTestEngine(t, nil, 4)
	if err := engine.StoreMappingTableOnFlashAtStart(d); err != nil {
		t.Fatalf("StoreMappingTableOnFlashAtStart: %v", err)
	}
	for mvpn, entry := range d.GTD {
		if entry.MPPN == NoMPPN {
			t.Fatalf("expected mvpn %d to have a primed MPPN", mvpn)
		}
	}
}

// TestStoreMappingTableOnFlashAtStartSkipsIdealMapping covers the no-op
// guard: ideal-mapping-table streams never model an on-flash GTD.
func TestStoreMappingTableOnFlashAtStartSkipsIdealMapping(t *testing.T) {
	engine, d := newTestEngine(t, nil, 4)
	d.IdealMapping = true
	if err := engine.StoreMappingTableOnFlashAtStart(d); err != nil {
		t.Fatalf("StoreMappingTableOnFlashAtStart: %v", err)
	}
}

// TestCMTEvictionWritesBackDirtyEntryToPMT covers the dirty-eviction path:
// filling the CMT past capacity must flush the victim's mapping into the
// PMT rather than dropping it.
func TestCMTEvictionWritesBackDirtyEntryToPMT(t *testing.T) {
	engine, d := newTestEngine(t, []string{"A", "B", "C", "D", "E"}, 2)
	write(t, engine, d, 0, 0xFF)
	write(t, engine, d, 1, 0xFF)
	// The CMT (capacity 2) is now full; this write must evict lpa 0's entry.
	write(t, engine, d, 2, 0xFF)

	if d.PMT[0].PPA == NoPPA {
		t.Fatalf("expected the evicted entry's mapping to survive in the PMT")
	}
	if d.CMT.Exists(d.ID, 0) {
		t.Fatalf("expected lpa 0 to have been evicted from the CMT")
	}
}
