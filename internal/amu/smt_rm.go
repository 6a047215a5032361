package amu

// RMEntry is one Reverse Mapping row: PPA -> owning LPA plus the metadata
// the on-flash out-of-band area would otherwise carry.
type RMEntry struct {
	Fingerprint Fingerprint
	LPA         LPA
	VPA         VPA // set when UseSMT; the virtual address that routes here
	UseSMT      bool
	Invalid     bool
}

// SharedTables holds the Secondary Mapping Table and Reverse Mapping for one
// stream. Per spec.md open question O2, these are kept per-stream (not as
// process-wide globals as in the source) on the assumption that physical
// pages are stream-private.
type SharedTables struct {
	smt map[VPA]PPA
	rm  map[PPA]RMEntry

	// rmOrder preserves insertion order of RM entries so
	// onlineCreateEntryForReads can reproduce the source's "first
	// non-invalid entry" shortcut (spec.md open question O1) deterministically.
	rmOrder []PPA
}

// NewSharedTables constructs an empty SMT/RM pair.
func NewSharedTables() *SharedTables {
	return &SharedTables{
		smt: make(map[VPA]PPA),
		rm:  make(map[PPA]RMEntry),
	}
}

// InSMT reports whether vpa has a Secondary Mapping Table entry.
func (t *SharedTables) InSMT(vpa VPA) bool {
	_, ok := t.smt[vpa]
	return ok
}

// GetSMT resolves vpa to its backing PPA. The second return is false if vpa
// is not present, which is a *LogicError at the call site (spec.md I4: an
// SMT lookup that requires an entry must find one).
func (t *SharedTables) GetSMT(vpa VPA) (PPA, bool) {
	p, ok := t.smt[vpa]
	return p, ok
}

// UpdateSMT installs or replaces vpa -> ppa. Populated only for pages whose
// refcount is, or was, >= 2 (spec.md §3 item 5).
func (t *SharedTables) UpdateSMT(vpa VPA, ppa PPA) {
	t.smt[vpa] = ppa
}

// EraseSMT removes vpa, used only on GC erase of the underlying PPA.
func (t *SharedTables) EraseSMT(vpa VPA) {
	delete(t.smt, vpa)
}

// GetRM returns the reverse-mapping entry for ppa.
func (t *SharedTables) GetRM(ppa PPA) (RMEntry, bool) {
	e, ok := t.rm[ppa]
	return e, ok
}

// UpdateRM installs or replaces the reverse-mapping entry for ppa.
func (t *SharedTables) UpdateRM(ppa PPA, entry RMEntry) {
	if _, existed := t.rm[ppa]; !existed {
		t.rmOrder = append(t.rmOrder, ppa)
	}
	t.rm[ppa] = entry
}

// InvalidateRM marks ppa invalid, used when the underlying fingerprint's
// refcount reaches zero or the page is overwritten.
func (t *SharedTables) InvalidateRM(ppa PPA) {
	if e, ok := t.rm[ppa]; ok {
		e.Invalid = true
		t.rm[ppa] = e
	}
}

// EraseRM removes ppa, called only on block erase by GC.
func (t *SharedTables) EraseRM(ppa PPA) {
	delete(t.rm, ppa)
	for i, p := range t.rmOrder {
		if p == ppa {
			t.rmOrder = append(t.rmOrder[:i], t.rmOrder[i+1:]...)
			break
		}
	}
}

// onlineCreateEntryForReads reproduces the source's placeholder behavior
// for a read to an LPA with no mapping: it does not allocate a new mapping
// at all, it returns the first RM entry whose Invalid is false, in
// insertion order. This is essentially arbitrary — a read-before-write
// modeling shortcut, not a specification of intent (spec.md open question
// O1) — preserved here verbatim rather than "fixed", so the simulator's
// read-before-write counter means what the original design's did.
func (t *SharedTables) onlineCreateEntryForReads() (PPA, RMEntry, bool) {
	for _, p := range t.rmOrder {
		e := t.rm[p]
		if !e.Invalid {
			return p, e, true
		}
	}
	return NoPPA, RMEntry{}, false
}
