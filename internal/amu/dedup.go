package amu

import "github.com/ronshih/caftlsim/internal/collab"

// FPEntry is one Fingerprint Table row: the physical page currently
// holding the unique copy of this content, and how many live mappings
// reference it.
type FPEntry struct {
	PPA PPA
	Ref uint64
}

// Deduplicator is the Fingerprint Table (C3) plus the bookkeeping needed to
// report a dedup rate. It consumes fingerprints from an externally supplied
// monotone stream — one call to NextFingerprint per logical page write —
// which keeps it testable against synthetic streams instead of a file.
type Deduplicator struct {
	src   collab.FingerprintSource
	table map[Fingerprint]FPEntry

	TotalChunkNo uint64 // fingerprints consumed
	DupChunkNo   uint64 // of those, ones that hit an existing entry
}

// NewDeduplicator constructs a Deduplicator over the given fingerprint
// stream.
func NewDeduplicator(src collab.FingerprintSource) *Deduplicator {
	return &Deduplicator{
		src:   src,
		table: make(map[Fingerprint]FPEntry),
	}
}

// NextFingerprint returns the next fingerprint from the external stream, or
// ok=false on exhaustion. Exhaustion on a program request means the write
// is dropped at the dedup layer: no flash program is issued.
func (d *Deduplicator) NextFingerprint() (fp Fingerprint, ok bool) {
	s, ok := d.src.NextFingerprint()
	return Fingerprint(s), ok
}

// Lookup returns the existing entry for fp, if any.
func (d *Deduplicator) Lookup(fp Fingerprint) (FPEntry, bool) {
	e, ok := d.table[fp]
	return e, ok
}

// Upsert inserts fp if absent, otherwise overwrites its PPA and ref. If the
// resulting ref is zero the entry is erased (spec.md I3: refcount is
// strictly positive while the entry lives).
func (d *Deduplicator) Upsert(fp Fingerprint, entry FPEntry) {
	if entry.Ref == 0 {
		delete(d.table, fp)
		return
	}
	d.table[fp] = entry
}

// DedupRate returns dup_chunk_no / total_chunk_no, or 0 before any chunk has
// been consumed.
func (d *Deduplicator) DedupRate() float64 {
	if d.TotalChunkNo == 0 {
		return 0
	}
	return float64(d.DupChunkNo) / float64(d.TotalChunkNo)
}

// FPTableSize reports the number of live fingerprint entries, for tests
// asserting invariant P1 / I3.
func (d *Deduplicator) FPTableSize() int { return len(d.table) }
