package amu

import (
	"log/slog"

	"github.com/ronshih/caftlsim/internal/collab"
)

// Engine is the Address Translation Engine (C6): the top-level
// query/translate/dispatch logic, CMT miss handling, mapping-page
// writeback, update-read generation, and overfull handling. It owns no
// flash model of its own — every side effect crosses one of the collab
// interfaces.
type Engine struct {
	domains map[StreamID]*Domain
	codec   *AddrCodec
	barrier *BarrierCoordinator

	tsu   collab.TSU
	bm    collab.BlockManager
	fc    collab.FlashController
	gcwl  collab.GCWearLeveling
	clock collab.Clock
	stats collab.StatsSink
	log   *slog.Logger
}

// NewEngine constructs the engine. The caller registers domains with
// AddDomain before replaying any transaction.
func NewEngine(codec *AddrCodec, tsu collab.TSU, bm collab.BlockManager, fc collab.FlashController, gcwl collab.GCWearLeveling, clock collab.Clock, stats collab.StatsSink, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		domains: make(map[StreamID]*Domain),
		codec:   codec,
		tsu:     tsu,
		bm:      bm,
		fc:      fc,
		gcwl:    gcwl,
		clock:   clock,
		stats:   stats,
		log:     log,
	}
	e.barrier = NewBarrierCoordinator(e)
	if fc != nil {
		fc.ConnectTransactionServiced(e.handleTransactionServicedSignal)
	}
	return e
}

// AddDomain registers a per-stream Address Mapping Domain.
func (e *Engine) AddDomain(d *Domain) { e.domains[d.ID] = d }

// Domain returns the registered domain for a stream, if any.
func (e *Engine) Domain(s StreamID) (*Domain, bool) {
	d, ok := e.domains[s]
	return d, ok
}

// Barrier exposes the coordinator so callers can lock/unlock LPAs and
// MVPNs around GC relocation (spec.md §4.6, §6 inbound entry points).
func (e *Engine) Barrier() *BarrierCoordinator { return e.barrier }

// TranslateAndDispatch is the top-level entry point (spec.md §4.5). For
// each transaction in the batch: if its LPA is barrier-locked, route to the
// barrier coordinator; otherwise consult the CMT. After the whole batch is
// processed, every transaction whose physical address is determined and
// which is not a dedup-write is submitted to the TSU, then Schedule is
// called once.
func (e *Engine) TranslateAndDispatch(batch []*Transaction) error {
	for _, t := range batch {
		d, ok := e.domains[t.Stream]
		if !ok {
			return &ConfigError{Field: "stream", Value: t.Stream}
		}
		lpa, err := d.ResolveLPA(t.LPA)
		if err != nil {
			return err
		}
		t.LPA = lpa

		if d.IsLPALocked(lpa) {
			e.logBarrierWait(&BarrierError{Stream: d.ID, LPA: lpa})
			e.barrier.ManageUserTransactionFacingBarrier(d, t)
			continue
		}
		if err := e.queryCMT(d, t); err != nil {
			switch err.(type) {
			case *ExhaustionError, *BackpressureError:
				continue // recoverable: already handled or parked
			default:
				return err
			}
		}
	}

	e.tsu.PrepareForSubmit()
	for _, t := range batch {
		if t.Resolved && !t.DedupWrite {
			if err := e.tsu.Submit(t); err != nil {
				return err
			}
			if t.RelatedRead != nil {
				if err := e.tsu.Submit(t.RelatedRead); err != nil {
					return err
				}
			}
		}
	}
	e.tsu.Schedule()
	return nil
}

// queryCMT consults the CMT (or the PMT directly, in ideal-mapping mode)
// and either proceeds straight to translation on a hit or falls through to
// request_mapping_entry on a miss.
func (e *Engine) queryCMT(d *Domain, t *Transaction) error {
	if d.IdealMapping || d.CMT.Exists(d.ID, t.LPA) {
		if !d.IdealMapping {
			e.stats.IncCMTHit(int(d.ID))
		}
		return e.translateLPAToPPA(d, t)
	}
	e.stats.IncCMTMiss(int(d.ID))
	return e.requestMappingEntry(d, t)
}

// requestMappingEntry handles a CMT miss. A fresh LPA (nothing on flash
// yet) and an LPA whose mapping-page read is already in flight both need
// no new flash read: the former proceeds straight to translation, the
// latter parks behind the in-flight read. Anything else needs a real
// mapping-page read, after which the transaction parks on the
// Waiting_unmapped_* queue keyed by LPA.
func (e *Engine) requestMappingEntry(d *Domain, t *Transaction) error {
	mvpn := d.MVPNOf(t.LPA)

	if d.PMT[t.LPA].PPA == NoPPA && !d.CMT.IsSlotReservedWaiting(d.ID, t.LPA) {
		return e.translateLPAToPPA(d, t)
	}
	if d.CMT.IsSlotReservedWaiting(d.ID, t.LPA) {
		d.registerArriving(mvpn, t.LPA)
		e.park(d, t)
		return nil
	}
	if err := e.generateFlashReadRequestForMapping(d, mvpn); err != nil {
		return err
	}
	e.park(d, t)
	return nil
}

// logBarrierWait records that a transaction was parked behind a GC barrier
// lock. BarrierError is never returned up the call stack — a locked LPA or
// MVPN is an expected, recoverable condition, not a failure — but the
// engine still inspects it here the way it inspects ExhaustionError and
// BackpressureError, so a run's event log shows why traffic queued.
func (e *Engine) logBarrierWait(err *BarrierError) {
	e.log.Debug("transaction parked behind barrier", "error", err)
}

func (e *Engine) park(d *Domain, t *Transaction) {
	if t.IsRead() {
		d.parkUnmappedRead(t.LPA, t)
	} else {
		d.parkUnmappedProgram(t.LPA, t)
	}
}

// translateLPAToPPA is the most intricate operation (spec.md §4.5): it
// performs the passive "Simple CMT" bookkeeping, then resolves a read or
// allocates a write.
func (e *Engine) translateLPAToPPA(d *Domain, t *Transaction) error {
	switch {
	case d.CMT.Exists(d.ID, t.LPA):
		if _, err := d.CMT.RetrievePPA(d.ID, t.LPA); err != nil {
			return err
		}
	case d.CMT.IsSlotReservedWaiting(d.ID, t.LPA):
		// Nothing to do: the read-completion handler installs the slot
		// before re-invoking translateLPAToPPA.
	default:
		if err := e.evictAndWriteback(d); err != nil {
			return err
		}
		if err := d.CMT.Reserve(d.ID, t.LPA); err != nil {
			return err
		}
		pmt := d.PMT[t.LPA]
		if err := d.CMT.Insert(d.ID, t.LPA, pmt.PPA, pmt.Bitmap); err != nil {
			return err
		}
	}

	if t.IsRead() {
		return e.translateRead(d, t)
	}
	return e.translateWrite(d, t)
}

func (e *Engine) translateRead(d *Domain, t *Transaction) error {
	ppa, err := d.CMT.RetrievePPA(d.ID, t.LPA)
	if err != nil {
		return err
	}
	if ppa == NoPPA {
		// No mapping exists: reproduce the source's read-before-write
		// modeling shortcut (spec.md open question O1) rather than
		// allocating a new mapping.
		if p, _, ok := d.Shared.onlineCreateEntryForReads(); ok {
			ppa = p
			d.ReadBeforeWrite++
			e.stats.IncReadBeforeWrite()
		}
	}
	if ppa != NoPPA && IsVPA(uint64(ppa)) {
		resolved, ok := d.Shared.GetSMT(VPA(ppa))
		if !ok {
			return &LogicError{Op: "translateRead", Want: "SMT entry required for shared page"}
		}
		ppa = resolved
	}
	if ppa != NoPPA {
		e.bm.ReadTransactionIssued(e.codec.PageRef(ppa))
		t.Addr = e.codec.Decode(ppa)
	}
	t.PPAOut = ppa
	t.Resolved = true
	e.stats.IncFlashRead()
	return nil
}

func (e *Engine) translateWrite(d *Domain, t *Transaction) error {
	addr := d.Planes.Allocate(t.LPA)
	if e.gcwl.StopServicingWrites(PlaneRefOf(addr)) {
		key := planeKeyOf(addr)
		d.writeOverfull[key] = append(d.writeOverfull[key], t)
		return &BackpressureError{Addr: addr}
	}
	return e.allocatePageInPlaneForUserWrite(d, t, addr, false)
}

// allocatePageInPlaneForUserWrite is the invariant-maintaining heart of the
// dedup path (spec.md §4.5). isForGC selects the GC relocation branch,
// which assumes t.LPA already has a live mapping being moved rather than a
// host write landing for the first time.
func (e *Engine) allocatePageInPlaneForUserWrite(d *Domain, t *Transaction, addr PhysicalAddress, isForGC bool) error {
	if isForGC {
		return e.allocateForGC(d, t, addr)
	}

	// Fingerprint consumption happens before any mutation of the old
	// mapping's refcount, so exhaustion (spec.md invariant: no mapping
	// mutation on exhaustion, scenario S6) never needs a rollback: nothing
	// has been touched yet.
	fp, ok := d.Dedup.NextFingerprint()
	if !ok {
		return &ExhaustionError{Stream: d.ID, LPA: t.LPA}
	}
	d.Dedup.TotalChunkNo++
	e.stats.IncDedupTotal()

	oldPPA, err := e.currentMapping(d, t.LPA)
	if err != nil {
		return err
	}
	if oldPPA != NoPPA {
		oldEntry, ok := d.Shared.GetRM(oldPPA)
		if !ok {
			return &LogicError{Op: "allocatePageInPlaneForUserWrite", Want: "RM entry required for existing mapping"}
		}
		if fpe, ok := d.Dedup.Lookup(oldEntry.Fingerprint); ok {
			fpe.Ref--
			if fpe.Ref == 0 {
				d.Dedup.Upsert(oldEntry.Fingerprint, FPEntry{})
				prevBitmap := e.currentBitmap(d, t.LPA)
				intersection := t.Sectors.Intersect(prevBitmap)
				if intersection != prevBitmap {
					surviving := prevBitmap &^ intersection
					t.RelatedRead = &Transaction{Stream: d.ID, Type: Read, LPA: t.LPA, Sectors: surviving}
					e.stats.IncUpdateRead()
				}
				d.Shared.InvalidateRM(oldPPA)
				if err := e.bm.InvalidatePage(e.codec.PageRef(oldPPA)); err != nil {
					return err
				}
			} else {
				d.Dedup.Upsert(oldEntry.Fingerprint, fpe)
			}
		}
	}

	entry, hit := d.Dedup.Lookup(fp)
	if !hit {
		pageRef, err := e.bm.AllocateBlockAndPageForUserWrite(PlaneRefOf(addr))
		if err != nil {
			return err
		}
		newPPA := e.codec.FromPageRef(pageRef)
		d.Dedup.Upsert(fp, FPEntry{PPA: newPPA, Ref: 1})
		if err := e.installMapping(d, t.LPA, uint64(newPPA), t.Sectors); err != nil {
			return err
		}
		d.Shared.UpdateRM(newPPA, RMEntry{Fingerprint: fp, LPA: t.LPA})
		t.PPAOut = newPPA
		t.Addr = addr
		t.Resolved = true
		e.stats.IncFlashWrite()
		return nil
	}

	// Dedup hit: the write never reaches flash.
	t.DedupWrite = true
	newRef := entry.Ref + 1
	vpa := ToVPA(entry.PPA)
	if newRef == 2 {
		rmEntry, ok := d.Shared.GetRM(entry.PPA)
		if !ok {
			return &LogicError{Op: "allocatePageInPlaneForUserWrite", Want: "RM entry required for deduped page"}
		}
		if !rmEntry.UseSMT {
			if err := e.installMapping(d, rmEntry.LPA, uint64(vpa), e.currentBitmap(d, rmEntry.LPA)); err != nil {
				return err
			}
			rmEntry.UseSMT = true
			d.Shared.UpdateRM(entry.PPA, rmEntry)
		}
	}
	d.Dedup.DupChunkNo++
	e.stats.IncDedupHit()
	d.Dedup.Upsert(fp, FPEntry{PPA: entry.PPA, Ref: newRef})
	if err := e.installMapping(d, t.LPA, uint64(vpa), t.Sectors); err != nil {
		return err
	}
	d.Shared.UpdateSMT(vpa, entry.PPA)
	rmEntry, _ := d.Shared.GetRM(entry.PPA)
	rmEntry.Fingerprint = fp
	rmEntry.LPA = t.LPA
	rmEntry.VPA = vpa
	rmEntry.UseSMT = true
	d.Shared.UpdateRM(entry.PPA, rmEntry)
	t.PPAOut = entry.PPA
	t.Addr = addr
	t.Resolved = true
	return nil
}

func (e *Engine) allocateForGC(d *Domain, t *Transaction, addr PhysicalAddress) error {
	oldPPA, err := e.currentMapping(d, t.LPA)
	if err != nil {
		return err
	}
	if oldPPA == NoPPA {
		return &LogicError{Op: "allocateForGC", Want: "old PPA must exist"}
	}
	oldEntry, ok := d.Shared.GetRM(oldPPA)
	if !ok {
		return &LogicError{Op: "allocateForGC", Want: "RM entry must exist"}
	}
	if oldEntry.LPA != t.LPA {
		return &LogicError{Op: "allocateForGC", Want: "RM owning LPA must match the relocated LPA"}
	}
	if err := e.bm.InvalidatePage(e.codec.PageRef(oldPPA)); err != nil {
		return err
	}
	pageRef, err := e.bm.AllocateBlockAndPageForGCWrite(PlaneRefOf(addr), false)
	if err != nil {
		return err
	}
	newPPA := e.codec.FromPageRef(pageRef)

	if fpe, ok := d.Dedup.Lookup(oldEntry.Fingerprint); ok {
		fpe.PPA = newPPA
		d.Dedup.Upsert(oldEntry.Fingerprint, fpe)
	}
	bitmap := e.currentBitmap(d, t.LPA)
	if oldEntry.UseSMT {
		d.Shared.UpdateSMT(oldEntry.VPA, newPPA)
	} else if err := e.installMapping(d, t.LPA, uint64(newPPA), bitmap); err != nil {
		return err
	}
	d.Shared.UpdateRM(newPPA, RMEntry{Fingerprint: oldEntry.Fingerprint, LPA: t.LPA, VPA: oldEntry.VPA, UseSMT: oldEntry.UseSMT})
	d.Shared.InvalidateRM(oldPPA)
	t.PPAOut = newPPA
	t.Addr = addr
	t.Resolved = true
	e.stats.IncFlashWrite()
	return nil
}

// currentMapping returns the live PPA for lpa, resolving SMT indirection.
// NoPPA, nil means no mapping exists.
func (e *Engine) currentMapping(d *Domain, lpa LPA) (PPA, error) {
	var raw uint64
	switch {
	case d.IdealMapping:
		raw = uint64(d.PMT[lpa].PPA)
	case d.CMT.Exists(d.ID, lpa):
		p, err := d.CMT.RetrievePPA(d.ID, lpa)
		if err != nil {
			return NoPPA, err
		}
		raw = uint64(p)
	default:
		raw = uint64(d.PMT[lpa].PPA)
	}
	if raw == uint64(NoPPA) {
		return NoPPA, nil
	}
	if IsVPA(raw) {
		ppa, ok := d.Shared.GetSMT(VPA(raw))
		if !ok {
			return NoPPA, &LogicError{Op: "currentMapping", Want: "SMT entry required for VPA"}
		}
		return ppa, nil
	}
	return PPA(raw), nil
}

func (e *Engine) currentBitmap(d *Domain, lpa LPA) PageStatusBitmap {
	if d.IdealMapping || !d.CMT.Exists(d.ID, lpa) {
		return d.PMT[lpa].Bitmap
	}
	b, _ := d.CMT.Bitmap(d.ID, lpa)
	return b
}

// installMapping writes a raw mapping value (a PPA, or a VPA with the top
// bit set) for lpa, going through the CMT in non-ideal mode (reserving a
// slot if one isn't already held) or straight to the PMT in ideal mode.
func (e *Engine) installMapping(d *Domain, lpa LPA, raw uint64, bitmap PageStatusBitmap) error {
	if d.IdealMapping {
		d.PMT[lpa] = PMTEntry{PPA: PPA(raw), Bitmap: bitmap, Timestamp: Timestamp(e.clock.Now())}
		if d.CMT.Exists(d.ID, lpa) {
			return d.CMT.Update(d.ID, lpa, PPA(raw), bitmap)
		}
		return nil
	}
	if d.CMT.Exists(d.ID, lpa) {
		return d.CMT.Update(d.ID, lpa, PPA(raw), bitmap)
	}
	if d.CMT.IsSlotReservedWaiting(d.ID, lpa) {
		return d.CMT.Insert(d.ID, lpa, PPA(raw), bitmap)
	}
	if err := e.evictAndWriteback(d); err != nil {
		return err
	}
	if err := d.CMT.Reserve(d.ID, lpa); err != nil {
		return err
	}
	return d.CMT.Insert(d.ID, lpa, PPA(raw), bitmap)
}

// evictAndWriteback makes room in the CMT if it is full. A dirty eviction
// in ideal-mapping mode is modeled as a passive counter (spec.md open
// question O4: "Simple CMT" is a traffic estimate, not a second cache); in
// normal mode it drives a real mapping-page writeback through the TSU.
func (e *Engine) evictAndWriteback(d *Domain) error {
	if d.CMT.CheckFreeSlotAvailability() {
		return nil
	}
	victim, ok := d.CMT.EvictOne()
	if !ok || !victim.Dirty {
		return nil
	}
	d.PMT[victim.LPA] = PMTEntry{PPA: victim.PPA, Bitmap: victim.Bitmap, Timestamp: Timestamp(e.clock.Now())}
	if d.IdealMapping {
		d.GMTWriteCount++
		return nil
	}
	return e.generateFlashWritebackRequestForMappingLPA(d, victim.LPA)
}

// StartServicingWritesForOverfullPlane replays the writes parked behind a
// plane that was previously out of free pages (spec.md §4.8), in insertion
// order, stopping at the first transaction that fails to translate again.
func (e *Engine) StartServicingWritesForOverfullPlane(addr PhysicalAddress) error {
	key := planeKeyOf(addr)
	for _, d := range e.domains {
		queue, ok := d.writeOverfull[key]
		if !ok || len(queue) == 0 {
			continue
		}
		delete(d.writeOverfull, key)
		for i, t := range queue {
			if err := e.translateLPAToPPA(d, t); err != nil {
				if _, isBP := err.(*BackpressureError); isBP {
					d.writeOverfull[key] = append(d.writeOverfull[key], queue[i+1:]...)
					break
				}
				return err
			}
			e.submitResolved(t)
		}
	}
	return nil
}

func (e *Engine) submitResolved(t *Transaction) {
	if !t.Resolved || t.DedupWrite {
		return
	}
	e.tsu.PrepareForSubmit()
	if err := e.tsu.Submit(t); err != nil {
		e.log.Error("submit replayed write failed", "error", err)
		return
	}
	if t.RelatedRead != nil {
		if err := e.tsu.Submit(t.RelatedRead); err != nil {
			e.log.Error("submit replayed update-read failed", "error", err)
			return
		}
	}
	e.tsu.Schedule()
}
