package amu

// mappingOp is the payload submitted to the TSU for translation-page
// traffic. Unlike a user Transaction it carries no LPA: it names the
// translation page (MVPN) and the physical page (MPPN) being moved. C6's
// FlashController collaborator hands it back unchanged on completion
// (spec.md §2 lists TSU.Submit as accepting "any transaction-shaped value",
// which is why this is a distinct type rather than amu.Transaction).
type mappingOp struct {
	Stream StreamID
	MVPN   MVPN
	MPPN   MPPN
	IsRead bool
}

func (e *Engine) submitMappingOp(d *Domain, isRead bool, mvpn MVPN, mppn MPPN) error {
	op := &mappingOp{Stream: d.ID, MVPN: mvpn, MPPN: mppn, IsRead: isRead}
	e.tsu.PrepareForSubmit()
	if err := e.tsu.Submit(op); err != nil {
		return err
	}
	e.tsu.Schedule()
	return nil
}

func (d *Domain) mvpnRange(mvpn MVPN) (start, end LPA) {
	start = LPA(uint64(mvpn) * d.TranslationEntriesPerPage)
	end = start + LPA(d.TranslationEntriesPerPage)
	if uint64(end) > d.LogicalPages {
		end = LPA(d.LogicalPages)
	}
	return start, end
}

// generateFlashReadRequestForMapping drives a mapping-page read for every
// LPA in mvpn that the CMT doesn't already hold, reserving a WAITING slot
// for each one so the batched read can install them all when it completes
// (spec.md §4.7). A read already in flight for this MVPN is never issued
// twice: every not-yet-cached LPA in the page is reserved up front, so a
// later caller always finds its own LPA already WAITING rather than
// re-triggering generateFlashReadRequestForMapping.
func (e *Engine) generateFlashReadRequestForMapping(d *Domain, mvpn MVPN) error {
	if d.IsMVPNLocked(mvpn) {
		e.logBarrierWait(&BarrierError{Stream: d.ID, MVPN: mvpn, IsMVPN: true})
		e.barrier.ManageMappingTransactionFacingBarrier(d, mvpn, true)
		return nil
	}
	start, end := d.mvpnRange(mvpn)
	for lpa := start; lpa < end; lpa++ {
		if d.CMT.Exists(d.ID, lpa) {
			continue
		}
		if d.CMT.IsSlotReservedWaiting(d.ID, lpa) {
			d.registerArriving(mvpn, lpa)
			continue
		}
		if err := e.evictAndWriteback(d); err != nil {
			return err
		}
		if err := d.CMT.Reserve(d.ID, lpa); err != nil {
			return err
		}
		d.registerArriving(mvpn, lpa)
	}
	mppn := NoMPPN
	if int(mvpn) < len(d.GTD) {
		mppn = d.GTD[mvpn].MPPN
	}
	if err := e.submitMappingOp(d, true, mvpn, mppn); err != nil {
		return err
	}
	e.stats.IncMappingRead()
	return nil
}

// generateFlashWritebackRequestForMappingLPA computes the owning MVPN for
// lpa and drives its writeback (spec.md §4.7's lpa-keyed entry point).
func (e *Engine) generateFlashWritebackRequestForMappingLPA(d *Domain, lpa LPA) error {
	return e.generateFlashWritebackRequestForMapping(d, d.MVPNOf(lpa))
}

// generateFlashWritebackRequestForMapping flushes every dirty CMT-resident
// entry of mvpn into the PMT, schedules a merge-read of the old MPPN (if
// one existed) so entries not resident in the CMT aren't lost, and
// schedules a write of a freshly allocated MPPN.
func (e *Engine) generateFlashWritebackRequestForMapping(d *Domain, mvpn MVPN) error {
	if d.IsMVPNLocked(mvpn) {
		e.logBarrierWait(&BarrierError{Stream: d.ID, MVPN: mvpn, IsMVPN: true})
		e.barrier.ManageMappingTransactionFacingBarrier(d, mvpn, false)
		d.registerDeparting(mvpn)
		return nil
	}
	if d.isDeparting(mvpn) {
		// A writeback for this translation page is already in flight; the
		// dirty entries it will flush cover whatever is CMT-resident right
		// now, so a second write would just race the first one's GTD update.
		return nil
	}
	start, end := d.mvpnRange(mvpn)
	for lpa := start; lpa < end; lpa++ {
		if !d.CMT.Exists(d.ID, lpa) || !d.CMT.IsDirty(d.ID, lpa) {
			continue
		}
		ppa, err := d.CMT.RetrievePPA(d.ID, lpa)
		if err != nil {
			return err
		}
		bitmap, err := d.CMT.Bitmap(d.ID, lpa)
		if err != nil {
			return err
		}
		d.PMT[lpa] = PMTEntry{PPA: ppa, Bitmap: bitmap, Timestamp: Timestamp(e.clock.Now())}
		d.CMT.MakeClean(d.ID, lpa)
	}

	if int(mvpn) < len(d.GTD) && d.GTD[mvpn].MPPN != NoMPPN {
		if err := e.submitMappingOp(d, true, mvpn, d.GTD[mvpn].MPPN); err != nil {
			return err
		}
		e.stats.IncMappingRead()
	}

	planeAddr := d.Planes.Allocate(LPA(mvpn))
	pageRef, err := e.bm.AllocateBlockAndPageForTranslationWrite(PlaneRefOf(planeAddr))
	if err != nil {
		return err
	}
	newMPPN := MPPN(e.codec.FromPageRef(pageRef))
	if int(mvpn) < len(d.GTD) {
		d.GTD[mvpn] = GTDEntry{MPPN: newMPPN, Timestamp: Timestamp(e.clock.Now())}
	}
	d.registerDeparting(mvpn)
	if err := e.submitMappingOp(d, false, mvpn, newMPPN); err != nil {
		return err
	}
	e.stats.IncMappingWrite()
	return nil
}

// handleTransactionServicedSignal is the Flash Controller's completion
// callback (spec.md §4.7). It only acts on mapping traffic: user
// transactions carry their own RelatedRead/dedup bookkeeping and need no
// further action once the TSU has scheduled them.
func (e *Engine) handleTransactionServicedSignal(tr any) {
	op, ok := tr.(*mappingOp)
	if !ok {
		return
	}
	d, ok := e.domains[op.Stream]
	if !ok {
		return
	}
	if !op.IsRead {
		d.clearDeparting(op.MVPN)
		return
	}

	for _, lpa := range d.takeArriving(op.MVPN) {
		if d.CMT.IsSlotReservedWaiting(d.ID, lpa) {
			pmt := d.PMT[lpa]
			if err := d.CMT.Insert(d.ID, lpa, pmt.PPA, pmt.Bitmap); err != nil {
				e.log.Error("install arrived mapping entry failed", "lpa", uint64(lpa), "error", err)
				continue
			}
		}
		reads, programs := d.drainUnmapped(lpa)
		for _, t := range append(reads, programs...) {
			if d.IsLPALocked(t.LPA) {
				e.barrier.ManageUserTransactionFacingBarrier(d, t)
				continue
			}
			if err := e.translateLPAToPPA(d, t); err != nil {
				if _, recoverable := err.(*ExhaustionError); recoverable {
					continue
				}
				if _, recoverable := err.(*BackpressureError); recoverable {
					continue
				}
				e.log.Error("translate parked transaction failed", "lpa", uint64(t.LPA), "error", err)
				continue
			}
			e.submitResolved(t)
		}
	}
}

// StoreMappingTableOnFlashAtStart materializes every domain's GTD by
// writing out an initial MPPN for every translation page, the way the
// original implementation primes the mapping table before trace replay
// begins (original_source/, supplemented in SPEC_FULL.md §7: without this
// step every first-touch LPA would force a (harmless but unrealistic)
// merge-free mapping-page write on its very first writeback).
func (e *Engine) StoreMappingTableOnFlashAtStart(d *Domain) error {
	if d.IdealMapping || d.TranslationEntriesPerPage == 0 {
		return nil
	}
	for mvpn := range d.GTD {
		planeAddr := d.Planes.Allocate(LPA(mvpn))
		pageRef, err := e.bm.AllocateBlockAndPageForTranslationWrite(PlaneRefOf(planeAddr))
		if err != nil {
			return err
		}
		d.GTD[mvpn] = GTDEntry{MPPN: MPPN(e.codec.FromPageRef(pageRef)), Timestamp: Timestamp(e.clock.Now())}
	}
	return nil
}
