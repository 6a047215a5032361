package amu

// BarrierCoordinator (C7) locks LPAs/MVPNs undergoing GC migration, queues
// user and mapping transactions that touch them, and replays the queues on
// release. The simulator runs single-threaded inside a discrete-event loop
// (spec.md §5), so "locking" is bookkeeping, not mutual exclusion: a lock
// held across event boundaries is what the invariants describe, not an
// atomic section.
type BarrierCoordinator struct {
	engine *Engine
}

// NewBarrierCoordinator binds a coordinator to the engine it replays
// through on release.
func NewBarrierCoordinator(e *Engine) *BarrierCoordinator {
	return &BarrierCoordinator{engine: e}
}

// SetBarrierLPA locks lpa for stream s. Locking an already-locked LPA is a
// logic error (spec.md §4.6).
func (b *BarrierCoordinator) SetBarrierLPA(d *Domain, lpa LPA) error {
	if d.lockedLPAs[lpa] {
		return &LogicError{Op: "SetBarrierLPA", Want: "lpa must not already be locked"}
	}
	d.lockedLPAs[lpa] = true
	return nil
}

// SetBarrierMVPN locks mvpn for stream s.
func (b *BarrierCoordinator) SetBarrierMVPN(d *Domain, mvpn MVPN) error {
	if d.lockedMVPNs[mvpn] {
		return &LogicError{Op: "SetBarrierMVPN", Want: "mvpn must not already be locked"}
	}
	d.lockedMVPNs[mvpn] = true
	return nil
}

// IsLPALocked reports whether lpa is currently barrier-locked for d.
func (d *Domain) IsLPALocked(lpa LPA) bool { return d.lockedLPAs[lpa] }

// IsMVPNLocked reports whether mvpn is currently barrier-locked for d.
func (d *Domain) IsMVPNLocked(mvpn MVPN) bool { return d.lockedMVPNs[mvpn] }

// ManageUserTransactionFacingBarrier enqueues a user transaction that
// arrived while its LPA is locked, read queue before write queue on
// replay.
func (b *BarrierCoordinator) ManageUserTransactionFacingBarrier(d *Domain, t *Transaction) {
	if t.IsRead() {
		d.readBehindLPA[t.LPA] = append(d.readBehindLPA[t.LPA], t)
	} else {
		d.writeBehindLPA[t.LPA] = append(d.writeBehindLPA[t.LPA], t)
	}
}

// ManageMappingTransactionFacingBarrier enqueues a deferred mapping-page
// read or write behind a locked MVPN.
func (b *BarrierCoordinator) ManageMappingTransactionFacingBarrier(d *Domain, mvpn MVPN, isRead bool) {
	if isRead {
		d.mvpnReadBehind[mvpn] = append(d.mvpnReadBehind[mvpn], &Transaction{Stream: d.ID})
	} else {
		d.mvpnWriteBehind[mvpn] = append(d.mvpnWriteBehind[mvpn], &Transaction{Stream: d.ID})
	}
}

// RemoveBarrierLPA unlocks lpa and drains its replay queues: the read queue
// first, then the write queue. Each queued transaction is translated again
// with translateLPAToPPA and then submitted to the TSU.
func (b *BarrierCoordinator) RemoveBarrierLPA(d *Domain, lpa LPA) error {
	if !d.lockedLPAs[lpa] {
		return &LogicError{Op: "RemoveBarrierLPA", Want: "lpa must be locked"}
	}
	delete(d.lockedLPAs, lpa)

	reads := d.readBehindLPA[lpa]
	writes := d.writeBehindLPA[lpa]
	delete(d.readBehindLPA, lpa)
	delete(d.writeBehindLPA, lpa)

	for _, t := range reads {
		if err := b.engine.translateLPAToPPA(d, t); err != nil {
			return err
		}
		b.engine.submitResolved(t)
	}
	for _, t := range writes {
		if err := b.engine.translateLPAToPPA(d, t); err != nil {
			return err
		}
		b.engine.submitResolved(t)
	}
	return nil
}

// RemoveBarrierMVPN unlocks mvpn and drains its deferred mapping I/O: for
// reads, a synthesized read transaction resumes generateFlashReadRequest;
// for writes, a synthesized write resumes generateFlashWritebackRequest.
func (b *BarrierCoordinator) RemoveBarrierMVPN(d *Domain, mvpn MVPN) error {
	if !d.lockedMVPNs[mvpn] {
		return &LogicError{Op: "RemoveBarrierMVPN", Want: "mvpn must be locked"}
	}
	delete(d.lockedMVPNs, mvpn)

	reads := d.mvpnReadBehind[mvpn]
	writes := d.mvpnWriteBehind[mvpn]
	delete(d.mvpnReadBehind, mvpn)
	delete(d.mvpnWriteBehind, mvpn)

	for range reads {
		if err := b.engine.generateFlashReadRequestForMapping(d, mvpn); err != nil {
			return err
		}
	}
	for range writes {
		d.clearDeparting(mvpn)
		if err := b.engine.generateFlashWritebackRequestForMapping(d, mvpn); err != nil {
			return err
		}
	}
	return nil
}
