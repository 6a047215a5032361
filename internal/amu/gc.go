package amu

import "github.com/ronshih/caftlsim/internal/collab"

// DataMappingInfo answers the GC-and-Wear-Leveling unit's question "is this
// physical page still live, and what does it cost to keep it?" (spec.md
// §4.6's get_data_mapping_info_for_gc).
type DataMappingInfo struct {
	PPA         PPA
	Fingerprint Fingerprint
	Ref         uint64
	UseSMT      bool
	Invalid     bool
	OwningLPA   LPA
}

// GetDataMappingInfoForGC reports the dedup and reverse-mapping state of
// ppa so the caller can decide whether relocating it during GC is worth
// the copy (a page referenced by several LPAs pays for its copy once).
func (e *Engine) GetDataMappingInfoForGC(d *Domain, ppa PPA) (DataMappingInfo, error) {
	rm, ok := d.Shared.GetRM(ppa)
	if !ok {
		return DataMappingInfo{}, &LogicError{Op: "GetDataMappingInfoForGC", Want: "RM entry must exist for a live page"}
	}
	ref := uint64(0)
	if fpe, ok := d.Dedup.Lookup(rm.Fingerprint); ok {
		ref = fpe.Ref
	}
	return DataMappingInfo{
		PPA:         ppa,
		Fingerprint: rm.Fingerprint,
		Ref:         ref,
		UseSMT:      rm.UseSMT,
		Invalid:     rm.Invalid,
		OwningLPA:   rm.LPA,
	}, nil
}

// TranslationMappingInfo answers the equivalent question for a translation
// page (spec.md §4.6's get_translation_mapping_info_for_gc).
type TranslationMappingInfo struct {
	MVPN MVPN
	MPPN MPPN
}

// GetTranslationMappingInfoForGC reports which physical page currently
// backs mvpn.
func (e *Engine) GetTranslationMappingInfoForGC(d *Domain, mvpn MVPN) (TranslationMappingInfo, error) {
	if int(mvpn) >= len(d.GTD) {
		return TranslationMappingInfo{}, &LogicError{Op: "GetTranslationMappingInfoForGC", Want: "mvpn in range"}
	}
	return TranslationMappingInfo{MVPN: mvpn, MPPN: d.GTD[mvpn].MPPN}, nil
}

// AllocateNewPageForGC relocates a live page during garbage collection
// (spec.md §4.6's allocate_new_page_for_gc): for a data page it copies
// forward through the same invariant-maintaining path a user write uses,
// minus fingerprint consumption (the content doesn't change, only its
// physical location); for a translation page it reuses the normal
// mapping-page writeback, which already allocates a fresh MPPN.
func (e *Engine) AllocateNewPageForGC(d *Domain, lpa LPA, isTranslation bool) error {
	if isTranslation {
		return e.generateFlashWritebackRequestForMapping(d, d.MVPNOf(lpa))
	}
	addr := d.Planes.Allocate(lpa)
	t := &Transaction{Stream: d.ID, Type: Write, LPA: lpa}
	return e.allocatePageInPlaneForUserWrite(d, t, addr, true)
}

// SetBarrierForAccessingPhysicalBlock is the GC entry point named in
// spec.md §4.6: before relocating pages out of a block, it walks every page
// the Block Manager has written in that block (its per-block write index),
// reads each one's metadata from the Flash Controller, and locks whatever
// it still backs — the MVPN for a translation page, the owning LPA
// (resolved through RM) for a data page — so concurrent user traffic
// queues behind the relocation instead of racing it. Invalid pages and
// pages whose RM entry has already been invalidated are skipped: they hold
// nothing live to protect.
func (e *Engine) SetBarrierForAccessingPhysicalBlock(d *Domain, plane collab.PlaneRef, block uint32) error {
	written := e.bm.PagesWrittenInBlock(plane, block)
	lockedMVPN := make(map[MVPN]bool)
	for page := uint32(0); page < written; page++ {
		ref := collab.PageRef{Plane: plane, Block: block, Page: page}
		if !e.bm.IsPageValid(ref) {
			continue
		}
		meta, err := e.fc.GetMetadata(ref)
		if err != nil {
			return err
		}
		if !meta.Valid {
			continue
		}
		if meta.HoldsMappingData {
			mvpn := MVPN(meta.MVPN)
			if lockedMVPN[mvpn] {
				continue
			}
			if err := e.barrier.SetBarrierMVPN(d, mvpn); err != nil {
				return err
			}
			lockedMVPN[mvpn] = true
			continue
		}
		ppa := e.codec.FromPageRef(ref)
		rm, ok := d.Shared.GetRM(ppa)
		if !ok || rm.Invalid {
			continue
		}
		if d.IsLPALocked(rm.LPA) {
			continue
		}
		if err := e.barrier.SetBarrierLPA(d, rm.LPA); err != nil {
			return err
		}
	}
	return nil
}
