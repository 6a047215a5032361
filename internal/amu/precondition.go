package amu

import "sort"

// AllocateAddressForPreconditioning seeds the PMT and block-manager state
// to a target age distribution before trace replay begins (spec.md §4.3,
// supplemented from original_source/ per SPEC_FULL.md §7). lpaBitmaps names
// every LPA to preallocate and the write-status bitmap it should carry;
// steadyStateDistribution[i] is the fraction of blocks expected to hold
// exactly i valid pages in steady state.
//
// This is a simplified model of the original's per-block histogram
// assignment: rather than replicating its displacement-adjustment search
// over the probability histogram, each plane's LPAs are packed into blocks
// sized to the distribution's weighted mean occupancy. The observable
// contract — every requested LPA gets a unique PPA, and blocks end up
// mostly-full rather than sparsely written one page at a time — is the
// same; the precise block-by-block histogram shape is not reproduced.
func (e *Engine) AllocateAddressForPreconditioning(d *Domain, lpaBitmaps map[LPA]PageStatusBitmap, steadyStateDistribution []float64, pagesPerBlock uint32) error {
	lpas := make([]LPA, 0, len(lpaBitmaps))
	for lpa := range lpaBitmaps {
		if uint64(lpa) >= d.LogicalPages {
			return &OutOfRangeError{Stream: d.ID, LPA: lpa, Limit: d.LogicalPages}
		}
		cur, err := e.currentMapping(d, lpa)
		if err != nil {
			return err
		}
		if cur != NoPPA {
			return &LogicError{Op: "AllocateAddressForPreconditioning", Want: "lpa must not already be allocated"}
		}
		lpas = append(lpas, lpa)
	}
	sort.Slice(lpas, func(i, j int) bool { return lpas[i] < lpas[j] })

	byPlane := make(map[PlaneKey][]LPA)
	planeAddr := make(map[PlaneKey]PhysicalAddress)
	for _, lpa := range lpas {
		addr := d.Planes.Allocate(lpa)
		key := planeKeyOf(addr)
		byPlane[key] = append(byPlane[key], lpa)
		planeAddr[key] = addr
	}

	validPerBlock := weightedOccupancy(steadyStateDistribution, pagesPerBlock)
	if validPerBlock == 0 {
		validPerBlock = 1
	}

	keys := make([]PlaneKey, 0, len(byPlane))
	for k := range byPlane {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.Chip != b.Chip {
			return a.Chip < b.Chip
		}
		if a.Die != b.Die {
			return a.Die < b.Die
		}
		return a.Plane < b.Plane
	})

	for _, key := range keys {
		queue := byPlane[key]
		addr := planeAddr[key]
		for len(queue) > 0 {
			batch := validPerBlock
			if uint32(len(queue)) < batch {
				batch = uint32(len(queue))
			}
			pages, err := e.bm.AllocatePagesInBlockAndInvalidateRemainingForPreconditioning(PlaneRefOf(addr), int(batch))
			if err != nil {
				return err
			}
			for i, pageRef := range pages {
				lpa := queue[i]
				d.PMT[lpa] = PMTEntry{PPA: e.codec.FromPageRef(pageRef), Bitmap: lpaBitmaps[lpa], Timestamp: 0}
			}
			queue = queue[len(pages):]
		}
	}
	return nil
}

func weightedOccupancy(dist []float64, pagesPerBlock uint32) uint32 {
	if len(dist) == 0 || pagesPerBlock == 0 {
		return pagesPerBlock
	}
	var mean float64
	for i, p := range dist {
		if i > int(pagesPerBlock) {
			break
		}
		mean += p * float64(i)
	}
	if mean < 0 {
		mean = 0
	}
	occ := uint32(mean + 0.5)
	if occ > pagesPerBlock {
		occ = pagesPerBlock
	}
	return occ
}

// BringToCMTForPreconditioning brings a preallocated LPA's mapping into the
// CMT, evicting if necessary, and returns the running count of entries
// brought in this way. Touching an LPA preconditioning never allocated is a
// logic error.
func (e *Engine) BringToCMTForPreconditioning(d *Domain, lpa LPA) (uint64, error) {
	if d.PMT[lpa].PPA == NoPPA {
		return d.PreconditionInserted, &LogicError{Op: "BringToCMTForPreconditioning", Want: "lpa must already be allocated by preconditioning"}
	}
	if d.CMT.Exists(d.ID, lpa) {
		return d.PreconditionInserted, nil
	}
	if err := e.evictAndWriteback(d); err != nil {
		return d.PreconditionInserted, err
	}
	if err := d.CMT.Reserve(d.ID, lpa); err != nil {
		return d.PreconditionInserted, err
	}
	pmt := d.PMT[lpa]
	if err := d.CMT.Insert(d.ID, lpa, pmt.PPA, pmt.Bitmap); err != nil {
		return d.PreconditionInserted, err
	}
	d.PreconditionInserted++
	return d.PreconditionInserted, nil
}
