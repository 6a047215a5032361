package simmodel

import "github.com/ronshih/caftlsim/internal/collab"

// GCWearLeveling is a minimal stand-in for the GC-and-wear-leveling
// collaborator: it admits writes until a plane's open block (and every
// other block) is completely full. A real wear-leveling policy would stop
// earlier, at a configured free-page reserve, to leave GC room to work
// without itself stalling; that threshold logic is out of scope here
// (spec.md §1 places GC/wear-leveling policy out of scope) — this fake only
// needs to exercise the AMU's Backpressure path, not reproduce the policy.
type GCWearLeveling struct {
	bm      *BlockManager
	minFree int
}

// NewGCWearLeveling constructs a GCWearLeveling reporting minFree as the
// minimum free-page threshold before GC should run.
func NewGCWearLeveling(bm *BlockManager, minFree int) *GCWearLeveling {
	return &GCWearLeveling{bm: bm, minFree: minFree}
}

// StopServicingWrites implements collab.GCWearLeveling.
func (g *GCWearLeveling) StopServicingWrites(addr collab.PlaneRef) bool {
	return !g.bm.HasFreePage(addr)
}

// MinimumFreePagesBeforeGC implements collab.GCWearLeveling.
func (g *GCWearLeveling) MinimumFreePagesBeforeGC() int { return g.minFree }
