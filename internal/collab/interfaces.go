// Package collab declares the contracts of the components spec.md places
// out of scope: the Transaction Scheduling Unit, the Block Manager, the
// Flash Controller, the GC-and-wear-leveling unit, the simulation clock,
// the fingerprint trace source, and the statistics sink. The Address
// Mapping Unit (internal/amu) depends only on these interfaces, never on a
// concrete flash model.
package collab

// Clock is the simulation engine's monotone event clock.
type Clock interface {
	// Now returns the current simulation timestamp.
	Now() uint64
}

// TSU is the Transaction Scheduling Unit: it queues and dispatches flash
// operations. The AMU batches; the TSU serializes.
type TSU interface {
	// PrepareForSubmit is called once per batch before any Submit.
	PrepareForSubmit()
	// Submit hands one translated transaction to the scheduler. tr is an
	// opaque pointer to an AMU value (a user *amu.Transaction or the AMU's
	// own mapping-page read/write op); TSU implementations type-assert as
	// needed — this keeps internal/collab free of an internal/amu import
	// cycle.
	Submit(tr any) error
	// Schedule is called once per batch after all Submit calls.
	Schedule()
}

// BlockManager allocates blocks/pages and tracks per-block page validity.
type BlockManager interface {
	AllocateBlockAndPageForUserWrite(addr PlaneRef) (PageRef, error)
	AllocateBlockAndPageForTranslationWrite(addr PlaneRef) (PageRef, error)
	AllocateBlockAndPageForGCWrite(addr PlaneRef, isTranslation bool) (PageRef, error)
	InvalidatePage(p PageRef) error
	ReadTransactionIssued(p PageRef)
	IsPageValid(p PageRef) bool
	// HasFreePage reports whether the named plane currently has a free
	// page to allocate; a GCWearLeveling implementation can consult this to
	// answer StopServicingWrites.
	HasFreePage(addr PlaneRef) bool
	// AllocatePagesInBlockAndInvalidateRemainingForPreconditioning carves a
	// fresh block out of addr, returns `valid` freshly-written page
	// references, and marks the rest of that block invalid — seeding a
	// block to a target age before trace replay begins.
	AllocatePagesInBlockAndInvalidateRemainingForPreconditioning(addr PlaneRef, valid int) ([]PageRef, error)
	// PagesWrittenInBlock reports the block's current page write index: how
	// many of its pages have been written so far. A caller that needs to
	// scan a block before relocating it (GC) walks pages 0..index-1 rather
	// than keeping its own per-block bookkeeping.
	PagesWrittenInBlock(addr PlaneRef, block uint32) uint32
}

// FlashController exposes page metadata and the PHY-serviced signal.
type FlashController interface {
	GetMetadata(p PageRef) (PageMetadata, error)
	ConnectTransactionServiced(cb func(tr any))
}

// GCWearLeveling decides write admission and free-page thresholds.
type GCWearLeveling interface {
	StopServicingWrites(addr PlaneRef) bool
	MinimumFreePagesBeforeGC() int
}

// FingerprintSource yields one fingerprint per logical page write, from an
// externally-supplied monotone stream. Exhaustion is reported by ok=false.
type FingerprintSource interface {
	NextFingerprint() (fp string, ok bool)
}

// StatsSink receives structured counters for the run.
type StatsSink interface {
	IncCMTHit(stream int)
	IncCMTMiss(stream int)
	IncFlashRead()
	IncFlashWrite()
	IncMappingWrite()
	IncMappingRead()
	IncUpdateRead()
	IncReadBeforeWrite()
	IncDedupTotal()
	IncDedupHit()
}

// PlaneRef addresses one plane: (channel, chip, die, plane).
type PlaneRef struct {
	Channel uint32
	Chip    uint32
	Die     uint32
	Plane   uint32
}

// PageRef addresses one physical page within a plane.
type PageRef struct {
	Plane PlaneRef
	Block uint32
	Page  uint32
}

// PageMetadata is the out-of-band data the Flash Controller reports for a
// page: whether it holds translation (mapping) data, and if so which MVPN.
type PageMetadata struct {
	HoldsMappingData bool
	MVPN             uint64
	Valid            bool
}
