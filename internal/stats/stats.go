// Package stats implements the Statistics Sink collaborator (spec.md §6
// "Outbound"): the counters the Address Mapping Unit reports into, and the
// CSV summary writer spec.md §6 "Persisted outputs" names.
package stats

// Counters accumulates every counter internal/collab.StatsSink exposes. The
// simulator drives the AMU from a single goroutine (TSU.Schedule completes
// synchronously, spec.md §5), so plain fields suffice — no atomics needed.
type Counters struct {
	CMTHits   map[int]uint64
	CMTMisses map[int]uint64

	FlashReads      uint64
	FlashWrites     uint64
	MappingReads    uint64
	MappingWrites   uint64
	UpdateReads     uint64
	ReadBeforeWrite uint64
	DedupTotal      uint64
	DedupHit        uint64
}

// New constructs a zeroed Counters.
func New() *Counters {
	return &Counters{
		CMTHits:   make(map[int]uint64),
		CMTMisses: make(map[int]uint64),
	}
}

func (c *Counters) IncCMTHit(stream int)    { c.CMTHits[stream]++ }
func (c *Counters) IncCMTMiss(stream int)   { c.CMTMisses[stream]++ }
func (c *Counters) IncFlashRead()           { c.FlashReads++ }
func (c *Counters) IncFlashWrite()          { c.FlashWrites++ }
func (c *Counters) IncMappingWrite()        { c.MappingWrites++ }
func (c *Counters) IncMappingRead()         { c.MappingReads++ }
func (c *Counters) IncUpdateRead()          { c.UpdateReads++ }
func (c *Counters) IncReadBeforeWrite()     { c.ReadBeforeWrite++ }
func (c *Counters) IncDedupTotal()          { c.DedupTotal++ }
func (c *Counters) IncDedupHit()            { c.DedupHit++ }

// DedupRate returns DedupHit/DedupTotal, or 0 before any chunk has been
// consumed (mirrors amu.Deduplicator.DedupRate, computed independently here
// since the sink and the per-domain deduplicator are separate collaborators
// per spec.md's component boundary).
func (c *Counters) DedupRate() float64 {
	if c.DedupTotal == 0 {
		return 0
	}
	return float64(c.DedupHit) / float64(c.DedupTotal)
}
