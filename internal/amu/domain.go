package amu

// PMTEntry is one Primary (Global) Mapping Table row: the on-flash
// translation the source models entirely in memory. Entry absent is
// represented by PPA == NoPPA.
type PMTEntry struct {
	PPA       PPA
	Bitmap    PageStatusBitmap
	Timestamp Timestamp
}

// GTDEntry is one Global Translation Directory row: MVPN -> MPPN.
type GTDEntry struct {
	MPPN      MPPN
	Timestamp Timestamp
}

// Domain holds everything the Address Mapping Domain (C2) owns for one
// stream: the PMT and GTD dense arrays, the CMT handle (exclusively owned
// under equal-size partitioning, or shared across streams), the plane
// allocator, the SMT/RM pair, the deduplicator, the waiting queues, and the
// barrier sets. It routes mapping queries either to the CMT (normal mode)
// or directly to the PMT (ideal-mapping mode, where no on-flash
// translation table is modeled and the PMT is always resident).
type Domain struct {
	ID StreamID

	IdealMapping bool
	LogicalPages uint64 // configured logical page count, for OutOfRange checks
	FoldLarge    bool   // fold-large-addresses: wrap instead of erroring

	PMT []PMTEntry
	GTD []GTDEntry

	CMT    *CMT // owned exclusively, or a handle shared with other domains
	Planes *PlaneAllocator
	Shared *SharedTables
	Dedup  *Deduplicator

	// Waiting queues (spec.md §3 item 7).
	waitingUnmappedRead    map[LPA][]*Transaction
	waitingUnmappedProgram map[LPA][]*Transaction
	arrivingMapping        map[MVPN][]LPA
	departingMapping       map[MVPN]bool

	// Barrier sets (spec.md §3 item 8), owned by the Barrier Coordinator
	// but stored per-domain since a barrier is always scoped to one stream.
	lockedLPAs      map[LPA]bool
	lockedMVPNs     map[MVPN]bool
	readBehindLPA   map[LPA][]*Transaction
	writeBehindLPA  map[LPA][]*Transaction
	mvpnReadBehind  map[MVPN][]*Transaction
	mvpnWriteBehind map[MVPN][]*Transaction

	// Bookkeeping counters.
	GMTWriteCount             uint64 // "Simple CMT" writeback counter (open question O4)
	ReadBeforeWrite           uint64
	TranslationEntriesPerPage uint64
	PreconditionInserted      uint64

	// writeOverfull parks writes that found their target plane out of
	// free pages (spec.md §4.8), keyed by plane.
	writeOverfull map[PlaneKey][]*Transaction
}

// PlaneKey identifies one plane for the overfull-write parking map.
type PlaneKey struct {
	Channel, Chip, Die, Plane uint32
}

func planeKeyOf(a PhysicalAddress) PlaneKey {
	return PlaneKey{Channel: a.Channel, Chip: a.Chip, Die: a.Die, Plane: a.Plane}
}

// NewDomain constructs a Domain for one stream.
func NewDomain(id StreamID, logicalPages uint64, idealMapping, foldLarge bool, translationEntriesPerPage uint64, cmt *CMT, planes *PlaneAllocator, dedup *Deduplicator) *Domain {
	d := &Domain{
		ID:                        id,
		IdealMapping:              idealMapping,
		LogicalPages:              logicalPages,
		FoldLarge:                 foldLarge,
		PMT:                       make([]PMTEntry, logicalPages),
		CMT:                       cmt,
		Planes:                    planes,
		Shared:                    NewSharedTables(),
		Dedup:                     dedup,
		waitingUnmappedRead:       make(map[LPA][]*Transaction),
		waitingUnmappedProgram:    make(map[LPA][]*Transaction),
		arrivingMapping:           make(map[MVPN][]LPA),
		departingMapping:          make(map[MVPN]bool),
		lockedLPAs:                make(map[LPA]bool),
		lockedMVPNs:               make(map[MVPN]bool),
		readBehindLPA:             make(map[LPA][]*Transaction),
		writeBehindLPA:            make(map[LPA][]*Transaction),
		mvpnReadBehind:            make(map[MVPN][]*Transaction),
		mvpnWriteBehind:           make(map[MVPN][]*Transaction),
		writeOverfull:             make(map[PlaneKey][]*Transaction),
		TranslationEntriesPerPage: translationEntriesPerPage,
	}
	for i := range d.PMT {
		d.PMT[i].PPA = NoPPA
	}
	if translationEntriesPerPage > 0 {
		numMVPN := (logicalPages + translationEntriesPerPage - 1) / translationEntriesPerPage
		d.GTD = make([]GTDEntry, numMVPN)
		for i := range d.GTD {
			d.GTD[i].MPPN = NoMPPN
		}
	}
	return d
}

// ResolveLPA folds or range-checks lpa per the fold-large-addresses option
// (spec.md §6 configuration, §7 supplemented in SPEC_FULL.md §7).
func (d *Domain) ResolveLPA(lpa LPA) (LPA, error) {
	if uint64(lpa) < d.LogicalPages {
		return lpa, nil
	}
	if d.FoldLarge && d.LogicalPages > 0 {
		return LPA(uint64(lpa) % d.LogicalPages), nil
	}
	return lpa, &OutOfRangeError{Stream: d.ID, LPA: lpa, Limit: d.LogicalPages}
}

// MVPNOf returns the translation page containing lpa.
func (d *Domain) MVPNOf(lpa LPA) MVPN {
	if d.TranslationEntriesPerPage == 0 {
		return 0
	}
	return MVPN(uint64(lpa) / d.TranslationEntriesPerPage)
}

// --- waiting-queue accessors -------------------------------------------------

func (d *Domain) parkUnmappedRead(lpa LPA, t *Transaction) {
	d.waitingUnmappedRead[lpa] = append(d.waitingUnmappedRead[lpa], t)
}

func (d *Domain) parkUnmappedProgram(lpa LPA, t *Transaction) {
	d.waitingUnmappedProgram[lpa] = append(d.waitingUnmappedProgram[lpa], t)
}

func (d *Domain) drainUnmapped(lpa LPA) (reads, programs []*Transaction) {
	reads = d.waitingUnmappedRead[lpa]
	programs = d.waitingUnmappedProgram[lpa]
	delete(d.waitingUnmappedRead, lpa)
	delete(d.waitingUnmappedProgram, lpa)
	return reads, programs
}

func (d *Domain) registerArriving(mvpn MVPN, lpa LPA) {
	d.arrivingMapping[mvpn] = append(d.arrivingMapping[mvpn], lpa)
}

func (d *Domain) takeArriving(mvpn MVPN) []LPA {
	lpas := d.arrivingMapping[mvpn]
	delete(d.arrivingMapping, mvpn)
	return lpas
}

func (d *Domain) registerDeparting(mvpn MVPN) { d.departingMapping[mvpn] = true }
func (d *Domain) clearDeparting(mvpn MVPN)    { delete(d.departingMapping, mvpn) }
func (d *Domain) isDeparting(mvpn MVPN) bool  { return d.departingMapping[mvpn] }
