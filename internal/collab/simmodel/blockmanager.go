package simmodel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ronshih/caftlsim/internal/collab"
)

type pageState struct {
	valid        bool
	holdsMapping bool
	mvpn         uint64
}

type blockState struct {
	pages    []pageState
	writeIdx uint32
}

func newBlockState(pagesPerBlock uint32) *blockState {
	return &blockState{pages: make([]pageState, pagesPerBlock)}
}

func (b *blockState) full() bool { return int(b.writeIdx) >= len(b.pages) }

type planeState struct {
	blocks    []*blockState
	nextBlock uint32 // next never-used block index to open
	open      uint32 // index of the block currently accepting writes
}

// BlockManager is a deterministic in-memory stand-in for the Block Manager
// collaborator (spec.md §6 "Outbound"): it tracks, per plane, which block is
// currently open for writes and which pages in every block are valid.
type BlockManager struct {
	mu             sync.Mutex
	blocksPerPlane uint32
	pagesPerBlock  uint32
	planes         map[collab.PlaneRef]*planeState
}

// NewBlockManager constructs a BlockManager over the given per-plane block
// count and per-block page count.
func NewBlockManager(blocksPerPlane, pagesPerBlock uint32) *BlockManager {
	return &BlockManager{
		blocksPerPlane: blocksPerPlane,
		pagesPerBlock:  pagesPerBlock,
		planes:         make(map[collab.PlaneRef]*planeState),
	}
}

func (m *BlockManager) plane(addr collab.PlaneRef) *planeState {
	p, ok := m.planes[addr]
	if !ok {
		p = &planeState{blocks: make([]*blockState, m.blocksPerPlane)}
		p.blocks[0] = newBlockState(m.pagesPerBlock)
		p.nextBlock = 1
		m.planes[addr] = p
	}
	return p
}

// advanceOpenBlock moves to the next block in round-robin order, allocating
// it lazily on first use. Returns false if every block in the plane is
// currently full with no invalidated space reclaimed (GC's job, out of
// scope here).
func (m *BlockManager) advanceOpenBlock(p *planeState) bool {
	start := p.open
	for i := uint32(0); i < m.blocksPerPlane; i++ {
		idx := (start + 1 + i) % m.blocksPerPlane
		if p.blocks[idx] == nil {
			p.blocks[idx] = newBlockState(m.pagesPerBlock)
		}
		if !p.blocks[idx].full() {
			p.open = idx
			return true
		}
	}
	return false
}

func (m *BlockManager) allocate(addr collab.PlaneRef, holdsMapping bool, mvpn uint64) (collab.PageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.plane(addr)
	if p.blocks[p.open] == nil {
		p.blocks[p.open] = newBlockState(m.pagesPerBlock)
	}
	if p.blocks[p.open].full() {
		if !m.advanceOpenBlock(p) {
			return collab.PageRef{}, fmt.Errorf("simmodel: plane %v has no free pages", addr)
		}
	}
	blk := p.blocks[p.open]
	page := blk.writeIdx
	blk.pages[page] = pageState{valid: true, holdsMapping: holdsMapping, mvpn: mvpn}
	blk.writeIdx++
	return collab.PageRef{Plane: addr, Block: p.open, Page: page}, nil
}

// AllocateBlockAndPageForUserWrite implements collab.BlockManager.
func (m *BlockManager) AllocateBlockAndPageForUserWrite(addr collab.PlaneRef) (collab.PageRef, error) {
	return m.allocate(addr, false, 0)
}

// AllocateBlockAndPageForTranslationWrite implements collab.BlockManager.
func (m *BlockManager) AllocateBlockAndPageForTranslationWrite(addr collab.PlaneRef) (collab.PageRef, error) {
	return m.allocate(addr, true, 0)
}

// AllocateBlockAndPageForGCWrite implements collab.BlockManager. GC
// relocation writes go through the same open-block allocator as ordinary
// writes; the simulator does not model a separate GC reserve area.
func (m *BlockManager) AllocateBlockAndPageForGCWrite(addr collab.PlaneRef, isTranslation bool) (collab.PageRef, error) {
	return m.allocate(addr, isTranslation, 0)
}

// InvalidatePage implements collab.BlockManager.
func (m *BlockManager) InvalidatePage(p collab.PageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	plane := m.plane(p.Plane)
	if int(p.Block) >= len(plane.blocks) || plane.blocks[p.Block] == nil {
		return fmt.Errorf("simmodel: invalidate unknown block %v", p)
	}
	blk := plane.blocks[p.Block]
	if int(p.Page) >= len(blk.pages) {
		return fmt.Errorf("simmodel: invalidate out-of-range page %v", p)
	}
	blk.pages[p.Page].valid = false
	return nil
}

// ReadTransactionIssued implements collab.BlockManager. The reference model
// tracks no per-page read statistics; StatsSink is the counter of record.
func (m *BlockManager) ReadTransactionIssued(p collab.PageRef) {}

// IsPageValid implements collab.BlockManager.
func (m *BlockManager) IsPageValid(p collab.PageRef) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	plane := m.plane(p.Plane)
	if int(p.Block) >= len(plane.blocks) || plane.blocks[p.Block] == nil {
		return false
	}
	blk := plane.blocks[p.Block]
	if int(p.Page) >= len(blk.pages) {
		return false
	}
	return blk.pages[p.Page].valid
}

// HasFreePage implements collab.BlockManager: true if the currently open
// block (or some other block in the plane) still has room.
func (m *BlockManager) HasFreePage(addr collab.PlaneRef) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plane(addr)
	if p.blocks[p.open] != nil && !p.blocks[p.open].full() {
		return true
	}
	for i := uint32(0); i < m.blocksPerPlane; i++ {
		if p.blocks[i] == nil || !p.blocks[i].full() {
			return true
		}
	}
	return false
}

// AllocatePagesInBlockAndInvalidateRemainingForPreconditioning implements
// collab.BlockManager: it opens a brand-new block, writes `valid` pages to
// it, and marks the remaining pages in that block invalid up front —
// seeding a block to a target occupancy before trace replay begins, without
// driving `valid` individual allocate calls plus invalidations by hand.
func (m *BlockManager) AllocatePagesInBlockAndInvalidateRemainingForPreconditioning(addr collab.PlaneRef, valid int) ([]collab.PageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.plane(addr)
	if !m.advanceOpenBlock(p) {
		return nil, fmt.Errorf("simmodel: plane %v has no free blocks for preconditioning", addr)
	}
	blk := p.blocks[p.open]
	if valid > len(blk.pages) {
		valid = len(blk.pages)
	}
	refs := make([]collab.PageRef, 0, valid)
	for page := 0; page < len(blk.pages); page++ {
		blk.pages[page] = pageState{valid: page < valid}
		if page < valid {
			refs = append(refs, collab.PageRef{Plane: addr, Block: p.open, Page: uint32(page)})
		}
	}
	blk.writeIdx = uint32(len(blk.pages))
	return refs, nil
}

// PagesWrittenInBlock implements collab.BlockManager.
func (m *BlockManager) PagesWrittenInBlock(addr collab.PlaneRef, block uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.plane(addr)
	if int(block) >= len(p.blocks) || p.blocks[block] == nil {
		return 0
	}
	return p.blocks[block].writeIdx
}

// planeKeys returns every plane currently tracked, sorted for deterministic
// iteration.
func (m *BlockManager) planeKeys() []collab.PlaneRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]collab.PlaneRef, 0, len(m.planes))
	for k := range m.planes {
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
	return keys
}
