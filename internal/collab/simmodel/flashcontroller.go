package simmodel

import (
	"fmt"

	"github.com/ronshih/caftlsim/internal/collab"
)

// FlashController is a minimal stand-in for the Flash Controller
// collaborator: it answers page-metadata queries against a BlockManager and
// fans out the "transaction serviced" signal the TSU raises once a
// submitted operation completes.
type FlashController struct {
	bm       *BlockManager
	callback func(tr any)
}

// NewFlashController constructs a FlashController backed by bm.
func NewFlashController(bm *BlockManager) *FlashController {
	return &FlashController{bm: bm}
}

// GetMetadata implements collab.FlashController.
func (f *FlashController) GetMetadata(p collab.PageRef) (collab.PageMetadata, error) {
	f.bm.mu.Lock()
	defer f.bm.mu.Unlock()
	plane := f.bm.plane(p.Plane)
	if int(p.Block) >= len(plane.blocks) || plane.blocks[p.Block] == nil {
		return collab.PageMetadata{}, fmt.Errorf("simmodel: metadata for unknown block %v", p)
	}
	blk := plane.blocks[p.Block]
	if int(p.Page) >= len(blk.pages) {
		return collab.PageMetadata{}, fmt.Errorf("simmodel: metadata for out-of-range page %v", p)
	}
	page := blk.pages[p.Page]
	return collab.PageMetadata{HoldsMappingData: page.holdsMapping, MVPN: page.mvpn, Valid: page.valid}, nil
}

// ConnectTransactionServiced implements collab.FlashController.
func (f *FlashController) ConnectTransactionServiced(cb func(tr any)) {
	f.callback = cb
}

// notifyServiced is called by the TSU once it has scheduled tr, standing in
// for the PHY actually completing the operation.
func (f *FlashController) notifyServiced(tr any) {
	if f.callback != nil {
		f.callback(tr)
	}
}
