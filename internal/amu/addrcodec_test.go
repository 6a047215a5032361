package amu

import "testing"

// TestAddrCodecRoundTrip covers Encode/Decode as inverses across the full
// geometry's address space.
func TestAddrCodecRoundTrip(t *testing.T) {
	g := Geometry{Channels: 2, Chips: 2, Dies: 1, Planes: 2, Blocks: 3, PagesPerBlock: 4}
	c, err := NewAddrCodec(g)
	if err != nil {
		t.Fatalf("NewAddrCodec: %v", err)
	}
	for ch := uint32(0); ch < g.Channels; ch++ {
		for chip := uint32(0); chip < g.Chips; chip++ {
			for pl := uint32(0); pl < g.Planes; pl++ {
				for blk := uint32(0); blk < g.Blocks; blk++ {
					for pg := uint32(0); pg < g.PagesPerBlock; pg++ {
						addr := PhysicalAddress{Channel: ch, Chip: chip, Die: 0, Plane: pl, Block: blk, Page: pg}
						got := c.Decode(c.Encode(addr))
						if got != addr {
							t.Fatalf("round trip mismatch: want %+v got %+v", addr, got)
						}
					}
				}
			}
		}
	}
}

// TestAddrCodecRejectsZeroAxis covers the configuration guard: every axis
// must be nonzero.
func TestAddrCodecRejectsZeroAxis(t *testing.T) {
	_, err := NewAddrCodec(Geometry{Channels: 0, Chips: 1, Dies: 1, Planes: 1, Blocks: 1, PagesPerBlock: 1})
	if err == nil {
		t.Fatalf("expected an error for a zero channel count")
	}
}

// TestAddrCodecPageRefRoundTrip covers the PageRef <-> PPA conversion the
// engine uses at the collab boundary.
func TestAddrCodecPageRefRoundTrip(t *testing.T) {
	g := Geometry{Channels: 2, Chips: 2, Dies: 1, Planes: 2, Blocks: 3, PagesPerBlock: 4}
	c, err := NewAddrCodec(g)
	if err != nil {
		t.Fatalf("NewAddrCodec: %v", err)
	}
	addr := PhysicalAddress{Channel: 1, Chip: 0, Die: 0, Plane: 1, Block: 2, Page: 3}
	ppa := c.Encode(addr)
	ref := c.PageRef(ppa)
	back := c.FromPageRef(ref)
	if back != ppa {
		t.Fatalf("expected FromPageRef(PageRef(ppa))==ppa, got %d want %d", back, ppa)
	}
}
