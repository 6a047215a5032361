package amu

import "github.com/ronshih/caftlsim/internal/collab"

// Geometry describes the physical NAND array: the axis counts needed to
// pack and unpack a PPA into/from a (channel, chip, die, plane, block,
// page) tuple. This is global to the simulator (physical addresses must be
// unique across the whole array), unlike StreamGeometry which names the
// subset of ids one stream is allowed to allocate from.
type Geometry struct {
	Channels      uint32
	Chips         uint32
	Dies          uint32
	Planes        uint32
	Blocks        uint32
	PagesPerBlock uint32
}

// AddrCodec packs/unpacks PPAs against a fixed Geometry using a mixed-radix
// encoding, the same style of decomposition the Plane Allocator uses to
// turn an LPA into an axis tuple (spec.md §4.4), applied here in the
// opposite direction: a full physical address (down to block/page) rather
// than just a plane.
type AddrCodec struct {
	g Geometry
}

// NewAddrCodec validates geometry and builds a codec.
func NewAddrCodec(g Geometry) (*AddrCodec, error) {
	for field, v := range map[string]uint32{
		"channels": g.Channels, "chips": g.Chips, "dies": g.Dies,
		"planes": g.Planes, "blocks": g.Blocks, "pages-per-block": g.PagesPerBlock,
	} {
		if v == 0 {
			return nil, &ConfigError{Field: field, Value: v}
		}
	}
	return &AddrCodec{g: g}, nil
}

// Encode packs a physical address into a PPA.
func (c *AddrCodec) Encode(a PhysicalAddress) PPA {
	v := uint64(a.Channel)
	v = v*uint64(c.g.Chips) + uint64(a.Chip)
	v = v*uint64(c.g.Dies) + uint64(a.Die)
	v = v*uint64(c.g.Planes) + uint64(a.Plane)
	v = v*uint64(c.g.Blocks) + uint64(a.Block)
	v = v*uint64(c.g.PagesPerBlock) + uint64(a.Page)
	return PPA(v)
}

// Decode unpacks a PPA into a physical address.
func (c *AddrCodec) Decode(p PPA) PhysicalAddress {
	v := uint64(p)
	page := uint32(v % uint64(c.g.PagesPerBlock))
	v /= uint64(c.g.PagesPerBlock)
	block := uint32(v % uint64(c.g.Blocks))
	v /= uint64(c.g.Blocks)
	plane := uint32(v % uint64(c.g.Planes))
	v /= uint64(c.g.Planes)
	die := uint32(v % uint64(c.g.Dies))
	v /= uint64(c.g.Dies)
	chip := uint32(v % uint64(c.g.Chips))
	v /= uint64(c.g.Chips)
	channel := uint32(v)
	return PhysicalAddress{Channel: channel, Chip: chip, Die: die, Plane: plane, Block: block, Page: page}
}

// PageRef converts a PPA into the collab.PageRef the Block Manager and
// Flash Controller contracts speak in terms of.
func (c *AddrCodec) PageRef(p PPA) collab.PageRef {
	a := c.Decode(p)
	return collab.PageRef{
		Plane: collab.PlaneRef{Channel: a.Channel, Chip: a.Chip, Die: a.Die, Plane: a.Plane},
		Block: a.Block,
		Page:  a.Page,
	}
}

// FromPageRef packs a collab.PageRef (as returned by an allocation call)
// back into a PPA.
func (c *AddrCodec) FromPageRef(r collab.PageRef) PPA {
	return c.Encode(PhysicalAddress{
		Channel: r.Plane.Channel, Chip: r.Plane.Chip, Die: r.Plane.Die, Plane: r.Plane.Plane,
		Block: r.Block, Page: r.Page,
	})
}

// PlaneRefOf narrows a full physical address down to its plane.
func PlaneRefOf(a PhysicalAddress) collab.PlaneRef {
	return collab.PlaneRef{Channel: a.Channel, Chip: a.Chip, Die: a.Die, Plane: a.Plane}
}
