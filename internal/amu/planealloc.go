package amu

import "fmt"

// Axis names an allocation dimension.
type Axis int

const (
	AxisChannel Axis = iota
	AxisChip
	AxisDie
	AxisPlane
	axisCount
)

// PlaneScheme names one of the 24 permutations of {channel, chip, die,
// plane} describing which axis varies fastest when an LPA is decomposed
// into a physical plane address. The scheme is configuration, picked once
// at construction (spec.md §4.4): the same scheme serves user writes,
// translation writes, preconditioning, and online read-entry creation.
type PlaneScheme int

// schemeOrders[s] lists the four axes from fastest-varying to
// slowest-varying for scheme s. All 24 permutations of the four axes are
// enumerated in lexicographic order of (fastest..slowest) so the scheme
// space is a simple, table-driven cartesian product rather than a 24-way
// switch.
var schemeOrders = func() [24][4]Axis {
	axes := [4]Axis{AxisChannel, AxisChip, AxisDie, AxisPlane}
	var perms [24][4]Axis
	i := 0
	var permute func(remaining []Axis, chosen []Axis)
	permute = func(remaining []Axis, chosen []Axis) {
		if len(remaining) == 0 {
			copy(perms[i][:], chosen)
			i++
			return
		}
		for idx, a := range remaining {
			next := make([]Axis, 0, len(remaining)-1)
			next = append(next, remaining[:idx]...)
			next = append(next, remaining[idx+1:]...)
			permute(next, append(chosen, a))
		}
	}
	permute(axes[:], nil)
	return perms
}()

// SchemeCount is the number of named plane-allocation schemes (4! = 24).
const SchemeCount = 24

// StreamGeometry lists the physical ids a stream is allowed to allocate
// from, per axis.
type StreamGeometry struct {
	ChannelIDs []uint32
	ChipIDs    []uint32
	DieIDs     []uint32
	PlaneIDs   []uint32
}

func (g StreamGeometry) axisIDs(a Axis) []uint32 {
	switch a {
	case AxisChannel:
		return g.ChannelIDs
	case AxisChip:
		return g.ChipIDs
	case AxisDie:
		return g.DieIDs
	default:
		return g.PlaneIDs
	}
}

// PlaneAllocator is the pure function LPA -> (channel, chip, die, plane)
// for one scheme and one stream's geometry (C5).
type PlaneAllocator struct {
	scheme PlaneScheme
	geom   StreamGeometry
	order  [4]Axis
}

// NewPlaneAllocator validates scheme and geometry and builds an allocator.
func NewPlaneAllocator(scheme PlaneScheme, geom StreamGeometry) (*PlaneAllocator, error) {
	if scheme < 0 || int(scheme) >= SchemeCount {
		return nil, &ConfigError{Field: "plane-allocation-scheme", Value: int(scheme)}
	}
	for _, ids := range [][]uint32{geom.ChannelIDs, geom.ChipIDs, geom.DieIDs, geom.PlaneIDs} {
		if len(ids) == 0 {
			return nil, &ConfigError{Field: "stream-geometry", Value: "every axis needs at least one id"}
		}
	}
	return &PlaneAllocator{scheme: scheme, geom: geom, order: schemeOrders[scheme]}, nil
}

// Allocate performs the mixed-radix decomposition of lpa modulo the product
// of the axis sizes (in the scheme's fastest-to-slowest order) and maps
// each resulting index onto the stream's configured id lists.
func (p *PlaneAllocator) Allocate(lpa LPA) PhysicalAddress {
	var idx [4]uint32
	rem := uint64(lpa)
	for _, axis := range p.order {
		ids := p.geom.axisIDs(axis)
		n := uint64(len(ids))
		i := rem % n
		rem /= n
		idx[axis] = ids[i]
	}
	return PhysicalAddress{
		Channel: idx[AxisChannel],
		Chip:    idx[AxisChip],
		Die:     idx[AxisDie],
		Plane:   idx[AxisPlane],
	}
}

// String names a scheme by its axis order, e.g. "CWDP" for the canonical
// (channel fastest .. plane slowest) ordering.
func (s PlaneScheme) String() string {
	if s < 0 || int(s) >= SchemeCount {
		return fmt.Sprintf("PlaneScheme(%d)", int(s))
	}
	letters := [4]byte{'C', 'W', 'D', 'P'}
	order := schemeOrders[s]
	buf := make([]byte, 4)
	for i, a := range order {
		buf[i] = letters[a]
	}
	return string(buf)
}
