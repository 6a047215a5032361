package amu

import "testing"

// TestPlaneAllocatorDeterministic covers the core contract: Allocate is a
// pure function of LPA, so repeated calls for the same LPA must agree.
func TestPlaneAllocatorDeterministic(t *testing.T) {
	p, err := NewPlaneAllocator(0, StreamGeometry{
		ChannelIDs: []uint32{0, 1}, ChipIDs: []uint32{0}, DieIDs: []uint32{0}, PlaneIDs: []uint32{0, 1},
	})
	if err != nil {
		t.Fatalf("NewPlaneAllocator: %v", err)
	}
	first := p.Allocate(42)
	second := p.Allocate(42)
	if first != second {
		t.Fatalf("expected Allocate to be deterministic, got %+v then %+v", first, second)
	}
}

// TestPlaneAllocatorRestrictsToConfiguredIDs covers the stream-isolation
// contract: a stream can only land on the channel/chip/die/plane ids it was
// configured with.
func TestPlaneAllocatorRestrictsToConfiguredIDs(t *testing.T) {
	p, err := NewPlaneAllocator(0, StreamGeometry{
		ChannelIDs: []uint32{5}, ChipIDs: []uint32{7}, DieIDs: []uint32{0}, PlaneIDs: []uint32{1, 3},
	})
	if err != nil {
		t.Fatalf("NewPlaneAllocator: %v", err)
	}
	for lpa := LPA(0); lpa < 20; lpa++ {
		addr := p.Allocate(lpa)
		if addr.Channel != 5 || addr.Chip != 7 || addr.Die != 0 {
			t.Fatalf("lpa %d escaped its stream's configured ids: %+v", lpa, addr)
		}
		if addr.Plane != 1 && addr.Plane != 3 {
			t.Fatalf("lpa %d landed on an unconfigured plane: %+v", lpa, addr)
		}
	}
}

// TestPlaneAllocatorRejectsInvalidScheme covers the configuration guard on
// the scheme index.
func TestPlaneAllocatorRejectsInvalidScheme(t *testing.T) {
	_, err := NewPlaneAllocator(SchemeCount, StreamGeometry{
		ChannelIDs: []uint32{0}, ChipIDs: []uint32{0}, DieIDs: []uint32{0}, PlaneIDs: []uint32{0},
	})
	if err == nil {
		t.Fatalf("expected an error for an out-of-range scheme")
	}
}

// TestPlaneAllocatorRejectsEmptyAxis covers the configuration guard that
// every axis needs at least one configured id.
func TestPlaneAllocatorRejectsEmptyAxis(t *testing.T) {
	_, err := NewPlaneAllocator(0, StreamGeometry{
		ChannelIDs: nil, ChipIDs: []uint32{0}, DieIDs: []uint32{0}, PlaneIDs: []uint32{0},
	})
	if err == nil {
		t.Fatalf("expected an error when an axis has no configured ids")
	}
}

// TestPlaneSchemeString covers the canonical CWDP naming for scheme 0.
func TestPlaneSchemeString(t *testing.T) {
	if got := PlaneScheme(0).String(); got != "CWDP" {
		t.Fatalf("expected scheme 0 to be named CWDP, got %q", got)
	}
}
