package amu

import "container/list"

// CMTEntryStatus is the lifecycle state of one CMT slot.
type CMTEntryStatus int

const (
	Free CMTEntryStatus = iota
	Waiting
	Valid
)

func (s CMTEntryStatus) String() string {
	switch s {
	case Free:
		return "FREE"
	case Waiting:
		return "WAITING"
	default:
		return "VALID"
	}
}

// cmtKey composes the stream and LPA into the CMT's lookup key, so a shared
// CMT can hold entries from multiple streams without collision.
type cmtKey struct {
	stream StreamID
	lpa    LPA
}

// CMTSlot is one cached translation.
type CMTSlot struct {
	PPA    PPA
	Bitmap PageStatusBitmap
	Dirty  bool
	Status CMTEntryStatus
	Stream StreamID
	LPA    LPA
}

// cmtNode is the payload stored in the intrusive LRU list; it carries the
// key so Evict can report which (stream, LPA) left the cache.
type cmtNode struct {
	key  cmtKey
	slot CMTSlot
}

// CMT is the bounded-capacity LRU Cached Mapping Table (C1). Lookup,
// insert, and eviction are all O(1): the index maps straight to a
// *list.Element, so MoveToFront/Remove never search the list. This mirrors
// the pattern grounded in buffer-pool implementations in the reference
// corpus (an index map of id -> *list.Element alongside a container/list
// LRU), generalized here to a composite (stream, LPA) key and a slot that
// additionally tracks sector-bitmap and dirty state instead of only a
// pinned/dirty page.
type CMT struct {
	capacity int
	index    map[cmtKey]*list.Element
	lru      *list.List // front = MRU, back = LRU
}

// NewCMT constructs a CMT with the given entry capacity.
func NewCMT(capacity int) *CMT {
	return &CMT{
		capacity: capacity,
		index:    make(map[cmtKey]*list.Element, capacity),
		lru:      list.New(),
	}
}

// Capacity returns the configured entry capacity.
func (c *CMT) Capacity() int { return c.capacity }

// Len returns the current occupancy.
func (c *CMT) Len() int { return c.lru.Len() }

// Exists reports whether (stream, lpa) is present with VALID status.
func (c *CMT) Exists(stream StreamID, lpa LPA) bool {
	el, ok := c.index[cmtKey{stream, lpa}]
	if !ok {
		return false
	}
	return el.Value.(*cmtNode).slot.Status == Valid
}

// IsSlotReservedWaiting reports whether (stream, lpa) holds a WAITING slot.
func (c *CMT) IsSlotReservedWaiting(stream StreamID, lpa LPA) bool {
	el, ok := c.index[cmtKey{stream, lpa}]
	if !ok {
		return false
	}
	return el.Value.(*cmtNode).slot.Status == Waiting
}

// CheckFreeSlotAvailability reports whether an insert can proceed without
// first evicting.
func (c *CMT) CheckFreeSlotAvailability() bool {
	return c.lru.Len() < c.capacity
}

// Reserve inserts a new WAITING slot at the MRU position.
//
// Returns a *LogicError if the key already exists, and a *LogicError if the
// cache is at capacity (the caller must Evict first — spec invariant I7).
func (c *CMT) Reserve(stream StreamID, lpa LPA) error {
	key := cmtKey{stream, lpa}
	if _, ok := c.index[key]; ok {
		return &LogicError{Op: "CMT.Reserve", Want: "key must not already exist"}
	}
	if c.lru.Len() >= c.capacity {
		return &LogicError{Op: "CMT.Reserve", Want: "cache is full; evict before reserve"}
	}
	node := &cmtNode{key: key, slot: CMTSlot{Status: Waiting, Stream: stream, LPA: lpa}}
	c.index[key] = c.lru.PushFront(node)
	return nil
}

// Insert transitions a reserved slot to VALID, clearing dirty.
func (c *CMT) Insert(stream StreamID, lpa LPA, ppa PPA, bitmap PageStatusBitmap) error {
	el, ok := c.index[cmtKey{stream, lpa}]
	if !ok {
		return &LogicError{Op: "CMT.Insert", Want: "slot must be reserved first"}
	}
	node := el.Value.(*cmtNode)
	node.slot.PPA = ppa
	node.slot.Bitmap = bitmap
	node.slot.Dirty = false
	node.slot.Status = Valid
	c.lru.MoveToFront(el)
	return nil
}

// Update sets a VALID slot's mapping and marks it dirty.
func (c *CMT) Update(stream StreamID, lpa LPA, ppa PPA, bitmap PageStatusBitmap) error {
	el, ok := c.index[cmtKey{stream, lpa}]
	if !ok {
		return &LogicError{Op: "CMT.Update", Want: "slot must exist"}
	}
	node := el.Value.(*cmtNode)
	if node.slot.Status != Valid {
		return &LogicError{Op: "CMT.Update", Want: "slot must be VALID"}
	}
	node.slot.PPA = ppa
	node.slot.Bitmap = bitmap
	node.slot.Dirty = true
	c.lru.MoveToFront(el)
	return nil
}

// RetrievePPA returns the cached PPA, moving the slot to MRU.
func (c *CMT) RetrievePPA(stream StreamID, lpa LPA) (PPA, error) {
	el, ok := c.index[cmtKey{stream, lpa}]
	if !ok {
		return NoPPA, &LogicError{Op: "CMT.RetrievePPA", Want: "slot must exist"}
	}
	node := el.Value.(*cmtNode)
	if node.slot.Status != Valid {
		return NoPPA, &LogicError{Op: "CMT.RetrievePPA", Want: "slot must be VALID"}
	}
	c.lru.MoveToFront(el)
	return node.slot.PPA, nil
}

// Bitmap returns the cached sector-validity bitmap for (stream, lpa).
func (c *CMT) Bitmap(stream StreamID, lpa LPA) (PageStatusBitmap, error) {
	el, ok := c.index[cmtKey{stream, lpa}]
	if !ok {
		return 0, &LogicError{Op: "CMT.Bitmap", Want: "slot must exist"}
	}
	return el.Value.(*cmtNode).slot.Bitmap, nil
}

// IsDirty reports the dirty bit of a VALID slot.
func (c *CMT) IsDirty(stream StreamID, lpa LPA) bool {
	el, ok := c.index[cmtKey{stream, lpa}]
	if !ok {
		return false
	}
	return el.Value.(*cmtNode).slot.Dirty
}

// MakeClean clears the dirty bit, e.g. after a writeback completes.
func (c *CMT) MakeClean(stream StreamID, lpa LPA) {
	if el, ok := c.index[cmtKey{stream, lpa}]; ok {
		el.Value.(*cmtNode).slot.Dirty = false
	}
}

// EvictOne removes the least-recently-used slot and returns a copy of it.
// The caller inspects Dirty to decide whether a mapping-page writeback is
// required. Returns ok=false if the CMT is empty.
func (c *CMT) EvictOne() (slot CMTSlot, ok bool) {
	back := c.lru.Back()
	if back == nil {
		return CMTSlot{}, false
	}
	node := back.Value.(*cmtNode)
	delete(c.index, node.key)
	c.lru.Remove(back)
	return node.slot, true
}

// Remove drops (stream, lpa) unconditionally, whether the slot is valid or
// only reserved.
func (c *CMT) Remove(stream StreamID, lpa LPA) {
	if el, ok := c.index[cmtKey{stream, lpa}]; ok {
		delete(c.index, cmtKey{stream, lpa})
		c.lru.Remove(el)
	}
}
