package simmodel

// TSU is a minimal stand-in for the Transaction Scheduling Unit: it holds
// one batch at a time and, on Schedule, reports each submitted operation
// serviced in submission order. The simulator's notion of time advances
// through the Clock, not through queueing delay here — a full scheduler
// with per-plane timing is explicitly out of scope (spec.md §1).
type TSU struct {
	fc    *FlashController
	batch []any
}

// NewTSU constructs a TSU that raises the serviced signal through fc.
func NewTSU(fc *FlashController) *TSU {
	return &TSU{fc: fc}
}

// PrepareForSubmit implements collab.TSU.
func (t *TSU) PrepareForSubmit() { t.batch = t.batch[:0] }

// Submit implements collab.TSU.
func (t *TSU) Submit(tr any) error {
	t.batch = append(t.batch, tr)
	return nil
}

// Schedule implements collab.TSU: it services the whole batch immediately,
// in submission order.
func (t *TSU) Schedule() {
	for _, tr := range t.batch {
		t.fc.notifyServiced(tr)
	}
	t.batch = t.batch[:0]
}
