package engine

// Tracker records which addresses a traversal has queued and decoded.
type Tracker interface {
	// MarkQueued records va as queued. It returns false if va was queued
	// before.
	MarkQueued(va uint64) bool
	// MarkDecoded records va as decoded.
	MarkDecoded(va uint64)
	// IsDecoded reports whether va has been decoded.
	IsDecoded(va uint64) bool
}

// VisitedTracker is the default Tracker, backed by two sets. Entries are
// never removed.
type VisitedTracker struct {
	queued  map[uint64]struct{}
	decoded map[uint64]struct{}
}

// NewTracker returns an empty VisitedTracker.
func NewTracker() *VisitedTracker {
	return &VisitedTracker{
		queued:  make(map[uint64]struct{}),
		decoded: make(map[uint64]struct{}),
	}
}

func (v *VisitedTracker) MarkQueued(va uint64) bool {
	if _, ok := v.queued[va]; ok {
		return false
	}
	v.queued[va] = struct{}{}
	return true
}

func (v *VisitedTracker) MarkDecoded(va uint64) {
	v.queued[va] = struct{}{}
	v.decoded[va] = struct{}{}
}

func (v *VisitedTracker) IsDecoded(va uint64) bool {
	_, ok := v.decoded[va]
	return ok
}

// Decoded returns the number of decoded addresses.
func (v *VisitedTracker) Decoded() int {
	return len(v.decoded)
}
