// Package booking holds the date rules for reservations and the conflict
// detector that decides whether a book is free for a closed interval of
// days.
package booking

import "context"

// OverlapCounter counts reservations of bookID overlapping r, ignoring the
// reservation with id excludeID (zero excludes nothing). Implementations
// are expected to run a single range predicate against storage.
type OverlapCounter interface {
	CountOverlapping(ctx context.Context, bookID uint64, r Range, excludeID uint64) (int, error)
}

// Detector answers availability questions for books.
type Detector struct {
	store OverlapCounter
}

// NewDetector returns a Detector backed by store.
func NewDetector(store OverlapCounter) *Detector {
	return &Detector{store: store}
}

// IsAvailable reports whether no reservation of bookID other than
// excludeID overlaps r.
func (d *Detector) IsAvailable(ctx context.Context, bookID uint64, r Range, excludeID uint64) (bool, error) {
	n, err := d.store.CountOverlapping(ctx, bookID, r, excludeID)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Slot is a stored reservation interval.
type Slot struct {
	ID uint64
	Range
}

// FirstConflict scans slots and returns the first one overlapping r,
// skipping excludeID.
func FirstConflict(slots []Slot, r Range, excludeID uint64) (Slot, bool) {
	for _, s := range slots {
		if excludeID != 0 && s.ID == excludeID {
			continue
		}
		if s.Range.Overlaps(r) {
			return s, true
		}
	}
	return Slot{}, false
}
