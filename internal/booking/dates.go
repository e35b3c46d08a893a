package booking

import (
	"strings"
	"time"

	"github.com/iliyamo/library-reservation/internal/apperr"
)

// DateLayout is the wire and storage format of reservation dates.
const DateLayout = "2006-01-02"

// Stay length limits, in days.
const (
	MinStayDays = 1
	MaxStayDays = 30
)

// Violation messages reported by ValidateRange.
const (
	ViolationStartInPast    = "start in past"
	ViolationEndBeforeStart = "end before start"
	ViolationTooShort       = "reservation shorter than one day"
	ViolationTooLong        = "reservation longer than thirty days"
)

// Day returns midnight UTC of t's calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a Day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// Range is a closed interval of calendar days.
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange normalizes both ends to Days.
func NewRange(start, end time.Time) Range {
	return Range{Start: Day(start), End: Day(end)}
}

// Overlaps reports whether r and o share at least one day. Touching
// endpoints overlap.
func (r Range) Overlaps(o Range) bool {
	return !r.Start.After(o.End) && !o.Start.After(r.End)
}

// Contains reports whether day falls inside r.
func (r Range) Contains(day time.Time) bool {
	day = Day(day)
	return !day.Before(r.Start) && !day.After(r.End)
}

// Violations lists every date rule r breaks relative to today.
func Violations(r Range, today time.Time) []string {
	today = Day(today)
	var out []string
	if r.Start.Before(today) {
		out = append(out, ViolationStartInPast)
	}
	if r.End.Before(r.Start) {
		out = append(out, ViolationEndBeforeStart)
	}
	if r.End.Before(r.Start.AddDate(0, 0, MinStayDays)) {
		out = append(out, ViolationTooShort)
	}
	if r.End.After(r.Start.AddDate(0, 0, MaxStayDays)) {
		out = append(out, ViolationTooLong)
	}
	return out
}

// ValidateRange returns an InvalidInput error naming the violated rules, or
// nil when r is acceptable.
func ValidateRange(op string, r Range, today time.Time) error {
	v := Violations(r, today)
	if len(v) == 0 {
		return nil
	}
	return apperr.Invalid(op, strings.Join(v, "; "))
}
