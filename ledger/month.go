package ledger

import "time"

// =============================================================================
// MONTH - fixed calendar-month labels
// =============================================================================

// Month is one of the 12 fixed calendar-month labels. Reports store the label,
// not an index; anything outside the table is invalid and skipped by replay.
type Month string

var Months = [12]Month{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthIndex returns the 0-based index of a month label, or -1 if the label
// is not one of the fixed twelve.
func MonthIndex(m Month) int {
	for i, name := range Months {
		if name == m {
			return i
		}
	}
	return -1
}

// ValidMonth reports whether the label is one of the fixed twelve.
func ValidMonth(m Month) bool { return MonthIndex(m) >= 0 }

// EffectiveDate returns the first day of (month, year) in UTC. This is the
// report's position on the timeline: replay and validation order reports by
// their stated month/year, never by when they happened to be saved.
func EffectiveDate(m Month, year int) (time.Time, error) {
	idx := MonthIndex(m)
	if idx < 0 || year <= 0 {
		return time.Time{}, &InvalidMonthError{Month: m, Year: year}
	}
	return time.Date(year, time.Month(idx+1), 1, 0, 0, 0, 0, time.UTC), nil
}

// EndOfYear returns the last instant considered part of a year for replay
// cutoffs.
func EndOfYear(year int) time.Time {
	return time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
}
