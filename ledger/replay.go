/*
replay.go - As-of-date balance computation

PURPOSE:
  A member's balance "as of" a date is derived by replaying every persisted
  report whose stated month/year falls on or before that date. The report's
  position on the timeline is its effective date (first day of its month/year),
  NOT its save timestamp: reports can be entered out of order or backdated,
  and a March report entered after April must not see April's transactions
  when validating March's withdrawal.

EDGE CASES:
  - Reports with a month label outside the fixed twelve, or a bad year, are
    skipped and reported back to the caller for logging; they are never fatal.
  - The replay does not exclude a report currently being edited: a draft's
    own in-progress entries are invisible to it. Single-editor assumption.

SEE ALSO:
  - month.go: effective-date construction
  - society package: fetches reports and logs skipped ones
*/
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Replay holds the outcome of one as-of-date replay.
type Replay struct {
	Net     decimal.Decimal
	Skipped []ReportID // reports with an unparseable month/year
}

// entrySide selects which side of an entry a replay accumulates.
type entrySide func(ReportEntry) decimal.Decimal

// ReplayNetSavings computes a member's net savings (deposits minus
// withdrawals) across all reports effective on or before the cutoff.
func ReplayNetSavings(reports []MonthlyReport, id MemberID, cutoff time.Time) Replay {
	return replay(reports, id, cutoff, ReportEntry.NetSavings)
}

// ReplayNetLoan computes a member's net outstanding loan (disbursed minus
// repaid) across all reports effective on or before the cutoff.
func ReplayNetLoan(reports []MonthlyReport, id MemberID, cutoff time.Time) Replay {
	return replay(reports, id, cutoff, ReportEntry.NetLoan)
}

func replay(reports []MonthlyReport, id MemberID, cutoff time.Time, side entrySide) Replay {
	var out Replay
	for _, r := range reports {
		effective, err := EffectiveDate(r.Month, r.Year)
		if err != nil {
			out.Skipped = append(out.Skipped, r.ID)
			continue
		}
		if effective.After(cutoff) {
			continue
		}
		for _, e := range r.Entries {
			if e.MemberID == id {
				out.Net = out.Net.Add(side(e))
			}
		}
	}
	return out
}

// SortByEffectiveDate orders reports chronologically by their stated
// month/year. Reports with an unparseable month sort first and keep their
// relative order.
func SortByEffectiveDate(reports []MonthlyReport) []MonthlyReport {
	type keyed struct {
		report MonthlyReport
		at     time.Time
	}
	items := make([]keyed, len(reports))
	for i, r := range reports {
		items[i].report = r
		if t, err := EffectiveDate(r.Month, r.Year); err == nil {
			items[i].at = t
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].at.Before(items[j].at) })
	sorted := make([]MonthlyReport, len(items))
	for i, it := range items {
		sorted[i] = it.report
	}
	return sorted
}
