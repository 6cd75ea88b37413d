package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

const hoursPerDay = 24

// OverdueDays returns the number of started days between the due date and
// the return time, never negative. A loan without a due date is never
// overdue.
func OverdueDays(dueDate *time.Time, returnedAt time.Time) int {
	if dueDate == nil || !returnedAt.After(*dueDate) {
		return 0
	}

	elapsed := returnedAt.Sub(*dueDate)
	days := int(elapsed.Hours() / hoursPerDay)

	if elapsed%(hoursPerDay*time.Hour) != 0 {
		days++ // a started day counts as a full overdue day
	}

	return days
}

// FineFor computes the monetary penalty for a loan returned at returnedAt:
// overdue days times the tag's per-day rate. Deterministic given its inputs,
// zero for on-time returns and for white-tagged material.
func FineFor(tag Tag, dueDate *time.Time, returnedAt time.Time) decimal.Decimal {
	days := OverdueDays(dueDate, returnedAt)
	if days == 0 {
		return decimal.Zero
	}

	return tag.PerDayRate().Mul(decimal.NewFromInt(int64(days)))
}
