package circulation

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tag is the due-date policy class assigned to a book. It determines the
// loan period and the per-day fine rate.
type Tag string

const (
	// TagRed marks short-loan reference works: one day, strictest fine rate.
	TagRed Tag = "red"

	// TagYellow marks standard circulation: five days.
	TagYellow Tag = "yellow"

	// TagWhite marks internal/unrestricted material: no due date, never
	// overdue, no fines.
	TagWhite Tag = "white"
)

// Fine rates per overdue day, by tag. Red is deliberately the strictest.
var (
	redDailyRate    = decimal.RequireFromString("1.50")
	yellowDailyRate = decimal.RequireFromString("0.50")
)

// IsValid reports whether the tag is one of the known policy classes.
func (t Tag) IsValid() bool {
	switch t {
	case TagRed, TagYellow, TagWhite:
		return true
	default:
		return false
	}
}

// LoanPeriodDays returns the loan period for the tag and whether the period
// is limited at all. White-tagged material has no due date.
func (t Tag) LoanPeriodDays() (days int, limited bool) {
	switch t {
	case TagRed:
		return 1, true
	case TagYellow:
		return 5, true
	default:
		return 0, false
	}
}

// PerDayRate returns the fine accrued per overdue day for the tag.
func (t Tag) PerDayRate() decimal.Decimal {
	switch t {
	case TagRed:
		return redDailyRate
	case TagYellow:
		return yellowDailyRate
	default:
		return decimal.Zero
	}
}

// DueDateFrom computes the due date for a loan created at loanDate under
// this tag's policy. It returns nil for unlimited (white) material.
func (t Tag) DueDateFrom(loanDate time.Time) *time.Time {
	days, limited := t.LoanPeriodDays()
	if !limited {
		return nil
	}

	due := loanDate.AddDate(0, 0, days)

	return &due
}

// Book is a cataloged title with its copy counts.
// AvailableCopies is only ever adjusted inside ledger operations and stays
// within [0, TotalCopies].
type Book struct {
	ID              uuid.UUID
	Title           string
	Category        string
	Tag             Tag
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
}

// HasAvailableCopy reports whether at least one copy can be lent right now.
func (b Book) HasAvailableCopy() bool {
	return b.AvailableCopies > 0
}

// ValidateNewBook checks the input for cataloging a new title.
func ValidateNewBook(title string, tag Tag, totalCopies int) error {
	if strings.TrimSpace(title) == "" {
		return errors.Join(ErrValidation, errors.New("title must not be empty"))
	}

	if !tag.IsValid() {
		return errors.Join(ErrValidation, ErrUnknownTag)
	}

	if totalCopies < 1 {
		return errors.Join(ErrValidation, errors.New("total copies must be at least 1"))
	}

	return nil
}
