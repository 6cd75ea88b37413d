package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxRenewals caps how often a single loan's due date can be extended.
const MaxRenewals = 2

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "active"
	LoanStatusOverdue  LoanStatus = "overdue"
	LoanStatusReturned LoanStatus = "returned"
)

// loanTransitions is the exhaustive transition table for loans.
// Transitions are monotonic: active -> overdue -> returned, never reversed.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusActive:   {LoanStatusOverdue, LoanStatusReturned},
	LoanStatusOverdue:  {LoanStatusReturned},
	LoanStatusReturned: {},
}

// IsValid reports whether the status is a known lifecycle state.
func (s LoanStatus) IsValid() bool {
	_, ok := loanTransitions[s]
	return ok
}

// IsLive reports whether the loan still occupies a copy (active or overdue).
func (s LoanStatus) IsLive() bool {
	return s == LoanStatusActive || s == LoanStatusOverdue
}

// CanTransitionTo reports whether the transition to next is listed in the
// transition table.
func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Loan is the authoritative record of one borrowed copy.
type Loan struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	BookID       uuid.UUID
	LoanDate     time.Time
	DueDate      *time.Time // nil for white-tagged material
	ReturnDate   *time.Time
	Status       LoanStatus
	RenewalCount int
	Fine         *decimal.Decimal // set on return, zero when returned on time
}

// IsPastDue reports whether the loan's due date has passed at the given time.
// Loans without a due date are never past due.
func (l Loan) IsPastDue(now time.Time) bool {
	return l.DueDate != nil && now.After(*l.DueDate)
}

// NewLoan decides the creation of a loan for one copy of book by userID.
// It fails with a conflict when no copy is available or when the user
// already holds a live loan for the same book.
func NewLoan(book Book, userID uuid.UUID, userHoldsBook bool, now time.Time) (Loan, error) {
	if !book.HasAvailableCopy() {
		return Loan{}, errors.Join(ErrConflict, ErrNoCopiesAvailable)
	}

	if userHoldsBook {
		return Loan{}, errors.Join(ErrConflict, ErrDuplicateLoan)
	}

	return Loan{
		ID:           uuid.New(),
		UserID:       userID,
		BookID:       book.ID,
		LoanDate:     now,
		DueDate:      book.Tag.DueDateFrom(now),
		Status:       LoanStatusActive,
		RenewalCount: 0,
	}, nil
}

// Returned decides the return of the loan at the given time under the
// book's tag policy. It computes the fine, stamps the return date and
// transitions the status, rejecting loans that are already returned.
func (l Loan) Returned(tag Tag, now time.Time) (Loan, error) {
	if l.Status == LoanStatusReturned {
		return Loan{}, errors.Join(ErrState, ErrLoanAlreadyReturned)
	}

	if !l.Status.CanTransitionTo(LoanStatusReturned) {
		return Loan{}, errors.Join(ErrState, ErrInvalidStatusTransition)
	}

	fine := FineFor(tag, l.DueDate, now)

	returned := l
	returned.Status = LoanStatusReturned
	returned.ReturnDate = &now
	returned.Fine = &fine

	return returned, nil
}

// MarkedOverdue decides the sweep transition of an active past-due loan.
// It is idempotent: loans already overdue are returned unchanged, loans not
// past due or without a due date are returned unchanged as well.
func (l Loan) MarkedOverdue(now time.Time) Loan {
	if l.Status != LoanStatusActive || !l.IsPastDue(now) {
		return l
	}

	overdue := l
	overdue.Status = LoanStatusOverdue

	return overdue
}

// CanRequestRenewal checks the renewal prerequisites for the loan:
// the loan must still be live, have a due date to extend, be below the
// renewal cap, and have no renewal request pending.
func (l Loan) CanRequestRenewal(hasPendingRequest bool) error {
	if !l.Status.IsLive() {
		return errors.Join(ErrState, ErrLoanAlreadyReturned)
	}

	if l.DueDate == nil {
		return errors.Join(ErrState, ErrLoanHasNoDueDate)
	}

	if l.RenewalCount >= MaxRenewals {
		return errors.Join(ErrConflict, ErrRenewalLimitReached)
	}

	if hasPendingRequest {
		return errors.Join(ErrConflict, ErrRenewalAlreadyPending)
	}

	return nil
}

// RenewalApproved decides the approval of a renewal under the book's tag
// policy. The reservation queue is checked here, at resolution time, so a
// reservation that arrived after the request was filed still blocks the
// extension.
func (l Loan) RenewalApproved(tag Tag, liveReservations int) (Loan, error) {
	if !l.Status.IsLive() {
		return Loan{}, errors.Join(ErrState, ErrLoanAlreadyReturned)
	}

	if l.DueDate == nil {
		return Loan{}, errors.Join(ErrState, ErrLoanHasNoDueDate)
	}

	if l.RenewalCount >= MaxRenewals {
		return Loan{}, errors.Join(ErrConflict, ErrRenewalLimitReached)
	}

	if liveReservations > 0 {
		return Loan{}, errors.Join(ErrConflict, ErrRenewalBlockedByQueue)
	}

	days, _ := tag.LoanPeriodDays()
	extended := l.DueDate.AddDate(0, 0, days)

	renewed := l
	renewed.DueDate = &extended
	renewed.RenewalCount++

	return renewed, nil
}
