package circulation

import "errors"

// Error kinds. Every failure surfaced by the domain or an engine wraps
// exactly one of these, so callers can classify errors with errors.Is
// without depending on operation-specific sentinels.
var (
	// ErrValidation marks malformed or nonsensical input.
	ErrValidation = errors.New("validation error")

	// ErrConflict marks operations rejected by a business rule that may
	// succeed later (no copies available, renewal limit, duplicates).
	ErrConflict = errors.New("conflict error")

	// ErrNotFound marks references to unknown books, loans, users,
	// renewal requests or reservations.
	ErrNotFound = errors.New("not found error")

	// ErrState marks operations that are invalid for the current status
	// of the entity, e.g. returning an already-returned loan.
	ErrState = errors.New("state error")
)

// Operation-specific sentinels, always joined with one of the kinds above.
var (
	ErrUnknownTag              = errors.New("unknown due-date tag")
	ErrNoCopiesAvailable       = errors.New("no copies of this book are available")
	ErrDuplicateLoan           = errors.New("user already holds an active loan for this book")
	ErrLoanAlreadyReturned     = errors.New("loan is already returned")
	ErrLoanHasNoDueDate        = errors.New("loan has no due date to extend")
	ErrRenewalLimitReached     = errors.New("renewal limit reached")
	ErrRenewalAlreadyPending   = errors.New("a renewal request is already pending for this loan")
	ErrRenewalNotPending       = errors.New("renewal request is not pending")
	ErrRenewalBlockedByQueue   = errors.New("renewal blocked by pending reservations")
	ErrCopyAvailableForLoan    = errors.New("copies are available, borrow directly instead of reserving")
	ErrDuplicateReservation    = errors.New("user is already queued for this book")
	ErrReservationNotClaimable = errors.New("reservation is not claimable")
	ErrClaimWindowElapsed      = errors.New("reservation claim window has elapsed")
	ErrInvalidStatusTransition = errors.New("status transition not allowed")
)

// ErrorKind is the wire-level classification of a failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindState      ErrorKind = "state"
	KindInternal   ErrorKind = "internal"
)

// KindOf classifies an error into its ErrorKind. Errors that wrap none of
// the domain kinds are reported as KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrState):
		return KindState
	default:
		return KindInternal
	}
}
