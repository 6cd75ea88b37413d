package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RenewalStatus is the state of a renewal request. Pending is the only
// non-terminal state.
type RenewalStatus string

const (
	RenewalStatusPending  RenewalStatus = "pending"
	RenewalStatusApproved RenewalStatus = "approved"
	RenewalStatusDenied   RenewalStatus = "denied"
)

var renewalTransitions = map[RenewalStatus][]RenewalStatus{
	RenewalStatusPending:  {RenewalStatusApproved, RenewalStatusDenied},
	RenewalStatusApproved: {},
	RenewalStatusDenied:   {},
}

// IsValid reports whether the status is a known renewal state.
func (s RenewalStatus) IsValid() bool {
	_, ok := renewalTransitions[s]
	return ok
}

// CanTransitionTo reports whether the transition to next is allowed.
func (s RenewalStatus) CanTransitionTo(next RenewalStatus) bool {
	for _, allowed := range renewalTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// RenewalRequest gates the extension of a loan's due date. At most one
// pending request exists per loan.
type RenewalRequest struct {
	ID          uuid.UUID
	LoanID      uuid.UUID
	UserID      uuid.UUID
	Status      RenewalStatus
	RequestDate time.Time
}

// NewRenewalRequest decides the filing of a renewal request for the loan.
func NewRenewalRequest(loan Loan, hasPendingRequest bool, now time.Time) (RenewalRequest, error) {
	if err := loan.CanRequestRenewal(hasPendingRequest); err != nil {
		return RenewalRequest{}, err
	}

	return RenewalRequest{
		ID:          uuid.New(),
		LoanID:      loan.ID,
		UserID:      loan.UserID,
		Status:      RenewalStatusPending,
		RequestDate: now,
	}, nil
}

// Resolved transitions the request to its terminal state. Only pending
// requests can be resolved.
func (r RenewalRequest) Resolved(approve bool) (RenewalRequest, error) {
	if r.Status != RenewalStatusPending {
		return RenewalRequest{}, errors.Join(ErrState, ErrRenewalNotPending)
	}

	next := RenewalStatusDenied
	if approve {
		next = RenewalStatusApproved
	}

	if !r.Status.CanTransitionTo(next) {
		return RenewalRequest{}, errors.Join(ErrState, ErrInvalidStatusTransition)
	}

	resolved := r
	resolved.Status = next

	return resolved, nil
}
