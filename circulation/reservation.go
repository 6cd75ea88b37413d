package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ReservationStatus is the state of a queued claim on a book.
type ReservationStatus string

const (
	// ReservationStatusQueued means the user is waiting in the FIFO queue.
	ReservationStatusQueued ReservationStatus = "queued"

	// ReservationStatusNotified means a copy became available, the user was
	// told, and the claim window is running.
	ReservationStatusNotified ReservationStatus = "notified"

	// ReservationStatusFulfilled means the user claimed the copy and a loan
	// was created.
	ReservationStatusFulfilled ReservationStatus = "fulfilled"

	// ReservationStatusExpired means the claim window elapsed unclaimed.
	ReservationStatusExpired ReservationStatus = "expired"

	// ReservationStatusCanceled means the user withdrew from the queue.
	ReservationStatusCanceled ReservationStatus = "canceled"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusQueued:    {ReservationStatusNotified, ReservationStatusCanceled},
	ReservationStatusNotified:  {ReservationStatusFulfilled, ReservationStatusExpired, ReservationStatusCanceled},
	ReservationStatusFulfilled: {},
	ReservationStatusExpired:   {},
	ReservationStatusCanceled:  {},
}

// IsValid reports whether the status is a known reservation state.
func (s ReservationStatus) IsValid() bool {
	_, ok := reservationTransitions[s]
	return ok
}

// IsLive reports whether the reservation still holds a place in the queue.
func (s ReservationStatus) IsLive() bool {
	return s == ReservationStatusQueued || s == ReservationStatusNotified
}

// CanTransitionTo reports whether the transition to next is allowed.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Reservation is a queued claim on a currently unavailable book, served in
// FIFO order by CreatedAt. QueuePosition is derived from that order (1 is
// the head) and not stored.
type Reservation struct {
	ID            uuid.UUID
	BookID        uuid.UUID
	UserID        uuid.UUID
	CreatedAt     time.Time
	NotifiedAt    *time.Time
	ClaimBy       *time.Time
	Status        ReservationStatus
	QueuePosition int
}

// NewReservation decides the queueing of a claim on book by userID.
// Reserving is only allowed while no copy is available; with a copy on the
// shelf the user must borrow directly.
func NewReservation(book Book, userID uuid.UUID, alreadyQueued bool, queueLength int, now time.Time) (Reservation, error) {
	if book.HasAvailableCopy() {
		return Reservation{}, errors.Join(ErrConflict, ErrCopyAvailableForLoan)
	}

	if alreadyQueued {
		return Reservation{}, errors.Join(ErrConflict, ErrDuplicateReservation)
	}

	return Reservation{
		ID:            uuid.New(),
		BookID:        book.ID,
		UserID:        userID,
		CreatedAt:     now,
		Status:        ReservationStatusQueued,
		QueuePosition: queueLength + 1,
	}, nil
}

// Promoted transitions the reservation from queued to notified and stamps
// the claim window.
func (r Reservation) Promoted(now time.Time, claimWindow time.Duration) (Reservation, error) {
	if !r.Status.CanTransitionTo(ReservationStatusNotified) {
		return Reservation{}, errors.Join(ErrState, ErrInvalidStatusTransition)
	}

	claimBy := now.Add(claimWindow)

	promoted := r
	promoted.Status = ReservationStatusNotified
	promoted.NotifiedAt = &now
	promoted.ClaimBy = &claimBy
	promoted.QueuePosition = 1

	return promoted, nil
}

// Fulfilled transitions the reservation to fulfilled once the loan for the
// held copy exists.
func (r Reservation) Fulfilled() (Reservation, error) {
	if !r.Status.CanTransitionTo(ReservationStatusFulfilled) {
		return Reservation{}, errors.Join(ErrState, ErrInvalidStatusTransition)
	}

	fulfilled := r
	fulfilled.Status = ReservationStatusFulfilled

	return fulfilled, nil
}

// Lapsed transitions the reservation to expired after its claim window
// closed unclaimed.
func (r Reservation) Lapsed() (Reservation, error) {
	if !r.Status.CanTransitionTo(ReservationStatusExpired) {
		return Reservation{}, errors.Join(ErrState, ErrInvalidStatusTransition)
	}

	lapsed := r
	lapsed.Status = ReservationStatusExpired

	return lapsed, nil
}

// Claimable checks that the reservation can be converted into a loan right
// now: it must be notified and the claim window must still be open.
func (r Reservation) Claimable(now time.Time) error {
	if r.Status != ReservationStatusNotified {
		return errors.Join(ErrState, ErrReservationNotClaimable)
	}

	if r.ClaimBy != nil && now.After(*r.ClaimBy) {
		return errors.Join(ErrState, ErrClaimWindowElapsed)
	}

	return nil
}
