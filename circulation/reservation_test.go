package circulation_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unilib/circulation-go/circulation"
)

func Test_NewReservation_SucceedsWhenNoCopyAvailable(t *testing.T) {
	// arrange - single copy, currently lent out
	book := givenBook(circulation.TagYellow, 1, 0)
	now := time.Now()

	// act
	reservation, err := circulation.NewReservation(book, uuid.New(), false, 2, now)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.ReservationStatusQueued, reservation.Status)
	assert.Equal(t, 3, reservation.QueuePosition)
	assert.Equal(t, now, reservation.CreatedAt)
}

func Test_NewReservation_FailsWhileCopiesAvailable(t *testing.T) {
	// arrange
	book := givenBook(circulation.TagYellow, 2, 1)

	// act
	_, err := circulation.NewReservation(book, uuid.New(), false, 0, time.Now())

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrConflict)
	assert.ErrorIs(t, err, circulation.ErrCopyAvailableForLoan)
}

func Test_NewReservation_FailsWhenUserAlreadyQueued(t *testing.T) {
	// arrange
	book := givenBook(circulation.TagRed, 1, 0)

	// act
	_, err := circulation.NewReservation(book, uuid.New(), true, 1, time.Now())

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrConflict)
	assert.ErrorIs(t, err, circulation.ErrDuplicateReservation)
}

func Test_Reservation_Promoted_StampsClaimWindow(t *testing.T) {
	// arrange
	reservation := circulation.Reservation{Status: circulation.ReservationStatusQueued}
	now := time.Now()
	window := 48 * time.Hour

	// act
	promoted, err := reservation.Promoted(now, window)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.ReservationStatusNotified, promoted.Status)
	require.NotNil(t, promoted.ClaimBy)
	assert.Equal(t, now.Add(window), *promoted.ClaimBy)
	assert.Equal(t, 1, promoted.QueuePosition)
}

func Test_Reservation_Promoted_FailsFromTerminalState(t *testing.T) {
	for _, status := range []circulation.ReservationStatus{
		circulation.ReservationStatusFulfilled,
		circulation.ReservationStatusExpired,
		circulation.ReservationStatusCanceled,
	} {
		reservation := circulation.Reservation{Status: status}

		_, err := reservation.Promoted(time.Now(), time.Hour)

		require.Error(t, err)
		assert.ErrorIs(t, err, circulation.ErrState)
	}
}

func Test_Reservation_Claimable_OnlyWithinWindow(t *testing.T) {
	// arrange
	now := time.Now()
	claimBy := now.Add(time.Hour)
	reservation := circulation.Reservation{
		Status:  circulation.ReservationStatusNotified,
		ClaimBy: &claimBy,
	}

	// assert
	assert.NoError(t, reservation.Claimable(now))

	err := reservation.Claimable(claimBy.Add(time.Minute))
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrState)
	assert.ErrorIs(t, err, circulation.ErrClaimWindowElapsed)
}

func Test_Reservation_Claimable_FailsWhenStillQueued(t *testing.T) {
	// arrange
	reservation := circulation.Reservation{Status: circulation.ReservationStatusQueued}

	// act
	err := reservation.Claimable(time.Now())

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrReservationNotClaimable)
}

func Test_Reservation_Fulfilled_OnlyFromNotified(t *testing.T) {
	// arrange
	notified := circulation.Reservation{Status: circulation.ReservationStatusNotified}
	queued := circulation.Reservation{Status: circulation.ReservationStatusQueued}

	// act
	fulfilled, err := notified.Fulfilled()
	_, queuedErr := queued.Fulfilled()

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.ReservationStatusFulfilled, fulfilled.Status)
	assert.ErrorIs(t, queuedErr, circulation.ErrInvalidStatusTransition)
}

func Test_Reservation_Lapsed_IsTerminal(t *testing.T) {
	// arrange
	notified := circulation.Reservation{Status: circulation.ReservationStatusNotified}

	// act
	lapsed, err := notified.Lapsed()
	_, againErr := lapsed.Lapsed()

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.ReservationStatusExpired, lapsed.Status)
	assert.ErrorIs(t, againErr, circulation.ErrInvalidStatusTransition)
}
