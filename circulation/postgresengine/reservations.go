package postgresengine

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/unilib/circulation-go/circulation"
)

const (
	actionInsertReservation = "insert reservation"
	actionUpdateReservation = "update reservation"
	actionSelectExpirable   = "select expirable reservations"

	opReserve           = "reserve"
	opClaimReservation  = "claim_reservation"
	opExpireReservation = "expire_reservation_claims"

	logMsgReservationQueued   = "reservation queued"
	logMsgReservationClaimed  = "reservation claimed"
	logMsgClaimExpiryDone     = "claim expiry completed"
	logMsgReservationPromoted = "reservation promoted"
)

// Reserve queues a claim on the book for the user. Queueing is only allowed
// while no copy is available; with a copy on the shelf the user should just
// borrow it.
func (l *Ledger) Reserve(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (circulation.Reservation, error) {
	start := time.Now()

	reservation, err := l.reserve(ctx, userID, bookID)
	l.observeOperation(opReserve, start, err)

	return reservation, err
}

func (l *Ledger) reserve(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (circulation.Reservation, error) {
	tx, beginErr := l.begin(ctx)
	if beginErr != nil {
		return circulation.Reservation{}, beginErr
	}
	defer l.rollback(ctx, tx)

	book, fetchErr := l.fetchBook(ctx, tx, bookID, true)
	if fetchErr != nil {
		return circulation.Reservation{}, fetchErr
	}

	alreadyQueued, queuedErr := l.userIsQueued(ctx, tx, bookID, userID)
	if queuedErr != nil {
		return circulation.Reservation{}, queuedErr
	}

	queueLength, countErr := l.liveReservationCount(ctx, tx, bookID)
	if countErr != nil {
		return circulation.Reservation{}, countErr
	}

	reservation, decideErr := circulation.NewReservation(book, userID, alreadyQueued, queueLength, l.clock())
	if decideErr != nil {
		return circulation.Reservation{}, decideErr
	}

	if insertErr := l.insertReservation(ctx, tx, reservation); insertErr != nil {
		return circulation.Reservation{}, insertErr
	}

	if commitErr := l.commit(ctx, tx); commitErr != nil {
		return circulation.Reservation{}, commitErr
	}

	l.logOperation(logMsgReservationQueued,
		logAttrReservationID, reservation.ID.String(),
		logAttrBookID, bookID.String(),
		logAttrUserID, userID.String())

	return reservation, nil
}

func (l *Ledger) insertReservation(ctx context.Context, runner dbRunner, reservation circulation.Reservation) error {
	insertStmt := l.builder().
		Insert(l.reservationsTable()).
		Rows(goqu.Record{
			colID:         reservation.ID.String(),
			colBookID:     reservation.BookID.String(),
			colUserID:     reservation.UserID.String(),
			colCreatedAt:  reservation.CreatedAt,
			colNotifiedAt: nullableTime(reservation.NotifiedAt),
			colClaimBy:    nullableTime(reservation.ClaimBy),
			colStatus:     string(reservation.Status),
		})

	sqlQuery, buildErr := l.toSQL(insertStmt)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := l.execute(ctx, runner, actionInsertReservation, sqlQuery)

	return execErr
}

func (l *Ledger) updateReservation(ctx context.Context, runner dbRunner, reservation circulation.Reservation) error {
	updateStmt := l.builder().
		Update(l.reservationsTable()).
		Set(goqu.Record{
			colNotifiedAt: nullableTime(reservation.NotifiedAt),
			colClaimBy:    nullableTime(reservation.ClaimBy),
			colStatus:     string(reservation.Status),
		}).
		Where(goqu.Ex{colID: reservation.ID.String()})

	sqlQuery, buildErr := l.toSQL(updateStmt)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := l.execute(ctx, runner, actionUpdateReservation, sqlQuery)

	return execErr
}

// promoteQueueHead moves the oldest queued reservation for the book to
// notified and stamps its claim window. At most one reservation is promoted
// per call; the returned pointer is nil when the queue is empty.
func (l *Ledger) promoteQueueHead(ctx context.Context, runner dbRunner, bookID uuid.UUID) (*circulation.Reservation, error) {
	head, found, headErr := l.headQueuedReservation(ctx, runner, bookID)
	if headErr != nil {
		return nil, headErr
	}

	if !found {
		return nil, nil
	}

	promoted, decideErr := head.Promoted(l.clock(), l.claimWindow)
	if decideErr != nil {
		return nil, decideErr
	}

	if updateErr := l.updateReservation(ctx, runner, promoted); updateErr != nil {
		return nil, updateErr
	}

	l.logOperation(logMsgReservationPromoted,
		logAttrReservationID, promoted.ID.String(),
		logAttrBookID, bookID.String())

	return &promoted, nil
}

// ClaimReservation converts a notified reservation into a loan before its
// claim window elapses. The reservation turns fulfilled, the user gets the
// copy held back for them, and the book's available count drops by one.
func (l *Ledger) ClaimReservation(ctx context.Context, reservationID uuid.UUID) (circulation.Loan, error) {
	start := time.Now()

	loan, err := l.claimReservation(ctx, reservationID)
	l.observeOperation(opClaimReservation, start, err)

	if err == nil {
		l.notify(ctx, loan.UserID, circulation.TemplateLoanCreated, loanPayload(loan))
	}

	return loan, err
}

func (l *Ledger) claimReservation(ctx context.Context, reservationID uuid.UUID) (circulation.Loan, error) {
	tx, beginErr := l.begin(ctx)
	if beginErr != nil {
		return circulation.Loan{}, beginErr
	}
	defer l.rollback(ctx, tx)

	reservation, fetchErr := l.fetchReservation(ctx, tx, reservationID, true)
	if fetchErr != nil {
		return circulation.Loan{}, fetchErr
	}

	if claimErr := reservation.Claimable(l.clock()); claimErr != nil {
		return circulation.Loan{}, claimErr
	}

	book, bookErr := l.fetchBook(ctx, tx, reservation.BookID, true)
	if bookErr != nil {
		return circulation.Loan{}, bookErr
	}

	holdsBook, holdsErr := l.userHoldsLiveLoan(ctx, tx, reservation.UserID, reservation.BookID)
	if holdsErr != nil {
		return circulation.Loan{}, holdsErr
	}

	loan, decideErr := circulation.NewLoan(book, reservation.UserID, holdsBook, l.clock())
	if decideErr != nil {
		return circulation.Loan{}, decideErr
	}

	if insertErr := l.insertLoan(ctx, tx, loan); insertErr != nil {
		return circulation.Loan{}, insertErr
	}

	if adjustErr := l.adjustAvailableCopies(ctx, tx, reservation.BookID, -1); adjustErr != nil {
		return circulation.Loan{}, adjustErr
	}

	fulfilled, fulfillErr := reservation.Fulfilled()
	if fulfillErr != nil {
		return circulation.Loan{}, fulfillErr
	}

	if updateErr := l.updateReservation(ctx, tx, fulfilled); updateErr != nil {
		return circulation.Loan{}, updateErr
	}

	if commitErr := l.commit(ctx, tx); commitErr != nil {
		return circulation.Loan{}, commitErr
	}

	l.logOperation(logMsgReservationClaimed,
		logAttrReservationID, reservationID.String(),
		logAttrLoanID, loan.ID.String())

	return loan, nil
}

// ExpireReservationClaims expires every notified reservation whose claim
// window has elapsed and promotes the next queued reservation for each
// affected book. It returns how many claims expired; re-running it is
// harmless.
func (l *Ledger) ExpireReservationClaims(ctx context.Context) (int, error) {
	start := time.Now()

	expired, promoted, err := l.expireReservationClaims(ctx)
	l.observeOperation(opExpireReservation, start, err)

	if err == nil {
		for _, reservation := range promoted {
			l.notify(ctx, reservation.UserID, circulation.TemplateReservationReady, reservationPayload(reservation))
		}
	}

	return expired, err
}

func (l *Ledger) expireReservationClaims(ctx context.Context) (int, []circulation.Reservation, error) {
	now := l.clock()

	tx, beginErr := l.begin(ctx)
	if beginErr != nil {
		return 0, nil, beginErr
	}
	defer l.rollback(ctx, tx)

	expirable, selectErr := l.selectExpirableReservations(ctx, tx, now)
	if selectErr != nil {
		return 0, nil, selectErr
	}

	if len(expirable) == 0 {
		return 0, nil, l.commit(ctx, tx)
	}

	promoted := make([]circulation.Reservation, 0, len(expirable))

	for _, reservation := range expirable {
		lapsed, lapseErr := reservation.Lapsed()
		if lapseErr != nil {
			return 0, nil, lapseErr
		}

		if updateErr := l.updateReservation(ctx, tx, lapsed); updateErr != nil {
			return 0, nil, updateErr
		}

		next, promoteErr := l.promoteQueueHead(ctx, tx, reservation.BookID)
		if promoteErr != nil {
			return 0, nil, promoteErr
		}

		if next != nil {
			promoted = append(promoted, *next)
		}
	}

	if commitErr := l.commit(ctx, tx); commitErr != nil {
		return 0, nil, commitErr
	}

	l.logOperation(logMsgClaimExpiryDone, logAttrExpiredCount, len(expirable))

	return len(expirable), promoted, nil
}

func (l *Ledger) selectExpirableReservations(ctx context.Context, runner dbRunner, now time.Time) ([]circulation.Reservation, error) {
	selectStmt := l.builder().
		From(l.reservationsTable()).
		Select(reservationColumns...).
		Where(
			goqu.C(colStatus).Eq(string(circulation.ReservationStatusNotified)),
			goqu.C(colClaimBy).IsNotNull(),
			goqu.C(colClaimBy).Lt(now),
		).
		Order(goqu.C(colCreatedAt).Asc()).
		ForUpdate(exp.Wait)

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := l.query(ctx, runner, actionSelectExpirable, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer l.closeRows(rows)

	reservations := make([]circulation.Reservation, 0)

	for rows.Next() {
		reservation, scanErr := scanReservation(rows)
		if scanErr != nil {
			l.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
			return nil, scanErr
		}

		reservations = append(reservations, reservation)
	}

	return reservations, nil
}
