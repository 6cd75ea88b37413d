package postgresengine

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/unilib/circulation-go/circulation"
)

const (
	actionGetBook          = "get book"
	actionGetLoan          = "get loan"
	actionListLoans        = "list loans"
	actionListReservations = "list reservations"
	actionCountRows        = "count rows"
	actionHeadReservation  = "head reservation"
)

// sqlBuilder is satisfied by goqu's select, insert and update datasets.
type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func (l *Ledger) toSQL(ds sqlBuilder) (string, error) {
	sqlQuery, _, toSQLErr := ds.ToSQL()
	if toSQLErr != nil {
		l.logError(logMsgBuildQueryFailed, logAttrError, toSQLErr.Error())
		return "", errors.Join(errQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// fetchBook loads one book row, optionally locking it for the duration of
// the surrounding transaction.
func (l *Ledger) fetchBook(ctx context.Context, runner dbRunner, bookID uuid.UUID, forUpdate bool) (circulation.Book, error) {
	selectStmt := l.builder().
		From(l.booksTable()).
		Select(bookColumns...).
		Where(goqu.Ex{colID: bookID.String()})

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return circulation.Book{}, buildErr
	}

	rows, queryErr := l.query(ctx, runner, actionGetBook, sqlQuery)
	if queryErr != nil {
		return circulation.Book{}, queryErr
	}
	defer l.closeRows(rows)

	if !rows.Next() {
		return circulation.Book{}, errors.Join(circulation.ErrNotFound, errors.New("book not found"))
	}

	book, scanErr := scanBook(rows)
	if scanErr != nil {
		l.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
		return circulation.Book{}, scanErr
	}

	return book, nil
}

// fetchLoan loads one loan row, optionally locking it.
func (l *Ledger) fetchLoan(ctx context.Context, runner dbRunner, loanID uuid.UUID, forUpdate bool) (circulation.Loan, error) {
	selectStmt := l.builder().
		From(l.loansTable()).
		Select(loanColumns...).
		Where(goqu.Ex{colID: loanID.String()})

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return circulation.Loan{}, buildErr
	}

	rows, queryErr := l.query(ctx, runner, actionGetLoan, sqlQuery)
	if queryErr != nil {
		return circulation.Loan{}, queryErr
	}
	defer l.closeRows(rows)

	if !rows.Next() {
		return circulation.Loan{}, errors.Join(circulation.ErrNotFound, errors.New("loan not found"))
	}

	loan, scanErr := scanLoan(rows)
	if scanErr != nil {
		l.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
		return circulation.Loan{}, scanErr
	}

	return loan, nil
}

// fetchRenewalRequest loads one renewal request row, optionally locking it.
func (l *Ledger) fetchRenewalRequest(ctx context.Context, runner dbRunner, requestID uuid.UUID, forUpdate bool) (circulation.RenewalRequest, error) {
	selectStmt := l.builder().
		From(l.renewalRequestsTable()).
		Select(renewalRequestColumns...).
		Where(goqu.Ex{colID: requestID.String()})

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return circulation.RenewalRequest{}, buildErr
	}

	rows, queryErr := l.query(ctx, runner, actionGetLoan, sqlQuery)
	if queryErr != nil {
		return circulation.RenewalRequest{}, queryErr
	}
	defer l.closeRows(rows)

	if !rows.Next() {
		return circulation.RenewalRequest{}, errors.Join(circulation.ErrNotFound, errors.New("renewal request not found"))
	}

	request, scanErr := scanRenewalRequest(rows)
	if scanErr != nil {
		l.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
		return circulation.RenewalRequest{}, scanErr
	}

	return request, nil
}

// fetchReservation loads one reservation row, optionally locking it.
func (l *Ledger) fetchReservation(ctx context.Context, runner dbRunner, reservationID uuid.UUID, forUpdate bool) (circulation.Reservation, error) {
	selectStmt := l.builder().
		From(l.reservationsTable()).
		Select(reservationColumns...).
		Where(goqu.Ex{colID: reservationID.String()})

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return circulation.Reservation{}, buildErr
	}

	rows, queryErr := l.query(ctx, runner, actionListReservations, sqlQuery)
	if queryErr != nil {
		return circulation.Reservation{}, queryErr
	}
	defer l.closeRows(rows)

	if !rows.Next() {
		return circulation.Reservation{}, errors.Join(circulation.ErrNotFound, errors.New("reservation not found"))
	}

	reservation, scanErr := scanReservation(rows)
	if scanErr != nil {
		l.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
		return circulation.Reservation{}, scanErr
	}

	return reservation, nil
}

// countRows runs a COUNT(*) query built by the caller.
func (l *Ledger) countRows(ctx context.Context, runner dbRunner, selectStmt *goqu.SelectDataset) (int, error) {
	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return 0, buildErr
	}

	rows, queryErr := l.query(ctx, runner, actionCountRows, sqlQuery)
	if queryErr != nil {
		return 0, queryErr
	}
	defer l.closeRows(rows)

	count := 0
	if rows.Next() {
		if scanErr := rows.Scan(&count); scanErr != nil {
			l.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
			return 0, errors.Join(errScanRowFailed, scanErr)
		}
	}

	return count, nil
}

// userHoldsLiveLoan reports whether the user currently has an active or
// overdue loan for the book.
func (l *Ledger) userHoldsLiveLoan(ctx context.Context, runner dbRunner, userID uuid.UUID, bookID uuid.UUID) (bool, error) {
	count, err := l.countRows(ctx, runner, l.builder().
		From(l.loansTable()).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{
			colUserID: userID.String(),
			colBookID: bookID.String(),
			colStatus: []string{string(circulation.LoanStatusActive), string(circulation.LoanStatusOverdue)},
		}))

	return count > 0, err
}

// hasPendingRenewal reports whether a pending renewal request exists for the loan.
func (l *Ledger) hasPendingRenewal(ctx context.Context, runner dbRunner, loanID uuid.UUID) (bool, error) {
	count, err := l.countRows(ctx, runner, l.builder().
		From(l.renewalRequestsTable()).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{
			colLoanID: loanID.String(),
			colStatus: string(circulation.RenewalStatusPending),
		}))

	return count > 0, err
}

// liveReservationCount counts queued and notified reservations for the book.
func (l *Ledger) liveReservationCount(ctx context.Context, runner dbRunner, bookID uuid.UUID) (int, error) {
	return l.countRows(ctx, runner, l.builder().
		From(l.reservationsTable()).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{
			colBookID: bookID.String(),
			colStatus: []string{string(circulation.ReservationStatusQueued), string(circulation.ReservationStatusNotified)},
		}))
}

// userIsQueued reports whether the user already holds a live reservation for the book.
func (l *Ledger) userIsQueued(ctx context.Context, runner dbRunner, bookID uuid.UUID, userID uuid.UUID) (bool, error) {
	count, err := l.countRows(ctx, runner, l.builder().
		From(l.reservationsTable()).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{
			colBookID: bookID.String(),
			colUserID: userID.String(),
			colStatus: []string{string(circulation.ReservationStatusQueued), string(circulation.ReservationStatusNotified)},
		}))

	return count > 0, err
}

// headQueuedReservation loads the FIFO head of the book's queue, locking it.
// The bool result reports whether a queued reservation exists at all.
func (l *Ledger) headQueuedReservation(ctx context.Context, runner dbRunner, bookID uuid.UUID) (circulation.Reservation, bool, error) {
	selectStmt := l.builder().
		From(l.reservationsTable()).
		Select(reservationColumns...).
		Where(goqu.Ex{
			colBookID: bookID.String(),
			colStatus: string(circulation.ReservationStatusQueued),
		}).
		Order(goqu.I(colCreatedAt).Asc()).
		Limit(1).
		ForUpdate(exp.Wait)

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return circulation.Reservation{}, false, buildErr
	}

	rows, queryErr := l.query(ctx, runner, actionHeadReservation, sqlQuery)
	if queryErr != nil {
		return circulation.Reservation{}, false, queryErr
	}
	defer l.closeRows(rows)

	if !rows.Next() {
		return circulation.Reservation{}, false, nil
	}

	head, scanErr := scanReservation(rows)
	if scanErr != nil {
		l.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
		return circulation.Reservation{}, false, scanErr
	}

	return head, true, nil
}

// GetBook returns one book by ID.
func (l *Ledger) GetBook(ctx context.Context, bookID uuid.UUID) (circulation.Book, error) {
	return l.fetchBook(ctx, l.db, bookID, false)
}

// GetLoan returns one loan by ID.
func (l *Ledger) GetLoan(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	return l.fetchLoan(ctx, l.db, loanID, false)
}

// ListLoansByUser returns all loans of one user, newest first.
func (l *Ledger) ListLoansByUser(ctx context.Context, userID uuid.UUID) ([]circulation.Loan, error) {
	selectStmt := l.builder().
		From(l.loansTable()).
		Select(loanColumns...).
		Where(goqu.Ex{colUserID: userID.String()}).
		Order(goqu.I(colLoanDate).Desc())

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := l.query(ctx, l.db, actionListLoans, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer l.closeRows(rows)

	loans := make([]circulation.Loan, 0)

	for rows.Next() {
		loan, scanErr := scanLoan(rows)
		if scanErr != nil {
			l.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
			return nil, scanErr
		}

		loans = append(loans, loan)
	}

	return loans, nil
}

// ListReservationsByBook returns the live queue for one book in FIFO order,
// with queue positions starting at 1.
func (l *Ledger) ListReservationsByBook(ctx context.Context, bookID uuid.UUID) ([]circulation.Reservation, error) {
	selectStmt := l.builder().
		From(l.reservationsTable()).
		Select(reservationColumns...).
		Where(goqu.Ex{
			colBookID: bookID.String(),
			colStatus: []string{string(circulation.ReservationStatusQueued), string(circulation.ReservationStatusNotified)},
		}).
		Order(goqu.I(colCreatedAt).Asc())

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := l.query(ctx, l.db, actionListReservations, sqlQuery)
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

		reservation.QueuePosition = len(reservations) + 1
		reservations = append(reservations, reservation)
	}

	return reservations, nil
}
