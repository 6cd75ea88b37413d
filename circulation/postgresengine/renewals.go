package postgresengine

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/unilib/circulation-go/circulation"
)

const (
	actionInsertRenewalRequest = "insert renewal request"
	actionUpdateRenewalRequest = "update renewal request"

	opRequestRenewal = "request_renewal"
	opResolveRenewal = "resolve_renewal"

	logMsgRenewalRequested = "renewal requested"
	logMsgRenewalResolved  = "renewal resolved"

	logAttrApproved = "approved"
)

// RequestRenewal files a renewal request for the loan. Filing never changes
// the loan itself; the reservation check happens at resolution time, not
// here.
func (l *Ledger) RequestRenewal(ctx context.Context, loanID uuid.UUID) (circulation.RenewalRequest, error) {
	start := time.Now()

	request, err := l.requestRenewal(ctx, loanID)
	l.observeOperation(opRequestRenewal, start, err)

	return request, err
}

func (l *Ledger) requestRenewal(ctx context.Context, loanID uuid.UUID) (circulation.RenewalRequest, error) {
	tx, beginErr := l.begin(ctx)
	if beginErr != nil {
		return circulation.RenewalRequest{}, beginErr
	}
	defer l.rollback(ctx, tx)

	loan, fetchErr := l.fetchLoan(ctx, tx, loanID, true)
	if fetchErr != nil {
		return circulation.RenewalRequest{}, fetchErr
	}

	hasPending, pendingErr := l.hasPendingRenewal(ctx, tx, loanID)
	if pendingErr != nil {
		return circulation.RenewalRequest{}, pendingErr
	}

	request, decideErr := circulation.NewRenewalRequest(loan, hasPending, l.clock())
	if decideErr != nil {
		return circulation.RenewalRequest{}, decideErr
	}

	if insertErr := l.insertRenewalRequest(ctx, tx, request); insertErr != nil {
		return circulation.RenewalRequest{}, insertErr
	}

	if commitErr := l.commit(ctx, tx); commitErr != nil {
		return circulation.RenewalRequest{}, commitErr
	}

	l.logOperation(logMsgRenewalRequested,
		logAttrRequestID, request.ID.String(),
		logAttrLoanID, loanID.String())

	return request, nil
}

func (l *Ledger) insertRenewalRequest(ctx context.Context, runner dbRunner, request circulation.RenewalRequest) error {
	insertStmt := l.builder().
		Insert(l.renewalRequestsTable()).
		Rows(goqu.Record{
			colID:          request.ID.String(),
			colLoanID:      request.LoanID.String(),
			colUserID:      request.UserID.String(),
			colStatus:      string(request.Status),
			colRequestDate: request.RequestDate,
		})

	sqlQuery, buildErr := l.toSQL(insertStmt)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := l.execute(ctx, runner, actionInsertRenewalRequest, sqlQuery)

	return execErr
}

// ResolveRenewal approves or denies a pending renewal request. Approval
// extends the loan's due date by one full loan period of the book's tag,
// unless live reservations exist for the book; in that case the request
// stays pending and the caller gets a conflict, so a librarian can retry
// once the queue has drained.
func (l *Ledger) ResolveRenewal(ctx context.Context, requestID uuid.UUID, approve bool) (circulation.RenewalRequest, error) {
	start := time.Now()

	request, userID, err := l.resolveRenewal(ctx, requestID, approve)
	l.observeOperation(opResolveRenewal, start, err)

	if err == nil {
		kind := circulation.TemplateRenewalDenied
		if approve {
			kind = circulation.TemplateRenewalApproved
		}

		l.notify(ctx, userID, kind, map[string]string{
			payloadKeyLoanID: request.LoanID.String(),
		})
	}

	return request, err
}

func (l *Ledger) resolveRenewal(ctx context.Context, requestID uuid.UUID, approve bool) (circulation.RenewalRequest, uuid.UUID, error) {
	tx, beginErr := l.begin(ctx)
	if beginErr != nil {
		return circulation.RenewalRequest{}, uuid.Nil, beginErr
	}
	defer l.rollback(ctx, tx)

	request, fetchErr := l.fetchRenewalRequest(ctx, tx, requestID, true)
	if fetchErr != nil {
		return circulation.RenewalRequest{}, uuid.Nil, fetchErr
	}

	if approve {
		loan, loanErr := l.fetchLoan(ctx, tx, request.LoanID, true)
		if loanErr != nil {
			return circulation.RenewalRequest{}, uuid.Nil, loanErr
		}

		book, bookErr := l.fetchBook(ctx, tx, loan.BookID, false)
		if bookErr != nil {
			return circulation.RenewalRequest{}, uuid.Nil, bookErr
		}

		reservations, countErr := l.liveReservationCount(ctx, tx, loan.BookID)
		if countErr != nil {
			return circulation.RenewalRequest{}, uuid.Nil, countErr
		}

		// rolling back on a queue conflict keeps the request pending
		renewed, decideErr := loan.RenewalApproved(book.Tag, reservations)
		if decideErr != nil {
			return circulation.RenewalRequest{}, uuid.Nil, decideErr
		}

		if updateErr := l.updateLoan(ctx, tx, renewed); updateErr != nil {
			return circulation.RenewalRequest{}, uuid.Nil, updateErr
		}
	}

	resolved, decideErr := request.Resolved(approve)
	if decideErr != nil {
		return circulation.RenewalRequest{}, uuid.Nil, decideErr
	}

	if updateErr := l.updateRenewalRequest(ctx, tx, resolved); updateErr != nil {
		return circulation.RenewalRequest{}, uuid.Nil, updateErr
	}

	if commitErr := l.commit(ctx, tx); commitErr != nil {
		return circulation.RenewalRequest{}, uuid.Nil, commitErr
	}

	l.logOperation(logMsgRenewalResolved,
		logAttrRequestID, resolved.ID.String(),
		logAttrApproved, approve)

	return resolved, resolved.UserID, nil
}

func (l *Ledger) updateRenewalRequest(ctx context.Context, runner dbRunner, request circulation.RenewalRequest) error {
	updateStmt := l.builder().
		Update(l.renewalRequestsTable()).
		Set(goqu.Record{colStatus: string(request.Status)}).
		Where(goqu.Ex{colID: request.ID.String()})

	sqlQuery, buildErr := l.toSQL(updateStmt)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := l.execute(ctx, runner, actionUpdateRenewalRequest, sqlQuery)

	return execErr
}
