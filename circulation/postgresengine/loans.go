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
	actionInsertLoan      = "insert loan"
	actionUpdateLoan      = "update loan"
	actionSelectSweepable = "select sweepable loans"
	actionSweepLoans      = "sweep overdue loans"

	opCreateLoan   = "create_loan"
	opReturnLoan   = "return_loan"
	opSweepOverdue = "sweep_overdue"

	logMsgLoanCreated  = "loan created"
	logMsgLoanReturned = "loan returned"
	logMsgSweepDone    = "overdue sweep completed"

	payloadKeyBookID  = "book_id"
	payloadKeyLoanID  = "loan_id"
	payloadKeyDueDate = "due_date"
	payloadKeyFine    = "fine"
	payloadKeyClaimBy = "claim_by"
)

// CreateLoan lends one copy of the book to the user. The copy-count
// decrement and the loan insert happen in one transaction with the book row
// locked, so concurrent requests can never over-lend.
func (l *Ledger) CreateLoan(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (circulation.Loan, error) {
	start := time.Now()

	loan, err := l.createLoan(ctx, userID, bookID)
	l.observeOperation(opCreateLoan, start, err)

	if err == nil {
		l.notify(ctx, userID, circulation.TemplateLoanCreated, loanPayload(loan))
	}

	return loan, err
}

func (l *Ledger) createLoan(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (circulation.Loan, error) {
	tx, beginErr := l.begin(ctx)
	if beginErr != nil {
		return circulation.Loan{}, beginErr
	}
	defer l.rollback(ctx, tx)

	book, fetchErr := l.fetchBook(ctx, tx, bookID, true)
	if fetchErr != nil {
		return circulation.Loan{}, fetchErr
	}

	holdsBook, holdsErr := l.userHoldsLiveLoan(ctx, tx, userID, bookID)
	if holdsErr != nil {
		return circulation.Loan{}, holdsErr
	}

	loan, decideErr := circulation.NewLoan(book, userID, holdsBook, l.clock())
	if decideErr != nil {
		return circulation.Loan{}, decideErr
	}

	if insertErr := l.insertLoan(ctx, tx, loan); insertErr != nil {
		return circulation.Loan{}, insertErr
	}

	if adjustErr := l.adjustAvailableCopies(ctx, tx, bookID, -1); adjustErr != nil {
		return circulation.Loan{}, adjustErr
	}

	if commitErr := l.commit(ctx, tx); commitErr != nil {
		return circulation.Loan{}, commitErr
	}

	l.logOperation(logMsgLoanCreated,
		logAttrLoanID, loan.ID.String(),
		logAttrBookID, bookID.String(),
		logAttrUserID, userID.String())

	return loan, nil
}

func (l *Ledger) insertLoan(ctx context.Context, runner dbRunner, loan circulation.Loan) error {
	insertStmt := l.builder().
		Insert(l.loansTable()).
		Rows(goqu.Record{
			colID:           loan.ID.String(),
			colUserID:       loan.UserID.String(),
			colBookID:       loan.BookID.String(),
			colLoanDate:     loan.LoanDate,
			colDueDate:      nullableTime(loan.DueDate),
			colReturnDate:   nullableTime(loan.ReturnDate),
			colStatus:       string(loan.Status),
			colRenewalCount: loan.RenewalCount,
			colFine:         nullableDecimal(loan.Fine),
		})

	sqlQuery, buildErr := l.toSQL(insertStmt)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := l.execute(ctx, runner, actionInsertLoan, sqlQuery)

	return execErr
}

// ReturnLoan takes the copy back: fine computation, status transition,
// copy-count increment and the promotion of the reservation queue head all
// happen in one transaction.
func (l *Ledger) ReturnLoan(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	start := time.Now()

	loan, promoted, err := l.returnLoan(ctx, loanID)
	l.observeOperation(opReturnLoan, start, err)

	if err == nil {
		l.notify(ctx, loan.UserID, circulation.TemplateLoanReturned, loanPayload(loan))

		// exactly one promotion notification per return
		if promoted != nil {
			l.notify(ctx, promoted.UserID, circulation.TemplateReservationReady, reservationPayload(*promoted))
		}
	}

	return loan, err
}

func (l *Ledger) returnLoan(ctx context.Context, loanID uuid.UUID) (circulation.Loan, *circulation.Reservation, error) {
	tx, beginErr := l.begin(ctx)
	if beginErr != nil {
		return circulation.Loan{}, nil, beginErr
	}
	defer l.rollback(ctx, tx)

	loan, fetchErr := l.fetchLoan(ctx, tx, loanID, true)
	if fetchErr != nil {
		return circulation.Loan{}, nil, fetchErr
	}

	book, bookErr := l.fetchBook(ctx, tx, loan.BookID, true)
	if bookErr != nil {
		return circulation.Loan{}, nil, bookErr
	}

	returned, decideErr := loan.Returned(book.Tag, l.clock())
	if decideErr != nil {
		return circulation.Loan{}, nil, decideErr
	}

	if updateErr := l.updateLoan(ctx, tx, returned); updateErr != nil {
		return circulation.Loan{}, nil, updateErr
	}

	if adjustErr := l.adjustAvailableCopies(ctx, tx, loan.BookID, +1); adjustErr != nil {
		return circulation.Loan{}, nil, adjustErr
	}

	promoted, promoteErr := l.promoteQueueHead(ctx, tx, loan.BookID)
	if promoteErr != nil {
		return circulation.Loan{}, nil, promoteErr
	}

	if commitErr := l.commit(ctx, tx); commitErr != nil {
		return circulation.Loan{}, nil, commitErr
	}

	fine := "0"
	if returned.Fine != nil {
		fine = returned.Fine.String()
	}

	l.logOperation(logMsgLoanReturned,
		logAttrLoanID, returned.ID.String(),
		logAttrBookID, returned.BookID.String(),
		logAttrFine, fine)

	return returned, promoted, nil
}

func (l *Ledger) updateLoan(ctx context.Context, runner dbRunner, loan circulation.Loan) error {
	updateStmt := l.builder().
		Update(l.loansTable()).
		Set(goqu.Record{
			colDueDate:      nullableTime(loan.DueDate),
			colReturnDate:   nullableTime(loan.ReturnDate),
			colStatus:       string(loan.Status),
			colRenewalCount: loan.RenewalCount,
			colFine:         nullableDecimal(loan.Fine),
		}).
		Where(goqu.Ex{colID: loan.ID.String()})

	sqlQuery, buildErr := l.toSQL(updateStmt)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := l.execute(ctx, runner, actionUpdateLoan, sqlQuery)

	return execErr
}

// SweepOverdue transitions all active loans past their due date to overdue
// and returns how many were transitioned. The sweep is idempotent and safe
// to re-run at any time; loans already overdue are left untouched.
func (l *Ledger) SweepOverdue(ctx context.Context) (int, error) {
	start := time.Now()

	swept, err := l.sweepOverdue(ctx)
	l.observeOperation(opSweepOverdue, start, err)

	return len(swept), err
}

func (l *Ledger) sweepOverdue(ctx context.Context) ([]circulation.Loan, error) {
	now := l.clock()

	tx, beginErr := l.begin(ctx)
	if beginErr != nil {
		return nil, beginErr
	}
	defer l.rollback(ctx, tx)

	sweepable, selectErr := l.selectSweepableLoans(ctx, tx, now)
	if selectErr != nil {
		return nil, selectErr
	}

	if len(sweepable) == 0 {
		return nil, l.commit(ctx, tx)
	}

	ids := make([]string, 0, len(sweepable))
	for _, loan := range sweepable {
		ids = append(ids, loan.ID.String())
	}

	updateStmt := l.builder().
		Update(l.loansTable()).
		Set(goqu.Record{colStatus: string(circulation.LoanStatusOverdue)}).
		Where(goqu.Ex{
			colID:     ids,
			colStatus: string(circulation.LoanStatusActive),
		})

	sqlQuery, buildErr := l.toSQL(updateStmt)
	if buildErr != nil {
		return nil, buildErr
	}

	if _, execErr := l.execute(ctx, tx, actionSweepLoans, sqlQuery); execErr != nil {
		return nil, execErr
	}

	if commitErr := l.commit(ctx, tx); commitErr != nil {
		return nil, commitErr
	}

	l.logOperation(logMsgSweepDone, logAttrSweptCount, len(sweepable))

	for _, loan := range sweepable {
		l.notify(ctx, loan.UserID, circulation.TemplateLoanOverdue, loanPayload(loan))
	}

	return sweepable, nil
}

func (l *Ledger) selectSweepableLoans(ctx context.Context, runner dbRunner, now time.Time) ([]circulation.Loan, error) {
	selectStmt := l.builder().
		From(l.loansTable()).
		Select(loanColumns...).
		Where(
			goqu.C(colStatus).Eq(string(circulation.LoanStatusActive)),
			goqu.C(colDueDate).IsNotNull(),
			goqu.C(colDueDate).Lt(now),
		).
		ForUpdate(exp.Wait)

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := l.query(ctx, runner, actionSelectSweepable, sqlQuery)
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

func loanPayload(loan circulation.Loan) map[string]string {
	payload := map[string]string{
		payloadKeyLoanID: loan.ID.String(),
		payloadKeyBookID: loan.BookID.String(),
	}

	if loan.DueDate != nil {
		payload[payloadKeyDueDate] = loan.DueDate.Format(time.RFC3339)
	}

	if loan.Fine != nil {
		payload[payloadKeyFine] = loan.Fine.String()
	}

	return payload
}

func reservationPayload(reservation circulation.Reservation) map[string]string {
	payload := map[string]string{
		payloadKeyBookID: reservation.BookID.String(),
	}

	if reservation.ClaimBy != nil {
		payload[payloadKeyClaimBy] = reservation.ClaimBy.Format(time.RFC3339)
	}

	return payload
}
