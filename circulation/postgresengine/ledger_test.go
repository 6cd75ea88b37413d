package postgresengine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unilib/circulation-go/circulation"
	"github.com/unilib/circulation-go/circulation/postgresengine"
)

var fixedNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

type notifyCall struct {
	userID  uuid.UUID
	kind    circulation.TemplateKind
	payload map[string]string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, kind circulation.TemplateKind, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, notifyCall{userID: userID, kind: kind, payload: payload})

	return nil
}

func (n *recordingNotifier) kinds() []circulation.TemplateKind {
	n.mu.Lock()
	defer n.mu.Unlock()

	kinds := make([]circulation.TemplateKind, 0, len(n.calls))
	for _, call := range n.calls {
		kinds = append(kinds, call.kind)
	}

	return kinds
}

func newMockedLedger(t *testing.T, options ...postgresengine.Option) (*postgresengine.Ledger, sqlmock.Sqlmock, *recordingNotifier) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	notifier := &recordingNotifier{}

	options = append(options,
		postgresengine.WithClock(func() time.Time { return fixedNow }),
		postgresengine.WithNotifier(notifier),
	)

	ledger, err := postgresengine.NewLedgerFromSQLDB(db, options...)
	require.NoError(t, err)

	return ledger, mock, notifier
}

func bookRows(id uuid.UUID, tag circulation.Tag, total int, available int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "category", "tag", "total_copies", "available_copies", "created_at"}).
		AddRow(id.String(), "The Go Programming Language", "computer science", string(tag), total, available, fixedNow)
}

func loanRowColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "book_id", "loan_date", "due_date", "return_date", "status", "renewal_count", "fine"})
}

func renewalRequestRows(id uuid.UUID, loanID uuid.UUID, userID uuid.UUID, status circulation.RenewalStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "loan_id", "user_id", "status", "request_date"}).
		AddRow(id.String(), loanID.String(), userID.String(), string(status), fixedNow)
}

func reservationRowColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "book_id", "user_id", "created_at", "notified_at", "claim_by", "status"})
}

func countRows(count int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(count)
}

func Test_NewLedgerFromSQLDB_FailsOnNilConnection(t *testing.T) {
	// act
	ledger, err := postgresengine.NewLedgerFromSQLDB(nil)

	// assert
	assert.ErrorIs(t, err, postgresengine.ErrNilDatabaseConnection)
	assert.Nil(t, ledger)
}

func Test_WithTablePrefix_FailsOnEmptyPrefix(t *testing.T) {
	// arrange
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// act
	ledger, err := postgresengine.NewLedgerFromSQLDB(db, postgresengine.WithTablePrefix(""))

	// assert
	assert.ErrorIs(t, err, postgresengine.ErrEmptyTablePrefix)
	assert.Nil(t, ledger)
}

func Test_AddBook_InsertsRowWithFullCopyCount(t *testing.T) {
	// arrange
	ledger, mock, _ := newMockedLedger(t)

	mock.ExpectExec(`INSERT INTO "books"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// act
	book, err := ledger.AddBook(context.Background(), "The Art of Computer Programming", "computer science", circulation.TagYellow, 3)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 3, book.TotalCopies)
	assert.Equal(t, 3, book.AvailableCopies)
	assert.Equal(t, fixedNow, book.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_AddBook_FailsValidationOnUnknownTag(t *testing.T) {
	// arrange
	ledger, mock, _ := newMockedLedger(t)

	// act
	_, err := ledger.AddBook(context.Background(), "Some Title", "", circulation.Tag("green"), 1)

	// assert
	assert.ErrorIs(t, err, circulation.ErrUnknownTag)
	assert.Equal(t, circulation.KindValidation, circulation.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_CreateLoan_DecrementsCopiesAndNotifies(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)
	bookID := uuid.New()
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "books" WHERE .+ FOR UPDATE`).
		WillReturnRows(bookRows(bookID, circulation.TagYellow, 3, 2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "loans"`).
		WillReturnRows(countRows(0))
	mock.ExpectExec(`INSERT INTO "loans"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "books" SET "available_copies"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// act
	loan, err := ledger.CreateLoan(context.Background(), userID, bookID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanStatusActive, loan.Status)
	require.NotNil(t, loan.DueDate)
	assert.Equal(t, fixedNow.AddDate(0, 0, 5), *loan.DueDate)
	assert.Equal(t, []circulation.TemplateKind{circulation.TemplateLoanCreated}, notifier.kinds())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_CreateLoan_FailsWithConflictWhenNoCopyAvailable(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)
	bookID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "books" WHERE .+ FOR UPDATE`).
		WillReturnRows(bookRows(bookID, circulation.TagRed, 1, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "loans"`).
		WillReturnRows(countRows(0))
	mock.ExpectRollback()

	// act
	_, err := ledger.CreateLoan(context.Background(), uuid.New(), bookID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrNoCopiesAvailable)
	assert.Equal(t, circulation.KindConflict, circulation.KindOf(err))
	assert.Empty(t, notifier.kinds())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_CreateLoan_FailsWithConflictWhenUserAlreadyHoldsBook(t *testing.T) {
	// arrange
	ledger, mock, _ := newMockedLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "books" WHERE .+ FOR UPDATE`).
		WillReturnRows(bookRows(uuid.New(), circulation.TagRed, 1, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "loans"`).
		WillReturnRows(countRows(1))
	mock.ExpectRollback()

	// act
	_, err := ledger.CreateLoan(context.Background(), uuid.New(), uuid.New())

	// assert
	assert.ErrorIs(t, err, circulation.ErrDuplicateLoan)
	assert.Equal(t, circulation.KindConflict, circulation.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_ReturnLoan_LateRedReturnAssessesFine(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)
	loanID := uuid.New()
	bookID := uuid.New()
	userID := uuid.New()
	dueDate := fixedNow.AddDate(0, 0, -3)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "loans" WHERE .+ FOR UPDATE`).
		WillReturnRows(loanRowColumns().
			AddRow(loanID.String(), userID.String(), bookID.String(), fixedNow.AddDate(0, 0, -4), dueDate, nil, "overdue", 0, nil))
	mock.ExpectQuery(`SELECT .+ FROM "books" WHERE .+ FOR UPDATE`).
		WillReturnRows(bookRows(bookID, circulation.TagRed, 1, 0))
	mock.ExpectExec(`UPDATE "loans" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "books" SET "available_copies"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM "reservations" WHERE .+ FOR UPDATE`).
		WillReturnRows(reservationRowColumns())
	mock.ExpectCommit()

	// act
	returned, err := ledger.ReturnLoan(context.Background(), loanID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanStatusReturned, returned.Status)
	require.NotNil(t, returned.Fine)
	assert.True(t, returned.Fine.Equal(decimal.RequireFromString("4.50")))
	assert.Equal(t, []circulation.TemplateKind{circulation.TemplateLoanReturned}, notifier.kinds())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_ReturnLoan_PromotesQueueHead(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)
	loanID := uuid.New()
	bookID := uuid.New()
	waitingUserID := uuid.New()
	reservationID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "loans" WHERE .+ FOR UPDATE`).
		WillReturnRows(loanRowColumns().
			AddRow(loanID.String(), uuid.New().String(), bookID.String(), fixedNow.AddDate(0, 0, -2), fixedNow.AddDate(0, 0, 3), nil, "active", 0, nil))
	mock.ExpectQuery(`SELECT .+ FROM "books" WHERE .+ FOR UPDATE`).
		WillReturnRows(bookRows(bookID, circulation.TagYellow, 1, 0))
	mock.ExpectExec(`UPDATE "loans" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "books" SET "available_copies"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM "reservations" WHERE .+ FOR UPDATE`).
		WillReturnRows(reservationRowColumns().
			AddRow(reservationID.String(), bookID.String(), waitingUserID.String(), fixedNow.AddDate(0, 0, -1), nil, nil, "queued"))
	mock.ExpectExec(`UPDATE "reservations" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// act
	_, err := ledger.ReturnLoan(context.Background(), loanID)

	// assert
	require.NoError(t, err)
	require.Len(t, notifier.calls, 2)
	assert.Equal(t, circulation.TemplateLoanReturned, notifier.calls[0].kind)
	assert.Equal(t, circulation.TemplateReservationReady, notifier.calls[1].kind)
	assert.Equal(t, waitingUserID, notifier.calls[1].userID)
	assert.Contains(t, notifier.calls[1].payload, "claim_by")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_SweepOverdue_TransitionsAndNotifies(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)
	dueDate := fixedNow.AddDate(0, 0, -1)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "loans" WHERE .+ FOR UPDATE`).
		WillReturnRows(loanRowColumns().
			AddRow(uuid.New().String(), uuid.New().String(), uuid.New().String(), fixedNow.AddDate(0, 0, -2), dueDate, nil, "active", 0, nil).
			AddRow(uuid.New().String(), uuid.New().String(), uuid.New().String(), fixedNow.AddDate(0, 0, -6), dueDate, nil, "active", 1, nil))
	mock.ExpectExec(`UPDATE "loans" SET "status"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	// act
	swept, err := ledger.SweepOverdue(context.Background())

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, swept)
	assert.Equal(t, []circulation.TemplateKind{circulation.TemplateLoanOverdue, circulation.TemplateLoanOverdue}, notifier.kinds())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_SweepOverdue_NoopWhenNothingIsDue(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "loans" WHERE .+ FOR UPDATE`).
		WillReturnRows(loanRowColumns())
	mock.ExpectCommit()

	// act
	swept, err := ledger.SweepOverdue(context.Background())

	// assert
	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.Empty(t, notifier.kinds())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_RequestRenewal_FailsWhenRequestAlreadyPending(t *testing.T) {
	// arrange
	ledger, mock, _ := newMockedLedger(t)
	loanID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "loans" WHERE .+ FOR UPDATE`).
		WillReturnRows(loanRowColumns().
			AddRow(loanID.String(), uuid.New().String(), uuid.New().String(), fixedNow.AddDate(0, 0, -1), fixedNow.AddDate(0, 0, 4), nil, "active", 0, nil))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "renewal_requests"`).
		WillReturnRows(countRows(1))
	mock.ExpectRollback()

	// act
	_, err := ledger.RequestRenewal(context.Background(), loanID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrRenewalAlreadyPending)
	assert.Equal(t, circulation.KindConflict, circulation.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_ResolveRenewal_ApproveBlockedByReservationQueue(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)
	requestID := uuid.New()
	loanID := uuid.New()
	bookID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "renewal_requests" WHERE .+ FOR UPDATE`).
		WillReturnRows(renewalRequestRows(requestID, loanID, uuid.New(), circulation.RenewalStatusPending))
	mock.ExpectQuery(`SELECT .+ FROM "loans" WHERE .+ FOR UPDATE`).
		WillReturnRows(loanRowColumns().
			AddRow(loanID.String(), uuid.New().String(), bookID.String(), fixedNow.AddDate(0, 0, -1), fixedNow.AddDate(0, 0, 4), nil, "active", 0, nil))
	mock.ExpectQuery(`SELECT .+ FROM "books"`).
		WillReturnRows(bookRows(bookID, circulation.TagYellow, 1, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "reservations"`).
		WillReturnRows(countRows(1))
	mock.ExpectRollback()

	// act
	_, err := ledger.ResolveRenewal(context.Background(), requestID, true)

	// assert
	assert.ErrorIs(t, err, circulation.ErrRenewalBlockedByQueue)
	assert.Equal(t, circulation.KindConflict, circulation.KindOf(err))
	assert.Empty(t, notifier.kinds())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_ResolveRenewal_ApproveExtendsDueDate(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)
	requestID := uuid.New()
	loanID := uuid.New()
	bookID := uuid.New()
	dueDate := fixedNow.AddDate(0, 0, 4)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "renewal_requests" WHERE .+ FOR UPDATE`).
		WillReturnRows(renewalRequestRows(requestID, loanID, uuid.New(), circulation.RenewalStatusPending))
	mock.ExpectQuery(`SELECT .+ FROM "loans" WHERE .+ FOR UPDATE`).
		WillReturnRows(loanRowColumns().
			AddRow(loanID.String(), uuid.New().String(), bookID.String(), fixedNow.AddDate(0, 0, -1), dueDate, nil, "active", 0, nil))
	mock.ExpectQuery(`SELECT .+ FROM "books"`).
		WillReturnRows(bookRows(bookID, circulation.TagYellow, 1, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "reservations"`).
		WillReturnRows(countRows(0))
	mock.ExpectExec(`UPDATE "loans" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "renewal_requests" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// act
	resolved, err := ledger.ResolveRenewal(context.Background(), requestID, true)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.RenewalStatusApproved, resolved.Status)
	assert.Equal(t, []circulation.TemplateKind{circulation.TemplateRenewalApproved}, notifier.kinds())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_ResolveRenewal_DenyUpdatesRequestOnly(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)
	requestID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "renewal_requests" WHERE .+ FOR UPDATE`).
		WillReturnRows(renewalRequestRows(requestID, uuid.New(), uuid.New(), circulation.RenewalStatusPending))
	mock.ExpectExec(`UPDATE "renewal_requests" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// act
	resolved, err := ledger.ResolveRenewal(context.Background(), requestID, false)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.RenewalStatusDenied, resolved.Status)
	assert.Equal(t, []circulation.TemplateKind{circulation.TemplateRenewalDenied}, notifier.kinds())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_Reserve_QueuesAtTail(t *testing.T) {
	// arrange
	ledger, mock, _ := newMockedLedger(t)
	bookID := uuid.New()
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "books" WHERE .+ FOR UPDATE`).
		WillReturnRows(bookRows(bookID, circulation.TagYellow, 2, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "reservations"`).
		WillReturnRows(countRows(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "reservations"`).
		WillReturnRows(countRows(2))
	mock.ExpectExec(`INSERT INTO "reservations"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// act
	reservation, err := ledger.Reserve(context.Background(), userID, bookID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.ReservationStatusQueued, reservation.Status)
	assert.Equal(t, 3, reservation.QueuePosition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_Reserve_FailsWhileCopyIsAvailable(t *testing.T) {
	// arrange
	ledger, mock, _ := newMockedLedger(t)
	bookID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "books" WHERE .+ FOR UPDATE`).
		WillReturnRows(bookRows(bookID, circulation.TagYellow, 2, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "reservations"`).
		WillReturnRows(countRows(0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "reservations"`).
		WillReturnRows(countRows(0))
	mock.ExpectRollback()

	// act
	_, err := ledger.Reserve(context.Background(), uuid.New(), bookID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrCopyAvailableForLoan)
	assert.Equal(t, circulation.KindConflict, circulation.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_ClaimReservation_FailsAfterClaimWindow(t *testing.T) {
	// arrange
	ledger, mock, _ := newMockedLedger(t)
	reservationID := uuid.New()
	claimBy := fixedNow.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "reservations" WHERE .+ FOR UPDATE`).
		WillReturnRows(reservationRowColumns().
			AddRow(reservationID.String(), uuid.New().String(), uuid.New().String(), fixedNow.AddDate(0, 0, -3), fixedNow.AddDate(0, 0, -2), claimBy, "notified"))
	mock.ExpectRollback()

	// act
	_, err := ledger.ClaimReservation(context.Background(), reservationID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrClaimWindowElapsed)
	assert.Equal(t, circulation.KindState, circulation.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_ClaimReservation_CreatesLoanAndFulfills(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)
	reservationID := uuid.New()
	bookID := uuid.New()
	userID := uuid.New()
	claimBy := fixedNow.Add(24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "reservations" WHERE .+ FOR UPDATE`).
		WillReturnRows(reservationRowColumns().
			AddRow(reservationID.String(), bookID.String(), userID.String(), fixedNow.AddDate(0, 0, -3), fixedNow.Add(-time.Hour), claimBy, "notified"))
	mock.ExpectQuery(`SELECT .+ FROM "books" WHERE .+ FOR UPDATE`).
		WillReturnRows(bookRows(bookID, circulation.TagRed, 1, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "loans"`).
		WillReturnRows(countRows(0))
	mock.ExpectExec(`INSERT INTO "loans"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "books" SET "available_copies"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "reservations" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// act
	loan, err := ledger.ClaimReservation(context.Background(), reservationID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, userID, loan.UserID)
	require.NotNil(t, loan.DueDate)
	assert.Equal(t, fixedNow.AddDate(0, 0, 1), *loan.DueDate)
	assert.Equal(t, []circulation.TemplateKind{circulation.TemplateLoanCreated}, notifier.kinds())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_ExpireReservationClaims_ExpiresAndPromotesNext(t *testing.T) {
	// arrange
	ledger, mock, notifier := newMockedLedger(t)
	bookID := uuid.New()
	lapsedID := uuid.New()
	nextID := uuid.New()
	nextUserID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM "reservations" WHERE .+ FOR UPDATE`).
		WillReturnRows(reservationRowColumns().
			AddRow(lapsedID.String(), bookID.String(), uuid.New().String(), fixedNow.AddDate(0, 0, -5), fixedNow.AddDate(0, 0, -3), fixedNow.Add(-time.Hour), "notified"))
	mock.ExpectExec(`UPDATE "reservations" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM "reservations" WHERE .+ FOR UPDATE`).
		WillReturnRows(reservationRowColumns().
			AddRow(nextID.String(), bookID.String(), nextUserID.String(), fixedNow.AddDate(0, 0, -2), nil, nil, "queued"))
	mock.ExpectExec(`UPDATE "reservations" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// act
	expired, err := ledger.ExpireReservationClaims(context.Background())

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, circulation.TemplateReservationReady, notifier.calls[0].kind)
	assert.Equal(t, nextUserID, notifier.calls[0].userID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_GetBook_FailsWithNotFoundForUnknownID(t *testing.T) {
	// arrange
	ledger, mock, _ := newMockedLedger(t)

	mock.ExpectQuery(`SELECT .+ FROM "books"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "category", "tag", "total_copies", "available_copies", "created_at"}))

	// act
	_, err := ledger.GetBook(context.Background(), uuid.New())

	// assert
	assert.ErrorIs(t, err, circulation.ErrNotFound)
	assert.Equal(t, circulation.KindNotFound, circulation.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_OverdueSummary_AggregatesCountsAndFines(t *testing.T) {
	// arrange
	ledger, mock, _ := newMockedLedger(t)

	mock.ExpectQuery(`SELECT .+ FROM "loans" .+ "books"`).
		WillReturnRows(sqlmock.NewRows([]string{"tag", "count"}).
			AddRow("red", 2).
			AddRow("yellow", 1))
	mock.ExpectQuery(`SELECT COALESCE`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("7.50"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) .+ FROM "reservations"`).
		WillReturnRows(countRows(4))

	// act
	summary, err := ledger.OverdueSummary(context.Background())

	// assert
	require.NoError(t, err)
	assert.Equal(t, 3, summary.OverdueLoans)
	assert.Equal(t, 2, summary.OverdueByTag[circulation.TagRed])
	assert.Equal(t, 1, summary.OverdueByTag[circulation.TagYellow])
	assert.True(t, summary.AssessedFines.Equal(decimal.RequireFromString("7.50")))
	assert.Equal(t, 4, summary.QueuedReservations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_InitSchema_CreatesAllTablesAndIndexes(t *testing.T) {
	// arrange
	ledger, mock, _ := newMockedLedger(t, postgresengine.WithTablePrefix("unilib"))

	for i := 0; i < 9; i++ {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	// act
	err := ledger.InitSchema(context.Background())

	// assert
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
