package postgresengine

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/unilib/circulation-go/circulation"
	"github.com/unilib/circulation-go/circulation/postgresengine/internal/adapters"
)

// Column names, shared by the query builders and the schema bootstrap.
const (
	colID              = "id"
	colTitle           = "title"
	colCategory        = "category"
	colTag             = "tag"
	colTotalCopies     = "total_copies"
	colAvailableCopies = "available_copies"
	colCreatedAt       = "created_at"

	colUserID       = "user_id"
	colBookID       = "book_id"
	colLoanDate     = "loan_date"
	colDueDate      = "due_date"
	colReturnDate   = "return_date"
	colStatus       = "status"
	colRenewalCount = "renewal_count"
	colFine         = "fine"

	colLoanID      = "loan_id"
	colRequestDate = "request_date"

	colNotifiedAt = "notified_at"
	colClaimBy    = "claim_by"
)

var bookColumns = []any{colID, colTitle, colCategory, colTag, colTotalCopies, colAvailableCopies, colCreatedAt}

var loanColumns = []any{colID, colUserID, colBookID, colLoanDate, colDueDate, colReturnDate, colStatus, colRenewalCount, colFine}

var renewalRequestColumns = []any{colID, colLoanID, colUserID, colStatus, colRequestDate}

var reservationColumns = []any{colID, colBookID, colUserID, colCreatedAt, colNotifiedAt, colClaimBy, colStatus}

var errScanRowFailed = errors.New("scanning database row failed")

// nullableTime converts a *time.Time to a value goqu renders as NULL when nil.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return *t
}

// nullableDecimal converts a *decimal.Decimal to a literal string or NULL.
func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}

	return d.String()
}

func timePtrFrom(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	value := t.Time

	return &value
}

func decimalPtrFrom(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}

	value := d.Decimal

	return &value
}

func scanBook(rows adapters.DBRows) (circulation.Book, error) {
	var (
		book   circulation.Book
		rawID  string
		rawTag string
	)

	scanErr := rows.Scan(&rawID, &book.Title, &book.Category, &rawTag, &book.TotalCopies, &book.AvailableCopies, &book.CreatedAt)
	if scanErr != nil {
		return circulation.Book{}, errors.Join(errScanRowFailed, scanErr)
	}

	id, parseErr := uuid.Parse(rawID)
	if parseErr != nil {
		return circulation.Book{}, errors.Join(errScanRowFailed, parseErr)
	}

	book.ID = id
	book.Tag = circulation.Tag(rawTag)

	return book, nil
}

func scanLoan(rows adapters.DBRows) (circulation.Loan, error) {
	var (
		loan       circulation.Loan
		rawID      string
		rawUserID  string
		rawBookID  string
		dueDate    sql.NullTime
		returnDate sql.NullTime
		rawStatus  string
		fine       decimal.NullDecimal
	)

	scanErr := rows.Scan(&rawID, &rawUserID, &rawBookID, &loan.LoanDate, &dueDate, &returnDate, &rawStatus, &loan.RenewalCount, &fine)
	if scanErr != nil {
		return circulation.Loan{}, errors.Join(errScanRowFailed, scanErr)
	}

	var parseErr error
	if loan.ID, parseErr = uuid.Parse(rawID); parseErr != nil {
		return circulation.Loan{}, errors.Join(errScanRowFailed, parseErr)
	}
	if loan.UserID, parseErr = uuid.Parse(rawUserID); parseErr != nil {
		return circulation.Loan{}, errors.Join(errScanRowFailed, parseErr)
	}
	if loan.BookID, parseErr = uuid.Parse(rawBookID); parseErr != nil {
		return circulation.Loan{}, errors.Join(errScanRowFailed, parseErr)
	}

	loan.DueDate = timePtrFrom(dueDate)
	loan.ReturnDate = timePtrFrom(returnDate)
	loan.Status = circulation.LoanStatus(rawStatus)
	loan.Fine = decimalPtrFrom(fine)

	return loan, nil
}

func scanRenewalRequest(rows adapters.DBRows) (circulation.RenewalRequest, error) {
	var (
		request   circulation.RenewalRequest
		rawID     string
		rawLoanID string
		rawUserID string
		rawStatus string
	)

	scanErr := rows.Scan(&rawID, &rawLoanID, &rawUserID, &rawStatus, &request.RequestDate)
	if scanErr != nil {
		return circulation.RenewalRequest{}, errors.Join(errScanRowFailed, scanErr)
	}

	var parseErr error
	if request.ID, parseErr = uuid.Parse(rawID); parseErr != nil {
		return circulation.RenewalRequest{}, errors.Join(errScanRowFailed, parseErr)
	}
	if request.LoanID, parseErr = uuid.Parse(rawLoanID); parseErr != nil {
		return circulation.RenewalRequest{}, errors.Join(errScanRowFailed, parseErr)
	}
	if request.UserID, parseErr = uuid.Parse(rawUserID); parseErr != nil {
		return circulation.RenewalRequest{}, errors.Join(errScanRowFailed, parseErr)
	}

	request.Status = circulation.RenewalStatus(rawStatus)

	return request, nil
}

func scanReservation(rows adapters.DBRows) (circulation.Reservation, error) {
	var (
		reservation circulation.Reservation
		rawID       string
		rawBookID   string
		rawUserID   string
		notifiedAt  sql.NullTime
		claimBy     sql.NullTime
		rawStatus   string
	)

	scanErr := rows.Scan(&rawID, &rawBookID, &rawUserID, &reservation.CreatedAt, &notifiedAt, &claimBy, &rawStatus)
	if scanErr != nil {
		return circulation.Reservation{}, errors.Join(errScanRowFailed, scanErr)
	}

	var parseErr error
	if reservation.ID, parseErr = uuid.Parse(rawID); parseErr != nil {
		return circulation.Reservation{}, errors.Join(errScanRowFailed, parseErr)
	}
	if reservation.BookID, parseErr = uuid.Parse(rawBookID); parseErr != nil {
		return circulation.Reservation{}, errors.Join(errScanRowFailed, parseErr)
	}
	if reservation.UserID, parseErr = uuid.Parse(rawUserID); parseErr != nil {
		return circulation.Reservation{}, errors.Join(errScanRowFailed, parseErr)
	}

	reservation.NotifiedAt = timePtrFrom(notifiedAt)
	reservation.ClaimBy = timePtrFrom(claimBy)
	reservation.Status = circulation.ReservationStatus(rawStatus)

	return reservation, nil
}
