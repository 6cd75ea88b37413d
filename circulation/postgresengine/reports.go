package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"

	"github.com/unilib/circulation-go/circulation"
)

const (
	actionSelectOverdueByTag = "select overdue loans by tag"
	actionSelectFineTotal    = "select assessed fine total"

	opOverdueSummary = "overdue_summary"

	aliasLoans = "l"
	aliasBooks = "b"
)

// OverdueSummary reports the current overdue picture: overdue loan counts
// per tag, the total of fines already assessed on returned loans, and the
// length of the live reservation backlog.
func (l *Ledger) OverdueSummary(ctx context.Context) (circulation.OverdueSummary, error) {
	start := time.Now()

	summary, err := l.overdueSummary(ctx)
	l.observeOperation(opOverdueSummary, start, err)

	return summary, err
}

func (l *Ledger) overdueSummary(ctx context.Context) (circulation.OverdueSummary, error) {
	summary := circulation.OverdueSummary{
		OverdueByTag:  make(map[circulation.Tag]int),
		AssessedFines: decimal.Zero,
	}

	byTag, tagErr := l.overdueCountsByTag(ctx)
	if tagErr != nil {
		return circulation.OverdueSummary{}, tagErr
	}

	for tag, count := range byTag {
		summary.OverdueByTag[tag] = count
		summary.OverdueLoans += count
	}

	fines, fineErr := l.assessedFineTotal(ctx)
	if fineErr != nil {
		return circulation.OverdueSummary{}, fineErr
	}
	summary.AssessedFines = fines

	queuedStmt := l.builder().
		From(l.reservationsTable()).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C(colStatus).In(
			string(circulation.ReservationStatusQueued),
			string(circulation.ReservationStatusNotified),
		))

	queued, queuedErr := l.countRows(ctx, l.db, queuedStmt)
	if queuedErr != nil {
		return circulation.OverdueSummary{}, queuedErr
	}
	summary.QueuedReservations = queued

	return summary, nil
}

func (l *Ledger) overdueCountsByTag(ctx context.Context) (map[circulation.Tag]int, error) {
	selectStmt := l.builder().
		From(goqu.T(l.loansTable()).As(aliasLoans)).
		Join(
			goqu.T(l.booksTable()).As(aliasBooks),
			goqu.On(goqu.I(aliasLoans+"."+colBookID).Eq(goqu.I(aliasBooks+"."+colID))),
		).
		Select(goqu.I(aliasBooks+"."+colTag), goqu.COUNT(goqu.Star())).
		Where(goqu.I(aliasLoans + "." + colStatus).Eq(string(circulation.LoanStatusOverdue))).
		GroupBy(goqu.I(aliasBooks + "." + colTag))

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := l.query(ctx, l.db, actionSelectOverdueByTag, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer l.closeRows(rows)

	byTag := make(map[circulation.Tag]int)

	for rows.Next() {
		var (
			rawTag string
			count  int
		)

		if scanErr := rows.Scan(&rawTag, &count); scanErr != nil {
			l.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
			return nil, errors.Join(errScanRowFailed, scanErr)
		}

		byTag[circulation.Tag(rawTag)] = count
	}

	return byTag, nil
}

func (l *Ledger) assessedFineTotal(ctx context.Context) (decimal.Decimal, error) {
	selectStmt := l.builder().
		From(l.loansTable()).
		Select(goqu.COALESCE(goqu.SUM(goqu.C(colFine)), goqu.L("0"))).
		Where(goqu.C(colFine).IsNotNull())

	sqlQuery, buildErr := l.toSQL(selectStmt)
	if buildErr != nil {
		return decimal.Zero, buildErr
	}

	rows, queryErr := l.query(ctx, l.db, actionSelectFineTotal, sqlQuery)
	if queryErr != nil {
		return decimal.Zero, queryErr
	}
	defer l.closeRows(rows)

	total := decimal.Zero

	if rows.Next() {
		var raw decimal.NullDecimal

		if scanErr := rows.Scan(&raw); scanErr != nil {
			l.logError(logMsgScanRowFailed, logAttrError, scanErr.Error())
			return decimal.Zero, errors.Join(errScanRowFailed, scanErr)
		}

		if raw.Valid {
			total = raw.Decimal
		}
	}

	return total, nil
}
