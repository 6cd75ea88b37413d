package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/unilib/circulation-go/circulation"
	"github.com/unilib/circulation-go/circulation/postgresengine/internal/adapters"
)

const (
	defaultBooksTableName           = "books"
	defaultLoansTableName           = "loans"
	defaultRenewalRequestsTableName = "renewal_requests"
	defaultReservationsTableName    = "reservations"

	defaultClaimWindow   = 48 * time.Hour
	defaultNotifyTimeout = 3 * time.Second

	dialectPostgres = "postgres"

	logMsgBuildQueryFailed   = "failed to build sql query"
	logMsgDBQueryFailed      = "database query execution failed"
	logMsgDBExecFailed       = "database execution failed"
	logMsgBeginTxFailed      = "failed to begin transaction"
	logMsgCommitTxFailed     = "failed to commit transaction"
	logMsgRollbackTxFailed   = "failed to roll back transaction"
	logMsgCloseRowsFailed    = "failed to close database rows"
	logMsgScanRowFailed      = "failed to scan database row"
	logMsgNotifyFailed       = "notification dispatch failed"
	logMsgSQLExecuted        = "executed sql for: "
	logMsgOperation          = "ledger operation: "
	logAttrError             = "error"
	logAttrQuery             = "query"
	logAttrDurationMS        = "duration_ms"
	logAttrBookID            = "book_id"
	logAttrLoanID            = "loan_id"
	logAttrUserID            = "user_id"
	logAttrRequestID         = "request_id"
	logAttrReservationID     = "reservation_id"
	logAttrTemplate          = "template"
	logAttrSweptCount        = "swept_count"
	logAttrExpiredCount      = "expired_count"
	logAttrFine              = "fine"

	metricOperationDuration = "ledger_operation_duration"
	metricOperationTotal    = "ledger_operations_total"
	labelOperation          = "operation"
	labelStatus             = "status"
	statusOK                = "ok"
	statusFailed            = "failed"
)

var (
	// ErrNilDatabaseConnection is returned by the constructors when the
	// supplied connection is nil.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTablePrefix is returned by WithTablePrefix for a blank prefix.
	ErrEmptyTablePrefix = errors.New("empty table prefix supplied")

	errQueryFailed = errors.New("ledger query failed")
	errExecFailed  = errors.New("ledger execution failed")
)

// dbRunner is satisfied by both the adapter itself and an open transaction.
type dbRunner interface {
	Query(ctx context.Context, query string) (adapters.DBRows, error)
	Exec(ctx context.Context, query string) (adapters.DBResult, error)
}

// Ledger is the authoritative record of loans, renewal requests and
// reservations, and the only component that adjusts available copy counts.
type Ledger struct {
	db          adapters.DBAdapter
	tablePrefix string
	logger      circulation.Logger
	metrics     circulation.MetricsCollector
	notifier    circulation.Notifier
	clock       func() time.Time
	claimWindow time.Duration
}

// Option defines a functional option for configuring the Ledger.
type Option func(*Ledger) error

// WithTablePrefix prefixes all ledger table names, e.g. for shared schemas.
func WithTablePrefix(prefix string) Option {
	return func(l *Ledger) error {
		if prefix == "" {
			return ErrEmptyTablePrefix
		}

		l.tablePrefix = prefix + "_"

		return nil
	}
}

// WithLogger sets the logger for the Ledger.
//
// Debug level: SQL queries with execution timing (development use)
// Info level: operation outcomes, fine amounts, sweep counts (production-safe)
// Warn level: non-critical issues such as notification dispatch failures
// Error level: failures that cause operation failures.
func WithLogger(logger circulation.Logger) Option {
	return func(l *Ledger) error {
		l.logger = logger
		return nil
	}
}

// WithMetricsCollector sets the metrics collector for the Ledger.
func WithMetricsCollector(collector circulation.MetricsCollector) Option {
	return func(l *Ledger) error {
		l.metrics = collector
		return nil
	}
}

// WithNotifier sets the outbound notification dispatcher. Dispatch is
// best-effort after commit; failures are logged, never retried.
func WithNotifier(notifier circulation.Notifier) Option {
	return func(l *Ledger) error {
		l.notifier = notifier
		return nil
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) error {
		l.clock = clock
		return nil
	}
}

// WithClaimWindow sets how long a promoted reservation may be claimed
// before the next user in the queue is promoted.
func WithClaimWindow(window time.Duration) Option {
	return func(l *Ledger) error {
		l.claimWindow = window
		return nil
	}
}

// NewLedgerFromPGXPool creates a new Ledger using a pgx pool with optional configuration.
func NewLedgerFromPGXPool(db *pgxpool.Pool, options ...Option) (*Ledger, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newLedger(adapters.NewPGXAdapter(db), options...)
}

// NewLedgerFromSQLDB creates a new Ledger using a sql.DB with optional configuration.
func NewLedgerFromSQLDB(db *sql.DB, options ...Option) (*Ledger, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newLedger(adapters.NewSQLAdapter(db), options...)
}

// NewLedgerFromSQLX creates a new Ledger using a sqlx.DB with optional configuration.
func NewLedgerFromSQLX(db *sqlx.DB, options ...Option) (*Ledger, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newLedger(adapters.NewSQLXAdapter(db), options...)
}

func newLedger(db adapters.DBAdapter, options ...Option) (*Ledger, error) {
	l := &Ledger{
		db:          db,
		clock:       time.Now,
		claimWindow: defaultClaimWindow,
	}

	for _, option := range options {
		if err := option(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

func (l *Ledger) booksTable() string { return l.tablePrefix + defaultBooksTableName }
func (l *Ledger) loansTable() string { return l.tablePrefix + defaultLoansTableName }
func (l *Ledger) renewalRequestsTable() string {
	return l.tablePrefix + defaultRenewalRequestsTableName
}
func (l *Ledger) reservationsTable() string { return l.tablePrefix + defaultReservationsTableName }

func (l *Ledger) builder() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

// begin starts a transaction, logging failures.
func (l *Ledger) begin(ctx context.Context) (adapters.DBTx, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		l.logError(logMsgBeginTxFailed, logAttrError, err.Error())
		return nil, errors.Join(errExecFailed, err)
	}

	return tx, nil
}

// rollback discards a transaction, ignoring the error after a commit.
func (l *Ledger) rollback(ctx context.Context, tx adapters.DBTx) {
	if err := tx.Rollback(ctx); err != nil {
		l.logWarn(logMsgRollbackTxFailed, logAttrError, err.Error())
	}
}

// commit finalizes a transaction, logging failures.
func (l *Ledger) commit(ctx context.Context, tx adapters.DBTx) error {
	if err := tx.Commit(ctx); err != nil {
		l.logError(logMsgCommitTxFailed, logAttrError, err.Error())
		return errors.Join(errExecFailed, err)
	}

	return nil
}

// execute runs a statement, logging the SQL with timing.
func (l *Ledger) execute(ctx context.Context, runner dbRunner, action string, sqlQuery string) (int64, error) {
	start := time.Now()
	result, execErr := runner.Exec(ctx, sqlQuery)
	l.logQueryWithDuration(sqlQuery, action, time.Since(start))

	if execErr != nil {
		l.logError(logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		return 0, errors.Join(errExecFailed, execErr)
	}

	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return 0, errors.Join(errExecFailed, rowsErr)
	}

	return rowsAffected, nil
}

// query runs a select, logging the SQL with timing.
func (l *Ledger) query(ctx context.Context, runner dbRunner, action string, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := runner.Query(ctx, sqlQuery)
	l.logQueryWithDuration(sqlQuery, action, time.Since(start))

	if queryErr != nil {
		l.logError(logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		return nil, errors.Join(errQueryFailed, queryErr)
	}

	return rows, nil
}

// closeRows safely closes database rows and logs any errors.
func (l *Ledger) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		l.logWarn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// notify dispatches a notification best-effort after commit. The dispatch
// is detached from the request's cancelation and bounded by its own
// timeout, so a slow dispatcher can never block or fail a ledger mutation.
func (l *Ledger) notify(ctx context.Context, userID uuid.UUID, kind circulation.TemplateKind, payload map[string]string) {
	if l.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultNotifyTimeout)
	defer cancel()

	if err := l.notifier.Notify(notifyCtx, userID, kind, payload); err != nil {
		l.logWarn(logMsgNotifyFailed,
			logAttrError, err.Error(),
			logAttrUserID, userID.String(),
			logAttrTemplate, string(kind))
	}
}

// observeOperation records duration and outcome metrics for one ledger operation.
func (l *Ledger) observeOperation(operation string, start time.Time, err error) {
	if l.metrics == nil {
		return
	}

	status := statusOK
	if err != nil {
		status = statusFailed
	}

	labels := map[string]string{labelOperation: operation, labelStatus: status}
	l.metrics.RecordDuration(metricOperationDuration, time.Since(start), labels)
	l.metrics.IncrementCounter(metricOperationTotal, labels)
}

// logQueryWithDuration logs SQL with execution time at debug level if the logger is configured.
func (l *Ledger) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if l.logger != nil {
		l.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if the logger is configured.
func (l *Ledger) logOperation(action string, args ...any) {
	if l.logger != nil {
		l.logger.Info(logMsgOperation+action, args...)
	}
}

func (l *Ledger) logWarn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

func (l *Ledger) logError(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Error(msg, args...)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
