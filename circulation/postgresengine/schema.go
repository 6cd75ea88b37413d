package postgresengine

import (
	"context"
	"fmt"
)

const (
	actionCreateSchema = "create schema"

	logMsgSchemaReady = "circulation schema is ready"
)

// InitSchema creates the circulation tables and indexes if they do not
// exist yet. It honors the configured table prefix and is safe to run on
// every startup.
func (l *Ledger) InitSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id               UUID PRIMARY KEY,
			title            TEXT NOT NULL,
			category         TEXT NOT NULL DEFAULT '',
			tag              TEXT NOT NULL CHECK (tag IN ('red', 'yellow', 'white')),
			total_copies     INTEGER NOT NULL CHECK (total_copies >= 0),
			available_copies INTEGER NOT NULL CHECK (available_copies >= 0 AND available_copies <= total_copies),
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, l.booksTable()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id            UUID PRIMARY KEY,
			user_id       UUID NOT NULL,
			book_id       UUID NOT NULL REFERENCES %s (id),
			loan_date     TIMESTAMPTZ NOT NULL,
			due_date      TIMESTAMPTZ,
			return_date   TIMESTAMPTZ,
			status        TEXT NOT NULL CHECK (status IN ('active', 'overdue', 'returned')),
			renewal_count INTEGER NOT NULL DEFAULT 0 CHECK (renewal_count >= 0),
			fine          NUMERIC(10, 2)
		)`, l.loansTable(), l.booksTable()),

		// one live loan per user and book
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_live_per_user_book_idx
			ON %s (user_id, book_id) WHERE status IN ('active', 'overdue')`,
			l.loansTable(), l.loansTable()),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_status_due_date_idx
			ON %s (status, due_date)`,
			l.loansTable(), l.loansTable()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id           UUID PRIMARY KEY,
			loan_id      UUID NOT NULL REFERENCES %s (id),
			user_id      UUID NOT NULL,
			status       TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'denied')),
			request_date TIMESTAMPTZ NOT NULL
		)`, l.renewalRequestsTable(), l.loansTable()),

		// one pending request per loan
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_pending_per_loan_idx
			ON %s (loan_id) WHERE status = 'pending'`,
			l.renewalRequestsTable(), l.renewalRequestsTable()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          UUID PRIMARY KEY,
			book_id     UUID NOT NULL REFERENCES %s (id),
			user_id     UUID NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			notified_at TIMESTAMPTZ,
			claim_by    TIMESTAMPTZ,
			status      TEXT NOT NULL CHECK (status IN ('queued', 'notified', 'fulfilled', 'expired', 'canceled'))
		)`, l.reservationsTable(), l.booksTable()),

		// one live reservation per user and book
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_live_per_user_book_idx
			ON %s (book_id, user_id) WHERE status IN ('queued', 'notified')`,
			l.reservationsTable(), l.reservationsTable()),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_fifo_idx
			ON %s (book_id, status, created_at)`,
			l.reservationsTable(), l.reservationsTable()),
	}

	for _, statement := range statements {
		if _, execErr := l.execute(ctx, l.db, actionCreateSchema, statement); execErr != nil {
			return execErr
		}
	}

	l.logOperation(logMsgSchemaReady)

	return nil
}
