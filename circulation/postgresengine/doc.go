// Package postgresengine implements the circulation Loan Ledger on
// PostgreSQL.
//
// The ledger is the only writer of copy counts: every mutation runs in one
// transaction with a row lock on the affected book, so the invariant
// available_copies + live loans == total_copies holds at every settled
// state. Construct it from a pgxpool.Pool, a sql.DB or a sqlx.DB; the
// internal adapter layer makes the three behave identically.
package postgresengine
