// Package adapters provides database adapter implementations for the
// PostgreSQL circulation ledger.
//
// This package implements the adapter pattern to support multiple PostgreSQL
// database libraries: pgxpool.Pool, sql.DB, and sqlx.DB. All adapters provide
// equivalent functionality through a common DBAdapter interface, including
// transactions, so the ledger can keep copy-count changes and row inserts
// atomic regardless of the connection type it was constructed from.
package adapters
