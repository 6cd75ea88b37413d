package config

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for the sql.DB and sqlx adapters
)

// DBAdapter selects which database adapter the daemon connects through.
// The ledger behaves identically on all three; pgx is the default.
type DBAdapter string

const (
	AdapterPGX   DBAdapter = "pgx"
	AdapterSQLDB DBAdapter = "sqldb"
	AdapterSQLX  DBAdapter = "sqlx"

	driverPostgres = "postgres"

	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = time.Hour
	defaultConnMaxIdleTime = 5 * time.Minute
)

// OpenSQLDB creates a configured *sql.DB using the lib/pq driver and
// verifies the connection.
func (c Config) OpenSQLDB(ctx context.Context) (*sql.DB, error) {
	db, openErr := sql.Open(driverPostgres, c.DatabaseURL)
	if openErr != nil {
		return nil, openErr
	}

	db.SetMaxOpenConns(int(c.PoolMaxConns))
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, pingErr
	}

	return db, nil
}

// OpenSQLX creates a configured *sqlx.DB using the lib/pq driver and
// verifies the connection.
func (c Config) OpenSQLX(ctx context.Context) (*sqlx.DB, error) {
	db, openErr := sqlx.Open(driverPostgres, c.DatabaseURL)
	if openErr != nil {
		return nil, openErr
	}

	db.SetMaxOpenConns(int(c.PoolMaxConns))
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, pingErr
	}

	return db, nil
}
