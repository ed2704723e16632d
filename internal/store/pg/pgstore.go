// Package pg provides the Postgres-backed implementations of the core's
// store interfaces on the pgx stdlib driver.
package pg

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store is the transactional store used by entitlement and audit writes.
type Store struct {
	db *sql.DB
}

// Open connects the transactional pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// OpenReadOnly connects the isolated pool used exclusively by the query
// gateway. Sessions run with default_transaction_read_only=on and the
// pool is bounded separately from the transactional pool, so ad-hoc
// queries cannot starve write-path connections or escape read-only
// semantics.
func OpenReadOnly(dsn string, maxConns int) (*sql.DB, error) {
	if maxConns <= 0 || maxConns > 20 {
		maxConns = 10
	}
	db, err := sql.Open("pgx", readOnlyDSN(dsn))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func readOnlyDSN(dsn string) string {
	const param = "default_transaction_read_only=on"
	if strings.Contains(dsn, param) {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		if strings.Contains(dsn, "?") {
			return dsn + "&" + param
		}
		return dsn + "?" + param
	}
	return dsn + " " + param
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
