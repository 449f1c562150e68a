package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"market-data-server/src/helpers"
	"market-data-server/src/logger"
)

// -----------------------------------------------------------------------------
// sqlStore holds the queries shared by the sqlite and postgres backends.
// Queries are written with ? placeholders and rebound per dialect.
// All time columns are unix milliseconds.
// -----------------------------------------------------------------------------

type sqlStore struct {
	DB       *sql.DB
	Logger   *logger.Logger
	dialect  string
	schema   string
	typeReal string
	typeInt  string
}

// -----------------------------------------------------------------------------

func newSQLStore(dialect, schema string, log *logger.Logger) *sqlStore {
	s := &sqlStore{Logger: log, dialect: dialect, schema: schema}
	if dialect == "postgres" {
		s.typeReal, s.typeInt = "DOUBLE PRECISION", "BIGINT"
	} else {
		s.typeReal, s.typeInt = "REAL", "INTEGER"
	}
	return s
}

// -----------------------------------------------------------------------------

// table returns the (schema qualified) table reference
func (s *sqlStore) table(name string) string {
	if s.schema != "" {
		return fmt.Sprintf(`"%s"."%s"`, s.schema, name)
	}
	return name
}

// -----------------------------------------------------------------------------

// rebind turns ? placeholders into $n for postgres
func (s *sqlStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func (s *sqlStore) exec(ctx context.Context, op, query string, args ...interface{}) (sql.Result, error) {
	res, err := s.DB.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, helpers.NewPersistenceError(op, err)
	}
	return res, nil
}

// -----------------------------------------------------------------------------

// withTx runs fn in a transaction, rolling back on error
func (s *sqlStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.NewPersistenceError(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return helpers.NewPersistenceError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return helpers.NewPersistenceError(op, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) Ping(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.DB.PingContext(ctx)
}

// -----------------------------------------------------------------------------

func (s *sqlStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Time helpers
// -----------------------------------------------------------------------------

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func ptrFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}

// rangeClause builds "AND col >= ? AND col <= ?" for non-zero bounds
func rangeClause(col string, from, to time.Time) (string, []interface{}) {
	var b strings.Builder
	var args []interface{}
	if !from.IsZero() {
		b.WriteString(" AND " + col + " >= ?")
		args = append(args, toMillis(from))
	}
	if !to.IsZero() {
		b.WriteString(" AND " + col + " <= ?")
		args = append(args, toMillis(to))
	}
	return b.String(), args
}
