package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/mattn/go-sqlite3"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect absorbs the differences between the supported backends:
// placeholder style, how generated ids come back, row-locking support and
// driver-specific unique-violation errors. Queries are written once with
// '?' placeholders and rebound per dialect.
type Dialect interface {
	Name() string
	Rebind(query string) string
	SupportsRowLocking() bool
	InsertID(ctx context.Context, db DBTX, query string, args ...any) (int64, error)
	IsUniqueViolation(err error) bool
}

type SQLiteDialect struct{}

func (SQLiteDialect) Name() string               { return "sqlite" }
func (SQLiteDialect) Rebind(query string) string { return query }
func (SQLiteDialect) SupportsRowLocking() bool   { return false }

func (SQLiteDialect) InsertID(ctx context.Context, db DBTX, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (SQLiteDialect) IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

type PostgresDialect struct{}

func (PostgresDialect) Name() string             { return "postgres" }
func (PostgresDialect) SupportsRowLocking() bool { return true }

// Rebind rewrites '?' placeholders to the $1..$n style. None of the store's
// queries contain a literal question mark.
func (PostgresDialect) Rebind(query string) string {
	buf := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			buf = append(buf, query[i])
			continue
		}
		n++
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(n), 10)
	}
	return string(buf)
}

func (d PostgresDialect) InsertID(ctx context.Context, db DBTX, query string, args ...any) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, d.Rebind(query+" RETURNING id"), args...).Scan(&id)
	return id, err
}

func (PostgresDialect) IsUniqueViolation(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == "23505"
}

type MySQLDialect struct{}

func (MySQLDialect) Name() string               { return "mysql" }
func (MySQLDialect) Rebind(query string) string { return query }
func (MySQLDialect) SupportsRowLocking() bool   { return true }

func (MySQLDialect) InsertID(ctx context.Context, db DBTX, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (MySQLDialect) IsUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
