package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the backend selected by configuration presence: a
// Postgres URL wins, then a MySQL DSN, then the local SQLite file.
func Open(ctx context.Context, databaseURL, mysqlDSN, sqlitePath string) (*sql.DB, Dialect, error) {
	switch {
	case databaseURL != "":
		db, err := sql.Open("pgx", databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		tunePool(db)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return db, PostgresDialect{}, nil

	case mysqlDSN != "":
		dsn, err := normalizeMySQLDSN(mysqlDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		tunePool(db)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		return db, MySQLDialect{}, nil

	default:
		db, err := sql.Open("sqlite3", sqlitePath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		// Single connection: SQLite allows one writer at a time, and a
		// serialized pool keeps concurrent updates from hitting SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping sqlite: %w", err)
		}
		return db, SQLiteDialect{}, nil
	}
}

func tunePool(db *sql.DB) {
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
}

// normalizeMySQLDSN forces the options the store depends on: parseTime for
// DATETIME scanning and multiStatements for migration files.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN(), nil
}
