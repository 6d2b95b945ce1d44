// Package store persists transport orders, order sequences, the outbox,
// the audit log and admin users in SQLite or PostgreSQL.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"fleetkernel/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
	dialect dialect
}

func Open(cfg *config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", cfg.SQLite.Path)
		return open(sqliteDialect, dsn, 1)
	case "postgres":
		pg := cfg.Postgres
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			pg.Host, pg.Port, pg.Database, pg.User, pg.Password, pg.SSLMode)
		return open(postgresDialect, dsn, 0)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func open(d dialect, dsn string, maxConns int) (*DB, error) {
	sqlDB, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}
	db := &DB{DB: sqlDB, dialect: d}
	if _, err := db.Exec(d.schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", d.name, err)
	}
	return db, nil
}

func (db *DB) Driver() string { return db.dialect.name }

// Q adapts a query written for SQLite to the open backend.
func (db *DB) Q(query string) string {
	return db.dialect.rewrite(query)
}

func (db *DB) ts(t time.Time) any { return db.dialect.encodeTime(t) }

// localTS matches columns filled by the datetime('now','localtime') default.
func (db *DB) localTS(t time.Time) any { return db.dialect.encodeLocalTime(t) }

// inTx runs fn in a transaction, rolling back on error.
func (db *DB) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
