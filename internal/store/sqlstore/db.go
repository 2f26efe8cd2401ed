// Package sqlstore provides an Invoker that keeps entities as JSON documents
// in one SQL table per resource. SQLite and PostgreSQL are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// SequenceTable holds the int64 id sequences of every resource
const SequenceTable = "datarest_sequences"

// DB is a database handle paired with its dialect
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens a database for a configuration driver name ("sqlite" or
// "postgres") and verifies the connection
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// every connection to an in-memory database sees its own database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	return &DB{db: db, dialect: dialect}, nil
}

// Wrap pairs an existing handle with a dialect
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

// Dialect returns the dialect
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the sequence table
func (d *DB) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`, d.dialect.Quote(SequenceTable))

	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create sequence table: %w", err)
	}
	return nil
}

// Store returns the document store of one resource. Call Store.Migrate to
// create its table.
func (d *DB) Store(table string, idType repository.IDType, factory repository.Factory) *Store {
	if idType == "" {
		idType = repository.IDInt64
	}
	return &Store{
		db:      d.db,
		dialect: d.dialect,
		table:   table,
		idType:  idType,
		factory: factory,
	}
}

// withTx runs fn in a transaction, committing on success
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
