// Package db is the SQL persistence layer. It speaks PostgreSQL, SQLite and
// MySQL through database/sql.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Dialect names a supported SQL database.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
)

// ParseDialect validates a configured driver name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case Postgres, SQLite, MySQL:
		return d, nil
	}
	return "", fmt.Errorf("unsupported sql dialect %q", s)
}

func (d Dialect) driverName() string {
	if d == SQLite {
		return "sqlite3"
	}
	return string(d)
}

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

//go:embed schema/sqlite.sql
var sqliteSchema string

//go:embed schema/mysql.sql
var mysqlSchema string

// DB wraps a database/sql connection pool.
type DB struct {
	Pool    *sql.DB
	dialect Dialect
}

// New opens and pings a database. For SQLite, dsn is a file path and its
// parent directory is created if missing.
func New(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	if dialect == SQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	pool, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialect == SQLite {
		// One writer at a time; concurrent writers would get SQLITE_BUSY.
		pool.SetMaxOpenConns(1)
	} else {
		pool.SetMaxOpenConns(25)
		pool.SetMaxIdleConns(5)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return Wrap(pool, dialect), nil
}

// Wrap builds a DB around an existing pool.
func Wrap(pool *sql.DB, dialect Dialect) *DB {
	return &DB{Pool: pool, dialect: dialect}
}

// Dialect reports which database d talks to.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.Pool.Close()
}

// Migrate brings the schema up to date. PostgreSQL uses versioned
// migrations; SQLite and MySQL apply an idempotent schema.
func (d *DB) Migrate(ctx context.Context) error {
	switch d.dialect {
	case Postgres:
		return d.migratePostgres()
	case SQLite:
		return d.exec(ctx, sqliteSchema)
	case MySQL:
		return d.exec(ctx, mysqlSchema)
	}
	return fmt.Errorf("unsupported sql dialect %q", d.dialect)
}

func (d *DB) exec(ctx context.Context, schema string) error {
	if _, err := d.Pool.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (d *DB) migratePostgres() error {
	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(d.Pool, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}
	// m is not closed: closing it would close the shared pool too.
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// rebind rewrites $N placeholders into the dialect's form. Queries in this
// package always number their placeholders in argument order.
func (d *DB) rebind(query string) string {
	if d.dialect == Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] != '$' {
			b.WriteByte(query[i])
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte('$')
			continue
		}
		b.WriteByte('?')
		i = j - 1
	}
	return b.String()
}
