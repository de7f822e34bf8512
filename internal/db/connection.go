package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/soochol/connreg/internal/connreg"
)

var (
	// ErrConnectionNotFound is returned when no row has the requested id.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrNameTaken is returned when the name unique constraint rejects a write.
	ErrNameTaken = errors.New("connection name taken")
)

const connectionColumns = `id, name, host, port, created_at, updated_at`

func scanConnection(scanner interface{ Scan(...any) error }) (*connreg.Connection, error) {
	c := &connreg.Connection{}
	var created, updated int64
	if err := scanner.Scan(&c.ID, &c.Name, &c.Host, &c.Port, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return c, nil
}

func (d *DB) CreateConnection(ctx context.Context, c *connreg.Connection) error {
	_, err := d.Pool.ExecContext(ctx, d.rebind(
		`INSERT INTO connections (`+connectionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`),
		c.ID, c.Name, c.Host, c.Port, c.CreatedAt.Unix(), c.UpdatedAt.Unix(),
	)
	if d.isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrNameTaken, c.Name)
	}
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

func (d *DB) GetConnection(ctx context.Context, id string) (*connreg.Connection, error) {
	row := d.Pool.QueryRowContext(ctx, d.rebind(
		`SELECT `+connectionColumns+` FROM connections WHERE id = $1`), id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return c, nil
}

func (d *DB) ConnectionNameExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := d.Pool.QueryRowContext(ctx, d.rebind(
		`SELECT COUNT(*) FROM connections WHERE name = $1`), name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check connection name: %w", err)
	}
	return n > 0, nil
}

func (d *DB) ListConnections(ctx context.Context) ([]*connreg.Connection, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	result := []*connreg.Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return result, nil
}

// UpdateConnection changes the non-nil fields of req in one statement and
// returns the stored row.
func (d *DB) UpdateConnection(ctx context.Context, id string, req connreg.UpdateRequest, now time.Time) (*connreg.Connection, error) {
	_, err := d.Pool.ExecContext(ctx, d.rebind(
		`UPDATE connections SET name = COALESCE($1, name), host = COALESCE($2, host),
		 port = COALESCE($3, port), updated_at = $4 WHERE id = $5`),
		nullable(req.Name), nullable(req.Host), nullable(req.Port), now.Unix(), id,
	)
	if d.isUniqueViolation(err) && req.Name != nil {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, *req.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("update connection: %w", err)
	}
	return d.GetConnection(ctx, id)
}

func (d *DB) DeleteConnection(ctx context.Context, id string) error {
	res, err := d.Pool.ExecContext(ctx, d.rebind(`DELETE FROM connections WHERE id = $1`), id)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	return nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (d *DB) isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	switch d.dialect {
	case Postgres:
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	case MySQL:
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1062
	case SQLite:
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	}
	return false
}
