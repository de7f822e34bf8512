package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soochol/connreg/internal/connreg"
	"github.com/soochol/connreg/internal/db"
)

// SQLConnectionRepository stores connections in a SQL database. The
// table's unique constraint on name is the authority on duplicates.
type SQLConnectionRepository struct {
	db  *db.DB
	now func() time.Time
}

func NewSQLConnectionRepository(database *db.DB) *SQLConnectionRepository {
	return &SQLConnectionRepository{db: database, now: time.Now}
}

func (r *SQLConnectionRepository) FindByID(ctx context.Context, id string) (*connreg.Connection, error) {
	c, err := r.db.GetConnection(ctx, id)
	return c, translateSQLError(err)
}

func (r *SQLConnectionRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	return r.db.ConnectionNameExists(ctx, name)
}

func (r *SQLConnectionRepository) Create(ctx context.Context, opts connreg.ConnectionOptions) (*connreg.Connection, error) {
	now := r.now().UTC().Truncate(time.Second)
	c := &connreg.Connection{
		ID:        connreg.NewConnectionID(),
		Name:      opts.Name,
		Host:      opts.Host,
		Port:      portOf(opts),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.CreateConnection(ctx, c); err != nil {
		return nil, translateSQLError(err)
	}
	return c, nil
}

func (r *SQLConnectionRepository) Update(ctx context.Context, id string, req connreg.UpdateRequest) (*connreg.Connection, error) {
	c, err := r.db.UpdateConnection(ctx, id, req, r.now())
	return c, translateSQLError(err)
}

func (r *SQLConnectionRepository) Delete(ctx context.Context, id string) error {
	return translateSQLError(r.db.DeleteConnection(ctx, id))
}

func (r *SQLConnectionRepository) List(ctx context.Context) ([]*connreg.Connection, error) {
	return r.db.ListConnections(ctx)
}

// translateSQLError maps db sentinels onto the repository ones, keeping the
// detail that followed the sentinel text.
func translateSQLError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrConnectionNotFound):
		return fmt.Errorf("%w%s", ErrNotFound, strings.TrimPrefix(err.Error(), db.ErrConnectionNotFound.Error()))
	case errors.Is(err, db.ErrNameTaken):
		return fmt.Errorf("%w%s", ErrDuplicateName, strings.TrimPrefix(err.Error(), db.ErrNameTaken.Error()))
	}
	return err
}
