// Package repository defines storage interfaces for connections and the
// backends that implement them.
package repository

import (
	"context"
	"errors"

	"github.com/soochol/connreg/internal/connreg"
)

var (
	// ErrNotFound is returned when no connection has the requested ID.
	ErrNotFound = errors.New("connection not found")
	// ErrDuplicateName is returned when a write would give two live
	// connections the same name.
	ErrDuplicateName = errors.New("duplicate connection name")
)

// ConnectionRepository stores and retrieves connections. Every backend
// enforces name uniqueness on its own, independently of any check a caller
// made beforehand.
type ConnectionRepository interface {
	FindByID(ctx context.Context, id string) (*connreg.Connection, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, opts connreg.ConnectionOptions) (*connreg.Connection, error)
	Update(ctx context.Context, id string, req connreg.UpdateRequest) (*connreg.Connection, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*connreg.Connection, error)
}

func portOf(opts connreg.ConnectionOptions) int {
	if opts.Port == nil {
		return 0
	}
	return *opts.Port
}
