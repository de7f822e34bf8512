package services

import (
	"context"
	"log/slog"

	"github.com/soochol/connreg/internal/connreg"
	"github.com/soochol/connreg/internal/repository"
)

// ConnectionServiceOptions tunes validation policy.
type ConnectionServiceOptions struct {
	// StrictUpdate validates the fields an update sets and checks a new
	// name for uniqueness. Off by default: updates are passed through as
	// given.
	StrictUpdate bool
}

// ConnectionService validates connection input and enforces unique names
// on top of a ConnectionRepository. It keeps no state of its own and is
// safe for concurrent use. Store errors are returned unchanged.
type ConnectionService struct {
	repo repository.ConnectionRepository
	opts ConnectionServiceOptions
}

func NewConnectionService(repo repository.ConnectionRepository, opts ConnectionServiceOptions) *ConnectionService {
	return &ConnectionService{repo: repo, opts: opts}
}

// DefaultConnections returns the built-in connection templates as JSON.
func (s *ConnectionService) DefaultConnections() string {
	return connreg.DefaultConnectionsJSON()
}

// FindByID returns the stored connection.
func (s *ConnectionService) FindByID(ctx context.Context, id string) (*connreg.Connection, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all connections in the store's order.
func (s *ConnectionService) List(ctx context.Context) ([]*connreg.Connection, error) {
	return s.repo.List(ctx)
}

// Create validates opts, checks the name is free and stores a new
// connection.
//
// The name check and the insert are separate store calls and no lock is
// held between them. Two concurrent creates with the same name can both
// pass the check; the store's own uniqueness enforcement then rejects one
// of them with repository.ErrDuplicateName.
func (s *ConnectionService) Create(ctx context.Context, opts *connreg.ConnectionOptions) (*connreg.Connection, error) {
	if err := validateCreate(opts); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, opts.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, connreg.InvalidArgument(connreg.MsgNameNotUnique)
	}

	conn, err := s.repo.Create(ctx, *opts)
	if err != nil {
		return nil, err
	}
	slog.Debug("connection created", "id", conn.ID, "name", conn.Name)
	return conn, nil
}

// Update changes the fields set in req. Fields outside the request type
// cannot reach the store.
func (s *ConnectionService) Update(ctx context.Context, id string, req *connreg.UpdateRequest) (*connreg.Connection, error) {
	if id == "" {
		return nil, connreg.InvalidArgument(connreg.MsgIDRequired)
	}
	if req == nil {
		return nil, connreg.InvalidArgument(connreg.MsgOptionsRequired)
	}
	filtered := connreg.UpdateRequest{Name: req.Name, Host: req.Host, Port: req.Port}

	if s.opts.StrictUpdate {
		if err := s.validateUpdate(ctx, id, filtered); err != nil {
			return nil, err
		}
	}

	conn, err := s.repo.Update(ctx, id, filtered)
	if err != nil {
		return nil, err
	}
	slog.Debug("connection updated", "id", conn.ID, "name", conn.Name)
	return conn, nil
}

// Delete removes the connection with id.
func (s *ConnectionService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return connreg.InvalidArgument(connreg.MsgIDRequired)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Debug("connection deleted", "id", id)
	return nil
}

// validateCreate checks opts in a fixed order and reports the first problem.
func validateCreate(opts *connreg.ConnectionOptions) error {
	switch {
	case opts == nil:
		return connreg.InvalidArgument(connreg.MsgOptionsRequired)
	case opts.Name == "":
		return connreg.InvalidArgument(connreg.MsgNameRequired)
	case opts.Host == "":
		return connreg.InvalidArgument(connreg.MsgHostRequired)
	case opts.Port == nil:
		return connreg.InvalidArgument(connreg.MsgPortRequired)
	case !connreg.PortInRange(*opts.Port):
		return connreg.InvalidArgument(connreg.MsgPortRange)
	}
	return nil
}

func (s *ConnectionService) validateUpdate(ctx context.Context, id string, req connreg.UpdateRequest) error {
	switch {
	case req.Name != nil && *req.Name == "":
		return connreg.InvalidArgument(connreg.MsgNameRequired)
	case req.Host != nil && *req.Host == "":
		return connreg.InvalidArgument(connreg.MsgHostRequired)
	case req.Port != nil && !connreg.PortInRange(*req.Port):
		return connreg.InvalidArgument(connreg.MsgPortRange)
	}
	if req.Name == nil {
		return nil
	}

	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if cur.Name == *req.Name {
		return nil
	}
	exists, err := s.repo.ExistsByName(ctx, *req.Name)
	if err != nil {
		return err
	}
	if exists {
		return connreg.InvalidArgument(connreg.MsgNameNotUnique)
	}
	return nil
}
