package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/soochol/connreg/internal/connreg"
	"github.com/soochol/connreg/internal/repository"
)

// stubConnectionRepo records calls and returns canned data.
type stubConnectionRepo struct {
	exists    bool
	existsErr error
	createErr error
	updateErr error
	deleteErr error
	found     *connreg.Connection
	findErr   error
	list      []*connreg.Connection

	creates    []connreg.ConnectionOptions
	updates    []connreg.UpdateRequest
	updateIDs  []string
	deletes    []string
	existsArgs []string
}

func (s *stubConnectionRepo) FindByID(_ context.Context, id string) (*connreg.Connection, error) {
	return s.found, s.findErr
}

func (s *stubConnectionRepo) ExistsByName(_ context.Context, name string) (bool, error) {
	s.existsArgs = append(s.existsArgs, name)
	return s.exists, s.existsErr
}

func (s *stubConnectionRepo) Create(_ context.Context, opts connreg.ConnectionOptions) (*connreg.Connection, error) {
	s.creates = append(s.creates, opts)
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &connreg.Connection{ID: "conn-stub", Name: opts.Name, Host: opts.Host, Port: *opts.Port}, nil
}

func (s *stubConnectionRepo) Update(_ context.Context, id string, req connreg.UpdateRequest) (*connreg.Connection, error) {
	s.updateIDs = append(s.updateIDs, id)
	s.updates = append(s.updates, req)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	c := &connreg.Connection{ID: id}
	req.Apply(c)
	return c, nil
}

func (s *stubConnectionRepo) Delete(_ context.Context, id string) error {
	s.deletes = append(s.deletes, id)
	return s.deleteErr
}

func (s *stubConnectionRepo) List(_ context.Context) ([]*connreg.Connection, error) {
	return s.list, nil
}

func requireInvalidArgument(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, connreg.ErrInvalidArgument), "expected invalid argument, got %v", err)
	assert.Equal(t, msg, err.Error())
}

func TestConnectionService_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		opts *connreg.ConnectionOptions
		want string
	}{
		{"nil options", nil, connreg.MsgOptionsRequired},
		{"empty options", &connreg.ConnectionOptions{}, connreg.MsgNameRequired},
		{"missing name", &connreg.ConnectionOptions{Host: "h", Port: connreg.Ptr(1)}, connreg.MsgNameRequired},
		{"missing host", &connreg.ConnectionOptions{Name: "n", Port: connreg.Ptr(1)}, connreg.MsgHostRequired},
		{"missing host and port", &connreg.ConnectionOptions{Name: "n"}, connreg.MsgHostRequired},
		{"missing port", &connreg.ConnectionOptions{Name: "n", Host: "h"}, connreg.MsgPortRequired},
		{"negative port", &connreg.ConnectionOptions{Name: "n", Host: "h", Port: connreg.Ptr(-1)}, connreg.MsgPortRange},
		{"port too large", &connreg.ConnectionOptions{Name: "n", Host: "h", Port: connreg.Ptr(65536)}, connreg.MsgPortRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubConnectionRepo{}
			svc := NewConnectionService(repo, ConnectionServiceOptions{})

			_, err := svc.Create(context.Background(), tt.opts)
			requireInvalidArgument(t, err, tt.want)
			assert.Empty(t, repo.existsArgs, "uniqueness check must not run")
			assert.Empty(t, repo.creates, "store create must not run")
		})
	}
}

func TestConnectionService_CreatePortRangeProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		port := rapid.Int().Draw(rt, "port")
		repo := &stubConnectionRepo{}
		svc := NewConnectionService(repo, ConnectionServiceOptions{})

		_, err := svc.Create(context.Background(), &connreg.ConnectionOptions{Name: "n", Host: "h", Port: &port})
		inRange := port >= 0 && port <= 65535
		if inRange && err != nil {
			rt.Fatalf("port %d rejected: %v", port, err)
		}
		if !inRange {
			if err == nil || err.Error() != connreg.MsgPortRange {
				rt.Fatalf("port %d: got %v, want port range error", port, err)
			}
			if len(repo.creates) != 0 {
				rt.Fatalf("port %d reached the store", port)
			}
		}
	})
}

func TestConnectionService_CreatePortBounds(t *testing.T) {
	for _, port := range []int{0, 1, 65534, 65535} {
		repo := &stubConnectionRepo{}
		svc := NewConnectionService(repo, ConnectionServiceOptions{})
		c, err := svc.Create(context.Background(), &connreg.ConnectionOptions{Name: "n", Host: "h", Port: connreg.Ptr(port)})
		require.NoError(t, err, "port %d", port)
		assert.Equal(t, port, c.Port)
	}
}

func TestConnectionService_CreateDuplicateName(t *testing.T) {
	repo := &stubConnectionRepo{exists: true}
	svc := NewConnectionService(repo, ConnectionServiceOptions{})

	_, err := svc.Create(context.Background(), &connreg.ConnectionOptions{Name: "db1", Host: "h", Port: connreg.Ptr(1)})
	requireInvalidArgument(t, err, "Sorry, connection names must be unique.")
	assert.Equal(t, []string{"db1"}, repo.existsArgs)
	assert.Empty(t, repo.creates)
}

func TestConnectionService_CreatePassesStoreErrorsThrough(t *testing.T) {
	boom := errors.New("store unavailable")

	repo := &stubConnectionRepo{existsErr: boom}
	_, err := NewConnectionService(repo, ConnectionServiceOptions{}).
		Create(context.Background(), &connreg.ConnectionOptions{Name: "n", Host: "h", Port: connreg.Ptr(1)})
	assert.Same(t, boom, err)
	assert.Empty(t, repo.creates)

	repo = &stubConnectionRepo{createErr: boom}
	_, err = NewConnectionService(repo, ConnectionServiceOptions{}).
		Create(context.Background(), &connreg.ConnectionOptions{Name: "n", Host: "h", Port: connreg.Ptr(1)})
	assert.Same(t, boom, err)
	assert.False(t, errors.Is(err, connreg.ErrInvalidArgument))
}

func TestConnectionService_CreateRaceSurfacesStoreConflict(t *testing.T) {
	// Pre-check passes but the store rejects: the store error comes back as is.
	conflict := errors.New("duplicate connection name: db1")
	repo := &stubConnectionRepo{createErr: conflict}
	svc := NewConnectionService(repo, ConnectionServiceOptions{})

	_, err := svc.Create(context.Background(), &connreg.ConnectionOptions{Name: "db1", Host: "h", Port: connreg.Ptr(1)})
	assert.Same(t, conflict, err)
}

func TestConnectionService_UpdateRequiresIDAndOptions(t *testing.T) {
	repo := &stubConnectionRepo{}
	svc := NewConnectionService(repo, ConnectionServiceOptions{})

	_, err := svc.Update(context.Background(), "", &connreg.UpdateRequest{Name: connreg.Ptr("x")})
	requireInvalidArgument(t, err, connreg.MsgIDRequired)

	_, err = svc.Update(context.Background(), "", nil)
	requireInvalidArgument(t, err, connreg.MsgIDRequired)

	_, err = svc.Update(context.Background(), "conn-1", nil)
	requireInvalidArgument(t, err, connreg.MsgOptionsRequired)

	assert.Empty(t, repo.updates)
}

func TestConnectionService_UpdateDropsUnlistedFields(t *testing.T) {
	repo := &stubConnectionRepo{}
	svc := NewConnectionService(repo, ConnectionServiceOptions{})

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"name": "x", "secret": "y"}`), &raw))
	req, err := connreg.PickUpdate(raw)
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), "conn-1", &req)
	require.NoError(t, err)
	require.Len(t, repo.updates, 1)
	got := repo.updates[0]
	require.NotNil(t, got.Name)
	assert.Equal(t, "x", *got.Name)
	assert.Nil(t, got.Host)
	assert.Nil(t, got.Port)
	assert.Equal(t, []string{"conn-1"}, repo.updateIDs)
}

func TestConnectionService_UpdateLenientByDefault(t *testing.T) {
	repo := &stubConnectionRepo{exists: true}
	svc := NewConnectionService(repo, ConnectionServiceOptions{})

	_, err := svc.Update(context.Background(), "conn-1", &connreg.UpdateRequest{
		Name: connreg.Ptr(""),
		Port: connreg.Ptr(99999),
	})
	require.NoError(t, err)
	assert.Len(t, repo.updates, 1)
	assert.Empty(t, repo.existsArgs, "lenient update does not check uniqueness")
}

func TestConnectionService_UpdateStrict(t *testing.T) {
	current := &connreg.Connection{ID: "conn-1", Name: "db1", Host: "h", Port: 1}
	tests := []struct {
		name    string
		req     connreg.UpdateRequest
		exists  bool
		wantMsg string
	}{
		{"empty name", connreg.UpdateRequest{Name: connreg.Ptr("")}, false, connreg.MsgNameRequired},
		{"empty host", connreg.UpdateRequest{Host: connreg.Ptr("")}, false, connreg.MsgHostRequired},
		{"port out of range", connreg.UpdateRequest{Port: connreg.Ptr(99999)}, false, connreg.MsgPortRange},
		{"rename onto taken name", connreg.UpdateRequest{Name: connreg.Ptr("db2")}, true, connreg.MsgNameNotUnique},
		{"rename to free name", connreg.UpdateRequest{Name: connreg.Ptr("db2")}, false, ""},
		{"keep own name", connreg.UpdateRequest{Name: connreg.Ptr("db1")}, true, ""},
		{"port only", connreg.UpdateRequest{Port: connreg.Ptr(65535)}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubConnectionRepo{exists: tt.exists, found: current}
			svc := NewConnectionService(repo, ConnectionServiceOptions{StrictUpdate: true})

			req := tt.req
			_, err := svc.Update(context.Background(), "conn-1", &req)
			if tt.wantMsg != "" {
				requireInvalidArgument(t, err, tt.wantMsg)
				assert.Empty(t, repo.updates)
				return
			}
			require.NoError(t, err)
			assert.Len(t, repo.updates, 1)
		})
	}
}

func TestConnectionService_UpdateStrictMissingRecord(t *testing.T) {
	repo := &stubConnectionRepo{findErr: repository.ErrNotFound}
	svc := NewConnectionService(repo, ConnectionServiceOptions{StrictUpdate: true})

	_, err := svc.Update(context.Background(), "conn-9", &connreg.UpdateRequest{Name: connreg.Ptr("x")})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConnectionService_Delete(t *testing.T) {
	repo := &stubConnectionRepo{}
	svc := NewConnectionService(repo, ConnectionServiceOptions{})

	requireInvalidArgument(t, svc.Delete(context.Background(), ""), connreg.MsgIDRequired)
	assert.Empty(t, repo.deletes)

	require.NoError(t, svc.Delete(context.Background(), "conn-1"))
	assert.Equal(t, []string{"conn-1"}, repo.deletes)

	repo.deleteErr = repository.ErrNotFound
	assert.Same(t, repository.ErrNotFound, svc.Delete(context.Background(), "conn-2"))
}

func TestConnectionService_ReadsPassThrough(t *testing.T) {
	found := &connreg.Connection{ID: "conn-1", Name: "db1"}
	list := []*connreg.Connection{found}
	repo := &stubConnectionRepo{found: found, list: list}
	svc := NewConnectionService(repo, ConnectionServiceOptions{})

	got, err := svc.FindByID(context.Background(), "")
	require.NoError(t, err)
	assert.Same(t, found, got)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, list, all)

	repo.findErr = repository.ErrNotFound
	_, err = svc.FindByID(context.Background(), "conn-x")
	assert.Same(t, repository.ErrNotFound, err)
}

func TestConnectionService_DefaultConnections(t *testing.T) {
	svc := NewConnectionService(&stubConnectionRepo{}, ConnectionServiceOptions{})
	assert.Equal(t, connreg.DefaultConnectionsJSON(), svc.DefaultConnections())
	assert.True(t, json.Valid([]byte(svc.DefaultConnections())))
}

// TestConnectionService_Scenario walks the create, duplicate, rename flow
// against the in-memory store.
func TestConnectionService_Scenario(t *testing.T) {
	repo := repository.NewMemoryConnectionRepository()
	svc := NewConnectionService(repo, ConnectionServiceOptions{})
	ctx := context.Background()

	first, err := svc.Create(ctx, &connreg.ConnectionOptions{Name: "db1", Host: "10.0.0.1", Port: connreg.Ptr(5432)})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	_, err = svc.Create(ctx, &connreg.ConnectionOptions{Name: "db1", Host: "10.0.0.2", Port: connreg.Ptr(5433)})
	requireInvalidArgument(t, err, connreg.MsgNameNotUnique)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "second create must not persist")

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"name": "db1-renamed", "role": "admin"}`), &raw))
	req, err := connreg.PickUpdate(raw)
	require.NoError(t, err)
	updated, err := svc.Update(ctx, first.ID, &req)
	require.NoError(t, err)
	assert.Equal(t, "db1-renamed", updated.Name)

	stored, err := svc.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "db1-renamed", stored.Name)
	assert.Equal(t, "10.0.0.1", stored.Host)
	assert.Equal(t, 5432, stored.Port)

	encoded, err := json.Marshal(stored)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "role")

	require.NoError(t, svc.Delete(ctx, first.ID))
	_, err = svc.FindByID(ctx, first.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
