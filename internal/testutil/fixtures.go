package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"filetree/internal/domain/models"
	structmodels "filetree/internal/domain/models/structure"
	"filetree/internal/domain/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Logger returns a logger that discards output
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AddUser registers a directory user with a fresh id
func (s *Store) AddUser(t testing.TB, name string) string {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Name: name, Email: name + "@example.com"}
	require.NoError(t, s.Users().Upsert(context.Background(), u))
	return u.ID
}

// AddFolder creates a folder owned by owner ("" for unowned) under parent ("" for root)
func (s *Store) AddFolder(t testing.TB, name, parent, owner string) string {
	t.Helper()
	return s.add(t, name, structmodels.NodeTypeFolder, parent, owner)
}

// AddFile creates a file owned by owner ("" for unowned) under parent
func (s *Store) AddFile(t testing.TB, name, parent, owner string) string {
	t.Helper()
	return s.add(t, name, structmodels.NodeTypeFile, parent, owner)
}

// Grant upserts a grant with the given flags
func (s *Store) Grant(t testing.TB, folderID, userID string, caps structmodels.Capabilities) string {
	t.Helper()
	g := &structmodels.Grant{FolderID: folderID, UserID: userID, Capabilities: caps, GrantedBy: userID}
	require.NoError(t, s.Grants().Upsert(context.Background(), g))
	return g.ID
}

func (s *Store) add(t testing.TB, name string, typ structmodels.NodeType, parent, owner string) string {
	t.Helper()
	n := &structmodels.Node{Name: name, Type: typ, ParentID: optional(parent), OwnerID: optional(owner)}
	require.NoError(t, s.Nodes().Create(context.Background(), n))
	return n.ID
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// TxRecorder is a TransactionManager that runs fn inline and counts calls
type TxRecorder struct {
	Calls int
}

// ExecTx runs fn with the given context
func (m *TxRecorder) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	m.Calls++
	return fn(ctx)
}
