// Package testutil builds in-memory databases and fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// NewDatabase returns a migrated private in-memory sqlite database.
func NewDatabase(t testing.TB) *database.Database {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return database.NewDatabase(db)
}

type Fixture struct {
	Workspace *models.Workspace
	Owner     *models.WorkspaceUser
	Agent     *models.WorkspaceUser
	Customer  *models.WorkspaceUser
}

// Seed creates a workspace with an owner, a support agent and a customer.
func Seed(t testing.TB, db *database.Database) *Fixture {
	t.Helper()
	ctx := context.Background()
	n := seq.Add(1)

	owner := NewUser(t, db, fmt.Sprintf("owner%d@example.com", n))
	ws := &models.Workspace{Name: "Acme", Slug: fmt.Sprintf("acme-%d", n), TicketPrefix: "ACM"}
	ownerWU, err := db.CreateWorkspace(ctx, ws, owner.ID)
	require.NoError(t, err)
	ownerWU.User = owner

	return &Fixture{
		Workspace: ws,
		Owner:     ownerWU,
		Agent:     AddMember(t, db, ws.ID, "Agent", models.RoleSupport),
		Customer:  AddMember(t, db, ws.ID, "Customer", models.RoleUser),
	}
}

func NewUser(t testing.TB, db *database.Database, email string) *models.User {
	t.Helper()
	u := &models.User{Name: email, Email: email, PasswordHash: "x"}
	require.NoError(t, db.SaveUser(context.Background(), u))
	return u
}

// AddMember creates a user and adds it to the workspace with role.
func AddMember(t testing.TB, db *database.Database, workspaceID uint, name string, role models.Role) *models.WorkspaceUser {
	t.Helper()
	u := NewUser(t, db, fmt.Sprintf("%s%d@example.com", name, seq.Add(1)))
	wu := &models.WorkspaceUser{
		WorkspaceID: workspaceID,
		UserID:      u.ID,
		Role:        role,
		DisplayName: name,
		IsActive:    true,
	}
	require.NoError(t, db.AddWorkspaceUser(context.Background(), wu))
	wu.User = u
	return wu
}
