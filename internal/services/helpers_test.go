package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/events"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/internal/testutil"
	"github.com/thereayou/bizdesk/pkg/logger"
)

// recorder captures broadcasts and published notices.
type recorder struct {
	mu      sync.Mutex
	sent    []broadcast
	evicted []eviction
	notices []events.Notice
}

type eviction struct {
	Room     string
	Identity string
}

type broadcast struct {
	Room  string
	Event string
	Data  any
}

func (r *recorder) Broadcast(room, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, broadcast{Room: room, Event: event, Data: data})
}

func (r *recorder) Evict(room, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, eviction{Room: room, Identity: identity})
}

func (r *recorder) evictions() []eviction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eviction(nil), r.evicted...)
}

func (r *recorder) Publish(_ context.Context, n events.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

func (r *recorder) events(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.sent {
		if b.Room == room {
			out = append(out, b.Event)
		}
	}
	return out
}

type env struct {
	db   *database.Database
	fx   *testutil.Fixture
	rec  *recorder
	deps Deps
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDatabase(t)
	fx := testutil.Seed(t, db)
	rec := &recorder{}
	log := logger.NewNop()
	return &env{
		db:  db,
		fx:  fx,
		rec: rec,
		deps: Deps{
			DB:         db,
			Dispatcher: events.NewInline(log),
			Publisher:  rec,
			Hub:        rec,
			Logger:     log,
		},
	}
}

func (e *env) as(wu *models.WorkspaceUser) *AuthContext {
	return &AuthContext{
		User:          wu.User,
		WorkspaceID:   wu.WorkspaceID,
		WorkspaceUser: wu,
		Role:          wu.Role,
	}
}

func requireStatus(t *testing.T, err error, status int) *apperror.Error {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok, "expected *apperror.Error, got %T: %v", err, err)
	require.Equal(t, status, appErr.Status, appErr.Message)
	return appErr
}
