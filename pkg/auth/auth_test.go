package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, exp, err := m.Generate(42, 7)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, uint(7), claims.WorkspaceID)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	token, _, err := NewJWTManager("one", time.Hour).Generate(1, 0)
	require.NoError(t, err)

	_, err = NewJWTManager("two", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", -time.Minute)
	token, _, err := m.Generate(1, 0)
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := ExtractTokenFromHeader(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer abc")
	token, err := ExtractTokenFromHeader(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromHeader(r)
	assert.Error(t, err)
}

func TestMemoryBlacklist(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBlacklist()

	require.NoError(t, b.Revoke(ctx, "live", time.Hour))
	require.NoError(t, b.Revoke(ctx, "gone", time.Nanosecond))
	time.Sleep(time.Millisecond)

	revoked, err := b.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = b.IsRevoked(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = b.IsRevoked(ctx, "never")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestPermissionChecker(t *testing.T) {
	pc := NewPermissionChecker(DefaultRoles())

	assert.True(t, pc.Can("OWNER", "payments", Delete))
	assert.True(t, pc.Can("admin", "cheques", Admin))
	assert.True(t, pc.Can("SUPPORT", "tickets", Delete))
	assert.False(t, pc.Can("SUPPORT", "payments", Delete))
	assert.True(t, pc.Can("USER", "payments", Read))
	assert.False(t, pc.Can("USER", "payments", Delete))
	assert.False(t, pc.Can("GUEST", "payments", Read))
}
