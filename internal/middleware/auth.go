package middleware

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/services"
	"github.com/thereayou/bizdesk/pkg/auth"
)

const (
	AuthKey  = "auth"
	TokenKey = "token"

	WorkspaceHeader = "X-Workspace-ID"
)

// Authenticator resolves a bearer token to the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string, workspaceID uint) (*services.AuthContext, error)
}

// Auth requires a valid bearer token. The workspace comes from the
// X-Workspace-ID header, falling back to the one stored in the token.
func Auth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			AbortWithError(c, apperror.Unauthorized("missing or invalid token"))
			return
		}
		if !authenticate(c, authn, token) {
			return
		}
		c.Next()
	}
}

// WSAuth accepts the token from the query string as browsers cannot set
// headers on a websocket upgrade. A missing token is not an error: the
// socket handler falls back to the guest session.
func WSAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = auth.ExtractTokenFromHeader(c.Request)
		}
		if token == "" {
			c.Next()
			return
		}
		if !authenticate(c, authn, token) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, authn Authenticator, token string) bool {
	workspaceID, err := workspaceFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return false
	}
	ac, err := authn.Authenticate(c.Request.Context(), token, workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return false
	}
	c.Set(AuthKey, ac)
	c.Set(TokenKey, token)
	return true
}

func workspaceFrom(c *gin.Context) (uint, error) {
	raw := strings.TrimSpace(c.GetHeader(WorkspaceHeader))
	if raw == "" {
		raw = c.Query("workspaceId")
	}
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.BadRequest("invalid %s header", WorkspaceHeader)
	}
	return uint(id), nil
}

// GetAuth returns nil for anonymous requests.
func GetAuth(c *gin.Context) *services.AuthContext {
	v, ok := c.Get(AuthKey)
	if !ok {
		return nil
	}
	ac, _ := v.(*services.AuthContext)
	return ac
}

func GetToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}

// RequireWorkspace rejects callers without a membership in the selected
// workspace. Must run after Auth.
func RequireWorkspace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ac := GetAuth(c)
		if ac == nil || ac.User == nil {
			AbortWithError(c, apperror.Unauthorized("authentication required"))
			return
		}
		if ac.WorkspaceUser == nil {
			AbortWithError(c, apperror.Forbidden("select a workspace with the "+WorkspaceHeader+" header"))
			return
		}
		c.Next()
	}
}
