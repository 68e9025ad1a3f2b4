package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/models"
)

const (
	GuestSessionName = "bizdesk-guest"
	GuestKey         = "guest"

	guestIDValue    = "guest_id"
	guestTokenValue = "guest_token"

	guestSessionMaxAge = 30 * 24 * 60 * 60
)

// GuestResolver checks a guest session against the stored token.
type GuestResolver interface {
	ResolveGuest(ctx context.Context, guestID uint, token string) (*models.GuestUser, error)
}

// NewGuestStore returns the signed cookie store used for guest sessions.
func NewGuestStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   guestSessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// GuestSession attaches the guest behind a valid session cookie. Requests
// without one pass through untouched.
func GuestSession(store sessions.Store, resolver GuestResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, GuestSessionName)
		if err != nil {
			// A cookie signed with an old secret is treated as absent.
			c.Next()
			return
		}
		id, _ := session.Values[guestIDValue].(uint)
		token, _ := session.Values[guestTokenValue].(string)
		if id == 0 || token == "" {
			c.Next()
			return
		}
		guest, err := resolver.ResolveGuest(c.Request.Context(), id, token)
		if err == nil {
			c.Set(GuestKey, guest)
		}
		c.Next()
	}
}

// RequireGuest rejects requests without a resolved guest session.
func RequireGuest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetGuest(c) == nil {
			AbortWithError(c, apperror.Unauthorized("guest session required"))
			return
		}
		c.Next()
	}
}

func GetGuest(c *gin.Context) *models.GuestUser {
	v, ok := c.Get(GuestKey)
	if !ok {
		return nil
	}
	g, _ := v.(*models.GuestUser)
	return g
}

// SaveGuestSession writes the session cookie for guest.
func SaveGuestSession(c *gin.Context, store sessions.Store, guestID uint, token string) error {
	session, _ := store.Get(c.Request, GuestSessionName)
	session.Values[guestIDValue] = guestID
	session.Values[guestTokenValue] = token
	return session.Save(c.Request, c.Writer)
}
