package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/middleware"
	"github.com/thereayou/bizdesk/internal/services"
	"github.com/thereayou/bizdesk/pkg/logger"
)

type AuthHandler struct {
	auth *services.AuthService
	log  *logger.Logger
}

func NewAuthHandler(auth *services.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log.Named("auth")}
}

// Register creates the user and, when a workspace name is given, the
// workspace it owns.
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterInput
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	session, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginInput
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	session, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Logout blacklists the bearer token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.GetToken(c)); err != nil {
		handleError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	session, err := h.auth.Me(c.Request.Context(), middleware.GetAuth(c))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
