package main

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/thereayou/bizdesk/internal/handlers"
	"github.com/thereayou/bizdesk/internal/middleware"
	"github.com/thereayou/bizdesk/pkg/auth"
	"github.com/thereayou/bizdesk/pkg/logger"
)

type routes struct {
	authn       middleware.Authenticator
	guests      middleware.GuestResolver
	store       sessions.Store
	permissions *auth.PermissionChecker
	origins     []string

	auth        *handlers.AuthHandler
	controllers []handlers.Router
	internal    *handlers.InternalChatHandler
	support     *handlers.SupportChatHandler
	socket      *handlers.WebSocketHandler
	health      *handlers.HealthHandler
}

func newRouter(rt routes, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log), middleware.CORS(rt.origins))

	rt.health.Register(r)
	APIEndpoints(r, rt)
	return r
}

func APIEndpoints(r *gin.Engine, rt routes) {
	api := r.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", rt.auth.Register)
		authGroup.POST("/login", rt.auth.Login)
		authGroup.POST("/logout", middleware.Auth(rt.authn), rt.auth.Logout)
		authGroup.GET("/me", middleware.Auth(rt.authn), rt.auth.Me)
	}

	api.GET("/socket_io",
		middleware.WSAuth(rt.authn),
		middleware.GuestSession(rt.store, rt.guests),
		rt.socket.HandleWebSocket)

	rt.support.RegisterPublic(api)

	member := api.Group("", middleware.Auth(rt.authn), middleware.RequireWorkspace())
	for _, c := range rt.controllers {
		c.Register(member, rt.permissions)
	}
	rt.internal.Register(member, rt.permissions)
	rt.support.Register(member, rt.permissions)
}
