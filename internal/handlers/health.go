package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/pkg/logger"
	"go.uber.org/zap"
)

type HealthHandler struct {
	db    *database.Database
	redis *redis.Client
	log   *logger.Logger
}

// NewHealthHandler takes a nil rdb when Redis is not configured.
func NewHealthHandler(db *database.Database, rdb *redis.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, log: log.Named("health")}
}

func (h *HealthHandler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports 503 until every backing store answers a ping.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok"}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn("database not ready", zap.Error(err))
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.log.Warn("redis not ready", zap.Error(err))
			checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}
