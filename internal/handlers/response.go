package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/middleware"
	"github.com/thereayou/bizdesk/internal/services"
	"github.com/thereayou/bizdesk/pkg/logger"
	"go.uber.org/zap"
)

// handleError is the one place service errors become HTTP responses.
func handleError(c *gin.Context, log *logger.Logger, err error) {
	status, _ := middleware.ErrorBody(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("correlation_id", c.GetString(middleware.CorrelationKey)),
			zap.Error(err))
	}
	middleware.AbortWithError(c, err)
}

func parseID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.BadRequest("invalid %s", name)
	}
	return uint(id), nil
}

// bindJSON decodes the body into dst and checks its validate tags.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperror.BadRequest("invalid JSON body")
	}
	return services.Validate(dst)
}

func readBody(c *gin.Context) ([]byte, error) {
	body, err := c.GetRawData()
	if err != nil {
		return nil, apperror.BadRequest("cannot read request body")
	}
	return body, nil
}

func created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, gin.H{"message": message, "data": data})
}
