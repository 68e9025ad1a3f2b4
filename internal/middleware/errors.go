package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/apperror"
)

// ErrorBody renders err as {error, errors?}. Errors that are not
// *apperror.Error become a generic 500 so internals never leak.
func ErrorBody(err error) (int, gin.H) {
	appErr, ok := apperror.As(err)
	if !ok || appErr.Status >= http.StatusInternalServerError {
		return http.StatusInternalServerError, gin.H{"error": "internal server error"}
	}
	body := gin.H{"error": appErr.Message}
	if len(appErr.Errors) > 0 {
		body["errors"] = appErr.Errors
	}
	return appErr.Status, body
}

// AbortWithError writes err and stops the chain. The error is attached to
// the context so Logging can report it.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, body := ErrorBody(err)
	c.AbortWithStatusJSON(status, body)
}
