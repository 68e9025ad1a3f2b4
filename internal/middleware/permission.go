package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/pkg/auth"
)

// Permission gates routes of module by the caller's role. The action is
// taken from the HTTP method unless given explicitly.
func Permission(pc *auth.PermissionChecker, module string, action ...auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac := GetAuth(c)
		if ac == nil || ac.WorkspaceUser == nil {
			AbortWithError(c, apperror.Forbidden("workspace membership required"))
			return
		}
		act := actionFor(c.Request.Method)
		if len(action) > 0 {
			act = action[0]
		}
		if ac.User != nil && ac.User.IsSuperAdmin {
			c.Next()
			return
		}
		if !pc.Can(string(ac.Role), module, act) {
			AbortWithError(c, apperror.Forbidden("insufficient permissions for "+module+":"+string(act)))
			return
		}
		c.Next()
	}
}

func actionFor(method string) auth.Action {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return auth.Read
	case http.MethodDelete:
		return auth.Delete
	default:
		return auth.Write
	}
}
