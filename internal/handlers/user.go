package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/middleware"
)

// GetContacts lists the workspace users the caller can message, each
// with the id of the direct room they share, if any.
func (h *InternalChatHandler) GetContacts(c *gin.Context) {
	contacts, err := h.chat.ListContacts(c.Request.Context(), middleware.GetAuth(c))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": contacts})
}
