package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/handlers/dto"
	"github.com/thereayou/bizdesk/internal/middleware"
	"github.com/thereayou/bizdesk/internal/query"
	"github.com/thereayou/bizdesk/internal/services"
)

// GetRoomMessages pages the history of ?roomId, newest first.
func (h *InternalChatHandler) GetRoomMessages(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Query("roomId"), 10, 64)
	if err != nil || roomID == 0 {
		handleError(c, h.log, apperror.BadRequest("roomId is required"))
		return
	}
	page := atoiDefault(c.Query("page"), query.DefaultPage)
	limit := atoiDefault(c.Query("limit"), 50)

	messages, err := h.chat.ListMessages(c.Request.Context(), middleware.GetAuth(c), uint(roomID), page, limit)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *InternalChatHandler) SendMessage(c *gin.Context) {
	var req services.SendMessageInput
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	msg, err := h.chat.SendMessage(c.Request.Context(), middleware.GetAuth(c), req)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	created(c, "message sent", msg)
}

func (h *InternalChatHandler) EditMessage(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	var req dto.EditMessageRequest
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	msg, err := h.chat.EditMessage(c.Request.Context(), middleware.GetAuth(c), id, req.Body)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *InternalChatHandler) DeleteMessage(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	if err := h.chat.DeleteMessage(c.Request.Context(), middleware.GetAuth(c), id); err != nil {
		handleError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *InternalChatHandler) MarkAsRead(c *gin.Context) {
	roomID, err := parseID(c, "roomId")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	n, err := h.chat.MarkAsRead(c.Request.Context(), middleware.GetAuth(c), roomID)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

func (h *InternalChatHandler) UnreadCount(c *gin.Context) {
	wuID, err := parseID(c, "workspaceUserId")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	summary, err := h.chat.UnreadCount(c.Request.Context(), middleware.GetAuth(c), wuID)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
