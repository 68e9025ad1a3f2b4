package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/handlers/dto"
	"github.com/thereayou/bizdesk/internal/middleware"
	"github.com/thereayou/bizdesk/internal/services"
	"github.com/thereayou/bizdesk/pkg/auth"
	"github.com/thereayou/bizdesk/pkg/logger"
)

const moduleInternalChat = "internal-chat"

// InternalChatHandler serves rooms, messages and contacts of the internal
// chat. Routes are split over room.go, http_message.go and user.go.
type InternalChatHandler struct {
	chat *services.InternalChatService
	log  *logger.Logger
}

func NewInternalChatHandler(chat *services.InternalChatService, log *logger.Logger) *InternalChatHandler {
	return &InternalChatHandler{chat: chat, log: log.Named(moduleInternalChat)}
}

func (h *InternalChatHandler) Register(rg *gin.RouterGroup, pc *auth.PermissionChecker) {
	g := rg.Group("/"+moduleInternalChat, middleware.Permission(pc, moduleInternalChat))

	g.POST("/rooms", h.CreateRoom)
	g.GET("/rooms", h.GetMyRooms)
	g.GET("/rooms/:id", h.GetRoom)
	g.PATCH("/rooms/:id", h.UpdateRoom)
	g.POST("/rooms/:id/members", h.AddMembers)
	g.DELETE("/rooms/:id/members/:memberId", h.RemoveMember)
	g.POST("/rooms/:id/leave", h.LeaveRoom)

	g.GET("/messages", h.GetRoomMessages)
	g.POST("/messages", h.SendMessage)
	g.PATCH("/messages/:id", h.EditMessage)
	g.DELETE("/messages/:id", h.DeleteMessage)
	g.POST("/mark-as-read/:roomId", h.MarkAsRead)
	g.GET("/unread-count/:workspaceUserId", h.UnreadCount)

	g.GET("/contacts", h.GetContacts)
}

// CreateRoom handles ?type=direct|team|self. Direct and self rooms are
// find-or-create: 201 when this call created the room, 200 otherwise.
func (h *InternalChatHandler) CreateRoom(c *gin.Context) {
	var req services.CreateRoomInput
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	room, isNew, err := h.chat.CreateRoom(c.Request.Context(), middleware.GetAuth(c), c.DefaultQuery("type", services.RoomTypeDirect), req)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	if isNew {
		created(c, "room created", room)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "room exists", "data": room})
}

func (h *InternalChatHandler) GetMyRooms(c *gin.Context) {
	rooms, err := h.chat.ListRooms(c.Request.Context(), middleware.GetAuth(c))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rooms})
}

func (h *InternalChatHandler) GetRoom(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	room, err := h.chat.GetRoom(c.Request.Context(), middleware.GetAuth(c), id)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// UpdateRoom changes title or description of a team room.
func (h *InternalChatHandler) UpdateRoom(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	var req services.UpdateRoomInput
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	room, err := h.chat.UpdateRoom(c.Request.Context(), middleware.GetAuth(c), id, req)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *InternalChatHandler) AddMembers(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	var req dto.MembersRequest
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	room, err := h.chat.AddMembers(c.Request.Context(), middleware.GetAuth(c), id, req.MemberIDs)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *InternalChatHandler) RemoveMember(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	memberID, err := parseID(c, "memberId")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	if err := h.chat.RemoveMember(c.Request.Context(), middleware.GetAuth(c), id, memberID); err != nil {
		handleError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *InternalChatHandler) LeaveRoom(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	if err := h.chat.LeaveRoom(c.Request.Context(), middleware.GetAuth(c), id); err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left room"})
}
