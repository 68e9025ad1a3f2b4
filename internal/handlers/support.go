package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/handlers/dto"
	"github.com/thereayou/bizdesk/internal/middleware"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/internal/services"
	"github.com/thereayou/bizdesk/pkg/auth"
	"github.com/thereayou/bizdesk/pkg/logger"
)

const moduleSupportChat = "support-chat"

// SupportChatHandler serves the support conversation to workspace members
// and, under /public, to guests identified by a session cookie.
type SupportChatHandler struct {
	chat    *services.SupportChatService
	store   sessions.Store
	limiter *middleware.RateLimiter
	log     *logger.Logger
}

func NewSupportChatHandler(chat *services.SupportChatService, store sessions.Store, limiter *middleware.RateLimiter, log *logger.Logger) *SupportChatHandler {
	return &SupportChatHandler{chat: chat, store: store, limiter: limiter, log: log.Named(moduleSupportChat)}
}

func (h *SupportChatHandler) Register(rg *gin.RouterGroup, pc *auth.PermissionChecker) {
	g := rg.Group("/" + moduleSupportChat)
	read := middleware.Permission(pc, moduleSupportChat, auth.Read)
	write := middleware.Permission(pc, moduleSupportChat, auth.Write)

	g.GET("/tickets", read, h.ListTickets)
	g.POST("/tickets", write, h.CreateTicket)
	g.GET("/tickets/:id", read, h.GetTicket)
	g.PATCH("/tickets/:id/assign", write, h.Assign)
	g.PATCH("/tickets/:id/status", write, h.UpdateStatus)
	g.PATCH("/tickets/:id/priority", write, h.UpdatePriority)

	g.GET("/messages", read, h.GetMessages)
	g.POST("/messages", write, h.SendMessage)
	g.PATCH("/messages/:id", write, h.EditMessage)
	// Deleting is soft and limited to the author.
	g.DELETE("/messages/:id", write, h.DeleteMessage)
	g.POST("/mark-as-read/:ticketId", write, h.MarkAsRead)
	g.GET("/unread-count", read, h.UnreadCount)
}

// RegisterPublic mounts the guest routes. rg must not require a bearer
// token.
func (h *SupportChatHandler) RegisterPublic(rg *gin.RouterGroup) {
	g := rg.Group("/"+moduleSupportChat+"/public", middleware.GuestSession(h.store, h.chat))

	g.POST("/tickets", h.limiter.Handler(), h.CreateGuestTicket)
	g.GET("/tickets", middleware.RequireGuest(), h.ListGuestTickets)
	g.GET("/tickets/:id", middleware.RequireGuest(), h.GetTicket)
	g.POST("/messages", h.limiter.Handler(), middleware.RequireGuest(), h.SendMessage)
	g.POST("/mark-as-read/:ticketId", middleware.RequireGuest(), h.MarkAsRead)
}

func participant(c *gin.Context) services.Participant {
	return services.Participant{Auth: middleware.GetAuth(c), Guest: middleware.GetGuest(c)}
}

func (h *SupportChatHandler) CreateTicket(c *gin.Context) {
	var req services.CreateTicketInput
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	ticket, err := h.chat.CreateTicket(c.Request.Context(), middleware.GetAuth(c), req)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	created(c, "ticket created", ticket)
}

// CreateGuestTicket opens a ticket for a visitor and hands back the guest
// session cookie that authorizes the follow-up calls.
func (h *SupportChatHandler) CreateGuestTicket(c *gin.Context) {
	var req services.GuestTicketInput
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	out, err := h.chat.CreateGuestTicket(c.Request.Context(), req)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	if err := middleware.SaveGuestSession(c, h.store, out.Guest.ID, out.SessionToken); err != nil {
		handleError(c, h.log, apperror.Internal(err))
		return
	}
	created(c, "ticket created", gin.H{
		"ticket":  out.Ticket,
		"guest":   out.Guest,
		"session": dto.GuestSessionResponse{TicketID: out.Ticket.ID, TicketNumber: out.Ticket.TicketNumber, GuestID: out.Guest.ID},
	})
}

func (h *SupportChatHandler) ListTickets(c *gin.Context) {
	f := services.TicketFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Search:   c.Query("search"),
		Page:     atoiDefault(c.Query("page"), 1),
		Limit:    atoiDefault(c.Query("limit"), 10),
	}
	if v := c.Query("assignedToId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			handleError(c, h.log, apperror.BadRequest("assignedToId must be an id"))
			return
		}
		assignee := uint(id)
		f.AssignedToID = &assignee
	}
	page, err := h.chat.ListTickets(c.Request.Context(), middleware.GetAuth(c), f)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *SupportChatHandler) ListGuestTickets(c *gin.Context) {
	tickets, err := h.chat.ListGuestTickets(c.Request.Context(), middleware.GetGuest(c))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tickets})
}

func (h *SupportChatHandler) GetTicket(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	ticket, err := h.chat.GetTicket(c.Request.Context(), participant(c), id)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// GetMessages returns the conversation of ?ticketId. Internal notes are
// only listed for staff.
func (h *SupportChatHandler) GetMessages(c *gin.Context) {
	id, err := strconv.ParseUint(c.Query("ticketId"), 10, 64)
	if err != nil || id == 0 {
		handleError(c, h.log, apperror.BadRequest("ticketId is required"))
		return
	}
	ticket, err := h.chat.GetTicket(c.Request.Context(), participant(c), uint(id))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ticket.Messages})
}

func (h *SupportChatHandler) SendMessage(c *gin.Context) {
	var req services.SupportMessageInput
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	msg, err := h.chat.SendMessage(c.Request.Context(), participant(c), req)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	created(c, "message sent", msg)
}

func (h *SupportChatHandler) EditMessage(c *gin.Context) {
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
	msg, err := h.chat.EditMessage(c.Request.Context(), participant(c), id, req.Body)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *SupportChatHandler) DeleteMessage(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	if err := h.chat.DeleteMessage(c.Request.Context(), participant(c), id); err != nil {
		handleError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SupportChatHandler) Assign(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	var req dto.AssignRequest
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	ticket, err := h.chat.Assign(c.Request.Context(), middleware.GetAuth(c), id, req.AssignedToID)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *SupportChatHandler) UpdateStatus(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	var req dto.TicketStatusRequest
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	ticket, err := h.chat.UpdateStatus(c.Request.Context(), middleware.GetAuth(c), id, models.TicketStatus(req.Status))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *SupportChatHandler) UpdatePriority(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	var req dto.TicketPriorityRequest
	if err := bindJSON(c, &req); err != nil {
		handleError(c, h.log, err)
		return
	}
	ticket, err := h.chat.UpdatePriority(c.Request.Context(), middleware.GetAuth(c), id, models.Priority(req.Priority))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *SupportChatHandler) MarkAsRead(c *gin.Context) {
	id, err := parseID(c, "ticketId")
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	n, err := h.chat.MarkRead(c.Request.Context(), participant(c), id)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

func (h *SupportChatHandler) UnreadCount(c *gin.Context) {
	n, err := h.chat.UnreadCount(c.Request.Context(), participant(c))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}
