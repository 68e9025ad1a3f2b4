package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/handlers/dto"
	"github.com/thereayou/bizdesk/internal/middleware"
	"github.com/thereayou/bizdesk/internal/services"
	ws "github.com/thereayou/bizdesk/internal/websocket"
	"github.com/thereayou/bizdesk/pkg/logger"
	"go.uber.org/zap"
)

// WebSocketHandler upgrades /api/socket_io connections.
type WebSocketHandler struct {
	hub            *ws.Hub
	messageHandler *MessageHandler
	upgrader       websocket.Upgrader
	log            *logger.Logger
}

func NewWebSocketHandler(hub *ws.Hub, messageHandler *MessageHandler, allowedOrigins []string, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		messageHandler: messageHandler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
		},
		log: log.Named("socket"),
	}
}

// HandleWebSocket accepts workspace members (bearer token) and guests
// (session cookie). Members are subscribed to their personal room, staff
// also to the workspace staff room; tickets and chat rooms are joined by
// event.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	p := participant(c)
	var identity string
	var rooms []string
	switch {
	case p.Auth != nil:
		if p.Auth.WorkspaceUser == nil {
			middleware.AbortWithError(c, apperror.Forbidden("workspace membership required"))
			return
		}
		p.Guest = nil
		// Eviction from chat rooms matches on this identity.
		identity = services.WorkspaceUserKey(p.Auth.WorkspaceUserID())
		rooms = append(rooms, identity)
		if p.Auth.IsStaff() {
			rooms = append(rooms, services.WorkspaceStaffKey(p.Auth.WorkspaceID))
		}
	case p.Guest != nil:
		identity = fmt.Sprintf("guest:%d", p.Guest.ID)
	default:
		middleware.AbortWithError(c, apperror.Unauthorized("token or guest session required"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, identity, p)
	h.hub.Register(client)
	for _, room := range rooms {
		h.hub.JoinRoom(client, room)
	}

	hello := dto.ConnectedPayload{SocketID: client.ID.String(), Rooms: client.GetRooms()}
	if p.Auth != nil {
		hello.WorkspaceID, hello.WorkspaceUserID = p.Auth.WorkspaceID, p.Auth.WorkspaceUserID()
	} else {
		hello.WorkspaceID, hello.GuestID = p.Guest.WorkspaceID, p.Guest.ID
	}
	_ = client.SendMessage(EventConnected, hello)

	go client.WritePump()
	go client.ReadPump(h.messageHandler)
}
