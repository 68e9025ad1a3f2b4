package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/handlers/dto"
	"github.com/thereayou/bizdesk/internal/services"
	"github.com/thereayou/bizdesk/internal/websocket"
	"github.com/thereayou/bizdesk/pkg/logger"
	"go.uber.org/zap"
)

// Client to server socket events.
const (
	EventSupportJoin          = "support-chat:join"
	EventSupportLeave         = "support-chat:leave"
	EventSupportSend          = "support-chat:message"
	EventSupportTyping        = "support-chat:typing"
	EventSupportMessageEdit   = "support-chat:message-edit"
	EventSupportMessageDelete = "support-chat:message-delete"
	EventSupportError         = "support-chat:error"
	EventSupportJoined        = "support-chat:joined"

	EventInternalJoin   = "internal-chat:join"
	EventInternalLeave  = "internal-chat:leave"
	EventInternalSend   = "internal-chat:message"
	EventInternalTyping = "internal-chat:typing"
	EventInternalError  = "internal-chat:error"
	EventInternalJoined = "internal-chat:joined"

	EventError     = "error"
	EventConnected = "connected"
)

const socketEventTimeout = 10 * time.Second

// MessageHandler dispatches events read from a socket. Writes go through
// the chat services, which broadcast the results themselves.
type MessageHandler struct {
	internal *services.InternalChatService
	support  *services.SupportChatService
	hub      *websocket.Hub
	log      *logger.Logger
}

func NewMessageHandler(internal *services.InternalChatService, support *services.SupportChatService, hub *websocket.Hub, log *logger.Logger) *MessageHandler {
	return &MessageHandler{internal: internal, support: support, hub: hub, log: log.Named("socket")}
}

func (h *MessageHandler) HandleMessage(client *websocket.Client, msg *websocket.Message) error {
	p, ok := client.Session.(services.Participant)
	if !ok {
		return websocket.ErrInvalidMessage
	}
	ctx, cancel := context.WithTimeout(context.Background(), socketEventTimeout)
	defer cancel()

	switch msg.Event {
	case EventSupportJoin:
		return h.supportJoin(ctx, client, p, msg)
	case EventSupportLeave:
		return h.supportLeave(client, msg)
	case EventSupportSend:
		return h.supportSend(ctx, client, p, msg)
	case EventSupportTyping:
		return h.supportTyping(client, p, msg)
	case EventSupportMessageEdit:
		return h.supportEdit(ctx, client, p, msg)
	case EventSupportMessageDelete:
		return h.supportDelete(ctx, client, p, msg)

	case EventInternalJoin:
		return h.internalJoin(ctx, client, p, msg)
	case EventInternalLeave:
		return h.internalLeave(client, msg)
	case EventInternalSend:
		return h.internalSend(ctx, client, p, msg)
	case EventInternalTyping:
		return h.internalTyping(client, p, msg)

	default:
		client.SendError(EventError, "unknown event", map[string]any{"event": msg.Event})
		return websocket.ErrUnknownEvent
	}
}

func decode(msg *websocket.Message, dst any) error {
	if len(msg.Data) == 0 {
		return websocket.ErrInvalidMessage
	}
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		return websocket.ErrInvalidMessage
	}
	return nil
}

// reject reports err to the client on the error event of its channel.
// Only client-facing messages are echoed; anything else is logged.
func (h *MessageHandler) reject(client *websocket.Client, event string, err error, extra map[string]any) error {
	text := "request failed"
	if appErr, ok := apperror.As(err); ok && appErr.Status < 500 {
		text = appErr.Message
	} else if errors.Is(err, websocket.ErrInvalidMessage) {
		text = err.Error()
	} else {
		h.log.Error("socket event failed", zap.String("client", client.ID.String()), zap.Error(err))
	}
	client.SendError(event, text, extra)
	return err
}

func (h *MessageHandler) supportJoin(ctx context.Context, client *websocket.Client, p services.Participant, msg *websocket.Message) error {
	var in dto.TicketPayload
	if err := decode(msg, &in); err != nil {
		return h.reject(client, EventSupportError, err, nil)
	}
	staff, err := h.support.CanJoin(ctx, p, in.TicketID)
	if err != nil {
		return h.reject(client, EventSupportError, err, map[string]any{"ticketId": in.TicketID})
	}
	h.hub.JoinRoom(client, services.TicketRoomKey(in.TicketID))
	if staff {
		h.hub.JoinRoom(client, services.TicketStaffKey(in.TicketID))
	}
	return client.SendMessage(EventSupportJoined, in)
}

func (h *MessageHandler) supportLeave(client *websocket.Client, msg *websocket.Message) error {
	var in dto.TicketPayload
	if err := decode(msg, &in); err != nil {
		return h.reject(client, EventSupportError, err, nil)
	}
	h.hub.LeaveRoom(client, services.TicketRoomKey(in.TicketID))
	h.hub.LeaveRoom(client, services.TicketStaffKey(in.TicketID))
	return nil
}

func (h *MessageHandler) supportSend(ctx context.Context, client *websocket.Client, p services.Participant, msg *websocket.Message) error {
	var in services.SupportMessageInput
	if err := decode(msg, &in); err != nil {
		return h.reject(client, EventSupportError, err, nil)
	}
	if _, err := h.support.SendMessage(ctx, p, in); err != nil {
		return h.reject(client, EventSupportError, err, map[string]any{"ticketId": in.TicketID, "tempId": in.TempID})
	}
	return nil
}

func (h *MessageHandler) supportTyping(client *websocket.Client, p services.Participant, msg *websocket.Message) error {
	var in dto.TypingPayload
	if err := decode(msg, &in); err != nil {
		return h.reject(client, EventSupportError, err, nil)
	}
	room := services.TicketRoomKey(in.TicketID)
	if !client.IsInRoom(room) {
		return h.reject(client, EventSupportError, apperror.Forbidden("join the ticket first"), map[string]any{"ticketId": in.TicketID})
	}
	return h.typing(client, room, EventSupportTyping, typingEvent(p, in))
}

func (h *MessageHandler) supportEdit(ctx context.Context, client *websocket.Client, p services.Participant, msg *websocket.Message) error {
	var in dto.MessageEditPayload
	if err := decode(msg, &in); err != nil {
		return h.reject(client, EventSupportError, err, nil)
	}
	if _, err := h.support.EditMessage(ctx, p, in.MessageID, in.Body); err != nil {
		return h.reject(client, EventSupportError, err, map[string]any{"messageId": in.MessageID})
	}
	return nil
}

func (h *MessageHandler) supportDelete(ctx context.Context, client *websocket.Client, p services.Participant, msg *websocket.Message) error {
	var in dto.MessageDeletePayload
	if err := decode(msg, &in); err != nil {
		return h.reject(client, EventSupportError, err, nil)
	}
	if err := h.support.DeleteMessage(ctx, p, in.MessageID); err != nil {
		return h.reject(client, EventSupportError, err, map[string]any{"messageId": in.MessageID})
	}
	return nil
}

func (h *MessageHandler) internalJoin(ctx context.Context, client *websocket.Client, p services.Participant, msg *websocket.Message) error {
	var in dto.RoomPayload
	if err := decode(msg, &in); err != nil {
		return h.reject(client, EventInternalError, err, nil)
	}
	if err := h.internal.CanJoin(ctx, p.Auth, in.RoomID); err != nil {
		return h.reject(client, EventInternalError, err, map[string]any{"roomId": in.RoomID})
	}
	h.hub.JoinRoom(client, services.InternalRoomKey(in.RoomID))
	return client.SendMessage(EventInternalJoined, in)
}

func (h *MessageHandler) internalLeave(client *websocket.Client, msg *websocket.Message) error {
	var in dto.RoomPayload
	if err := decode(msg, &in); err != nil {
		return h.reject(client, EventInternalError, err, nil)
	}
	h.hub.LeaveRoom(client, services.InternalRoomKey(in.RoomID))
	return nil
}

func (h *MessageHandler) internalSend(ctx context.Context, client *websocket.Client, p services.Participant, msg *websocket.Message) error {
	var in services.SendMessageInput
	if err := decode(msg, &in); err != nil {
		return h.reject(client, EventInternalError, err, nil)
	}
	if _, err := h.internal.SendMessage(ctx, p.Auth, in); err != nil {
		return h.reject(client, EventInternalError, err, map[string]any{"roomId": in.RoomID, "tempId": in.TempID})
	}
	return nil
}

func (h *MessageHandler) internalTyping(client *websocket.Client, p services.Participant, msg *websocket.Message) error {
	var in dto.TypingPayload
	if err := decode(msg, &in); err != nil {
		return h.reject(client, EventInternalError, err, nil)
	}
	room := services.InternalRoomKey(in.RoomID)
	if !client.IsInRoom(room) {
		return h.reject(client, EventInternalError, apperror.Forbidden("join the room first"), map[string]any{"roomId": in.RoomID})
	}
	return h.typing(client, room, EventInternalTyping, typingEvent(p, in))
}

// typing stays on this instance and skips the sender.
func (h *MessageHandler) typing(client *websocket.Client, room, event string, data dto.TypingEvent) error {
	payload, err := websocket.Encode(event, data)
	if err != nil {
		return err
	}
	h.hub.SendToRoomExcept(room, payload, client.ID)
	return nil
}

func typingEvent(p services.Participant, in dto.TypingPayload) dto.TypingEvent {
	ev := dto.TypingEvent{TicketID: in.TicketID, RoomID: in.RoomID, IsTyping: in.IsTyping}
	switch {
	case p.Guest != nil:
		ev.GuestID, ev.Name = p.Guest.ID, p.Guest.Name
	case p.Auth != nil:
		ev.WorkspaceUserID = p.Auth.WorkspaceUserID()
		if p.Auth.User != nil {
			ev.Name = p.Auth.User.Name
		}
	}
	return ev
}
