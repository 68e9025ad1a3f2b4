package services

import (
	"context"
	"fmt"

	"github.com/thereayou/bizdesk/internal/events"
)

// Socket events emitted by the chat services.
const (
	EventInternalMessage        = "internal-chat:message"
	EventInternalMessageEdited  = "internal-chat:message-edited"
	EventInternalMessageDeleted = "internal-chat:message-deleted"
	EventInternalRead           = "internal-chat:read"
	EventInternalMembers        = "internal-chat:members"
	EventInternalRoom           = "internal-chat:room"

	EventSupportMessage        = "support-chat:message"
	EventSupportMessageEdited  = "support-chat:message-edited"
	EventSupportMessageDeleted = "support-chat:message-deleted"
	EventSupportTicket         = "support-chat:ticket"
	EventSupportRead           = "support-chat:read"
)

// Broadcaster delivers an event to every socket subscribed to room.
type Broadcaster interface {
	Broadcast(room, event string, data any)
	// Evict unsubscribes every socket opened by identity from room.
	Evict(room, identity string)
}

type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(string, string, any) {}

func (NopBroadcaster) Evict(string, string) {}

func InternalRoomKey(roomID uint) string {
	return fmt.Sprintf("internal-room:%d", roomID)
}

// TicketRoomKey carries the public conversation of a ticket.
func TicketRoomKey(ticketID uint) string {
	return fmt.Sprintf("support-ticket:%d", ticketID)
}

// TicketStaffKey additionally carries internal notes.
func TicketStaffKey(ticketID uint) string {
	return fmt.Sprintf("support-ticket-staff:%d", ticketID)
}

func WorkspaceUserKey(workspaceUserID uint) string {
	return fmt.Sprintf("workspace-user:%d", workspaceUserID)
}

func WorkspaceStaffKey(workspaceID uint) string {
	return fmt.Sprintf("workspace-staff:%d", workspaceID)
}

// emit hands a broadcast to the dispatcher so it runs after the caller's
// write committed. Tasks keyed by the same room run in dispatch order.
func emit(ctx context.Context, deps Deps, module, room, event string, id uint, data any) {
	deps.Dispatcher.Dispatch(ctx, events.Task{
		Module:   module,
		Phase:    "broadcast",
		Stage:    event,
		EntityID: id,
		Key:      room,
		Run: func(context.Context) error {
			deps.Hub.Broadcast(room, event, data)
			return nil
		},
	})
}

// evict drops the sockets of a former member from room once the membership
// removal committed.
func evict(ctx context.Context, deps Deps, module, room string, workspaceUserID uint) {
	deps.Dispatcher.Dispatch(ctx, events.Task{
		Module:   module,
		Phase:    "broadcast",
		Stage:    "evict",
		EntityID: workspaceUserID,
		Key:      room,
		Run: func(context.Context) error {
			deps.Hub.Evict(room, WorkspaceUserKey(workspaceUserID))
			return nil
		},
	})
}
