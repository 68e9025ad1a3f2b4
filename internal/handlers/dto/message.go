package dto

// Socket payloads, client to server.

type TicketPayload struct {
	TicketID uint `json:"ticketId"`
}

type RoomPayload struct {
	RoomID uint `json:"roomId"`
}

type TypingPayload struct {
	TicketID uint `json:"ticketId,omitempty"`
	RoomID   uint `json:"roomId,omitempty"`
	IsTyping bool `json:"isTyping"`
}

type MessageEditPayload struct {
	MessageID uint   `json:"messageId"`
	Body      string `json:"body"`
}

type MessageDeletePayload struct {
	MessageID uint `json:"messageId"`
}

// TypingEvent is what other room members receive.
type TypingEvent struct {
	TicketID        uint   `json:"ticketId,omitempty"`
	RoomID          uint   `json:"roomId,omitempty"`
	WorkspaceUserID uint   `json:"workspaceUserId,omitempty"`
	GuestID         uint   `json:"guestId,omitempty"`
	Name            string `json:"name"`
	IsTyping        bool   `json:"isTyping"`
}

// HTTP bodies.

type EditMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

type MembersRequest struct {
	MemberIDs []uint `json:"memberIds" validate:"required,min=1"`
}

type AssignRequest struct {
	AssignedToID *uint `json:"assignedToId"`
}

type TicketStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=OPEN IN_PROGRESS WAITING_CUSTOMER RESOLVED CLOSED"`
}

type TicketPriorityRequest struct {
	Priority string `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH URGENT"`
}
