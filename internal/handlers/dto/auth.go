package dto

// ConnectedPayload is sent to a socket right after the upgrade.
type ConnectedPayload struct {
	SocketID        string   `json:"socketId"`
	WorkspaceID     uint     `json:"workspaceId,omitempty"`
	WorkspaceUserID uint     `json:"workspaceUserId,omitempty"`
	GuestID         uint     `json:"guestId,omitempty"`
	Rooms           []string `json:"rooms"`
}

// GuestSessionResponse is returned when a guest opens a ticket. The
// session itself travels in the cookie.
type GuestSessionResponse struct {
	TicketID     uint   `json:"ticketId"`
	TicketNumber string `json:"ticketNumber"`
	GuestID      uint   `json:"guestId"`
}
