package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are emitted as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Tenant is embedded by every workspace-scoped record.
type Tenant struct {
	WorkspaceID uint `gorm:"not null;index" json:"workspaceId"`
}

type Timestamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// All lists every model managed by AutoMigrate, parents first.
func All() []any {
	return []any{
		&Workspace{}, &User{}, &WorkspaceUser{},
		&PaymentCategory{}, &Payment{},
		&Cheque{}, &ChequeStatusHistory{},
		&Reminder{},
		&ServiceType{}, &RequestStatus{}, &Label{}, &ServiceRequest{}, &RequestNote{},
		&Invoice{}, &InvoiceItem{},
		&Document{},
		&ChatRoom{}, &ChatRoomMember{}, &ChatMessage{}, &ChatReadReceipt{},
		&GuestUser{}, &SupportTicketCounter{}, &SupportTicket{}, &SupportMessage{},
	}
}
