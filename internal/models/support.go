package models

import (
	"time"

	"gorm.io/datatypes"
)

type TicketStatus string

const (
	TicketOpen            TicketStatus = "OPEN"
	TicketInProgress      TicketStatus = "IN_PROGRESS"
	TicketWaitingCustomer TicketStatus = "WAITING_CUSTOMER"
	TicketResolved        TicketStatus = "RESOLVED"
	TicketClosed          TicketStatus = "CLOSED"
)

type SenderType string

const (
	SenderGuest    SenderType = "GUEST"
	SenderCustomer SenderType = "CUSTOMER"
	SenderAgent    SenderType = "AGENT"
	SenderSystem   SenderType = "SYSTEM"
)

// GuestUser is an unauthenticated visitor identified by email or phone.
type GuestUser struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	Name         string `json:"name"`
	Email        string `gorm:"index" json:"email"`
	Phone        string `gorm:"index" json:"phone"`
	SessionToken string `gorm:"index" json:"-"`
	Timestamps
}

// SupportTicketCounter is the per-workspace running ticket number.
type SupportTicketCounter struct {
	WorkspaceID uint `gorm:"primaryKey;autoIncrement:false"`
	Last        int  `gorm:"not null;default:0"`
}

type SupportTicket struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	Number          int               `gorm:"not null" json:"number"`
	TicketNumber    string            `gorm:"not null;index" json:"ticketNumber"`
	Subject         string            `gorm:"not null" json:"subject" validate:"required,max=200"`
	Status          TicketStatus      `gorm:"type:varchar(20);not null;default:'OPEN'" json:"status" validate:"omitempty,oneof=OPEN IN_PROGRESS WAITING_CUSTOMER RESOLVED CLOSED"`
	Priority        Priority          `gorm:"type:varchar(16);not null;default:'MEDIUM'" json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	GuestUserID     *uint             `gorm:"index" json:"guestUserId"`
	WorkspaceUserID *uint             `gorm:"index" json:"workspaceUserId"`
	AssignedToID    *uint             `gorm:"index" json:"assignedToId"`
	LastMessageAt   *time.Time        `json:"lastMessageAt"`
	ClosedAt        *time.Time        `json:"closedAt"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	Timestamps

	GuestUser     *GuestUser       `gorm:"foreignKey:GuestUserID" json:"guestUser,omitempty"`
	WorkspaceUser *WorkspaceUser   `gorm:"foreignKey:WorkspaceUserID" json:"workspaceUser,omitempty"`
	AssignedTo    *WorkspaceUser   `gorm:"foreignKey:AssignedToID" json:"assignedTo,omitempty"`
	Messages      []SupportMessage `gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// IsGuest reports whether the ticket was opened by an unauthenticated visitor.
func (t *SupportTicket) IsGuest() bool {
	return t.GuestUserID != nil
}

type SupportMessage struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	TicketID    uint       `gorm:"not null;index" json:"ticketId"`
	SenderType  SenderType `gorm:"type:varchar(16);not null" json:"senderType"`
	GuestUserID *uint      `json:"guestUserId"`
	SenderID    *uint      `gorm:"index" json:"senderId"`
	Body        string     `gorm:"type:text;not null" json:"body"`
	IsInternal  bool       `gorm:"not null;default:false" json:"isInternal"`
	IsVisible   bool       `gorm:"not null;default:true" json:"isVisible"`
	IsEdited    bool       `gorm:"not null;default:false" json:"isEdited"`
	EditedAt    *time.Time `json:"editedAt"`
	ReadAt      *time.Time `json:"readAt"`
	CreatedAt   time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Sender *WorkspaceUser `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

// FromStaff reports whether the message was written on the workspace side.
func (m *SupportMessage) FromStaff() bool {
	return m.SenderType == SenderAgent || m.SenderType == SenderSystem
}
