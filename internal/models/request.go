package models

import (
	"github.com/shopspring/decimal"
)

type ServiceType struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	Name        string          `gorm:"not null" json:"name" validate:"required,max=100"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"basePrice" validate:"gte=0"`
	IsActive    bool            `gorm:"not null;default:true" json:"isActive"`
	Timestamps
}

// RequestStatus is a workspace-defined step of the service request workflow.
type RequestStatus struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	Name      string `gorm:"not null" json:"name" validate:"required,max=60"`
	Color     string `json:"color" validate:"omitempty,hexcolor"`
	IsDefault bool   `json:"isDefault"`
	IsFinal   bool   `json:"isFinal"`
	SortOrder int    `json:"sortOrder"`
	Timestamps
}

type Label struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	Name  string `gorm:"not null" json:"name" validate:"required,max=40"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
	Timestamps
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

type ServiceRequest struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	WorkspaceUserID uint     `gorm:"not null;index" json:"workspaceUserId" validate:"required"`
	ServiceTypeID   *uint    `gorm:"index" json:"serviceTypeId"`
	StatusID        uint     `gorm:"not null;index" json:"statusId"`
	AssignedToID    *uint    `gorm:"index" json:"assignedToId"`
	Title           string   `gorm:"not null" json:"title" validate:"required,max=200"`
	Description     string   `json:"description"`
	Priority        Priority `gorm:"type:varchar(16);not null;default:'MEDIUM'" json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Timestamps

	WorkspaceUser *WorkspaceUser `gorm:"foreignKey:WorkspaceUserID" json:"workspaceUser,omitempty"`
	ServiceType   *ServiceType   `gorm:"foreignKey:ServiceTypeID" json:"serviceType,omitempty"`
	Status        *RequestStatus `gorm:"foreignKey:StatusID" json:"status,omitempty"`
	AssignedTo    *WorkspaceUser `gorm:"foreignKey:AssignedToID" json:"assignedTo,omitempty"`
	Labels        []Label        `gorm:"many2many:service_request_labels" json:"labels,omitempty"`
	Notes         []RequestNote  `gorm:"foreignKey:ServiceRequestID;constraint:OnDelete:CASCADE" json:"notes,omitempty"`
}

type RequestNote struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	ServiceRequestID uint   `gorm:"not null;index" json:"serviceRequestId"`
	AuthorID         *uint  `json:"authorId"`
	Body             string `gorm:"not null" json:"body" validate:"required"`
	IsStatusChange   bool   `json:"isStatusChange"`
	Timestamps
}
