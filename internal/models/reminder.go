package models

import "time"

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "PENDING"
	ReminderDone      ReminderStatus = "DONE"
	ReminderCancelled ReminderStatus = "CANCELLED"
)

// Reminder is attached to any record through EntityType/EntityID.
type Reminder struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	WorkspaceUserID *uint          `gorm:"index" json:"workspaceUserId"`
	EntityType      string         `gorm:"index:ix_reminder_entity,priority:1;not null" json:"entityType" validate:"required,max=40"`
	EntityID        uint           `gorm:"index:ix_reminder_entity,priority:2;not null" json:"entityId" validate:"required"`
	Title           string         `gorm:"not null" json:"title" validate:"required,max=200"`
	Description     string         `json:"description"`
	DueDate         time.Time      `gorm:"index" json:"dueDate" validate:"required"`
	Status          ReminderStatus `gorm:"type:varchar(16);not null;default:'PENDING'" json:"status" validate:"omitempty,oneof=PENDING DONE CANCELLED"`
	IsActive        bool           `gorm:"not null;default:true" json:"isActive"`
	NotifySMS       bool           `json:"notifySms"`
	NotifiedAt      *time.Time     `json:"notifiedAt"`
	Timestamps

	WorkspaceUser *WorkspaceUser `gorm:"foreignKey:WorkspaceUserID" json:"workspaceUser,omitempty"`
}
