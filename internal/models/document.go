package models

import "gorm.io/datatypes"

// Document holds metadata for a file kept in external storage.
type Document struct {
	ID uint `gorm:"primaryKey" json:"id"`
	Tenant
	WorkspaceUserID *uint             `gorm:"index" json:"workspaceUserId"`
	EntityType      string            `gorm:"index" json:"entityType" validate:"omitempty,max=40"`
	EntityID        *uint             `gorm:"index" json:"entityId"`
	Name            string            `gorm:"not null" json:"name" validate:"required,max=255"`
	URL             string            `gorm:"not null" json:"url" validate:"required,url"`
	MimeType        string            `json:"mimeType"`
	Size            int64             `json:"size" validate:"gte=0"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	Timestamps

	WorkspaceUser *WorkspaceUser `gorm:"foreignKey:WorkspaceUserID" json:"workspaceUser,omitempty"`
}
