package models

import "time"

type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleAdmin   Role = "ADMIN"
	RoleSupport Role = "SUPPORT"
	RoleUser    Role = "USER"
)

// IsStaff reports whether the role may act on behalf of the workspace.
func (r Role) IsStaff() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleSupport
}

type Workspace struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"not null" json:"name" validate:"required,max=120"`
	Slug         string `gorm:"uniqueIndex;not null" json:"slug" validate:"required,max=60"`
	TicketPrefix string `gorm:"default:'TKT'" json:"ticketPrefix"`
	Timestamps
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `gorm:"not null" json:"-"`
	IsSuperAdmin bool      `json:"isSuperAdmin"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
	Timestamps
}

type WorkspaceUser struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	WorkspaceID uint   `gorm:"not null;uniqueIndex:ux_workspace_user,priority:1" json:"workspaceId"`
	UserID      uint   `gorm:"not null;uniqueIndex:ux_workspace_user,priority:2" json:"userId"`
	Role        Role   `gorm:"type:varchar(16);not null;default:'USER'" json:"role"`
	DisplayName string `json:"displayName"`
	IsActive    bool   `gorm:"default:true" json:"isActive"`
	Timestamps

	User      *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Workspace *Workspace `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
}

// Name returns the display name, falling back to the user's name.
func (wu *WorkspaceUser) Name() string {
	if wu.DisplayName != "" {
		return wu.DisplayName
	}
	if wu.User != nil {
		return wu.User.Name
	}
	return ""
}
