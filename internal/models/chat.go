package models

import (
	"fmt"
	"time"
)

type RoomKind string

const (
	RoomDirect RoomKind = "DIRECT"
	RoomTeam   RoomKind = "TEAM"
	RoomSelf   RoomKind = "SELF"
)

type MemberRole string

const (
	MemberOwner  MemberRole = "OWNER"
	MemberAdmin  MemberRole = "ADMIN"
	MemberMember MemberRole = "MEMBER"
)

type ChatRoom struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	WorkspaceID uint     `gorm:"not null;index;uniqueIndex:ux_room_pair,priority:1" json:"workspaceId"`
	Kind        RoomKind `gorm:"type:varchar(8);not null" json:"kind"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	CreatedByID uint     `json:"createdById"`
	// PairKey is set for DIRECT and SELF rooms only and is unique per workspace.
	PairKey       *string    `gorm:"uniqueIndex:ux_room_pair,priority:2" json:"-"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	Timestamps

	Members  []ChatRoomMember `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	Messages []ChatMessage    `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
}

// DirectPairKey is order independent: (a,b) and (b,a) share one key.
func DirectPairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("direct:%d:%d", a, b)
}

func SelfPairKey(workspaceUserID uint) string {
	return fmt.Sprintf("self:%d", workspaceUserID)
}

// ChatRoomMember is the identity used for read tracking. Leaving a room
// deletes the row; rejoining creates a new one.
type ChatRoomMember struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	RoomID          uint       `gorm:"not null;uniqueIndex:ux_room_member,priority:1" json:"roomId"`
	WorkspaceUserID uint       `gorm:"not null;uniqueIndex:ux_room_member,priority:2;index" json:"workspaceUserId"`
	Role            MemberRole `gorm:"type:varchar(8);not null;default:'MEMBER'" json:"role"`
	JoinedAt        time.Time  `json:"joinedAt"`

	WorkspaceUser *WorkspaceUser    `gorm:"foreignKey:WorkspaceUserID" json:"workspaceUser,omitempty"`
	Receipts      []ChatReadReceipt `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE" json:"-"`
}

type ChatMessage struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	RoomID    uint       `gorm:"not null;index" json:"roomId"`
	SenderID  uint       `gorm:"not null;index" json:"senderId"`
	Body      string     `gorm:"type:text;not null" json:"body"`
	ReplyToID *uint      `gorm:"index" json:"replyToId"`
	IsEdited  bool       `gorm:"not null;default:false" json:"isEdited"`
	EditedAt  *time.Time `json:"editedAt"`
	IsVisible bool       `gorm:"not null;default:true" json:"isVisible"`
	CreatedAt time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`

	Sender   *WorkspaceUser    `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	ReplyTo  *ChatMessage      `gorm:"foreignKey:ReplyToID" json:"replyTo,omitempty"`
	Receipts []ChatReadReceipt `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"-"`
}

type ChatReadReceipt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"not null;uniqueIndex:ux_receipt,priority:1" json:"messageId"`
	MemberID  uint      `gorm:"not null;uniqueIndex:ux_receipt,priority:2;index" json:"memberId"`
	ReadAt    time.Time `json:"readAt"`
}
