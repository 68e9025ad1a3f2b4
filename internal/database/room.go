package database

import (
	"context"
	"time"

	"github.com/thereayou/bizdesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRoom inserts room together with its Members.
func (d *Database) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	return d.conn(ctx).Create(room).Error
}

func (d *Database) GetRoom(ctx context.Context, workspaceID, id uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := d.conn(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Members.WorkspaceUser.User").
		Where("workspace_id = ?", workspaceID).
		First(&room, id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (d *Database) FindRoomByPairKey(ctx context.Context, workspaceID uint, key string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := d.conn(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("workspace_id = ? AND pair_key = ?", workspaceID, key).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetMemberRooms lists the rooms workspaceUserID belongs to, most recently
// active first.
func (d *Database) GetMemberRooms(ctx context.Context, workspaceUserID uint) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := d.conn(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Members.WorkspaceUser.User").
		Where("id IN (?)", d.conn(ctx).Model(&models.ChatRoomMember{}).
			Select("room_id").
			Where("workspace_user_id = ?", workspaceUserID)).
		Order("COALESCE(last_message_at, created_at) DESC").
		Order("id DESC").
		Find(&rooms).Error
	return rooms, err
}

func (d *Database) UpdateRoom(ctx context.Context, room *models.ChatRoom, fields map[string]any) error {
	return d.conn(ctx).Model(&models.ChatRoom{ID: room.ID}).Omit(clause.Associations).Updates(fields).Error
}

func (d *Database) TouchRoom(ctx context.Context, roomID uint, at time.Time) error {
	return d.conn(ctx).Model(&models.ChatRoom{}).
		Where("id = ?", roomID).
		UpdateColumn("last_message_at", at).Error
}

func (d *Database) GetMembership(ctx context.Context, roomID, workspaceUserID uint) (*models.ChatRoomMember, error) {
	var m models.ChatRoomMember
	err := d.conn(ctx).
		Where("room_id = ? AND workspace_user_id = ?", roomID, workspaceUserID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (d *Database) GetRoomMembers(ctx context.Context, roomID uint) ([]models.ChatRoomMember, error) {
	var members []models.ChatRoomMember
	err := d.conn(ctx).
		Preload("WorkspaceUser.User").
		Where("room_id = ?", roomID).
		Order("id").
		Find(&members).Error
	return members, err
}

// AddRoomMember is a no-op when the workspace user is already a member.
func (d *Database) AddRoomMember(ctx context.Context, m *models.ChatRoomMember) error {
	return d.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "workspace_user_id"}},
			DoNothing: true,
		}).
		Create(m).Error
}

func (d *Database) UpdateRoomMember(ctx context.Context, m *models.ChatRoomMember, fields map[string]any) error {
	return d.conn(ctx).Model(&models.ChatRoomMember{ID: m.ID}).Omit(clause.Associations).Updates(fields).Error
}

// RemoveRoomMember deletes the membership and every read receipt it owns.
func (d *Database) RemoveRoomMember(ctx context.Context, memberID uint) error {
	return d.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("member_id = ?", memberID).Delete(&models.ChatReadReceipt{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ChatRoomMember{}, memberID).Error
	})
}

// DirectRoomsOf maps the other participant of each DIRECT room of
// workspaceUserID to that room's id.
func (d *Database) DirectRoomsOf(ctx context.Context, workspaceUserID uint) (map[uint]uint, error) {
	type pair struct {
		RoomID          uint
		WorkspaceUserID uint
	}
	var pairs []pair
	mine := d.conn(ctx).Model(&models.ChatRoomMember{}).
		Select("room_id").
		Where("workspace_user_id = ?", workspaceUserID)
	err := d.conn(ctx).
		Table("chat_room_members").
		Select("chat_room_members.room_id, chat_room_members.workspace_user_id").
		Joins("JOIN chat_rooms ON chat_rooms.id = chat_room_members.room_id").
		Where("chat_rooms.kind = ?", models.RoomDirect).
		Where("chat_room_members.room_id IN (?)", mine).
		Where("chat_room_members.workspace_user_id <> ?", workspaceUserID).
		Scan(&pairs).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]uint, len(pairs))
	for _, p := range pairs {
		out[p.WorkspaceUserID] = p.RoomID
	}
	return out, nil
}
