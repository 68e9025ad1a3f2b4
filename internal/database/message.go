package database

import (
	"context"

	"github.com/thereayou/bizdesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveMessage stores message and bumps the room's last activity.
func (d *Database) SaveMessage(ctx context.Context, message *models.ChatMessage) error {
	return d.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatRoom{}).
			Where("id = ?", message.RoomID).
			UpdateColumn("last_message_at", message.CreatedAt).Error
	})
}

func (d *Database) GetMessage(ctx context.Context, id uint) (*models.ChatMessage, error) {
	var message models.ChatMessage
	if err := d.conn(ctx).Preload("Sender.User").First(&message, id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// UpdateMessage writes the named fields of message.
func (d *Database) UpdateMessage(ctx context.Context, message *models.ChatMessage, fields ...string) error {
	return d.conn(ctx).Model(message).Select(fields).Updates(message).Error
}

// GetRoomMessages returns one page of a room's messages, newest first.
func (d *Database) GetRoomMessages(ctx context.Context, roomID uint, offset, limit int) ([]models.ChatMessage, int64, error) {
	var (
		messages []models.ChatMessage
		total    int64
	)

	base := d.conn(ctx).Model(&models.ChatMessage{}).Where("room_id = ?", roomID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := d.conn(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Preload("Sender.User").
		Preload("ReplyTo").
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// GetReceipts maps message id to the set of member ids that read it.
func (d *Database) GetReceipts(ctx context.Context, messageIDs []uint) (map[uint]map[uint]bool, error) {
	out := make(map[uint]map[uint]bool, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	var receipts []models.ChatReadReceipt
	if err := d.conn(ctx).Where("message_id IN ?", messageIDs).Find(&receipts).Error; err != nil {
		return nil, err
	}
	for _, r := range receipts {
		if out[r.MessageID] == nil {
			out[r.MessageID] = map[uint]bool{}
		}
		out[r.MessageID][r.MemberID] = true
	}
	return out, nil
}

func (d *Database) unread(ctx context.Context) *gorm.DB {
	return d.conn(ctx).
		Table("chat_messages").
		Joins("JOIN chat_room_members ON chat_room_members.room_id = chat_messages.room_id").
		Where("chat_messages.sender_id <> chat_room_members.workspace_user_id").
		Where("chat_messages.is_visible = ?", true).
		Where("NOT EXISTS (SELECT 1 FROM chat_read_receipts WHERE chat_read_receipts.message_id = chat_messages.id AND chat_read_receipts.member_id = chat_room_members.id)")
}

// GetUnreadMessageIDs lists visible messages from others that member has
// not read yet.
func (d *Database) GetUnreadMessageIDs(ctx context.Context, member *models.ChatRoomMember) ([]uint, error) {
	var ids []uint
	err := d.unread(ctx).
		Where("chat_room_members.id = ?", member.ID).
		Order("chat_messages.id").
		Pluck("chat_messages.id", &ids).Error
	return ids, err
}

// SaveReceipts ignores receipts that already exist.
func (d *Database) SaveReceipts(ctx context.Context, receipts []models.ChatReadReceipt) error {
	if len(receipts) == 0 {
		return nil
	}
	return d.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "member_id"}},
			DoNothing: true,
		}).
		CreateInBatches(receipts, 200).Error
}

// CountUnread returns unread message counts per room for workspaceUserID.
func (d *Database) CountUnread(ctx context.Context, workspaceUserID uint) (map[uint]int64, error) {
	type row struct {
		RoomID uint
		Count  int64
	}
	var rows []row
	err := d.unread(ctx).
		Select("chat_messages.room_id AS room_id, COUNT(*) AS count").
		Where("chat_room_members.workspace_user_id = ?", workspaceUserID).
		Group("chat_messages.room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.RoomID] = r.Count
	}
	return out, nil
}

// GetLastMessages returns the newest message of each room.
func (d *Database) GetLastMessages(ctx context.Context, roomIDs []uint) (map[uint]models.ChatMessage, error) {
	out := make(map[uint]models.ChatMessage, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}
	latest := d.conn(ctx).Model(&models.ChatMessage{}).
		Select("MAX(id)").
		Where("room_id IN ?", roomIDs).
		Group("room_id")
	var messages []models.ChatMessage
	if err := d.conn(ctx).Preload("Sender.User").Where("id IN (?)", latest).Find(&messages).Error; err != nil {
		return nil, err
	}
	for _, m := range messages {
		out[m.RoomID] = m
	}
	return out, nil
}
