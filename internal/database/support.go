package database

import (
	"context"
	"errors"
	"time"

	"github.com/thereayou/bizdesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindGuest matches a guest of the workspace by email, then by phone.
func (d *Database) FindGuest(ctx context.Context, workspaceID uint, email, phone string) (*models.GuestUser, error) {
	var guest models.GuestUser
	if email != "" {
		err := d.conn(ctx).Where("workspace_id = ? AND email = ?", workspaceID, email).Order("id").First(&guest).Error
		if err == nil {
			return &guest, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if phone != "" {
		err := d.conn(ctx).Where("workspace_id = ? AND phone = ?", workspaceID, phone).Order("id").First(&guest).Error
		if err == nil {
			return &guest, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (d *Database) SaveGuest(ctx context.Context, guest *models.GuestUser) error {
	return d.conn(ctx).Save(guest).Error
}

func (d *Database) GetGuest(ctx context.Context, id uint) (*models.GuestUser, error) {
	var guest models.GuestUser
	if err := d.conn(ctx).First(&guest, id).Error; err != nil {
		return nil, err
	}
	return &guest, nil
}

// NextTicketNumber increments the workspace counter. Call it inside a
// transaction so the counter row stays locked until the ticket is stored.
func (d *Database) NextTicketNumber(ctx context.Context, workspaceID uint) (int, error) {
	var counter models.SupportTicketCounter
	lock := func() error {
		return d.conn(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("workspace_id = ?", workspaceID).
			First(&counter).Error
	}

	err := lock()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seed := models.SupportTicketCounter{WorkspaceID: workspaceID}
		err = d.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error
		if err == nil {
			err = lock()
		}
	}
	if err != nil {
		return 0, err
	}

	counter.Last++
	err = d.conn(ctx).Model(&models.SupportTicketCounter{}).
		Where("workspace_id = ?", workspaceID).
		UpdateColumn("last", counter.Last).Error
	if err != nil {
		return 0, err
	}
	return counter.Last, nil
}

func (d *Database) CreateTicket(ctx context.Context, ticket *models.SupportTicket) error {
	return d.conn(ctx).Create(ticket).Error
}

func (d *Database) GetTicket(ctx context.Context, workspaceID, id uint) (*models.SupportTicket, error) {
	var ticket models.SupportTicket
	err := d.conn(ctx).
		Preload("GuestUser").
		Preload("WorkspaceUser.User").
		Preload("AssignedTo.User").
		Where("workspace_id = ?", workspaceID).
		First(&ticket, id).Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// UpdateTicket writes fields by id only. Preloaded relations on ticket are
// ignored, so a nil assigned_to_id is stored as NULL.
func (d *Database) UpdateTicket(ctx context.Context, ticket *models.SupportTicket, fields map[string]any) error {
	return d.conn(ctx).
		Model(&models.SupportTicket{ID: ticket.ID}).
		Omit(clause.Associations).
		Updates(fields).Error
}

// SaveSupportMessage stores message and bumps the ticket's last activity.
func (d *Database) SaveSupportMessage(ctx context.Context, message *models.SupportMessage) error {
	return d.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return tx.Model(&models.SupportTicket{}).
			Where("id = ?", message.TicketID).
			UpdateColumn("last_message_at", message.CreatedAt).Error
	})
}

func (d *Database) GetSupportMessage(ctx context.Context, id uint) (*models.SupportMessage, error) {
	var message models.SupportMessage
	if err := d.conn(ctx).Preload("Sender.User").First(&message, id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (d *Database) UpdateSupportMessage(ctx context.Context, message *models.SupportMessage, fields ...string) error {
	return d.conn(ctx).Model(message).Select(fields).Updates(message).Error
}

// GetTicketMessages returns the conversation oldest first.
func (d *Database) GetTicketMessages(ctx context.Context, ticketID uint, includeInternal bool) ([]models.SupportMessage, error) {
	var messages []models.SupportMessage
	q := d.conn(ctx).Preload("Sender.User").Where("ticket_id = ?", ticketID)
	if !includeInternal {
		q = q.Where("is_internal = ?", false)
	}
	err := q.Order("created_at").Order("id").Find(&messages).Error
	return messages, err
}

func staffSenders() []models.SenderType {
	return []models.SenderType{models.SenderAgent, models.SenderSystem}
}

// MarkTicketRead stamps ReadAt on unread messages written by the other side.
func (d *Database) MarkTicketRead(ctx context.Context, ticketID uint, readerIsStaff bool) (int64, error) {
	q := d.conn(ctx).Model(&models.SupportMessage{}).
		Where("ticket_id = ? AND read_at IS NULL AND is_visible = ?", ticketID, true)
	if readerIsStaff {
		q = q.Where("sender_type NOT IN ?", staffSenders())
	} else {
		q = q.Where("sender_type IN ? AND is_internal = ?", staffSenders(), false)
	}
	res := q.UpdateColumn("read_at", time.Now())
	return res.RowsAffected, res.Error
}

// CountUnreadSupport counts unread messages across the tickets selected by
// tickets, from the reader's opposite side.
func (d *Database) CountUnreadSupport(ctx context.Context, tickets *gorm.DB, readerIsStaff bool) (int64, error) {
	q := d.conn(ctx).Model(&models.SupportMessage{}).
		Where("ticket_id IN (?)", tickets.Select("id")).
		Where("read_at IS NULL AND is_visible = ?", true)
	if readerIsStaff {
		q = q.Where("sender_type NOT IN ?", staffSenders())
	} else {
		q = q.Where("sender_type IN ? AND is_internal = ?", staffSenders(), false)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// TicketsQuery starts a ticket query scoped to the workspace.
func (d *Database) TicketsQuery(ctx context.Context, workspaceID uint) *gorm.DB {
	return d.conn(ctx).Model(&models.SupportTicket{}).Where("workspace_id = ?", workspaceID)
}

func (d *Database) ListGuestTickets(ctx context.Context, workspaceID, guestID uint) ([]models.SupportTicket, error) {
	var tickets []models.SupportTicket
	err := d.TicketsQuery(ctx, workspaceID).
		Where("guest_user_id = ?", guestID).
		Order("COALESCE(last_message_at, created_at) DESC").
		Find(&tickets).Error
	return tickets, err
}
