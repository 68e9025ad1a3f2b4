package database

import (
	"context"
	"time"

	"github.com/thereayou/bizdesk/internal/models"
)

// DueReminders returns active pending reminders due at or before now that
// have not been notified yet, oldest first.
func (d *Database) DueReminders(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := d.conn(ctx).
		Where("is_active = ? AND status = ? AND due_date <= ? AND notified_at IS NULL", true, models.ReminderPending, now).
		Order("due_date, id").
		Limit(limit).
		Find(&reminders).Error
	return reminders, err
}

// ClaimReminder stamps NotifiedAt unless another sweeper got there first.
func (d *Database) ClaimReminder(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := d.conn(ctx).Model(&models.Reminder{}).
		Where("id = ? AND notified_at IS NULL", id).
		Update("notified_at", now)
	return res.RowsAffected == 1, res.Error
}
