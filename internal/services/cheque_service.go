package services

import (
	"context"
	"fmt"
	"time"

	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/models"
	"gorm.io/datatypes"
)

const EntityCheque = "CHEQUE"

func NewChequeService(deps Deps) *BaseService[models.Cheque] {
	return NewBaseService(deps, Module[models.Cheque]{
		Name:       "cheques",
		Entity:     "cheque",
		EntityType: EntityCheque,
		OwnerField: "workspaceUserId",
		Searchable: []string{"serial", "bankName", "accountHolder", "description"},
		Include:    map[string]any{"WorkspaceUser": true, "Payment": true},
		Relations: []RelationSpec{
			{Field: "workspaceUser", Relation: "WorkspaceUser", Mode: ConnectByID},
		},
		Status: enumStatus("Status", func(c *models.Cheque) models.ChequeStatus { return c.Status },
			models.ChequeCreated, models.ChequeDeposited, models.ChequeCleared,
			models.ChequeBounced, models.ChequeReturned, models.ChequeCancelled),
		Stages: []Stage[models.Cheque]{
			{Name: "initial-status", Phase: BeforeCreate, Run: chequeDefaults},
			{Name: "transition-guard", Phase: BeforeStatusChange, Run: chequeTransition},
			{Name: "status-history", Phase: WithinStatusChange, Run: chequeHistory},
			{Name: "clear", Phase: WithinStatusChange, Run: clearCheque},
			{Name: "close-reminders", Phase: WithinStatusChange, Run: closeChequeReminders},
			{Name: "due-reminder", Phase: AfterCreate, Run: chequeReminder},
		},
	})
}

func chequeDefaults(_ context.Context, m *Mutation[models.Cheque]) error {
	c := m.Entity
	c.Status = models.ChequeCreated
	if c.Direction == "" {
		c.Direction = models.ChequeReceived
	}
	if c.IssueDate.IsZero() {
		c.IssueDate = time.Now().UTC()
	}
	return nil
}

func chequeTransition(_ context.Context, m *Mutation[models.Cheque]) error {
	from, to := m.Previous.Status, m.Entity.Status
	if !from.CanTransition(to) {
		return apperror.BadRequest("cannot change cheque status from %s to %s", from, to)
	}
	return nil
}

func chequeHistory(ctx context.Context, m *Mutation[models.Cheque]) error {
	entry := &models.ChequeStatusHistory{
		ChequeID:   m.Entity.ID,
		FromStatus: m.Previous.Status,
		ToStatus:   m.Entity.Status,
		Note:       m.Status.Note,
		Metadata:   datatypes.JSONMap(m.Status.Metadata),
	}
	if wu := m.Auth.WorkspaceUserID(); wu != 0 {
		entry.ChangedByID = &wu
	}
	return apperror.FromDB(m.Tx.WithContext(ctx).Create(entry).Error, "cheque history")
}

// clearCheque books the payment of a cleared cheque and completes its
// pending reminders.
func clearCheque(ctx context.Context, m *Mutation[models.Cheque]) error {
	c := m.Entity
	if c.Status != models.ChequeCleared {
		return nil
	}
	tx := m.Tx.WithContext(ctx)

	kind := models.PaymentReceive
	if c.Direction == models.ChequeIssued {
		kind = models.PaymentPay
	}
	now := time.Now().UTC()
	chequeID := c.ID
	payment := &models.Payment{
		Tenant:          c.Tenant,
		WorkspaceUserID: c.WorkspaceUserID,
		ChequeID:        &chequeID,
		Amount:          c.Amount,
		Method:          models.MethodCheque,
		Type:            kind,
		Status:          models.PaymentSuccess,
		Description:     fmt.Sprintf("Cheque %s (%s)", c.Serial, c.BankName),
		PaidAt:          &now,
	}
	if err := tx.Create(payment).Error; err != nil {
		return apperror.FromDB(err, "payment")
	}
	if err := tx.Model(&models.Cheque{}).Where("id = ?", c.ID).Update("payment_id", payment.ID).Error; err != nil {
		return apperror.FromDB(err, "cheque")
	}
	c.PaymentID = &payment.ID

	return tx.Model(&models.Reminder{}).
		Where("entity_type = ? AND entity_id = ? AND status = ?", EntityCheque, c.ID, models.ReminderPending).
		Updates(map[string]any{"is_active": false, "status": models.ReminderDone}).Error
}

// closeChequeReminders cancels the reminders of a cheque that will never
// clear.
func closeChequeReminders(ctx context.Context, m *Mutation[models.Cheque]) error {
	switch m.Entity.Status {
	case models.ChequeCancelled, models.ChequeReturned:
	default:
		return nil
	}
	return m.Tx.WithContext(ctx).Model(&models.Reminder{}).
		Where("entity_type = ? AND entity_id = ? AND status = ?", EntityCheque, m.Entity.ID, models.ReminderPending).
		Updates(map[string]any{"is_active": false, "status": models.ReminderCancelled}).Error
}

func chequeReminder(ctx context.Context, m *Mutation[models.Cheque]) error {
	c := m.Entity
	owner := c.WorkspaceUserID
	reminder := &models.Reminder{
		Tenant:          c.Tenant,
		WorkspaceUserID: &owner,
		EntityType:      EntityCheque,
		EntityID:        c.ID,
		Title:           fmt.Sprintf("Cheque %s is due", c.Serial),
		Description:     fmt.Sprintf("%s cheque of %s at %s", c.Direction, c.Amount.StringFixed(2), c.BankName),
		DueDate:         c.DueDate,
		Status:          models.ReminderPending,
		IsActive:        true,
	}
	return m.DB.DB().WithContext(ctx).Create(reminder).Error
}
