package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/models"
)

func NewInvoiceService(deps Deps) *BaseService[models.Invoice] {
	return NewBaseService(deps, Module[models.Invoice]{
		Name:       "invoices",
		Entity:     "invoice",
		EntityType: "INVOICE",
		OwnerField: "workspaceUserId",
		Searchable: []string{"number", "notes"},
		Include:    map[string]any{"WorkspaceUser": true, "Items": true},
		Relations: []RelationSpec{
			{Field: "workspaceUser", Relation: "WorkspaceUser", Mode: ConnectByID},
			{Field: "items", Relation: "Items", Mode: NestedCreate},
		},
		Status: enumStatus("Status", func(i *models.Invoice) models.InvoiceStatus { return i.Status },
			models.InvoiceDraft, models.InvoiceIssued, models.InvoicePaid, models.InvoiceCancelled),
		Stages: []Stage[models.Invoice]{
			{Name: "totals", Phase: BeforeCreate, Run: func(_ context.Context, m *Mutation[models.Invoice]) error {
				m.Entity.Status = models.InvoiceDraft
				m.Entity.Total = invoiceTotal(m.Entity.Items)
				return nil
			}},
			{Name: "totals", Phase: BeforeUpdate, Run: invoiceUpdateTotals},
			{Name: "number", Phase: WithinCreate, Run: invoiceNumber},
			{Name: "transition-guard", Phase: BeforeStatusChange, Run: func(_ context.Context, m *Mutation[models.Invoice]) error {
				check := closedTransitions("invoice", string(models.InvoicePaid), string(models.InvoiceCancelled))
				return check(string(m.Previous.Status), string(m.Entity.Status))
			}},
			{Name: "issue-date", Phase: BeforeStatusChange, Run: func(_ context.Context, m *Mutation[models.Invoice]) error {
				if m.Entity.Status == models.InvoiceIssued && m.Entity.IssueDate == nil {
					now := time.Now().UTC()
					m.Entity.IssueDate = &now
					m.Fields = append(m.Fields, "IssueDate")
				}
				return nil
			}},
			{Name: "record-payment", Phase: WithinStatusChange, Run: invoicePayment},
		},
	})
}

// invoiceTotal sets each item total and returns the sum.
func invoiceTotal(items []models.InvoiceItem) decimal.Decimal {
	total := decimal.Zero
	for i := range items {
		qty := items[i].Quantity
		if qty == 0 {
			qty = 1
			items[i].Quantity = qty
		}
		items[i].Total = items[i].UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
		total = total.Add(items[i].Total)
	}
	return total
}

func invoiceUpdateTotals(ctx context.Context, m *Mutation[models.Invoice]) error {
	inv := m.Entity
	items := inv.Items
	if items == nil {
		if err := m.DB.DB().WithContext(ctx).Where("invoice_id = ?", inv.ID).Find(&items).Error; err != nil {
			return err
		}
		inv.Total = invoiceTotal(items)
	} else {
		inv.Total = invoiceTotal(inv.Items)
	}
	m.Fields = append(m.Fields, "Total")
	return nil
}

func invoiceNumber(ctx context.Context, m *Mutation[models.Invoice]) error {
	inv := m.Entity
	if inv.Number != "" {
		return nil
	}
	inv.Number = fmt.Sprintf("INV-%06d", inv.ID)
	return m.Tx.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", inv.ID).Update("number", inv.Number).Error
}

// invoicePayment books the payment of an invoice marked as paid.
func invoicePayment(ctx context.Context, m *Mutation[models.Invoice]) error {
	inv := m.Entity
	if inv.Status != models.InvoicePaid || inv.Total.IsZero() {
		return nil
	}
	method := models.MethodTransfer
	if v, ok := m.Status.Metadata["method"].(string); ok && v != "" {
		method = models.PaymentMethod(v)
	}
	now := time.Now().UTC()
	invoiceID := inv.ID
	payment := &models.Payment{
		Tenant:          inv.Tenant,
		WorkspaceUserID: inv.WorkspaceUserID,
		InvoiceID:       &invoiceID,
		Amount:          inv.Total,
		Method:          method,
		Type:            models.PaymentReceive,
		Status:          models.PaymentSuccess,
		Description:     "Invoice " + inv.Number,
		PaidAt:          &now,
	}
	if err := Validate(payment); err != nil {
		return err
	}
	return apperror.FromDB(m.Tx.WithContext(ctx).Create(payment).Error, "payment")
}
