package services

import (
	"context"
	"time"

	"github.com/thereayou/bizdesk/internal/models"
)

func NewPaymentService(deps Deps) *BaseService[models.Payment] {
	return NewBaseService(deps, Module[models.Payment]{
		Name:       "payments",
		Entity:     "payment",
		EntityType: "PAYMENT",
		OwnerField: "workspaceUserId",
		Searchable: []string{"description"},
		Include:    map[string]any{"WorkspaceUser": true, "Category": true},
		Relations: []RelationSpec{
			{Field: "workspaceUser", Relation: "WorkspaceUser", Mode: ConnectByID},
			{Field: "category", Relation: "Category", Mode: ConnectByID},
		},
		Status: enumStatus("Status", func(p *models.Payment) models.PaymentStatus { return p.Status },
			models.PaymentPending, models.PaymentSuccess, models.PaymentFailed, models.PaymentRefunded),
		Stages: []Stage[models.Payment]{
			{Name: "paid-at", Phase: BeforeCreate, Run: paymentPaidAt},
			{Name: "refund-guard", Phase: BeforeStatusChange, Run: func(_ context.Context, m *Mutation[models.Payment]) error {
				return closedTransitions("payment", string(models.PaymentRefunded))(string(m.Previous.Status), string(m.Entity.Status))
			}},
			{Name: "paid-at", Phase: BeforeStatusChange, Run: func(ctx context.Context, m *Mutation[models.Payment]) error {
				if m.Entity.Status == models.PaymentSuccess && m.Entity.PaidAt == nil {
					now := time.Now().UTC()
					m.Entity.PaidAt = &now
					m.Fields = append(m.Fields, "PaidAt")
				}
				return nil
			}},
		},
	})
}

func paymentPaidAt(_ context.Context, m *Mutation[models.Payment]) error {
	p := m.Entity
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	if p.Status == models.PaymentSuccess && p.PaidAt == nil {
		now := time.Now().UTC()
		p.PaidAt = &now
	}
	return nil
}

func NewPaymentCategoryService(deps Deps) *BaseService[models.PaymentCategory] {
	return NewBaseService(deps, Module[models.PaymentCategory]{
		Name:       "payment-categories",
		Entity:     "payment category",
		Searchable: []string{"name", "description"},
	})
}
