package services

import (
	"context"
	"fmt"
	"time"

	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/models"
)

// NewTicketService exposes support tickets through the generic CRUD routes.
// Conversations go through SupportChatService.
func NewTicketService(deps Deps) *BaseService[models.SupportTicket] {
	return NewBaseService(deps, Module[models.SupportTicket]{
		Name:       "tickets",
		Entity:     "ticket",
		EntityType: "TICKET",
		OwnerField: "workspaceUserId",
		Searchable: []string{"subject", "ticketNumber"},
		Include:    map[string]any{"GuestUser": true, "WorkspaceUser": true, "AssignedTo": true},
		Relations: []RelationSpec{
			{Field: "workspaceUser", Relation: "WorkspaceUser", Mode: ConnectByID},
			{Field: "assignedTo", Relation: "AssignedTo", Mode: ConnectByID},
		},
		Status: enumStatus("Status", func(t *models.SupportTicket) models.TicketStatus { return t.Status },
			models.TicketOpen, models.TicketInProgress, models.TicketWaitingCustomer,
			models.TicketResolved, models.TicketClosed),
		Stages: []Stage[models.SupportTicket]{
			{Name: "defaults", Phase: BeforeCreate, Run: func(_ context.Context, m *Mutation[models.SupportTicket]) error {
				t := m.Entity
				t.Status = models.TicketOpen
				t.GuestUserID = nil
				t.ClosedAt = nil
				if t.WorkspaceUserID == nil {
					if wu := m.Auth.WorkspaceUserID(); wu != 0 {
						t.WorkspaceUserID = &wu
					}
				}
				return nil
			}},
			{Name: "number", Phase: WithinCreate, Run: func(ctx context.Context, m *Mutation[models.SupportTicket]) error {
				if err := assignTicketNumber(ctx, m.DB, m.Entity); err != nil {
					return err
				}
				return m.Tx.WithContext(ctx).Model(m.Entity).
					Updates(map[string]any{"number": m.Entity.Number, "ticket_number": m.Entity.TicketNumber}).Error
			}},
			{Name: "closed-at", Phase: BeforeStatusChange, Run: func(_ context.Context, m *Mutation[models.SupportTicket]) error {
				setClosedAt(m.Entity)
				m.Fields = append(m.Fields, "ClosedAt")
				return nil
			}},
		},
	})
}

// assignTicketNumber draws the next workspace ticket number. db must be
// bound to the creating transaction.
func assignTicketNumber(ctx context.Context, db *database.Database, t *models.SupportTicket) error {
	ws, err := db.GetWorkspace(ctx, t.WorkspaceID)
	if err != nil {
		return apperror.FromDB(err, "workspace")
	}
	n, err := db.NextTicketNumber(ctx, t.WorkspaceID)
	if err != nil {
		return apperror.FromDB(err, "ticket counter")
	}
	prefix := ws.TicketPrefix
	if prefix == "" {
		prefix = "TKT"
	}
	t.Number = n
	t.TicketNumber = fmt.Sprintf("%s-%06d", prefix, n)
	return nil
}

func setClosedAt(t *models.SupportTicket) {
	if t.Status == models.TicketClosed {
		if t.ClosedAt == nil {
			now := time.Now().UTC()
			t.ClosedAt = &now
		}
		return
	}
	t.ClosedAt = nil
}
