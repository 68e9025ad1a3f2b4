package services

import (
	"context"

	"github.com/thereayou/bizdesk/internal/models"
)

func NewReminderService(deps Deps) *BaseService[models.Reminder] {
	return NewBaseService(deps, Module[models.Reminder]{
		Name:       "reminders",
		Entity:     "reminder",
		EntityType: "REMINDER",
		OwnerField: "workspaceUserId",
		Searchable: []string{"title", "description"},
		Relations: []RelationSpec{
			{Field: "workspaceUser", Relation: "WorkspaceUser", Mode: ConnectByID},
		},
		Status: enumStatus("Status", func(r *models.Reminder) models.ReminderStatus { return r.Status },
			models.ReminderPending, models.ReminderDone, models.ReminderCancelled),
		Stages: []Stage[models.Reminder]{
			{Name: "defaults", Phase: BeforeCreate, Run: func(_ context.Context, m *Mutation[models.Reminder]) error {
				r := m.Entity
				r.Status = models.ReminderPending
				r.IsActive = true
				r.NotifiedAt = nil
				if r.WorkspaceUserID == nil {
					if wu := m.Auth.WorkspaceUserID(); wu != 0 {
						r.WorkspaceUserID = &wu
					}
				}
				return nil
			}},
			{Name: "activity", Phase: BeforeStatusChange, Run: func(_ context.Context, m *Mutation[models.Reminder]) error {
				r := m.Entity
				r.IsActive = r.Status == models.ReminderPending
				m.Fields = append(m.Fields, "IsActive")
				if r.IsActive {
					r.NotifiedAt = nil
					m.Fields = append(m.Fields, "NotifiedAt")
				}
				return nil
			}},
		},
	})
}
