package services

import (
	"context"

	"github.com/thereayou/bizdesk/internal/models"
)

func NewServiceTypeService(deps Deps) *BaseService[models.ServiceType] {
	return NewBaseService(deps, Module[models.ServiceType]{
		Name:       "service-types",
		Entity:     "service type",
		Searchable: []string{"name", "description"},
		Stages: []Stage[models.ServiceType]{
			{Name: "active", Phase: BeforeCreate, Run: func(_ context.Context, m *Mutation[models.ServiceType]) error {
				m.Entity.IsActive = true
				return nil
			}},
		},
	})
}

func NewLabelService(deps Deps) *BaseService[models.Label] {
	return NewBaseService(deps, Module[models.Label]{
		Name:       "labels",
		Entity:     "label",
		Searchable: []string{"name"},
	})
}

func NewRequestStatusService(deps Deps) *BaseService[models.RequestStatus] {
	single := func(ctx context.Context, m *Mutation[models.RequestStatus]) error {
		st := m.Entity
		if !st.IsDefault {
			return nil
		}
		return m.Tx.WithContext(ctx).Model(&models.RequestStatus{}).
			Where("workspace_id = ? AND id <> ? AND is_default = ?", st.WorkspaceID, st.ID, true).
			Update("is_default", false).Error
	}
	return NewBaseService(deps, Module[models.RequestStatus]{
		Name:       "request-statuses",
		Entity:     "request status",
		Searchable: []string{"name"},
		Stages: []Stage[models.RequestStatus]{
			{Name: "single-default", Phase: WithinCreate, Run: single},
			{Name: "single-default", Phase: WithinUpdate, Run: single},
		},
	})
}
