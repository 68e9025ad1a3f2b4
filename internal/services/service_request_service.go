package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/models"
	"gorm.io/gorm"
)

const EntityServiceRequest = "SERVICE_REQUEST"

func NewServiceRequestService(deps Deps) *BaseService[models.ServiceRequest] {
	deps = deps.withDefaults()
	notifier := deps.Notifier
	return NewBaseService(deps, Module[models.ServiceRequest]{
		Name:       "service-requests",
		Entity:     "service request",
		EntityType: EntityServiceRequest,
		OwnerField: "workspaceUserId",
		Searchable: []string{"title", "description"},
		Include: map[string]any{
			"WorkspaceUser": true, "ServiceType": true, "Status": true,
			"AssignedTo": true, "Labels": true,
		},
		Relations: []RelationSpec{
			{Field: "workspaceUser", Relation: "WorkspaceUser", Mode: ConnectByID},
			{Field: "serviceType", Relation: "ServiceType", Mode: ConnectByID},
			{Field: "assignedTo", Relation: "AssignedTo", Mode: ConnectByID},
			{Field: "status", Relation: "Status", Mode: ConnectByID},
			{Field: "labels", Relation: "Labels", Mode: SetByIDs},
			{Field: "notes", Relation: "Notes", Mode: NestedCreate},
		},
		Status: &StatusSpec[models.ServiceRequest]{
			Field:   "StatusID",
			Include: map[string]any{"Status": true},
			Current: func(r *models.ServiceRequest) string {
				if r.Status == nil {
					return ""
				}
				return r.Status.Name
			},
			Resolve: resolveRequestStatus,
		},
		Stages: []Stage[models.ServiceRequest]{
			{Name: "default-status", Phase: BeforeCreate, Run: defaultRequestStatus},
			{Name: "status-note", Phase: WithinStatusChange, Run: requestStatusNote},
			{Name: "notify-customer", Phase: AfterStatusChange, Run: func(ctx context.Context, m *Mutation[models.ServiceRequest]) error {
				r := m.Entity
				channel := ChannelInApp
				if m.Status.SendSMS {
					channel = ChannelSMS
				}
				return notifier.Notify(ctx, Notification{
					WorkspaceID:     r.WorkspaceID,
					WorkspaceUserID: r.WorkspaceUserID,
					Channel:         channel,
					Title:           "Service request updated",
					Body:            fmt.Sprintf("%s is now %s", r.Title, m.Status.NewStatus),
					EntityType:      EntityServiceRequest,
					EntityID:        r.ID,
				})
			}},
		},
	})
}

func resolveRequestStatus(ctx context.Context, db *database.Database, auth *AuthContext, _ *models.ServiceRequest, in StatusInput) (any, string, error) {
	id := in.StatusID
	if id == 0 && in.Status != "" {
		n, err := strconv.ParseUint(in.Status, 10, 64)
		if err != nil {
			return nil, "", apperror.Validation(map[string][]string{"statusId": {"is required"}})
		}
		id = uint(n)
	}
	if id == 0 {
		return nil, "", apperror.Validation(map[string][]string{"statusId": {"is required"}})
	}
	var st models.RequestStatus
	err := db.DB().WithContext(ctx).Where("workspace_id = ? AND id = ?", auth.WorkspaceID, id).First(&st).Error
	if err != nil {
		return nil, "", apperror.FromDB(err, "request status")
	}
	return st.ID, st.Name, nil
}

// defaultRequestStatus picks the workspace default, or the first status by
// sort order, when none was given.
func defaultRequestStatus(ctx context.Context, m *Mutation[models.ServiceRequest]) error {
	r := m.Entity
	if r.StatusID != 0 {
		return nil
	}
	var st models.RequestStatus
	err := m.DB.DB().WithContext(ctx).
		Where("workspace_id = ?", r.WorkspaceID).
		Order("is_default DESC").Order("sort_order ASC").Order("id ASC").
		First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.Validation(map[string][]string{"statusId": {"is required"}})
	}
	if err != nil {
		return err
	}
	r.StatusID = st.ID
	return nil
}

func requestStatusNote(ctx context.Context, m *Mutation[models.ServiceRequest]) error {
	body := fmt.Sprintf("Status changed from %s to %s", m.Status.OldStatus, m.Status.NewStatus)
	if m.Status.Note != "" {
		body += ": " + m.Status.Note
	}
	note := &models.RequestNote{
		ServiceRequestID: m.Entity.ID,
		Body:             body,
		IsStatusChange:   true,
	}
	if wu := m.Auth.WorkspaceUserID(); wu != 0 {
		note.AuthorID = &wu
	}
	return apperror.FromDB(m.Tx.WithContext(ctx).Create(note).Error, "note")
}
