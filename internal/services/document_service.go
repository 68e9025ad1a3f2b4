package services

import (
	"context"

	"github.com/thereayou/bizdesk/internal/models"
)

// NewDocumentService manages document metadata. File bytes live in
// external storage referenced by URL.
func NewDocumentService(deps Deps) *BaseService[models.Document] {
	return NewBaseService(deps, Module[models.Document]{
		Name:       "documents",
		Entity:     "document",
		EntityType: "DOCUMENT",
		OwnerField: "workspaceUserId",
		Searchable: []string{"name", "mimeType"},
		Relations: []RelationSpec{
			{Field: "workspaceUser", Relation: "WorkspaceUser", Mode: ConnectByID},
		},
		Stages: []Stage[models.Document]{
			{Name: "uploader", Phase: BeforeCreate, Run: func(_ context.Context, m *Mutation[models.Document]) error {
				if m.Entity.WorkspaceUserID == nil {
					if wu := m.Auth.WorkspaceUserID(); wu != 0 {
						m.Entity.WorkspaceUserID = &wu
					}
				}
				return nil
			}},
		},
	})
}
