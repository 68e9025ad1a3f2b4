package services

import (
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/events"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/pkg/logger"
)

// AuthContext identifies the caller and its tenant.
type AuthContext struct {
	User          *models.User
	WorkspaceID   uint
	WorkspaceUser *models.WorkspaceUser
	Role          models.Role
}

func (a *AuthContext) IsStaff() bool {
	return a != nil && a.Role.IsStaff()
}

func (a *AuthContext) IsAdmin() bool {
	return a != nil && (a.Role == models.RoleOwner || a.Role == models.RoleAdmin)
}

// WorkspaceUserID returns 0 when the caller has no membership.
func (a *AuthContext) WorkspaceUserID() uint {
	if a == nil || a.WorkspaceUser == nil {
		return 0
	}
	return a.WorkspaceUser.ID
}

func requireMember(a *AuthContext) error {
	if a == nil || a.User == nil {
		return apperror.Unauthorized("authentication required")
	}
	if a.WorkspaceID == 0 || a.WorkspaceUser == nil {
		return apperror.Forbidden("workspace membership required")
	}
	return nil
}

// Deps are the collaborators shared by every service.
type Deps struct {
	DB         *database.Database
	Dispatcher events.Dispatcher
	Publisher  events.Publisher
	Notifier   Notifier
	Hub        Broadcaster
	Logger     *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.Global()
	}
	if d.Dispatcher == nil {
		d.Dispatcher = events.NewInline(d.Logger)
	}
	if d.Publisher == nil {
		d.Publisher = events.NopPublisher{}
	}
	if d.Notifier == nil {
		d.Notifier = NewLogNotifier(d.Logger)
	}
	if d.Hub == nil {
		d.Hub = NopBroadcaster{}
	}
	return d
}
