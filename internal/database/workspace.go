package database

import (
	"context"

	"github.com/thereayou/bizdesk/internal/models"
	"gorm.io/gorm"
)

// CreateWorkspace stores ws and makes ownerID its OWNER.
func (d *Database) CreateWorkspace(ctx context.Context, ws *models.Workspace, ownerID uint) (*models.WorkspaceUser, error) {
	var owner models.WorkspaceUser
	err := d.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ws).Error; err != nil {
			return err
		}
		owner = models.WorkspaceUser{
			WorkspaceID: ws.ID,
			UserID:      ownerID,
			Role:        models.RoleOwner,
			IsActive:    true,
		}
		return tx.Create(&owner).Error
	})
	if err != nil {
		return nil, err
	}
	return &owner, nil
}

func (d *Database) GetWorkspace(ctx context.Context, id uint) (*models.Workspace, error) {
	var ws models.Workspace
	if err := d.conn(ctx).First(&ws, id).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

func (d *Database) AddWorkspaceUser(ctx context.Context, wu *models.WorkspaceUser) error {
	return d.conn(ctx).Create(wu).Error
}

// GetWorkspaceUser resolves the membership of userID in workspaceID.
func (d *Database) GetWorkspaceUser(ctx context.Context, workspaceID, userID uint) (*models.WorkspaceUser, error) {
	var wu models.WorkspaceUser
	err := d.conn(ctx).
		Preload("User").
		Where("workspace_id = ? AND user_id = ? AND is_active = ?", workspaceID, userID, true).
		First(&wu).Error
	if err != nil {
		return nil, err
	}
	return &wu, nil
}

func (d *Database) GetWorkspaceUserByID(ctx context.Context, workspaceID, id uint) (*models.WorkspaceUser, error) {
	var wu models.WorkspaceUser
	err := d.conn(ctx).
		Preload("User").
		Where("workspace_id = ? AND id = ?", workspaceID, id).
		First(&wu).Error
	if err != nil {
		return nil, err
	}
	return &wu, nil
}

// DefaultWorkspaceUser returns the oldest active membership of userID.
func (d *Database) DefaultWorkspaceUser(ctx context.Context, userID uint) (*models.WorkspaceUser, error) {
	var wu models.WorkspaceUser
	err := d.conn(ctx).
		Preload("User").
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id").
		First(&wu).Error
	if err != nil {
		return nil, err
	}
	return &wu, nil
}

func (d *Database) ListWorkspaceUsers(ctx context.Context, workspaceID uint) ([]models.WorkspaceUser, error) {
	var users []models.WorkspaceUser
	err := d.conn(ctx).
		Preload("User").
		Where("workspace_id = ? AND is_active = ?", workspaceID, true).
		Order("id").
		Find(&users).Error
	return users, err
}

// CountWorkspaceUsers counts active members of workspaceID among ids.
func (d *Database) CountWorkspaceUsers(ctx context.Context, workspaceID uint, ids []uint) (int64, error) {
	var n int64
	err := d.conn(ctx).Model(&models.WorkspaceUser{}).
		Where("workspace_id = ? AND is_active = ? AND id IN ?", workspaceID, true, ids).
		Count(&n).Error
	return n, err
}
