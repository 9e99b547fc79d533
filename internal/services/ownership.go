package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/models"
	"gorm.io/gorm"
)

// OwnershipGuard checks that the requesting user owns a resource before any
// read or mutation of it.
type OwnershipGuard struct {
	db *gorm.DB
}

func NewOwnershipGuard(db *gorm.DB) *OwnershipGuard {
	return &OwnershipGuard{db: db}
}

func (g *OwnershipGuard) VerifyProjectOwnership(ctx context.Context, userID, projectID string) (*models.Project, error) {
	var project models.Project
	if err := g.db.WithContext(ctx).First(&project, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Project", "")
		}
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project.UserID != userID {
		return nil, apperrors.Forbidden("You do not have access to this project")
	}
	return &project, nil
}

// VerifyFolderOwnership loads a folder and checks the owner of its project.
func (g *OwnershipGuard) VerifyFolderOwnership(ctx context.Context, userID, folderID string) (*models.Folder, error) {
	var folder models.Folder
	if err := g.db.WithContext(ctx).First(&folder, "id = ?", folderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Folder", "")
		}
		return nil, fmt.Errorf("load folder: %w", err)
	}

	var owners []string
	err := g.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", folder.ProjectID).
		Pluck("user_id", &owners).Error
	if err != nil {
		return nil, fmt.Errorf("load folder project: %w", err)
	}
	if len(owners) != 1 || owners[0] != userID {
		return nil, apperrors.Forbidden("You do not have access to this folder")
	}
	return &folder, nil
}

// projectFolder loads a folder that must belong to projectID.
func (g *OwnershipGuard) projectFolder(ctx context.Context, projectID, folderID string) (*models.Folder, error) {
	var folder models.Folder
	if err := g.db.WithContext(ctx).First(&folder, "id = ?", folderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Folder", "")
		}
		return nil, fmt.Errorf("load folder: %w", err)
	}
	if folder.ProjectID != projectID {
		return nil, apperrors.Forbidden("Folder does not belong to this project")
	}
	return &folder, nil
}
