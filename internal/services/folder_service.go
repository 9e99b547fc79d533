package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/logger"
	"github.com/restorix/backend/internal/metrics"
	"github.com/restorix/backend/internal/models"
	"github.com/restorix/backend/internal/storage"
	"gorm.io/gorm"
)

type FolderView struct {
	models.Folder
	PhotoCount int64 `json:"photoCount"`
}

type CreateFolderInput struct {
	Name     string
	RoomType *string
}

type UpdateFolderInput struct {
	Name         *string
	RoomType     *string
	DisplayOrder *int
}

type FolderService struct {
	db      *gorm.DB
	guard   *OwnershipGuard
	store   storage.Store
	metrics *metrics.Metrics
}

func NewFolderService(db *gorm.DB, store storage.Store, m *metrics.Metrics) *FolderService {
	return &FolderService{db: db, guard: NewOwnershipGuard(db), store: store, metrics: m}
}

// listFolderViews returns a project's folders in display order with photo counts.
func listFolderViews(ctx context.Context, db *gorm.DB, projectID string) ([]FolderView, error) {
	var folders []models.Folder
	if err := db.WithContext(ctx).Where("project_id = ?", projectID).Order("display_order ASC, created_at ASC").Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}

	var counts []struct {
		FolderID string
		N        int64
	}
	err := db.WithContext(ctx).Model(&models.Photo{}).
		Select("photos.folder_id AS folder_id, COUNT(*) AS n").
		Joins("JOIN folders ON folders.id = photos.folder_id").
		Where("folders.project_id = ?", projectID).
		Group("photos.folder_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count photos: %w", err)
	}
	byFolder := make(map[string]int64, len(counts))
	for _, c := range counts {
		byFolder[c.FolderID] = c.N
	}

	views := make([]FolderView, len(folders))
	for i, f := range folders {
		views[i] = FolderView{Folder: f, PhotoCount: byFolder[f.ID]}
	}
	return views, nil
}

func (s *FolderService) ListFolders(ctx context.Context, userID, projectID string) ([]FolderView, error) {
	if _, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return listFolderViews(ctx, s.db, projectID)
}

func (s *FolderService) CreateFolder(ctx context.Context, userID, projectID string, in CreateFolderInput) (*FolderView, error) {
	if _, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID); err != nil {
		return nil, err
	}

	var maxOrder sql.NullInt64
	err := s.db.WithContext(ctx).Model(&models.Folder{}).
		Where("project_id = ?", projectID).
		Select("MAX(display_order)").
		Row().Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("read display order: %w", err)
	}
	next := 0
	if maxOrder.Valid {
		next = int(maxOrder.Int64) + 1
	}

	folder := &models.Folder{
		ProjectID:    projectID,
		Name:         in.Name,
		RoomType:     in.RoomType,
		DisplayOrder: next,
	}
	if err := s.db.WithContext(ctx).Create(folder).Error; err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	return &FolderView{Folder: *folder}, nil
}

func (s *FolderService) GetFolder(ctx context.Context, userID, projectID, folderID string) (*FolderView, error) {
	if _, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID); err != nil {
		return nil, err
	}
	folder, err := s.guard.projectFolder(ctx, projectID, folderID)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Photo{}).Where("folder_id = ?", folderID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count photos: %w", err)
	}
	return &FolderView{Folder: *folder, PhotoCount: count}, nil
}

func (s *FolderService) UpdateFolder(ctx context.Context, userID, projectID, folderID string, in UpdateFolderInput) (*FolderView, error) {
	if _, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID); err != nil {
		return nil, err
	}
	folder, err := s.guard.projectFolder(ctx, projectID, folderID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.RoomType != nil {
		updates["room_type"] = *in.RoomType
	}
	if in.DisplayOrder != nil {
		updates["display_order"] = *in.DisplayOrder
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(folder).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update folder: %w", err)
		}
	}
	return s.GetFolder(ctx, userID, projectID, folderID)
}

func (s *FolderService) DeleteFolder(ctx context.Context, userID, projectID, folderID string) error {
	if _, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID); err != nil {
		return err
	}
	if _, err := s.guard.projectFolder(ctx, projectID, folderID); err != nil {
		return err
	}

	var photos []models.Photo
	if err := s.db.WithContext(ctx).Where("folder_id = ?", folderID).Find(&photos).Error; err != nil {
		return fmt.Errorf("load folder photos: %w", err)
	}
	if err := deletePhotoObjects(ctx, s.store, s.metrics, photos); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("folder_id = ?", folderID).Delete(&models.Photo{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", folderID).Delete(&models.Folder{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}

	logger.WithUser(userID).WithField("folder_id", folderID).Info("Folder deleted")
	return nil
}

// ReorderFolders sets each folder's displayOrder to its index in folderIDs.
// Every id must belong to the project; otherwise nothing is written.
func (s *FolderService) ReorderFolders(ctx context.Context, userID, projectID string, folderIDs []string) ([]FolderView, error) {
	if _, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(folderIDs))
	for _, id := range folderIDs {
		if _, dup := seen[id]; dup {
			return nil, apperrors.Validation("Duplicate folder id in order", map[string]string{"folderIds": id})
		}
		seen[id] = struct{}{}
	}

	if len(folderIDs) > 0 {
		var found int64
		err := s.db.WithContext(ctx).Model(&models.Folder{}).
			Where("project_id = ? AND id IN ?", projectID, folderIDs).
			Count(&found).Error
		if err != nil {
			return nil, fmt.Errorf("check folders: %w", err)
		}
		if found != int64(len(folderIDs)) {
			return nil, apperrors.NotFound("Folder", "")
		}
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Folder{}).Where("project_id = ?", projectID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count folders: %w", err)
	}
	if total != int64(len(folderIDs)) {
		return nil, apperrors.Validation("Folder order must list every folder in the project", map[string]interface{}{
			"expected": total,
			"received": len(folderIDs),
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range folderIDs {
			res := tx.Model(&models.Folder{}).
				Where("id = ? AND project_id = ?", id, projectID).
				Update("display_order", i)
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reorder folders: %w", err)
	}

	return listFolderViews(ctx, s.db, projectID)
}
