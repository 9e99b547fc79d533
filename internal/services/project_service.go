package services

import (
	"context"
	"fmt"
	"time"

	"github.com/restorix/backend/internal/logger"
	"github.com/restorix/backend/internal/metrics"
	"github.com/restorix/backend/internal/models"
	"github.com/restorix/backend/internal/storage"
	"gorm.io/gorm"
)

type CreateProjectInput struct {
	Name        string
	Description *string
}

// UpdateProjectInput changes only the non-nil fields.
type UpdateProjectInput struct {
	Name        *string
	Description *string
}

// AnalysisSummary is the latest job as shown in project listings.
type AnalysisSummary struct {
	ID             string                `json:"id"`
	Status         models.AnalysisStatus `json:"status"`
	CompletedAt    *time.Time            `json:"completedAt"`
	ResultsSummary models.JSONB          `json:"resultsSummary"`
	SheetURL       *string               `json:"sheetUrl"`
	PdfURL         *string               `json:"pdfUrl"`
}

// AnalysisDetail is the latest job as shown on a single project.
type AnalysisDetail struct {
	AnalysisSummary
	TriggeredAt  *time.Time `json:"triggeredAt"`
	StartedAt    *time.Time `json:"startedAt"`
	ErrorMessage *string    `json:"errorMessage"`
}

type ProjectSummary struct {
	models.Project
	FolderCount    int64            `json:"folderCount"`
	PhotoCount     int64            `json:"photoCount"`
	LatestAnalysis *AnalysisSummary `json:"latestAnalysis"`
}

type ProjectDetail struct {
	models.Project
	Folders        []FolderView    `json:"folders"`
	LatestAnalysis *AnalysisDetail `json:"latestAnalysis"`
}

type ProjectService struct {
	db      *gorm.DB
	guard   *OwnershipGuard
	store   storage.Store
	metrics *metrics.Metrics
}

func NewProjectService(db *gorm.DB, store storage.Store, m *metrics.Metrics) *ProjectService {
	return &ProjectService{db: db, guard: NewOwnershipGuard(db), store: store, metrics: m}
}

func (s *ProjectService) CreateProject(ctx context.Context, userID string, in CreateProjectInput) (*models.Project, error) {
	project := &models.Project{
		UserID:      userID,
		Name:        in.Name,
		Description: in.Description,
		Status:      models.ProjectStatusDraft,
	}
	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}

func (s *ProjectService) ListProjects(ctx context.Context, userID string) ([]ProjectSummary, error) {
	var projects []models.Project
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if len(projects) == 0 {
		return []ProjectSummary{}, nil
	}

	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}

	folderCounts, err := s.countBy(ctx, s.db.Model(&models.Folder{}).
		Select("project_id AS id, COUNT(*) AS n").
		Where("project_id IN ?", ids).
		Group("project_id"))
	if err != nil {
		return nil, fmt.Errorf("count folders: %w", err)
	}

	photoCounts, err := s.countBy(ctx, s.db.Table("photos").
		Select("folders.project_id AS id, COUNT(photos.id) AS n").
		Joins("JOIN folders ON folders.id = photos.folder_id").
		Where("folders.project_id IN ?", ids).
		Group("folders.project_id"))
	if err != nil {
		return nil, fmt.Errorf("count photos: %w", err)
	}

	var jobs []models.AnalysisJob
	if err := s.db.WithContext(ctx).Where("project_id IN ?", ids).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("load analysis jobs: %w", err)
	}
	latest := make(map[string]*models.AnalysisJob, len(projects))
	for i := range jobs {
		if _, seen := latest[jobs[i].ProjectID]; !seen {
			latest[jobs[i].ProjectID] = &jobs[i]
		}
	}

	out := make([]ProjectSummary, len(projects))
	for i, p := range projects {
		out[i] = ProjectSummary{
			Project:     p,
			FolderCount: folderCounts[p.ID],
			PhotoCount:  photoCounts[p.ID],
		}
		if job := latest[p.ID]; job != nil {
			summary := summarizeJob(job)
			out[i].LatestAnalysis = &summary
		}
	}
	return out, nil
}

func (s *ProjectService) countBy(ctx context.Context, q *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		ID string
		N  int64
	}
	if err := q.WithContext(ctx).Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.ID] = r.N
	}
	return counts, nil
}

func (s *ProjectService) GetProject(ctx context.Context, userID, projectID string) (*ProjectDetail, error) {
	project, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	folders, err := listFolderViews(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}

	detail := &ProjectDetail{Project: *project, Folders: folders}

	job, err := latestProjectJob(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	if job != nil {
		detail.LatestAnalysis = &AnalysisDetail{
			AnalysisSummary: summarizeJob(job),
			TriggeredAt:     job.TriggeredAt,
			StartedAt:       job.StartedAt,
			ErrorMessage:    job.ErrorMessage,
		}
	}
	return detail, nil
}

func (s *ProjectService) UpdateProject(ctx context.Context, userID, projectID string, in UpdateProjectInput) (*models.Project, error) {
	project, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = *in.Name
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(project).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update project: %w", err)
		}
	}

	if err := s.db.WithContext(ctx).First(project, "id = ?", projectID).Error; err != nil {
		return nil, fmt.Errorf("reload project: %w", err)
	}
	return project, nil
}

// DeleteProject removes every stored photo object, then the project with its
// folders, photos and analysis history.
func (s *ProjectService) DeleteProject(ctx context.Context, userID, projectID string) error {
	if _, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID); err != nil {
		return err
	}

	var photos []models.Photo
	err := s.db.WithContext(ctx).
		Joins("JOIN folders ON folders.id = photos.folder_id").
		Where("folders.project_id = ?", projectID).
		Find(&photos).Error
	if err != nil {
		return fmt.Errorf("load project photos: %w", err)
	}

	if err := deletePhotoObjects(ctx, s.store, s.metrics, photos); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folderIDs := tx.Model(&models.Folder{}).Select("id").Where("project_id = ?", projectID)
		if err := tx.Where("folder_id IN (?)", folderIDs).Delete(&models.Photo{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Folder{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.AnalysisJob{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", projectID).Delete(&models.Project{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	logger.WithUser(userID).WithField("project_id", projectID).Info("Project deleted")
	return nil
}

func summarizeJob(job *models.AnalysisJob) AnalysisSummary {
	return AnalysisSummary{
		ID:             job.ID,
		Status:         job.Status,
		CompletedAt:    job.CompletedAt,
		ResultsSummary: job.ResultsSummary,
		SheetURL:       job.SheetURL,
		PdfURL:         job.PdfURL,
	}
}

// deletePhotoObjects removes the original and thumbnail of every photo.
func deletePhotoObjects(ctx context.Context, store storage.Store, m *metrics.Metrics, photos []models.Photo) error {
	if len(photos) == 0 {
		return nil
	}
	paths := make([]string, 0, len(photos)*2)
	for i := range photos {
		paths = append(paths, photos[i].ObjectPaths()...)
	}
	if err := store.Delete(ctx, paths...); err != nil {
		m.IncStorageError("delete")
		return fmt.Errorf("delete photo objects: %w", err)
	}
	return nil
}
