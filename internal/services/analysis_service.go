package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/logger"
	"github.com/restorix/backend/internal/metrics"
	"github.com/restorix/backend/internal/models"
	"github.com/restorix/backend/internal/signature"
	"github.com/restorix/backend/internal/storage"
	"github.com/restorix/backend/internal/workflow"
	"gorm.io/gorm"
)

const (
	// analysisURLTTL covers the longest expected workflow run.
	analysisURLTTL = 7 * 24 * time.Hour
	// secondsPerPhoto is the rough analysis cost used for estimatedDuration.
	secondsPerPhoto = 10
	defaultFailure  = "Analysis failed"
)

// Dispatcher starts the external analysis workflow.
type Dispatcher interface {
	Trigger(ctx context.Context, payload *workflow.TriggerPayload) error
}

type AnalysisConfig struct {
	CallbackURL    string
	CallbackSecret string
}

type TriggerResult struct {
	Success           bool                  `json:"success"`
	JobID             string                `json:"jobId"`
	Status            models.AnalysisStatus `json:"status"`
	Message           string                `json:"message"`
	EstimatedDuration int                   `json:"estimatedDuration"`
}

type AnalysisService struct {
	db         *gorm.DB
	guard      *OwnershipGuard
	store      storage.Store
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	cfg        AnalysisConfig
	now        func() time.Time
}

func NewAnalysisService(db *gorm.DB, store storage.Store, dispatcher Dispatcher, m *metrics.Metrics, cfg AnalysisConfig) *AnalysisService {
	return &AnalysisService{
		db:         db,
		guard:      NewOwnershipGuard(db),
		store:      store,
		dispatcher: dispatcher,
		metrics:    m,
		cfg:        cfg,
		now:        time.Now,
	}
}

type folderPhotos struct {
	folder models.Folder
	photos []models.Photo
}

// TriggerAnalysis creates a job for the project and hands its photos to the
// workflow. Once the job row exists, any failure marks it FAILED before the
// error is returned.
func (s *AnalysisService) TriggerAnalysis(ctx context.Context, projectID, userID string) (*TriggerResult, error) {
	result, err := s.trigger(ctx, projectID, userID)
	if err != nil {
		code := "error"
		if appErr, ok := apperrors.As(err); ok {
			code = appErr.Code
		}
		s.metrics.IncAnalysisTrigger(code)
		return nil, err
	}
	s.metrics.IncAnalysisTrigger("triggered")
	return result, nil
}

func (s *AnalysisService) trigger(ctx context.Context, projectID, userID string) (*TriggerResult, error) {
	project, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	groups, totalPhotos, err := s.loadPhotos(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if totalPhotos == 0 {
		return nil, apperrors.NoPhotos()
	}

	var running int64
	err = s.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("project_id = ? AND status IN ?", projectID, models.ActiveAnalysisStatuses).
		Count(&running).Error
	if err != nil {
		return nil, fmt.Errorf("check running analysis: %w", err)
	}
	if running > 0 {
		return nil, apperrors.AlreadyRunning()
	}

	now := s.now()
	job := &models.AnalysisJob{
		ProjectID:   projectID,
		Status:      models.AnalysisStatusTriggered,
		TriggeredAt: &now,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.AlreadyRunning()
		}
		return nil, fmt.Errorf("create analysis job: %w", err)
	}

	log := logger.WithJob(job.ID, projectID)

	if err := s.dispatch(ctx, project, job, groups, totalPhotos); err != nil {
		log.WithError(err).Error("Failed to trigger analysis")
		s.failJob(context.WithoutCancel(ctx), job.ID, err.Error())
		return nil, apperrors.TriggerFailed(err.Error()).WithCause(err)
	}

	log.WithFields(map[string]interface{}{
		"total_photos":  totalPhotos,
		"total_folders": len(groups),
	}).Info("Analysis triggered")

	return &TriggerResult{
		Success:           true,
		JobID:             job.ID,
		Status:            job.Status,
		Message:           fmt.Sprintf("Analysis triggered for %d photos across %d folders", totalPhotos, len(groups)),
		EstimatedDuration: totalPhotos * secondsPerPhoto,
	}, nil
}

// loadPhotos returns the folders that hold at least one photo, in display order.
func (s *AnalysisService) loadPhotos(ctx context.Context, projectID string) ([]folderPhotos, int, error) {
	var folders []models.Folder
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("display_order ASC, created_at ASC").Find(&folders).Error; err != nil {
		return nil, 0, fmt.Errorf("load folders: %w", err)
	}
	if len(folders) == 0 {
		return nil, 0, nil
	}

	ids := make([]string, len(folders))
	for i, f := range folders {
		ids[i] = f.ID
	}
	var photos []models.Photo
	if err := s.db.WithContext(ctx).Where("folder_id IN ?", ids).Order("created_at ASC").Find(&photos).Error; err != nil {
		return nil, 0, fmt.Errorf("load photos: %w", err)
	}

	byFolder := make(map[string][]models.Photo, len(folders))
	for _, p := range photos {
		byFolder[p.FolderID] = append(byFolder[p.FolderID], p)
	}

	var groups []folderPhotos
	for _, f := range folders {
		if ps := byFolder[f.ID]; len(ps) > 0 {
			groups = append(groups, folderPhotos{folder: f, photos: ps})
		}
	}
	return groups, len(photos), nil
}

func (s *AnalysisService) dispatch(ctx context.Context, project *models.Project, job *models.AnalysisJob, groups []folderPhotos, totalPhotos int) error {
	manifests := make([]workflow.FolderManifest, 0, len(groups))
	for _, g := range groups {
		roomType := models.DefaultRoomType
		if g.folder.RoomType != nil && *g.folder.RoomType != "" {
			roomType = *g.folder.RoomType
		}
		m := workflow.FolderManifest{
			FolderID:   g.folder.ID,
			FolderName: g.folder.Name,
			RoomType:   roomType,
			Photos:     make([]workflow.PhotoManifest, 0, len(g.photos)),
		}
		for _, p := range g.photos {
			downloadURL, err := s.store.SignedURL(ctx, p.StoragePath, analysisURLTTL)
			if err != nil {
				s.metrics.IncStorageError("sign")
				return fmt.Errorf("sign photo %s: %w", p.ID, err)
			}
			thumbURL := downloadURL
			if p.HasThumbnail {
				thumbURL, err = s.store.SignedURL(ctx, models.ThumbnailPath(p.StoragePath), analysisURLTTL)
				if err != nil {
					s.metrics.IncStorageError("sign")
					return fmt.Errorf("sign thumbnail %s: %w", p.ID, err)
				}
			}
			m.Photos = append(m.Photos, workflow.PhotoManifest{
				PhotoID:      p.ID,
				FileName:     p.FileName,
				DownloadURL:  downloadURL,
				ThumbnailURL: thumbURL,
				MimeType:     p.MimeType,
			})
		}
		manifests = append(manifests, m)
	}

	payload := &workflow.TriggerPayload{
		Mode:           workflow.ModeURLBased,
		ProjectID:      project.ID,
		ProjectName:    project.Name,
		AnalysisJobID:  job.ID,
		CallbackURL:    s.cfg.CallbackURL,
		CallbackSecret: s.cfg.CallbackSecret,
		Folders:        manifests,
		TotalPhotos:    totalPhotos,
		TotalFolders:   len(manifests),
	}
	if err := s.dispatcher.Trigger(ctx, payload); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", project.ID).
		Update("status", models.ProjectStatusProcessing).Error
	if err != nil {
		return fmt.Errorf("mark project processing: %w", err)
	}
	return nil
}

// failJob moves an active job to FAILED. Errors are logged, not returned.
func (s *AnalysisService) failJob(ctx context.Context, jobID, message string) {
	now := s.now()
	err := s.db.WithContext(ctx).Model(&models.AnalysisJob{}).
		Where("id = ? AND status IN ?", jobID, models.ActiveAnalysisStatuses).
		Updates(map[string]interface{}{
			"status":        models.AnalysisStatusFailed,
			"error_message": message,
			"completed_at":  now,
		}).Error
	if err != nil {
		logger.WithError(err, "analysis_service").WithField("job_id", jobID).Error("Failed to mark analysis job as failed")
	}
}

// ProcessAnalysisCallback applies the workflow's result to its job. body must
// be the raw request bytes the signature was computed over. Callbacks for
// jobs that already finished are acknowledged without changes.
func (s *AnalysisService) ProcessAnalysisCallback(ctx context.Context, body []byte, sig string) error {
	if !signature.Verify(s.cfg.CallbackSecret, body, sig) {
		s.metrics.IncAnalysisCallback("invalid_signature")
		logger.Warn("Rejected analysis callback with invalid signature", map[string]interface{}{
			"component": "analysis_service",
			"payload":   string(body),
		})
		return apperrors.Forbidden("Invalid webhook signature")
	}

	var payload workflow.CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.metrics.IncAnalysisCallback("invalid_payload")
		logger.Warn("Rejected malformed analysis callback", map[string]interface{}{
			"component": "analysis_service",
			"error":     err.Error(),
			"payload":   string(body),
		})
		return apperrors.Validation("Invalid callback payload", nil)
	}
	if payload.AnalysisJobID == "" {
		s.metrics.IncAnalysisCallback("invalid_payload")
		logger.Warn("Rejected analysis callback without analysisJobId", map[string]interface{}{
			"component": "analysis_service",
			"payload":   string(body),
		})
		return apperrors.Validation("analysisJobId is required", map[string]string{"analysisJobId": "required"})
	}

	var job models.AnalysisJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", payload.AnalysisJobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.IncAnalysisCallback("unknown_job")
			return apperrors.NotFound("AnalysisJob", payload.AnalysisJobID)
		}
		return fmt.Errorf("load analysis job: %w", err)
	}

	log := logger.WithJob(job.ID, job.ProjectID)
	if payload.ProjectID != "" && payload.ProjectID != job.ProjectID {
		log.WithField("payload_project_id", payload.ProjectID).Warn("Callback projectId does not match the job's project")
	}

	if job.Status.IsTerminal() {
		s.metrics.IncAnalysisCallback("duplicate")
		log.WithField("status", job.Status).Warn("Ignoring callback for finished analysis job")
		return nil
	}

	now := s.now()
	jobUpdates := map[string]interface{}{"completed_at": now}
	var projectStatus models.ProjectStatus
	var outcome models.AnalysisStatus
	if payload.Success && payload.Results != nil {
		outcome = models.AnalysisStatusCompleted
		projectStatus = models.ProjectStatusCompleted
		jobUpdates["status"] = outcome
		jobUpdates["results_summary"] = models.JSONB(payload.Results)
		if sheet := payload.SheetURL(); sheet != "" {
			jobUpdates["sheet_url"] = sheet
		}
	} else {
		outcome = models.AnalysisStatusFailed
		projectStatus = models.ProjectStatusReady
		msg := payload.Error
		if msg == "" {
			msg = defaultFailure
		}
		jobUpdates["status"] = outcome
		jobUpdates["error_message"] = msg
	}

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AnalysisJob{}).
			Where("id = ? AND status IN ?", job.ID, models.ActiveAnalysisStatuses).
			Updates(jobUpdates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		return tx.Model(&models.Project{}).Where("id = ?", job.ProjectID).Update("status", projectStatus).Error
	})
	if err != nil {
		log.WithError(err).WithField("payload", string(body)).Error("Failed to apply analysis callback")
		return fmt.Errorf("apply analysis callback: %w", err)
	}
	if !applied {
		s.metrics.IncAnalysisCallback("duplicate")
		log.Warn("Analysis job finished concurrently, callback ignored")
		return nil
	}

	s.metrics.IncAnalysisCallback(string(outcome))
	if job.TriggeredAt != nil {
		s.metrics.ObserveAnalysisDuration(string(outcome), now.Sub(*job.TriggeredAt))
	}
	log.WithField("status", outcome).Info("Analysis callback processed")
	return nil
}

// GetAnalysisJob returns a job whose project belongs to userID.
func (s *AnalysisService) GetAnalysisJob(ctx context.Context, jobID, userID string) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("AnalysisJob", jobID)
		}
		return nil, fmt.Errorf("load analysis job: %w", err)
	}

	var owners []string
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", job.ProjectID).Pluck("user_id", &owners).Error; err != nil {
		return nil, fmt.Errorf("load job project: %w", err)
	}
	if len(owners) != 1 || owners[0] != userID {
		return nil, apperrors.Forbidden("You do not have access to this analysis job")
	}
	return &job, nil
}

// GetProjectAnalysisJobs lists a project's jobs, newest first.
func (s *AnalysisService) GetProjectAnalysisJobs(ctx context.Context, projectID, userID string) ([]models.AnalysisJob, error) {
	if _, err := s.guard.VerifyProjectOwnership(ctx, userID, projectID); err != nil {
		return nil, err
	}
	jobs := []models.AnalysisJob{}
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list analysis jobs: %w", err)
	}
	return jobs, nil
}

// latestProjectJob returns the newest job of the project, or nil.
func latestProjectJob(ctx context.Context, db *gorm.DB, projectID string) (*models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	if err := db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC").Limit(1).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("load latest analysis: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}
