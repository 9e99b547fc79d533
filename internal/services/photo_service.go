package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/logger"
	"github.com/restorix/backend/internal/metrics"
	"github.com/restorix/backend/internal/models"
	"github.com/restorix/backend/internal/storage"
	"github.com/restorix/backend/internal/thumbnail"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	MaxPhotoSize    = 20 << 20
	MaxPhotosPerReq = 50
	photoURLTTL     = time.Hour
)

// AllowedPhotoTypes are the declared content types accepted for upload.
var AllowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/heic": true,
	"image/heif": true,
	"image/webp": true,
}

// UploadFile is one file from a multipart upload.
type UploadFile struct {
	OriginalName string
	ContentType  string
	Data         []byte
}

// PhotoView is a photo with freshly signed URLs.
type PhotoView struct {
	models.Photo
	StorageURL   string `json:"storageUrl"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

type UploadError struct {
	FileName string `json:"file"`
	Code     string `json:"code"`
	Error    string `json:"error"`
}

type UploadResult struct {
	Photos        []PhotoView   `json:"photos"`
	Errors        []UploadError `json:"errors,omitempty"`
	UploadedCount int           `json:"uploadedCount"`
	FailedCount   int           `json:"failedCount"`
}

type PhotoService struct {
	db      *gorm.DB
	guard   *OwnershipGuard
	store   storage.Store
	metrics *metrics.Metrics
}

func NewPhotoService(db *gorm.DB, store storage.Store, m *metrics.Metrics) *PhotoService {
	return &PhotoService{db: db, guard: NewOwnershipGuard(db), store: store, metrics: m}
}

// UploadPhotos stores each file independently. A failing file is reported in
// the result and does not stop the others.
func (s *PhotoService) UploadPhotos(ctx context.Context, userID, folderID string, files []UploadFile) (*UploadResult, error) {
	folder, err := s.guard.VerifyFolderOwnership(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperrors.NoFiles()
	}
	if len(files) > MaxPhotosPerReq {
		return nil, apperrors.Validation(fmt.Sprintf("At most %d files can be uploaded at once", MaxPhotosPerReq), nil)
	}

	result := &UploadResult{Photos: []PhotoView{}}
	for _, f := range files {
		view, err := s.uploadOne(ctx, folder, f)
		if err != nil {
			code := apperrors.CodeUploadFailed
			msg := "Failed to upload photo"
			if appErr, ok := apperrors.As(err); ok {
				code, msg = appErr.Code, appErr.Message
			}
			logger.WithError(err, "photo_service").WithField("file_name", f.OriginalName).Warn("Photo upload failed")
			s.metrics.IncPhotoUpload("failed", 0)
			result.Errors = append(result.Errors, UploadError{FileName: f.OriginalName, Code: code, Error: msg})
			continue
		}
		s.metrics.IncPhotoUpload("uploaded", view.FileSize)
		result.Photos = append(result.Photos, *view)
	}
	result.UploadedCount = len(result.Photos)
	result.FailedCount = len(result.Errors)
	return result, nil
}

func (s *PhotoService) uploadOne(ctx context.Context, folder *models.Folder, f UploadFile) (*PhotoView, error) {
	if len(f.Data) > MaxPhotoSize {
		return nil, apperrors.Validation(fmt.Sprintf("File exceeds the %d MB limit", MaxPhotoSize>>20), nil)
	}

	detected := mimetype.Detect(f.Data)
	declared := strings.ToLower(strings.TrimSpace(f.ContentType))
	if declared == "" || declared == "application/octet-stream" {
		declared = detected.String()
	}
	if !AllowedPhotoTypes[declared] {
		return nil, apperrors.Validation("Invalid file type. Allowed: JPEG, PNG, HEIC, HEIF, WebP", nil)
	}
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, apperrors.Validation("File content is not an image", nil)
	}

	mimeType := declared
	if AllowedPhotoTypes[detected.String()] {
		mimeType = detected.String()
	}

	ext := strings.ToLower(filepath.Ext(f.OriginalName))
	if ext == "" {
		ext = detected.Extension()
	}
	photo := &models.Photo{
		ID:           uuid.NewString(),
		FolderID:     folder.ID,
		OriginalName: f.OriginalName,
		MimeType:     mimeType,
		FileSize:     int64(len(f.Data)),
		Status:       models.PhotoStatusUploaded,
	}
	photo.FileName = uuid.NewString() + ext
	photo.StoragePath = models.OriginalPath(folder.ProjectID, folder.ID, photo.FileName)
	thumbPath := models.ThumbnailPath(photo.StoragePath)

	thumb, err := thumbnail.Generate(f.Data)
	if err != nil {
		if !errors.Is(err, thumbnail.ErrUnsupported) {
			logger.WithError(err, "photo_service").WithField("file_name", f.OriginalName).Warn("Thumbnail generation failed")
		}
		thumb = nil
	}
	photo.HasThumbnail = thumb != nil

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.store.Upload(gctx, photo.StoragePath, f.Data, mimeType)
	})
	if thumb != nil {
		g.Go(func() error {
			return s.store.Upload(gctx, thumbPath, thumb, thumbnail.ContentType)
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.IncStorageError("upload")
		s.cleanup(ctx, photo.StoragePath, thumbPath)
		return nil, apperrors.UploadFailed("Failed to upload photo to storage").WithCause(err)
	}

	if err := s.db.WithContext(ctx).Create(photo).Error; err != nil {
		s.cleanup(ctx, photo.StoragePath, thumbPath)
		return nil, apperrors.UploadFailed("Failed to save photo").WithCause(err)
	}

	return s.view(ctx, photo)
}

// cleanup removes partially uploaded objects. Failures are only logged.
func (s *PhotoService) cleanup(ctx context.Context, paths ...string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), paths...); err != nil {
		s.metrics.IncStorageError("delete")
		logger.WithError(err, "photo_service").WithField("paths", paths).Warn("Failed to clean up uploaded objects")
	}
}

func (s *PhotoService) view(ctx context.Context, photo *models.Photo) (*PhotoView, error) {
	url, err := s.store.SignedURL(ctx, photo.StoragePath, photoURLTTL)
	if err != nil {
		s.metrics.IncStorageError("sign")
		return nil, fmt.Errorf("sign photo url: %w", err)
	}
	v := &PhotoView{Photo: *photo, StorageURL: url}
	if photo.HasThumbnail {
		thumbURL, err := s.store.SignedURL(ctx, models.ThumbnailPath(photo.StoragePath), photoURLTTL)
		if err != nil {
			s.metrics.IncStorageError("sign")
			return nil, fmt.Errorf("sign thumbnail url: %w", err)
		}
		v.ThumbnailURL = thumbURL
	}
	return v, nil
}

func (s *PhotoService) ListPhotos(ctx context.Context, userID, folderID string) ([]PhotoView, error) {
	if _, err := s.guard.VerifyFolderOwnership(ctx, userID, folderID); err != nil {
		return nil, err
	}

	var photos []models.Photo
	if err := s.db.WithContext(ctx).Where("folder_id = ?", folderID).Order("created_at ASC").Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}

	views := make([]PhotoView, 0, len(photos))
	for i := range photos {
		v, err := s.view(ctx, &photos[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func (s *PhotoService) folderPhoto(ctx context.Context, folderID, photoID string) (*models.Photo, error) {
	var photo models.Photo
	if err := s.db.WithContext(ctx).Where("id = ? AND folder_id = ?", photoID, folderID).First(&photo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Photo", "")
		}
		return nil, fmt.Errorf("load photo: %w", err)
	}
	return &photo, nil
}

func (s *PhotoService) GetPhoto(ctx context.Context, userID, folderID, photoID string) (*PhotoView, error) {
	if _, err := s.guard.VerifyFolderOwnership(ctx, userID, folderID); err != nil {
		return nil, err
	}
	photo, err := s.folderPhoto(ctx, folderID, photoID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, photo)
}

func (s *PhotoService) DeletePhoto(ctx context.Context, userID, folderID, photoID string) error {
	if _, err := s.guard.VerifyFolderOwnership(ctx, userID, folderID); err != nil {
		return err
	}
	photo, err := s.folderPhoto(ctx, folderID, photoID)
	if err != nil {
		return err
	}

	if err := deletePhotoObjects(ctx, s.store, s.metrics, []models.Photo{*photo}); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Photo{}, "id = ?", photo.ID).Error; err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

// BulkDeletePhotos deletes the photos among photoIDs that belong to the
// folder and returns how many were removed. Ids from other folders are ignored.
func (s *PhotoService) BulkDeletePhotos(ctx context.Context, userID, folderID string, photoIDs []string) (int, error) {
	if _, err := s.guard.VerifyFolderOwnership(ctx, userID, folderID); err != nil {
		return 0, err
	}
	if len(photoIDs) == 0 {
		return 0, nil
	}

	var photos []models.Photo
	if err := s.db.WithContext(ctx).Where("folder_id = ? AND id IN ?", folderID, photoIDs).Find(&photos).Error; err != nil {
		return 0, fmt.Errorf("load photos: %w", err)
	}
	if len(photos) == 0 {
		return 0, nil
	}

	if err := deletePhotoObjects(ctx, s.store, s.metrics, photos); err != nil {
		return 0, err
	}

	ids := make([]string, len(photos))
	for i, p := range photos {
		ids[i] = p.ID
	}
	res := s.db.WithContext(ctx).Where("folder_id = ? AND id IN ?", folderID, ids).Delete(&models.Photo{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete photos: %w", res.Error)
	}

	logger.WithUser(userID).WithFields(map[string]interface{}{
		"folder_id":     folderID,
		"deleted_count": res.RowsAffected,
	}).Info("Photos deleted")
	return int(res.RowsAffected), nil
}
