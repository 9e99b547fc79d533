package services

import (
	"bytes"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/models"
	"github.com/restorix/backend/internal/thumbnail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadSetup(t *testing.T) (*fixture, *PhotoService, *models.User, *models.Folder) {
	t.Helper()
	f := newFixture(t)
	u := f.user(t, "u@x.co")
	p := f.project(t, u.ID, "P")
	folder := f.folder(t, p.ID, "Kitchen", 0)
	return f, NewPhotoService(f.db, f.store, nil), u, folder
}

func TestUploadPhotoWithThumbnail(t *testing.T) {
	f, svc, u, folder := uploadSetup(t)

	res, err := svc.UploadPhotos(testCtx(), u.ID, folder.ID, []UploadFile{
		{OriginalName: "wall.PNG", ContentType: "image/png", Data: pngBytes(t, 800, 600)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.UploadedCount)
	assert.Equal(t, 0, res.FailedCount)
	require.Len(t, res.Photos, 1)

	photo := res.Photos[0]
	assert.True(t, photo.HasThumbnail)
	assert.Equal(t, "image/png", photo.MimeType)
	assert.Equal(t, models.PhotoStatusUploaded, photo.Status)
	assert.True(t, strings.HasSuffix(photo.FileName, ".png"))
	assert.Equal(t, models.OriginalPath(folder.ProjectID, folder.ID, photo.FileName), photo.StoragePath)
	assert.Contains(t, photo.StorageURL, photo.StoragePath)
	assert.Contains(t, photo.ThumbnailURL, models.ThumbnailPath(photo.StoragePath))

	thumb, contentType, ok := f.store.Get(models.ThumbnailPath(photo.StoragePath))
	require.True(t, ok)
	assert.Equal(t, thumbnail.ContentType, contentType)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, thumbnail.Width, cfg.Width)
	assert.Equal(t, 300, cfg.Height)
}

func TestUploadHEICSkipsThumbnail(t *testing.T) {
	f, svc, u, folder := uploadSetup(t)

	res, err := svc.UploadPhotos(testCtx(), u.ID, folder.ID, []UploadFile{
		{OriginalName: "IMG_0001.HEIC", ContentType: "image/heic", Data: heicBytes()},
	})
	require.NoError(t, err)
	require.Len(t, res.Photos, 1)
	photo := res.Photos[0]
	assert.False(t, photo.HasThumbnail)
	assert.Empty(t, photo.ThumbnailURL)
	assert.True(t, f.store.Has(photo.StoragePath))
	assert.False(t, f.store.Has(models.ThumbnailPath(photo.StoragePath)))
}

func TestUploadValidationIsPerFile(t *testing.T) {
	_, svc, u, folder := uploadSetup(t)

	res, err := svc.UploadPhotos(testCtx(), u.ID, folder.ID, []UploadFile{
		{OriginalName: "notes.txt", ContentType: "text/plain", Data: []byte("hello")},
		{OriginalName: "fake.jpg", ContentType: "image/jpeg", Data: []byte("definitely not a jpeg")},
		{OriginalName: "ok.png", ContentType: "image/png", Data: pngBytes(t, 10, 10)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.UploadedCount)
	assert.Equal(t, 2, res.FailedCount)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "notes.txt", res.Errors[0].FileName)
	assert.Equal(t, apperrors.CodeValidation, res.Errors[0].Code)
	assert.Equal(t, "File content is not an image", res.Errors[1].Error)
}

func TestUploadTooLarge(t *testing.T) {
	_, svc, u, folder := uploadSetup(t)

	res, err := svc.UploadPhotos(testCtx(), u.ID, folder.ID, []UploadFile{
		{OriginalName: "huge.jpg", ContentType: "image/jpeg", Data: make([]byte, MaxPhotoSize+1)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.UploadedCount)
	assert.Equal(t, 1, res.FailedCount)
}

func TestUploadNoFiles(t *testing.T) {
	_, svc, u, folder := uploadSetup(t)
	_, err := svc.UploadPhotos(testCtx(), u.ID, folder.ID, nil)
	assert.True(t, apperrors.Is(err, apperrors.CodeNoFiles))
}

func TestUploadStorageFailureCleansUp(t *testing.T) {
	f, svc, u, folder := uploadSetup(t)
	f.store.FailUpload = func(path string) error {
		if strings.HasPrefix(path, "thumbnails/") {
			return errors.New("quota exceeded")
		}
		return nil
	}

	res, err := svc.UploadPhotos(testCtx(), u.ID, folder.ID, []UploadFile{
		{OriginalName: "a.png", ContentType: "image/png", Data: pngBytes(t, 20, 20)},
	})
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, apperrors.CodeUploadFailed, res.Errors[0].Code)

	assert.Empty(t, f.store.Paths())
	assert.Len(t, f.store.Deleted(), 2)
	var n int64
	require.NoError(t, f.db.Model(&models.Photo{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUploadRequiresFolderOwnership(t *testing.T) {
	f, svc, _, folder := uploadSetup(t)
	intruder := f.user(t, "intruder@x.co")

	_, err := svc.UploadPhotos(testCtx(), intruder.ID, folder.ID, []UploadFile{
		{OriginalName: "a.png", ContentType: "image/png", Data: pngBytes(t, 5, 5)},
	})
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

func TestListAndGetPhotos(t *testing.T) {
	f, svc, u, folder := uploadSetup(t)
	a := f.photo(t, folder, "a.jpg")
	b := f.photo(t, folder, "b.jpg")

	list, err := svc.ListPhotos(testCtx(), u.ID, folder.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
	assert.NotEmpty(t, list[0].StorageURL)
	assert.NotEmpty(t, list[0].ThumbnailURL)

	got, err := svc.GetPhoto(testCtx(), u.ID, folder.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = svc.GetPhoto(testCtx(), u.ID, folder.ID, "missing")
	assert.True(t, apperrors.Is(err, "PHOTO_NOT_FOUND"))
}

func TestDeletePhoto(t *testing.T) {
	f, svc, u, folder := uploadSetup(t)
	p := f.photo(t, folder, "a.jpg")

	require.NoError(t, svc.DeletePhoto(testCtx(), u.ID, folder.ID, p.ID))
	assert.False(t, f.store.Has(p.StoragePath))
	assert.False(t, f.store.Has(models.ThumbnailPath(p.StoragePath)))

	err := svc.DeletePhoto(testCtx(), u.ID, folder.ID, p.ID)
	assert.True(t, apperrors.Is(err, "PHOTO_NOT_FOUND"))
}

func TestDeletePhotoStorageFailureKeepsRow(t *testing.T) {
	f, svc, u, folder := uploadSetup(t)
	p := f.photo(t, folder, "a.jpg")
	f.store.FailDelete = func(string) error { return errors.New("access denied") }

	require.Error(t, svc.DeletePhoto(testCtx(), u.ID, folder.ID, p.ID))
	var n int64
	require.NoError(t, f.db.Model(&models.Photo{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestBulkDeleteOnlyTouchesFolderPhotos(t *testing.T) {
	f, svc, u, folder := uploadSetup(t)
	other := f.folder(t, folder.ProjectID, "Bath", 1)
	a := f.photo(t, folder, "a.jpg")
	b := f.photo(t, folder, "b.jpg")
	keep := f.photo(t, folder, "c.jpg")
	foreign := f.photo(t, other, "d.jpg")

	deleted, err := svc.BulkDeletePhotos(testCtx(), u.ID, folder.ID, []string{a.ID, b.ID, foreign.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	assert.Len(t, f.store.Deleted(), 4)
	assert.True(t, f.store.Has(keep.StoragePath))
	assert.True(t, f.store.Has(foreign.StoragePath))

	var ids []string
	require.NoError(t, f.db.Model(&models.Photo{}).Order("created_at ASC").Pluck("id", &ids).Error)
	assert.Equal(t, []string{keep.ID, foreign.ID}, ids)
}
