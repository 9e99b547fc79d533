package controllers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/middleware"
	"github.com/restorix/backend/internal/services"
)

// photosField is the multipart field holding uploaded files.
const photosField = "photos"

type PhotoController struct {
	photos *services.PhotoService
}

func NewPhotoController(photos *services.PhotoService) *PhotoController {
	return &PhotoController{photos: photos}
}

type BulkDeletePhotosRequest struct {
	PhotoIDs []string `json:"photoIds" binding:"required,min=1,dive,required"`
}

func (pc *PhotoController) ListPhotos(c *gin.Context) {
	photos, err := pc.photos.ListPhotos(c.Request.Context(), middleware.UserID(c), c.Param("folderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

// UploadPhotos accepts up to 50 files in the "photos" field. It answers 201
// when at least one file was stored and 400 otherwise.
func (pc *PhotoController) UploadPhotos(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, apperrors.NoFiles())
		return
	}
	headers := form.File[photosField]
	if len(headers) == 0 {
		respondError(c, apperrors.NoFiles())
		return
	}
	if len(headers) > services.MaxPhotosPerReq {
		respondError(c, apperrors.Validation(fmt.Sprintf("At most %d files can be uploaded at once", services.MaxPhotosPerReq), nil))
		return
	}

	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readUpload(fh)
		if err != nil {
			respondError(c, apperrors.UploadFailed("Failed to read uploaded file").WithCause(err))
			return
		}
		files = append(files, services.UploadFile{
			OriginalName: fh.Filename,
			ContentType:  fh.Header.Get("Content-Type"),
			Data:         data,
		})
	}

	result, err := pc.photos.UploadPhotos(c.Request.Context(), middleware.UserID(c), c.Param("folderId"), files)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.UploadedCount == 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, result)
}

// readUpload reads at most one byte past the size limit so oversized files
// are still rejected by the service.
func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, services.MaxPhotoSize+1))
}

func (pc *PhotoController) GetPhoto(c *gin.Context) {
	photo, err := pc.photos.GetPhoto(c.Request.Context(), middleware.UserID(c), c.Param("folderId"), c.Param("photoId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo": photo})
}

func (pc *PhotoController) DeletePhoto(c *gin.Context) {
	if err := pc.photos.DeletePhoto(c.Request.Context(), middleware.UserID(c), c.Param("folderId"), c.Param("photoId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (pc *PhotoController) BulkDeletePhotos(c *gin.Context) {
	var req BulkDeletePhotosRequest
	if !bindJSON(c, &req) {
		return
	}

	deleted, err := pc.photos.BulkDeletePhotos(c.Request.Context(), middleware.UserID(c), c.Param("folderId"), req.PhotoIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deletedCount": deleted})
}
