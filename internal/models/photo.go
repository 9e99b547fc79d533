package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type PhotoStatus string

const (
	PhotoStatusUploading  PhotoStatus = "UPLOADING"
	PhotoStatusUploaded   PhotoStatus = "UPLOADED"
	PhotoStatusProcessing PhotoStatus = "PROCESSING"
	PhotoStatusProcessed  PhotoStatus = "PROCESSED"
	PhotoStatusError      PhotoStatus = "ERROR"
)

const (
	originalsPrefix  = "photos/"
	thumbnailsPrefix = "thumbnails/"
)

type Photo struct {
	ID           string      `json:"id" gorm:"primaryKey;size:36"`
	FolderID     string      `json:"folderId" gorm:"size:36;not null;index"`
	FileName     string      `json:"fileName" gorm:"not null"`
	OriginalName string      `json:"originalName" gorm:"not null"`
	StoragePath  string      `json:"storagePath" gorm:"not null"`
	MimeType     string      `json:"mimeType" gorm:"size:50;not null"`
	FileSize     int64       `json:"fileSize" gorm:"not null"`
	HasThumbnail bool        `json:"hasThumbnail" gorm:"not null;default:false"`
	Status       PhotoStatus `json:"status" gorm:"size:20;not null;default:'UPLOADED'"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func (Photo) TableName() string {
	return "photos"
}

func (p *Photo) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	if p.Status == "" {
		p.Status = PhotoStatusUploaded
	}
	return nil
}

// OriginalPath builds the storage path of an uploaded original.
func OriginalPath(projectID, folderID, fileName string) string {
	return originalsPrefix + projectID + "/" + folderID + "/" + fileName
}

// ThumbnailPath maps an original's storage path to its thumbnail path.
func ThumbnailPath(storagePath string) string {
	return strings.Replace(storagePath, originalsPrefix, thumbnailsPrefix, 1)
}

// ObjectPaths returns the original and thumbnail paths of the photo. The
// thumbnail path is included even when none was generated; stores treat a
// missing object as already deleted.
func (p *Photo) ObjectPaths() []string {
	return []string{p.StoragePath, ThumbnailPath(p.StoragePath)}
}
