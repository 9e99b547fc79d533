package models

import (
	"time"

	"gorm.io/gorm"
)

// RoomTypes lists the room tags offered by the frontend. The backend stores
// any value up to 50 characters.
var RoomTypes = []string{
	"kitchen", "living_room", "dining_room", "bedroom", "bathroom", "garage", "basement",
	"attic", "office", "laundry", "hallway", "closet", "patio", "other",
}

// DefaultRoomType is sent to the analysis workflow for folders without a tag.
const DefaultRoomType = "Other"

type Folder struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	ProjectID    string    `json:"projectId" gorm:"size:36;not null;index"`
	Name         string    `json:"name" gorm:"size:100;not null"`
	RoomType     *string   `json:"roomType" gorm:"size:50"`
	DisplayOrder int       `json:"displayOrder" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	Photos []Photo `json:"-" gorm:"foreignKey:FolderID;constraint:OnDelete:CASCADE"`
}

func (Folder) TableName() string {
	return "folders"
}

func (f *Folder) BeforeCreate(tx *gorm.DB) error {
	assignID(&f.ID)
	return nil
}
