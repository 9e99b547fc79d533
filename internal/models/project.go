package models

import (
	"time"

	"gorm.io/gorm"
)

type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "DRAFT"
	ProjectStatusReady      ProjectStatus = "READY"
	ProjectStatusProcessing ProjectStatus = "PROCESSING"
	ProjectStatusCompleted  ProjectStatus = "COMPLETED"
	ProjectStatusArchived   ProjectStatus = "ARCHIVED"
)

type Project struct {
	ID          string        `json:"id" gorm:"primaryKey;size:36"`
	UserID      string        `json:"userId" gorm:"size:36;not null;index"`
	Name        string        `json:"name" gorm:"size:200;not null"`
	Description *string       `json:"description"`
	Status      ProjectStatus `json:"status" gorm:"size:20;not null;default:'DRAFT'"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`

	User    *User    `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Folders []Folder `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

func (Project) TableName() string {
	return "projects"
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	if p.Status == "" {
		p.Status = ProjectStatusDraft
	}
	return nil
}
