package models

import (
	"time"

	"gorm.io/gorm"
)

type AnalysisStatus string

const (
	AnalysisStatusPending    AnalysisStatus = "PENDING"
	AnalysisStatusTriggered  AnalysisStatus = "TRIGGERED"
	AnalysisStatusProcessing AnalysisStatus = "PROCESSING"
	AnalysisStatusCompleted  AnalysisStatus = "COMPLETED"
	AnalysisStatusFailed     AnalysisStatus = "FAILED"
)

// ActiveAnalysisStatuses are the non-terminal statuses. At most one job per
// project may be in one of them.
var ActiveAnalysisStatuses = []AnalysisStatus{
	AnalysisStatusPending,
	AnalysisStatusTriggered,
	AnalysisStatusProcessing,
}

func (s AnalysisStatus) IsTerminal() bool {
	return s == AnalysisStatusCompleted || s == AnalysisStatusFailed
}

type AnalysisJob struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	ProjectID      string         `json:"projectId" gorm:"size:36;not null;index"`
	Status         AnalysisStatus `json:"status" gorm:"size:20;not null;default:'PENDING'"`
	TriggeredAt    *time.Time     `json:"triggeredAt"`
	StartedAt      *time.Time     `json:"startedAt"`
	CompletedAt    *time.Time     `json:"completedAt"`
	ErrorMessage   *string        `json:"errorMessage"`
	ResultsSummary JSONB          `json:"resultsSummary"`
	SheetURL       *string        `json:"sheetUrl"`
	PdfURL         *string        `json:"pdfUrl"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`

	Project *Project `json:"-" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

func (j *AnalysisJob) BeforeCreate(tx *gorm.DB) error {
	assignID(&j.ID)
	return nil
}
