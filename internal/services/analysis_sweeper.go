package services

import (
	"context"
	"fmt"
	"time"

	"github.com/restorix/backend/internal/logger"
	"github.com/restorix/backend/internal/metrics"
	"github.com/restorix/backend/internal/models"
	"gorm.io/gorm"
)

const staleJobMessage = "Analysis timed out waiting for callback"

// AnalysisSweeper fails jobs whose callback never arrived so the project can
// be analyzed again.
type AnalysisSweeper struct {
	db         *gorm.DB
	staleAfter time.Duration
	interval   time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewAnalysisSweeper(db *gorm.DB, staleAfter, interval time.Duration, m *metrics.Metrics) *AnalysisSweeper {
	return &AnalysisSweeper{
		db:         db,
		staleAfter: staleAfter,
		interval:   interval,
		metrics:    m,
		now:        time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled. A zero interval disables it.
func (s *AnalysisSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		logger.Info("Analysis sweeper disabled", nil)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("Analysis sweeper started", map[string]interface{}{
		"interval":    s.interval.String(),
		"stale_after": s.staleAfter.String(),
	})
	for {
		select {
		case <-ctx.Done():
			logger.Info("Analysis sweeper stopped", nil)
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				logger.WithError(err, "analysis_sweeper").Error("Analysis sweep failed")
			}
		}
	}
}

// SweepOnce fails every active job triggered more than staleAfter ago and
// returns how many it changed.
func (s *AnalysisSweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.staleAfter)

	var stale []models.AnalysisJob
	err := s.db.WithContext(ctx).
		Where("status IN ?", models.ActiveAnalysisStatuses).
		Where("COALESCE(triggered_at, created_at) < ?", cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("find stale analysis jobs: %w", err)
	}

	swept := 0
	for _, job := range stale {
		changed := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.AnalysisJob{}).
				Where("id = ? AND status IN ?", job.ID, models.ActiveAnalysisStatuses).
				Updates(map[string]interface{}{
					"status":        models.AnalysisStatusFailed,
					"error_message": staleJobMessage,
					"completed_at":  now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			changed = true
			return tx.Model(&models.Project{}).
				Where("id = ? AND status = ?", job.ProjectID, models.ProjectStatusProcessing).
				Update("status", models.ProjectStatusReady).Error
		})
		if err != nil {
			return swept, fmt.Errorf("fail stale job %s: %w", job.ID, err)
		}
		if changed {
			swept++
			logger.WithJob(job.ID, job.ProjectID).Warn("Analysis job timed out")
		}
	}

	s.metrics.AddAnalysisJobsSwept(swept)
	return swept, nil
}
