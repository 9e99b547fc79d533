package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/restorix/backend/internal/middleware"
	"github.com/restorix/backend/internal/services"
)

type AnalysisController struct {
	analysis *services.AnalysisService
}

func NewAnalysisController(analysis *services.AnalysisService) *AnalysisController {
	return &AnalysisController{analysis: analysis}
}

type TriggerAnalysisRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
}

func (ac *AnalysisController) TriggerAnalysis(c *gin.Context) {
	var req TriggerAnalysisRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := ac.analysis.TriggerAnalysis(c.Request.Context(), req.ProjectID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (ac *AnalysisController) GetAnalysisJob(c *gin.Context) {
	job, err := ac.analysis.GetAnalysisJob(c.Request.Context(), c.Param("jobId"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (ac *AnalysisController) GetProjectAnalysisJobs(c *gin.Context) {
	jobs, err := ac.analysis.GetProjectAnalysisJobs(c.Request.Context(), c.Param("projectId"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}
