package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/restorix/backend/internal/middleware"
	"github.com/restorix/backend/internal/services"
)

type ProjectController struct {
	projects *services.ProjectService
}

func NewProjectController(projects *services.ProjectService) *ProjectController {
	return &ProjectController{projects: projects}
}

type CreateProjectRequest struct {
	Name        string  `json:"name" binding:"required,min=1,max=200"`
	Description *string `json:"description" binding:"omitempty,max=1000"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description" binding:"omitempty,max=1000"`
}

func (pc *ProjectController) ListProjects(c *gin.Context) {
	projects, err := pc.projects.ListProjects(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (pc *ProjectController) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := pc.projects.CreateProject(c.Request.Context(), middleware.UserID(c), services.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (pc *ProjectController) GetProject(c *gin.Context) {
	project, err := pc.projects.GetProject(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (pc *ProjectController) UpdateProject(c *gin.Context) {
	var req UpdateProjectRequest
	if !bindJSON(c, &req) {
		return
	}

	project, err := pc.projects.UpdateProject(c.Request.Context(), middleware.UserID(c), c.Param("id"), services.UpdateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (pc *ProjectController) DeleteProject(c *gin.Context) {
	if err := pc.projects.DeleteProject(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
