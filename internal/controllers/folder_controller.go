package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/restorix/backend/internal/middleware"
	"github.com/restorix/backend/internal/services"
)

type FolderController struct {
	folders *services.FolderService
}

func NewFolderController(folders *services.FolderService) *FolderController {
	return &FolderController{folders: folders}
}

type CreateFolderRequest struct {
	Name     string  `json:"name" binding:"required,min=1,max=100"`
	RoomType *string `json:"roomType" binding:"omitempty,max=50"`
}

type UpdateFolderRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=1,max=100"`
	RoomType     *string `json:"roomType" binding:"omitempty,max=50"`
	DisplayOrder *int    `json:"displayOrder" binding:"omitempty,min=0"`
}

type ReorderFoldersRequest struct {
	FolderIDs []string `json:"folderIds" binding:"required,min=1,dive,required"`
}

func (fc *FolderController) ListFolders(c *gin.Context) {
	folders, err := fc.folders.ListFolders(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

func (fc *FolderController) CreateFolder(c *gin.Context) {
	var req CreateFolderRequest
	if !bindJSON(c, &req) {
		return
	}

	folder, err := fc.folders.CreateFolder(c.Request.Context(), middleware.UserID(c), c.Param("id"), services.CreateFolderInput{
		Name:     req.Name,
		RoomType: req.RoomType,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"folder": folder})
}

func (fc *FolderController) GetFolder(c *gin.Context) {
	folder, err := fc.folders.GetFolder(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("folderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folder": folder})
}

func (fc *FolderController) UpdateFolder(c *gin.Context) {
	var req UpdateFolderRequest
	if !bindJSON(c, &req) {
		return
	}

	folder, err := fc.folders.UpdateFolder(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("folderId"), services.UpdateFolderInput{
		Name:         req.Name,
		RoomType:     req.RoomType,
		DisplayOrder: req.DisplayOrder,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folder": folder})
}

func (fc *FolderController) DeleteFolder(c *gin.Context) {
	if err := fc.folders.DeleteFolder(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("folderId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (fc *FolderController) ReorderFolders(c *gin.Context) {
	var req ReorderFoldersRequest
	if !bindJSON(c, &req) {
		return
	}

	folders, err := fc.folders.ReorderFolders(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.FolderIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}
