package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/restorix/backend/internal/controllers"
	"github.com/restorix/backend/internal/metrics"
	"github.com/restorix/backend/internal/middleware"
	"github.com/restorix/backend/internal/services"
	"gorm.io/gorm"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	DB             *gorm.DB
	Metrics        *metrics.Metrics
	Auth           *services.AuthService
	Projects       *services.ProjectService
	Folders        *services.FolderService
	Photos         *services.PhotoService
	Analysis       *services.AnalysisService
	FrontendURL    string
	StorageBackend string
	WorkflowReady  bool
}

// NewRouter builds the engine with middleware, /health, /metrics and the API.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	// Multipart parts beyond this spill to temp files.
	r.MaxMultipartMemory = 64 << 20

	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORSMiddleware(d.FrontendURL))
	r.Use(middleware.Metrics(d.Metrics))
	r.Use(gin.Recovery())

	health := controllers.NewHealthController(d.DB, d.StorageBackend, d.WorkflowReady)
	r.GET("/health", health.Health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	SetupRoutes(r, d)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{"code": "NOT_FOUND", "message": "Route not found"},
		})
	})
	return r
}

// SetupRoutes configures all /api routes
func SetupRoutes(r *gin.Engine, d Deps) {
	authController := controllers.NewAuthController(d.Auth)
	projectController := controllers.NewProjectController(d.Projects)
	folderController := controllers.NewFolderController(d.Folders)
	photoController := controllers.NewPhotoController(d.Photos)
	analysisController := controllers.NewAnalysisController(d.Analysis)
	webhookController := controllers.NewWebhookController(d.Analysis)

	requireAuth := middleware.AuthMiddleware(d.Auth)

	api := r.Group("/api")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authController.Register)
			auth.POST("/login", authController.Login)
			auth.POST("/refresh", authController.RefreshToken)
			auth.GET("/me", requireAuth, authController.Me)
		}

		// Signed by the workflow, no bearer token
		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/n8n/analysis-complete", webhookController.AnalysisComplete)
		}

		protected := api.Group("")
		protected.Use(requireAuth)
		{
			projects := protected.Group("/projects")
			{
				projects.GET("", projectController.ListProjects)
				projects.POST("", projectController.CreateProject)
				projects.GET("/:id", projectController.GetProject)
				projects.PATCH("/:id", projectController.UpdateProject)
				projects.DELETE("/:id", projectController.DeleteProject)

				projects.PATCH("/:id/folders/reorder", folderController.ReorderFolders)
				projects.GET("/:id/folders", folderController.ListFolders)
				projects.POST("/:id/folders", folderController.CreateFolder)
				projects.GET("/:id/folders/:folderId", folderController.GetFolder)
				projects.PATCH("/:id/folders/:folderId", folderController.UpdateFolder)
				projects.DELETE("/:id/folders/:folderId", folderController.DeleteFolder)
			}

			photos := protected.Group("/folders/:folderId/photos")
			{
				photos.GET("", photoController.ListPhotos)
				photos.POST("/upload", photoController.UploadPhotos)
				photos.DELETE("/bulk", photoController.BulkDeletePhotos)
				photos.GET("/:photoId", photoController.GetPhoto)
				photos.DELETE("/:photoId", photoController.DeletePhoto)
			}

			analysis := protected.Group("/analysis")
			{
				analysis.POST("/trigger", analysisController.TriggerAnalysis)
				analysis.GET("/project/:projectId", analysisController.GetProjectAnalysisJobs)
				analysis.GET("/:jobId", analysisController.GetAnalysisJob)
			}
		}
	}
}
