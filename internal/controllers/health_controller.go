package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/restorix/backend/internal/db"
	"gorm.io/gorm"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

type HealthController struct {
	db             *gorm.DB
	storageBackend string
	workflowReady  bool
}

func NewHealthController(conn *gorm.DB, storageBackend string, workflowReady bool) *HealthController {
	return &HealthController{db: conn, storageBackend: storageBackend, workflowReady: workflowReady}
}

// Health reports database connectivity. It answers 503 when the database is down.
func (hc *HealthController) Health(c *gin.Context) {
	dbStatus := gin.H{"status": "ok"}
	overallStatus := "ok"
	statusCode := http.StatusOK

	if err := db.Ping(hc.db); err != nil {
		dbStatus = gin.H{"status": "error", "error": err.Error()}
		overallStatus = "error"
		statusCode = http.StatusServiceUnavailable
	}

	workflow := "configured"
	if !hc.workflowReady {
		workflow = "log_only"
	}

	c.JSON(statusCode, gin.H{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
		"services": gin.H{
			"database": dbStatus,
			"storage":  gin.H{"backend": hc.storageBackend},
			"workflow": gin.H{"status": workflow},
		},
	})
}
