package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/restorix/backend/internal/logger"
	"github.com/restorix/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

type Options struct {
	Backend     string // postgres or sqlite
	DatabaseURL string
	SQLitePath  string
}

// Connect opens the database and stores the handle in DB.
func Connect(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Backend {
	case "postgres":
		dialector = postgres.Open(opts.DatabaseURL)
	case "sqlite":
		dialector = sqlite.Open(opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database backend %q", opts.Backend)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(
			logger.WithContext(map[string]interface{}{"component": "gorm"}),
			gormlogger.Config{
				SlowThreshold:             500 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.Backend == "sqlite" {
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		// sqlite serialises writers; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}

	DB = conn
	logger.Info("Database connected successfully", map[string]interface{}{
		"backend": opts.Backend,
	})
	return conn, nil
}

// activeJobIndex enforces one non-terminal analysis job per project.
const activeJobIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_analysis_jobs_active_project
	ON analysis_jobs (project_id)
	WHERE status IN ('PENDING', 'TRIGGERED', 'PROCESSING')`

// AutoMigrate creates or updates the schema for all models.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.Folder{},
		&models.Photo{},
		&models.AnalysisJob{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := conn.Exec(activeJobIndex).Error; err != nil {
		return fmt.Errorf("create active job index: %w", err)
	}

	logger.Info("All database migrations completed successfully", nil)
	return nil
}

// Ping checks that the database answers.
func Ping(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("database connection not initialized")
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
