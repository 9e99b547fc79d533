package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/restorix/backend/internal/config"
	"github.com/restorix/backend/internal/controllers"
	"github.com/restorix/backend/internal/db"
	"github.com/restorix/backend/internal/logger"
	"github.com/restorix/backend/internal/metrics"
	"github.com/restorix/backend/internal/routes"
	"github.com/restorix/backend/internal/services"
	"github.com/restorix/backend/internal/storage"
	"github.com/restorix/backend/internal/workflow"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Initialize(logger.Options{})
		logger.Fatal("Configuration error", map[string]interface{}{"error": err.Error()})
	}

	logger.Initialize(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables", nil)
	}
	if cfg.UsingDevCallbackSecret {
		logger.Warn("N8N_CALLBACK_SECRET not set, using the development secret", nil)
	}

	conn, err := db.Connect(db.Options{
		Backend:     cfg.DBBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	if err := db.AutoMigrate(conn); err != nil {
		logger.Fatal("Failed to migrate database", map[string]interface{}{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := storage.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialise photo storage", map[string]interface{}{"error": err.Error()})
	}

	m := metrics.New()
	wf := workflow.NewClient(cfg.N8NWebhookURL, cfg.N8NWebhookAPIKey, cfg.N8NTimeout)
	if !wf.Configured() {
		logger.Warn("N8N_WEBHOOK_URL not set, analysis payloads will only be logged", nil)
	}

	auth := services.NewAuthService(conn, services.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessExpiry:  cfg.JWTAccessExpiry,
		RefreshExpiry: cfg.JWTRefreshExpiry,
	})
	analysis := services.NewAnalysisService(conn, store, wf, m, services.AnalysisConfig{
		CallbackURL:    cfg.CallbackURL(),
		CallbackSecret: cfg.N8NCallbackSecret,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	controllers.HideInternalErrors(cfg.IsProduction())

	r := routes.NewRouter(routes.Deps{
		DB:             conn,
		Metrics:        m,
		Auth:           auth,
		Projects:       services.NewProjectService(conn, store, m),
		Folders:        services.NewFolderService(conn, store, m),
		Photos:         services.NewPhotoService(conn, store, m),
		Analysis:       analysis,
		FrontendURL:    cfg.FrontendURL,
		StorageBackend: cfg.StorageBackend,
		WorkflowReady:  wf.Configured(),
	})

	sweeper := services.NewAnalysisSweeper(conn, cfg.AnalysisStaleAfter, cfg.AnalysisSweepPeriod, m)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting Restorix backend server", map[string]interface{}{
		"port":     cfg.Port,
		"env":      cfg.Env,
		"storage":  cfg.StorageBackend,
		"gin_mode": gin.Mode(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server gracefully...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	<-sweeperDone
	logger.Info("Server exited gracefully", nil)
}
