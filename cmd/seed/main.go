package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/config"
	"github.com/restorix/backend/internal/db"
	"github.com/restorix/backend/internal/logger"
	"github.com/restorix/backend/internal/services"
	"github.com/restorix/backend/internal/storage"
)

type FolderData struct {
	Name     string  `json:"name"`
	RoomType *string `json:"roomType"`
}

type ProjectData struct {
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Folders     []FolderData `json:"folders"`
}

// UserData represents the structure of users in the JSON file
type UserData struct {
	Email    string        `json:"email"`
	Password string        `json:"password"`
	Name     string        `json:"name"`
	Projects []ProjectData `json:"projects"`
}

// JSONData represents the structure of the JSON files
type JSONData struct {
	Users []UserData `json:"users"`
}

type seeder struct {
	auth     *services.AuthService
	projects *services.ProjectService
	folders  *services.FolderService
}

func main() {
	file := flag.String("file", "data/initial-users.json", "seed data file")
	flag.Parse()

	// Load environment variables
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Initialize(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

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

	ctx := context.Background()
	store, err := storage.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialise photo storage", map[string]interface{}{"error": err.Error()})
	}

	s := &seeder{
		auth: services.NewAuthService(conn, services.TokenConfig{
			AccessSecret:  cfg.JWTSecret,
			RefreshSecret: cfg.JWTRefreshSecret,
			AccessExpiry:  cfg.JWTAccessExpiry,
			RefreshExpiry: cfg.JWTRefreshExpiry,
		}),
		projects: services.NewProjectService(conn, store, nil),
		folders:  services.NewFolderService(conn, store, nil),
	}

	if err := s.seedUsers(ctx, *file); err != nil {
		logger.Fatal("Database seeding failed", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("Database seeding completed successfully", nil)
}

func (s *seeder) seedUsers(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	for _, u := range data.Users {
		res, err := s.auth.Register(ctx, services.RegisterInput{
			Email:    u.Email,
			Password: u.Password,
			Name:     u.Name,
		})
		if apperrors.Is(err, apperrors.CodeConflict) {
			logger.Info("User already exists, skipping", map[string]interface{}{"email": u.Email})
			continue
		}
		if err != nil {
			return fmt.Errorf("create user %s: %w", u.Email, err)
		}
		logger.Info("Created user", map[string]interface{}{"email": u.Email})

		for _, p := range u.Projects {
			if err := s.seedProject(ctx, res.User.ID, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *seeder) seedProject(ctx context.Context, userID string, p ProjectData) error {
	project, err := s.projects.CreateProject(ctx, userID, services.CreateProjectInput{
		Name:        p.Name,
		Description: p.Description,
	})
	if err != nil {
		return fmt.Errorf("create project %s: %w", p.Name, err)
	}
	for _, f := range p.Folders {
		if _, err := s.folders.CreateFolder(ctx, userID, project.ID, services.CreateFolderInput{
			Name:     f.Name,
			RoomType: f.RoomType,
		}); err != nil {
			return fmt.Errorf("create folder %s: %w", f.Name, err)
		}
	}
	logger.Info("Created project", map[string]interface{}{
		"project_id": project.ID,
		"folders":    len(p.Folders),
	})
	return nil
}
