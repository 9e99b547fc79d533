package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/restorix/backend/internal/database"
	"github.com/restorix/backend/internal/logger"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [up|down|status]")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	// Load environment variables
	_ = godotenv.Load()
	logger.Initialize(logger.Options{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	conn, err := database.Open(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer conn.Close()

	switch command {
	case "up":
		err = database.Up(ctx, conn)
	case "down":
		err = database.Down(ctx, conn)
	case "status":
		err = database.Status(ctx, conn)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("Migration failed", map[string]interface{}{
			"command": command,
			"error":   err.Error(),
		})
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{"command": command})
}
