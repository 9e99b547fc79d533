package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Services  struct {
		Database struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		} `json:"database"`
		Storage struct {
			Backend string `json:"backend"`
		} `json:"storage"`
		Workflow struct {
			Status string `json:"status"`
		} `json:"workflow"`
	} `json:"services"`
}

func main() {
	url := "http://localhost:3001/health"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	fmt.Printf("Checking health endpoint: %s\n", url)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fail("error connecting to health endpoint: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fail("error reading response: %v", err)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		fail("error parsing response (%s): %v", resp.Status, err)
	}

	if resp.StatusCode != http.StatusOK || health.Status != "ok" {
		msg := fmt.Sprintf("health check failed with status %d", resp.StatusCode)
		if health.Services.Database.Error != "" {
			msg += ", database: " + health.Services.Database.Error
		}
		fail("%s", msg)
	}

	fmt.Println("Health check passed")
	fmt.Printf("  Version:   %s\n", health.Version)
	fmt.Printf("  Database:  %s\n", health.Services.Database.Status)
	fmt.Printf("  Storage:   %s\n", health.Services.Storage.Backend)
	fmt.Printf("  Workflow:  %s\n", health.Services.Workflow.Status)
	fmt.Printf("  Timestamp: %s\n", health.Timestamp)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
