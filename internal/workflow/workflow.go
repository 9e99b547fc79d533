// Package workflow talks to the external n8n analysis workflow.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/restorix/backend/internal/logger"
)

// ModeURLBased tells the workflow to fetch photos through signed URLs.
const ModeURLBased = "url_based"

const maxErrorBody = 1024

type PhotoManifest struct {
	PhotoID      string `json:"photoId"`
	FileName     string `json:"fileName"`
	DownloadURL  string `json:"downloadUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	MimeType     string `json:"mimeType"`
}

type FolderManifest struct {
	FolderID   string          `json:"folderId"`
	FolderName string          `json:"folderName"`
	RoomType   string          `json:"roomType"`
	Photos     []PhotoManifest `json:"photos"`
}

// TriggerPayload is POSTed to the workflow webhook to start an analysis.
type TriggerPayload struct {
	Mode           string           `json:"mode"`
	ProjectID      string           `json:"projectId"`
	ProjectName    string           `json:"projectName"`
	AnalysisJobID  string           `json:"analysisJobId"`
	CallbackURL    string           `json:"callbackUrl"`
	CallbackSecret string           `json:"callbackSecret"`
	Folders        []FolderManifest `json:"folders"`
	TotalPhotos    int              `json:"totalPhotos"`
	TotalFolders   int              `json:"totalFolders"`
}

// CallbackPayload is what the workflow sends back when it finishes.
type CallbackPayload struct {
	Success       bool                   `json:"success"`
	AnalysisJobID string                 `json:"analysisJobId"`
	ProjectID     string                 `json:"projectId"`
	Results       map[string]interface{} `json:"results,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// SheetURL returns results.sheetUrl when it is a string.
func (p *CallbackPayload) SheetURL() string {
	if p.Results == nil {
		return ""
	}
	s, _ := p.Results["sheetUrl"].(string)
	return s
}

type Client struct {
	url    string
	apiKey string
	client *http.Client
}

// NewClient builds a client for the webhook at url. An empty url puts the
// client in dry-run mode: payloads are logged instead of sent.
func NewClient(url, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool {
	return c.url != ""
}

// Trigger sends the payload. Any transport failure or non-2xx answer is an error.
func (c *Client) Trigger(ctx context.Context, payload *TriggerPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal trigger payload: %w", err)
	}

	if !c.Configured() {
		logger.Info("N8N_WEBHOOK_URL not configured, logging analysis payload instead of sending", map[string]interface{}{
			"analysis_job_id": payload.AnalysisJobID,
			"project_id":      payload.ProjectID,
			"payload":         string(body),
		})
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("n8n webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	logger.Debug("n8n webhook responded", map[string]interface{}{
		"status":          resp.StatusCode,
		"duration_ms":     time.Since(start).Milliseconds(),
		"analysis_job_id": payload.AnalysisJobID,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("n8n webhook failed: %d %s %s", resp.StatusCode, http.StatusText(resp.StatusCode), bytes.TrimSpace(respBody))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
