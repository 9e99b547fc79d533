package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() *TriggerPayload {
	return &TriggerPayload{
		Mode:           ModeURLBased,
		ProjectID:      "p-1",
		ProjectName:    "Smith Residence",
		AnalysisJobID:  "job-1",
		CallbackURL:    "http://localhost:3001/api/webhooks/n8n/analysis-complete",
		CallbackSecret: "secret",
		Folders: []FolderManifest{{
			FolderID:   "f-1",
			FolderName: "Kitchen",
			RoomType:   "kitchen",
			Photos: []PhotoManifest{{
				PhotoID:      "ph-1",
				FileName:     "a.jpg",
				DownloadURL:  "https://files/a.jpg",
				ThumbnailURL: "https://files/thumb-a.jpg",
				MimeType:     "image/jpeg",
			}},
		}},
		TotalPhotos:  1,
		TotalFolders: 1,
	}
}

func TestTriggerPostsPayloadWithAPIKey(t *testing.T) {
	var gotKey, gotType string
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key", time.Second)
	require.NoError(t, c.Trigger(context.Background(), samplePayload()))

	assert.Equal(t, "api-key", gotKey)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "url_based", got["mode"])
	assert.Equal(t, "job-1", got["analysisJobId"])
	assert.EqualValues(t, 1, got["totalPhotos"])
	folders := got["folders"].([]interface{})
	photo := folders[0].(map[string]interface{})["photos"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "https://files/thumb-a.jpg", photo["thumbnailUrl"])
}

func TestTriggerNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("workflow inactive"))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "", time.Second).Trigger(context.Background(), samplePayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "workflow inactive")
}

func TestTriggerNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(url, "", time.Second).Trigger(context.Background(), samplePayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "n8n webhook request failed")
}

func TestTriggerWithoutURLLogsOnly(t *testing.T) {
	c := NewClient("", "", 0)
	assert.False(t, c.Configured())
	assert.NoError(t, c.Trigger(context.Background(), samplePayload()))
}

func TestCallbackPayloadSheetURL(t *testing.T) {
	var p CallbackPayload
	require.NoError(t, json.Unmarshal([]byte(`{"success":true,"analysisJobId":"j","projectId":"p","results":{"sheetUrl":"https://sheet","totalRCV":3000}}`), &p))
	assert.Equal(t, "https://sheet", p.SheetURL())

	empty := CallbackPayload{}
	assert.Equal(t, "", empty.SheetURL())
}
