package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/logger"
	"github.com/restorix/backend/internal/models"
	"github.com/restorix/backend/internal/signature"
	"github.com/restorix/backend/internal/workflow"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCallbackSecret = "callback-secret"

type recordingDispatcher struct {
	mu       sync.Mutex
	payloads []*workflow.TriggerPayload
	err      error
}

func (d *recordingDispatcher) Trigger(ctx context.Context, p *workflow.TriggerPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, p)
	return d.err
}

type analysisFixture struct {
	*fixture
	svc     *AnalysisService
	owner   *models.User
	project *models.Project
}

func newAnalysisFixture(t *testing.T, d Dispatcher) *analysisFixture {
	t.Helper()
	f := newFixture(t)
	owner := f.user(t, "owner@x.co")
	project := f.project(t, owner.ID, "Smith Residence")
	svc := NewAnalysisService(f.db, f.store, d, nil, AnalysisConfig{
		CallbackURL:    "https://api.test/api/webhooks/n8n/analysis-complete",
		CallbackSecret: testCallbackSecret,
	})
	return &analysisFixture{fixture: f, svc: svc, owner: owner, project: project}
}

// withPhotos adds two folders holding three and two photos.
func (a *analysisFixture) withPhotos(t *testing.T) {
	t.Helper()
	kitchen := a.folder(t, a.project.ID, "Kitchen", 0)
	require.NoError(t, a.db.Model(kitchen).Update("room_type", "kitchen").Error)
	bath := a.folder(t, a.project.ID, "Bath", 1)
	a.folder(t, a.project.ID, "Empty", 2)
	for _, n := range []string{"k1.jpg", "k2.jpg", "k3.jpg"} {
		a.photo(t, kitchen, n)
	}
	for _, n := range []string{"b1.jpg", "b2.jpg"} {
		a.photo(t, bath, n)
	}
}

func (a *analysisFixture) job(t *testing.T, id string) models.AnalysisJob {
	t.Helper()
	var job models.AnalysisJob
	require.NoError(t, a.db.First(&job, "id = ?", id).Error)
	return job
}

func (a *analysisFixture) projectStatus(t *testing.T) models.ProjectStatus {
	t.Helper()
	var p models.Project
	require.NoError(t, a.db.First(&p, "id = ?", a.project.ID).Error)
	return p.Status
}

func TestTriggerAnalysisHappyPath(t *testing.T) {
	d := &recordingDispatcher{}
	a := newAnalysisFixture(t, d)
	a.withPhotos(t)
	require.NoError(t, a.db.Model(&models.Photo{}).Where("original_name = ?", "k1.jpg").Update("file_name", "3f9a1c.jpg").Error)

	res, err := a.svc.TriggerAnalysis(testCtx(), a.project.ID, a.owner.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.AnalysisStatusTriggered, res.Status)
	assert.Equal(t, 50, res.EstimatedDuration)
	assert.Equal(t, "Analysis triggered for 5 photos across 2 folders", res.Message)

	require.Len(t, d.payloads, 1)
	p := d.payloads[0]
	assert.Equal(t, workflow.ModeURLBased, p.Mode)
	assert.Equal(t, res.JobID, p.AnalysisJobID)
	assert.Equal(t, "Smith Residence", p.ProjectName)
	assert.Equal(t, testCallbackSecret, p.CallbackSecret)
	assert.Equal(t, 5, p.TotalPhotos)
	assert.Equal(t, 2, p.TotalFolders)
	require.Len(t, p.Folders, 2)
	assert.Equal(t, "Kitchen", p.Folders[0].FolderName)
	assert.Equal(t, "kitchen", p.Folders[0].RoomType)
	assert.Equal(t, models.DefaultRoomType, p.Folders[1].RoomType)
	assert.Len(t, p.Folders[0].Photos, 3)
	assert.Equal(t, "3f9a1c.jpg", p.Folders[0].Photos[0].FileName)
	assert.Contains(t, p.Folders[0].Photos[0].ThumbnailURL, "thumbnails/")

	job := a.job(t, res.JobID)
	assert.Equal(t, models.AnalysisStatusTriggered, job.Status)
	assert.NotNil(t, job.TriggeredAt)
	assert.Equal(t, models.ProjectStatusProcessing, a.projectStatus(t))
}

func TestTriggerAnalysisPreconditions(t *testing.T) {
	a := newAnalysisFixture(t, &recordingDispatcher{})

	_, err := a.svc.TriggerAnalysis(testCtx(), "missing", a.owner.ID)
	assert.True(t, apperrors.Is(err, "PROJECT_NOT_FOUND"))

	stranger := a.user(t, "stranger@x.co")
	_, err = a.svc.TriggerAnalysis(testCtx(), a.project.ID, stranger.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	a.folder(t, a.project.ID, "Empty", 0)
	_, err = a.svc.TriggerAnalysis(testCtx(), a.project.ID, a.owner.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNoPhotos))

	var n int64
	require.NoError(t, a.db.Model(&models.AnalysisJob{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestTriggerAnalysisAlreadyRunning(t *testing.T) {
	a := newAnalysisFixture(t, &recordingDispatcher{})
	a.withPhotos(t)

	_, err := a.svc.TriggerAnalysis(testCtx(), a.project.ID, a.owner.ID)
	require.NoError(t, err)

	_, err = a.svc.TriggerAnalysis(testCtx(), a.project.ID, a.owner.ID)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeAlreadyRunning, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status())

	var n int64
	require.NoError(t, a.db.Model(&models.AnalysisJob{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestTriggerAnalysisWebhookFailureFailsJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow inactive", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newAnalysisFixture(t, workflow.NewClient(srv.URL, "key", 5*time.Second))
	a.withPhotos(t)

	_, err := a.svc.TriggerAnalysis(testCtx(), a.project.ID, a.owner.ID)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeTriggerFailed, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.Status())
	assert.Contains(t, appErr.Message, "500")

	var jobs []models.AnalysisJob
	require.NoError(t, a.db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.AnalysisStatusFailed, jobs[0].Status)
	require.NotNil(t, jobs[0].ErrorMessage)
	assert.Contains(t, *jobs[0].ErrorMessage, "n8n webhook failed: 500")
	assert.NotNil(t, jobs[0].CompletedAt)
	assert.Equal(t, models.ProjectStatusDraft, a.projectStatus(t))

	// A failed trigger does not block the next attempt.
	a.svc.dispatcher = &recordingDispatcher{}
	_, err = a.svc.TriggerAnalysis(testCtx(), a.project.ID, a.owner.ID)
	require.NoError(t, err)
}

func TestTriggerAnalysisSigningFailureFailsJob(t *testing.T) {
	d := &recordingDispatcher{}
	a := newAnalysisFixture(t, d)
	a.withPhotos(t)
	a.store.FailSign = func(string) error { return errors.New("credentials expired") }

	_, err := a.svc.TriggerAnalysis(testCtx(), a.project.ID, a.owner.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeTriggerFailed))
	assert.Empty(t, d.payloads)

	var job models.AnalysisJob
	require.NoError(t, a.db.First(&job).Error)
	assert.Equal(t, models.AnalysisStatusFailed, job.Status)
}

func TestTriggerAnalysisSendsAPIKey(t *testing.T) {
	var gotKey string
	var got workflow.TriggerPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newAnalysisFixture(t, workflow.NewClient(srv.URL, "n8n-key", 5*time.Second))
	a.withPhotos(t)

	res, err := a.svc.TriggerAnalysis(testCtx(), a.project.ID, a.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "n8n-key", gotKey)
	assert.Equal(t, res.JobID, got.AnalysisJobID)
	assert.Equal(t, "https://api.test/api/webhooks/n8n/analysis-complete", got.CallbackURL)
}

func signedCallback(t *testing.T, payload interface{}) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body, signature.Sign(testCallbackSecret, body)
}

func triggeredJob(t *testing.T, a *analysisFixture) string {
	t.Helper()
	a.withPhotos(t)
	res, err := a.svc.TriggerAnalysis(testCtx(), a.project.ID, a.owner.ID)
	require.NoError(t, err)
	return res.JobID
}

func TestCallbackSuccess(t *testing.T) {
	a := newAnalysisFixture(t, &recordingDispatcher{})
	jobID := triggeredJob(t, a)

	body, sig := signedCallback(t, map[string]interface{}{
		"success":       true,
		"analysisJobId": jobID,
		"projectId":     a.project.ID,
		"results":       map[string]interface{}{"totalRCV": 3000, "sheetUrl": "https://sheets.test/1"},
	})
	require.NoError(t, a.svc.ProcessAnalysisCallback(testCtx(), body, sig))

	job := a.job(t, jobID)
	assert.Equal(t, models.AnalysisStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, float64(3000), job.ResultsSummary["totalRCV"])
	require.NotNil(t, job.SheetURL)
	assert.Equal(t, "https://sheets.test/1", *job.SheetURL)
	assert.Equal(t, models.ProjectStatusCompleted, a.projectStatus(t))
}

func TestCallbackFailure(t *testing.T) {
	a := newAnalysisFixture(t, &recordingDispatcher{})
	jobID := triggeredJob(t, a)

	body, sig := signedCallback(t, map[string]interface{}{
		"success":       false,
		"analysisJobId": jobID,
		"projectId":     a.project.ID,
		"error":         "vision API timeout",
	})
	require.NoError(t, a.svc.ProcessAnalysisCallback(testCtx(), body, sig))

	job := a.job(t, jobID)
	assert.Equal(t, models.AnalysisStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "vision API timeout", *job.ErrorMessage)
	assert.Equal(t, models.ProjectStatusReady, a.projectStatus(t))
}

func TestCallbackSuccessWithoutResultsFails(t *testing.T) {
	a := newAnalysisFixture(t, &recordingDispatcher{})
	jobID := triggeredJob(t, a)

	body, sig := signedCallback(t, map[string]interface{}{"success": true, "analysisJobId": jobID})
	require.NoError(t, a.svc.ProcessAnalysisCallback(testCtx(), body, sig))

	job := a.job(t, jobID)
	assert.Equal(t, models.AnalysisStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "Analysis failed", *job.ErrorMessage)
}

func TestCallbackIsIdempotent(t *testing.T) {
	a := newAnalysisFixture(t, &recordingDispatcher{})
	jobID := triggeredJob(t, a)

	body, sig := signedCallback(t, map[string]interface{}{
		"success":       true,
		"analysisJobId": jobID,
		"results":       map[string]interface{}{"totalRCV": 1},
	})
	require.NoError(t, a.svc.ProcessAnalysisCallback(testCtx(), body, sig))
	first := a.job(t, jobID)

	late, lateSig := signedCallback(t, map[string]interface{}{
		"success":       false,
		"analysisJobId": jobID,
		"error":         "late failure",
	})
	require.NoError(t, a.svc.ProcessAnalysisCallback(testCtx(), late, lateSig))

	second := a.job(t, jobID)
	assert.Equal(t, models.AnalysisStatusCompleted, second.Status)
	assert.Nil(t, second.ErrorMessage)
	assert.Equal(t, first.CompletedAt.UnixNano(), second.CompletedAt.UnixNano())
	assert.Equal(t, models.ProjectStatusCompleted, a.projectStatus(t))
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	a := newAnalysisFixture(t, &recordingDispatcher{})
	jobID := triggeredJob(t, a)

	body, sig := signedCallback(t, map[string]interface{}{
		"success":       true,
		"analysisJobId": jobID,
		"results":       map[string]interface{}{},
	})
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = ' '

	for name, tc := range map[string]struct {
		body []byte
		sig  string
	}{
		"tampered body": {tampered, sig},
		"empty":         {body, ""},
		"not hex":       {body, "zz"},
		"short":         {body, sig[:10]},
	} {
		t.Run(name, func(t *testing.T) {
			err := a.svc.ProcessAnalysisCallback(testCtx(), tc.body, tc.sig)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.CodeForbidden, appErr.Code)
			assert.Equal(t, "Invalid webhook signature", appErr.Message)
		})
	}
	assert.Equal(t, models.AnalysisStatusTriggered, a.job(t, jobID).Status)

	require.NoError(t, a.svc.ProcessAnalysisCallback(testCtx(), body, signature.Prefix+sig))
	assert.Equal(t, models.AnalysisStatusCompleted, a.job(t, jobID).Status)
}

func TestCallbackPayloadErrors(t *testing.T) {
	a := newAnalysisFixture(t, &recordingDispatcher{})
	hook := logtest.NewLocal(logger.GetLogger())
	defer hook.Reset()

	body := []byte("{not json")
	err := a.svc.ProcessAnalysisCallback(testCtx(), body, signature.Sign(testCallbackSecret, body))
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "{not json", entry.Data["payload"])

	body, sig := signedCallback(t, map[string]interface{}{"success": true})
	err = a.svc.ProcessAnalysisCallback(testCtx(), body, sig)
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	entry = hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, string(body), entry.Data["payload"])

	body, sig = signedCallback(t, map[string]interface{}{"success": true, "analysisJobId": "nope"})
	err = a.svc.ProcessAnalysisCallback(testCtx(), body, sig)
	assert.True(t, apperrors.Is(err, "ANALYSISJOB_NOT_FOUND"))
}

func TestAnalysisQueries(t *testing.T) {
	a := newAnalysisFixture(t, &recordingDispatcher{})
	older := &models.AnalysisJob{ProjectID: a.project.ID, Status: models.AnalysisStatusFailed}
	require.NoError(t, a.db.Create(older).Error)
	time.Sleep(2 * time.Millisecond)
	newer := &models.AnalysisJob{ProjectID: a.project.ID, Status: models.AnalysisStatusCompleted}
	require.NoError(t, a.db.Create(newer).Error)

	job, err := a.svc.GetAnalysisJob(testCtx(), newer.ID, a.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusCompleted, job.Status)

	stranger := a.user(t, "s@x.co")
	_, err = a.svc.GetAnalysisJob(testCtx(), newer.ID, stranger.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	_, err = a.svc.GetAnalysisJob(testCtx(), "missing", a.owner.ID)
	assert.True(t, apperrors.Is(err, "ANALYSISJOB_NOT_FOUND"))

	jobs, err := a.svc.GetProjectAnalysisJobs(testCtx(), a.project.ID, a.owner.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, newer.ID, jobs[0].ID)

	_, err = a.svc.GetProjectAnalysisJobs(testCtx(), a.project.ID, stranger.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	latest, err := latestProjectJob(testCtx(), a.db, a.project.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	none, err := latestProjectJob(testCtx(), a.db, "other")
	require.NoError(t, err)
	assert.Nil(t, none)
}
