package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/pkg/jobs"
)

type syncEngineMock struct {
	result      *models.SyncResult
	err         error
	manualCalls int
	resetCursor bool
}

func (m *syncEngineMock) SyncStudentAttendance(_ context.Context, _, _ string) (*models.SyncResult, error) {
	return m.result, m.err
}

func (m *syncEngineMock) SyncOnPageView(_ context.Context, _, _ string) (*models.SyncResult, error) {
	return m.result, m.err
}

func (m *syncEngineMock) ManualSync(_ context.Context, _, _ string, resetCursor bool) (*models.SyncResult, error) {
	m.manualCalls++
	m.resetCursor = resetCursor
	return m.result, m.err
}

type refresherMock struct {
	count int
	err   error
}

func (m *refresherMock) RefreshDirectoryCache(_ context.Context) (int, error) {
	return m.count, m.err
}

type enqueuerMock struct {
	jobs []jobs.Job
	err  error
}

func (m *enqueuerMock) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func postJSON(t *testing.T, handlerFn gin.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	handlerFn(c)
	return w
}

func TestPageViewTrigger(t *testing.T) {
	engine := &syncEngineMock{result: &models.SyncResult{Success: true, NewRecords: 3}}
	handler := NewSyncHandler(engine, &refresherMock{}, &enqueuerMock{})

	w := postJSON(t, handler.PageView, pageViewRequest{UserID: "u1", Email: "avery@example.edu"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"new_records":3`)
}

func TestPageViewTriggerRequiresUserID(t *testing.T) {
	handler := NewSyncHandler(&syncEngineMock{}, &refresherMock{}, &enqueuerMock{})

	w := postJSON(t, handler.PageView, map[string]string{"email": "avery@example.edu"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManualSyncPassesResetCursor(t *testing.T) {
	engine := &syncEngineMock{result: &models.SyncResult{Success: true}}
	handler := NewSyncHandler(engine, &refresherMock{}, &enqueuerMock{})

	w := postJSON(t, handler.ManualSync, manualSyncRequest{UserID: "u1", ResetCursor: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, engine.manualCalls)
	assert.True(t, engine.resetCursor)
}

func TestBulkLinkQueuesItems(t *testing.T) {
	queue := &enqueuerMock{}
	handler := NewSyncHandler(&syncEngineMock{}, &refresherMock{}, queue)

	w := postJSON(t, handler.BulkLink, gin.H{"items": []gin.H{
		{"user_id": "u1", "claims": gin.H{"populi_person_id": "42"}},
		{"user_id": "u2", "claims": gin.H{"populi_person_id": "43"}},
	}})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, queue.jobs, 2)
	assert.Equal(t, "bulk-link", queue.jobs[0].Type)
}

func TestBulkLinkQueueFull(t *testing.T) {
	queue := &enqueuerMock{err: errors.New("queue bulk-link is full")}
	handler := NewSyncHandler(&syncEngineMock{}, &refresherMock{}, queue)

	w := postJSON(t, handler.BulkLink, gin.H{"items": []gin.H{
		{"user_id": "u1", "claims": gin.H{"populi_person_id": "42"}},
	}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
