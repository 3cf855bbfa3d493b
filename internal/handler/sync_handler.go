package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/internal/service"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
	"github.com/pbcdev/attend-sync/pkg/jobs"
	"github.com/pbcdev/attend-sync/pkg/response"
)

type syncEngine interface {
	SyncStudentAttendance(ctx context.Context, userID, email string) (*models.SyncResult, error)
	SyncOnPageView(ctx context.Context, userID, email string) (*models.SyncResult, error)
	ManualSync(ctx context.Context, userID, email string, resetCursor bool) (*models.SyncResult, error)
}

type directoryRefresher interface {
	RefreshDirectoryCache(ctx context.Context) (int, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SyncHandler exposes the sync trigger surface. These endpoints are consumed
// by the student portal backend, which vouches for the user ids it sends.
type SyncHandler struct {
	sync  syncEngine
	links directoryRefresher
	queue jobEnqueuer
}

// NewSyncHandler creates a new handler.
func NewSyncHandler(sync syncEngine, links directoryRefresher, queue jobEnqueuer) *SyncHandler {
	return &SyncHandler{sync: sync, links: links, queue: queue}
}

type pageViewRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Email  string `json:"email"`
}

type manualSyncRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Email       string `json:"email"`
	ResetCursor bool   `json:"reset_cursor"`
}

type bulkLinkRequest struct {
	Items []service.BatchLinkItem `json:"items" binding:"required,min=1"`
}

// Login godoc
// @Summary Sign-in trigger
// @Description Run an incremental attendance sync when a student signs in
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body pageViewRequest true "Trigger payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /triggers/login [post]
func (h *SyncHandler) Login(c *gin.Context) {
	var req pageViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid trigger payload"))
		return
	}

	result, err := h.sync.SyncStudentAttendance(c.Request.Context(), req.UserID, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// PageView godoc
// @Summary Attendance page-view trigger
// @Description Run an incremental attendance sync for a student, debounced per user
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body pageViewRequest true "Trigger payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /triggers/page-view [post]
func (h *SyncHandler) PageView(c *gin.Context) {
	var req pageViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid trigger payload"))
		return
	}

	result, err := h.sync.SyncOnPageView(c.Request.Context(), req.UserID, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// ManualSync godoc
// @Summary Operator-triggered sync
// @Description Run a sync for a student, optionally ignoring the incremental watermark
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body manualSyncRequest true "Trigger payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /triggers/manual-sync [post]
func (h *SyncHandler) ManualSync(c *gin.Context) {
	var req manualSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid trigger payload"))
		return
	}

	result, err := h.sync.ManualSync(c.Request.Context(), req.UserID, req.Email, req.ResetCursor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// DirectoryRefresh godoc
// @Summary Rebuild the student directory cache
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /triggers/directory-refresh [post]
func (h *SyncHandler) DirectoryRefresh(c *gin.Context) {
	count, err := h.links.RefreshDirectoryCache(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"cached_students": count}, nil)
}

// BulkLink godoc
// @Summary Queue bulk identity linking
// @Description Enqueue SSO attribute captures for a batch of users
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body bulkLinkRequest true "Batch payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /triggers/bulk-link [post]
func (h *SyncHandler) BulkLink(c *gin.Context) {
	var req bulkLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}

	queued := 0
	for _, item := range req.Items {
		job := jobs.Job{ID: uuid.NewString(), Type: "bulk-link", Payload: item}
		if err := h.queue.Enqueue(job); err != nil {
			response.Error(c, appErrors.Wrap(err, "QUEUE_FULL", http.StatusServiceUnavailable, "bulk-link queue is full"))
			return
		}
		queued++
	}

	response.Accepted(c, gin.H{"queued": queued})
}
