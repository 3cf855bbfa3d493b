package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/internal/service"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
	"github.com/pbcdev/attend-sync/pkg/response"
)

type recordReader interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, int, error)
}

type reviewWorkflow interface {
	SubmitNote(ctx context.Context, userID, recordID string, req service.SubmitNoteRequest) (*models.AttendanceRecord, error)
	Decide(ctx context.Context, recordID string, req service.DecisionRequest) (*service.DecisionResult, error)
}

type sheetExporter interface {
	Export(ctx context.Context, format service.ExportFormat, filter models.RecordFilter) (*service.ExportResult, error)
}

// RecordHandler serves imported attendance records and the review workflow.
type RecordHandler struct {
	records recordReader
	review  reviewWorkflow
	export  sheetExporter
}

// NewRecordHandler creates a new handler.
func NewRecordHandler(records recordReader, review reviewWorkflow, exportSvc sheetExporter) *RecordHandler {
	return &RecordHandler{records: records, review: review, export: exportSvc}
}

func recordFilterFromQuery(c *gin.Context) models.RecordFilter {
	filter := models.RecordFilter{
		PersonID:  c.Query("person_id"),
		TermName:  c.Query("term"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if v := c.Query("review_status"); v != "" {
		status := models.ReviewStatus(v)
		filter.ReviewStatus = &status
	}
	if v := c.Query("status"); v != "" {
		status := models.AttendanceStatus(v)
		filter.Status = &status
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	return filter
}

// List godoc
// @Summary List attendance records
// @Description List imported attendance records with filters and pagination
// @Tags Records
// @Produce json
// @Param person_id query string false "Populi person id"
// @Param review_status query string false "Review state filter"
// @Param status query string false "Attendance status filter"
// @Param term query string false "Term name filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /records [get]
func (h *RecordHandler) List(c *gin.Context) {
	filter := recordFilterFromQuery(c)

	records, total, err := h.records.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Fetch one attendance record
// @Tags Records
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	record, err := h.records.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load attendance record"))
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Export godoc
// @Summary Export attendance records
// @Description Render filtered records as a CSV or PDF review sheet
// @Tags Records
// @Produce text/csv
// @Produce application/pdf
// @Param format query string true "csv or pdf"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /records/export [get]
func (h *RecordHandler) Export(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	filter := recordFilterFromQuery(c)

	result, err := h.export.Export(c.Request.Context(), format, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

type submitNotePayload struct {
	UserID string `json:"user_id" binding:"required"`
	Note   string `json:"note" binding:"required"`
}

// SubmitNote godoc
// @Summary Submit an excuse note
// @Description Attach a student's excuse note to their own record and move it into review
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body submitNotePayload true "Note payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /records/{id}/note [post]
func (h *RecordHandler) SubmitNote(c *gin.Context) {
	var payload submitNotePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid note payload"))
		return
	}

	record, err := h.review.SubmitNote(c.Request.Context(), payload.UserID, c.Param("id"), service.SubmitNoteRequest{Note: payload.Note})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Decide godoc
// @Summary Decide on an excuse
// @Description Approve or reject a record under review and relay the outcome to Populi
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body service.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /records/{id}/review [post]
func (h *RecordHandler) Decide(c *gin.Context) {
	var req service.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	result, err := h.review.Decide(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
