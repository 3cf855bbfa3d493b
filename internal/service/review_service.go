package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pbcdev/attend-sync/internal/models"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
)

type reviewRecordStore interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	Update(ctx context.Context, id string, update models.RecordUpdate) error
}

type reviewLinkStore interface {
	FindByUserID(ctx context.Context, userID string) (*models.StudentLink, error)
}

type decisionPusher interface {
	PushExcused(ctx context.Context, record *models.AttendanceRecord) error
	PushRejectionNote(ctx context.Context, record *models.AttendanceRecord, reason string) error
}

// SubmitNoteRequest is a student's excuse note on an attendance record.
type SubmitNoteRequest struct {
	Note string `json:"note" validate:"required,min=3,max=1000"`
}

// DecisionRequest is a reviewer's verdict on a record under review.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Reason   string `json:"reason" validate:"max=1000"`
}

// DecisionResult is the applied verdict plus the outcome of the relay to
// Populi. A failed push never rolls the local decision back.
type DecisionResult struct {
	Record    *models.AttendanceRecord `json:"record"`
	Pushed    bool                     `json:"pushed"`
	PushError string                   `json:"push_error,omitempty"`
}

// ReviewService drives the excuse workflow: a student attaches a note to an
// absence, a reviewer approves or rejects it, and the decision is relayed to
// Populi. Decisions are terminal.
type ReviewService struct {
	records  reviewRecordStore
	links    reviewLinkStore
	pusher   decisionPusher
	validate *validator.Validate
	activity *ActivityLog
	logger   *zap.Logger
}

// NewReviewService constructs the review service.
func NewReviewService(records reviewRecordStore, links reviewLinkStore, pusher decisionPusher, activity *ActivityLog, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = NewActivityLog(logger)
	}
	return &ReviewService{
		records:  records,
		links:    links,
		pusher:   pusher,
		validate: validator.New(),
		activity: activity,
		logger:   logger,
	}
}

// SubmitNote attaches a student's excuse note to their own pending record and
// moves it into review.
func (s *ReviewService) SubmitNote(ctx context.Context, userID, recordID string, req SubmitNoteRequest) (*models.AttendanceRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note")
	}

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	link, err := s.links.FindByUserID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load student link")
	}
	if link == nil || link.PersonID == "" || link.PersonID != record.PersonID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "record belongs to another student")
	}

	if record.ReviewStatus != models.ReviewStatusPending && record.ReviewStatus != "" {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("record is already %s", record.ReviewStatus))
	}

	note := strings.TrimSpace(req.Note)
	status := models.ReviewStatusReview
	if err := s.records.Update(ctx, recordID, models.RecordUpdate{Note: &note, ReviewStatus: &status}); err != nil {
		return nil, s.updateError(err)
	}

	record.Note = note
	record.ReviewStatus = status
	s.activity.Infof("Excuse note submitted for %s %s, %s.", record.FirstName, record.LastName, record.CourseName)
	return record, nil
}

// Decide applies a reviewer's verdict. The local decision persists even when
// the follow-up push to Populi fails; the push can be retried from Populi's
// side without disturbing the workflow state.
func (s *ReviewService) Decide(ctx context.Context, recordID string, req DecisionRequest) (*DecisionResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision")
	}
	decision := models.ReviewStatus(req.Decision)
	reason := strings.TrimSpace(req.Reason)
	if decision == models.ReviewStatusRejected && reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection requires a reason")
	}

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.ReviewStatus.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("record is already %s", record.ReviewStatus))
	}

	update := models.RecordUpdate{ReviewStatus: &decision}
	switch decision {
	case models.ReviewStatusApproved:
		empty := ""
		update.RejectionReason = &empty
	case models.ReviewStatusRejected:
		update.RejectionReason = &reason
	}
	if err := s.records.Update(ctx, recordID, update); err != nil {
		return nil, s.updateError(err)
	}

	result := &DecisionResult{Record: record, Pushed: true}
	switch decision {
	case models.ReviewStatusApproved:
		s.activity.Infof("Excuse approved for %s %s, %s.", record.FirstName, record.LastName, record.CourseName)
		if err := s.pusher.PushExcused(ctx, record); err != nil {
			s.logger.Warn("excused push failed after approval", zap.String("record_id", recordID), zap.Error(err))
			result.Pushed = false
			result.PushError = err.Error()
		}
	case models.ReviewStatusRejected:
		s.activity.Infof("Excuse rejected for %s %s, %s.", record.FirstName, record.LastName, record.CourseName)
		if err := s.pusher.PushRejectionNote(ctx, record, reason); err != nil {
			s.logger.Warn("rejection push failed", zap.String("record_id", recordID), zap.Error(err))
			result.Pushed = false
			result.PushError = err.Error()
		}
		record.RejectionReason = reason
	}

	record.ReviewStatus = decision
	return result, nil
}

func (s *ReviewService) loadRecord(ctx context.Context, recordID string) (*models.AttendanceRecord, error) {
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load attendance record")
	}
	return record, nil
}

func (s *ReviewService) updateError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update attendance record")
}
