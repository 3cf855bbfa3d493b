package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/internal/populi"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
)

type attendancePusher interface {
	GetStudent(ctx context.Context, personID string) (*populi.Student, error)
	ListCourseOfferingStudents(ctx context.Context, offeringID string) ([]populi.EnrolledStudent, error)
	UpdateAttendance(ctx context.Context, offeringID, enrollmentID string, update populi.AttendanceUpdate) error
}

// ReverseSyncService pushes review outcomes back to Populi: an approval turns
// the meeting's status to excused, a rejection restores the original status
// with the reviewer's note attached.
type ReverseSyncService struct {
	client   attendancePusher
	activity *ActivityLog
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewReverseSyncService constructs the reverse-sync service.
func NewReverseSyncService(client attendancePusher, activity *ActivityLog, metrics *MetricsService, logger *zap.Logger) *ReverseSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = NewActivityLog(logger)
	}
	return &ReverseSyncService{client: client, activity: activity, metrics: metrics, logger: logger, now: time.Now}
}

// PushExcused marks the record's meeting as excused in Populi.
func (s *ReverseSyncService) PushExcused(ctx context.Context, record *models.AttendanceRecord) error {
	err := s.push(ctx, record, populi.AttendanceUpdate{Status: "excused"})
	s.metrics.ReversePush("excused", err == nil)
	if err != nil {
		s.activity.Errorf("Failed to push excused status for record %s: %v", record.ID, err)
		return err
	}
	s.activity.Infof("Pushed excused status to Populi for %s %s, %s.", record.FirstName, record.LastName, record.CourseName)
	return nil
}

// PushRejectionNote restores the record's original status in Populi and
// attaches the rejection reason as a timestamped note.
func (s *ReverseSyncService) PushRejectionNote(ctx context.Context, record *models.AttendanceRecord, reason string) error {
	note := fmt.Sprintf("Excuse rejected: %s (%s)", reason, s.now().UTC().Format(meetingTimeLayout))
	if record.Note != "" {
		note = record.Note + " | " + note
	}
	update := populi.AttendanceUpdate{
		Status: strings.ToLower(string(record.Status)),
		Note:   note,
	}

	err := s.push(ctx, record, update)
	s.metrics.ReversePush("rejection", err == nil)
	if err != nil {
		s.activity.Errorf("Failed to push rejection note for record %s: %v", record.ID, err)
		return err
	}
	s.activity.Infof("Pushed rejection note to Populi for %s %s, %s.", record.FirstName, record.LastName, record.CourseName)
	return nil
}

func (s *ReverseSyncService) push(ctx context.Context, record *models.AttendanceRecord, update populi.AttendanceUpdate) error {
	// The meeting must be addressable before any request goes out.
	if record.CourseMeetingID == "" && record.MeetingStartTime == nil {
		return appErrors.Clone(appErrors.ErrValidation, "record identifies neither a course meeting id nor a meeting start time")
	}
	if record.CourseOfferingID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "record carries no course offering id")
	}

	update.CourseMeetingID = record.CourseMeetingID
	if record.MeetingStartTime != nil {
		update.StartTime = record.MeetingStartTime.Format(meetingTimeLayout)
	}

	enrollmentID, err := s.resolveEnrollment(ctx, record)
	if err != nil {
		return err
	}
	return s.client.UpdateAttendance(ctx, record.CourseOfferingID, enrollmentID, update)
}

// resolveEnrollment finds the roster row for the record's student, matching
// person id first, then student id, then the row's own id. The roster walk is
// linear; class sizes keep it small in practice.
func (s *ReverseSyncService) resolveEnrollment(ctx context.Context, record *models.AttendanceRecord) (string, error) {
	studentID := record.PersonID
	if student, err := s.client.GetStudent(ctx, record.PersonID); err != nil {
		s.activity.Warnf("Could not resolve student id for person %s, falling back to person id: %v", record.PersonID, err)
	} else if student.ID.String() != "" {
		studentID = student.ID.String()
	}

	roster, err := s.client.ListCourseOfferingStudents(ctx, record.CourseOfferingID)
	if err != nil {
		return "", err
	}
	s.metrics.RosterScanned(len(roster))

	for _, enrolled := range roster {
		if enrolled.PersonID.String() == record.PersonID {
			return enrolled.ID.String(), nil
		}
	}
	for _, enrolled := range roster {
		if enrolled.StudentID.String() == studentID {
			return enrolled.ID.String(), nil
		}
	}
	for _, enrolled := range roster {
		if enrolled.ID.String() == studentID {
			return enrolled.ID.String(), nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrNotFound,
		fmt.Sprintf("person %s is not enrolled in course offering %s", record.PersonID, record.CourseOfferingID))
}
