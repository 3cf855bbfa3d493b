package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/internal/populi"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
)

type pushCall struct {
	offeringID   string
	enrollmentID string
	update       populi.AttendanceUpdate
}

type stubPusher struct {
	student    *populi.Student
	studentErr error
	roster     []populi.EnrolledStudent
	rosterErr  error
	pushErr    error
	pushes     []pushCall
}

func (s *stubPusher) GetStudent(_ context.Context, _ string) (*populi.Student, error) {
	return s.student, s.studentErr
}

func (s *stubPusher) ListCourseOfferingStudents(_ context.Context, _ string) ([]populi.EnrolledStudent, error) {
	return s.roster, s.rosterErr
}

func (s *stubPusher) UpdateAttendance(_ context.Context, offeringID, enrollmentID string, update populi.AttendanceUpdate) error {
	s.pushes = append(s.pushes, pushCall{offeringID: offeringID, enrollmentID: enrollmentID, update: update})
	return s.pushErr
}

func newTestReverseSync(pusher *stubPusher) *ReverseSyncService {
	svc := NewReverseSyncService(pusher, NewActivityLog(zap.NewNop()), nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func excusableRecord() *models.AttendanceRecord {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return &models.AttendanceRecord{
		ID:               "rec-1",
		PersonID:         "42",
		CourseOfferingID: "901",
		CourseMeetingID:  "12",
		MeetingStartTime: &start,
		FirstName:        "Avery",
		LastName:         "Nguyen",
		CourseName:       "Systematic Theology I",
		Status:           models.AttendanceStatusAbsent,
	}
}

func TestPushExcused(t *testing.T) {
	pusher := &stubPusher{
		student: &populi.Student{ID: "5042"},
		roster: []populi.EnrolledStudent{
			{ID: "enr-1", PersonID: "7", StudentID: "5007"},
			{ID: "enr-2", PersonID: "42", StudentID: "5042"},
		},
	}
	svc := newTestReverseSync(pusher)

	err := svc.PushExcused(context.Background(), excusableRecord())
	require.NoError(t, err)
	require.Len(t, pusher.pushes, 1)

	call := pusher.pushes[0]
	assert.Equal(t, "901", call.offeringID)
	assert.Equal(t, "enr-2", call.enrollmentID)
	assert.Equal(t, "excused", call.update.Status)
	assert.Equal(t, "12", call.update.CourseMeetingID)
	assert.Equal(t, "2026-03-10 09:00:00", call.update.StartTime)
	assert.Empty(t, call.update.Note)
}

func TestPushRejectionNote(t *testing.T) {
	pusher := &stubPusher{
		student: &populi.Student{ID: "5042"},
		roster:  []populi.EnrolledStudent{{ID: "enr-2", PersonID: "42", StudentID: "5042"}},
	}
	svc := newTestReverseSync(pusher)

	record := excusableRecord()
	record.Note = "left early"
	err := svc.PushRejectionNote(context.Background(), record, "no documentation provided")
	require.NoError(t, err)
	require.Len(t, pusher.pushes, 1)

	call := pusher.pushes[0]
	assert.Equal(t, "absent", call.update.Status)
	assert.Equal(t, "left early | Excuse rejected: no documentation provided (2026-03-15 12:00:00)", call.update.Note)
}

func TestPushRequiresMeetingIdentity(t *testing.T) {
	pusher := &stubPusher{}
	svc := newTestReverseSync(pusher)

	record := excusableRecord()
	record.CourseMeetingID = ""
	record.MeetingStartTime = nil

	err := svc.PushExcused(context.Background(), record)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, pusher.pushes)
}

func TestPushFallsBackToStudentIDMatch(t *testing.T) {
	pusher := &stubPusher{
		student: &populi.Student{ID: "5042"},
		roster: []populi.EnrolledStudent{
			{ID: "enr-9", PersonID: "999", StudentID: "5042"},
		},
	}
	svc := newTestReverseSync(pusher)

	err := svc.PushExcused(context.Background(), excusableRecord())
	require.NoError(t, err)
	require.Len(t, pusher.pushes, 1)
	assert.Equal(t, "enr-9", pusher.pushes[0].enrollmentID)
}

func TestPushSurvivesStudentLookupFailure(t *testing.T) {
	pusher := &stubPusher{
		studentErr: appErrors.Clone(appErrors.ErrUpstream, "populi returned 500"),
		roster:     []populi.EnrolledStudent{{ID: "enr-2", PersonID: "42"}},
	}
	svc := newTestReverseSync(pusher)

	err := svc.PushExcused(context.Background(), excusableRecord())
	require.NoError(t, err)
	require.Len(t, pusher.pushes, 1)
	assert.Equal(t, "enr-2", pusher.pushes[0].enrollmentID)
}

func TestPushUnenrolledStudent(t *testing.T) {
	pusher := &stubPusher{
		student: &populi.Student{ID: "5042"},
		roster:  []populi.EnrolledStudent{{ID: "enr-1", PersonID: "7", StudentID: "5007"}},
	}
	svc := newTestReverseSync(pusher)

	err := svc.PushExcused(context.Background(), excusableRecord())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, pusher.pushes)
}
