package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/internal/populi"
	"github.com/pbcdev/attend-sync/internal/repository"
	"github.com/pbcdev/attend-sync/pkg/config"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
)

// meetingTimeLayout is the datetime layout Populi uses in report rows.
const meetingTimeLayout = "2006-01-02 15:04:05"

type recordStore interface {
	FindByRowID(ctx context.Context, rowID string) (*models.AttendanceRecord, error)
	Create(ctx context.Context, record *models.AttendanceRecord) error
	NewestMeetingTime(ctx context.Context, personID string) (*time.Time, error)
}

type attendanceSearcher interface {
	SearchAttendance(ctx context.Context, req populi.AttendanceSearchRequest) (*populi.AttendancePage, error)
}

type identityLinker interface {
	EnsureLink(ctx context.Context, userID, email string) (*models.StudentLink, error)
	MarkSynced(ctx context.Context, userID string, at time.Time)
}

type credentialGate interface {
	Credentials() (populi.Credentials, error)
	AcademicTermID() string
}

type syncDebouncer interface {
	Debounce(ctx context.Context, userID string, window time.Duration) (bool, error)
}

// SyncService is the incremental attendance import engine. Each run pulls a
// student's absence and tardy rows from Populi page by page and persists the
// ones not seen before; the populi_row_id unique key makes reruns and
// concurrent triggers converge on the same stored set.
type SyncService struct {
	records  recordStore
	search   attendanceSearcher
	links    identityLinker
	gate     credentialGate
	debounce syncDebouncer
	cfg      config.SyncConfig
	activity *ActivityLog
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewSyncService constructs the sync engine.
func NewSyncService(records recordStore, search attendanceSearcher, links identityLinker, gate credentialGate, debounce syncDebouncer, cfg config.SyncConfig, activity *ActivityLog, metrics *MetricsService, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = NewActivityLog(logger)
	}
	return &SyncService{
		records:  records,
		search:   search,
		links:    links,
		gate:     gate,
		debounce: debounce,
		cfg:      cfg,
		activity: activity,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// SyncOnPageView runs an incremental sync unless the same user triggered one
// inside the debounce window. The debounce fails open: a cache outage never
// blocks a sync.
func (s *SyncService) SyncOnPageView(ctx context.Context, userID, email string) (*models.SyncResult, error) {
	proceed, err := s.debounce.Debounce(ctx, userID, s.cfg.PageViewDebounce)
	if err != nil {
		s.logger.Warn("sync debounce check failed, proceeding", zap.String("user_id", userID), zap.Error(err))
	}
	if !proceed {
		s.metrics.SyncRun("skipped")
		return &models.SyncResult{Success: true, Skipped: true, Message: "sync ran recently, skipped"}, nil
	}
	return s.syncStudent(ctx, userID, email, false)
}

// SyncStudentAttendance runs one incremental sync for a user, bypassing the
// page-view debounce.
func (s *SyncService) SyncStudentAttendance(ctx context.Context, userID, email string) (*models.SyncResult, error) {
	return s.syncStudent(ctx, userID, email, false)
}

// ManualSync runs an operator-triggered sync. With resetCursor the stored
// watermark is ignored and the whole term is re-fetched; dedup by row id keeps
// the re-fetch from duplicating anything.
func (s *SyncService) ManualSync(ctx context.Context, userID, email string, resetCursor bool) (*models.SyncResult, error) {
	return s.syncStudent(ctx, userID, email, resetCursor)
}

func (s *SyncService) syncStudent(ctx context.Context, userID, email string, ignoreCursor bool) (*models.SyncResult, error) {
	if _, err := s.gate.Credentials(); err != nil {
		s.activity.Errorf("Attendance sync blocked: %v", err)
		s.metrics.SyncRun("failed")
		return nil, err
	}
	termID := s.gate.AcademicTermID()
	if termID == "" {
		err := appErrors.Clone(appErrors.ErrConfiguration, "academic term is not configured")
		s.activity.Errorf("Attendance sync blocked: %v", err)
		s.metrics.SyncRun("failed")
		return nil, err
	}

	link, err := s.links.EnsureLink(ctx, userID, email)
	if err != nil {
		if errors.Is(err, appErrors.ErrLinkingRequired) {
			s.metrics.SyncRun("skipped")
		} else {
			s.metrics.SyncRun("failed")
		}
		return nil, err
	}

	since, err := s.cursor(ctx, link.PersonID, ignoreCursor)
	if err != nil {
		s.metrics.SyncRun("failed")
		return nil, err
	}

	imported := 0
	page := 1
	for {
		result, err := s.search.SearchAttendance(ctx, populi.AttendanceSearchRequest{
			PersonID:       link.PersonID,
			AcademicTermID: termID,
			Since:          since,
			Page:           page,
			PageSize:       s.cfg.PageSize,
		})
		if err != nil {
			if errors.Is(err, appErrors.ErrDataShape) {
				// A page Populi can no longer shape is the end of the
				// stream, not a failed run.
				s.logger.Warn("attendance page unreadable, stopping pagination",
					zap.String("person_id", link.PersonID), zap.Int("page", page), zap.Error(err))
				s.activity.Warnf("Attendance sync for person %s stopped on unreadable page %d.", link.PersonID, page)
				break
			}
			// Records created on earlier pages stay; the next run
			// re-covers the gap from its recomputed watermark.
			s.activity.Errorf("Attendance sync for person %s aborted on page %d: %v", link.PersonID, page, err)
			s.metrics.RecordsImported(imported)
			s.metrics.SyncRun("failed")
			return &models.SyncResult{
				NewRecords: imported,
				Message:    fmt.Sprintf("sync aborted on page %d after %d new records", page, imported),
			}, err
		}
		if len(result.Data) == 0 {
			break
		}

		for i := range result.Data {
			created, err := s.ingestRow(ctx, link.PersonID, &result.Data[i])
			if err != nil {
				s.metrics.RecordsImported(imported)
				s.metrics.SyncRun("failed")
				return &models.SyncResult{
					NewRecords: imported,
					Message:    fmt.Sprintf("sync aborted after %d new records", imported),
				}, err
			}
			if created {
				imported++
			}
		}

		if !result.HasMore {
			break
		}
		page++
	}

	s.links.MarkSynced(ctx, userID, s.now().UTC())
	s.metrics.RecordsImported(imported)
	s.metrics.SyncRun("success")

	if imported > 0 {
		s.activity.Infof("Imported %d attendance records for person %s.", imported, link.PersonID)
	}
	return &models.SyncResult{
		Success:    true,
		NewRecords: imported,
		Message:    fmt.Sprintf("imported %d new records", imported),
	}, nil
}

// cursor derives the incremental watermark: the newest stored meeting start
// time minus the lookback window, so late edits to recent meetings are
// re-fetched and deduplicated rather than missed. Nil means full-term fetch.
func (s *SyncService) cursor(ctx context.Context, personID string, ignore bool) (*time.Time, error) {
	if ignore {
		return nil, nil
	}
	newest, err := s.records.NewestMeetingTime(ctx, personID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "derive sync watermark")
	}
	if newest == nil {
		return nil, nil
	}
	since := newest.Add(-s.cfg.Lookback)
	return &since, nil
}

func (s *SyncService) ingestRow(ctx context.Context, personID string, row *populi.AttendanceRow) (bool, error) {
	rowID := strings.TrimSpace(row.ReportData.RowID)
	if rowID == "" {
		s.logger.Warn("attendance row without row id, skipping", zap.String("person_id", personID))
		return false, nil
	}

	existing, err := s.records.FindByRowID(ctx, rowID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "probe existing record")
	}
	if existing != nil {
		return false, nil
	}

	record := s.recordFromRow(personID, row)
	if err := s.records.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateRow) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store attendance record")
	}
	return true, nil
}

func (s *SyncService) recordFromRow(personID string, row *populi.AttendanceRow) *models.AttendanceRecord {
	data := row.ReportData

	meetingID, ok := models.MeetingIDFromRowID(data.RowID)
	if !ok {
		s.logger.Warn("row id carries no meeting segment",
			zap.String("populi_row_id", data.RowID),
			zap.String("person_id", personID),
		)
	}

	record := &models.AttendanceRecord{
		PopuliRowID:      data.RowID,
		PersonID:         personID,
		CourseOfferingID: data.CourseOfferingID.String(),
		CourseMeetingID:  meetingID,
		FirstName:        row.FirstName,
		LastName:         row.LastName,
		CourseName:       data.CourseName,
		TermName:         data.TermName,
		MeetingStartTime: parseMeetingTime(data.MeetingStartTime),
		MeetingEndTime:   parseMeetingTime(data.MeetingEndTime),
		Status:           models.AttendanceStatus(strings.ToUpper(data.AttendanceStatus)),
		Note:             data.AttendanceNote,
		ReviewStatus:     models.ReviewStatusPending,
		AddedAt:          data.AttendanceAddedAt,
		AddedByID:        data.AttendanceAddedBy.String(),
	}
	return record
}

func parseMeetingTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t, err := time.Parse(meetingTimeLayout, value)
	if err != nil {
		return nil
	}
	return &t
}
