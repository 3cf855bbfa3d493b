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
	"github.com/pbcdev/attend-sync/internal/repository"
	"github.com/pbcdev/attend-sync/pkg/config"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
)

type stubRecordStore struct {
	byRowID   map[string]*models.AttendanceRecord
	newest    *time.Time
	created   []*models.AttendanceRecord
	createErr error
}

func (s *stubRecordStore) FindByRowID(_ context.Context, rowID string) (*models.AttendanceRecord, error) {
	return s.byRowID[rowID], nil
}

func (s *stubRecordStore) Create(_ context.Context, record *models.AttendanceRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, record)
	s.byRowID[record.PopuliRowID] = record
	return nil
}

func (s *stubRecordStore) NewestMeetingTime(_ context.Context, _ string) (*time.Time, error) {
	return s.newest, nil
}

type stubSearcher struct {
	pages    []*populi.AttendancePage
	errAt    int
	err      error
	requests []populi.AttendanceSearchRequest
}

func (s *stubSearcher) SearchAttendance(_ context.Context, req populi.AttendanceSearchRequest) (*populi.AttendancePage, error) {
	s.requests = append(s.requests, req)
	if s.err != nil && len(s.requests) == s.errAt {
		return nil, s.err
	}
	idx := req.Page - 1
	if idx >= len(s.pages) {
		return &populi.AttendancePage{}, nil
	}
	return s.pages[idx], nil
}

type stubLinker struct {
	link       *models.StudentLink
	err        error
	syncedUser string
}

func (s *stubLinker) EnsureLink(_ context.Context, _, _ string) (*models.StudentLink, error) {
	return s.link, s.err
}

func (s *stubLinker) MarkSynced(_ context.Context, userID string, _ time.Time) {
	s.syncedUser = userID
}

type stubGate struct {
	key  string
	term string
}

func (s *stubGate) Credentials() (populi.Credentials, error) {
	if s.key == "" {
		return populi.Credentials{}, appErrors.Clone(appErrors.ErrConfiguration, "populi api key is not configured")
	}
	return populi.Credentials{APIKey: s.key, APIBase: "https://example.test/api2"}, nil
}

func (s *stubGate) AcademicTermID() string { return s.term }

type stubDebouncer struct {
	allow bool
	err   error
	calls int
}

func (s *stubDebouncer) Debounce(_ context.Context, _ string, _ time.Duration) (bool, error) {
	s.calls++
	return s.allow, s.err
}

func attendanceRow(rowID, status, start string) populi.AttendanceRow {
	return populi.AttendanceRow{
		PersonID:  "42",
		FirstName: "Avery",
		LastName:  "Nguyen",
		ReportData: populi.AttendanceReportData{
			RowID:            rowID,
			CourseOfferingID: "901",
			CourseName:       "Systematic Theology I",
			TermName:         "Fall 2026",
			MeetingStartTime: start,
			AttendanceStatus: status,
		},
	}
}

func newTestSyncService(records *stubRecordStore, search *stubSearcher, links *stubLinker, gate *stubGate, debounce *stubDebouncer) *SyncService {
	cfg := config.SyncConfig{PageSize: 100, Lookback: 24 * time.Hour, PageViewDebounce: 10 * time.Minute}
	return NewSyncService(records, search, links, gate, debounce, cfg, NewActivityLog(zap.NewNop()), nil, zap.NewNop())
}

func TestSyncImportsNewRecordsAcrossPages(t *testing.T) {
	records := &stubRecordStore{byRowID: map[string]*models.AttendanceRecord{
		"901_11_42": {PopuliRowID: "901_11_42"},
	}}
	search := &stubSearcher{pages: []*populi.AttendancePage{
		{Data: []populi.AttendanceRow{
			attendanceRow("901_11_42", "ABSENT", "2026-02-02 09:00:00"),
			attendanceRow("901_12_42", "tardy", "2026-02-04 09:00:00"),
		}, HasMore: true},
		{Data: []populi.AttendanceRow{
			attendanceRow("901_13_42", "ABSENT", "2026-02-06 09:00:00"),
		}},
	}}
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}

	svc := newTestSyncService(records, search, links, &stubGate{key: "k", term: "300"}, &stubDebouncer{allow: true})

	result, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.NewRecords)
	require.Len(t, records.created, 2)

	first := records.created[0]
	assert.Equal(t, "901_12_42", first.PopuliRowID)
	assert.Equal(t, "12", first.CourseMeetingID)
	assert.Equal(t, "901", first.CourseOfferingID)
	assert.Equal(t, models.AttendanceStatusTardy, first.Status)
	assert.Equal(t, models.ReviewStatusPending, first.ReviewStatus)
	require.NotNil(t, first.MeetingStartTime)
	assert.Equal(t, time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC), *first.MeetingStartTime)

	assert.Equal(t, "u1", links.syncedUser)
	require.Len(t, search.requests, 2)
	assert.Equal(t, 2, search.requests[1].Page)
}

func TestSyncWatermarkAppliesLookback(t *testing.T) {
	newest := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	records := &stubRecordStore{byRowID: map[string]*models.AttendanceRecord{}, newest: &newest}
	search := &stubSearcher{pages: []*populi.AttendancePage{{}}}
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}

	svc := newTestSyncService(records, search, links, &stubGate{key: "k", term: "300"}, &stubDebouncer{allow: true})

	_, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	require.NoError(t, err)
	require.Len(t, search.requests, 1)
	require.NotNil(t, search.requests[0].Since)
	assert.Equal(t, newest.Add(-24*time.Hour), *search.requests[0].Since)
}

func TestSyncFirstRunFetchesFullTerm(t *testing.T) {
	records := &stubRecordStore{byRowID: map[string]*models.AttendanceRecord{}}
	search := &stubSearcher{pages: []*populi.AttendancePage{{}}}
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}

	svc := newTestSyncService(records, search, links, &stubGate{key: "k", term: "300"}, &stubDebouncer{allow: true})

	_, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	require.NoError(t, err)
	require.Len(t, search.requests, 1)
	assert.Nil(t, search.requests[0].Since)
}

func TestManualSyncResetCursorIgnoresWatermark(t *testing.T) {
	newest := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	records := &stubRecordStore{byRowID: map[string]*models.AttendanceRecord{}, newest: &newest}
	search := &stubSearcher{pages: []*populi.AttendancePage{{}}}
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}

	svc := newTestSyncService(records, search, links, &stubGate{key: "k", term: "300"}, &stubDebouncer{allow: true})

	_, err := svc.ManualSync(context.Background(), "u1", "avery@example.edu", true)
	require.NoError(t, err)
	require.Len(t, search.requests, 1)
	assert.Nil(t, search.requests[0].Since)
}

func TestSyncRequiresConfiguration(t *testing.T) {
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}
	search := &stubSearcher{}

	svc := newTestSyncService(&stubRecordStore{}, search, links, &stubGate{}, &stubDebouncer{allow: true})
	_, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))
	assert.Empty(t, search.requests)

	svc = newTestSyncService(&stubRecordStore{}, search, links, &stubGate{key: "k"}, &stubDebouncer{allow: true})
	_, err = svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))
	assert.Empty(t, search.requests)
}

func TestSyncRequiresLink(t *testing.T) {
	links := &stubLinker{err: appErrors.Clone(appErrors.ErrLinkingRequired, "no match")}
	search := &stubSearcher{}

	svc := newTestSyncService(&stubRecordStore{}, search, links, &stubGate{key: "k", term: "300"}, &stubDebouncer{allow: true})

	_, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	assert.True(t, errors.Is(err, appErrors.ErrLinkingRequired))
	assert.Empty(t, search.requests)
}

func TestSyncOnPageViewDebounces(t *testing.T) {
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}
	search := &stubSearcher{}
	debounce := &stubDebouncer{allow: false}

	svc := newTestSyncService(&stubRecordStore{}, search, links, &stubGate{key: "k", term: "300"}, debounce)

	result, err := svc.SyncOnPageView(context.Background(), "u1", "avery@example.edu")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, search.requests)
	assert.Equal(t, 1, debounce.calls)
}

func TestSyncOnPageViewProceedsWhenDebounceFails(t *testing.T) {
	records := &stubRecordStore{byRowID: map[string]*models.AttendanceRecord{}}
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}
	search := &stubSearcher{pages: []*populi.AttendancePage{{}}}
	debounce := &stubDebouncer{allow: true, err: errors.New("redis down")}

	svc := newTestSyncService(records, search, links, &stubGate{key: "k", term: "300"}, debounce)

	result, err := svc.SyncOnPageView(context.Background(), "u1", "avery@example.edu")
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	require.Len(t, search.requests, 1)
}

func TestSyncKeepsPartialProgressOnTransportFailure(t *testing.T) {
	records := &stubRecordStore{byRowID: map[string]*models.AttendanceRecord{}}
	search := &stubSearcher{
		pages: []*populi.AttendancePage{
			{Data: []populi.AttendanceRow{
				attendanceRow("901_11_42", "ABSENT", "2026-02-02 09:00:00"),
				attendanceRow("901_12_42", "ABSENT", "2026-02-04 09:00:00"),
			}, HasMore: true},
		},
		errAt: 2,
		err:   appErrors.Clone(appErrors.ErrUpstream, "populi returned 500"),
	}
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}

	svc := newTestSyncService(records, search, links, &stubGate{key: "k", term: "300"}, &stubDebouncer{allow: true})

	result, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	assert.True(t, errors.Is(err, appErrors.ErrUpstream))
	require.NotNil(t, result)
	assert.Equal(t, 2, result.NewRecords)
	assert.Len(t, records.created, 2)
	assert.Empty(t, links.syncedUser)
}

func TestSyncTreatsUnreadablePageAsEndOfStream(t *testing.T) {
	records := &stubRecordStore{byRowID: map[string]*models.AttendanceRecord{}}
	search := &stubSearcher{
		pages: []*populi.AttendancePage{
			{Data: []populi.AttendanceRow{
				attendanceRow("901_11_42", "ABSENT", "2026-02-02 09:00:00"),
			}, HasMore: true},
		},
		errAt: 2,
		err:   appErrors.Clone(appErrors.ErrDataShape, "decode populi response"),
	}
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}

	svc := newTestSyncService(records, search, links, &stubGate{key: "k", term: "300"}, &stubDebouncer{allow: true})

	result, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.NewRecords)
	assert.Len(t, records.created, 1)
	assert.Equal(t, "u1", links.syncedUser)
}

func TestSyncSecondRunImportsNothingNew(t *testing.T) {
	records := &stubRecordStore{byRowID: map[string]*models.AttendanceRecord{}}
	search := &stubSearcher{pages: []*populi.AttendancePage{
		{Data: []populi.AttendanceRow{
			attendanceRow("901_11_42", "ABSENT", "2026-02-02 09:00:00"),
			attendanceRow("901_12_42", "tardy", "2026-02-04 09:00:00"),
		}},
	}}
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}

	svc := newTestSyncService(records, search, links, &stubGate{key: "k", term: "300"}, &stubDebouncer{allow: true})

	first, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	require.NoError(t, err)
	assert.Equal(t, 2, first.NewRecords)

	second, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.NewRecords)
	assert.Len(t, records.created, 2)
}

func TestSyncToleratesConcurrentDuplicateInsert(t *testing.T) {
	records := &stubRecordStore{byRowID: map[string]*models.AttendanceRecord{}, createErr: repository.ErrDuplicateRow}
	search := &stubSearcher{pages: []*populi.AttendancePage{
		{Data: []populi.AttendanceRow{attendanceRow("901_11_42", "ABSENT", "2026-02-02 09:00:00")}},
	}}
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}

	svc := newTestSyncService(records, search, links, &stubGate{key: "k", term: "300"}, &stubDebouncer{allow: true})

	result, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.NewRecords)
}

func TestSyncRowIDWithoutMeetingSegment(t *testing.T) {
	records := &stubRecordStore{byRowID: map[string]*models.AttendanceRecord{}}
	search := &stubSearcher{pages: []*populi.AttendancePage{
		{Data: []populi.AttendanceRow{attendanceRow("odd-row-id", "ABSENT", "2026-02-02 09:00:00")}},
	}}
	links := &stubLinker{link: &models.StudentLink{UserID: "u1", PersonID: "42", SyncStatus: models.LinkStatusSynced}}

	svc := newTestSyncService(records, search, links, &stubGate{key: "k", term: "300"}, &stubDebouncer{allow: true})

	result, err := svc.SyncStudentAttendance(context.Background(), "u1", "avery@example.edu")
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewRecords)
	require.Len(t, records.created, 1)
	assert.Equal(t, "odd-row-id", records.created[0].PopuliRowID)
	assert.Empty(t, records.created[0].CourseMeetingID)
}
