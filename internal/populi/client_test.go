package populi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbcdev/attend-sync/pkg/config"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
)

func testConfig(base string) config.PopuliConfig {
	return config.PopuliConfig{
		APIKey:           "test-key",
		APIBase:          base,
		AcademicTermID:   "302974",
		SearchTimeout:    5 * time.Second,
		DirectoryTimeout: 5 * time.Second,
		DetailTimeout:    5 * time.Second,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := testConfig(srv.URL)
	return NewClient(NewResolver(cfg), cfg, nil, srv.Client()), srv
}

func TestResolverRequiresAPIKey(t *testing.T) {
	r := NewResolver(config.PopuliConfig{APIBase: "https://example.populiweb.com/api2"})
	_, err := r.Credentials()
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConfiguration)
}

func TestResolverEndpointURL(t *testing.T) {
	r := NewResolver(config.PopuliConfig{APIKey: "k", APIBase: "https://example.populiweb.com/api2/"})

	u, err := r.EndpointURL(EndpointAttendance)
	require.NoError(t, err)
	assert.Equal(t, "https://example.populiweb.com/api2/attendance/detail", u)

	u, err = r.EndpointURL(EndpointUpdateAttendance, "42", "900")
	require.NoError(t, err)
	assert.Equal(t, "https://example.populiweb.com/api2/courseofferings/42/students/900/attendance/update", u)

	_, err = r.EndpointURL(EndpointStudent)
	require.Error(t, err)
}

func TestSearchAttendanceRequestShape(t *testing.T) {
	var captured AttendanceSearchBody
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/attendance/detail", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(AttendancePage{HasMore: false})
	})

	since := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	_, err := client.SearchAttendance(context.Background(), AttendanceSearchRequest{
		PersonID:       "555",
		AcademicTermID: "302974",
		Since:          &since,
		Page:           2,
		PageSize:       100,
	})
	require.NoError(t, err)

	require.Len(t, captured.Filter, 2)
	all := captured.Filter[0]
	assert.Equal(t, "ALL", all.Logic)
	require.Len(t, all.Fields, 4)
	assert.Equal(t, "has_active_student_role", all.Fields[0].Name)
	assert.Equal(t, "academic_term", all.Fields[1].Name)
	assert.Equal(t, "302974", all.Fields[1].Value)
	assert.Equal(t, "student", all.Fields[2].Name)
	assert.Equal(t, "event_start_time", all.Fields[3].Name)
	window, ok := all.Fields[3].Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "GREATER", window["type"])
	assert.Equal(t, "2024-03-09 10:00:00", window["start"])

	any := captured.Filter[1]
	assert.Equal(t, "ANY", any.Logic)
	require.Len(t, any.Fields, 2)
	assert.Equal(t, "TARDY", any.Fields[0].Value)
	assert.Equal(t, "ABSENT", any.Fields[1].Value)

	assert.Equal(t, 2, captured.Page)
	assert.Equal(t, 100, captured.ResultsPerPage)
}

func TestSearchAttendanceOmitsWatermarkOnFullSync(t *testing.T) {
	var captured AttendanceSearchBody
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(AttendancePage{})
	})

	_, err := client.SearchAttendance(context.Background(), AttendanceSearchRequest{
		PersonID:       "555",
		AcademicTermID: "302974",
	})
	require.NoError(t, err)
	require.Len(t, captured.Filter, 2)
	assert.Len(t, captured.Filter[0].Fields, 3)
	assert.Equal(t, 1, captured.Page)
}

func TestSearchAttendanceDecodesMixedIDTypes(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [
				{"id": 555, "first_name": "Ada", "last_name": "Byron",
				 "report_data": {"row_id": "12345_6789", "course_offering_id": "12345", "attendance_status": "TARDY"}},
				{"id": "556", "first_name": "Alan", "last_name": "Turing",
				 "report_data": {"row_id": "12345_6790", "course_offering_id": 12345, "attendance_status": "ABSENT"}}
			],
			"has_more": true
		}`))
	})

	page, err := client.SearchAttendance(context.Background(), AttendanceSearchRequest{PersonID: "555", AcademicTermID: "T1"})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "555", page.Data[0].PersonID.String())
	assert.Equal(t, "556", page.Data[1].PersonID.String())
	assert.Equal(t, "12345", page.Data[0].ReportData.CourseOfferingID.String())
	assert.Equal(t, "12345", page.Data[1].ReportData.CourseOfferingID.String())
}

func TestSearchAttendanceUpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server exploded", http.StatusInternalServerError)
	})

	_, err := client.SearchAttendance(context.Background(), AttendanceSearchRequest{PersonID: "555", AcademicTermID: "T1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUpstream)
}

func TestSearchAttendanceWithoutCredentials(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.APIKey = ""
	client := NewClient(NewResolver(cfg), cfg, nil, nil)

	_, err := client.SearchAttendance(context.Background(), AttendanceSearchRequest{PersonID: "555", AcademicTermID: "T1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConfiguration)
}

func TestListPeoplePagination(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/people", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(PeoplePage{
			Data: []Person{{
				ID:           "1",
				PrimaryEmail: "ada@example.edu",
				Roles:        []PersonRole{{Name: "Student"}},
			}},
			HasMore: false,
		})
	})

	page, err := client.ListPeople(context.Background(), 3, 200)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.True(t, page.Data[0].IsStudent())
}

func TestUpdateAttendance(t *testing.T) {
	var captured AttendanceUpdate
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/courseofferings/42/students/900/attendance/update", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	})

	err := client.UpdateAttendance(context.Background(), "42", "900", AttendanceUpdate{
		Status:          "excused",
		CourseMeetingID: "6789",
	})
	require.NoError(t, err)
	assert.Equal(t, "excused", captured.Status)
	assert.Equal(t, "6789", captured.CourseMeetingID)
	assert.Empty(t, captured.StartTime)
}

func TestGetStudent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/people/555/student", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": 555, "visible_student_id": "20240042"}`))
	})

	student, err := client.GetStudent(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, "20240042", student.VisibleStudentID.String())
}
