package populi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pbcdev/attend-sync/pkg/config"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
)

// timeFormat matches the datetime layout the attendance search filter expects.
const timeFormat = "2006-01-02 15:04:05"

// Client talks to the Populi REST API. All calls require credentials from the
// resolver and carry per-call timeouts; there is no retry, callers decide.
type Client struct {
	resolver *Resolver
	http     *http.Client
	cfg      config.PopuliConfig
	logger   *zap.Logger
}

// NewClient constructs a Client over the given resolver.
func NewClient(resolver *Resolver, cfg config.PopuliConfig, logger *zap.Logger, httpClient *http.Client) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{resolver: resolver, http: httpClient, cfg: cfg, logger: logger}
}

// AttendanceSearchRequest describes one page of the filtered detail search.
type AttendanceSearchRequest struct {
	PersonID       string
	AcademicTermID string
	Since          *time.Time
	Page           int
	PageSize       int
}

// Body assembles the nested filter payload: an ALL group pinning the student,
// term and active role (plus the incremental watermark when present), and an
// ANY group limiting rows to the statuses worth reviewing.
func (r AttendanceSearchRequest) Body() AttendanceSearchBody {
	all := FilterGroup{
		Logic: "ALL",
		Fields: []FilterField{
			{Name: "has_active_student_role", Value: "YES", Positive: "1"},
			{Name: "academic_term", Value: r.AcademicTermID, Positive: "1"},
			{Name: "student", Value: map[string]string{"id": r.PersonID}, Positive: "1"},
		},
	}
	if r.Since != nil {
		all.Fields = append(all.Fields, FilterField{
			Name:     "event_start_time",
			Value:    map[string]string{"type": "GREATER", "start": r.Since.Format(timeFormat)},
			Positive: "1",
		})
	}
	any := FilterGroup{
		Logic: "ANY",
		Fields: []FilterField{
			{Name: "status", Value: "TARDY", Positive: "1"},
			{Name: "status", Value: "ABSENT", Positive: "1"},
		},
	}

	pageSize := r.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	page := r.Page
	if page < 1 {
		page = 1
	}
	return AttendanceSearchBody{
		Filter:         []FilterGroup{all, any},
		Page:           page,
		ResultsPerPage: pageSize,
	}
}

// SearchAttendance fetches one page of attendance rows for a student.
func (c *Client) SearchAttendance(ctx context.Context, req AttendanceSearchRequest) (*AttendancePage, error) {
	endpoint, err := c.endpoint(EndpointAttendance)
	if err != nil {
		return nil, err
	}

	var page AttendancePage
	if err := c.doJSON(ctx, http.MethodPost, endpoint, req.Body(), &page, c.cfg.SearchTimeout); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListPeople fetches one page of the people directory.
func (c *Client) ListPeople(ctx context.Context, page, limit int) (*PeoplePage, error) {
	endpoint, err := c.endpoint(EndpointPerson)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 200
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out PeoplePage
	if err := c.doJSON(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil, &out, c.cfg.DirectoryTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStudent fetches the student detail for a person.
func (c *Client) GetStudent(ctx context.Context, personID string) (*Student, error) {
	endpoint, err := c.endpoint(EndpointStudent, personID)
	if err != nil {
		return nil, err
	}

	var out Student
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out, c.cfg.DetailTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEmailAddresses fetches the email addresses attached to a person.
func (c *Client) ListEmailAddresses(ctx context.Context, personID string) ([]EmailAddress, error) {
	endpoint, err := c.endpoint(EndpointEmail, personID)
	if err != nil {
		return nil, err
	}

	var out EmailAddressList
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out, c.cfg.DetailTimeout); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ListCourseOfferingStudents fetches the enrollment roster for a course
// offering.
func (c *Client) ListCourseOfferingStudents(ctx context.Context, offeringID string) ([]EnrolledStudent, error) {
	endpoint, err := c.endpoint(EndpointCourseOfferingStudents, offeringID)
	if err != nil {
		return nil, err
	}

	var out RosterPage
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &out, c.cfg.DetailTimeout); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// UpdateAttendance pushes a status or note change to one meeting's attendance.
func (c *Client) UpdateAttendance(ctx context.Context, offeringID, enrollmentID string, update AttendanceUpdate) error {
	endpoint, err := c.endpoint(EndpointUpdateAttendance, offeringID, enrollmentID)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodPut, endpoint, update, nil, c.cfg.DetailTimeout)
}

func (c *Client) endpoint(name Endpoint, args ...string) (string, error) {
	if _, err := c.resolver.Credentials(); err != nil {
		return "", err
	}
	return c.resolver.EndpointURL(name, args...)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body interface{}, out interface{}, timeout time.Duration) error {
	creds, err := c.resolver.Credentials()
	if err != nil {
		return err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, fmt.Sprintf("%s %s", method, endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("populi request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return appErrors.Clone(appErrors.ErrUpstream, fmt.Sprintf("populi returned %d: %s", resp.StatusCode, string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return appErrors.Wrap(err, appErrors.ErrDataShape.Code, appErrors.ErrDataShape.Status, "decode populi response")
	}
	return nil
}
