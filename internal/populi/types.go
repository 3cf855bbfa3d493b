package populi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexID accepts Populi identifiers serialized as either JSON numbers or
// strings; the API is not consistent across endpoints.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	*f = FlexID(n.String())
	return nil
}

// String returns the id as text.
func (f FlexID) String() string { return string(f) }

// FilterField is one condition inside a filter group. Value is either a plain
// string, an id reference {"id": ...}, or a range {"type": "GREATER", ...}.
type FilterField struct {
	Name     string      `json:"name"`
	Value    interface{} `json:"value"`
	Positive string      `json:"positive"`
}

// FilterGroup combines fields under ALL or ANY logic.
type FilterGroup struct {
	Logic  string        `json:"logic"`
	Fields []FilterField `json:"fields"`
}

// AttendanceSearchBody is the request payload for POST /attendance/detail.
type AttendanceSearchBody struct {
	Filter         []FilterGroup `json:"filter"`
	Page           int           `json:"page"`
	ResultsPerPage int           `json:"results_per_page"`
}

// AttendanceReportData is the nested report row carried by each search hit.
type AttendanceReportData struct {
	RowID            string `json:"row_id"`
	CourseOfferingID FlexID `json:"course_offering_id"`
	CourseName       string `json:"course_name"`
	TermName         string `json:"term_name"`
	MeetingStartTime string `json:"meeting_start_time"`
	MeetingEndTime   string `json:"meeting_end_time"`
	AttendanceStatus string `json:"attendance_status"`
	AttendanceNote   string `json:"attendance_note"`
	AttendanceAddedAt string `json:"attendance_added_at"`
	AttendanceAddedBy FlexID `json:"attendance_added_by"`
}

// AttendanceRow is one attendance event returned by the detail search. The
// top-level id identifies the person the row belongs to.
type AttendanceRow struct {
	PersonID    FlexID               `json:"id"`
	DisplayName string               `json:"display_name"`
	FirstName   string               `json:"first_name"`
	LastName    string               `json:"last_name"`
	ReportData  AttendanceReportData `json:"report_data"`
}

// AttendancePage is one page of attendance search results.
type AttendancePage struct {
	Data    []AttendanceRow `json:"data"`
	HasMore bool            `json:"has_more"`
}

// PersonRole is a role attached to a directory person.
type PersonRole struct {
	Name string `json:"name"`
}

// Person is one directory entry from GET /people.
type Person struct {
	ID           FlexID       `json:"id"`
	DisplayName  string       `json:"display_name"`
	PrimaryEmail string       `json:"primary_email"`
	Roles        []PersonRole `json:"roles"`
}

// IsStudent reports whether the person carries the Student role.
func (p Person) IsStudent() bool {
	for _, role := range p.Roles {
		if role.Name == "Student" {
			return true
		}
	}
	return false
}

// PeoplePage is one page of the people directory.
type PeoplePage struct {
	Data    []Person `json:"data"`
	HasMore bool     `json:"has_more"`
}

// Student is the student detail for a person.
type Student struct {
	ID               FlexID `json:"id"`
	VisibleStudentID FlexID `json:"visible_student_id"`
}

// EmailAddress is one address from GET /people/{id}/emailaddresses.
type EmailAddress struct {
	Email   string `json:"email"`
	Primary bool   `json:"primary"`
}

// EmailAddressList wraps the email addresses payload.
type EmailAddressList struct {
	Data []EmailAddress `json:"data"`
}

// EnrolledStudent is one roster row from GET /courseofferings/{id}/students.
type EnrolledStudent struct {
	ID        FlexID `json:"id"`
	PersonID  FlexID `json:"person_id"`
	StudentID FlexID `json:"student_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

// RosterPage wraps the course offering roster payload.
type RosterPage struct {
	Data []EnrolledStudent `json:"data"`
}

// AttendanceUpdate is the body for PUT .../attendance/update. At least one of
// CourseMeetingID or StartTime must be set to disambiguate the meeting.
type AttendanceUpdate struct {
	Status          string `json:"status"`
	CourseMeetingID string `json:"course_meeting_id,omitempty"`
	StartTime       string `json:"start_time,omitempty"`
	Note            string `json:"note,omitempty"`
}
