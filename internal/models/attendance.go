package models

import (
	"strings"
	"time"
)

// AttendanceStatus is the attendance state reported by Populi for a course meeting.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusTardy   AttendanceStatus = "TARDY"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusTardy, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// ReviewStatus is the local review workflow state, distinct from the
// attendance status held by Populi.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusReview   ReviewStatus = "review"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// Valid returns true when the review status is a supported value.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusReview, ReviewStatusApproved, ReviewStatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the review workflow accepts further decisions.
func (s ReviewStatus) Terminal() bool {
	return s == ReviewStatusApproved || s == ReviewStatusRejected
}

// AttendanceRecord is one attendance event for one student in one course
// meeting, imported from Populi. PopuliRowID is the idempotency key: a record
// is created at most once per row id.
type AttendanceRecord struct {
	ID               string           `db:"id" json:"id"`
	PopuliRowID      string           `db:"populi_row_id" json:"populi_row_id"`
	PersonID         string           `db:"person_id" json:"person_id"`
	CourseOfferingID string           `db:"course_offering_id" json:"course_offering_id"`
	CourseMeetingID  string           `db:"course_meeting_id" json:"course_meeting_id"`
	FirstName        string           `db:"first_name" json:"first_name"`
	LastName         string           `db:"last_name" json:"last_name"`
	CourseName       string           `db:"course_name" json:"course_name"`
	TermName         string           `db:"term_name" json:"term_name"`
	MeetingStartTime *time.Time       `db:"meeting_start_time" json:"meeting_start_time,omitempty"`
	MeetingEndTime   *time.Time       `db:"meeting_end_time" json:"meeting_end_time,omitempty"`
	Status           AttendanceStatus `db:"status" json:"status"`
	Note             string           `db:"note" json:"note"`
	ReviewStatus     ReviewStatus     `db:"review_status" json:"review_status"`
	RejectionReason  string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	AddedAt          string           `db:"added_at" json:"added_at,omitempty"`
	AddedByID        string           `db:"added_by_id" json:"added_by_id,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// MeetingIDFromRowID derives the course meeting id from a Populi row id of the
// form "<offering>_<meeting>". The second return value is false when the row
// id carries no separator; ingestion still proceeds with an empty meeting id.
func MeetingIDFromRowID(rowID string) (string, bool) {
	parts := strings.SplitN(rowID, "_", 3)
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RecordFilter defines query filters for listing attendance records.
type RecordFilter struct {
	PersonID     string
	ReviewStatus *ReviewStatus
	Status       *AttendanceStatus
	TermName     string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// RecordUpdate captures a partial mutation of an attendance record. Nil
// fields are left untouched.
type RecordUpdate struct {
	Note            *string
	ReviewStatus    *ReviewStatus
	RejectionReason *string
}

// SyncResult summarises one run of the attendance sync engine.
type SyncResult struct {
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped,omitempty"`
	NewRecords int    `json:"new_records"`
	Message    string `json:"message"`
}
