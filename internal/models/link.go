package models

import "time"

// LinkStatus tracks the outcome of the most recent linking or sync attempt.
type LinkStatus string

const (
	LinkStatusPending  LinkStatus = "pending"
	LinkStatusSynced   LinkStatus = "synced"
	LinkStatusFailed   LinkStatus = "failed"
	LinkStatusNotFound LinkStatus = "not_found"
)

// Valid returns true when the link status is a supported value.
func (s LinkStatus) Valid() bool {
	switch s {
	case LinkStatusPending, LinkStatusSynced, LinkStatusFailed, LinkStatusNotFound:
		return true
	default:
		return false
	}
}

// StudentLink binds a local user identity to a Populi person. At most one
// person id per local user; conflicting writes are last-write-wins.
type StudentLink struct {
	UserID           string     `db:"user_id" json:"user_id"`
	PersonID         string     `db:"person_id" json:"person_id"`
	VisibleStudentID string     `db:"visible_student_id" json:"visible_student_id,omitempty"`
	FirstName        string     `db:"first_name" json:"first_name,omitempty"`
	LastName         string     `db:"last_name" json:"last_name,omitempty"`
	SyncStatus       LinkStatus `db:"sync_status" json:"sync_status"`
	LastSyncedAt     *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Linked reports whether the link carries a usable person id.
func (l *StudentLink) Linked() bool {
	return l != nil && l.PersonID != ""
}
