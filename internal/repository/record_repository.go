package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pbcdev/attend-sync/internal/models"
)

// ErrDuplicateRow is returned by Create when the unique index on
// populi_row_id rejects a second insert. The sync engine treats it as
// "already imported", which keeps concurrent triggers safe.
var ErrDuplicateRow = errors.New("attendance record already exists for row id")

const uniqueViolation = "23505"

// RecordRepository manages persistence for imported attendance records.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs a RecordRepository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = `id, populi_row_id, person_id, course_offering_id, course_meeting_id,
        first_name, last_name, course_name, term_name, meeting_start_time, meeting_end_time,
        status, note, review_status, rejection_reason, added_at, added_by_id, created_at, updated_at`

// FindByRowID fetches a record by its Populi row id. A missing record is not
// an error; the engine uses this as the dedup probe.
func (r *RecordRepository) FindByRowID(ctx context.Context, rowID string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE populi_row_id = $1", recordColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, rowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find record by row id: %w", err)
	}
	return &record, nil
}

// FindByID fetches a record by its primary key.
func (r *RecordRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE id = $1", recordColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	return &record, nil
}

// Create inserts a new attendance record. The populi_row_id unique index
// turns a concurrent double-insert into ErrDuplicateRow.
func (r *RecordRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.ReviewStatus == "" {
		record.ReviewStatus = models.ReviewStatusPending
	}

	query := `INSERT INTO attendance_records (id, populi_row_id, person_id, course_offering_id, course_meeting_id,
        first_name, last_name, course_name, term_name, meeting_start_time, meeting_end_time,
        status, note, review_status, rejection_reason, added_at, added_by_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.PopuliRowID, record.PersonID, record.CourseOfferingID, record.CourseMeetingID,
		record.FirstName, record.LastName, record.CourseName, record.TermName,
		record.MeetingStartTime, record.MeetingEndTime,
		record.Status, record.Note, record.ReviewStatus, record.RejectionReason,
		record.AddedAt, record.AddedByID, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateRow
		}
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// NewestMeetingTime returns the latest meeting start time stored for a
// person, or nil when no record exists. The sync cursor derives from it.
func (r *RecordRepository) NewestMeetingTime(ctx context.Context, personID string) (*time.Time, error) {
	query := "SELECT MAX(meeting_start_time) FROM attendance_records WHERE person_id = $1"
	var newest sql.NullTime
	if err := r.db.GetContext(ctx, &newest, query, personID); err != nil {
		return nil, fmt.Errorf("newest meeting time: %w", err)
	}
	if !newest.Valid {
		return nil, nil
	}
	t := newest.Time
	return &t, nil
}

// Update applies a partial mutation to a record.
func (r *RecordRepository) Update(ctx context.Context, id string, update models.RecordUpdate) error {
	sets := []string{}
	args := []interface{}{}

	if update.Note != nil {
		sets = append(sets, fmt.Sprintf("note = $%d", len(args)+1))
		args = append(args, *update.Note)
	}
	if update.ReviewStatus != nil {
		sets = append(sets, fmt.Sprintf("review_status = $%d", len(args)+1))
		args = append(args, *update.ReviewStatus)
	}
	if update.RejectionReason != nil {
		sets = append(sets, fmt.Sprintf("rejection_reason = $%d", len(args)+1))
		args = append(args, *update.RejectionReason)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)+1))
	args = append(args, time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE attendance_records SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns records matching the provided filters, newest meeting first.
func (r *RecordRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.PersonID != "" {
		conditions = append(conditions, fmt.Sprintf("person_id = $%d", len(args)+1))
		args = append(args, filter.PersonID)
	}
	if filter.ReviewStatus != nil {
		conditions = append(conditions, fmt.Sprintf("review_status = $%d", len(args)+1))
		args = append(args, *filter.ReviewStatus)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.TermName != "" {
		conditions = append(conditions, fmt.Sprintf("term_name = $%d", len(args)+1))
		args = append(args, filter.TermName)
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"meeting_start_time": "meeting_start_time",
		"created_at":         "created_at",
		"last_name":          "last_name",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "meeting_start_time"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d",
		recordColumns, where, column, order, size, offset)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance_records WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}
	return records, total, nil
}
