package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pbcdev/attend-sync/internal/models"
)

// LinkRepository persists the binding between local users and Populi people.
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository constructs a LinkRepository.
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// FindByUserID fetches the link for a local user; a missing link is not an
// error.
func (r *LinkRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentLink, error) {
	query := `SELECT user_id, person_id, visible_student_id, first_name, last_name,
        sync_status, last_synced_at, created_at, updated_at
        FROM student_links WHERE user_id = $1`
	var link models.StudentLink
	if err := r.db.GetContext(ctx, &link, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find link: %w", err)
	}
	return &link, nil
}

// FindByPersonID fetches the link pointing at a Populi person, used to
// authorize student note submissions.
func (r *LinkRepository) FindByPersonID(ctx context.Context, personID string) (*models.StudentLink, error) {
	query := `SELECT user_id, person_id, visible_student_id, first_name, last_name,
        sync_status, last_synced_at, created_at, updated_at
        FROM student_links WHERE person_id = $1`
	var link models.StudentLink
	if err := r.db.GetContext(ctx, &link, query, personID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find link by person: %w", err)
	}
	return &link, nil
}

// Upsert writes the link, replacing any previous person id for the user.
// Last write wins when new claims contradict an existing link.
func (r *LinkRepository) Upsert(ctx context.Context, link *models.StudentLink) error {
	now := time.Now().UTC()
	link.UpdatedAt = now
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	if link.SyncStatus == "" {
		link.SyncStatus = models.LinkStatusPending
	}

	query := `INSERT INTO student_links (user_id, person_id, visible_student_id, first_name, last_name,
        sync_status, last_synced_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (user_id) DO UPDATE SET
        person_id = EXCLUDED.person_id,
        visible_student_id = EXCLUDED.visible_student_id,
        first_name = EXCLUDED.first_name,
        last_name = EXCLUDED.last_name,
        sync_status = EXCLUDED.sync_status,
        last_synced_at = EXCLUDED.last_synced_at,
        updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		link.UserID, link.PersonID, link.VisibleStudentID, link.FirstName, link.LastName,
		link.SyncStatus, link.LastSyncedAt, link.CreatedAt, link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}
	return nil
}

// SetStatus records the outcome of a linking or sync attempt.
func (r *LinkRepository) SetStatus(ctx context.Context, userID string, status models.LinkStatus, syncedAt *time.Time) error {
	query := `UPDATE student_links SET sync_status = $2, last_synced_at = COALESCE($3, last_synced_at), updated_at = $4
        WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, status, syncedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set link status: %w", err)
	}
	return nil
}
