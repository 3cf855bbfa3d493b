package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pbcdev/attend-sync/internal/models"
)

// ReviewerRepository manages staff accounts for the review surface.
type ReviewerRepository struct {
	db *sqlx.DB
}

// NewReviewerRepository constructs a ReviewerRepository.
func NewReviewerRepository(db *sqlx.DB) *ReviewerRepository {
	return &ReviewerRepository{db: db}
}

const reviewerColumns = "id, email, password_hash, full_name, role, active, last_login, created_at, updated_at"

// FindByEmail fetches a reviewer by email.
func (r *ReviewerRepository) FindByEmail(ctx context.Context, email string) (*models.Reviewer, error) {
	query := fmt.Sprintf("SELECT %s FROM reviewers WHERE email = $1", reviewerColumns)
	var reviewer models.Reviewer
	if err := r.db.GetContext(ctx, &reviewer, query, email); err != nil {
		return nil, err
	}
	return &reviewer, nil
}

// FindByID fetches a reviewer by id.
func (r *ReviewerRepository) FindByID(ctx context.Context, id string) (*models.Reviewer, error) {
	query := fmt.Sprintf("SELECT %s FROM reviewers WHERE id = $1", reviewerColumns)
	var reviewer models.Reviewer
	if err := r.db.GetContext(ctx, &reviewer, query, id); err != nil {
		return nil, err
	}
	return &reviewer, nil
}

// UpdateLastLogin stamps the last successful sign-in.
func (r *ReviewerRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE reviewers SET last_login = $2, updated_at = $2 WHERE id = $1", id, ts)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
