package models

import "time"

// ReviewerRole represents the roles allowed on the review surface.
type ReviewerRole string

const (
	RoleAdmin    ReviewerRole = "ADMIN"
	RoleReviewer ReviewerRole = "REVIEWER"
)

// Reviewer is a staff account allowed to act on attendance reviews.
type Reviewer struct {
	ID           string       `db:"id" json:"id"`
	Email        string       `db:"email" json:"email"`
	PasswordHash string       `db:"password_hash" json:"-"`
	FullName     string       `db:"full_name" json:"full_name"`
	Role         ReviewerRole `db:"role" json:"role"`
	Active       bool         `db:"active" json:"active"`
	LastLogin    *time.Time   `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// LoginRequest is the credential payload for reviewer sign-in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Reviewer    *Reviewer `json:"reviewer"`
}
