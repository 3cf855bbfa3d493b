package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/pkg/config"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
)

type reviewerStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Reviewer, error)
	FindByID(ctx context.Context, id string) (*models.Reviewer, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// Claims is the JWT payload issued to reviewer sessions.
type Claims struct {
	Role models.ReviewerRole `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and validates reviewer access tokens.
type AuthService struct {
	reviewers reviewerStore
	cfg       config.JWTConfig
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewAuthService constructs the auth service.
func NewAuthService(reviewers reviewerStore, cfg config.JWTConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{reviewers: reviewers, cfg: cfg, validate: validator.New(), logger: logger}
}

// Login verifies credentials and returns a signed access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	reviewer, err := s.reviewers.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load reviewer")
	}
	if !reviewer.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	if err := bcrypt.CompareHashAndPassword([]byte(reviewer.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.cfg.Expiration)
	claims := Claims{
		Role: reviewer.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   reviewer.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sign access token")
	}

	if err := s.reviewers.UpdateLastLogin(ctx, reviewer.ID, now); err != nil {
		s.logger.Warn("failed to stamp last login", zap.String("reviewer_id", reviewer.ID), zap.Error(err))
	}

	return &models.LoginResponse{AccessToken: token, ExpiresAt: expiresAt, Reviewer: reviewer}, nil
}

// ValidateToken parses and verifies an access token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unexpected signing method")
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// CurrentReviewer loads the reviewer behind validated claims.
func (s *AuthService) CurrentReviewer(ctx context.Context, claims *Claims) (*models.Reviewer, error) {
	reviewer, err := s.reviewers.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "reviewer no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load reviewer")
	}
	if !reviewer.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	return reviewer, nil
}
