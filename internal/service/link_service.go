package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/internal/populi"
	"github.com/pbcdev/attend-sync/pkg/config"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
	"github.com/pbcdev/attend-sync/pkg/jobs"
)

type linkRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.StudentLink, error)
	Upsert(ctx context.Context, link *models.StudentLink) error
	SetStatus(ctx context.Context, userID string, status models.LinkStatus, syncedAt *time.Time) error
}

type directoryCache interface {
	GetDirectory(ctx context.Context) (map[string]string, error)
	SetDirectory(ctx context.Context, directory map[string]string, ttl time.Duration) error
}

type populiDirectory interface {
	ListPeople(ctx context.Context, page, limit int) (*populi.PeoplePage, error)
	GetStudent(ctx context.Context, personID string) (*populi.Student, error)
}

// LinkService resolves the Populi identity behind a local user. Attribute
// capture from an SSO assertion is preferred; the email directory cache is
// the fallback for users who never arrive through SSO.
type LinkService struct {
	links    linkRepository
	cache    directoryCache
	populi   populiDirectory
	cfg      config.LinkingConfig
	activity *ActivityLog
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewLinkService constructs the link service.
func NewLinkService(links linkRepository, cache directoryCache, client populiDirectory, cfg config.LinkingConfig, activity *ActivityLog, metrics *MetricsService, logger *zap.Logger) *LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = NewActivityLog(logger)
	}
	return &LinkService{links: links, cache: cache, populi: client, cfg: cfg, activity: activity, metrics: metrics, logger: logger}
}

// LinkFromClaims captures the Populi identity from an externally-verified SSO
// claims map. Trusted, no network round-trip; last write wins on conflicting
// claims. Idempotent.
func (s *LinkService) LinkFromClaims(ctx context.Context, userID string, claims map[string]interface{}) (*models.StudentLink, error) {
	personID := claimString(claims, s.cfg.PersonIDClaim)
	if personID == "" {
		return nil, appErrors.Clone(appErrors.ErrLinkingRequired, fmt.Sprintf("sso assertion carries no %q claim", s.cfg.PersonIDClaim))
	}

	now := time.Now().UTC()
	link := &models.StudentLink{
		UserID:           userID,
		PersonID:         personID,
		VisibleStudentID: claimString(claims, s.cfg.StudentIDClaim),
		FirstName:        claimString(claims, s.cfg.FirstNameClaim),
		LastName:         claimString(claims, s.cfg.LastNameClaim),
		SyncStatus:       models.LinkStatusSynced,
		LastSyncedAt:     &now,
	}
	if err := s.links.Upsert(ctx, link); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "persist student link")
	}

	s.activity.Infof("Linked user %s to Populi person %s via SSO attributes.", userID, personID)
	return link, nil
}

// LinkByEmail resolves a person id through the 24h email directory cache,
// rebuilding the cache at most once on a miss. This path pages the whole
// people directory and is deliberately excluded from bulk contexts.
func (s *LinkService) LinkByEmail(ctx context.Context, userID, email string) (*models.StudentLink, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, appErrors.Clone(appErrors.ErrLinkingRequired, "no email available for directory lookup")
	}

	personID, err := s.lookupEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if personID == "" {
		s.activity.Warnf("No Populi record found for email %s.", email)
		if err := s.links.Upsert(ctx, &models.StudentLink{UserID: userID, SyncStatus: models.LinkStatusNotFound}); err != nil {
			s.logger.Warn("failed to mark link not_found", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrLinkingRequired, fmt.Sprintf("no Populi record matches email %s", email))
	}

	link := &models.StudentLink{
		UserID:     userID,
		PersonID:   personID,
		SyncStatus: models.LinkStatusSynced,
	}

	// The visible student id is cosmetic; failure to fetch it does not
	// block the link.
	if student, err := s.populi.GetStudent(ctx, personID); err != nil {
		s.activity.Warnf("Could not fetch student detail for person %s: %v", personID, err)
	} else {
		link.VisibleStudentID = student.VisibleStudentID.String()
	}

	now := time.Now().UTC()
	link.LastSyncedAt = &now
	if err := s.links.Upsert(ctx, link); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "persist student link")
	}

	s.activity.Infof("Linked user %s to Populi person %s via email cache.", userID, personID)
	return link, nil
}

// EnsureLink returns the existing link or attempts email-based linking once.
// Safe to call repeatedly.
func (s *LinkService) EnsureLink(ctx context.Context, userID, email string) (*models.StudentLink, error) {
	link, err := s.links.FindByUserID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load student link")
	}
	if link != nil && link.Linked() {
		return link, nil
	}
	return s.LinkByEmail(ctx, userID, email)
}

// MarkSynced stamps a successful attendance sync on the link.
func (s *LinkService) MarkSynced(ctx context.Context, userID string, at time.Time) {
	if err := s.links.SetStatus(ctx, userID, models.LinkStatusSynced, &at); err != nil {
		s.logger.Warn("failed to stamp link sync", zap.String("user_id", userID), zap.Error(err))
	}
}

// RefreshDirectoryCache pages the whole people directory, keeps students
// with a primary email, and stores the lowercased email map for the
// configured TTL. Returns the number of cached students.
func (s *LinkService) RefreshDirectoryCache(ctx context.Context) (int, error) {
	s.activity.Infof("Refreshing student directory cache.")

	directory := map[string]string{}
	page := 1
	for {
		people, err := s.populi.ListPeople(ctx, page, s.cfg.DirectoryPageSize)
		if err != nil {
			s.activity.Errorf("Directory refresh failed on page %d: %v", page, err)
			return 0, err
		}
		if len(people.Data) == 0 {
			break
		}
		for _, person := range people.Data {
			if person.IsStudent() && person.PrimaryEmail != "" {
				directory[strings.ToLower(person.PrimaryEmail)] = person.ID.String()
			}
		}
		if !people.HasMore {
			break
		}
		page++
	}

	if len(directory) == 0 {
		s.activity.Warnf("Directory refresh returned no students; keeping previous cache.")
		return 0, nil
	}

	if err := s.cache.SetDirectory(ctx, directory, s.cfg.DirectoryTTL); err != nil {
		s.activity.Errorf("Failed to store directory cache: %v", err)
		return 0, err
	}

	s.activity.Infof("Student directory cache refreshed with %d students.", len(directory))
	return len(directory), nil
}

func (s *LinkService) lookupEmail(ctx context.Context, email string) (string, error) {
	directory, err := s.cache.GetDirectory(ctx)
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "read directory cache")
	}

	if id, ok := directory[email]; ok {
		s.metrics.DirectoryCacheLookup(true)
		return id, nil
	}
	s.metrics.DirectoryCacheLookup(false)

	// One rebuild per miss, then a final lookup.
	if _, err := s.RefreshDirectoryCache(ctx); err != nil {
		return "", err
	}
	directory, err = s.cache.GetDirectory(ctx)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return "", nil
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "read directory cache")
	}
	return directory[email], nil
}

// BatchLinkItem is one bulk-link unit of work carried on the jobs queue.
type BatchLinkItem struct {
	UserID string                 `json:"user_id"`
	Claims map[string]interface{} `json:"claims"`
}

// HandleBatchJob processes one bulk-link job. Bulk contexts use claims only;
// the cache-scan fallback is excluded to bound API load, and an inter-item
// delay keeps the batch under the upstream's rate tolerance.
func (s *LinkService) HandleBatchJob(ctx context.Context, job jobs.Job) error {
	item, ok := job.Payload.(BatchLinkItem)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	if _, err := s.LinkFromClaims(ctx, item.UserID, item.Claims); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.BatchDelay):
	}
	return nil
}

func claimString(claims map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	switch v := claims[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
