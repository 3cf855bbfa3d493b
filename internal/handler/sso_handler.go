package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pbcdev/attend-sync/internal/models"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
	"github.com/pbcdev/attend-sync/pkg/response"
)

type claimsLinker interface {
	LinkFromClaims(ctx context.Context, userID string, claims map[string]interface{}) (*models.StudentLink, error)
}

type studentSyncer interface {
	SyncStudentAttendance(ctx context.Context, userID, email string) (*models.SyncResult, error)
}

// SSOHandler captures identity attributes from single sign-on assertions and
// runs a first sync for the arriving student.
type SSOHandler struct {
	links claimsLinker
	sync  studentSyncer
}

// NewSSOHandler creates a new handler.
func NewSSOHandler(links claimsLinker, sync studentSyncer) *SSOHandler {
	return &SSOHandler{links: links, sync: sync}
}

type ssoLoginRequest struct {
	UserID string `json:"user_id" binding:"required"`
	// Assertion is the IdP-issued token. The portal verifies its signature
	// before forwarding; this surface only extracts attributes from it.
	Assertion string `json:"assertion" binding:"required"`
	Email     string `json:"email"`
}

// Login godoc
// @Summary SSO sign-in trigger
// @Description Capture Populi identity attributes from a verified SSO assertion and sync attendance
// @Tags Sync
// @Accept json
// @Produce json
// @Param payload body ssoLoginRequest true "SSO payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /triggers/sso [post]
func (h *SSOHandler) Login(c *gin.Context) {
	var req ssoLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sso payload"))
		return
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(req.Assertion, claims); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "assertion is not a parseable token"))
		return
	}

	link, err := h.links.LinkFromClaims(c.Request.Context(), req.UserID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.sync.SyncStudentAttendance(c.Request.Context(), req.UserID, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"link": link, "sync": result}, nil)
}
