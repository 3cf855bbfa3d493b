package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pbcdev/attend-sync/internal/service"
	"github.com/pbcdev/attend-sync/pkg/response"
)

// ActivityHandler serves the bounded sync activity log.
type ActivityHandler struct {
	activity *service.ActivityLog
}

// NewActivityHandler creates a new handler.
func NewActivityHandler(activity *service.ActivityLog) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// List godoc
// @Summary Recent sync activity
// @Description Return the most recent sync engine activity entries, newest last
// @Tags Activity
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /activity [get]
func (h *ActivityHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.activity.Entries(), nil)
}
