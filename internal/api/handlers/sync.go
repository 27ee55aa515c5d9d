package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/entrasync/internal/api/middleware"
	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/api/services"
	"github.com/janovincze/entrasync/internal/usersync"
)

// SyncHandler handles user synchronization endpoints.
type SyncHandler struct {
	syncService *services.SyncService
	hub         *usersync.EventHub
	logger      *slog.Logger
}

// NewSyncHandler creates a new SyncHandler. hub may be nil when the event
// stream is disabled.
func NewSyncHandler(syncService *services.SyncService, hub *usersync.EventHub, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{
		syncService: syncService,
		hub:         hub,
		logger:      logger.With("component", "sync-handler"),
	}
}

func syncRequest(c *gin.Context) usersync.Request {
	var q models.SyncQuery
	_ = c.ShouldBindQuery(&q)
	return q.Request()
}

// SyncUsers starts a sync job unless an identical one is active.
// PUT /entraid/user/sync
func (h *SyncHandler) SyncUsers(c *gin.Context) {
	if !middleware.GetAuthContext(c).IsAdmin() {
		h.logger.Warn("Failed to synchronize users with EntraID due to restricted rights.")
		models.RespondWithError(c, models.NewUnauthorizedError(
			c.Request.URL.Path,
			"Administrator rights are required",
		))
		return
	}

	resp, created, err := h.syncService.Start(syncRequest(c))
	if err != nil {
		h.logger.Error(fmt.Sprintf("Failed to synchronize users with EntraID. Root cause is: [%s]", rootCause(err)))
		models.RespondWithError(c, models.NewInternalError(
			c.Request.URL.Path,
			"failed to start the user synchronization",
		))
		return
	}

	if created {
		c.JSON(http.StatusCreated, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSync returns the job for the requested flags.
// GET /entraid/user/sync
func (h *SyncHandler) GetSync(c *gin.Context) {
	resp, err := h.syncService.Get(syncRequest(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CancelSync asks the job for the requested flags to stop.
// DELETE /entraid/user/sync
func (h *SyncHandler) CancelSync(c *gin.Context) {
	resp, err := h.syncService.Cancel(syncRequest(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// ListJobs returns every known sync job.
// GET /entraid/user/sync/jobs
func (h *SyncHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.syncService.List())
}

// StreamEvents upgrades to a websocket that receives job state changes.
// GET /entraid/user/sync/events
func (h *SyncHandler) StreamEvents(c *gin.Context) {
	if h.hub == nil {
		models.RespondWithError(c, models.NewServiceUnavailableError(
			c.Request.URL.Path,
			"the sync event stream is disabled",
		))
		return
	}

	if err := h.hub.HandleWebSocket(c.Writer, c.Request); err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err)
	}
}
