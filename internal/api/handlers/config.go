package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/config"
	"github.com/janovincze/entrasync/internal/entraid"
)

// ConfigHandler handles configuration endpoints.
type ConfigHandler struct {
	cfg *config.Config
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetConfig returns the configuration without credentials. The wiki UI reads
// the native login settings from it.
// GET /entraid/config
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	e := h.cfg.EntraID
	response := models.ConfigResponse{
		Environment: h.cfg.Environment,
		API: models.APIConfig{
			ListenAddr: h.cfg.API.ListenAddr,
			BaseURL:    h.cfg.API.BaseURL,
		},
		EntraID: models.EntraIDConfig{
			Active:           e.Active(),
			Scopes:           e.Scopes(),
			RedirectURL:      e.RedirectURL,
			XWikiLoginGlobal: h.cfg.Wiki.XWikiLoginGlobal,
			XWikiLoginGroups: h.cfg.Wiki.XWikiLoginGroups,
		},
		Sync: models.SyncConfig{
			Schedule: h.cfg.Sync.Schedule,
			Disable:  h.cfg.Sync.Disable,
			Remove:   h.cfg.Sync.Remove,
		},
		Metrics: models.MetricConfig{
			Enabled: h.cfg.Metrics.Enabled,
		},
	}
	if e.Active() {
		response.EntraID.TenantID = e.TenantID
		response.EntraID.ClientID = e.ClientID
		response.EntraID.IssuerURL = entraid.IssuerFor(e.TenantID)
	}

	c.JSON(http.StatusOK, response)
}
