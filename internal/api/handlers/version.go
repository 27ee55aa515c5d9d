package handlers

import (
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/entrasync/internal/api/models"
)

// Build-time variables (set via -ldflags).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// VersionHandler serves build information.
type VersionHandler struct {
	info models.VersionResponse
}

// NewVersionHandler creates a new VersionHandler. An empty version falls back
// to the ldflags Version, and unset commit details are read from the
// embedded VCS build info.
func NewVersionHandler(version string) *VersionHandler {
	if version == "" {
		version = Version
	}
	info := models.VersionResponse{
		Version:    version,
		APIVersion: "v1",
		GoVersion:  runtime.Version(),
		GitCommit:  GitCommit,
		BuildTime:  BuildTime,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.GitCommit == "unknown":
				info.GitCommit = s.Value
			case s.Key == "vcs.time" && info.BuildTime == "unknown":
				info.BuildTime = s.Value
			}
		}
	}

	return &VersionHandler{info: info}
}

// GetVersion returns version information.
// GET /version
func (h *VersionHandler) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}
