package models

import (
	"strconv"

	"github.com/janovincze/entrasync/internal/usersync"
)

// Sync submission outcomes.
const (
	SyncStatusCreated         = "created"
	SyncStatusExists          = "exists"
	SyncStatusCancelRequested = "cancel_requested"
)

// SyncQuery holds the sync flags read from the query string.
type SyncQuery struct {
	Disable string `form:"disable"`
	Remove  string `form:"remove"`
}

// Request converts the query into a sync request. Values that are not a
// valid boolean count as false.
func (q SyncQuery) Request() usersync.Request {
	return usersync.Request{
		Disable: parseBool(q.Disable),
		Remove:  parseBool(q.Remove),
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// SyncJobResponse wraps a sync job for API responses.
type SyncJobResponse struct {
	Status string          `json:"status"`
	Job    usersync.Status `json:"job"`
}

// SyncJobListResponse wraps the known sync jobs.
type SyncJobListResponse struct {
	Jobs       []usersync.Status `json:"jobs"`
	TotalCount int               `json:"total_count"`
}
