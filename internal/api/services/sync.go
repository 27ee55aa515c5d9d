package services

import (
	"log/slog"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/usersync"
)

// SyncManager runs deduplicated sync jobs.
type SyncManager interface {
	Submit(req usersync.Request) (*usersync.Job, bool, error)
	Status(req usersync.Request) (usersync.Status, bool)
	Cancel(req usersync.Request) bool
	List() []usersync.Status
}

// SyncService exposes user synchronization to the API.
type SyncService struct {
	manager SyncManager
	logger  *slog.Logger
}

// NewSyncService creates a new SyncService.
func NewSyncService(manager SyncManager, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		manager: manager,
		logger:  logger.With("component", "sync-service"),
	}
}

// Start submits a sync job. created is false when an identical job is
// already queued or running.
func (s *SyncService) Start(req usersync.Request) (resp *models.SyncJobResponse, created bool, err error) {
	job, created, err := s.manager.Submit(req)
	if err != nil {
		return nil, false, err
	}

	status := models.SyncStatusExists
	if created {
		status = models.SyncStatusCreated
	}
	return &models.SyncJobResponse{Status: status, Job: job.Status()}, created, nil
}

// Get returns the latest job for req.
func (s *SyncService) Get(req usersync.Request) (*models.SyncJobResponse, error) {
	st, ok := s.manager.Status(req)
	if !ok {
		return nil, &NotFoundError{Resource: "sync job", ID: req.Key().String()}
	}
	return &models.SyncJobResponse{Status: string(st.State), Job: st}, nil
}

// Cancel requests cancellation of the active job for req.
func (s *SyncService) Cancel(req usersync.Request) (*models.SyncJobResponse, error) {
	if !s.manager.Cancel(req) {
		return nil, &NotFoundError{Resource: "active sync job", ID: req.Key().String()}
	}
	st, _ := s.manager.Status(req)
	return &models.SyncJobResponse{Status: models.SyncStatusCancelRequested, Job: st}, nil
}

// List returns every known job.
func (s *SyncService) List() *models.SyncJobListResponse {
	jobs := s.manager.List()
	if jobs == nil {
		jobs = []usersync.Status{}
	}
	return &models.SyncJobListResponse{Jobs: jobs, TotalCount: len(jobs)}
}
