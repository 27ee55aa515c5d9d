package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/usersync"
)

// gatedRunner blocks until release is closed.
type gatedRunner struct {
	release chan struct{}
}

func (r *gatedRunner) Run(ctx context.Context, _ usersync.Request, canceled func() bool) (usersync.Result, error) {
	select {
	case <-r.release:
	case <-ctx.Done():
		return usersync.Result{}, ctx.Err()
	}
	if canceled() {
		return usersync.Result{}, usersync.ErrCanceled
	}
	return usersync.Result{Disabled: 1}, nil
}

func TestSyncService_Start(t *testing.T) {
	runner := &gatedRunner{release: make(chan struct{})}
	manager := usersync.NewManager(runner, nil)
	defer manager.Shutdown(context.Background()) //nolint:errcheck

	svc := NewSyncService(manager, nil)
	req := usersync.Request{Disable: true, Remove: true}

	resp, created, err := svc.Start(req)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !created || resp.Status != models.SyncStatusCreated {
		t.Errorf("first Start() = %v/%q, want created", created, resp.Status)
	}

	resp, created, err = svc.Start(req)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if created || resp.Status != models.SyncStatusExists {
		t.Errorf("second Start() = %v/%q, want exists", created, resp.Status)
	}

	close(runner.release)
	job, _ := manager.Get(req)
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job")
	}

	got, err := svc.Get(req)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Job.State != usersync.StateFinished {
		t.Errorf("State = %v, want finished", got.Job.State)
	}
	if list := svc.List(); list.TotalCount != 1 {
		t.Errorf("List() total = %d, want 1", list.TotalCount)
	}
}

func TestSyncService_NotFound(t *testing.T) {
	manager := usersync.NewManager(&gatedRunner{release: make(chan struct{})}, nil)
	defer manager.Shutdown(context.Background()) //nolint:errcheck

	svc := NewSyncService(manager, nil)

	var nf *NotFoundError
	if _, err := svc.Get(usersync.Request{}); !errors.As(err, &nf) {
		t.Errorf("Get() error = %v, want *NotFoundError", err)
	}
	if _, err := svc.Cancel(usersync.Request{}); !errors.As(err, &nf) {
		t.Errorf("Cancel() error = %v, want *NotFoundError", err)
	}
	if list := svc.List(); list.Jobs == nil || list.TotalCount != 0 {
		t.Errorf("List() = %+v, want empty", list)
	}
}

func TestSyncService_Cancel(t *testing.T) {
	runner := &gatedRunner{release: make(chan struct{})}
	manager := usersync.NewManager(runner, nil)
	defer manager.Shutdown(context.Background()) //nolint:errcheck

	svc := NewSyncService(manager, nil)
	req := usersync.Request{Remove: true}

	if _, _, err := svc.Start(req); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := svc.Cancel(req)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if resp.Status != models.SyncStatusCancelRequested {
		t.Errorf("Status = %q, want %q", resp.Status, models.SyncStatusCancelRequested)
	}

	close(runner.release)
	job, _ := manager.Get(req)
	<-job.Done()
	if job.Status().State != usersync.StateCanceled {
		t.Errorf("State = %v, want canceled", job.Status().State)
	}
}

func TestSyncService_ManagerClosed(t *testing.T) {
	manager := usersync.NewManager(&gatedRunner{release: make(chan struct{})}, nil)
	if err := manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	svc := NewSyncService(manager, nil)
	if _, _, err := svc.Start(usersync.Request{}); !errors.Is(err, usersync.ErrManagerClosed) {
		t.Errorf("Start() error = %v, want ErrManagerClosed", err)
	}
}
