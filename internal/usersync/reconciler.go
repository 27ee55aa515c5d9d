package usersync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/janovincze/entrasync/internal/directory"
	"github.com/janovincze/entrasync/internal/metrics"
)

// ActionType is the decision taken for one local account.
type ActionType string

const (
	ActionNone    ActionType = "none"
	ActionDisable ActionType = "disable"
	ActionDelete  ActionType = "delete"
)

// Decide returns the action for a local account given its directory match.
// A missing match is checked before the enabled flag.
func Decide(match *directory.User, req Request) ActionType {
	if match == nil {
		if req.Remove {
			return ActionDelete
		}
		return ActionNone
	}
	if req.Disable && !match.Enabled {
		return ActionDisable
	}
	return ActionNone
}

// Index maps directory users by id. A repeated id keeps its last entry.
func Index(external []directory.User) map[string]directory.User {
	byID := make(map[string]directory.User, len(external))
	for _, u := range external {
		byID[u.ID] = u
	}
	return byID
}

// Plan returns the action for every local account.
func Plan(local map[string]LocalUser, external []directory.User, req Request) map[string]ActionType {
	byID := Index(external)
	plan := make(map[string]ActionType, len(local))
	for subject := range local {
		var match *directory.User
		if u, ok := byID[subject]; ok {
			match = &u
		}
		plan[subject] = Decide(match, req)
	}
	return plan
}

// Reconciler applies one sync pass.
type Reconciler struct {
	store     UserStore
	directory Directory
	logger    *slog.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(store UserStore, dir Directory, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:     store,
		directory: dir,
		logger:    logger.With("component", "sync-reconciler"),
	}
}

// Run loads both account sets and applies the decisions. canceled is polled
// before each local account; when it reports true the pass stops with
// ErrCanceled. The first failed mutation aborts the pass and mutations already
// applied are kept.
func (r *Reconciler) Run(ctx context.Context, req Request, canceled func() bool) (Result, error) {
	var result Result

	local, err := r.store.ListLinked(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list local users: %w", err)
	}

	external, err := r.directory.ListUsers(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list directory users: %w", err)
	}

	plan := Plan(local, external, req)

	r.logger.Debug("reconciling users",
		"local", len(local),
		"external", len(external),
		"disable", req.Disable,
		"remove", req.Remove,
	)

	for subject, action := range plan {
		if canceled != nil && canceled() {
			return result, ErrCanceled
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		user := local[subject]
		switch action {
		case ActionDelete:
			if err := r.store.Delete(ctx, user); err != nil {
				return result, err
			}
			result.Deleted++
			metrics.SyncUsersTotal.WithLabelValues("deleted").Inc()
			r.logger.Info("deleted user missing from directory", "subject", subject, "user_id", user.ID)
		case ActionDisable:
			if err := r.store.Disable(ctx, user); err != nil {
				return result, err
			}
			result.Disabled++
			metrics.SyncUsersTotal.WithLabelValues("disabled").Inc()
			r.logger.Info("disabled user disabled in directory", "subject", subject, "user_id", user.ID)
		default:
			result.Untouched++
		}
	}

	return result, nil
}
