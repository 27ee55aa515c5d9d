// Package usersync reconciles locally stored Entra ID accounts with the Entra ID
// directory. It disables local accounts whose directory account is disabled and
// deletes local accounts that no longer exist upstream. It never provisions
// accounts and never re-enables a disabled one.
package usersync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/janovincze/entrasync/internal/directory"
)

// ErrCanceled is returned by a reconciliation pass that observed a cancel request.
var ErrCanceled = errors.New("sync canceled")

// LocalUser is a local account linked to an Entra ID subject.
type LocalUser struct {
	ID      uuid.UUID
	Subject string
	Issuer  string
	Email   string
	Active  bool

	// Aliases are other accounts stored for the same subject under another
	// form of the issuer. They share every sync decision made for ID.
	Aliases []uuid.UUID
}

// IDs returns ID followed by the aliases.
func (u LocalUser) IDs() []uuid.UUID {
	return append([]uuid.UUID{u.ID}, u.Aliases...)
}

// UserStore gives access to the local accounts linked to Entra ID.
type UserStore interface {
	// ListLinked returns the linked accounts keyed by subject.
	ListLinked(ctx context.Context) (map[string]LocalUser, error)

	// Disable marks the account inactive.
	Disable(ctx context.Context, user LocalUser) error

	// Delete removes the account.
	Delete(ctx context.Context, user LocalUser) error
}

// Directory lists the authoritative accounts.
type Directory interface {
	ListUsers(ctx context.Context) ([]directory.User, error)
}

// Request selects what a sync pass may change.
type Request struct {
	Disable bool `json:"disable"`
	Remove  bool `json:"remove"`
}

// Key returns the deduplication key of the request.
func (r Request) Key() Key {
	return Key{"entra", "users", "sync", strconv.FormatBool(r.Disable), strconv.FormatBool(r.Remove)}
}

// Key identifies one combination of sync parameters.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "/")
}

// State is the lifecycle state of a sync job.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateCanceled State = "canceled"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCanceled
}

// Result counts the outcome of a reconciliation pass.
type Result struct {
	Disabled  int `json:"disabled"`
	Deleted   int `json:"deleted"`
	Untouched int `json:"untouched"`
}

// Status is a snapshot of a sync job.
type Status struct {
	RunID      uuid.UUID `json:"run_id"`
	Key        Key       `json:"job_key"`
	Request    Request   `json:"request"`
	State      State     `json:"state"`
	Result     Result    `json:"result"`
	Error      string    `json:"error,omitempty"`
	QueuedAt   time.Time `json:"queued_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// PersistenceError is returned by a UserStore when a mutation could not be applied.
type PersistenceError struct {
	Op      string
	Subject string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s user %s: %v", e.Op, e.Subject, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// SyncJobError is the terminal error of a failed sync job.
type SyncJobError struct {
	Key Key
	Err error
}

func (e *SyncJobError) Error() string {
	return fmt.Sprintf("sync job %s failed: %v", e.Key, e.Err)
}

func (e *SyncJobError) Unwrap() error {
	return e.Err
}
