// Package repositories provides data access layer for API resources.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/entraid"
	"github.com/janovincze/entrasync/internal/usersync"
)

// User repository errors.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserEmailExists = errors.New("user with this email already exists")
)

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS entrasync;

CREATE TABLE IF NOT EXISTS entrasync.users (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email         TEXT NOT NULL,
	first_name    TEXT,
	last_name     TEXT,
	role          TEXT NOT NULL DEFAULT 'user',
	is_active     BOOLEAN NOT NULL DEFAULT true,
	oidc_subject  TEXT,
	oidc_issuer   TEXT,
	password_hash TEXT,
	avatar_key    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_login_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS users_oidc_identity
	ON entrasync.users (oidc_issuer, oidc_subject) WHERE oidc_subject IS NOT NULL;

CREATE UNIQUE INDEX IF NOT EXISTS users_local_email
	ON entrasync.users (email) WHERE password_hash IS NOT NULL;
`

const userColumns = `id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), role, is_active,
	COALESCE(oidc_subject, ''), COALESCE(oidc_issuer, ''), COALESCE(avatar_key, ''),
	last_login_at, created_at, updated_at`

// UserRepository handles database operations for users. It is the local
// user store of the sync reconciler.
type UserRepository struct {
	db *pgxpool.Pool
}

var _ usersync.UserStore = (*UserRepository)(nil)

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// EnsureSchema creates the users table and its indexes when missing.
func (r *UserRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure user schema: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&role,
		&u.IsActive,
		&u.OIDCSubject,
		&u.OIDCIssuer,
		&u.AvatarKey,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = models.UserRole(role)
	return &u, nil
}

// --- Sync operations ---

// ListLinked returns the accounts linked to Entra ID keyed by subject.
func (r *UserRepository) ListLinked(ctx context.Context) (map[string]usersync.LocalUser, error) {
	query := `
		SELECT id, oidc_subject, oidc_issuer, email, is_active
		FROM entrasync.users
		WHERE oidc_subject IS NOT NULL AND oidc_subject <> '' AND oidc_issuer IS NOT NULL
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked users: %w", err)
	}
	defer rows.Close()

	var users []usersync.LocalUser
	for rows.Next() {
		var u usersync.LocalUser
		if err := rows.Scan(&u.ID, &u.Subject, &u.Issuer, &u.Email, &u.Active); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return collectLinked(users), nil
}

// collectLinked keeps users with a subject whose issuer is Entra ID. Rows
// sharing a subject are merged into one entry whose primary account is the
// one with the current /v2.0 issuer; the others become aliases.
func collectLinked(users []usersync.LocalUser) map[string]usersync.LocalUser {
	linked := make(map[string]usersync.LocalUser, len(users))
	for _, u := range users {
		if u.Subject == "" || !entraid.IsEntraIssuer(u.Issuer) {
			continue
		}
		existing, ok := linked[u.Subject]
		if !ok {
			linked[u.Subject] = u
			continue
		}
		if entraid.FixIssuerVersion(u.Issuer) == u.Issuer && entraid.FixIssuerVersion(existing.Issuer) != existing.Issuer {
			u.Aliases = append(existing.Aliases, existing.ID)
			linked[u.Subject] = u
			continue
		}
		existing.Aliases = append(existing.Aliases, u.ID)
		linked[u.Subject] = existing
	}
	return linked
}

// Disable marks a linked account inactive.
func (r *UserRepository) Disable(ctx context.Context, user usersync.LocalUser) error {
	query := `
		UPDATE entrasync.users
		SET is_active = false, updated_at = NOW()
		WHERE id = ANY($1)
	`
	return r.mutate(ctx, "disable", user, query)
}

// Delete removes a linked account.
func (r *UserRepository) Delete(ctx context.Context, user usersync.LocalUser) error {
	return r.mutate(ctx, "delete", user, `DELETE FROM entrasync.users WHERE id = ANY($1)`)
}

func (r *UserRepository) mutate(ctx context.Context, op string, user usersync.LocalUser, query string) error {
	result, err := r.db.Exec(ctx, query, user.IDs())
	if err != nil {
		return &usersync.PersistenceError{Op: op, Subject: user.Subject, Err: err}
	}
	if result.RowsAffected() == 0 {
		return &usersync.PersistenceError{Op: op, Subject: user.Subject, Err: ErrUserNotFound}
	}
	return nil
}

// --- Login operations ---

// UpsertOIDCUser creates the account for an Entra ID identity or refreshes
// its profile fields. The active flag of an existing account is left as is.
func (r *UserRepository) UpsertOIDCUser(ctx context.Context, identity *entraid.Identity) (*models.User, error) {
	query := `
		INSERT INTO entrasync.users (email, first_name, last_name, role, oidc_subject, oidc_issuer)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (oidc_issuer, oidc_subject) WHERE oidc_subject IS NOT NULL
		DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			updated_at = NOW()
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query,
		identity.Email(),
		nullString(identity.FirstName),
		nullString(identity.LastName),
		string(models.RoleUser),
		identity.InternalID,
		identity.IssuerURL,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert oidc user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM entrasync.users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a local password account by email with its password hash.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, string, error) {
	query := `SELECT ` + userColumns + `, password_hash
		FROM entrasync.users
		WHERE email = $1 AND password_hash IS NOT NULL`

	var (
		u    models.User
		role string
		hash string
	)
	err := r.db.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&role,
		&u.IsActive,
		&u.OIDCSubject,
		&u.OIDCIssuer,
		&u.AvatarKey,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
		&hash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrUserNotFound
		}
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = models.UserRole(role)
	return &u, hash, nil
}

// CreateLocalAdmin creates a password account with the admin role.
func (r *UserRepository) CreateLocalAdmin(ctx context.Context, email, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO entrasync.users (email, role, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, email, string(models.RoleAdmin), passwordHash))
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrUserEmailExists
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	return user, nil
}

// UpdateLastLogin updates the last login time for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE entrasync.users
		SET last_login_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, "update last login", query, id)
}

// SetAvatarKey records the object key of the stored profile photo.
func (r *UserRepository) SetAvatarKey(ctx context.Context, id uuid.UUID, key string) error {
	query := `
		UPDATE entrasync.users
		SET avatar_key = $1, updated_at = NOW()
		WHERE id = $2
	`
	return r.exec(ctx, "set avatar key", query, nullString(key), id)
}

func (r *UserRepository) exec(ctx context.Context, what, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// --- Migration ---

// FixIssuerVersions rewrites stored Entra ID issuers ending in /2.0 to the
// /v2.0 form. It returns the number of updated accounts.
func (r *UserRepository) FixIssuerVersions(ctx context.Context) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	rows, err := tx.Query(ctx, `
		SELECT id, oidc_issuer
		FROM entrasync.users
		WHERE oidc_issuer IS NOT NULL
		FOR UPDATE
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to list issuers: %w", err)
	}

	var stored []issuerRow
	for rows.Next() {
		var row issuerRow
		if err := rows.Scan(&row.ID, &row.Issuer); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan issuer row: %w", err)
		}
		stored = append(stored, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate issuers: %w", err)
	}

	fixes := planIssuerFixes(stored)
	for _, fix := range fixes {
		if _, err := tx.Exec(ctx,
			`UPDATE entrasync.users SET oidc_issuer = $1, updated_at = NOW() WHERE id = $2`,
			fix.Issuer, fix.ID,
		); err != nil {
			return 0, fmt.Errorf("failed to update issuer: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit issuer migration: %w", err)
	}
	return len(fixes), nil
}

type issuerRow struct {
	ID     uuid.UUID
	Issuer string
}

// planIssuerFixes returns the rows whose Entra ID issuer needs rewriting,
// carrying the new value.
func planIssuerFixes(rows []issuerRow) []issuerRow {
	var fixes []issuerRow
	for _, row := range rows {
		if !entraid.IsEntraIssuer(row.Issuer) {
			continue
		}
		if fixed := entraid.FixIssuerVersion(row.Issuer); fixed != row.Issuer {
			fixes = append(fixes, issuerRow{ID: row.ID, Issuer: fixed})
		}
	}
	return fixes
}

// nullString returns nil for an empty string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isDuplicateKeyError reports a PostgreSQL unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return !errors.Is(err, pgx.ErrNoRows) &&
		(strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key"))
}
