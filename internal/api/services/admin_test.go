package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/api/repositories"
)

type fakeAdminStore struct {
	users     map[string]*models.User
	hashes    map[string]string
	getErr    error
	lastLogin []uuid.UUID
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{
		users:  make(map[string]*models.User),
		hashes: make(map[string]string),
	}
}

func (s *fakeAdminStore) GetByEmail(_ context.Context, email string) (*models.User, string, error) {
	if s.getErr != nil {
		return nil, "", s.getErr
	}
	u, ok := s.users[email]
	if !ok {
		return nil, "", repositories.ErrUserNotFound
	}
	return u, s.hashes[email], nil
}

func (s *fakeAdminStore) CreateLocalAdmin(_ context.Context, email, passwordHash string) (*models.User, error) {
	if _, ok := s.users[email]; ok {
		return nil, repositories.ErrUserEmailExists
	}
	u := &models.User{ID: uuid.New(), Email: email, Role: models.RoleAdmin, IsActive: true}
	s.users[email] = u
	s.hashes[email] = passwordHash
	return u, nil
}

func (s *fakeAdminStore) UpdateLastLogin(_ context.Context, id uuid.UUID) error {
	s.lastLogin = append(s.lastLogin, id)
	return nil
}

func newTestAdminService(t *testing.T, store AdminStore) *AdminService {
	t.Helper()
	sessions, _ := newTestSessions(t)
	cfg := testAuthConfig()
	cfg.AdminEmail = "admin@example.com"
	cfg.AdminPassword = "correct horse battery"
	return NewAdminService(store, sessions, cfg, nil)
}

func TestAdminService_BootstrapAndLogin(t *testing.T) {
	store := newFakeAdminStore()
	svc := newTestAdminService(t, store)
	ctx := context.Background()

	if err := svc.BootstrapAdmin(ctx); err != nil {
		t.Fatalf("BootstrapAdmin() error = %v", err)
	}
	if err := svc.BootstrapAdmin(ctx); err != nil {
		t.Fatalf("second BootstrapAdmin() error = %v", err)
	}
	if len(store.users) != 1 {
		t.Fatalf("users = %d, want 1", len(store.users))
	}

	resp, err := svc.Login(ctx, &models.LoginRequest{Email: "admin@example.com", Password: "correct horse battery"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a session token")
	}
	if resp.User.Role != models.RoleAdmin {
		t.Errorf("Role = %v, want admin", resp.User.Role)
	}
	if len(store.lastLogin) != 1 {
		t.Errorf("last login updates = %d, want 1", len(store.lastLogin))
	}
}

func TestAdminService_Login_Failures(t *testing.T) {
	store := newFakeAdminStore()
	svc := newTestAdminService(t, store)
	ctx := context.Background()
	if err := svc.BootstrapAdmin(ctx); err != nil {
		t.Fatalf("BootstrapAdmin() error = %v", err)
	}

	tests := []struct {
		name    string
		req     *models.LoginRequest
		prepare func()
		wantErr error
	}{
		{
			name:    "wrong password",
			req:     &models.LoginRequest{Email: "admin@example.com", Password: "nope"},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "unknown user",
			req:     &models.LoginRequest{Email: "ghost@example.com", Password: "x"},
			wantErr: ErrInvalidCredentials,
		},
		{
			name: "inactive user",
			req:  &models.LoginRequest{Email: "admin@example.com", Password: "correct horse battery"},
			prepare: func() {
				store.users["admin@example.com"].IsActive = false
			},
			wantErr: ErrUserInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.prepare != nil {
				tt.prepare()
			}
			_, err := svc.Login(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdminService_Login_Validation(t *testing.T) {
	svc := newTestAdminService(t, newFakeAdminStore())

	_, err := svc.Login(context.Background(), &models.LoginRequest{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Login() error = %T, want *ValidationError", err)
	}
	if len(verr.Errors) != 2 {
		t.Errorf("field errors = %d, want 2", len(verr.Errors))
	}
}

func TestAdminService_Bootstrap_StoreError(t *testing.T) {
	store := newFakeAdminStore()
	store.getErr = errors.New("db down")
	svc := newTestAdminService(t, store)

	if err := svc.BootstrapAdmin(context.Background()); err == nil {
		t.Error("expected error")
	}
}
