package services

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/janovincze/entrasync/internal/api/models"
	"github.com/janovincze/entrasync/internal/entraid"
)

type fakeOAuthClient struct {
	exchangeErr error
	profileErr  error
	photo       *entraid.Photo
	gotCode     string
	gotSince    *time.Time
}

func (c *fakeOAuthClient) AuthorizationURL(state string) string {
	return "https://login.example/authorize?state=" + url.QueryEscape(state)
}

func (c *fakeOAuthClient) LogoutURL(postLogoutRedirect string) string {
	if postLogoutRedirect == "" {
		return "https://login.example/logout"
	}
	return "https://login.example/logout?post_logout_redirect_uri=" + url.QueryEscape(postLogoutRedirect)
}

func (c *fakeOAuthClient) Exchange(_ context.Context, code string) (*entraid.Token, error) {
	c.gotCode = code
	if c.exchangeErr != nil {
		return nil, c.exchangeErr
	}
	return &entraid.Token{AccessToken: "at", Scopes: []string{"openid", "User.Read.All"}}, nil
}

func (c *fakeOAuthClient) FetchProfile(_ context.Context, _ string, _ []string) (*entraid.Identity, error) {
	if c.profileErr != nil {
		return nil, c.profileErr
	}
	return &entraid.Identity{
		InternalID: "sub-1",
		FirstName:  "Alice",
		LastName:   "Doe",
		Emails:     []string{"alice@example.com"},
		IssuerURL:  "https://login.microsoftonline.com/contoso/v2.0",
	}, nil
}

func (c *fakeOAuthClient) FetchProfilePhoto(_ context.Context, since *time.Time, _ *entraid.Identity, _ string, _ []string) *entraid.Photo {
	c.gotSince = since
	return c.photo
}

type fakeLoginStore struct {
	user      *models.User
	upsertErr error
	avatarKey string
	logins    int
}

func (s *fakeLoginStore) UpsertOIDCUser(_ context.Context, identity *entraid.Identity) (*models.User, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	if s.user == nil {
		s.user = &models.User{
			ID:          uuid.New(),
			Email:       identity.Email(),
			Role:        models.RoleUser,
			IsActive:    true,
			OIDCSubject: identity.InternalID,
			OIDCIssuer:  identity.IssuerURL,
		}
	}
	copied := *s.user
	return &copied, nil
}

func (s *fakeLoginStore) UpdateLastLogin(_ context.Context, _ uuid.UUID) error {
	s.logins++
	return nil
}

func (s *fakeLoginStore) SetAvatarKey(_ context.Context, _ uuid.UUID, key string) error {
	s.avatarKey = key
	return nil
}

type fakeAvatars struct {
	err  error
	puts int
}

func (a *fakeAvatars) Put(_ context.Context, userID uuid.UUID, photo *entraid.Photo) (string, error) {
	a.puts++
	if a.err != nil {
		return "", a.err
	}
	return "avatars/" + userID.String() + "/" + photo.Filename, nil
}

func callbackParams(t *testing.T, sessions *SessionService, code string) url.Values {
	t.Helper()
	state, err := sessions.IssueState("Sandbox.WebHome")
	if err != nil {
		t.Fatalf("IssueState() error = %v", err)
	}
	params := url.Values{"state": {state}}
	if code != "" {
		params.Set("code", code)
	}
	return params
}

func TestLoginService_Callback(t *testing.T) {
	sessions, _ := newTestSessions(t)
	client := &fakeOAuthClient{photo: &entraid.Photo{
		Body:      io.NopCloser(strings.NewReader("jpeg")),
		MediaType: "image/jpeg",
		Filename:  "me.jpg",
	}}
	store := &fakeLoginStore{}
	avatars := &fakeAvatars{}
	svc := NewLoginService(client, store, avatars, sessions, nil)

	resp, err := svc.Callback(context.Background(), callbackParams(t, sessions, "the-code"))
	if err != nil {
		t.Fatalf("Callback() error = %v", err)
	}

	if client.gotCode != "the-code" {
		t.Errorf("exchanged code = %q", client.gotCode)
	}
	if resp.Token == "" {
		t.Error("expected a session token")
	}
	if resp.RedirectDocument != "Sandbox.WebHome" {
		t.Errorf("RedirectDocument = %q", resp.RedirectDocument)
	}
	if resp.User.Email != "alice@example.com" {
		t.Errorf("Email = %q", resp.User.Email)
	}
	if avatars.puts != 1 || !strings.HasSuffix(store.avatarKey, "/me.jpg") {
		t.Errorf("avatar puts = %d, key = %q", avatars.puts, store.avatarKey)
	}
	if store.logins != 1 {
		t.Errorf("last login updates = %d, want 1", store.logins)
	}
	if client.gotSince != nil {
		t.Error("first login should not send If-Modified-Since")
	}
}

func TestLoginService_Callback_Errors(t *testing.T) {
	sessions, _ := newTestSessions(t)

	tests := []struct {
		name   string
		client *fakeOAuthClient
		store  *fakeLoginStore
		params func() url.Values
		check  func(t *testing.T, err error)
	}{
		{
			name:   "bad state",
			client: &fakeOAuthClient{},
			store:  &fakeLoginStore{},
			params: func() url.Values { return url.Values{"state": {"forged"}, "code": {"c"}} },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrInvalidState) {
					t.Errorf("error = %v, want ErrInvalidState", err)
				}
			},
		},
		{
			name:   "provider error",
			client: &fakeOAuthClient{},
			store:  &fakeLoginStore{},
			params: func() url.Values {
				p := callbackParams(t, sessions, "")
				p.Set("error", "access_denied")
				p.Set("error_description", "user declined")
				return p
			},
			check: func(t *testing.T, err error) {
				var cerr *entraid.CallbackError
				if !errors.As(err, &cerr) {
					t.Fatalf("error = %T, want *entraid.CallbackError", err)
				}
				if !strings.Contains(err.Error(), "access_denied") || !strings.Contains(err.Error(), "user declined") {
					t.Errorf("error = %q", err.Error())
				}
			},
		},
		{
			name:   "missing code",
			client: &fakeOAuthClient{},
			store:  &fakeLoginStore{},
			params: func() url.Values { return callbackParams(t, sessions, "") },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrMissingCode) {
					t.Errorf("error = %v, want ErrMissingCode", err)
				}
			},
		},
		{
			name:   "exchange failure",
			client: &fakeOAuthClient{exchangeErr: &entraid.TokenExchangeError{Description: "invalid_grant"}},
			store:  &fakeLoginStore{},
			params: func() url.Values { return callbackParams(t, sessions, "c") },
			check: func(t *testing.T, err error) {
				var terr *entraid.TokenExchangeError
				if !errors.As(err, &terr) {
					t.Errorf("error = %T, want *entraid.TokenExchangeError", err)
				}
			},
		},
		{
			name:   "inactive user",
			client: &fakeOAuthClient{},
			store:  &fakeLoginStore{user: &models.User{ID: uuid.New(), IsActive: false}},
			params: func() url.Values { return callbackParams(t, sessions, "c") },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrUserInactive) {
					t.Errorf("error = %v, want ErrUserInactive", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewLoginService(tt.client, tt.store, nil, sessions, nil)
			resp, err := svc.Callback(context.Background(), tt.params())
			if resp != nil {
				t.Error("expected no response")
			}
			tt.check(t, err)
			if tt.store.logins != 0 {
				t.Error("failed login must not update last login")
			}
		})
	}
}

func TestLoginService_PhotoFailureIsNotFatal(t *testing.T) {
	sessions, _ := newTestSessions(t)
	client := &fakeOAuthClient{photo: &entraid.Photo{Body: io.NopCloser(strings.NewReader("x")), Filename: "a.jpeg"}}
	store := &fakeLoginStore{}
	svc := NewLoginService(client, store, &fakeAvatars{err: errors.New("bucket missing")}, sessions, nil)

	if _, err := svc.Callback(context.Background(), callbackParams(t, sessions, "c")); err != nil {
		t.Fatalf("Callback() error = %v", err)
	}
	if store.avatarKey != "" {
		t.Error("avatar key recorded despite store failure")
	}
}

func TestLoginService_Skipped(t *testing.T) {
	sessions, _ := newTestSessions(t)
	svc := NewLoginService(nil, &fakeLoginStore{}, nil, sessions, nil)

	if svc.Enabled() {
		t.Error("Enabled() = true without a client")
	}
	if _, err := svc.AuthorizeURL(""); !errors.Is(err, ErrEntraIDSkipped) {
		t.Errorf("AuthorizeURL() error = %v, want ErrEntraIDSkipped", err)
	}
	if _, err := svc.Callback(context.Background(), url.Values{}); !errors.Is(err, ErrEntraIDSkipped) {
		t.Errorf("Callback() error = %v, want ErrEntraIDSkipped", err)
	}
}

func TestLoginService_LogoutURL(t *testing.T) {
	sessions, _ := newTestSessions(t)

	svc := NewLoginService(&fakeOAuthClient{}, &fakeLoginStore{}, nil, sessions, nil)
	got, err := svc.LogoutURL("https://wiki.example.com/")
	if err != nil {
		t.Fatalf("LogoutURL() error = %v", err)
	}
	if got != "https://login.example/logout?post_logout_redirect_uri="+url.QueryEscape("https://wiki.example.com/") {
		t.Errorf("LogoutURL() = %s", got)
	}

	skipped := NewLoginService(nil, &fakeLoginStore{}, nil, sessions, nil)
	if _, err := skipped.LogoutURL(""); !errors.Is(err, ErrEntraIDSkipped) {
		t.Errorf("LogoutURL() error = %v, want ErrEntraIDSkipped", err)
	}
}

func TestLoginService_AuthorizeURL(t *testing.T) {
	sessions, _ := newTestSessions(t)
	svc := NewLoginService(&fakeOAuthClient{}, &fakeLoginStore{}, nil, sessions, nil)

	raw, err := svc.AuthorizeURL("Main.WebHome")
	if err != nil {
		t.Fatalf("AuthorizeURL() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	claims, err := sessions.ValidateState(u.Query().Get("state"))
	if err != nil {
		t.Fatalf("ValidateState() error = %v", err)
	}
	if claims.RedirectDocument != "Main.WebHome" {
		t.Errorf("RedirectDocument = %q", claims.RedirectDocument)
	}
}
