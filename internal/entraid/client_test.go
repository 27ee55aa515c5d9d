package entraid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
)

func newTestClient(t *testing.T, serverURL string, opts ...Option) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TenantID:     "contoso",
		RedirectURL:  "https://wiki.example.com/entraid/oauth/callback",
		Scopes:       []string{"openid", "User.Read"},
		Endpoints: Endpoints{
			Authorization: serverURL + "/contoso/oauth2/v2.0/authorize",
			Token:         serverURL + "/contoso/oauth2/v2.0/token",
			Logout:        serverURL + "/contoso/oauth2/v2.0/logout",
		},
		GraphBaseURL: serverURL + "/v1.0",
	}, nil, opts...)
}

func TestClient_AuthorizationURL(t *testing.T) {
	client := NewClient(ClientConfig{
		ClientID:    "client-id",
		TenantID:    "contoso",
		RedirectURL: "https://wiki.example.com/callback",
		Scopes:      []string{"openid", "User.Read"},
	}, nil)

	raw := client.AuthorizationURL("state-123")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse URL: %v", err)
	}

	if u.Host != "login.microsoftonline.com" {
		t.Errorf("expected Entra ID host, got %s", u.Host)
	}
	if u.Path != "/contoso/oauth2/v2.0/authorize" {
		t.Errorf("unexpected path %s", u.Path)
	}

	q := u.Query()
	checks := map[string]string{
		"client_id":     "client-id",
		"redirect_uri":  "https://wiki.example.com/callback",
		"response_type": "code",
		"scope":         "openid User.Read",
		"state":         "state-123",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}

	if again := client.AuthorizationURL("state-123"); again != raw {
		t.Errorf("expected deterministic URL, got %s and %s", raw, again)
	}
}

func TestClient_Exchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contoso/oauth2/v2.0/token" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm() //nolint:errcheck
		if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("code") != "auth-code" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if r.Form.Get("client_secret") != "client-secret" {
			http.Error(w, "missing secret", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
			"access_token": "test-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "openid User.Read User.ReadBasic.All",
		})
	}))
	defer server.Close()

	mClock := quartz.NewMock(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mClock.Set(start)

	client := newTestClient(t, server.URL, WithClock(mClock))

	token, err := client.Exchange(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	if token.AccessToken != "test-access-token" {
		t.Errorf("expected access token, got %s", token.AccessToken)
	}
	if want := start.Add(3600 * time.Second); !token.Expiry.Equal(want) {
		t.Errorf("Expiry = %v, want %v", token.Expiry, want)
	}
	if !CanReadPhotos(token.Scopes) {
		t.Errorf("expected granted scopes from response, got %v", token.Scopes)
	}
}

func TestClient_Exchange_OAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"error":             "invalid_grant",
			"error_description": "AADSTS70008: The provided authorization code has expired.",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Exchange(context.Background(), "expired-code")
	if err == nil {
		t.Fatal("expected error for invalid grant")
	}

	var exErr *TokenExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected TokenExchangeError, got %T", err)
	}
	if !exErr.IsOAuthError() {
		t.Error("expected OAuth error classification")
	}
	want := "OAuth trouble at creating token: AADSTS70008: The provided authorization code has expired."
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestClient_Exchange_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client := newTestClient(t, serverURL)

	_, err := client.Exchange(context.Background(), "auth-code")
	var exErr *TokenExchangeError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected TokenExchangeError, got %v", err)
	}
	if exErr.IsOAuthError() {
		t.Error("transport failure must not be classified as an OAuth error")
	}
	if exErr.Unwrap() == nil {
		t.Error("expected wrapped cause")
	}
	if !strings.HasPrefix(err.Error(), "Generic trouble at creating token: ") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		name     string
		params   url.Values
		wantCode string
		wantErr  []string
	}{
		{
			name:     "code only",
			params:   url.Values{"code": {"abc"}, "state": {"xyz"}},
			wantCode: "abc",
		},
		{
			name:   "error with description",
			params: url.Values{"error": {"access_denied"}, "error_description": {"AADSTS65004: User declined to consent."}},
			wantErr: []string{
				"access_denied",
				"AADSTS65004: User declined to consent.",
			},
		},
		{
			name:     "no code and no error",
			params:   url.Values{"state": {"xyz"}},
			wantCode: "",
		},
		{
			name:     "first code wins",
			params:   url.Values{"code": {"first", "second"}},
			wantCode: "first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := ParseCallback(tt.params)
			if len(tt.wantErr) > 0 {
				var cbErr *CallbackError
				if !errors.As(err, &cbErr) {
					t.Fatalf("expected CallbackError, got %v", err)
				}
				for _, part := range tt.wantErr {
					if !strings.Contains(err.Error(), part) {
						t.Errorf("error %q does not contain %q", err.Error(), part)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestClient_LogoutURL(t *testing.T) {
	client := NewClient(ClientConfig{TenantID: "contoso"}, nil)

	if got := client.LogoutURL(""); got != "https://login.microsoftonline.com/contoso/oauth2/v2.0/logout" {
		t.Errorf("LogoutURL() = %s", got)
	}

	got := client.LogoutURL("https://wiki.example.com/")
	if !strings.Contains(got, "post_logout_redirect_uri=https%3A%2F%2Fwiki.example.com%2F") {
		t.Errorf("LogoutURL() = %s", got)
	}
}
