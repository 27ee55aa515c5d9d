package directory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
)

type fakeGraph struct {
	tokenStatus int
	tokenBody   map[string]any
	usersStatus int
	pages       map[string]map[string]any

	mu      sync.Mutex
	gotBody string
	auth    []string
}

func (f *fakeGraph) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tenant/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck
		f.mu.Lock()
		f.gotBody = string(body)
		f.mu.Unlock()
		if r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_ = json.NewEncoder(w).Encode(f.tokenBody) //nolint:errcheck
	})
	mux.HandleFunc("/v1.0/users", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		if r.URL.Query().Get("$select") != "id,accountEnabled" && r.URL.Query().Get("$skiptoken") == "" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if f.usersStatus != http.StatusOK {
			w.WriteHeader(f.usersStatus)
			return
		}
		page := f.pages[r.URL.Query().Get("$skiptoken")]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page) //nolint:errcheck
	})
	return mux
}

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		ClientID:     "app-id",
		ClientSecret: "s3cr&t",
		TokenURL:     serverURL + "/tenant/oauth2/v2.0/token",
		GraphBaseURL: serverURL + "/v1.0",
	}, nil)
}

func TestClient_AccessToken(t *testing.T) {
	fg := &fakeGraph{
		tokenStatus: http.StatusOK,
		tokenBody:   map[string]any{"access_token": "app-token", "expires_in": 3599},
	}
	server := httptest.NewServer(fg.handler(t))
	defer server.Close()

	token, err := newTestClient(server.URL).AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if token != "app-token" {
		t.Errorf("token = %q", token)
	}

	want := "client_id=app-id&scope=https%3A%2F%2Fgraph.microsoft.com%2F.default&client_secret=s3cr%26t&grant_type=client_credentials"
	if fg.gotBody != want {
		t.Errorf("body = %q, want %q", fg.gotBody, want)
	}
}

func TestClient_AccessToken_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    map[string]any
		wantErr error
	}{
		{"non-200", http.StatusUnauthorized, map[string]any{"error": "invalid_client"}, ErrTokenRequestFailed},
		{"created is not ok", http.StatusCreated, map[string]any{"access_token": "x"}, ErrTokenRequestFailed},
		{"missing token", http.StatusOK, map[string]any{"token_type": "Bearer"}, ErrMissingAccessToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := &fakeGraph{tokenStatus: tt.status, tokenBody: tt.body}
			server := httptest.NewServer(fg.handler(t))
			defer server.Close()

			_, err := newTestClient(server.URL).AccessToken(context.Background())
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected AuthError, got %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClient_ListUsers(t *testing.T) {
	fg := &fakeGraph{
		tokenStatus: http.StatusOK,
		tokenBody:   map[string]any{"access_token": "app-token"},
		usersStatus: http.StatusOK,
	}
	server := httptest.NewServer(fg.handler(t))
	defer server.Close()

	fg.pages = map[string]map[string]any{
		"": {
			"value": []map[string]any{
				{"id": "s1", "accountEnabled": true},
				{"id": "s2", "accountEnabled": false},
			},
			"@odata.nextLink": server.URL + "/v1.0/users?$skiptoken=page2",
		},
		"page2": {
			"value": []map[string]any{
				{"id": "s4"},
			},
		},
	}

	users, err := newTestClient(server.URL).ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}

	want := []User{{ID: "s1", Enabled: true}, {ID: "s2", Enabled: false}, {ID: "s4", Enabled: false}}
	if !reflect.DeepEqual(users, want) {
		t.Errorf("users = %+v, want %+v", users, want)
	}
	for _, a := range fg.auth {
		if a != "Bearer app-token" {
			t.Errorf("Authorization = %q", a)
		}
	}
}

func TestClient_ListUsers_Errors(t *testing.T) {
	t.Run("listing rejected", func(t *testing.T) {
		fg := &fakeGraph{
			tokenStatus: http.StatusOK,
			tokenBody:   map[string]any{"access_token": "app-token"},
			usersStatus: http.StatusForbidden,
		}
		server := httptest.NewServer(fg.handler(t))
		defer server.Close()

		_, err := newTestClient(server.URL).ListUsers(context.Background())
		var qErr *QueryError
		if !errors.As(err, &qErr) {
			t.Fatalf("expected QueryError, got %v", err)
		}
		if qErr.StatusCode != http.StatusForbidden {
			t.Errorf("StatusCode = %d", qErr.StatusCode)
		}
		if !errors.Is(err, ErrInvalidResponse) {
			t.Errorf("expected ErrInvalidResponse, got %v", err)
		}
	})

	t.Run("token rejected", func(t *testing.T) {
		fg := &fakeGraph{tokenStatus: http.StatusBadRequest, tokenBody: map[string]any{}}
		server := httptest.NewServer(fg.handler(t))
		defer server.Close()

		_, err := newTestClient(server.URL).ListUsers(context.Background())
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthError, got %v", err)
		}
	})
}

func TestClient_ListUsers_ForeignNextLink(t *testing.T) {
	var foreignCalls int
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer foreign.Close()

	fg := &fakeGraph{
		tokenStatus: http.StatusOK,
		tokenBody:   map[string]any{"access_token": "app-token"},
		usersStatus: http.StatusOK,
		pages: map[string]map[string]any{
			"": {
				"value":           []map[string]any{{"id": "s1", "accountEnabled": true}},
				"@odata.nextLink": foreign.URL + "/v1.0/users?$skiptoken=page2",
			},
		},
	}
	server := httptest.NewServer(fg.handler(t))
	defer server.Close()

	users, err := newTestClient(server.URL).ListUsers(context.Background())
	if users != nil {
		t.Errorf("users = %+v, want none", users)
	}
	var qErr *QueryError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if !errors.Is(err, ErrForeignNextLink) {
		t.Errorf("expected ErrForeignNextLink, got %v", err)
	}
	if foreignCalls != 0 {
		t.Errorf("foreign host called %d times", foreignCalls)
	}
}

func TestClient_SharedHTTPClient(t *testing.T) {
	c := newTestClient("http://localhost")
	if c.client() != c.client() {
		t.Error("expected the HTTP client to be built once")
	}
}
