// Package directory lists Entra ID accounts through Microsoft Graph using the
// client credentials flow.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/janovincze/entrasync/internal/metrics"
)

// GraphDefaultScope is the application scope requested for directory reads.
const GraphDefaultScope = "https://graph.microsoft.com/.default"

// User is the provider-side state of one directory account.
type User struct {
	ID      string `json:"id"`
	Enabled bool   `json:"accountEnabled"`
}

// Config holds the client credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string

	// TokenURL is the tenant token endpoint
	TokenURL string

	// GraphBaseURL is the Graph API root, e.g. https://graph.microsoft.com/v1.0
	GraphBaseURL string

	// Timeout bounds each HTTP call
	Timeout time.Duration
}

// Client queries the Graph directory.
type Client struct {
	cfg    Config
	logger *slog.Logger

	httpOnce   sync.Once
	httpClient *http.Client
}

// NewClient creates a new directory client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = "https://graph.microsoft.com/v1.0"
	}
	cfg.GraphBaseURL = strings.TrimSuffix(cfg.GraphBaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "directory-client"),
	}
}

// client returns the shared HTTP client, building it on first use.
func (c *Client) client() *http.Client {
	c.httpOnce.Do(func() {
		c.httpClient = &http.Client{Timeout: c.cfg.Timeout}
	})
	return c.httpClient
}

// tokenRequestBody renders the client credentials form in the field order Entra ID documents.
func (c *Client) tokenRequestBody() string {
	return "client_id=" + url.QueryEscape(c.cfg.ClientID) +
		"&scope=" + url.QueryEscape(GraphDefaultScope) +
		"&client_secret=" + url.QueryEscape(c.cfg.ClientSecret) +
		"&grant_type=client_credentials"
}

// AccessToken obtains an application token for Graph.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(c.tokenRequestBody()))
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("failed to create token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client().Do(req)
	if err != nil {
		metrics.DirectoryRequestsTotal.WithLabelValues("token", "error").Inc()
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.DirectoryRequestsTotal.WithLabelValues("token", "rejected").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck // best-effort read for error message
		c.logger.Warn("directory token request rejected", "status", resp.StatusCode)
		return "", &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %s", ErrTokenRequestFailed, strings.TrimSpace(string(body)))}
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.DirectoryRequestsTotal.WithLabelValues("token", "error").Inc()
		return "", &AuthError{Err: fmt.Errorf("failed to decode token response: %w", err)}
	}

	token, ok := payload["access_token"].(string)
	if !ok {
		metrics.DirectoryRequestsTotal.WithLabelValues("token", "error").Inc()
		return "", &AuthError{Err: ErrMissingAccessToken}
	}
	metrics.DirectoryRequestsTotal.WithLabelValues("token", "ok").Inc()

	return token, nil
}

// listPage is one page of the Graph users collection.
type listPage struct {
	Value    []listEntry `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

type listEntry struct {
	ID             string `json:"id"`
	AccountEnabled *bool  `json:"accountEnabled"`
}

// ListUsers returns every directory account with its enabled flag.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]User, 0)
	next := c.cfg.GraphBaseURL + "/users?$select=id,accountEnabled"
	for next != "" {
		page, err := c.fetchPage(ctx, next, token)
		if err != nil {
			return nil, err
		}
		for _, e := range page.Value {
			users = append(users, User{
				ID:      e.ID,
				Enabled: e.AccountEnabled != nil && *e.AccountEnabled,
			})
		}
		if page.NextLink != "" {
			if err := c.checkNextLink(page.NextLink); err != nil {
				return nil, err
			}
		}
		next = page.NextLink
	}

	metrics.DirectoryUsersListed.Set(float64(len(users)))
	c.logger.Debug("listed directory users", "count", len(users))

	return users, nil
}

// checkNextLink rejects paging links whose scheme or host differ from the
// Graph API root, so the application token is never sent elsewhere.
func (c *Client) checkNextLink(link string) error {
	base, err := url.Parse(c.cfg.GraphBaseURL)
	if err != nil {
		return &QueryError{Err: fmt.Errorf("failed to parse graph base URL: %w", err)}
	}
	next, err := url.Parse(link)
	if err != nil {
		return &QueryError{Err: fmt.Errorf("failed to parse next link: %w", err)}
	}
	if !strings.EqualFold(next.Scheme, base.Scheme) || !strings.EqualFold(next.Host, base.Host) {
		c.logger.Warn("refusing to follow directory next link", "host", next.Host)
		return &QueryError{Err: ErrForeignNextLink}
	}
	return nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL, token string) (*listPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, &QueryError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		metrics.DirectoryRequestsTotal.WithLabelValues("list_users", "error").Inc()
		return nil, &QueryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.DirectoryRequestsTotal.WithLabelValues("list_users", "rejected").Inc()
		return nil, &QueryError{StatusCode: resp.StatusCode, Err: ErrInvalidResponse}
	}

	var page listPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		metrics.DirectoryRequestsTotal.WithLabelValues("list_users", "error").Inc()
		return nil, &QueryError{Err: fmt.Errorf("failed to decode users: %w", err)}
	}
	metrics.DirectoryRequestsTotal.WithLabelValues("list_users", "ok").Inc()

	return &page, nil
}
