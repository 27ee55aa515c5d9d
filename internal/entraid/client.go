// Package entraid provides the OAuth2/OIDC client used to sign users in with
// Microsoft Entra ID and to read their Graph profile.
package entraid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/oauth2"

	"github.com/janovincze/entrasync/internal/metrics"
)

// Token is an access token issued by the authorization code grant.
type Token struct {
	AccessToken string
	Expiry      time.Time

	// Scopes are the scopes granted with the token.
	Scopes []string
}

// ClientConfig holds the application registration used by the client.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURL  string
	Scopes       []string
	Endpoints    Endpoints
	GraphBaseURL string
	HTTPTimeout  time.Duration
}

// Client performs the OAuth2 exchanges with Entra ID and the profile calls built on them.
type Client struct {
	cfg        ClientConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	clock      quartz.Clock
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used to compute token expiry.
func WithClock(clock quartz.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithHTTPClient sets the HTTP client shared by every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new Entra ID client.
func NewClient(cfg ClientConfig, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GraphBaseURL == "" {
		cfg.GraphBaseURL = DefaultGraphBaseURL
	}
	cfg.GraphBaseURL = strings.TrimSuffix(cfg.GraphBaseURL, "/")
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = EndpointsFor(DefaultLoginBaseURL, cfg.TenantID)
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	c := &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoints.OAuth2(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		clock:      quartz.NewReal(),
		logger:     logger.With("component", "entraid-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scopes returns the scopes requested at authorization.
func (c *Client) Scopes() []string {
	return append([]string(nil), c.cfg.Scopes...)
}

// IssuerURL returns the issuer of identities signed in through this client.
func (c *Client) IssuerURL() string {
	return IssuerFor(c.cfg.TenantID)
}

// AuthorizationURL builds the consent redirect URL. An empty state is omitted.
func (c *Client) AuthorizationURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// LogoutURL builds the tenant logout URL.
func (c *Client) LogoutURL(postLogoutRedirect string) string {
	if postLogoutRedirect == "" {
		return c.cfg.Endpoints.Logout
	}
	return c.cfg.Endpoints.Logout + "?" + url.Values{
		"post_logout_redirect_uri": {postLogoutRedirect},
	}.Encode()
}

// UserInfoEndpoint returns the Graph profile endpoint.
func (c *Client) UserInfoEndpoint() string {
	return c.cfg.GraphBaseURL + "/me"
}

// ParseCallback extracts the authorization code from the redirect callback.
// It returns an empty code when the callback carries neither a code nor an error.
func ParseCallback(params url.Values) (string, error) {
	if params.Has("error") || params.Has("error_description") {
		return "", &CallbackError{
			Code:        params.Get("error"),
			Description: params.Get("error_description"),
		}
	}
	return params.Get("code"), nil
}

// Exchange trades an authorization code for an access token.
func (c *Client) Exchange(ctx context.Context, code string) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && (rerr.ErrorCode != "" || rerr.ErrorDescription != "") {
			metrics.EntraIDRequestsTotal.WithLabelValues("token_exchange", "rejected").Inc()
			desc := rerr.ErrorDescription
			if desc == "" {
				desc = rerr.ErrorCode
			}
			return nil, &TokenExchangeError{Description: desc}
		}
		metrics.EntraIDRequestsTotal.WithLabelValues("token_exchange", "error").Inc()
		return nil, &TokenExchangeError{Err: err}
	}
	metrics.EntraIDRequestsTotal.WithLabelValues("token_exchange", "ok").Inc()

	scopes := c.cfg.Scopes
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		scopes = strings.Fields(granted)
	}

	return &Token{
		AccessToken: tok.AccessToken,
		Expiry:      c.clock.Now().Add(time.Duration(expiresIn(tok)) * time.Second),
		Scopes:      scopes,
	}, nil
}

// expiresIn returns the lifetime in seconds reported with a token.
func expiresIn(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	if !tok.Expiry.IsZero() {
		return int64(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	return 0
}

// newBearerRequest creates a GET request signed with an access token.
func newBearerRequest(ctx context.Context, rawURL, accessToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	return req, nil
}
