package entraid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/janovincze/entrasync/internal/metrics"
)

// Identity is the normalized profile of a signed-in Entra ID user.
type Identity struct {
	InternalID string
	FirstName  string
	LastName   string

	// Emails holds one address: mail, or userPrincipalName when mail is absent.
	Emails []string

	IssuerURL string

	// UserImageURL is empty unless the granted scopes allow reading photos.
	UserImageURL string
}

// Email returns the primary email address.
func (i *Identity) Email() string {
	if len(i.Emails) == 0 {
		return ""
	}
	return i.Emails[0]
}

// graphProfile is the subset of the Graph /me response that is consumed.
type graphProfile struct {
	ID                string  `json:"id"`
	GivenName         *string `json:"givenName"`
	Surname           *string `json:"surname"`
	Mail              *string `json:"mail"`
	UserPrincipalName string  `json:"userPrincipalName"`
}

// Scopes that allow reading other users' photos.
var photoScopes = []string{"User.ReadBasic.All", "User.Read.All"}

// CanReadPhotos reports whether the granted scopes allow photo reads.
func CanReadPhotos(grantedScopes []string) bool {
	for _, s := range photoScopes {
		if slices.Contains(grantedScopes, s) {
			return true
		}
	}
	return false
}

// FetchProfile reads the signed-in user's profile.
func (c *Client) FetchProfile(ctx context.Context, accessToken string, grantedScopes []string) (*Identity, error) {
	req, err := newBearerRequest(ctx, c.UserInfoEndpoint(), accessToken)
	if err != nil {
		return nil, &ProfileFetchError{Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.EntraIDRequestsTotal.WithLabelValues("profile", "error").Inc()
		return nil, &ProfileFetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.EntraIDRequestsTotal.WithLabelValues("profile", "rejected").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck // best-effort read for error message
		return nil, &ProfileFetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("profile endpoint returned: %s", string(body))}
	}

	var p graphProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		metrics.EntraIDRequestsTotal.WithLabelValues("profile", "error").Inc()
		return nil, &ProfileFetchError{Err: fmt.Errorf("failed to decode profile: %w", err)}
	}
	if p.ID == "" {
		metrics.EntraIDRequestsTotal.WithLabelValues("profile", "error").Inc()
		return nil, &ProfileFetchError{Err: fmt.Errorf("profile has no id")}
	}
	metrics.EntraIDRequestsTotal.WithLabelValues("profile", "ok").Inc()

	return c.identityFromProfile(p, grantedScopes), nil
}

func (c *Client) identityFromProfile(p graphProfile, grantedScopes []string) *Identity {
	email := p.UserPrincipalName
	if p.Mail != nil && *p.Mail != "" {
		email = *p.Mail
	}

	id := &Identity{
		InternalID: p.ID,
		FirstName:  deref(p.GivenName),
		LastName:   deref(p.Surname),
		Emails:     []string{email},
		IssuerURL:  c.IssuerURL(),
	}
	if CanReadPhotos(grantedScopes) {
		id.UserImageURL = c.photoURL(p.ID)
	}
	return id
}

func (c *Client) photoURL(id string) string {
	return fmt.Sprintf("%s/users/%s/photo/$value", c.cfg.GraphBaseURL, id)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
