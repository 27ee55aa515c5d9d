package entraid

import (
	"context"
	"io"
	"mime"
	"strings"
	"time"
	_ "time/tzdata" // CET must resolve on hosts without a zoneinfo database

	"github.com/janovincze/entrasync/internal/metrics"
)

const (
	// PhotoMediaType is the only accepted photo media type.
	PhotoMediaType = "image/jpeg"

	// DefaultPhotoFilename is used when the response names no file.
	DefaultPhotoFilename = "image.jpeg"

	// IfModifiedSinceLayout is the date layout Graph expects for conditional photo reads.
	IfModifiedSinceLayout = "2006-01-02T15:04:05.000Z07:00"

	attachmentPrefix = "attachment; "
)

var photoLocation = loadPhotoLocation()

func loadPhotoLocation() *time.Location {
	loc, err := time.LoadLocation("CET")
	if err != nil {
		return time.FixedZone("CET", 3600)
	}
	return loc
}

// Photo is a fetched profile photo. The caller must close Body.
type Photo struct {
	Body      io.ReadCloser
	MediaType string
	Filename  string
}

// FormatIfModifiedSince renders t the way the photo endpoint expects it.
func FormatIfModifiedSince(t time.Time) string {
	return t.In(photoLocation).Format(IfModifiedSinceLayout)
}

// FetchProfilePhoto downloads the identity's profile photo. It returns nil when
// the scopes do not allow photo reads, when the photo is unchanged or missing,
// and on any failure. Failures are logged and never returned.
func (c *Client) FetchProfilePhoto(ctx context.Context, ifModifiedSince *time.Time, identity *Identity, accessToken string, grantedScopes []string) (photo *Photo) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("failed to fetch profile photo", "error", r)
			photo = nil
		}
	}()

	if identity == nil || !CanReadPhotos(grantedScopes) {
		return nil
	}

	photoURL := identity.UserImageURL
	if photoURL == "" {
		photoURL = c.photoURL(identity.InternalID)
	}

	req, err := newBearerRequest(ctx, photoURL, accessToken)
	if err != nil {
		c.logger.Warn("failed to fetch profile photo", "error", err)
		return nil
	}
	req.Header.Set("Accept", PhotoMediaType)
	if ifModifiedSince != nil {
		req.Header.Set("If-Modified-Since", FormatIfModifiedSince(*ifModifiedSince))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.EntraIDRequestsTotal.WithLabelValues("photo", "error").Inc()
		c.logger.Warn("failed to fetch profile photo", "error", err)
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")) //nolint:errcheck // empty media type is rejected below
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || mediaType != PhotoMediaType {
		metrics.EntraIDRequestsTotal.WithLabelValues("photo", "rejected").Inc()
		c.logger.Warn("fetching photo failed",
			"status", resp.StatusCode,
			"media_type", mediaType,
		)
		resp.Body.Close()
		return nil
	}
	metrics.EntraIDRequestsTotal.WithLabelValues("photo", "ok").Inc()

	return &Photo{
		Body:      resp.Body,
		MediaType: PhotoMediaType,
		Filename:  photoFilename(resp.Header.Get("Content-Disposition")),
	}
}

// photoFilename reads the file name of an attachment disposition.
func photoFilename(disposition string) string {
	if !strings.HasPrefix(disposition, attachmentPrefix) {
		return DefaultPhotoFilename
	}
	name := strings.TrimSpace(strings.TrimPrefix(disposition, attachmentPrefix))
	name = strings.TrimPrefix(name, "filename=")
	name = strings.Trim(name, `"`)
	if name == "" {
		return DefaultPhotoFilename
	}
	return name
}
