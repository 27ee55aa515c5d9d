package services

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidDocument is returned for a document reference with no page.
var ErrInvalidDocument = errors.New("invalid document reference")

// WikiLinks builds URLs into the host wiki.
type WikiLinks struct {
	root string
}

// NewWikiLinks parses the wiki base URL, for example http://localhost:8080/xwiki.
func NewWikiLinks(baseURL string) (*WikiLinks, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wiki base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("wiki base URL %q must be absolute", baseURL)
	}
	return &WikiLinks{
		root: base.Scheme + "://" + base.Host + strings.TrimSuffix(base.EscapedPath(), "/"),
	}, nil
}

// ViewURL returns the view URL of a document reference such as
// "Sandbox.WebHome" or "xwiki:Main.Sub.Page". A backslash escapes a dot.
func (w *WikiLinks) ViewURL(document string) (string, error) {
	segments, err := splitReference(document)
	if err != nil {
		return "", err
	}
	return w.action("view", segments, ""), nil
}

// NativeLoginURL returns the wiki's own login page, asking it to skip the
// Entra ID redirect and to come back to document afterwards.
func (w *WikiLinks) NativeLoginURL(document string) (string, error) {
	view, err := w.ViewURL(document)
	if err != nil {
		return "", err
	}
	query := "xredirect=" + url.QueryEscape(view) + "&loginLink=1&oidc.skipped=true"
	return w.action("login", []string{"XWiki", "XWikiLogin"}, query), nil
}

func (w *WikiLinks) action(action string, segments []string, query string) string {
	var b strings.Builder
	b.WriteString(w.root)
	b.WriteString("/bin/")
	b.WriteString(action)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String()
}

// splitReference splits "wiki:Space.Page" into its space and page names.
func splitReference(document string) ([]string, error) {
	document = strings.TrimPrefix(strings.TrimSpace(document), "/")
	if i := strings.IndexByte(document, ':'); i >= 0 {
		document = document[i+1:]
	}

	var (
		segments []string
		current  strings.Builder
		escaped  bool
	)
	for _, r := range document {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '.':
			segments = append(segments, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	segments = append(segments, current.String())

	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDocument, document)
		}
	}
	if len(segments) == 1 {
		segments = append(segments, "WebHome")
	}
	return segments, nil
}
