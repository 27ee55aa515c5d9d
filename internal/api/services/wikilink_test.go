package services

import (
	"errors"
	"net/url"
	"testing"
)

func TestWikiLinks_NativeLoginURL(t *testing.T) {
	links, err := NewWikiLinks("http://localhost:8080/xwiki/")
	if err != nil {
		t.Fatalf("NewWikiLinks() error = %v", err)
	}

	got, err := links.NativeLoginURL("Sandbox.WebHome")
	if err != nil {
		t.Fatalf("NativeLoginURL() error = %v", err)
	}

	want := "http://localhost:8080/xwiki/bin/login/XWiki/XWikiLogin?xredirect=" +
		url.QueryEscape("http://localhost:8080/xwiki/bin/view/Sandbox/WebHome") +
		"&loginLink=1&oidc.skipped=true"
	if got != want {
		t.Errorf("NativeLoginURL() =\n%s\nwant\n%s", got, want)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if u.Query().Get("xredirect") != "http://localhost:8080/xwiki/bin/view/Sandbox/WebHome" {
		t.Errorf("xredirect = %q", u.Query().Get("xredirect"))
	}
}

func TestWikiLinks_ViewURL(t *testing.T) {
	links, err := NewWikiLinks("https://wiki.example")
	if err != nil {
		t.Fatalf("NewWikiLinks() error = %v", err)
	}

	tests := []struct {
		name     string
		document string
		want     string
		wantErr  error
	}{
		{"space and page", "Sandbox.WebHome", "https://wiki.example/bin/view/Sandbox/WebHome", nil},
		{"nested spaces", "Main.Sub.Page", "https://wiki.example/bin/view/Main/Sub/Page", nil},
		{"wiki prefix", "xwiki:Main.WebHome", "https://wiki.example/bin/view/Main/WebHome", nil},
		{"space only", "Sandbox", "https://wiki.example/bin/view/Sandbox/WebHome", nil},
		{"escaped dot", `Release\.Notes.WebHome`, "https://wiki.example/bin/view/Release.Notes/WebHome", nil},
		{"spaces in names", "My Space.My Page", "https://wiki.example/bin/view/My%20Space/My%20Page", nil},
		{"markup is escaped", "<b>.Page", "https://wiki.example/bin/view/%3Cb%3E/Page", nil},
		{"empty", "", "", ErrInvalidDocument},
		{"empty segment", "Main..Page", "", ErrInvalidDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := links.ViewURL(tt.document)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ViewURL() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ViewURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ViewURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewWikiLinks_Invalid(t *testing.T) {
	for _, raw := range []string{"", "wiki.example", "://bad"} {
		if _, err := NewWikiLinks(raw); err == nil {
			t.Errorf("NewWikiLinks(%q) expected error", raw)
		}
	}
}
