package oauth

import (
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/pkg/browser"
)

// BrowserOpener opens a URL for the user. A failure to open is never fatal
// to a login; the URL is printed instead.
type BrowserOpener func(rawURL string) error

// OpenBrowser opens rawURL in the default web browser. Only http and https
// URLs are opened.
func OpenBrowser(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open URL with scheme %q", u.Scheme)
	}

	// pkg/browser forwards the child's output to these writers by default.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard

	if err := browser.OpenURL(rawURL); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}

// NoBrowser is a BrowserOpener that never opens anything. It is used with
// --no-browser so the login URL is only printed.
func NoBrowser(string) error {
	return errBrowserDisabled
}

var errBrowserDisabled = errors.New("browser launch disabled")
