// Package fetch grabs one page without a browser session: plain HTTP
// GET, HTML boiled down to readable text. For anything interactive the
// agent uses the browser tools instead.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kestrelworks/kestrel/internal/httpkit"
)

const (
	fetchTimeout = 30 * time.Second

	// maxBodyBytes caps the downloaded body.
	maxBodyBytes int64 = 5 * 1024 * 1024

	// DefaultMaxChars limits extracted text handed to the model.
	DefaultMaxChars = 50000
)

// Page is the fetched and extracted content of a URL.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	StatusCode  int    `json:"status_code"`
}

// Fetcher downloads pages and extracts their readable text.
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher with default settings.
func New() *Fetcher {
	return &Fetcher{
		client: httpkit.NewClient(httpkit.WithTimeout(fetchTimeout)),
	}
}

// Fetch downloads rawURL and extracts readable text. maxChars limits
// output length; 0 uses DefaultMaxChars.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Page, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("get_page: url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("get_page: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get_page: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("get_page: read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	page := &Page{
		URL:         rawURL,
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
	}

	switch {
	case strings.Contains(strings.ToLower(contentType), "html"):
		page.Title, page.Content = extractReadable(string(body))
	case utf8.Valid(body):
		page.Content = string(body)
	default:
		page.Content = fmt.Sprintf("binary content (%s), %d bytes", contentType, len(body))
		return page, nil
	}

	if len(page.Content) > maxChars {
		page.Content = truncateUTF8(page.Content, maxChars)
		page.Truncated = true
	}
	return page, nil
}

// truncateUTF8 cuts s to at most max runes without splitting a
// multi-byte character.
func truncateUTF8(s string, max int) string {
	count := 0
	for i := range s {
		if count >= max {
			return s[:i]
		}
		count++
	}
	return s
}
