// Package fetch wraps outbound HTTP GETs behind a uniform failure contract:
// callers receive either an open Resource or an error, never a panic or an
// unchecked non-success response.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Config configures a Fetcher.
type Config struct {
	Timeout   time.Duration // HTTP timeout. Default: 15s.
	UserAgent string        // User-Agent sent with every request.
	Logger    *log.Logger   // Diagnostic output. Default: log.Default().
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "coinflip/1.0"
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

// Resource is a successfully fetched HTTP resource. Body is a live stream
// owned by the caller, who must close it.
type Resource struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser
}

// StatusError reports a non-success upstream response. Its message carries
// the HTTP status text.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected upstream status: %s", e.Status)
}

// Fetcher issues outbound GET requests with a shared client and timeout.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

// Fetch GETs url and returns the open response. Transport failures and
// non-2xx statuses are both converted to an error plus a diagnostic line;
// neither escapes any other way.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Resource, error) {
	return f.get(ctx, url, "")
}

// Page fetches a selected origin page. Identical to Fetch except that it
// advertises Accept: text/html.
func (f *Fetcher) Page(ctx context.Context, url string) (*Resource, error) {
	return f.get(ctx, url, "text/html")
}

func (f *Fetcher) get(ctx context.Context, url, accept string) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.config.Logger.Printf("ERROR: fetch %s: %v", url, err)
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		statusErr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		f.config.Logger.Printf("ERROR: fetch %s: %v", url, statusErr)
		return nil, statusErr
	}

	return &Resource{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
