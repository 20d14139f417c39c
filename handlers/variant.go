package handlers

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coinflip-labs/coinflip/pkg/fetch"
	"github.com/coinflip-labs/coinflip/pkg/metrics"
	"github.com/coinflip-labs/coinflip/pkg/rewrite"
	"github.com/coinflip-labs/coinflip/pkg/variants"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Bodies served as plain text when a pipeline stage cannot complete.
const (
	msgVariantsFailed = "Failed to fetch webpage variants. Please try again."
	msgPickFailed     = "Failed to request a webpage variant to display. Please try again."
	msgOriginFailed   = "Failed to fetch the selected webpage variant. Please try again."
)

// Headers never copied from the upstream response. The rewritten body
// has a different length and is served unencoded.
var skipHeaders = map[string]struct{}{
	fiber.HeaderContentLength:    {},
	fiber.HeaderContentEncoding:  {},
	fiber.HeaderTransferEncoding: {},
	fiber.HeaderConnection:       {},
}

// SiteConfig carries the knobs for the variant handlers. The zero
// value is usable; empty fields fall back to production defaults.
type SiteConfig struct {
	// VariantsURL is the endpoint listing candidate pages. Empty means
	// the production variants API.
	VariantsURL string

	// Timeout bounds each upstream request.
	Timeout time.Duration

	// UserAgent is sent on all upstream requests.
	UserAgent string

	// Rules describes the element rewrites applied to fetched pages.
	Rules rewrite.RuleSet

	// Metrics receives request outcomes and fetch timings. May be nil.
	Metrics *metrics.Metrics

	Logger *log.Logger
}

func (c SiteConfig) defaults() SiteConfig {
	if c.Rules == nil {
		c.Rules = rewrite.Default()
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// site bundles the pipeline pieces shared by the variant handlers.
type site struct {
	cfg     SiteConfig
	rw      *rewrite.Rewriter
	fetcher *fetch.Fetcher
	source  *variants.Source
}

func newSite(cfg SiteConfig) *site {
	cfg = cfg.defaults()

	rw, err := rewrite.New(cfg.Rules)
	if err != nil {
		panic(fmt.Sprintf("Failed to compile rewrite rules: %v", err))
	}

	fetcher := fetch.New(fetch.Config{
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Logger:    cfg.Logger,
	})

	return &site{
		cfg:     cfg,
		rw:      rw,
		fetcher: fetcher,
		source:  variants.NewSource(cfg.VariantsURL, fetcher),
	}
}

func (s *site) listVariants(ctx context.Context) ([]string, error) {
	start := time.Now()
	urls, err := s.source.Variants(ctx)
	s.cfg.Metrics.ObserveFetch(metrics.FetchVariants, time.Since(start))
	return urls, err
}

func (s *site) fetchOrigin(ctx context.Context, target string) (*fetch.Resource, error) {
	start := time.Now()
	page, err := s.fetcher.Page(ctx, target)
	s.cfg.Metrics.ObserveFetch(metrics.FetchOrigin, time.Since(start))
	return page, err
}

// selectPage runs the variant pipeline up to the fetched origin page.
// On a stage failure it writes the matching failure body and returns a
// nil page; the returned error is then the write result.
func (s *site) selectPage(c *fiber.Ctx) (string, *fetch.Resource, error) {
	ctx := c.UserContext()

	urls, err := s.listVariants(ctx)
	if err != nil {
		s.cfg.Logger.Printf("ERROR: Failed to list variants: %v", err)
		s.cfg.Metrics.CountRequest(metrics.OutcomeVariantsFailed)
		return "", nil, c.SendString(msgVariantsFailed)
	}

	target, err := variants.Pick(urls)
	if err != nil {
		s.cfg.Logger.Printf("ERROR: Failed to pick a variant: %v", err)
		s.cfg.Metrics.CountRequest(metrics.OutcomePickFailed)
		return "", nil, c.SendString(msgPickFailed)
	}

	if os.Getenv("LOG_URLS") == "true" {
		s.cfg.Logger.Printf("Serving variant: %s", target)
	}

	page, err := s.fetchOrigin(ctx, target)
	if err != nil {
		s.cfg.Logger.Printf("ERROR: Failed to fetch variant %s: %v", target, err)
		s.cfg.Metrics.CountRequest(metrics.OutcomeOriginFailed)
		return "", nil, c.SendString(msgOriginFailed)
	}

	return target, page, nil
}

// copyHeaders mirrors the upstream response headers and status onto the
// reply, minus the transport specific ones.
func copyHeaders(c *fiber.Ctx, page *fetch.Resource) {
	for key, values := range page.Header {
		if _, skip := skipHeaders[key]; skip {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
	c.Status(page.StatusCode)
}

// VariantSite is a Fiber handler that serves one randomly chosen
// upstream variant per request, rewritten while it streams through.
func VariantSite(cfg SiteConfig) fiber.Handler {
	s := newSite(cfg)

	return func(c *fiber.Ctx) error {
		target, page, err := s.selectPage(c)
		if page == nil {
			return err
		}

		copyHeaders(c, page)
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer page.Body.Close()
			if err := s.rw.Transform(page.Body, w); err != nil {
				s.cfg.Logger.Printf("ERROR: Failed to rewrite %s: %v", target, err)
			}
		}))
		s.cfg.Metrics.CountRequest(metrics.OutcomeServed)
		return nil
	}
}
