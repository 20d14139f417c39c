package handlers

import (
	"strings"

	"github.com/coinflip-labs/coinflip/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// Raw serves a randomly chosen variant without rewriting it. Useful
// for diffing a variant against its rewritten form.
func Raw(cfg SiteConfig) fiber.Handler {
	s := newSite(cfg)

	return func(c *fiber.Ctx) error {
		_, page, err := s.selectPage(c)
		if page == nil {
			return err
		}

		copyHeaders(c, page)
		c.Context().Response.SetBodyStream(page.Body, -1)
		s.cfg.Metrics.CountRequest(metrics.OutcomeServed)
		return nil
	}
}

type apiResponse struct {
	Version string  `json:"version"`
	Variant string  `json:"variant"`
	Headers []apiKV `json:"headers"`
	Body    string  `json:"body"`
}

type apiKV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// API serves the rewritten variant wrapped in a JSON envelope together
// with the chosen URL and the upstream response headers.
func API(version string, cfg SiteConfig) fiber.Handler {
	s := newSite(cfg)

	return func(c *fiber.Ctx) error {
		target, page, err := s.selectPage(c)
		if page == nil {
			return err
		}
		defer page.Body.Close()

		var body strings.Builder
		if err := s.rw.Transform(page.Body, &body); err != nil {
			s.cfg.Logger.Printf("ERROR: Failed to rewrite %s: %v", target, err)
			s.cfg.Metrics.CountRequest(metrics.OutcomeOriginFailed)
			return c.SendString(msgOriginFailed)
		}

		resp := apiResponse{
			Version: strings.TrimSpace(version),
			Variant: target,
			Headers: make([]apiKV, 0, len(page.Header)),
			Body:    body.String(),
		}
		for k, v := range page.Header {
			resp.Headers = append(resp.Headers, apiKV{Key: k, Value: v[0]})
		}

		s.cfg.Metrics.CountRequest(metrics.OutcomeServed)
		return c.JSON(resp)
	}
}
