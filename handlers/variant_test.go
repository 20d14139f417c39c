package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// variantsAPI mimics the upstream variants endpoint.
func variantsAPI(t *testing.T, urls ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if urls == nil {
			urls = []string{}
		}
		json.NewEncoder(w).Encode(map[string][]string{"variants": urls})
	}))
}

// origin mimics a variant page host.
func origin(t *testing.T, page string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Origin", "test")
		io.WriteString(w, page)
	}))
}

func newApp(h fiber.Handler) *fiber.App {
	app := fiber.New()
	app.All("/*", h)
	return app
}

func get(t *testing.T, app *fiber.App, path string) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestVariantSite_ServesRewrittenVariant(t *testing.T) {
	up := origin(t, `<html><head><title>Hi</title></head><body><h1 id="title">x</h1></body></html>`)
	defer up.Close()
	api := variantsAPI(t, up.URL)
	defer api.Close()

	app := newApp(VariantSite(SiteConfig{VariantsURL: api.URL, Timeout: 2 * time.Second}))
	resp, body := get(t, app, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<title>Custom Hi</title>")
	assert.Contains(t, body, "Coinflip Custom Variant")
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "test", resp.Header.Get("X-Origin"))
}

func TestVariantSite_VariantsEndpointDown(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer api.Close()

	app := newApp(VariantSite(SiteConfig{VariantsURL: api.URL, Timeout: 2 * time.Second}))
	resp, body := get(t, app, "/")

	assert.Equal(t, "Failed to fetch webpage variants. Please try again.", body)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestVariantSite_EmptyVariantList(t *testing.T) {
	api := variantsAPI(t)
	defer api.Close()

	app := newApp(VariantSite(SiteConfig{VariantsURL: api.URL, Timeout: 2 * time.Second}))
	_, body := get(t, app, "/")

	assert.Equal(t, "Failed to request a webpage variant to display. Please try again.", body)
}

func TestVariantSite_OriginDown(t *testing.T) {
	up := origin(t, "<html></html>")
	up.Close()
	api := variantsAPI(t, up.URL)
	defer api.Close()

	app := newApp(VariantSite(SiteConfig{VariantsURL: api.URL, Timeout: 2 * time.Second}))
	_, body := get(t, app, "/")

	assert.Equal(t, "Failed to fetch the selected webpage variant. Please try again.", body)
}

func TestVariantSite_SpreadsLoadAcrossVariants(t *testing.T) {
	a := origin(t, `<html><head><title>A</title></head></html>`)
	defer a.Close()
	b := origin(t, `<html><head><title>B</title></head></html>`)
	defer b.Close()
	api := variantsAPI(t, a.URL, b.URL)
	defer api.Close()

	app := newApp(VariantSite(SiteConfig{VariantsURL: api.URL, Timeout: 2 * time.Second}))

	seen := map[string]int{}
	for i := 0; i < 40; i++ {
		_, body := get(t, app, "/")
		switch {
		case strings.Contains(body, "Custom A"):
			seen["a"]++
		case strings.Contains(body, "Custom B"):
			seen["b"]++
		}
	}

	assert.Equal(t, 40, seen["a"]+seen["b"])
	assert.Greater(t, seen["a"], 0, "variant A never chosen across 40 requests")
	assert.Greater(t, seen["b"], 0, "variant B never chosen across 40 requests")
}

func TestVariantSite_LogsChosenURL(t *testing.T) {
	t.Setenv("LOG_URLS", "true")

	up := origin(t, "<html></html>")
	defer up.Close()
	api := variantsAPI(t, up.URL)
	defer api.Close()

	var buf bytes.Buffer
	app := newApp(VariantSite(SiteConfig{
		VariantsURL: api.URL,
		Timeout:     2 * time.Second,
		Logger:      log.New(&buf, "", 0),
	}))
	get(t, app, "/")

	assert.Contains(t, buf.String(), "Serving variant: "+up.URL)
}

func TestRaw_ServesUnmodifiedVariant(t *testing.T) {
	const page = `<html><head><title>Hi</title></head><body><h1 id="title">x</h1></body></html>`
	up := origin(t, page)
	defer up.Close()
	api := variantsAPI(t, up.URL)
	defer api.Close()

	app := newApp(Raw(SiteConfig{VariantsURL: api.URL, Timeout: 2 * time.Second}))
	resp, body := get(t, app, "/raw")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, page, body)
}

func TestAPI_WrapsRewrittenPage(t *testing.T) {
	up := origin(t, `<html><head><title>Hi</title></head></html>`)
	defer up.Close()
	api := variantsAPI(t, up.URL)
	defer api.Close()

	app := newApp(API("test\n", SiteConfig{VariantsURL: api.URL, Timeout: 2 * time.Second}))
	resp, body := get(t, app, "/api")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var envelope apiResponse
	require.NoError(t, json.Unmarshal([]byte(body), &envelope))
	assert.Equal(t, "test", envelope.Version)
	assert.Equal(t, up.URL, envelope.Variant)
	assert.Contains(t, envelope.Body, "<title>Custom Hi</title>")

	keys := make([]string, 0, len(envelope.Headers))
	for _, kv := range envelope.Headers {
		keys = append(keys, kv.Key)
	}
	assert.Contains(t, keys, "Content-Type")
}

func TestAPI_FailuresStayPlainText(t *testing.T) {
	api := variantsAPI(t)
	defer api.Close()

	app := newApp(API("test", SiteConfig{VariantsURL: api.URL, Timeout: 2 * time.Second}))
	_, body := get(t, app, "/api")

	assert.Equal(t, "Failed to request a webpage variant to display. Please try again.", body)
}
