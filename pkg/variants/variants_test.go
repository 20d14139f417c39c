package variants

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinflip-labs/coinflip/pkg/fetch"
)

func TestPick_ReturnsMember(t *testing.T) {
	urls := []string{"https://a.example", "https://b.example", "https://c.example"}
	for i := 0; i < 50; i++ {
		got, err := Pick(urls)
		require.NoError(t, err)
		assert.Contains(t, urls, got)
	}
}

func TestPick_EmptyInput(t *testing.T) {
	got, err := Pick([]string{})
	assert.ErrorIs(t, err, ErrNoVariants)
	assert.Empty(t, got)
}

func TestPick_NilInput(t *testing.T) {
	got, err := Pick(nil)
	assert.ErrorIs(t, err, ErrNoVariants)
	assert.Empty(t, got)
}

func TestPick_EventuallyReturnsEveryElement(t *testing.T) {
	urls := []string{"https://a.example", "https://b.example", "https://c.example"}
	seen := map[string]bool{}
	// 1000 uniform draws over 3 elements miss one with probability ~1e-176.
	for i := 0; i < 1000; i++ {
		got, err := Pick(urls)
		require.NoError(t, err)
		seen[got] = true
	}
	assert.Len(t, seen, len(urls))
}

func TestVariants_DecodesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"variants":["https://a.example","https://b.example"]}`))
	}))
	defer srv.Close()

	src := NewSource(srv.URL, fetch.New(fetch.Config{}))
	got, err := src.Variants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, got)
}

func TestVariants_EmptyListIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"variants":[]}`))
	}))
	defer srv.Close()

	src := NewSource(srv.URL, fetch.New(fetch.Config{}))
	got, err := src.Variants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVariants_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"variants": "not a list`))
	}))
	defer srv.Close()

	src := NewSource(srv.URL, fetch.New(fetch.Config{}))
	_, err := src.Variants(context.Background())
	assert.Error(t, err)
}

func TestVariants_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewSource(srv.URL, fetch.New(fetch.Config{}))
	_, err := src.Variants(context.Background())
	assert.Error(t, err)
}

func TestNewSource_DefaultsToProductionEndpoint(t *testing.T) {
	src := NewSource("", fetch.New(fetch.Config{}))
	assert.Equal(t, DefaultEndpoint, src.endpoint)
}
