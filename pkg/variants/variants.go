// Package variants resolves the candidate origin pages for a request and
// draws one of them at random.
package variants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/coinflip-labs/coinflip/pkg/fetch"
)

// DefaultEndpoint is the production variants API.
const DefaultEndpoint = "https://cfw-takehome.developers.workers.dev/api/variants"

// ErrNoVariants is returned by Pick when there is nothing to choose from.
var ErrNoVariants = errors.New("no variants to choose from")

// Source fetches the candidate URL list from the variants API.
type Source struct {
	endpoint string
	fetcher  *fetch.Fetcher
}

// NewSource creates a Source reading from endpoint. An empty endpoint
// selects DefaultEndpoint.
func NewSource(endpoint string, f *fetch.Fetcher) *Source {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Source{endpoint: endpoint, fetcher: f}
}

// Variants fetches and decodes the candidate list. A failed fetch and a
// malformed body both come back as errors; a well-formed list may be empty.
func (s *Source) Variants(ctx context.Context) ([]string, error) {
	res, err := s.fetcher.Fetch(ctx, s.endpoint)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var doc struct {
		Variants []string `json:"variants"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding variants list: %w", err)
	}
	return doc.Variants, nil
}

// Pick returns one URL drawn uniformly at random from urls. Empty or nil
// input yields ErrNoVariants. Each call draws independently; there is no
// stickiness between requests.
func Pick(urls []string) (string, error) {
	if len(urls) == 0 {
		return "", ErrNoVariants
	}
	return urls[rand.Intn(len(urls))], nil
}
