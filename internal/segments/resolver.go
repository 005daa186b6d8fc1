// Package segments integrates the external Segment Membership Resolver.
// Membership is fetched, never computed here; every implementation must be
// timeout-bounded because it sits on the storefront critical path.
package segments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Resolver answers which segments a visitor (or the customer behind it)
// belongs to. Failure semantics are defined by the caller: an error is
// treated as "member of no segments" (fail-open for non-audience campaigns,
// fail-closed for segment-only targeting, since membership cannot be proven).
type Resolver interface {
	Resolve(ctx context.Context, storeID, visitorRef string) ([]string, error)
}

// NoopResolver always returns no segments. Used when no resolver endpoint is
// configured; audience targeting then relies on session rules only.
type NoopResolver struct{}

func (NoopResolver) Resolve(context.Context, string, string) ([]string, error) {
	return nil, nil
}

// HTTPResolver calls the commerce platform's segment-membership endpoint.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver against the given base URL. The client
// timeout is a backstop; per-request contexts carry the real budget.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type resolveRequest struct {
	StoreID string   `json:"store_id"`
	Refs    []string `json:"refs"`
}

type resolveResponse struct {
	Memberships map[string][]string `json:"memberships"`
}

// Resolve posts a batch request for a single visitor ref. The endpoint is
// batch-shaped so future callers can coalesce lookups without a protocol
// change.
func (r *HTTPResolver) Resolve(ctx context.Context, storeID, visitorRef string) ([]string, error) {
	body, err := json.Marshal(resolveRequest{StoreID: storeID, Refs: []string{visitorRef}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode segment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/segments/resolve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build segment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("segment resolver unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("segment resolver returned status %d", resp.StatusCode)
	}

	var decoded resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode segment response: %w", err)
	}
	return decoded.Memberships[visitorRef], nil
}

// StaticResolver serves a fixed membership map, keyed by visitor ref.
// Test and development use.
type StaticResolver map[string][]string

func (s StaticResolver) Resolve(_ context.Context, _ string, visitorRef string) ([]string, error) {
	return s[visitorRef], nil
}
