package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gregjones/httpcache"
	"google.golang.org/api/googleapi"
)

// probeTimeout bounds a single probe round trip.
const probeTimeout = 15 * time.Second

// Probe performs one cheap authenticated request against a configured
// endpoint to verify that a key is accepted and has quota. The transport
// stack layers ETag-based response caching under the client, so repeated
// probes against an unchanged endpoint cost a conditional request.
type Probe struct {
	endpoint string
	client   *http.Client
}

// NewProbe creates a Probe for the given endpoint URL. The key is appended
// as the standard `key` query parameter at call time.
func NewProbe(endpoint string) *Probe {
	return &Probe{
		endpoint: endpoint,
		client: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   probeTimeout,
		},
	}
}

// NewProbeWithClient creates a Probe with a custom http.Client. This
// constructor is intended for testing, allowing injection of an httptest
// server.
func NewProbeWithClient(endpoint string, client *http.Client) *Probe {
	return &Probe{endpoint: endpoint, client: client}
}

// Check performs the probe with the given key. A non-2xx response is
// converted into a typed *googleapi.Error so it classifies like any other
// API failure.
func (p *Probe) Check(ctx context.Context, apiKey string) error {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return fmt.Errorf("parse probe endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return fmt.Errorf("probe response: %w", err)
	}

	// Drain so the connection can be reused and the cache layer sees the body.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
