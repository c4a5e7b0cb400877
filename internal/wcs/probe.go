package wcs

import (
	"context"
	"fmt"
	"net/http"
)

// Probe verifies GeoMet reachability for the health endpoint with a cheap
// GetCapabilities request. It reuses the client's breaker, so a tripped
// circuit surfaces immediately as unhealthy.
type Probe struct {
	client *Client
}

// NewProbe returns a health probe backed by the given coverage client.
func NewProbe(client *Client) *Probe {
	return &Probe{client: client}
}

// Name identifies the probe in health check results.
func (p *Probe) Name() string { return "geomet-wcs" }

// Check performs a GetCapabilities round trip and reports failure on any
// transport error or 5xx status.
func (p *Probe) Check(ctx context.Context) error {
	reqURL := p.client.cfg.BaseURL + "?SERVICE=WCS&VERSION=2.0.1&REQUEST=GetCapabilities"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("geomet returned %d", resp.StatusCode)
	}
	return nil
}
