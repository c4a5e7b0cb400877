// Package wcs fetches HRDPS point values from the MSC GeoMet Web Coverage
// Service. For each layer it requests a small netCDF coverage window centered
// on the caller's coordinate and extracts the nearest grid cell, converting
// the value to the layer's reporting unit.
package wcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"hrdpswx/internal/config"
	"hrdpswx/internal/external"
	"hrdpswx/internal/types"
)

// Client issues GetCoverage requests against a GeoMet WCS endpoint.
type Client struct {
	cfg    config.WCSConfig
	base   *external.BaseClient
	logger *slog.Logger
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithBaseClient overrides the outbound HTTP client. Used by tests to point
// the client at an httptest server without retries or breaker delays.
func WithBaseClient(base *external.BaseClient) ClientOption {
	return func(c *Client) {
		c.base = base
	}
}

// NewClient builds a coverage client over the shared resilient BaseClient.
func NewClient(cfg config.WCSConfig, logger *slog.Logger, opts ...ClientOption) *Client {
	policy := external.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	c := &Client{
		cfg: cfg,
		base: external.NewBaseClient(
			&http.Client{Timeout: cfg.FetchTimeout},
			"geomet-wcs",
			policy,
			cfg.UserAgent,
		),
		logger: logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// formatDeg renders a coordinate for a SUBSET parameter. Six decimal places
// is sub-meter precision, well below the 2.5 km grid spacing.
func formatDeg(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// coverageURL builds the WCS 2.0.1 GetCoverage request for a small window
// around the point. The window half-width comes from config; EPSG:4326 is
// used on both the subsetting and output side so the response axes are
// plain lat/lon.
func (c *Client) coverageURL(coverageID string, pt types.GeoPoint) string {
	q := url.Values{}
	q.Set("SERVICE", "WCS")
	q.Set("VERSION", "2.0.1")
	q.Set("REQUEST", "GetCoverage")
	q.Set("COVERAGEID", coverageID)
	q.Set("SUBSETTINGCRS", "EPSG:4326")
	q.Set("OUTPUTCRS", "EPSG:4326")
	q.Set("FORMAT", "image/netcdf")
	q.Add("SUBSET", fmt.Sprintf("x(%s,%s)",
		formatDeg(pt.Lon-c.cfg.BufferDeg), formatDeg(pt.Lon+c.cfg.BufferDeg)))
	q.Add("SUBSET", fmt.Sprintf("y(%s,%s)",
		formatDeg(pt.Lat-c.cfg.BufferDeg), formatDeg(pt.Lat+c.cfg.BufferDeg)))
	return c.cfg.BaseURL + "?" + q.Encode()
}

// FetchPointValue fetches one layer's value at the grid cell nearest the
// point, already converted to the layer's reporting unit.
//
// Error mapping:
//   - point outside the HRDPS window: coverage_out_of_bounds, no upstream call
//   - unknown layer key, or an upstream ExceptionReport naming the coverage:
//     coverage_unknown_layer
//   - transport failures, 5xx, rate limiting: upstream_* via the BaseClient
//   - any undecodable payload: coverage_parse_failure
func (c *Client) FetchPointValue(ctx context.Context, layerKey string, pt types.GeoPoint) (float64, error) {
	desc, ok := LayerByKey(layerKey)
	if !ok {
		return 0, types.NewAppError(
			types.ErrCodeCoverageUnknownLayer,
			fmt.Sprintf("no such layer %q", layerKey),
			nil,
		)
	}

	if !pt.InCoverage() {
		return 0, types.NewAppError(
			types.ErrCodeCoverageOutOfBounds,
			fmt.Sprintf("point (%.4f, %.4f) is outside HRDPS coverage (lat %g..%g, lon %g..%g)",
				pt.Lat, pt.Lon,
				types.CoverageMinLat, types.CoverageMaxLat,
				types.CoverageMinLon, types.CoverageMaxLon),
			nil,
		)
	}

	reqURL := c.coverageURL(desc.CoverageID, pt)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalUnexpected, "building coverage request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxCoveragePayload+1))
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeUpstreamWCSUnavailable, "reading coverage response", err)
	}

	if err := classifyPayload(resp.StatusCode, payload, desc.Key); err != nil {
		c.logger.WarnContext(ctx, "coverage fetch rejected",
			slog.String("layer", desc.Key),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	raw, err := ExtractPointValue(payload, pt.Lat, pt.Lon)
	if err != nil {
		return 0, err
	}

	return desc.Convert(raw), nil
}

// classifyPayload rejects non-netCDF responses before decoding. MapServer
// reports bad coverage identifiers as an OWS ExceptionReport with a 200 or
// 4xx status, so the body is inspected rather than trusting the status code.
func classifyPayload(status int, payload []byte, layerKey string) error {
	if len(payload) >= 3 && bytes.Equal(payload[:3], []byte("CDF")) {
		return nil
	}

	if bytes.Contains(payload, []byte("ExceptionReport")) {
		return types.NewAppError(
			types.ErrCodeCoverageUnknownLayer,
			fmt.Sprintf("upstream rejected coverage request for layer %q", layerKey),
			nil,
		)
	}

	return types.NewAppError(
		types.ErrCodeCoverageParseFailure,
		fmt.Sprintf("unexpected coverage payload for layer %q (status %d, %d bytes)", layerKey, status, len(payload)),
		nil,
	)
}
