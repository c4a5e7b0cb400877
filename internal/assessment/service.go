// Package assessment assembles point observations from the coverage client
// and evaluates them against BVLOS go/no-go thresholds.
package assessment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hrdpswx/internal/config"
	"hrdpswx/internal/types"
	"hrdpswx/internal/wcs"
)

// CoverageFetcher is the subset of the coverage client the service needs.
// Satisfied by *wcs.Client; tests substitute a stub.
type CoverageFetcher interface {
	FetchPointValue(ctx context.Context, layerKey string, pt types.GeoPoint) (float64, error)
}

// extremeColdC and the precipitation bands come from the BVLOS operating
// rules this service encodes: below -20 C batteries and airframes are out
// of envelope, above 5 mm accumulated precipitation is a hard stop, above
// 1 mm a caution.
const (
	extremeColdC     = -20.0
	heavyPrecipMM    = 5.0
	moderatePrecipMM = 1.0
)

// Service implements observation assembly and go/no-go evaluation.
type Service struct {
	fetcher     CoverageFetcher
	cfg         config.AssessmentConfig
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceOption is a functional option for configuring a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source. Used by tests for deterministic
// timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService builds an assessment service. concurrency caps simultaneous
// per-layer coverage fetches for a single request.
func NewService(fetcher CoverageFetcher, cfg config.AssessmentConfig, concurrency int, logger *slog.Logger, opts ...ServiceOption) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}
	s := &Service{
		fetcher:     fetcher,
		cfg:         cfg,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// criticalLayers are the layers whose failure aborts the whole request.
// Everything else is best-effort and surfaces in the unavailable list.
var criticalLayers = map[string]bool{
	wcs.LayerWindSpeed: true,
	wcs.LayerWindGust:  true,
}

// fetchLayers pulls the given layers concurrently. Values are in canonical
// units. A critical layer's error is returned as-is; advisory failures are
// logged and reported in the second return value, sorted for stable output.
func (s *Service) fetchLayers(ctx context.Context, keys []string, pt types.GeoPoint) (map[string]float64, []string, error) {
	var mu sync.Mutex
	values := make(map[string]float64, len(keys))
	var unavailable []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			v, err := s.fetcher.FetchPointValue(gctx, key, pt)
			if err != nil {
				if criticalLayers[key] {
					return err
				}
				s.logger.WarnContext(gctx, "advisory layer unavailable",
					slog.String("layer", key),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				unavailable = append(unavailable, key)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			values[key] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Strings(unavailable)
	return values, unavailable, nil
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

func roundPtr(values map[string]float64, key string, decimals int) *float64 {
	v, ok := values[key]
	if !ok {
		return nil
	}
	r := roundTo(v, decimals)
	return &r
}

// roundDirPtr rounds a bearing to whole degrees and folds it back into
// [0, 360): rounding alone turns readings in [359.5, 360) into 360.
func roundDirPtr(values map[string]float64, key string) *float64 {
	p := roundPtr(values, key, 0)
	if p != nil {
		*p = wcs.NormalizeDegrees(*p)
	}
	return p
}

// GetObservation fetches every supported layer at the point and assembles a
// converted Observation. Wind speed and gust are required; any other layer
// that fails is listed in Unavailable and its field omitted.
func (s *Service) GetObservation(ctx context.Context, pt types.GeoPoint) (*types.Observation, error) {
	keys := make([]string, 0, len(wcs.Layers()))
	for _, l := range wcs.Layers() {
		keys = append(keys, l.Key)
	}

	values, unavailable, err := s.fetchLayers(ctx, keys, pt)
	if err != nil {
		return nil, err
	}

	windKts := values[wcs.LayerWindSpeed]
	gustKts := values[wcs.LayerWindGust]

	obs := &types.Observation{
		Location:     pt,
		TemperatureC: roundPtr(values, wcs.LayerTemperature, 1),
		WindSpeedMps: roundTo(wcs.KnotsToMps(windKts), 1),
		WindSpeedKts: roundTo(windKts, 1),
		WindGustMps:  roundTo(wcs.KnotsToMps(gustKts), 1),
		WindGustKts:  roundTo(gustKts, 1),
		WindDirDeg:   roundDirPtr(values, wcs.LayerWindDirection),
		PressureKpa:  roundPtr(values, wcs.LayerPressure, 2),
		PrecipMM:     roundPtr(values, wcs.LayerPrecipitation, 2),
		CloudPct:     roundPtr(values, wcs.LayerCloudCover, 0),
		HumidityKgKg: roundPtr(values, wcs.LayerHumidity, 6),
		Unavailable:  unavailable,
		Timestamp:    s.now().UTC(),
		DataSource:   types.DataSourceWeather,
		ResolutionKm: types.GridResolutionKm,
		ForecastHrs:  types.ForecastHours,
	}
	return obs, nil
}

// Rule severities, ordered. The worst triggered severity decides the status.
type severity int

const (
	sevNone severity = iota
	sevCaution
	sevStop
)

// Assess fetches the layers the go/no-go rules consume and evaluates them
// against the thresholds. Rules, in order:
//
//  1. Wind over limit, gusts over limit, extreme cold, heavy precipitation
//     are stop conditions (RED).
//  2. Moderate precipitation, a wind or gust reading within the caution
//     margin below its limit, and an unavailable advisory layer are
//     caution conditions (YELLOW).
//
// Raising a threshold can never worsen the outcome.
func (s *Service) Assess(ctx context.Context, pt types.GeoPoint, th types.Thresholds) (*types.Assessment, error) {
	keys := []string{
		wcs.LayerWindSpeed,
		wcs.LayerWindGust,
		wcs.LayerTemperature,
		wcs.LayerPrecipitation,
	}
	values, unavailable, err := s.fetchLayers(ctx, keys, pt)
	if err != nil {
		return nil, err
	}

	var issues []string
	worst := sevNone
	flag := func(sev severity, format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
		if sev > worst {
			worst = sev
		}
	}

	windKts := values[wcs.LayerWindSpeed]
	gustKts := values[wcs.LayerWindGust]
	gustRounded := roundTo(gustKts, 1)

	cond := types.Conditions{
		WindSpeedKts: roundTo(windKts, 1),
		WindGustKts:  &gustRounded,
		TemperatureC: roundPtr(values, wcs.LayerTemperature, 1),
		PrecipMM:     roundPtr(values, wcs.LayerPrecipitation, 2),
	}

	cautionBand := 1.0 - s.cfg.CautionMargin

	if windKts > th.MaxWindKts {
		flag(sevStop, "Wind %.1f kts exceeds %g kts limit", windKts, th.MaxWindKts)
	} else if windKts > th.MaxWindKts*cautionBand {
		flag(sevCaution, "Wind %.1f kts within %d%% of %g kts limit", windKts, int(s.cfg.CautionMargin*100), th.MaxWindKts)
	}

	if gustKts > th.MaxGustKts {
		flag(sevStop, "Gusts %.1f kts exceeds %g kts limit", gustKts, th.MaxGustKts)
	} else if gustKts > th.MaxGustKts*cautionBand {
		flag(sevCaution, "Gusts %.1f kts within %d%% of %g kts limit", gustKts, int(s.cfg.CautionMargin*100), th.MaxGustKts)
	}

	if temp, ok := values[wcs.LayerTemperature]; ok {
		if temp < extremeColdC {
			flag(sevStop, "Extreme cold: %.1f°C", temp)
		}
	}

	if precip, ok := values[wcs.LayerPrecipitation]; ok {
		switch {
		case precip > heavyPrecipMM:
			flag(sevStop, "Heavy precipitation: %.1f mm", precip)
		case precip > moderatePrecipMM:
			flag(sevCaution, "Moderate precipitation: %.1f mm", precip)
		}
	}

	for _, layer := range unavailable {
		flag(sevCaution, "%s data unavailable", layer)
	}

	var status types.FlightStatus
	var recommendation string
	switch worst {
	case sevStop:
		status = types.StatusRed
		recommendation = "NO-GO: Conditions exceed safe limits"
	case sevCaution:
		status = types.StatusYellow
		recommendation = "CAUTION: Review conditions carefully"
	default:
		status = types.StatusGreen
		recommendation = "GO: Conditions within limits"
	}

	if issues == nil {
		issues = []string{}
	}

	return &types.Assessment{
		Location:       pt,
		Status:         status,
		Recommendation: recommendation,
		Conditions:     cond,
		Issues:         issues,
		Thresholds:     th,
		Timestamp:      s.now().UTC(),
		DataSource:     types.DataSourceAssessment,
	}, nil
}
