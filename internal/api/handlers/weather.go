// Package handlers contains the HTTP handlers for the weather and
// assessment endpoints. Handlers parse and validate input, delegate to the
// assessment service, and translate results or errors into JSON responses.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hrdpswx/internal/core"
	"hrdpswx/internal/types"
	"hrdpswx/internal/wcs"
)

// WeatherService is the interface the handlers depend on. *assessment.Service
// satisfies it; tests substitute a mock.
type WeatherService interface {
	GetObservation(ctx context.Context, pt types.GeoPoint) (*types.Observation, error)
	Assess(ctx context.Context, pt types.GeoPoint, th types.Thresholds) (*types.Assessment, error)
}

// WeatherHandler serves /weather, /bvlos-assessment, and /layers.
type WeatherHandler struct {
	service   WeatherService
	validator *core.Validator
	defaults  types.Thresholds
	logger    *slog.Logger
}

// NewWeatherHandler constructs the handler with its dependencies.
func NewWeatherHandler(service WeatherService, validator *core.Validator, defaults types.Thresholds, logger *slog.Logger) *WeatherHandler {
	return &WeatherHandler{
		service:   service,
		validator: validator,
		defaults:  defaults,
		logger:    logger,
	}
}

// RegisterRoutes mounts the weather endpoints on the router.
func (h *WeatherHandler) RegisterRoutes(r chi.Router) {
	r.Get("/weather", h.GetWeather)
	r.Get("/bvlos-assessment", h.GetAssessment)
	r.Get("/layers", h.ListLayers)
}

// parsePoint extracts and validates the lat/lon query parameters. All input
// problems are rejected here, before any upstream call is attempted.
func parsePoint(r *http.Request) (types.GeoPoint, error) {
	q := r.URL.Query()
	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr == "" || lonStr == "" {
		return types.GeoPoint{}, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"lat and lon query parameters are required",
			nil,
		)
	}

	// ParseFloat accepts "NaN" and "Inf", and NaN slips through range
	// comparisons, so non-finite values are rejected explicitly.
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || math.IsNaN(lat) || lat < -90 || lat > 90 {
		return types.GeoPoint{}, types.NewAppError(
			types.ErrCodeValidationInvalidLat,
			fmt.Sprintf("lat %q must be a decimal degree value between -90 and 90", latStr),
			err,
		)
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || math.IsNaN(lon) || lon < -180 || lon > 180 {
		return types.GeoPoint{}, types.NewAppError(
			types.ErrCodeValidationInvalidLon,
			fmt.Sprintf("lon %q must be a decimal degree value between -180 and 180", lonStr),
			err,
		)
	}

	return types.GeoPoint{Lat: lat, Lon: lon}, nil
}

// parseThresholds reads the optional threshold parameters, falling back to
// the configured defaults, and validates the resulting struct.
func (h *WeatherHandler) parseThresholds(r *http.Request) (types.Thresholds, error) {
	th := h.defaults
	q := r.URL.Query()

	if raw := q.Get("max_wind_kts"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Thresholds{}, types.NewAppError(
				types.ErrCodeValidationThresholdRange,
				fmt.Sprintf("max_wind_kts %q must be a number", raw),
				err,
			)
		}
		th.MaxWindKts = v
	}
	if raw := q.Get("max_gust_kts"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Thresholds{}, types.NewAppError(
				types.ErrCodeValidationThresholdRange,
				fmt.Sprintf("max_gust_kts %q must be a number", raw),
				err,
			)
		}
		th.MaxGustKts = v
	}

	if err := h.validator.ValidateStruct(th); err != nil {
		return types.Thresholds{}, err
	}
	return th, nil
}

// GetWeather handles GET /weather.
func (h *WeatherHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	pt, err := parsePoint(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	obs, err := h.service.GetObservation(r.Context(), pt)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, obs)
}

// GetAssessment handles GET /bvlos-assessment.
func (h *WeatherHandler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	pt, err := parsePoint(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	th, err := h.parseThresholds(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.service.Assess(r.Context(), pt, th)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, result)
}

// LayersResponse is the body served by GET /layers.
type LayersResponse struct {
	Layers []wcs.LayerDescriptor `json:"layers"`
	Count  int                   `json:"count"`
}

// ListLayers handles GET /layers. The table is static; no upstream call is
// made.
func (h *WeatherHandler) ListLayers(w http.ResponseWriter, r *http.Request) {
	layers := wcs.Layers()
	core.JSON(w, r, http.StatusOK, LayersResponse{Layers: layers, Count: len(layers)})
}
