package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrdpswx/internal/core"
	"hrdpswx/internal/types"
)

// mockWeatherService lets each test cover one service behavior.
type mockWeatherService struct {
	getObservation func(ctx context.Context, pt types.GeoPoint) (*types.Observation, error)
	assess         func(ctx context.Context, pt types.GeoPoint, th types.Thresholds) (*types.Assessment, error)
}

func (m *mockWeatherService) GetObservation(ctx context.Context, pt types.GeoPoint) (*types.Observation, error) {
	if m.getObservation == nil {
		panic("unexpected GetObservation call")
	}
	return m.getObservation(ctx, pt)
}

func (m *mockWeatherService) Assess(ctx context.Context, pt types.GeoPoint, th types.Thresholds) (*types.Assessment, error) {
	if m.assess == nil {
		panic("unexpected Assess call")
	}
	return m.assess(ctx, pt, th)
}

func newTestRouter(svc WeatherService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewWeatherHandler(svc, core.NewValidator(logger), types.DefaultThresholds(), logger)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, handler http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return rec, body
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", body)
	code, _ := errObj["code"].(string)
	return code
}

func sampleObservation(pt types.GeoPoint) *types.Observation {
	return &types.Observation{
		Location:     pt,
		WindSpeedMps: 4.2,
		WindSpeedKts: 8.2,
		WindGustMps:  6.8,
		WindGustKts:  13.2,
		Timestamp:    time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		DataSource:   types.DataSourceWeather,
		ResolutionKm: types.GridResolutionKm,
		ForecastHrs:  types.ForecastHours,
	}
}

func TestGetWeather_Success(t *testing.T) {
	var gotPt types.GeoPoint
	svc := &mockWeatherService{
		getObservation: func(_ context.Context, pt types.GeoPoint) (*types.Observation, error) {
			gotPt = pt
			return sampleObservation(pt), nil
		},
	}

	rec, body := doRequest(t, newTestRouter(svc), "/weather?lat=45.5017&lon=-73.5673")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, types.GeoPoint{Lat: 45.5017, Lon: -73.5673}, gotPt)
	assert.Equal(t, 8.2, body["wind_speed_kts"])
	assert.Equal(t, types.DataSourceWeather, body["data_source"])
	assert.Equal(t, 2.5, body["resolution_km"])
	assert.Equal(t, float64(48), body["forecast_hours"])
}

func TestGetWeather_InputValidation(t *testing.T) {
	cases := []struct {
		name     string
		target   string
		wantCode string
	}{
		{"missing both", "/weather", "validation_missing_required_field"},
		{"missing lon", "/weather?lat=45.5", "validation_missing_required_field"},
		{"non-numeric lat", "/weather?lat=abc&lon=-73.5", "validation_invalid_latitude"},
		{"lat out of range", "/weather?lat=95&lon=-73.5", "validation_invalid_latitude"},
		{"non-numeric lon", "/weather?lat=45.5&lon=west", "validation_invalid_longitude"},
		{"lon out of range", "/weather?lat=45.5&lon=-181", "validation_invalid_longitude"},
		{"NaN lat", "/weather?lat=NaN&lon=-73.5", "validation_invalid_latitude"},
		{"NaN lon", "/weather?lat=45.5&lon=nan", "validation_invalid_longitude"},
		{"infinite lat", "/weather?lat=%2BInf&lon=-73.5", "validation_invalid_latitude"},
	}
	// Nil mock functions panic if the service is reached; these requests
	// must all be rejected during parsing.
	handler := newTestRouter(&mockWeatherService{})

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := doRequest(t, handler, tc.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.wantCode, errorCode(t, body))
		})
	}
}

func TestGetWeather_ServiceErrors(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			"out of coverage",
			types.NewAppError(types.ErrCodeCoverageOutOfBounds, "point (25.76, -80.19) is outside HRDPS coverage", nil),
			http.StatusUnprocessableEntity,
			"coverage_out_of_bounds",
			"point (25.76, -80.19) is outside HRDPS coverage",
		},
		{
			"upstream down",
			types.NewAppError(types.ErrCodeUpstreamWCSUnavailable, "upstream returned 502 after retries", nil),
			http.StatusServiceUnavailable,
			"upstream_wcs_unavailable",
			"weather service unavailable",
		},
		{
			"parse failure masked",
			types.NewAppError(types.ErrCodeCoverageParseFailure, "truncated header at offset 12", nil),
			http.StatusInternalServerError,
			"coverage_parse_failure",
			"an internal error occurred while reading forecast data",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockWeatherService{
				getObservation: func(context.Context, types.GeoPoint) (*types.Observation, error) {
					return nil, tc.err
				},
			}
			rec, body := doRequest(t, newTestRouter(svc), "/weather?lat=45.5&lon=-73.5")

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantCode, errorCode(t, body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, tc.wantMessage, errObj["message"])
		})
	}
}

func TestGetAssessment_DefaultThresholds(t *testing.T) {
	var gotTh types.Thresholds
	svc := &mockWeatherService{
		assess: func(_ context.Context, pt types.GeoPoint, th types.Thresholds) (*types.Assessment, error) {
			gotTh = th
			return &types.Assessment{
				Location:       pt,
				Status:         types.StatusGreen,
				Recommendation: "GO: Conditions within limits",
				Issues:         []string{},
				Thresholds:     th,
				DataSource:     types.DataSourceAssessment,
			}, nil
		},
	}

	rec, body := doRequest(t, newTestRouter(svc), "/bvlos-assessment?lat=45.5&lon=-73.5")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.Thresholds{MaxWindKts: 20, MaxGustKts: 25}, gotTh)
	assert.Equal(t, "GREEN", body["status"])
	issues, ok := body["issues"].([]any)
	require.True(t, ok, "issues must serialize as an array")
	assert.Empty(t, issues)
}

func TestGetAssessment_CustomThresholds(t *testing.T) {
	var gotTh types.Thresholds
	svc := &mockWeatherService{
		assess: func(_ context.Context, pt types.GeoPoint, th types.Thresholds) (*types.Assessment, error) {
			gotTh = th
			return &types.Assessment{Location: pt, Status: types.StatusGreen, Thresholds: th, Issues: []string{}}, nil
		},
	}

	rec, _ := doRequest(t, newTestRouter(svc),
		"/bvlos-assessment?lat=45.5&lon=-73.5&max_wind_kts=15&max_gust_kts=18.5")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.Thresholds{MaxWindKts: 15, MaxGustKts: 18.5}, gotTh)
}

func TestGetAssessment_ThresholdValidation(t *testing.T) {
	handler := newTestRouter(&mockWeatherService{})

	cases := []struct {
		name   string
		target string
	}{
		{"non-numeric", "/bvlos-assessment?lat=45.5&lon=-73.5&max_wind_kts=strong"},
		{"zero", "/bvlos-assessment?lat=45.5&lon=-73.5&max_wind_kts=0"},
		{"negative", "/bvlos-assessment?lat=45.5&lon=-73.5&max_gust_kts=-5"},
		{"over cap", "/bvlos-assessment?lat=45.5&lon=-73.5&max_wind_kts=250"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := doRequest(t, handler, tc.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_threshold_out_of_range", errorCode(t, body))
		})
	}
}

func TestListLayers(t *testing.T) {
	// Static endpoint; nil mock functions prove no service call happens.
	rec, body := doRequest(t, newTestRouter(&mockWeatherService{}), "/layers")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(8), body["count"])

	layers, ok := body["layers"].([]any)
	require.True(t, ok)
	require.Len(t, layers, 8)

	first := layers[0].(map[string]any)
	assert.Equal(t, "temperature", first["id"])
	assert.Equal(t, "HRDPS.CONTINENTAL_TT", first["coverage_id"])
	assert.NotContains(t, first, "Convert")
}
