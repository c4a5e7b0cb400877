package wcs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrdpswx/internal/config"
	"hrdpswx/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	cfg := config.WCSConfig{
		BaseURL:          baseURL,
		FetchTimeout:     2 * time.Second,
		BufferDeg:        0.05,
		MaxRetries:       0,
		UserAgent:        "hrdpswx-test/1.0",
		FetchConcurrency: 8,
	}
	return NewClient(cfg, testLogger())
}

func requireAppErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

func requireParseFailure(t *testing.T, err error) {
	t.Helper()
	requireAppErrorCode(t, err, types.ErrCodeCoverageParseFailure)
}

func TestClient_FetchPointValue_Success(t *testing.T) {
	pt := types.GeoPoint{Lat: 45.5017, Lon: -73.5673}
	payload := buildCoveragePayload(t,
		[]float64{pt.Lat - 0.025, pt.Lat, pt.Lat + 0.025},
		[]float64{pt.Lon - 0.025, pt.Lon, pt.Lon + 0.025},
		[]float32{0, 0, 0, 0, 10, 0, 0, 0, 0}, // 10 m/s at the center cell
		nil,
	)

	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/x-netcdf")
		w.Write(payload)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).FetchPointValue(context.Background(), LayerWindSpeed, pt)
	require.NoError(t, err)
	assert.InDelta(t, MpsToKnots(10), got, 1e-4)

	require.NotNil(t, gotQuery)
	assert.Equal(t, []string{"WCS"}, gotQuery["SERVICE"])
	assert.Equal(t, []string{"2.0.1"}, gotQuery["VERSION"])
	assert.Equal(t, []string{"GetCoverage"}, gotQuery["REQUEST"])
	assert.Equal(t, []string{"HRDPS.CONTINENTAL_WSPD"}, gotQuery["COVERAGEID"])
	assert.Equal(t, []string{"image/netcdf"}, gotQuery["FORMAT"])
	assert.Equal(t, []string{"EPSG:4326"}, gotQuery["SUBSETTINGCRS"])
	assert.Equal(t, []string{"EPSG:4326"}, gotQuery["OUTPUTCRS"])
	require.Len(t, gotQuery["SUBSET"], 2, "one SUBSET per axis")
	assert.Contains(t, gotQuery["SUBSET"][0], "x(")
	assert.Contains(t, gotQuery["SUBSET"][1], "y(")
}

func TestClient_FetchPointValue_OutOfCoverage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no upstream call expected for out-of-coverage points")
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchPointValue(context.Background(), LayerTemperature,
		types.GeoPoint{Lat: 25.76, Lon: -80.19}) // Miami
	requireAppErrorCode(t, err, types.ErrCodeCoverageOutOfBounds)
}

func TestClient_FetchPointValue_UnknownLayerKey(t *testing.T) {
	_, err := testClient("http://unused.invalid").FetchPointValue(context.Background(), "visibility",
		types.GeoPoint{Lat: 45.5, Lon: -73.57})
	requireAppErrorCode(t, err, types.ErrCodeCoverageUnknownLayer)
}

func TestClient_FetchPointValue_UpstreamExceptionReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<ows:ExceptionReport xmlns:ows="http://www.opengis.net/ows/2.0" version="2.0.1">
  <ows:Exception exceptionCode="NoSuchCoverage" locator="coverage"/>
</ows:ExceptionReport>`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchPointValue(context.Background(), LayerTemperature,
		types.GeoPoint{Lat: 45.5, Lon: -73.57})
	requireAppErrorCode(t, err, types.ErrCodeCoverageUnknownLayer)
}

func TestClient_FetchPointValue_GarbagePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance page</html>"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchPointValue(context.Background(), LayerTemperature,
		types.GeoPoint{Lat: 45.5, Lon: -73.57})
	requireParseFailure(t, err)
}

func TestClient_FetchPointValue_UpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchPointValue(context.Background(), LayerTemperature,
		types.GeoPoint{Lat: 45.5, Lon: -73.57})
	requireAppErrorCode(t, err, types.ErrCodeUpstreamWCSUnavailable)
}

func TestProbe_Check(t *testing.T) {
	var gotRequest string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequest = r.URL.Query().Get("REQUEST")
		w.Write([]byte("<wcs:Capabilities/>"))
	}))
	defer srv.Close()

	probe := NewProbe(testClient(srv.URL))
	assert.Equal(t, "geomet-wcs", probe.Name())
	require.NoError(t, probe.Check(context.Background()))
	assert.Equal(t, "GetCapabilities", gotRequest)
}

func TestProbe_Check_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewProbe(testClient(srv.URL)).Check(context.Background())
	require.Error(t, err)
}
