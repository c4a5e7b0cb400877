package types

import "time"

// HRDPS coverage window. Points outside this band are rejected before any
// upstream call is made. The bounds approximate the HRDPS continental domain
// (roughly Canada).
const (
	CoverageMinLat = 40.0
	CoverageMaxLat = 85.0
	CoverageMinLon = -145.0
	CoverageMaxLon = -50.0
)

// Data source identifiers returned in response metadata.
const (
	DataSourceWeather    = "Environment Canada HRDPS"
	DataSourceAssessment = "Environment Canada HRDPS (2.5km resolution)"

	// GridResolutionKm is the native HRDPS grid spacing.
	GridResolutionKm = 2.5

	// ForecastHours is the HRDPS forecast horizon.
	ForecastHours = 48
)

// GeoPoint is a geographic coordinate in decimal degrees (EPSG:4326).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// InCoverage reports whether the point falls within the HRDPS coverage window.
func (p GeoPoint) InCoverage() bool {
	return p.Lat >= CoverageMinLat && p.Lat <= CoverageMaxLat &&
		p.Lon >= CoverageMinLon && p.Lon <= CoverageMaxLon
}

// Observation is the converted per-layer scalar set for a single point.
// It is assembled fresh per request and never persisted. Advisory fields are
// pointers so that an unavailable layer is omitted from the JSON body rather
// than reported as zero.
type Observation struct {
	Location     GeoPoint  `json:"location"`
	TemperatureC *float64  `json:"temperature_c,omitempty"`
	WindSpeedMps float64   `json:"wind_speed_mps"`
	WindSpeedKts float64   `json:"wind_speed_kts"`
	WindGustMps  float64   `json:"wind_gust_mps"`
	WindGustKts  float64   `json:"wind_gust_kts"`
	WindDirDeg   *float64  `json:"wind_direction_deg,omitempty"`
	PressureKpa  *float64  `json:"pressure_kpa,omitempty"`
	PrecipMM     *float64  `json:"precipitation_mm,omitempty"`
	CloudPct     *float64  `json:"cloud_cover_pct,omitempty"`
	HumidityKgKg *float64  `json:"specific_humidity_kgkg,omitempty"`
	Unavailable  []string  `json:"unavailable,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	DataSource   string    `json:"data_source"`
	ResolutionKm float64   `json:"resolution_km"`
	ForecastHrs  int       `json:"forecast_hours"`
}

// FlightStatus is the traffic-light classification of an assessment.
type FlightStatus string

const (
	StatusGreen  FlightStatus = "GREEN"
	StatusYellow FlightStatus = "YELLOW"
	StatusRed    FlightStatus = "RED"
)

// Thresholds holds the caller-supplied go/no-go limits, in knots.
type Thresholds struct {
	MaxWindKts float64 `json:"max_wind_kts" validate:"gt=0,lte=200"`
	MaxGustKts float64 `json:"max_gust_kts" validate:"gt=0,lte=200"`
}

// DefaultThresholds returns the documented default BVLOS limits.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxWindKts: 20, MaxGustKts: 25}
}

// Conditions is the observation subset echoed back in an assessment.
type Conditions struct {
	WindSpeedKts float64  `json:"wind_speed_kts"`
	WindGustKts  *float64 `json:"wind_gust_kts"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	PrecipMM     *float64 `json:"precipitation_mm,omitempty"`
}

// Assessment is the derived go/no-go decision. It is never mutated after
// construction.
type Assessment struct {
	Location       GeoPoint     `json:"location"`
	Status         FlightStatus `json:"status"`
	Recommendation string       `json:"recommendation"`
	Conditions     Conditions   `json:"conditions"`
	Issues         []string     `json:"issues"`
	Thresholds     Thresholds   `json:"thresholds"`
	Timestamp      time.Time    `json:"timestamp"`
	DataSource     string       `json:"data_source"`
}
