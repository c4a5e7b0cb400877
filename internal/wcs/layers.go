// Package wcs implements the Coverage Client: it fetches HRDPS gridded
// forecast layers from the Environment Canada MSC GeoMet Web Coverage
// Service and extracts the scalar value at the grid cell nearest a
// requested point. It also owns the static layer table and the per-layer
// unit conversions.
package wcs

// Layer keys used throughout the service. These are the friendly
// identifiers exposed by /layers; the CoverageID field carries the upstream
// WCS coverage identifier.
const (
	LayerTemperature   = "temperature"
	LayerWindSpeed     = "wind_speed"
	LayerWindGust      = "wind_gust"
	LayerWindDirection = "wind_direction"
	LayerPressure      = "pressure"
	LayerPrecipitation = "precipitation"
	LayerHumidity      = "humidity"
	LayerCloudCover    = "cloud_cover"
)

// LayerDescriptor describes one supported HRDPS measurement: its upstream
// coverage identifier, units, and the pure transform from the native unit to
// the canonical unit served by this API.
type LayerDescriptor struct {
	Key          string `json:"id"`
	FriendlyName string `json:"name"`
	CoverageID   string `json:"coverage_id"`
	NativeUnit   string `json:"native_unit"`
	Unit         string `json:"unit"`

	// Convert maps a native-unit value to the canonical unit. It must be a
	// pure function; it is called from concurrent fetches.
	Convert func(float64) float64 `json:"-"`
}

// layerTable is the immutable set of supported layers. Coverage IDs were
// verified against the live GeoMet WCS GetCapabilities document. Order is
// significant: /layers lists entries in this order.
var layerTable = []LayerDescriptor{
	{
		Key:          LayerTemperature,
		FriendlyName: "Air temperature at surface",
		CoverageID:   "HRDPS.CONTINENTAL_TT",
		NativeUnit:   "degC",
		Unit:         "degC",
		Convert:      identity,
	},
	{
		Key:          LayerWindSpeed,
		FriendlyName: "Wind speed at 10m",
		CoverageID:   "HRDPS.CONTINENTAL_WSPD",
		NativeUnit:   "m/s",
		Unit:         "kts",
		Convert:      MpsToKnots,
	},
	{
		Key:          LayerWindGust,
		FriendlyName: "Wind gust at 10m",
		CoverageID:   "HRDPS.CONTINENTAL_GUST",
		NativeUnit:   "m/s",
		Unit:         "kts",
		Convert:      MpsToKnots,
	},
	{
		Key:          LayerWindDirection,
		FriendlyName: "Wind direction",
		CoverageID:   "HRDPS.CONTINENTAL_WD",
		NativeUnit:   "deg",
		Unit:         "deg",
		Convert:      NormalizeDegrees,
	},
	{
		Key:          LayerPressure,
		FriendlyName: "Surface pressure",
		CoverageID:   "HRDPS.CONTINENTAL_P0",
		NativeUnit:   "Pa",
		Unit:         "kPa",
		Convert:      PaToKpa,
	},
	{
		Key:          LayerPrecipitation,
		FriendlyName: "Precipitation accumulation",
		CoverageID:   "HRDPS.CONTINENTAL_PR",
		NativeUnit:   "kg/m^2",
		Unit:         "mm",
		Convert:      identity, // 1 kg/m^2 of water is 1 mm
	},
	{
		Key:          LayerHumidity,
		FriendlyName: "Specific humidity",
		CoverageID:   "HRDPS.CONTINENTAL_HU",
		NativeUnit:   "kg/kg",
		Unit:         "kg/kg",
		Convert:      identity,
	},
	{
		Key:          LayerCloudCover,
		FriendlyName: "Total cloud cover",
		CoverageID:   "HRDPS.CONTINENTAL_TCDC",
		NativeUnit:   "%",
		Unit:         "%",
		Convert:      identity,
	},
}

// Layers returns the supported layer descriptors in listing order.
// The returned slice is a copy; the table itself is never mutated.
func Layers() []LayerDescriptor {
	out := make([]LayerDescriptor, len(layerTable))
	copy(out, layerTable)
	return out
}

// LayerByKey looks up a layer descriptor by its friendly key.
func LayerByKey(key string) (LayerDescriptor, bool) {
	for _, l := range layerTable {
		if l.Key == key {
			return l, true
		}
	}
	return LayerDescriptor{}, false
}

// metersPerSecondToKnots is the conversion factor from m/s to knots.
const metersPerSecondToKnots = 1.94384

// MpsToKnots converts meters per second to knots.
func MpsToKnots(mps float64) float64 {
	return mps * metersPerSecondToKnots
}

// KnotsToMps converts knots back to meters per second.
func KnotsToMps(kts float64) float64 {
	return kts / metersPerSecondToKnots
}

// PaToKpa converts pascals to kilopascals.
func PaToKpa(pa float64) float64 {
	return pa / 1000.0
}

// NormalizeDegrees folds a bearing into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	d := deg
	for d < 0 {
		d += 360
	}
	for d >= 360 {
		d -= 360
	}
	return d
}

func identity(v float64) float64 { return v }
