package wcs

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// floatAttr is a float-typed variable attribute for test payloads.
type floatAttr struct {
	name string
	val  float32
}

func writePaddedName(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func writeFloatAttr(buf *bytes.Buffer, a floatAttr) {
	writePaddedName(buf, a.name)
	binary.Write(buf, binary.BigEndian, uint32(ncFloat))
	binary.Write(buf, binary.BigEndian, uint32(1))
	binary.Write(buf, binary.BigEndian, math.Float32bits(a.val))
}

// buildCoverageHeader writes a CDF-1 header for a (lat, lon) grid with
// double coordinate variables and a float data variable named Band1.
func buildCoverageHeader(lats, lons []float64, vals []float32, attrs []floatAttr, begins [3]uint32) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("CDF\x01")
	binary.Write(buf, binary.BigEndian, uint32(0)) // numrecs

	// dim_list
	binary.Write(buf, binary.BigEndian, uint32(tagDimension))
	binary.Write(buf, binary.BigEndian, uint32(2))
	writePaddedName(buf, "lat")
	binary.Write(buf, binary.BigEndian, uint32(len(lats)))
	writePaddedName(buf, "lon")
	binary.Write(buf, binary.BigEndian, uint32(len(lons)))

	// gatt_list (absent)
	binary.Write(buf, binary.BigEndian, uint32(0))
	binary.Write(buf, binary.BigEndian, uint32(0))

	// var_list
	binary.Write(buf, binary.BigEndian, uint32(tagVariable))
	binary.Write(buf, binary.BigEndian, uint32(3))

	writeCoordVar := func(name string, dimid, size int, begin uint32) {
		writePaddedName(buf, name)
		binary.Write(buf, binary.BigEndian, uint32(1))
		binary.Write(buf, binary.BigEndian, uint32(dimid))
		binary.Write(buf, binary.BigEndian, uint32(0)) // vatt_list absent
		binary.Write(buf, binary.BigEndian, uint32(0))
		binary.Write(buf, binary.BigEndian, uint32(ncDouble))
		binary.Write(buf, binary.BigEndian, uint32(size*8))
		binary.Write(buf, binary.BigEndian, begin)
	}
	writeCoordVar("lat", 0, len(lats), begins[0])
	writeCoordVar("lon", 1, len(lons), begins[1])

	writePaddedName(buf, "Band1")
	binary.Write(buf, binary.BigEndian, uint32(2))
	binary.Write(buf, binary.BigEndian, uint32(0))
	binary.Write(buf, binary.BigEndian, uint32(1))
	if len(attrs) == 0 {
		binary.Write(buf, binary.BigEndian, uint32(0))
		binary.Write(buf, binary.BigEndian, uint32(0))
	} else {
		binary.Write(buf, binary.BigEndian, uint32(tagAttribute))
		binary.Write(buf, binary.BigEndian, uint32(len(attrs)))
		for _, a := range attrs {
			writeFloatAttr(buf, a)
		}
	}
	binary.Write(buf, binary.BigEndian, uint32(ncFloat))
	binary.Write(buf, binary.BigEndian, uint32(len(vals)*4))
	binary.Write(buf, binary.BigEndian, begins[2])

	return buf.Bytes()
}

// buildCoveragePayload assembles a complete synthetic coverage file. vals is
// row-major over (lat, lon).
func buildCoveragePayload(t *testing.T, lats, lons []float64, vals []float32, attrs []floatAttr) []byte {
	t.Helper()
	require.Equal(t, len(lats)*len(lons), len(vals), "values must fill the grid")

	headerLen := len(buildCoverageHeader(lats, lons, vals, attrs, [3]uint32{}))
	latBegin := uint32(headerLen)
	lonBegin := latBegin + uint32(len(lats)*8)
	bandBegin := lonBegin + uint32(len(lons)*8)

	buf := bytes.NewBuffer(buildCoverageHeader(lats, lons, vals, attrs, [3]uint32{latBegin, lonBegin, bandBegin}))
	for _, v := range lats {
		binary.Write(buf, binary.BigEndian, math.Float64bits(v))
	}
	for _, v := range lons {
		binary.Write(buf, binary.BigEndian, math.Float64bits(v))
	}
	for _, v := range vals {
		binary.Write(buf, binary.BigEndian, math.Float32bits(v))
	}
	return buf.Bytes()
}

func TestExtractPointValue_NearestCell(t *testing.T) {
	lats := []float64{45.48, 45.50, 45.52}
	lons := []float64{-73.60, -73.58, -73.56}
	vals := []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	payload := buildCoveragePayload(t, lats, lons, vals, nil)

	got, err := ExtractPointValue(payload, 45.505, -73.565)
	require.NoError(t, err)
	// Nearest lat is 45.50 (row 1), nearest lon is -73.56 (col 2).
	assert.InDelta(t, 6.0, got, 1e-9)
}

func TestExtractPointValue_DescendingLatAxis(t *testing.T) {
	// GDAL north-up output has latitudes descending.
	lats := []float64{45.52, 45.50, 45.48}
	lons := []float64{-73.60, -73.58}
	vals := []float32{
		10, 11,
		12, 13,
		14, 15,
	}
	payload := buildCoveragePayload(t, lats, lons, vals, nil)

	got, err := ExtractPointValue(payload, 45.49, -73.59)
	require.NoError(t, err)
	assert.InDelta(t, 14.0, got, 1e-9)
}

func TestExtractPointValue_ScaleAndOffset(t *testing.T) {
	lats := []float64{45.50}
	lons := []float64{-73.58}
	payload := buildCoveragePayload(t, lats, lons, []float32{200},
		[]floatAttr{{"scale_factor", 0.1}, {"add_offset", -5}})

	got, err := ExtractPointValue(payload, 45.50, -73.58)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, got, 1e-4)
}

func TestExtractPointValue_FillValue(t *testing.T) {
	lats := []float64{45.50}
	lons := []float64{-73.58}
	payload := buildCoveragePayload(t, lats, lons, []float32{-9999},
		[]floatAttr{{"_FillValue", -9999}})

	_, err := ExtractPointValue(payload, 45.50, -73.58)
	requireParseFailure(t, err)
}

func TestExtractPointValue_NaNCell(t *testing.T) {
	lats := []float64{45.50}
	lons := []float64{-73.58}
	payload := buildCoveragePayload(t, lats, lons, []float32{float32(math.NaN())}, nil)

	_, err := ExtractPointValue(payload, 45.50, -73.58)
	requireParseFailure(t, err)
}

func TestExtractPointValue_MalformedPayloads(t *testing.T) {
	valid := buildCoveragePayload(t, []float64{45.5}, []float64{-73.58}, []float32{1}, nil)

	cases := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"not netcdf", []byte("<html>502 Bad Gateway</html>")},
		{"bad magic version", []byte("CDF\x07rest")},
		{"truncated header", valid[:20]},
		{"truncated data section", valid[:len(valid)-8]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExtractPointValue(tc.payload, 45.5, -73.58)
			requireParseFailure(t, err)
		})
	}
}

func TestParseNetCDF_RejectsOversizedPayload(t *testing.T) {
	payload := make([]byte, maxCoveragePayload+1)
	copy(payload, "CDF\x01")

	_, err := parseNetCDF(payload)
	requireParseFailure(t, err)
}
