package wcs

import (
	"encoding/binary"
	"fmt"
	"math"

	"hrdpswx/internal/types"
)

// The GeoMet WCS returns coverage windows as netCDF classic files
// (FORMAT=image/netcdf). This file implements the minimal subset of the
// netCDF classic format (CDF-1 and CDF-2) needed to decode such a window:
// big-endian header parsing for dimensions, attributes, and variables,
// followed by a direct seek into the data section for the requested cell.
// The decode step is strict: grid dimensions and the target cell index are
// validated before any indexing, and every malformed payload maps to
// coverage_parse_failure.

// netCDF external type identifiers (nc_type).
const (
	ncByte   = 1
	ncChar   = 2
	ncShort  = 3
	ncInt    = 4
	ncFloat  = 5
	ncDouble = 6
)

// Header list tags.
const (
	tagDimension = 0x0A
	tagVariable  = 0x0B
	tagAttribute = 0x0C
)

// maxCoveragePayload bounds how much of an upstream response is decoded.
// A requested window is a handful of 2.5 km cells; anything above this is
// not a plausible coverage response.
const maxCoveragePayload = 8 << 20 // 8 MB

// ncDimension is a named dimension from the file header.
type ncDimension struct {
	name string
	size int // 0 for the record dimension
}

// ncVariable is a variable entry from the file header.
type ncVariable struct {
	name   string
	dimids []int
	attrs  map[string]any
	typ    int
	vsize  int
	begin  int64
}

// ncFile is a parsed netCDF classic header plus the raw payload for data
// section reads.
type ncFile struct {
	raw  []byte
	dims []ncDimension
	vars []ncVariable
}

// typeSize returns the on-disk size in bytes of an nc_type, or 0 if the
// type is unknown.
func typeSize(t int) int {
	switch t {
	case ncByte, ncChar:
		return 1
	case ncShort:
		return 2
	case ncInt, ncFloat:
		return 4
	case ncDouble:
		return 8
	default:
		return 0
	}
}

// parseErr wraps a decode problem as a coverage_parse_failure AppError.
func parseErr(format string, args ...any) *types.AppError {
	return types.NewAppError(
		types.ErrCodeCoverageParseFailure,
		fmt.Sprintf(format, args...),
		nil,
	)
}

// ncReader is a bounds-checked cursor over the raw payload.
type ncReader struct {
	data []byte
	pos  int
}

func (r *ncReader) remaining() int { return len(r.data) - r.pos }

func (r *ncReader) readU32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, parseErr("truncated header at offset %d", r.pos)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *ncReader) readU64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, parseErr("truncated header at offset %d", r.pos)
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// readName reads a length-prefixed string padded to a 4-byte boundary.
func (r *ncReader) readName() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	padded := int((n + 3) &^ 3)
	if r.remaining() < padded {
		return "", parseErr("truncated name at offset %d", r.pos)
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += padded
	return s, nil
}

// readList reads a list header (tag + element count). An absent list is
// encoded as two zero words.
func (r *ncReader) readList(expectTag uint32) (int, error) {
	tag, err := r.readU32()
	if err != nil {
		return 0, err
	}
	count, err := r.readU32()
	if err != nil {
		return 0, err
	}
	if tag == 0 && count == 0 {
		return 0, nil
	}
	if tag != expectTag {
		return 0, parseErr("unexpected list tag 0x%02X (want 0x%02X)", tag, expectTag)
	}
	return int(count), nil
}

// readAttrValues reads an attribute's value block and returns it as a Go
// value: a string for NC_CHAR, a float64 for single-element numeric types,
// or a []float64 otherwise.
func (r *ncReader) readAttrValues(typ, count int) (any, error) {
	size := typeSize(typ)
	if size == 0 {
		return nil, parseErr("unknown attribute type %d", typ)
	}
	total := size * count
	padded := (total + 3) &^ 3
	if r.remaining() < padded {
		return nil, parseErr("truncated attribute values at offset %d", r.pos)
	}
	payload := r.data[r.pos : r.pos+total]
	r.pos += padded

	if typ == ncChar {
		return string(payload), nil
	}

	vals := make([]float64, count)
	for i := 0; i < count; i++ {
		vals[i] = decodeScalar(payload[i*size:], typ)
	}
	if count == 1 {
		return vals[0], nil
	}
	return vals, nil
}

// decodeScalar decodes one big-endian value of the given nc_type.
// The caller guarantees the slice holds at least typeSize(typ) bytes.
func decodeScalar(b []byte, typ int) float64 {
	switch typ {
	case ncByte:
		return float64(int8(b[0]))
	case ncChar:
		return float64(b[0])
	case ncShort:
		return float64(int16(binary.BigEndian.Uint16(b)))
	case ncInt:
		return float64(int32(binary.BigEndian.Uint32(b)))
	case ncFloat:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
	case ncDouble:
		return math.Float64frombits(binary.BigEndian.Uint64(b))
	default:
		return math.NaN()
	}
}

// readAttrList reads a full attribute list into a name -> value map.
func (r *ncReader) readAttrList() (map[string]any, error) {
	count, err := r.readList(tagAttribute)
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]any, count)
	for i := 0; i < count; i++ {
		name, err := r.readName()
		if err != nil {
			return nil, err
		}
		typ, err := r.readU32()
		if err != nil {
			return nil, err
		}
		nelems, err := r.readU32()
		if err != nil {
			return nil, err
		}
		val, err := r.readAttrValues(int(typ), int(nelems))
		if err != nil {
			return nil, err
		}
		attrs[name] = val
	}
	return attrs, nil
}

// parseNetCDF parses a netCDF classic (CDF-1/CDF-2) header.
func parseNetCDF(data []byte) (*ncFile, error) {
	if len(data) == 0 {
		return nil, parseErr("empty coverage payload")
	}
	if len(data) > maxCoveragePayload {
		return nil, parseErr("coverage payload exceeds %d bytes", maxCoveragePayload)
	}
	if len(data) < 4 || data[0] != 'C' || data[1] != 'D' || data[2] != 'F' {
		return nil, parseErr("payload is not a netCDF classic file")
	}
	version := data[3]
	if version != 1 && version != 2 {
		return nil, parseErr("unsupported netCDF version byte %d", version)
	}

	r := &ncReader{data: data, pos: 4}

	// numrecs; unused since coverage responses carry no record variables,
	// but it must be consumed to advance the cursor.
	if _, err := r.readU32(); err != nil {
		return nil, err
	}

	f := &ncFile{raw: data}

	dimCount, err := r.readList(tagDimension)
	if err != nil {
		return nil, err
	}
	f.dims = make([]ncDimension, 0, dimCount)
	for i := 0; i < dimCount; i++ {
		name, err := r.readName()
		if err != nil {
			return nil, err
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		f.dims = append(f.dims, ncDimension{name: name, size: int(size)})
	}

	// Global attributes are not needed for cell extraction; skip over them.
	if _, err := r.readAttrList(); err != nil {
		return nil, err
	}

	varCount, err := r.readList(tagVariable)
	if err != nil {
		return nil, err
	}
	f.vars = make([]ncVariable, 0, varCount)
	for i := 0; i < varCount; i++ {
		name, err := r.readName()
		if err != nil {
			return nil, err
		}
		ndims, err := r.readU32()
		if err != nil {
			return nil, err
		}
		if int(ndims) > len(f.dims) {
			return nil, parseErr("variable %q references %d dimensions, file has %d", name, ndims, len(f.dims))
		}
		dimids := make([]int, ndims)
		for d := range dimids {
			id, err := r.readU32()
			if err != nil {
				return nil, err
			}
			if int(id) >= len(f.dims) {
				return nil, parseErr("variable %q references unknown dimension %d", name, id)
			}
			dimids[d] = int(id)
		}
		attrs, err := r.readAttrList()
		if err != nil {
			return nil, err
		}
		typ, err := r.readU32()
		if err != nil {
			return nil, err
		}
		vsize, err := r.readU32()
		if err != nil {
			return nil, err
		}
		var begin int64
		if version == 1 {
			b, err := r.readU32()
			if err != nil {
				return nil, err
			}
			begin = int64(b)
		} else {
			b, err := r.readU64()
			if err != nil {
				return nil, err
			}
			begin = int64(b)
		}
		f.vars = append(f.vars, ncVariable{
			name:   name,
			dimids: dimids,
			attrs:  attrs,
			typ:    int(typ),
			vsize:  int(vsize),
			begin:  begin,
		})
	}

	return f, nil
}

// numericAttr returns a variable attribute as a float64 if present.
func (v *ncVariable) numericAttr(name string) (float64, bool) {
	raw, ok := v.attrs[name]
	if !ok {
		return 0, false
	}
	switch t := raw.(type) {
	case float64:
		return t, true
	case []float64:
		if len(t) > 0 {
			return t[0], true
		}
	}
	return 0, false
}

// readVector reads a 1-D numeric variable into a float64 slice.
func (f *ncFile) readVector(v *ncVariable) ([]float64, error) {
	if len(v.dimids) != 1 {
		return nil, parseErr("coordinate variable %q is not 1-D", v.name)
	}
	n := f.dims[v.dimids[0]].size
	size := typeSize(v.typ)
	if size == 0 {
		return nil, parseErr("coordinate variable %q has unknown type %d", v.name, v.typ)
	}
	end := v.begin + int64(n*size)
	if v.begin < 0 || end > int64(len(f.raw)) {
		return nil, parseErr("coordinate variable %q data out of bounds", v.name)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = decodeScalar(f.raw[v.begin+int64(i*size):], v.typ)
	}
	return out, nil
}

// findVar returns the variable with the given name, or nil.
func (f *ncFile) findVar(name string) *ncVariable {
	for i := range f.vars {
		if f.vars[i].name == name {
			return &f.vars[i]
		}
	}
	return nil
}

// coordinateNames maps possible coordinate variable names per axis. GDAL
// labels geographic output lat/lon and projected output y/x.
var (
	latCoordNames = []string{"lat", "latitude", "y"}
	lonCoordNames = []string{"lon", "longitude", "x"}
)

// findCoordinate locates a 1-D coordinate variable by candidate names.
func (f *ncFile) findCoordinate(candidates []string) *ncVariable {
	for _, name := range candidates {
		if v := f.findVar(name); v != nil && len(v.dimids) == 1 {
			return v
		}
	}
	return nil
}

// findGridVar locates the data variable: the first variable whose trailing
// two dimensions are (latDim, lonDim) and which is not itself a coordinate.
func (f *ncFile) findGridVar(latDim, lonDim int) *ncVariable {
	for i := range f.vars {
		v := &f.vars[i]
		nd := len(v.dimids)
		if nd < 2 {
			continue
		}
		if v.dimids[nd-2] == latDim && v.dimids[nd-1] == lonDim {
			return v
		}
	}
	return nil
}

// nearestIndex returns the index of the element in coords closest to the
// target. Coverage windows are a handful of cells, so a linear scan is fine;
// it also works regardless of axis direction.
func nearestIndex(coords []float64, target float64) int {
	best := 0
	bestDist := math.Abs(coords[0] - target)
	for i := 1; i < len(coords); i++ {
		d := math.Abs(coords[i] - target)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// ExtractPointValue decodes a netCDF coverage payload and returns the value
// of the grid cell nearest the requested point (nearest-neighbor, no
// interpolation). scale_factor/add_offset packing is applied when present;
// a fill value or NaN at the cell is a parse failure, as the requested
// window lies inside the advertised coverage.
func ExtractPointValue(payload []byte, lat, lon float64) (float64, error) {
	f, err := parseNetCDF(payload)
	if err != nil {
		return 0, err
	}

	latVar := f.findCoordinate(latCoordNames)
	lonVar := f.findCoordinate(lonCoordNames)
	if latVar == nil || lonVar == nil {
		return 0, parseErr("coverage payload has no lat/lon coordinate variables")
	}

	latCoords, err := f.readVector(latVar)
	if err != nil {
		return 0, err
	}
	lonCoords, err := f.readVector(lonVar)
	if err != nil {
		return 0, err
	}
	if len(latCoords) == 0 || len(lonCoords) == 0 {
		return 0, parseErr("coverage payload has an empty grid axis")
	}

	grid := f.findGridVar(latVar.dimids[0], lonVar.dimids[0])
	if grid == nil {
		return 0, parseErr("coverage payload has no data variable over (lat, lon)")
	}

	size := typeSize(grid.typ)
	if size == 0 {
		return 0, parseErr("data variable %q has unknown type %d", grid.name, grid.typ)
	}

	latIdx := nearestIndex(latCoords, lat)
	lonIdx := nearestIndex(lonCoords, lon)

	// Row-major layout; any leading dimensions (e.g. time) are read at
	// index 0, which is the requested forecast step.
	flat := latIdx*len(lonCoords) + lonIdx
	offset := grid.begin + int64(flat*size)
	if offset < 0 || offset+int64(size) > int64(len(f.raw)) {
		return 0, parseErr("cell index %d out of bounds for variable %q", flat, grid.name)
	}

	val := decodeScalar(f.raw[offset:], grid.typ)

	if fill, ok := grid.numericAttr("_FillValue"); ok && val == fill {
		return 0, parseErr("no data at requested cell (fill value)")
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, parseErr("no data at requested cell (NaN)")
	}

	if scale, ok := grid.numericAttr("scale_factor"); ok {
		val *= scale
	}
	if off, ok := grid.numericAttr("add_offset"); ok {
		val += off
	}

	return val, nil
}
