package loader

import (
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/sells-group/gpkg-cli/internal/table"
)

// dbfDateLayout is the DBF 'D' field format.
const dbfDateLayout = "20060102"

type dbfField struct {
	name      string
	kind      table.Kind
	fieldType byte
}

// loadShapefile reads a .shp and its .dbf. Text attributes and field names
// are decoded with enc.
func loadShapefile(path string, enc encoding.Encoding) (*table.Table, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	dec := enc.NewDecoder()
	var fields []dbfField
	for _, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if decoded, err := dec.String(name); err == nil {
			name = decoded
		}
		fields = append(fields, dbfField{
			name:      name,
			kind:      dbfKind(f),
			fieldType: f.Fieldtype,
		})
	}

	var geoms []geom.T
	columns := make([][]table.Value, len(fields))
	var unsupported int

	for reader.Next() {
		_, shape := reader.Shape()
		g, ok := shapeToGeom(shape)
		if !ok {
			unsupported++
		}
		geoms = append(geoms, g)

		for i, f := range fields {
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			columns[i] = append(columns[i], dbfValue(f, raw, dec))
		}
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrap(err, "loader: read shapefile")
	}

	if unsupported > 0 {
		zap.L().Debug("loader: unsupported shape types loaded without geometry",
			zap.String("path", path),
			zap.Int("count", unsupported),
		)
	}

	t := table.New(len(geoms))
	copy(t.Geometry, geoms)
	for i, f := range fields {
		values := columns[i]
		if values == nil {
			values = []table.Value{}
		}
		if _, err := t.AddColumn(f.name, f.kind, values); err != nil {
			return nil, eris.Wrap(err, "loader: add column")
		}
	}
	return t, nil
}

// dbfKind maps a DBF field type to a column kind. Character and memo
// fields stay text for the coercion engine to inspect.
func dbfKind(f shp.Field) table.Kind {
	switch f.Fieldtype {
	case 'N':
		if f.Precision == 0 {
			return table.KindInteger
		}
		return table.KindReal
	case 'F':
		return table.KindReal
	case 'L':
		return table.KindBoolean
	case 'D':
		return table.KindDate
	default:
		return table.KindText
	}
}

// dbfValue converts one raw attribute. Blank or unparseable typed values
// become Null.
func dbfValue(f dbfField, raw string, dec *encoding.Decoder) table.Value {
	if raw == "" {
		return table.Null{}
	}
	switch f.kind {
	case table.KindInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return table.Null{}
		}
		return table.Integer(n)
	case table.KindReal:
		x, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return table.Null{}
		}
		return table.Real(x)
	case table.KindBoolean:
		switch raw {
		case "T", "t", "Y", "y":
			return table.Bool(true)
		case "F", "f", "N", "n":
			return table.Bool(false)
		default:
			return table.Null{}
		}
	case table.KindDate:
		d, err := time.Parse(dbfDateLayout, raw)
		if err != nil {
			return table.Null{}
		}
		return table.DateOf(d)
	default:
		s, err := dec.String(raw)
		if err != nil {
			return table.Text(raw)
		}
		return table.Text(s)
	}
}

// shapeToGeom converts a shapefile record. ok is false for shape types that
// are not supported; those rows are kept without geometry.
func shapeToGeom(shape shp.Shape) (geom.T, bool) {
	switch s := shape.(type) {
	case nil, *shp.Null:
		return nil, true
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), true
	case *shp.MultiPoint:
		return geom.NewMultiPointFlat(geom.XY, pointsFlat(s.Points)), true
	case *shp.PolyLine:
		return polyLineToMultiLineString(s.Parts, s.Points), true
	case *shp.Polygon:
		return polygonToMultiPolygon(s.Parts, s.Points), true
	default:
		return nil, false
	}
}

// partRange returns the point index range of part i.
func partRange(parts []int32, numPoints, i int) (int, int) {
	start := int(parts[i])
	end := numPoints
	if i+1 < len(parts) {
		end = int(parts[i+1])
	}
	return start, end
}

func polyLineToMultiLineString(parts []int32, points []shp.Point) geom.T {
	mls := geom.NewMultiLineString(geom.XY)
	for i := range parts {
		start, end := partRange(parts, len(points), i)
		if start >= end || end > len(points) {
			continue
		}
		ls := geom.NewLineStringFlat(geom.XY, pointsFlat(points[start:end]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("loader: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	return mls
}

// polygonToMultiPolygon groups shapefile rings into polygons. Clockwise
// rings start a new polygon; counter-clockwise rings are holes of the
// polygon before them.
func polygonToMultiPolygon(parts []int32, points []shp.Point) geom.T {
	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon

	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("loader: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i := range parts {
		start, end := partRange(parts, len(points), i)
		if start >= end || end > len(points) {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, pointsFlat(points[start:end]))
		if current == nil || isClockwise(points[start:end]) {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("loader: skipping malformed ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()
	return mp
}

// isClockwise uses the shoelace sum; a negative signed area is clockwise.
func isClockwise(points []shp.Point) bool {
	var sum float64
	for i := range points {
		j := (i + 1) % len(points)
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return sum < 0
}

func pointsFlat(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
