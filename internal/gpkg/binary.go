package gpkg

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// StandardGeoPackageBinary header layout.
const (
	headerMagic   = "GP"
	headerVersion = 0

	flagLittleEndian = 1 << 0
	flagEnvelopeXY   = 1 << 1 // envelope indicator 1: [minx, maxx, miny, maxy]
	flagEnvelopeMask = 0x07 << 1
	flagEmpty        = 1 << 4
	flagExtended     = 1 << 5
)

// MarshalGeometry encodes g as a GeoPackage geometry blob: the GP header
// with an XY envelope followed by little-endian ISO WKB. Empty geometries
// carry no envelope and set the empty flag.
func MarshalGeometry(g geom.T, srsID int32) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode WKB")
	}

	var flags byte = flagLittleEndian
	empty := g.Empty()
	if empty {
		flags |= flagEmpty
	} else {
		flags |= flagEnvelopeXY
	}

	var buf bytes.Buffer
	buf.Grow(8 + 32 + len(body))
	buf.WriteString(headerMagic)
	buf.WriteByte(headerVersion)
	buf.WriteByte(flags)
	_ = binary.Write(&buf, binary.LittleEndian, srsID)
	if !empty {
		b := g.Bounds()
		for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
			_ = binary.Write(&buf, binary.LittleEndian, v)
		}
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

// UnmarshalGeometry decodes a GeoPackage geometry blob and returns the
// geometry and the srs_id stored in its header.
func UnmarshalGeometry(data []byte) (geom.T, int32, error) {
	if len(data) < 8 || string(data[:2]) != headerMagic {
		return nil, 0, eris.New("gpkg: not a GeoPackage geometry")
	}
	if data[2] != headerVersion {
		return nil, 0, eris.Errorf("gpkg: unsupported geometry version %d", data[2])
	}
	flags := data[3]
	if flags&flagExtended != 0 {
		return nil, 0, eris.New("gpkg: extended geometry types are not supported")
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(data[4:8]))

	size, ok := envelopeSize((flags & flagEnvelopeMask) >> 1)
	if !ok {
		return nil, 0, eris.New("gpkg: invalid envelope indicator")
	}
	offset := 8 + size
	if len(data) < offset {
		return nil, 0, eris.New("gpkg: truncated geometry header")
	}

	g, err := wkb.Unmarshal(data[offset:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: decode WKB")
	}
	return g, srsID, nil
}

// envelopeSize returns the byte length of the envelope for an indicator.
func envelopeSize(indicator byte) (int, bool) {
	switch indicator {
	case 0:
		return 0, true
	case 1:
		return 32, true
	case 2, 3:
		return 48, true
	case 4:
		return 64, true
	default:
		return 0, false
	}
}

// extent accumulates the XY bounds of non-empty geometries.
type extent struct {
	minX, minY, maxX, maxY float64
	set                    bool
}

func (e *extent) add(g geom.T) {
	if g == nil || g.Empty() {
		return
	}
	b := g.Bounds()
	if !e.set {
		e.minX, e.minY, e.maxX, e.maxY = b.Min(0), b.Min(1), b.Max(0), b.Max(1)
		e.set = true
		return
	}
	e.minX = math.Min(e.minX, b.Min(0))
	e.minY = math.Min(e.minY, b.Min(1))
	e.maxX = math.Max(e.maxX, b.Max(0))
	e.maxY = math.Max(e.maxY, b.Max(1))
}

// values returns the bounds for gpkg_contents, or NULLs when nothing was added.
func (e *extent) values() []any {
	if !e.set {
		return []any{nil, nil, nil, nil}
	}
	return []any{e.minX, e.minY, e.maxX, e.maxY}
}
