// Package loader reads a feature collection document into a table.Table.
package loader

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"github.com/sells-group/gpkg-cli/internal/table"
)

// Options configures how source documents are read.
type Options struct {
	// Charset is the IANA name of the source encoding. Empty means ISO-8859-1.
	Charset string
}

// Load reads the feature collection at path. GeoJSON (.json, .geojson),
// ESRI Shapefile (.shp with its .dbf) and tabular files (.xlsx, or .csv
// separated by semicolons) with x/y coordinate columns are supported.
// Every failure is returned as a *DocumentError.
func Load(path string, opts Options) (*table.Table, error) {
	enc, err := Charset(opts.Charset)
	if err != nil {
		return nil, documentError(path, err)
	}

	var t *table.Table
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".geojson":
		t, err = loadGeoJSONFile(path, enc)
	case ".shp":
		t, err = loadShapefile(path, enc)
	case ".xlsx":
		t, err = loadXLSX(path)
	case ".csv":
		t, err = loadCSV(path, enc)
	default:
		err = eris.Errorf("loader: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, documentError(path, err)
	}

	zap.L().Debug("loader: loaded features",
		zap.String("path", path),
		zap.Int("rows", t.Len()),
		zap.Int("columns", len(t.Columns)),
	)
	return t, nil
}

// LoadReader reads a GeoJSON feature collection from r. name identifies the
// document in errors.
func LoadReader(name string, r io.Reader, opts Options) (*table.Table, error) {
	enc, err := Charset(opts.Charset)
	if err != nil {
		return nil, documentError(name, err)
	}
	data, err := io.ReadAll(enc.NewDecoder().Reader(r))
	if err != nil {
		return nil, documentError(name, eris.Wrap(err, "loader: read"))
	}
	t, err := decodeGeoJSON(data)
	if err != nil {
		return nil, documentError(name, err)
	}
	return t, nil
}

func loadGeoJSONFile(path string, enc encoding.Encoding) (*table.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "loader: read file")
	}
	data, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, eris.Wrap(err, "loader: decode charset")
	}
	return decodeGeoJSON(data)
}
