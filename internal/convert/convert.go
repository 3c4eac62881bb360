// Package convert runs one feature file through loading, row numbering,
// type coercion and GeoPackage output.
package convert

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gpkg-cli/internal/coerce"
	"github.com/sells-group/gpkg-cli/internal/gpkg"
	"github.com/sells-group/gpkg-cli/internal/loader"
	"github.com/sells-group/gpkg-cli/internal/table"
)

// DefaultSRID is the target coordinate system (ETRS89 / TM35FIN).
const DefaultSRID = 3067

// Paths returns the input and output files for a source id in workDir.
func Paths(workDir, sourceID string) (in, out string) {
	return filepath.Join(workDir, sourceID+".json"), filepath.Join(workDir, sourceID+".gpkg")
}

// Request describes one conversion.
type Request struct {
	Input   string
	Output  string
	Layer   string
	Charset string
	SRID    int
	Workers int
	// DateNameMarker is the column name fragment that allows date
	// coercion. Empty means coerce.DefaultDateNameMarker.
	DateNameMarker string
}

// Result summarizes a finished conversion.
type Result struct {
	Rows           int           `json:"rows" yaml:"rows"`
	Layer          string        `json:"layer" yaml:"layer"`
	Output         string        `json:"output" yaml:"output"`
	RenamedColumns []string      `json:"renamed_columns,omitempty" yaml:"renamed_columns,omitempty"`
	Report         coerce.Report `json:"report" yaml:"report"`
	Duration       time.Duration `json:"-" yaml:"-"`
}

// Prepare loads the input and applies row numbering, the target SRID and
// coercion without writing anything.
func Prepare(req Request) (*table.Table, *Result, error) {
	if req.Input == "" {
		return nil, nil, eris.New("convert: no input file")
	}
	t, err := loader.Load(req.Input, loader.Options{Charset: req.Charset})
	if err != nil {
		return nil, nil, err
	}
	return t, Apply(t, req), nil
}

// Apply numbers the rows of a loaded table, sets its SRID and coerces its
// text columns.
func Apply(t *table.Table, req Request) *Result {
	srid := req.SRID
	if srid == 0 {
		srid = DefaultSRID
	}

	renamed := t.AssignRowIDs()
	t.SRID = srid
	report := coerce.Engine{Workers: req.Workers, DateNameMarker: req.DateNameMarker}.Coerce(t)

	return &Result{
		Rows:           t.Len(),
		Layer:          req.Layer,
		Output:         req.Output,
		RenamedColumns: renamed,
		Report:         report,
	}
}

// Run converts req.Input into a GeoPackage at req.Output. Load failures are
// *loader.DocumentError and write failures *gpkg.WriteError.
func Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	log := zap.L().With(
		zap.String("component", "convert"),
		zap.String("input", req.Input),
		zap.String("output", req.Output),
	)

	if req.Output == "" {
		return nil, eris.New("convert: no output file")
	}
	if req.Layer == "" {
		return nil, eris.New("convert: no layer name")
	}

	t, res, err := Prepare(req)
	if err != nil {
		log.Warn("convert: load failed", zap.Error(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "convert: cancelled")
	}

	if err := gpkg.Write(ctx, t, req.Output, req.Layer); err != nil {
		log.Warn("convert: write failed", zap.Error(err))
		return nil, err
	}

	res.Duration = time.Since(start)
	log.Info("convert: done",
		zap.Int("rows", res.Rows),
		zap.Int("numeric", res.Report.Count(coerce.ClassNumeric)+res.Report.Count(coerce.ClassDecimalCommaNumeric)),
		zap.Int("dates", res.Report.Count(coerce.ClassDate)),
		zap.Duration("elapsed", res.Duration),
	)
	return res, nil
}
