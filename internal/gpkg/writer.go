// Package gpkg writes a feature table as a single-layer OGC GeoPackage.
package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gpkg-cli/internal/table"
)

// Write stores t as the feature layer named layer in a new GeoPackage at
// dest, replacing any existing file. The table must carry its SRID and an
// integer FID column, which becomes the layer's primary key. The file is
// built next to dest and renamed into place only after it is complete, so
// a failed write never leaves a partial file at dest. All failures are
// returned as *WriteError.
func Write(ctx context.Context, t *table.Table, dest, layer string) (err error) {
	log := zap.L().With(
		zap.String("component", "gpkg.writer"),
		zap.String("path", dest),
		zap.String("layer", layer),
	)

	plan, err := newPlan(t, layer)
	if err != nil {
		return &WriteError{Path: dest, Err: err}
	}

	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+"."+uuid.NewString()+".tmp")
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
			_ = os.Remove(tmp + "-journal")
		}
	}()

	if err := writeFile(ctx, tmp, t, plan); err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		return &WriteError{Path: dest, Err: eris.Wrap(err, "gpkg: move into place")}
	}

	log.Debug("gpkg: layer written", zap.Int("rows", t.Len()), zap.Int("columns", len(plan.columns)))
	return nil
}

// plan is the resolved layout of the feature table.
type plan struct {
	layer      string
	fid        *table.Column
	columns    []*table.Column
	geomColumn string
	srsID      int
}

func newPlan(t *table.Table, layer string) (*plan, error) {
	if strings.TrimSpace(layer) == "" {
		return nil, eris.New("gpkg: empty layer name")
	}
	lower := strings.ToLower(layer)
	if strings.HasPrefix(lower, "gpkg_") || strings.HasPrefix(lower, "sqlite_") || strings.HasPrefix(lower, "rtree_") {
		return nil, eris.Errorf("gpkg: reserved layer name %q", layer)
	}
	if t.SRID == 0 {
		return nil, eris.New("gpkg: table has no SRID")
	}

	p := &plan{layer: layer, srsID: t.SRID}
	seen := make(map[string]bool)
	for _, c := range t.Columns {
		if c.Name == table.FIDColumn {
			if c.Kind != table.KindInteger {
				return nil, eris.Errorf("gpkg: %s column must be integer, got %s", table.FIDColumn, c.Kind)
			}
			p.fid = c
			continue
		}
		key := strings.ToLower(c.Name)
		if key == strings.ToLower(table.FIDColumn) || seen[key] {
			return nil, eris.Errorf("gpkg: column %q collides with another column", c.Name)
		}
		seen[key] = true
		p.columns = append(p.columns, c)
	}
	if p.fid == nil {
		return nil, eris.Errorf("gpkg: table has no %s column", table.FIDColumn)
	}

	for _, name := range []string{"geom", "geometry"} {
		if !seen[name] {
			p.geomColumn = name
			break
		}
	}
	for i := 2; p.geomColumn == ""; i++ {
		if name := fmt.Sprintf("geom_%d", i); !seen[name] {
			p.geomColumn = name
		}
	}
	return p, nil
}

func writeFile(ctx context.Context, path string, t *table.Table, p *plan) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "gpkg: open")
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id = %d", applicationID),
		fmt.Sprintf("PRAGMA user_version = %d", userVersion),
		"PRAGMA journal_mode = DELETE",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "gpkg: exec %s", pragma)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if err := createSchema(ctx, tx, t, p); err != nil {
		return err
	}
	if err := insertFeatures(ctx, tx, t, p); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "gpkg: commit")
}

func createSchema(ctx context.Context, tx *sql.Tx, t *table.Table, p *plan) error {
	if _, err := tx.ExecContext(ctx, coreSchema); err != nil {
		return eris.Wrap(err, "gpkg: create core tables")
	}

	for _, s := range srsFor(p.srsID) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition, description)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.name, s.id, s.organization, s.orgID, s.definition, s.description,
		)
		if err != nil {
			return eris.Wrapf(err, "gpkg: insert srs %d", s.id)
		}
	}

	var ddl strings.Builder
	fmt.Fprintf(&ddl, "CREATE TABLE %s (\n\t%s INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,\n\t%s %s",
		quoteIdent(p.layer), quoteIdent(table.FIDColumn), quoteIdent(p.geomColumn), geometryTypeName(t.Geometry))
	for _, c := range p.columns {
		fmt.Fprintf(&ddl, ",\n\t%s %s", quoteIdent(c.Name), sqlType(c.Kind))
	}
	ddl.WriteString("\n)")
	if _, err := tx.ExecContext(ctx, ddl.String()); err != nil {
		return eris.Wrapf(err, "gpkg: create layer %s", p.layer)
	}

	var ext extent
	for _, g := range t.Geometry {
		ext.add(g)
	}
	args := append([]any{p.layer, "features", p.layer}, ext.values()...)
	args = append(args, p.srsID)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		return eris.Wrap(err, "gpkg: insert contents")
	}

	z, m := zm(t.Geometry)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.layer, p.geomColumn, geometryTypeName(t.Geometry), p.srsID, z, m,
	)
	return eris.Wrap(err, "gpkg: insert geometry column")
}

func insertFeatures(ctx context.Context, tx *sql.Tx, t *table.Table, p *plan) error {
	names := []string{quoteIdent(table.FIDColumn), quoteIdent(p.geomColumn)}
	for _, c := range p.columns {
		names = append(names, quoteIdent(c.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(p.layer), strings.Join(names, ", "), placeholders))
	if err != nil {
		return eris.Wrap(err, "gpkg: prepare insert")
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(names))
	for row := 0; row < t.Len(); row++ {
		fid, ok := p.fid.Values[row].(table.Integer)
		if !ok {
			return eris.Errorf("gpkg: row %d has no %s", row, table.FIDColumn)
		}
		args[0] = int64(fid)

		args[1] = nil
		if g := t.Geometry[row]; g != nil {
			blob, err := MarshalGeometry(g, int32(p.srsID))
			if err != nil {
				return eris.Wrapf(err, "gpkg: row %d", row)
			}
			args[1] = blob
		}

		for i, c := range p.columns {
			args[i+2] = sqlValue(c.Kind, c.Values[row])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "gpkg: insert row %d", row)
		}
	}
	return nil
}

// sqlValue binds a cell. Text columns store every non-null cell as text,
// including numbers left in a mixed column.
func sqlValue(kind table.Kind, v table.Value) any {
	if table.IsNull(v) {
		return nil
	}
	if kind == table.KindText {
		return v.String()
	}
	switch x := v.(type) {
	case table.Integer:
		return int64(x)
	case table.Real:
		return float64(x)
	case table.Bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case table.Date:
		return x.String()
	default:
		return v.String()
	}
}
