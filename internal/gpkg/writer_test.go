package gpkg

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/gpkg-cli/internal/table"
)

func sampleTable(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New(3)
	tbl.SRID = 3067
	tbl.Geometry[0] = geom.NewPointFlat(geom.XY, []float64{385000, 6672000})
	tbl.Geometry[1] = geom.NewPointFlat(geom.XY, []float64{386000, 6673000})
	tbl.Geometry[2] = nil

	add := func(name string, kind table.Kind, values ...table.Value) {
		_, err := tbl.AddColumn(name, kind, values)
		require.NoError(t, err)
	}
	add("nimi", table.KindText, table.Text("Ähtäri"), table.Text("tie \"4\""), table.Null{})
	add("pituus", table.KindReal, table.Real(12.5), table.Real(3), table.Null{})
	add("tie", table.KindInteger, table.Integer(4), table.Integer(5), table.Integer(6))
	add("aktiivinen", table.KindBoolean, table.Bool(true), table.Bool(false), table.Null{})
	add("alkupvm", table.KindDate, table.NewDate(2024, time.March, 5), table.Null{}, table.NewDate(2024, time.March, 6))
	add("sekalainen", table.KindText, table.Integer(1), table.Text("x"), table.Real(2.5))
	tbl.AssignRowIDs()
	return tbl
}

func openGPKG(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWrite_GeoPackageStructure(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, Write(context.Background(), sampleTable(t), dest, "kohteet"))

	db := openGPKG(t, dest)

	var appID, version int64
	require.NoError(t, db.QueryRow("PRAGMA application_id").Scan(&appID))
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, int64(applicationID), appID)
	assert.Equal(t, int64(userVersion), version)

	var dataType string
	var srsID int
	var minX, maxY float64
	require.NoError(t, db.QueryRow(
		`SELECT data_type, srs_id, min_x, max_y FROM gpkg_contents WHERE table_name = 'kohteet'`,
	).Scan(&dataType, &srsID, &minX, &maxY))
	assert.Equal(t, "features", dataType)
	assert.Equal(t, 3067, srsID)
	assert.Equal(t, 385000.0, minX)
	assert.Equal(t, 6673000.0, maxY)

	var column, geomType string
	require.NoError(t, db.QueryRow(
		`SELECT column_name, geometry_type_name FROM gpkg_geometry_columns WHERE table_name = 'kohteet'`,
	).Scan(&column, &geomType))
	assert.Equal(t, "geom", column)
	assert.Equal(t, "POINT", geomType)

	var srsCount int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM gpkg_spatial_ref_sys WHERE srs_id IN (-1, 0, 4326, 3067)`,
	).Scan(&srsCount))
	assert.Equal(t, 4, srsCount)

	types := map[string]string{}
	rows, err := db.Query(`PRAGMA table_info("kohteet")`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var cid, notNull, pk int
		var name, typ string
		var dflt sql.NullString
		require.NoError(t, rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk))
		types[name] = typ
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, map[string]string{
		"FID":        "INTEGER",
		"geom":       "POINT",
		"nimi":       "TEXT",
		"pituus":     "REAL",
		"tie":        "INTEGER",
		"aktiivinen": "BOOLEAN",
		"alkupvm":    "DATE",
		"sekalainen": "TEXT",
	}, types)
}

func TestWrite_RowValues(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, Write(context.Background(), sampleTable(t), dest, "kohteet"))

	db := openGPKG(t, dest)
	rows, err := db.Query(`SELECT "FID", geom, nimi, pituus, tie, aktiivinen, CAST(alkupvm AS TEXT), sekalainen
		FROM kohteet ORDER BY "FID"`)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		fid        int64
		geom       []byte
		nimi       sql.NullString
		pituus     sql.NullFloat64
		tie        int64
		aktiivinen sql.NullInt64
		alkupvm    sql.NullString
		sekalainen sql.NullString
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.fid, &r.geom, &r.nimi, &r.pituus, &r.tie, &r.aktiivinen, &r.alkupvm, &r.sekalainen))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 3)

	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].fid, got[1].fid, got[2].fid})
	assert.Equal(t, "Ähtäri", got[0].nimi.String)
	assert.Equal(t, `tie "4"`, got[1].nimi.String)
	assert.False(t, got[2].nimi.Valid)
	assert.Equal(t, 12.5, got[0].pituus.Float64)
	assert.Equal(t, int64(1), got[0].aktiivinen.Int64)
	assert.Equal(t, int64(0), got[1].aktiivinen.Int64)
	assert.Equal(t, "2024-03-05", got[0].alkupvm.String)
	assert.False(t, got[1].alkupvm.Valid)
	assert.Equal(t, []string{"1", "x", "2.5"},
		[]string{got[0].sekalainen.String, got[1].sekalainen.String, got[2].sekalainen.String})

	g, srsID, err := UnmarshalGeometry(got[0].geom)
	require.NoError(t, err)
	assert.Equal(t, int32(3067), srsID)
	assert.Equal(t, []float64{385000, 6672000}, g.FlatCoords())
	assert.Nil(t, got[2].geom)
}

func TestWrite_ReplacesExistingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, os.WriteFile(dest, []byte("old contents"), 0o644))

	require.NoError(t, Write(context.Background(), sampleTable(t), dest, "kohteet"))

	db := openGPKG(t, dest)
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kohteet`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestWrite_NoPartialFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.gpkg")

	tbl := sampleTable(t)
	tbl.SRID = 0 // rejected before anything is written

	err := Write(context.Background(), tbl, dest, "kohteet")
	require.Error(t, err)
	assert.True(t, IsWriteError(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWrite_CleansTempFileOnDatabaseFailure(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.gpkg")

	tbl := sampleTable(t)
	// A row without an FID value fails mid-insert.
	tbl.Column(table.FIDColumn).Values[1] = table.Null{}

	err := Write(context.Background(), tbl, dest, "kohteet")
	require.Error(t, err)
	assert.True(t, IsWriteError(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file and destination must not remain")
}

func TestWrite_MissingDirectory(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "no", "such", "dir", "out.gpkg")

	err := Write(context.Background(), sampleTable(t), dest, "kohteet")
	require.Error(t, err)
	assert.True(t, IsWriteError(err))

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, dest, we.Path)
}

func TestWrite_PlanErrors(t *testing.T) {
	tests := []struct {
		name   string
		layer  string
		mutate func(*table.Table)
	}{
		{"empty layer", "  ", nil},
		{"reserved layer", "gpkg_contents", nil},
		{"no fid", "kohteet", func(tbl *table.Table) {
			tbl.Columns = tbl.Columns[:len(tbl.Columns)-1]
		}},
		{"case collision", "kohteet", func(tbl *table.Table) {
			_, _ = tbl.AddColumn("NIMI", table.KindText, []table.Value{table.Null{}, table.Null{}, table.Null{}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := sampleTable(t)
			if tt.mutate != nil {
				tt.mutate(tbl)
			}
			err := Write(context.Background(), tbl, filepath.Join(t.TempDir(), "x.gpkg"), tt.layer)
			require.Error(t, err)
			assert.True(t, IsWriteError(err))
		})
	}
}

func TestWrite_GeometryColumnNameAvoidsAttributes(t *testing.T) {
	tbl := sampleTable(t)
	_, err := tbl.AddColumn("geom", table.KindText, []table.Value{table.Text("a"), table.Text("b"), table.Text("c")})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, Write(context.Background(), tbl, dest, "kohteet"))

	db := openGPKG(t, dest)
	var column string
	require.NoError(t, db.QueryRow(`SELECT column_name FROM gpkg_geometry_columns`).Scan(&column))
	assert.Equal(t, "geometry", column)
}

func TestWrite_MixedGeometryTypes(t *testing.T) {
	tbl := table.New(2)
	tbl.SRID = 3067
	tbl.Geometry[0] = geom.NewPointFlat(geom.XY, []float64{1, 2})
	tbl.Geometry[1] = geom.NewLineStringFlat(geom.XYZ, []float64{0, 0, 1, 1, 1, 2})
	tbl.AssignRowIDs()

	dest := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, Write(context.Background(), tbl, dest, "sekalaiset"))

	db := openGPKG(t, dest)
	var geomType string
	var z, m int
	require.NoError(t, db.QueryRow(
		`SELECT geometry_type_name, z, m FROM gpkg_geometry_columns`,
	).Scan(&geomType, &z, &m))
	assert.Equal(t, "GEOMETRY", geomType)
	assert.Equal(t, 2, z)
	assert.Equal(t, 0, m)
}

func TestWrite_EmptyTable(t *testing.T) {
	tbl := table.New(0)
	tbl.SRID = 3067
	tbl.AssignRowIDs()

	dest := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, Write(context.Background(), tbl, dest, "tyhja"))

	db := openGPKG(t, dest)
	var minX sql.NullFloat64
	require.NoError(t, db.QueryRow(`SELECT min_x FROM gpkg_contents`).Scan(&minX))
	assert.False(t, minX.Valid)
}

func TestWrite_UnknownSRS(t *testing.T) {
	tbl := sampleTable(t)
	tbl.SRID = 3879

	dest := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, Write(context.Background(), tbl, dest, "kohteet"))

	db := openGPKG(t, dest)
	var org string
	require.NoError(t, db.QueryRow(`SELECT organization FROM gpkg_spatial_ref_sys WHERE srs_id = 3879`).Scan(&org))
	assert.Equal(t, "EPSG", org)
}
