package gpkg

import (
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/gpkg-cli/internal/table"
)

// GeoPackage 1.3 file identification.
const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10300
)

const coreSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER NOT NULL PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT uk_gc_table_name UNIQUE (table_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
`

type spatialRefSys struct {
	name         string
	id           int
	organization string
	orgID        int
	definition   string
	description  string
}

// requiredSRS are the rows every GeoPackage must contain.
var requiredSRS = []spatialRefSys{
	{
		name: "Undefined cartesian SRS", id: -1, organization: "NONE", orgID: -1,
		definition: "undefined", description: "undefined cartesian coordinate reference system",
	},
	{
		name: "Undefined geographic SRS", id: 0, organization: "NONE", orgID: 0,
		definition: "undefined", description: "undefined geographic coordinate reference system",
	},
	{
		name: "WGS 84 geodetic", id: 4326, organization: "EPSG", orgID: 4326,
		definition: `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AXIS["Latitude",NORTH],AXIS["Longitude",EAST],AUTHORITY["EPSG","4326"]]`,
		description: "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid",
	},
}

// knownSRS holds definitions for target systems this tool writes.
var knownSRS = map[int]spatialRefSys{
	3067: {
		name: "ETRS89 / TM35FIN(E,N)", id: 3067, organization: "EPSG", orgID: 3067,
		definition: `PROJCS["ETRS89 / TM35FIN(E,N)",GEOGCS["ETRS89",DATUM["European_Terrestrial_Reference_System_1989",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],TOWGS84[0,0,0,0,0,0,0],AUTHORITY["EPSG","6258"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4258"]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",27],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","3067"]]`,
		description: "ETRS89 / TM35FIN(E,N), Finland",
	},
}

// srsFor returns the spatial_ref_sys rows needed for srsID.
func srsFor(srsID int) []spatialRefSys {
	rows := append([]spatialRefSys(nil), requiredSRS...)
	for _, r := range requiredSRS {
		if r.id == srsID {
			return rows
		}
	}
	if known, ok := knownSRS[srsID]; ok {
		return append(rows, known)
	}
	return append(rows, spatialRefSys{
		name: "EPSG:" + strconv.Itoa(srsID), id: srsID, organization: "EPSG", orgID: srsID,
		definition: "undefined",
	})
}

// sqlType is the GeoPackage column type for a column kind.
func sqlType(k table.Kind) string {
	switch k {
	case table.KindInteger:
		return "INTEGER"
	case table.KindReal:
		return "REAL"
	case table.KindBoolean:
		return "BOOLEAN"
	case table.KindDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// geometryTypeName returns the gpkg_geometry_columns type for a set of
// geometries, GEOMETRY when they differ or none are present.
func geometryTypeName(geoms []geom.T) string {
	name := ""
	for _, g := range geoms {
		if g == nil {
			continue
		}
		n := typeName(g)
		if name == "" {
			name = n
		} else if name != n {
			return "GEOMETRY"
		}
	}
	if name == "" {
		return "GEOMETRY"
	}
	return name
}

func typeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "POINT"
	case *geom.LineString:
		return "LINESTRING"
	case *geom.Polygon:
		return "POLYGON"
	case *geom.MultiPoint:
		return "MULTIPOINT"
	case *geom.MultiLineString:
		return "MULTILINESTRING"
	case *geom.MultiPolygon:
		return "MULTIPOLYGON"
	case *geom.GeometryCollection:
		return "GEOMETRYCOLLECTION"
	default:
		return "GEOMETRY"
	}
}

// zm returns the z and m flags for gpkg_geometry_columns:
// 0 prohibited, 1 mandatory, 2 optional.
func zm(geoms []geom.T) (z, m int) {
	var withZ, withM, total int
	for _, g := range geoms {
		if g == nil {
			continue
		}
		total++
		if g.Layout().ZIndex() >= 0 {
			withZ++
		}
		if g.Layout().MIndex() >= 0 {
			withM++
		}
	}
	flag := func(n int) int {
		switch {
		case n == 0:
			return 0
		case n == total:
			return 1
		default:
			return 2
		}
	}
	return flag(withZ), flag(withM)
}

// quoteIdent quotes an SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
