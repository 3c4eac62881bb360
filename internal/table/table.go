// Package table holds the in-memory feature table passed from the loader
// through the coercion engine to the GeoPackage writer.
package table

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Kind is the declared type of a column.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindReal
	KindBoolean
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the kind is integer or real.
func (k Kind) IsNumeric() bool {
	return k == KindInteger || k == KindReal
}

// Row identity column names.
const (
	FIDColumn         = "FID"
	originalFIDSuffix = "_original"
)

// Column is a named attribute column. Values has one cell per table row.
type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

// Table is a feature collection in columnar form. Geometry holds one entry
// per row (nil for features without geometry) and defines the row count.
type Table struct {
	Columns  []*Column
	Geometry []geom.T
	SRID     int
}

// New returns an empty table with rows rows and no attribute columns.
func New(rows int) *Table {
	return &Table{Geometry: make([]geom.T, rows)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Geometry)
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AddColumn appends a column. The name must be unused and values must hold
// exactly one cell per row.
func (t *Table) AddColumn(name string, kind Kind, values []Value) (*Column, error) {
	if name == "" {
		return nil, eris.New("table: empty column name")
	}
	if t.Column(name) != nil {
		return nil, eris.Errorf("table: duplicate column %q", name)
	}
	if len(values) != t.Len() {
		return nil, eris.Errorf("table: column %q has %d values, table has %d rows", name, len(values), t.Len())
	}
	c := &Column{Name: name, Kind: kind, Values: values}
	t.Columns = append(t.Columns, c)
	return c, nil
}

// Rename changes a column name in place, keeping its position.
func (t *Table) Rename(from, to string) error {
	c := t.Column(from)
	if c == nil {
		return eris.Errorf("table: no column %q", from)
	}
	if from == to {
		return nil
	}
	if t.Column(to) != nil {
		return eris.Errorf("table: duplicate column %q", to)
	}
	c.Name = to
	return nil
}

// AssignRowIDs appends an integer FID column holding 1..N in row order.
// Any existing column whose name equals FID case-insensitively is first
// renamed to <name>_original (with a numeric suffix if that is taken), so
// the new sequence never collides with source identifiers. It returns the
// new names of the renamed columns.
func (t *Table) AssignRowIDs() []string {
	var renamed []string
	for _, c := range t.Columns {
		if !strings.EqualFold(c.Name, FIDColumn) {
			continue
		}
		c.Name = t.freeName(c.Name + originalFIDSuffix)
		renamed = append(renamed, c.Name)
	}

	ids := make([]Value, t.Len())
	for i := range ids {
		ids[i] = Integer(i + 1)
	}
	t.Columns = append(t.Columns, &Column{Name: FIDColumn, Kind: KindInteger, Values: ids})
	return renamed
}

// freeName returns base, or base_2, base_3... whichever is not yet a
// column name (compared case-insensitively).
func (t *Table) freeName(base string) string {
	taken := func(name string) bool {
		for _, c := range t.Columns {
			if strings.EqualFold(c.Name, name) {
				return true
			}
		}
		return false
	}
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		name := base + "_" + strconv.Itoa(i)
		if !taken(name) {
			return name
		}
	}
}
