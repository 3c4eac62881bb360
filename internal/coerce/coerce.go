// Package coerce retypes textual attribute columns of a feature table.
//
// Each text column is scanned once. Decimal-comma cells (12,5) are rewritten
// to use a period immediately, and day.month.year cells (5.3.2024) mark the
// column as a date candidate. The column then becomes numeric if every
// non-null cell parses as a number. A column that stays textual becomes a
// date column only when it held at least one date-shaped cell and its name
// contains the date marker (pvm by default); cells that do not parse as
// dates are nulled. Columns of any other kind are never touched, which makes
// a second pass a no-op.
//
// The engine never fails: parse problems fall back to leaving the column as
// text or nulling a date cell.
package coerce

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gpkg-cli/internal/table"
)

// DefaultDateNameMarker is the column name fragment that allows date coercion.
const DefaultDateNameMarker = "pvm"

// Classification is the per-run verdict for one column.
type Classification string

const (
	ClassNumeric             Classification = "numeric"
	ClassDate                Classification = "date"
	ClassDecimalCommaNumeric Classification = "decimal-comma-numeric"
	ClassUnchanged           Classification = "unchanged"
	// ClassSkipped marks columns whose declared kind was not text.
	ClassSkipped Classification = "skipped"
)

// ColumnReport describes what the engine did to one column.
type ColumnReport struct {
	Name           string         `json:"name" yaml:"name"`
	Classification Classification `json:"classification" yaml:"classification"`
	Kind           string         `json:"kind" yaml:"kind"`
	Rewritten      int            `json:"rewritten,omitempty" yaml:"rewritten,omitempty"`
	Nulled         int            `json:"nulled,omitempty" yaml:"nulled,omitempty"`
}

// Report lists column reports in table column order.
type Report struct {
	Columns []ColumnReport `json:"columns" yaml:"columns"`
}

// Count returns how many columns received the given classification.
func (r Report) Count(c Classification) int {
	var n int
	for _, col := range r.Columns {
		if col.Classification == c {
			n++
		}
	}
	return n
}

// Engine coerces the text columns of a table. The zero value is ready to use.
type Engine struct {
	// Workers bounds how many columns are processed concurrently.
	// Values below 2 process columns sequentially.
	Workers int
	// DateNameMarker overrides DefaultDateNameMarker. Matched case-insensitively.
	DateNameMarker string
}

// Coerce runs the default engine over t.
func Coerce(t *table.Table) Report {
	return Engine{}.Coerce(t)
}

// Coerce retypes every text column of t in place and reports the outcome.
// Row count and order are never changed.
func (e Engine) Coerce(t *table.Table) Report {
	marker := strings.ToLower(e.DateNameMarker)
	if marker == "" {
		marker = DefaultDateNameMarker
	}

	reports := make([]ColumnReport, len(t.Columns))

	if e.Workers < 2 {
		for i, c := range t.Columns {
			reports[i] = coerceColumn(c, marker)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.Workers)
		for i, c := range t.Columns {
			g.Go(func() error {
				reports[i] = coerceColumn(c, marker)
				return nil
			})
		}
		_ = g.Wait()
	}

	return Report{Columns: reports}
}

// coerceColumn applies the scan, numeric and date steps to a single column.
func coerceColumn(c *table.Column, marker string) ColumnReport {
	rep := ColumnReport{Name: c.Name, Classification: ClassSkipped, Kind: c.Kind.String()}
	if c.Kind != table.KindText {
		return rep
	}

	validDateFound := false
	for i, v := range c.Values {
		s, ok := v.(table.Text)
		if !ok {
			continue
		}
		switch {
		case IsDecimalComma(string(s)):
			c.Values[i] = table.Text(strings.Replace(string(s), ",", ".", 1))
			rep.Rewritten++
		case IsDateFormat(string(s)):
			validDateFound = true
		}
	}

	rep.Classification = ClassUnchanged

	if values, kind, ok := toNumeric(c.Values); ok {
		c.Values = values
		c.Kind = kind
		rep.Classification = ClassNumeric
		if rep.Rewritten > 0 {
			rep.Classification = ClassDecimalCommaNumeric
		}
	} else if validDateFound && strings.Contains(strings.ToLower(c.Name), marker) {
		c.Values, rep.Nulled = toDates(c.Values)
		c.Kind = table.KindDate
		rep.Classification = ClassDate
	}

	rep.Kind = c.Kind.String()
	if rep.Classification != ClassUnchanged {
		zap.L().Debug("coerce: retyped column",
			zap.String("column", c.Name),
			zap.String("classification", string(rep.Classification)),
			zap.String("kind", rep.Kind),
			zap.Int("rewritten", rep.Rewritten),
			zap.Int("nulled", rep.Nulled),
		)
	}
	return rep
}
