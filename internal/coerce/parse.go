package coerce

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/gpkg-cli/internal/table"
)

// dateLayout is day.month.year with one or two digit day and month.
const dateLayout = "2.1.2006"

// parseNumber converts a cell to a numeric value. Null and empty text stay
// null and count as parsed; any other non-numeric cell fails.
func parseNumber(v table.Value) (table.Value, bool) {
	switch x := v.(type) {
	case nil, table.Null:
		return table.Null{}, true
	case table.Integer, table.Real:
		return x, true
	case table.Text:
		s := strings.TrimSpace(string(x))
		if s == "" {
			return table.Null{}, true
		}
		if strings.ContainsAny(s, "xX_") {
			return nil, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return table.Integer(n), true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return table.Real(f), true
		}
		return nil, false
	default:
		return nil, false
	}
}

// parseDate converts a day.month.year text cell to a Date. Anything else,
// including calendar-invalid dates such as 31.4.2024, fails.
func parseDate(v table.Value) (table.Value, bool) {
	s, ok := v.(table.Text)
	if !ok || !IsDateFormat(string(s)) {
		return table.Null{}, false
	}
	t, err := time.Parse(dateLayout, string(s))
	if err != nil {
		return table.Null{}, false
	}
	return table.DateOf(t), true
}

// toNumeric parses every cell of values. It returns the converted cells and
// their kind, or ok=false if any cell is not numeric. The kind is integer
// only when every cell is an integer; otherwise all cells become Real.
func toNumeric(values []table.Value) (out []table.Value, kind table.Kind, ok bool) {
	out = make([]table.Value, len(values))
	allInt := true
	for i, v := range values {
		n, parsed := parseNumber(v)
		if !parsed {
			return nil, table.KindText, false
		}
		if _, isInt := n.(table.Integer); !isInt {
			allInt = false
		}
		out[i] = n
	}

	if allInt && len(out) > 0 {
		return out, table.KindInteger, true
	}
	for i, v := range out {
		if n, isInt := v.(table.Integer); isInt {
			out[i] = table.Real(n)
		}
	}
	return out, table.KindReal, true
}

// toDates parses every cell as a date; unparseable cells become Null. It
// returns the converted cells and how many non-null cells were nulled.
func toDates(values []table.Value) (out []table.Value, nulled int) {
	out = make([]table.Value, len(values))
	for i, v := range values {
		d, ok := parseDate(v)
		if !ok && !table.IsNull(v) {
			nulled++
		}
		out[i] = d
	}
	return out, nulled
}
