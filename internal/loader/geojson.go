package loader

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/gpkg-cli/internal/table"
)

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

type rawFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

type property struct {
	key   string
	value table.Value
}

// decodeGeoJSON builds a table from an already charset-decoded document.
// Columns appear in the order their property key is first seen.
func decodeGeoJSON(data []byte) (*table.Table, error) {
	var fc rawCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "loader: parse geojson")
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("loader: expected FeatureCollection, got %q", fc.Type)
	}

	n := len(fc.Features)
	t := table.New(n)

	var order []string
	columns := make(map[string][]table.Value)

	for i, f := range fc.Features {
		if f.Type != "Feature" {
			return nil, eris.Errorf("loader: feature %d: expected Feature, got %q", i, f.Type)
		}

		g, err := decodeGeometry(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: feature %d: geometry", i)
		}
		t.Geometry[i] = g

		props, err := decodeProperties(f.Properties)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: feature %d: properties", i)
		}
		for _, p := range props {
			values, ok := columns[p.key]
			if !ok {
				values = make([]table.Value, n)
				for j := range values {
					values[j] = table.Null{}
				}
				columns[p.key] = values
				order = append(order, p.key)
			}
			values[i] = p.value
		}
	}

	for _, name := range order {
		values := columns[name]
		if _, err := t.AddColumn(name, inferKind(values), values); err != nil {
			return nil, eris.Wrap(err, "loader: add column")
		}
	}
	return t, nil
}

func decodeGeometry(raw json.RawMessage) (geom.T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return g, nil
}

// decodeProperties walks the properties object token by token so that key
// order is kept. A repeated key keeps its first position and last value.
func decodeProperties(raw json.RawMessage) ([]property, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, eris.New("properties must be an object")
	}

	var props []property
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, eris.Errorf("unexpected token %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, eris.Wrapf(err, "property %q", key)
		}
		value, err := decodeValue(v)
		if err != nil {
			return nil, eris.Wrapf(err, "property %q", key)
		}
		if at, seen := index[key]; seen {
			props[at].value = value
			continue
		}
		index[key] = len(props)
		props = append(props, property{key: key, value: value})
	}
	return props, nil
}

// decodeValue maps a JSON scalar to a cell. Objects and arrays are kept as
// compact JSON text.
func decodeValue(raw json.RawMessage) (table.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return table.Null{}, nil
	}
	switch raw[0] {
	case 'n':
		return table.Null{}, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return table.Bool(b), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return table.Text(s), nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return table.Text(buf.String()), nil
	default:
		num := json.Number(raw)
		if i, err := num.Int64(); err == nil {
			return table.Integer(i), nil
		}
		f, err := num.Float64()
		if err != nil {
			return nil, err
		}
		return table.Real(f), nil
	}
}

// inferKind declares a column kind the way the source typing works: all
// numbers become numeric (integer only without nulls), all booleans without
// nulls become boolean, everything else is text. Numeric columns with any
// real or null cell have their integers widened to Real.
func inferKind(values []table.Value) table.Kind {
	var ints, reals, bools, nulls, other int
	for _, v := range values {
		switch v.(type) {
		case table.Integer:
			ints++
		case table.Real:
			reals++
		case table.Bool:
			bools++
		case table.Null:
			nulls++
		default:
			other++
		}
	}

	switch {
	case other == 0 && bools == 0 && ints+reals > 0:
		if reals == 0 && nulls == 0 {
			return table.KindInteger
		}
		for i, v := range values {
			if n, ok := v.(table.Integer); ok {
				values[i] = table.Real(n)
			}
		}
		return table.KindReal
	case other == 0 && ints+reals == 0 && bools > 0 && nulls == 0:
		return table.KindBoolean
	default:
		return table.KindText
	}
}
