package loader

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"golang.org/x/text/encoding"

	"github.com/sells-group/gpkg-cli/internal/table"
)

// csvDelimiter separates fields in uploaded CSV files.
const csvDelimiter = ';'

// loadXLSX reads the first sheet of a workbook. The first row holds the
// column names.
func loadXLSX(path string) (*table.Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "loader: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("loader: workbook has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return tableFromRows(rows)
}

// loadCSV reads a semicolon-delimited file decoded with enc. The first
// record holds the column names.
func loadCSV(path string, enc encoding.Encoding) (*table.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "loader: read file")
	}
	data, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, eris.Wrap(err, "loader: decode charset")
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = csvDelimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "loader: read csv row")
		}
		rows = append(rows, record)
	}
	return tableFromRows(rows)
}

// tableFromRows builds a table from a header row and data rows. Blank rows
// are dropped. When both x and y columns exist they become point geometry
// (with z when present) and are not kept as attributes. Every other column
// is text; empty cells are null.
func tableFromRows(rows [][]string) (*table.Table, error) {
	if len(rows) == 0 {
		return nil, eris.New("loader: no header row")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	var data [][]string
	for _, r := range rows[1:] {
		if !blankRow(r) {
			data = append(data, r)
		}
	}

	xi, yi, zi := headerIndex(header, "x"), headerIndex(header, "y"), headerIndex(header, "z")
	hasPoints := xi >= 0 && yi >= 0

	t := table.New(len(data))
	if hasPoints {
		for r, row := range data {
			t.Geometry[r] = pointAt(row, xi, yi, zi)
		}
	}

	for i, name := range header {
		if hasPoints && (i == xi || i == yi || i == zi) {
			continue
		}
		if name == "" {
			if columnBlank(data, i) {
				continue
			}
			return nil, eris.Errorf("loader: column %d has no name", i+1)
		}
		values := make([]table.Value, len(data))
		for r, row := range data {
			values[r] = textCell(cellAt(row, i))
		}
		if _, err := t.AddColumn(name, table.KindText, values); err != nil {
			return nil, eris.Wrap(err, "loader: add column")
		}
	}
	return t, nil
}

// pointAt builds a point from the coordinate cells of row, or nil when x or
// y is missing or not a number.
func pointAt(row []string, xi, yi, zi int) geom.T {
	x, okX := parseCoordinate(cellAt(row, xi))
	y, okY := parseCoordinate(cellAt(row, yi))
	if !okX || !okY {
		return nil
	}
	if zi >= 0 {
		if z, ok := parseCoordinate(cellAt(row, zi)); ok {
			return geom.NewPointFlat(geom.XYZ, []float64{x, y, z})
		}
	}
	return geom.NewPointFlat(geom.XY, []float64{x, y})
}

// parseCoordinate accepts both decimal separators.
func parseCoordinate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	return f, err == nil
}

func headerIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func textCell(s string) table.Value {
	if strings.TrimSpace(s) == "" {
		return table.Null{}
	}
	return table.Text(s)
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func columnBlank(rows [][]string, i int) bool {
	for _, row := range rows {
		if strings.TrimSpace(cellAt(row, i)) != "" {
			return false
		}
	}
	return true
}
