// Package tabular reads CSV and TSV tables into rows of inferred scalar
// cells. The rest of the system is agnostic to the source format and consumes
// only the row/column structure produced here.
package tabular

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/clinicalconnectome/phiup/internal/schema"
)

// ReadTable opens a .csv or .tsv file and returns its data rows keyed by the
// header columns. An unsupported extension is an error.
func ReadTable(path string) ([]schema.Row, error) {
	var comma rune
	switch filepath.Ext(path) {
	case ".csv":
		comma = ','
	case ".tsv":
		comma = '\t'
	default:
		return nil, fmt.Errorf("unsupported table format: %s", filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]schema.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(schema.Row, len(header))
		for i, col := range header {
			row[col] = inferCell(rec[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// inferCell converts a raw cell into a scalar value: nil for empty or
// NaN-like markers, bool and float64 where they parse, string otherwise.
func inferCell(s string) any {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "n/a", "na", "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
