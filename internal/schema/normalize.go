package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Row is one raw tabular row, column name to scalar cell value
// (string, float64, bool, or nil).
type Row = map[string]any

// Options are batch-wide normalization settings.
type Options struct {
	// Behavioral forces the patient "behavioral" field to true for every row.
	Behavioral bool
	// Clinical forces the patient "clinical" field to true for every row.
	Clinical bool
}

// Warning reports a required column that was absent from the input batch and
// added with null values.
type Warning struct {
	Kind   Kind
	Column string
}

// InvalidTypeError reports type-field values outside the kind's whitelist.
// The whole batch is rejected; Values is sorted and deduplicated.
type InvalidTypeError struct {
	Kind   Kind
	Field  string
	Values []string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("invalid %s values for %s: %s",
		e.Field, e.Kind, strings.Join(e.Values, ", "))
}

// NormalizeBatch converts raw rows into records for the given kind.
//
// Identifier fields are derived from participant_id, batch-wide overrides are
// applied, the kind's type field is validated across the whole batch, and each
// row is projected onto exactly the kind's required field set. Required
// columns absent from the batch are added as nil and reported as warnings.
// On a type validation failure no records are emitted.
func NormalizeBatch(kind Kind, rows []Row, opts Options) ([]Record, []Warning, error) {
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	derived := make([]Row, len(rows))
	for i, row := range rows {
		d := make(Row, len(row)+2)
		for k, v := range row {
			d[k] = normalizeValue(v)
		}
		d["remote_id"] = d["participant_id"]
		if kind == KindPatient {
			d["data_id"] = d["participant_id"]
			if opts.Behavioral {
				d["behavioral"] = true
			}
			if opts.Clinical {
				d["clinical"] = true
			}
		}
		derived[i] = d
	}

	if err := validateTypes(kind, derived); err != nil {
		return nil, nil, err
	}

	// Column presence is a batch-level property: every row shares the input
	// header, so a missing required column is warned about once.
	present := make(map[string]bool)
	for _, row := range derived {
		for k := range row {
			present[k] = true
		}
	}
	var warnings []Warning
	for _, col := range kind.RequiredFields() {
		if !present[col] {
			warnings = append(warnings, Warning{Kind: kind, Column: col})
		}
	}

	records := make([]Record, len(derived))
	for i, row := range derived {
		fields := make(map[string]any, len(kind.RequiredFields()))
		for _, col := range kind.RequiredFields() {
			fields[col] = row[col]
		}
		stringifyIdentifiers(kind, fields)
		records[i] = Record{kind: kind, fields: fields}
	}
	return records, warnings, nil
}

// validateTypes checks every distinct non-null value of the kind's type field
// against the whitelist before any record is emitted.
func validateTypes(kind Kind, rows []Row) error {
	field := kind.TypeField()
	if field == "" {
		return nil
	}
	valid := kind.validTypes()

	invalid := make(map[string]struct{})
	for _, row := range rows {
		v := row[field]
		if v == nil {
			continue
		}
		s := scalarString(v)
		if _, ok := valid[s]; !ok {
			invalid[s] = struct{}{}
		}
	}
	if len(invalid) == 0 {
		return nil
	}

	values := make([]string, 0, len(invalid))
	for v := range invalid {
		values = append(values, v)
	}
	sort.Strings(values)
	return &InvalidTypeError{Kind: kind, Field: field, Values: values}
}

// stringifyIdentifiers coerces identifier fields to strings so numeric
// participant IDs do not reach the wire with ambiguous typing.
func stringifyIdentifiers(kind Kind, fields map[string]any) {
	ids := []string{"remote_id"}
	if kind == KindPatient {
		ids = append(ids, "data_id")
	}
	for _, id := range ids {
		if v := fields[id]; v != nil {
			fields[id] = scalarString(v)
		}
	}
}

// normalizeValue maps NaN markers to nil.
func normalizeValue(v any) any {
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return nil
	}
	return v
}

// scalarString renders a scalar cell as a string. Integral floats drop the
// fractional part, so a participant_id read as 101.0 becomes "101". The 'f'
// format keeps large IDs in plain decimal, never scientific notation.
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
