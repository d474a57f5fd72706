package tabular

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTable(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write table: %v", err)
	}
	return path
}

func TestReadTable_CSV(t *testing.T) {
	path := writeTable(t, "participants.csv",
		"participant_id,sex,education\nsub-001,F,12\nsub-002,M,\n")

	rows, err := ReadTable(path)
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if got := rows[0]["participant_id"]; got != "sub-001" {
		t.Errorf("participant_id = %v, want sub-001", got)
	}
	if got := rows[0]["education"]; got != float64(12) {
		t.Errorf("education = %v (%T), want 12.0", got, got)
	}
	if got := rows[1]["education"]; got != nil {
		t.Errorf("empty cell = %v, want nil", got)
	}
}

func TestReadTable_TSV(t *testing.T) {
	path := writeTable(t, "acquisitions.tsv",
		"remote_id\tacquisition_type\tflip_angle\nsub-001\tT1w\t90\n")

	rows, err := ReadTable(path)
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := rows[0]["acquisition_type"]; got != "T1w" {
		t.Errorf("acquisition_type = %v, want T1w", got)
	}
	if got := rows[0]["flip_angle"]; got != float64(90) {
		t.Errorf("flip_angle = %v, want 90.0", got)
	}
}

func TestReadTable_UnsupportedExtension(t *testing.T) {
	path := writeTable(t, "participants.xlsx", "not a spreadsheet")

	if _, err := ReadTable(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestReadTable_MissingFile(t *testing.T) {
	if _, err := ReadTable(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadTable_HeaderOnly(t *testing.T) {
	path := writeTable(t, "empty.csv", "participant_id,sex\n")

	rows, err := ReadTable(path)
	if err != nil {
		t.Fatalf("ReadTable() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}

func TestInferCell(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", nil},
		{"  ", nil},
		{"NaN", nil},
		{"nan", nil},
		{"n/a", nil},
		{"NA", nil},
		{"null", nil},
		{"true", true},
		{"FALSE", false},
		{"12", float64(12)},
		{"3.5", 3.5},
		{"sub-001", "sub-001"},
		{"T1w", "T1w"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := inferCell(tt.in); got != tt.want {
				t.Errorf("inferCell(%q) = %v (%T), want %v", tt.in, got, got, tt.want)
			}
		})
	}
}
