package migrations

import (
	"strings"
	"testing"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := FS.ReadDir(".")
	if err != nil {
		t.Fatalf("read embedded FS: %v", err)
	}

	var found bool
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".sql") {
			t.Errorf("unexpected embedded file %q", e.Name())
		}
		if e.Name() == "001_initial_schema.sql" {
			found = true
		}
	}
	if !found {
		t.Error("001_initial_schema.sql missing from embedded FS")
	}
}

func TestInitialSchemaHasGooseMarkers(t *testing.T) {
	data, err := FS.ReadFile("001_initial_schema.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	content := string(data)
	for _, marker := range []string{"-- +goose Up", "-- +goose Down", "upload_runs"} {
		if !strings.Contains(content, marker) {
			t.Errorf("migration missing %q", marker)
		}
	}
}
