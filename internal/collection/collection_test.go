package collection

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clinicalconnectome/phiup/internal/schema"
)

const testTemplate = `{
    "item": [
        {
            "name": "Add patient",
            "request": {
                "method": "POST",
                "body": {
                    "mode": "raw",
                    "raw": ""
                },
                "url": "{{base_url}}/patients"
            }
        },
        {
            "name": "Add feature",
            "request": {
                "method": "POST",
                "body": {
                    "mode": "raw",
                    "raw": ""
                },
                "url": "{{base_url}}/features"
            }
        },
        {
            "name": "Login",
            "request": {
                "method": "POST",
                "body": {
                    "mode": "raw",
                    "raw": "{\"email\": \"\", \"password\": \"\"}"
                },
                "url": "{{base_url}}/auth/sign_in"
            }
        }
    ]
}`

func writeTemplate(t *testing.T) *Template {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.json")
	if err := os.WriteFile(path, []byte(testTemplate), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	tmpl, err := LoadTemplate(path)
	if err != nil {
		t.Fatalf("LoadTemplate() error = %v", err)
	}
	return tmpl
}

func featureRecords(t *testing.T, ids ...string) []schema.Record {
	t.Helper()
	rows := make([]schema.Row, len(ids))
	for i, id := range ids {
		rows[i] = schema.Row{"participant_id": id, "feature_type": "anat"}
	}
	records, _, err := schema.NormalizeBatch(schema.KindFeature, rows, schema.Options{})
	if err != nil {
		t.Fatalf("NormalizeBatch() error = %v", err)
	}
	return records
}

func TestTemplate_Fragment(t *testing.T) {
	tmpl := writeTemplate(t)

	frag, err := tmpl.Fragment("Add patient")
	if err != nil {
		t.Fatalf("Fragment() error = %v", err)
	}
	if frag.Name != "Add patient" {
		t.Errorf("Name = %q, want \"Add patient\"", frag.Name)
	}

	_, err = tmpl.Fragment("Add acquisition")
	if !errors.Is(err, ErrFragmentNotFound) {
		t.Errorf("Fragment() error = %v, want ErrFragmentNotFound", err)
	}
}

func TestBuild_OneItemPerRecordPlusLogin(t *testing.T) {
	tmpl := writeTemplate(t)
	frag, _ := tmpl.Fragment("Add feature")
	login, _ := tmpl.Fragment("Login")

	records := featureRecords(t, "sub-001", "sub-002", "sub-003")
	coll, err := Build(frag, login, records, 0, "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(coll.Items) != 4 {
		t.Fatalf("got %d items, want 3 records + login", len(coll.Items))
	}

	last := coll.Items[3].(map[string]any)
	if last["name"] != "Login" {
		t.Errorf("last item name = %v, want Login", last["name"])
	}

	// Each item carries its own record body; none alias each other.
	bodies := make(map[string]bool)
	for _, it := range coll.Items[:3] {
		item := it.(map[string]any)
		if item["name"] != "Add feature" {
			t.Errorf("item name = %v, want \"Add feature\"", item["name"])
		}
		raw := item["request"].(map[string]any)["body"].(map[string]any)["raw"].(string)
		bodies[raw] = true
	}
	if len(bodies) != 3 {
		t.Errorf("got %d distinct bodies, want 3", len(bodies))
	}
}

func TestBuild_CapsAtN(t *testing.T) {
	tmpl := writeTemplate(t)
	frag, _ := tmpl.Fragment("Add feature")
	login, _ := tmpl.Fragment("Login")

	records := featureRecords(t, "sub-001", "sub-002", "sub-003", "sub-004")

	tests := []struct {
		n    int
		want int // items including login
	}{
		{0, 5},
		{2, 3},
		{4, 5},
		{10, 5},
	}
	for _, tt := range tests {
		coll, err := Build(frag, login, records, tt.n, "")
		if err != nil {
			t.Fatalf("Build(n=%d) error = %v", tt.n, err)
		}
		if len(coll.Items) != tt.want {
			t.Errorf("Build(n=%d) produced %d items, want %d", tt.n, len(coll.Items), tt.want)
		}
	}
}

func TestBuild_NameOverride(t *testing.T) {
	tmpl := writeTemplate(t)
	frag, _ := tmpl.Fragment("Add feature")
	login, _ := tmpl.Fragment("Login")

	coll, err := Build(frag, login, featureRecords(t, "sub-001"), 0, "Add lesion feature")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	item := coll.Items[0].(map[string]any)
	if item["name"] != "Add lesion feature" {
		t.Errorf("item name = %v, want override", item["name"])
	}
	login2 := coll.Items[1].(map[string]any)
	if login2["name"] != "Login" {
		t.Errorf("login item name = %v, override must not touch login", login2["name"])
	}
}

func TestCollection_WriteLoadRoundTrip(t *testing.T) {
	tmpl := writeTemplate(t)
	frag, _ := tmpl.Fragment("Add feature")
	login, _ := tmpl.Fragment("Login")

	coll, err := Build(frag, login, featureRecords(t, "sub-001", "sub-002"), 0, "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	dir := t.TempDir()
	path := Path(dir, "WashU", schema.KindFeature)
	if want := filepath.Join(dir, "WashU_add_feature_API.json"); path != want {
		t.Fatalf("Path() = %q, want %q", path, want)
	}
	if err := coll.Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	payloads, err := LoadPayloads(path, "Add feature")
	if err != nil {
		t.Fatalf("LoadPayloads() error = %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want 2 (login must be excluded)", len(payloads))
	}

	// Raw bodies survive byte-for-byte.
	for i, p := range payloads {
		want := coll.Items[i].(map[string]any)["request"].(map[string]any)["body"].(map[string]any)["raw"].(string)
		if p.Raw != want {
			t.Errorf("payload[%d].Raw = %q, want %q", i, p.Raw, want)
		}
	}
	if got := payloads[0].Get("remote_id"); got != "sub-001" {
		t.Errorf("payload[0].remote_id = %v, want sub-001", got)
	}
	if got := payloads[1].Get("remote_id"); got != "sub-002" {
		t.Errorf("payload[1].remote_id = %v, want sub-002", got)
	}
}

func TestCollection_WriteCreatesDirectory(t *testing.T) {
	tmpl := writeTemplate(t)
	frag, _ := tmpl.Fragment("Add feature")
	login, _ := tmpl.Fragment("Login")

	coll, err := Build(frag, login, featureRecords(t, "sub-001"), 0, "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "API", "WashU_add_feature_API.json")
	if err := coll.Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("collection file missing: %v", err)
	}
}

func TestLoadPayloads_NoMatchIsError(t *testing.T) {
	tmpl := writeTemplate(t)
	frag, _ := tmpl.Fragment("Add feature")
	login, _ := tmpl.Fragment("Login")

	coll, err := Build(frag, login, featureRecords(t, "sub-001"), 0, "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "WashU_add_feature_API.json")
	if err := coll.Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := LoadPayloads(path, "Add patient"); err == nil {
		t.Fatal("expected error when no item matches the requested name")
	}
}

func TestLoadPayloads_OrderedFields(t *testing.T) {
	tmpl := writeTemplate(t)
	frag, _ := tmpl.Fragment("Add feature")
	login, _ := tmpl.Fragment("Login")

	coll, err := Build(frag, login, featureRecords(t, "sub-001"), 0, "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "WashU_add_feature_API.json")
	if err := coll.Write(path); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	payloads, err := LoadPayloads(path, "Add feature")
	if err != nil {
		t.Fatalf("LoadPayloads() error = %v", err)
	}

	// The body is stable serialized JSON starting with remote_id.
	var probe struct {
		RemoteID    string `json:"remote_id"`
		FeatureType string `json:"feature_type"`
	}
	if err := json.Unmarshal([]byte(payloads[0].Raw), &probe); err != nil {
		t.Fatalf("parse payload body: %v", err)
	}
	if probe.RemoteID != "sub-001" || probe.FeatureType != "anat" {
		t.Errorf("payload body = %+v", probe)
	}
}
