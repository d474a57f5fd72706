// Package collection builds, persists, and re-loads registry request
// collections: one request item per record plus a trailing login item,
// each item stamped from a named template fragment.
package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrFragmentNotFound is returned when a named fragment is absent from the
// template document.
var ErrFragmentNotFound = errors.New("template fragment not found")

// Template is a parsed template document holding named request fragments.
type Template struct {
	path  string
	items []templateItem
}

type templateItem struct {
	Name string          `json:"name"`
	raw  json.RawMessage // full item, kept verbatim for per-row copies
}

// Fragment is one named request skeleton. Its raw bytes are the static shape
// every collection item is freshly built from, so items never alias each
// other's mutable body slot.
type Fragment struct {
	Name string
	raw  json.RawMessage
}

// LoadTemplate parses the template document at path.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	var doc struct {
		Item []json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}

	t := &Template{path: path}
	for _, raw := range doc.Item {
		var named struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &named); err != nil {
			return nil, fmt.Errorf("parse template item in %s: %w", path, err)
		}
		t.items = append(t.items, templateItem{Name: named.Name, raw: raw})
	}
	return t, nil
}

// Fragment returns the fragment with the given name. When the document holds
// several fragments with the same name the last one wins.
func (t *Template) Fragment(name string) (Fragment, error) {
	for i := len(t.items) - 1; i >= 0; i-- {
		if t.items[i].Name == name {
			return Fragment{Name: name, raw: t.items[i].raw}, nil
		}
	}
	return Fragment{}, fmt.Errorf("%w: %q in %s", ErrFragmentNotFound, name, t.path)
}
