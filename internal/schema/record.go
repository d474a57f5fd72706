package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is one normalized row ready for upload. Its field set equals the
// kind's required field set exactly; absent inputs are carried as nil.
type Record struct {
	kind   Kind
	fields map[string]any
}

// Kind returns the record's entity kind.
func (r Record) Kind() Kind {
	return r.kind
}

// Get returns the value of a field, or nil when the field is not part of the
// kind's required set.
func (r Record) Get(name string) any {
	return r.fields[name]
}

// MarshalJSON emits the record's fields in the kind's fixed order, so that
// serialized payloads are stable across runs.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.kind.RequiredFields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("marshal field name %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.fields[name])
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
