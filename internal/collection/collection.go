package collection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clinicalconnectome/phiup/internal/schema"
)

// Collection is an ordered sequence of request items for one entity kind,
// terminated by a single login item.
type Collection struct {
	Items []any
}

// Build produces one collection item per record, capped at n when
// 0 < n < len(records), with the login fragment appended last. Each item is
// built fresh from the fragment's static shape and receives the record
// serialized into its request body slot. A non-empty nameOverride replaces
// the fragment's display name on every item.
func Build(frag, login Fragment, records []schema.Record, n int, nameOverride string) (*Collection, error) {
	count := len(records)
	if n > 0 && n < count {
		count = n
	}

	items := make([]any, 0, count+1)
	for _, rec := range records[:count] {
		body, err := json.MarshalIndent(rec, "", "    ")
		if err != nil {
			return nil, fmt.Errorf("serialize record: %w", err)
		}
		item, err := stampItem(frag, string(body), nameOverride)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	var loginItem map[string]any
	if err := json.Unmarshal(login.raw, &loginItem); err != nil {
		return nil, fmt.Errorf("copy login fragment: %w", err)
	}
	items = append(items, loginItem)

	return &Collection{Items: items}, nil
}

// stampItem deep-copies the fragment by re-unmarshaling its raw bytes and
// substitutes the request body slot.
func stampItem(frag Fragment, body, nameOverride string) (map[string]any, error) {
	var item map[string]any
	if err := json.Unmarshal(frag.raw, &item); err != nil {
		return nil, fmt.Errorf("copy fragment %q: %w", frag.Name, err)
	}
	if nameOverride != "" {
		item["name"] = nameOverride
	}

	request, ok := item["request"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("fragment %q has no request object", frag.Name)
	}
	reqBody, ok := request["body"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("fragment %q has no request body slot", frag.Name)
	}
	reqBody["raw"] = body
	return item, nil
}

// Path returns the deterministic collection file path for a dataset and kind.
func Path(dir, dataset string, kind schema.Kind) string {
	return filepath.Join(dir, fmt.Sprintf("%s_add_%s_API.json", dataset, kind))
}

// Write persists the collection to path, fully overwriting any prior file.
func (c *Collection) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create collection directory: %w", err)
	}
	data, err := json.MarshalIndent(map[string]any{"item": c.Items}, "", "    ")
	if err != nil {
		return fmt.Errorf("serialize collection: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write collection: %w", err)
	}
	return nil
}

// Payload is one request body extracted from a persisted collection. Raw is
// the serialized form preserved byte-for-byte; Fields is its parsed content.
type Payload struct {
	Raw    string
	Fields map[string]any
}

// Get returns a payload field value, or nil when absent.
func (p Payload) Get(name string) any {
	return p.Fields[name]
}

// LoadPayloads reads a persisted collection and extracts the raw bodies of
// the items matching itemName whose body mode is "raw". The trailing login
// item never matches and is therefore excluded. An empty result is an error:
// it means the collection does not belong to the requested entity kind.
func LoadPayloads(path, itemName string) ([]Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}

	var doc struct {
		Item []struct {
			Name    string `json:"name"`
			Request struct {
				Body struct {
					Mode string `json:"mode"`
					Raw  string `json:"raw"`
				} `json:"body"`
			} `json:"request"`
		} `json:"item"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse collection %s: %w", path, err)
	}

	var payloads []Payload
	for _, item := range doc.Item {
		if item.Name != itemName || item.Request.Body.Mode != "raw" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(item.Request.Body.Raw), &fields); err != nil {
			return nil, fmt.Errorf("parse payload body in %s: %w", path, err)
		}
		payloads = append(payloads, Payload{Raw: item.Request.Body.Raw, Fields: fields})
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("no %q items in %s", itemName, path)
	}
	return payloads, nil
}
