package events

import (
	"encoding/json"
	"fmt"
)

// Metadata is the schema-less per-event payload. Values are restricted to a
// small serializable variant: string, number, bool, null, or a nested map
// of the same. Arrays and any other shapes are rejected at decode time.
type Metadata map[string]any

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := checkValues("", raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

func checkValues(prefix string, m map[string]any) error {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch val := v.(type) {
		case nil, string, float64, bool:
		case map[string]any:
			if err := checkValues(path, val); err != nil {
				return err
			}
		default:
			return fmt.Errorf("metadata field %q: unsupported value type %T", path, v)
		}
	}
	return nil
}
