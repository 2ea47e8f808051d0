package catalog

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dependencies lists the action keys an action builds on.
//
// Older catalogs stored this field in several shapes. Every decoder of the
// field goes through normalizeDependencies, which accepts:
//
//   - a list of action keys:          [A, B]
//   - a single key or a CSV string:   "A" or "A, B"
//   - a mapping with a requires list: {requires: [A, B]}
//
// Any other shape (numbers, nested objects, null) normalises to an empty list
// instead of failing the load.
type Dependencies []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Dependencies) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		*d = nil
		return nil
	}
	*d = normalizeDependencies(raw)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Dependencies) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*d = nil
		return nil
	}
	*d = normalizeDependencies(raw)
	return nil
}

func normalizeDependencies(raw any) Dependencies {
	switch v := raw.(type) {
	case string:
		var out Dependencies
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []any:
		var out Dependencies
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case map[string]any:
		if req, ok := v["requires"]; ok {
			return normalizeDependencies(req)
		}
		return nil
	default:
		return nil
	}
}
