package spec

import (
	"encoding/json"
	"sort"
)

// Schema emits a stable JSON Schema document describing the AgentSpec wire
// shape, for external tooling (client SDKs, preflight CI checks) to
// validate against independently of the registry's Go-native checks.
func (c *Compiler) Schema() ([]byte, error) {
	dimProps := make(map[string]any)
	for name := range c.registry.descriptors {
		d := c.registry.descriptors[name]
		props := make(map[string]any)
		requiredFields := []string{}
		for field, fs := range d.Fields {
			props[field] = map[string]any{"type": jsonSchemaType(fs.Type)}
			if fs.Required {
				requiredFields = append(requiredFields, field)
			}
		}
		sort.Strings(requiredFields)
		dimProps[string(name)] = map[string]any{
			"oneOf": []any{
				map[string]any{"type": "null"},
				map[string]any{
					"type":       "object",
					"properties": props,
					"required":   requiredFields,
				},
			},
		}
	}

	document := map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"$id":     "https://gateway.local/schemas/agent-spec.schema.json",
		"type":    "object",
		"required": []string{"spec_id", "type", "version", "dimensions"},
		"additionalProperties": false,
		"properties": map[string]any{
			"spec_id": map[string]any{"type": "string"},
			"type":    map[string]any{"enum": []string{string(TypeMarketing), string(TypeTutor)}},
			"version": map[string]any{"type": "string"},
			"dimensions": map[string]any{
				"type":       "object",
				"properties": dimProps,
			},
		},
	}

	return json.MarshalIndent(document, "", "  ")
}

func jsonSchemaType(t string) string {
	switch t {
	case "string", "number", "boolean", "object", "array":
		return t
	default:
		return "object"
	}
}
