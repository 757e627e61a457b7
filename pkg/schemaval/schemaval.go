// Package schemaval compiles a JSON Schema document and validates raw
// request bodies against it, in the style of a policy firewall that
// compiles a per-tool JSON Schema with the same library — here used for
// the Spec Compiler's preflight cross-check rather than a tool-call
// allowlist.
package schemaval

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator wraps a compiled JSON Schema.
type Validator struct {
	schema *jsonschema.Schema
}

// Compile compiles schemaDoc (as produced by spec.Compiler.Schema) under a
// fixed local resource URL.
func Compile(schemaDoc []byte) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://gateway.local/schemas/agent-spec.schema.json"
	if err := c.AddResource(url, strings.NewReader(string(schemaDoc))); err != nil {
		return nil, fmt.Errorf("schemaval: loading schema: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schemaval: compiling schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// ValidateRaw decodes body as JSON and validates it against the schema.
func (v *Validator) ValidateRaw(body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("schemaval: request body is not valid JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("schemaval: schema validation failed: %w", err)
	}
	return nil
}
