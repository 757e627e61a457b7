package spec

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/Mindburn-Labs/agent-exec-gateway/pkg/canonicalize"
)

// Compiler is a pure function from an AgentSpec plus a Registry to a
// Compiled Bundle or a list of Violations. It holds no per-request state;
// the bundle memoisation cache, if any, lives at the call site (see
// BundleCache) keyed by content hash.
type Compiler struct {
	registry *Registry
}

// NewCompiler binds a Compiler to a fixed, already-built Registry.
func NewCompiler(registry *Registry) *Compiler {
	return &Compiler{registry: registry}
}

// Validate runs every check compile would run, without materialising
// dimension instances. Used by preflight endpoints.
func (c *Compiler) Validate(s AgentSpec) []Violation {
	_, violations := c.compile(s, false)
	return violations
}

// Compile validates s and, if valid, materialises a Bundle. On any
// violation it returns (nil, violations) — never a partially materialised
// bundle.
func (c *Compiler) Compile(s AgentSpec) (*Bundle, []Violation) {
	return c.compile(s, true)
}

func (c *Compiler) compile(s AgentSpec, materialise bool) (*Bundle, []Violation) {
	var violations []Violation

	if s.SpecID == "" {
		violations = append(violations, Violation{Path: "spec_id", Code: "required", Message: "spec_id is required"})
	}
	if s.Type != TypeMarketing && s.Type != TypeTutor {
		violations = append(violations, Violation{Path: "type", Code: "unknown_spec_type", Message: fmt.Sprintf("unrecognised spec type %q", s.Type)})
		return nil, violations
	}

	specVersion, err := semver.NewVersion(s.Version)
	if err != nil {
		violations = append(violations, Violation{Path: "version", Code: "invalid_version", Message: err.Error()})
		return nil, violations
	}

	required := c.registry.RequiredDimensions(s.Type)
	requiredSet := make(map[DimensionName]bool, len(required))
	for _, name := range required {
		requiredSet[name] = true
	}

	instances := make(map[DimensionName]Instance, len(s.Dimensions))

	// (a) reject unknown dimension names.
	for name := range s.Dimensions {
		if _, ok := c.registry.Descriptor(name); !ok {
			violations = append(violations, Violation{
				Path: fmt.Sprintf("dimensions.%s", name), Code: "unknown_dimension",
				Message: fmt.Sprintf("dimension %q is not registered", name),
			})
		}
	}

	// (d) every required dimension must appear (active or explicit null).
	for _, name := range required {
		raw, present := s.Dimensions[name]
		if !present {
			violations = append(violations, Violation{
				Path: fmt.Sprintf("dimensions.%s", name), Code: "missing_required_dimension",
				Message: fmt.Sprintf("dimension %q must be present (active or null) for spec type %q", name, s.Type),
			})
			continue
		}

		if raw.Null {
			instances[name] = Instance{Name: name, Null: true}
			continue
		}

		descriptor, ok := c.registry.Descriptor(name)
		if !ok {
			continue // already reported above
		}

		// (c) version range check, exact major / ranged minor / patch ignored.
		if vr, ok := descriptor.SupportedVersions[s.Type]; ok {
			if !vr.Contains(specVersion) {
				violations = append(violations, Violation{
					Path: fmt.Sprintf("dimensions.%s", name), Code: "unsupported_version",
					Message: fmt.Sprintf("spec version %s outside supported range for dimension %q", s.Version, name),
				})
				continue
			}
		}

		// (b) active dimension configuration must pass its descriptor's validator.
		config, fieldViolations := validateFields(name, raw.Config, descriptor)
		if len(fieldViolations) > 0 {
			violations = append(violations, fieldViolations...)
			continue
		}
		if descriptor.Validate != nil {
			if extra := descriptor.Validate(config); len(extra) > 0 {
				violations = append(violations, extra...)
				continue
			}
		}

		instances[name] = Instance{Name: name, Config: config}
	}

	// Any dimension present but not required for this spec type is still
	// compiled if its descriptor exists (a spec may declare dimensions
	// beyond the minimum), subject to the same per-dimension checks.
	for name, raw := range s.Dimensions {
		if requiredSet[name] {
			continue // already handled above
		}
		descriptor, ok := c.registry.Descriptor(name)
		if !ok {
			continue // already reported as unknown_dimension
		}
		if raw.Null {
			instances[name] = Instance{Name: name, Null: true}
			continue
		}
		if vr, ok := descriptor.SupportedVersions[s.Type]; ok && !vr.Contains(specVersion) {
			violations = append(violations, Violation{
				Path: fmt.Sprintf("dimensions.%s", name), Code: "unsupported_version",
				Message: fmt.Sprintf("spec version %s outside supported range for dimension %q", s.Version, name),
			})
			continue
		}
		config, fieldViolations := validateFields(name, raw.Config, descriptor)
		if len(fieldViolations) > 0 {
			violations = append(violations, fieldViolations...)
			continue
		}
		if descriptor.Validate != nil {
			if extra := descriptor.Validate(config); len(extra) > 0 {
				violations = append(violations, extra...)
				continue
			}
		}
		instances[name] = Instance{Name: name, Config: config}
	}

	if len(violations) > 0 {
		return nil, violations
	}
	if !materialise {
		return nil, nil
	}

	contentHash, err := canonicalize.Hash(s)
	if err != nil {
		return nil, []Violation{{Path: "", Code: "internal", Message: err.Error()}}
	}

	return &Bundle{
		SpecID:      s.SpecID,
		SpecVersion: s.Version,
		Dimensions:  instances,
		ContentHash: contentHash,
	}, nil
}

// validateFields decodes raw into a generic map and checks it against the
// descriptor's declared field shape: "partial configuration" means a
// required field is missing, or present with the wrong shape.
func validateFields(name DimensionName, raw json.RawMessage, d Descriptor) (map[string]any, []Violation) {
	var config map[string]any
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, []Violation{{
			Path: fmt.Sprintf("dimensions.%s", name), Code: "malformed_configuration",
			Message: fmt.Sprintf("dimension %q configuration is not a JSON object: %v", name, err),
		}}
	}

	var violations []Violation
	for field, fs := range d.Fields {
		val, present := config[field]
		if !present {
			if fs.Required {
				violations = append(violations, Violation{
					Path: fmt.Sprintf("dimensions.%s.%s", name, field), Code: "missing_required_field",
					Message: fmt.Sprintf("dimension %q is missing required field %q", name, field),
				})
			}
			continue
		}
		if !checkFieldType(val, fs) {
			violations = append(violations, Violation{
				Path: fmt.Sprintf("dimensions.%s.%s", name, field), Code: "field_type_mismatch",
				Message: fmt.Sprintf("dimension %q field %q has the wrong shape", name, field),
			})
		}
	}
	return config, violations
}
