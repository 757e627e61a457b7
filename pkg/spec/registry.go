package spec

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// VersionRange expresses the supported-version check: exact on
// major, ranged on minor, patch ignored.
type VersionRange struct {
	Major    uint64
	MinMinor uint64
	MaxMinor uint64
}

// Contains reports whether v falls within the range. Patch is ignored.
func (r VersionRange) Contains(v *semver.Version) bool {
	if v.Major() != r.Major {
		return false
	}
	return v.Minor() >= r.MinMinor && v.Minor() <= r.MaxMinor
}

// FieldSpec describes one required or optional sub-field of a dimension's
// active configuration, used by the default struct-shape validator.
type FieldSpec struct {
	Type     string // "string", "number", "boolean", "object", "array"
	Required bool
}

// Descriptor is registered once per DimensionName by the platform.
type Descriptor struct {
	Name DimensionName

	// SupportedVersions maps spec type to the version range this
	// dimension's configuration supports for that type. A spec type
	// absent from this map means the dimension is not applicable there.
	SupportedVersions map[SpecType]VersionRange

	// Fields describes the active configuration's expected shape.
	Fields map[string]FieldSpec

	// Validate, if set, runs after the default field-shape checks and can
	// reject configurations the generic shape check cannot express.
	Validate func(config map[string]any) []Violation
}

// Registry is process-wide, read-only state after NewRegistry returns: the set
// of dimension descriptors and which dimensions each spec type requires.
type Registry struct {
	descriptors map[DimensionName]Descriptor
	required    map[SpecType][]DimensionName
}

// NewRegistry builds a registry from descriptors and the required-dimension
// list per spec type, and panics if a spec type requires a dimension with
// no registered descriptor — the closest Go gets to a compile-time
// exhaustiveness check over the closed dimension set.
func NewRegistry(descriptors []Descriptor, required map[SpecType][]DimensionName) *Registry {
	r := &Registry{
		descriptors: make(map[DimensionName]Descriptor, len(descriptors)),
		required:    required,
	}
	for _, d := range descriptors {
		r.descriptors[d.Name] = d
	}
	for specType, dims := range required {
		for _, name := range dims {
			if _, ok := r.descriptors[name]; !ok {
				panic(fmt.Sprintf("spec: registry incomplete: type %q requires dimension %q with no registered descriptor", specType, name))
			}
		}
	}
	return r
}

// Descriptor returns the descriptor for name, or false if name is not a
// registered dimension at all (distinct from a dimension that exists but
// isn't required for a given spec type).
func (r *Registry) Descriptor(name DimensionName) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// RequiredDimensions returns the dimensions that must appear (active or
// null) for specType.
func (r *Registry) RequiredDimensions(specType SpecType) []DimensionName {
	return r.required[specType]
}

// DefaultRegistry returns the platform's standard descriptor set: every
// recognised dimension, with permissive field shapes appropriate for the
// two recognised spec types. A real deployment may register a stricter
// registry; this is the one the gateway wires by default.
func DefaultRegistry() *Registry {
	versions := map[SpecType]VersionRange{
		TypeMarketing: {Major: 1, MinMinor: 0, MaxMinor: 9},
		TypeTutor:     {Major: 1, MinMinor: 0, MaxMinor: 9},
	}

	descriptors := []Descriptor{
		{
			Name:              DimSkill,
			SupportedVersions: versions,
			Fields: map[string]FieldSpec{
				"name":    {Type: "string", Required: true},
				"version": {Type: "string", Required: true},
			},
		},
		{
			Name:              DimIndustry,
			SupportedVersions: versions,
			Fields: map[string]FieldSpec{
				"vertical": {Type: "string", Required: true},
			},
		},
		{
			Name:              DimTeam,
			SupportedVersions: versions,
			Fields: map[string]FieldSpec{
				"team_id": {Type: "string", Required: true},
			},
		},
		{
			Name:              DimIntegrations,
			SupportedVersions: versions,
			Fields: map[string]FieldSpec{
				"providers": {Type: "array", Required: true},
			},
		},
		{
			Name:              DimUI,
			SupportedVersions: versions,
			Fields: map[string]FieldSpec{
				"theme": {Type: "string", Required: false},
			},
		},
		{
			Name:              DimLocalization,
			SupportedVersions: versions,
			Fields: map[string]FieldSpec{
				"locales": {Type: "array", Required: true},
			},
		},
		{
			Name:              DimTrial,
			SupportedVersions: versions,
			Fields: map[string]FieldSpec{
				"enabled": {Type: "boolean", Required: true},
			},
		},
		{
			Name:              DimBudget,
			SupportedVersions: versions,
			Fields: map[string]FieldSpec{
				"plan_id": {Type: "string", Required: true},
			},
		},
		{
			Name:              DimAutopublish,
			SupportedVersions: versions,
			Fields: map[string]FieldSpec{
				"enabled": {Type: "boolean", Required: true},
			},
		},
	}

	required := map[SpecType][]DimensionName{
		TypeMarketing: AllDimensionNames(),
		TypeTutor:     AllDimensionNames(),
	}

	return NewRegistry(descriptors, required)
}

// checkFieldType validates a single raw JSON value against a FieldSpec's
// declared type: a lightweight shape check rather than a full JSON Schema
// validator for every dimension's internal shape — the JSON-Schema-based
// cross-check lives at the whole-spec level, in pkg/schemaval.
func checkFieldType(val any, fs FieldSpec) bool {
	switch fs.Type {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		_, ok := val.(json.Number)
		if ok {
			return true
		}
		_, ok = val.(float64)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	default:
		return true
	}
}
