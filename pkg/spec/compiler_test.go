package spec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func nullDims() map[DimensionName]RawDimension {
	dims := map[DimensionName]RawDimension{}
	for _, name := range AllDimensionNames() {
		dims[name] = RawDimension{Null: true}
	}
	return dims
}

func TestCompileAllNullDimensionsSucceeds(t *testing.T) {
	c := NewCompiler(DefaultRegistry())
	s := AgentSpec{SpecID: "spec-1", Type: TypeMarketing, Version: "1.2.0", Dimensions: nullDims()}

	bundle, violations := c.Compile(s)
	require.Empty(t, violations)
	require.NotNil(t, bundle)
	require.Equal(t, "spec-1", bundle.SpecID)
	require.NotEmpty(t, bundle.ContentHash)
	require.True(t, bundle.Dimensions[DimSkill].Null)
}

func TestCompileMissingRequiredDimension(t *testing.T) {
	c := NewCompiler(DefaultRegistry())
	dims := nullDims()
	delete(dims, DimBudget)
	s := AgentSpec{SpecID: "spec-1", Type: TypeMarketing, Version: "1.0.0", Dimensions: dims}

	_, violations := c.Compile(s)
	require.NotEmpty(t, violations)
	found := false
	for _, v := range violations {
		if v.Code == "missing_required_dimension" {
			found = true
		}
	}
	require.True(t, found)
}

func TestCompileUnknownSpecType(t *testing.T) {
	c := NewCompiler(DefaultRegistry())
	s := AgentSpec{SpecID: "spec-1", Type: "bogus", Version: "1.0.0", Dimensions: nullDims()}

	_, violations := c.Compile(s)
	require.Len(t, violations, 1)
	require.Equal(t, "unknown_spec_type", violations[0].Code)
}

func TestCompileInvalidVersion(t *testing.T) {
	c := NewCompiler(DefaultRegistry())
	s := AgentSpec{SpecID: "spec-1", Type: TypeMarketing, Version: "not-a-version", Dimensions: nullDims()}

	_, violations := c.Compile(s)
	require.Len(t, violations, 1)
	require.Equal(t, "invalid_version", violations[0].Code)
}

func TestCompileUnsupportedVersionRange(t *testing.T) {
	c := NewCompiler(DefaultRegistry())
	dims := nullDims()
	dims[DimSkill] = RawDimension{Config: []byte(`{"name": "drafting", "version": "1.0.0"}`)}
	s := AgentSpec{SpecID: "spec-1", Type: TypeMarketing, Version: "2.0.0", Dimensions: dims}

	_, violations := c.Compile(s)
	found := false
	for _, v := range violations {
		if v.Code == "unsupported_version" {
			found = true
		}
	}
	require.True(t, found)
}

func TestCompileActiveDimensionWithMissingField(t *testing.T) {
	c := NewCompiler(DefaultRegistry())
	dims := nullDims()
	dims[DimSkill] = RawDimension{Config: []byte(`{"name": "drafting"}`)}
	s := AgentSpec{SpecID: "spec-1", Type: TypeMarketing, Version: "1.0.0", Dimensions: dims}

	_, violations := c.Compile(s)
	found := false
	for _, v := range violations {
		if v.Code == "missing_required_field" {
			found = true
		}
	}
	require.True(t, found)
}

func TestCompileActiveDimensionValid(t *testing.T) {
	c := NewCompiler(DefaultRegistry())
	dims := nullDims()
	dims[DimSkill] = RawDimension{Config: []byte(`{"name": "drafting", "version": "1.0.0"}`)}
	s := AgentSpec{SpecID: "spec-1", Type: TypeMarketing, Version: "1.0.0", Dimensions: dims}

	bundle, violations := c.Compile(s)
	require.Empty(t, violations)
	require.Equal(t, "drafting", bundle.Dimensions[DimSkill].Config["name"])
}

func TestCompileUnknownDimensionRejected(t *testing.T) {
	c := NewCompiler(DefaultRegistry())
	dims := nullDims()
	dims["not_a_real_dimension"] = RawDimension{Null: true}
	s := AgentSpec{SpecID: "spec-1", Type: TypeMarketing, Version: "1.0.0", Dimensions: dims}

	_, violations := c.Compile(s)
	found := false
	for _, v := range violations {
		if v.Code == "unknown_dimension" {
			found = true
		}
	}
	require.True(t, found)
}

func TestCompileIsDeterministicContentHash(t *testing.T) {
	c := NewCompiler(DefaultRegistry())
	s := AgentSpec{SpecID: "spec-1", Type: TypeMarketing, Version: "1.0.0", Dimensions: nullDims()}

	b1, v1 := c.Compile(s)
	require.Empty(t, v1)
	b2, v2 := c.Compile(s)
	require.Empty(t, v2)
	require.Equal(t, b1.ContentHash, b2.ContentHash)
}
