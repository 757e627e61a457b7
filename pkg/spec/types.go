// Package spec implements the AgentSpec compile and validation pipeline:
// a pure function from a declarative AgentSpec and a registry of dimension
// descriptors to a Compiled Bundle, in the style of a manifest validation
// pipeline, but built so the dimension registry is a closed set of tagged
// variants, not an open string-keyed dictionary.
package spec

import (
	"encoding/json"
	"fmt"
)

// SpecType is the closed set of recognised agent spec types.
type SpecType string

const (
	TypeMarketing SpecType = "marketing"
	TypeTutor     SpecType = "tutor"
)

// DimensionName is the closed set of recognised dimension keys. Adding a
// dimension means adding a constant here, a case in every switch over
// DimensionName, and a Descriptor registration — the compiler panics at
// registry-build time (see NewRegistry) if a spec type names
// a dimension with no matching descriptor, which is the closest a Go
// registry gets to a compile-time exhaustiveness check.
type DimensionName string

const (
	DimSkill        DimensionName = "skill"
	DimIndustry     DimensionName = "industry"
	DimTeam         DimensionName = "team"
	DimIntegrations DimensionName = "integrations"
	DimUI           DimensionName = "ui"
	DimLocalization DimensionName = "localization"
	DimTrial        DimensionName = "trial"
	DimBudget       DimensionName = "budget"
	DimAutopublish  DimensionName = "autopublish"
)

// AllDimensionNames enumerates the closed set of recognised dimensions.
func AllDimensionNames() []DimensionName {
	return []DimensionName{
		DimSkill, DimIndustry, DimTeam, DimIntegrations,
		DimUI, DimLocalization, DimTrial, DimBudget, DimAutopublish,
	}
}

// RawDimension is the wire representation of one entry in an AgentSpec's
// dimensions map: either present-and-active (Null=false, Config carries the
// sub-document), present-and-explicitly-null (Null=true), or entirely
// absent from the map (handled by the caller, not represented here — the
// null sentinel is a first-class value, never implicit absence).
type RawDimension struct {
	Null   bool
	Config json.RawMessage
}

// UnmarshalJSON treats a bare JSON `null` as the explicit null sentinel and
// any other value as the active configuration body.
func (d *RawDimension) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		d.Null = true
		d.Config = nil
		return nil
	}
	d.Null = false
	d.Config = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON round-trips the null sentinel and active configuration body.
func (d RawDimension) MarshalJSON() ([]byte, error) {
	if d.Null {
		return []byte("null"), nil
	}
	if d.Config == nil {
		return []byte("null"), nil
	}
	return d.Config, nil
}

// AgentSpec is the immutable declarative blueprint submitted by a caller.
type AgentSpec struct {
	SpecID     string                         `json:"spec_id"`
	Type       SpecType                       `json:"type"`
	Version    string                         `json:"version"`
	Dimensions map[DimensionName]RawDimension `json:"dimensions"`
}

// Violation is a single compile or validation failure. Violations are
// returned as data, never as exceptions used for flow control.
type Violation struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s (%s)", v.Path, v.Message, v.Code)
}

// Instance is the opaque, materialised carrier a compiled dimension
// produces for downstream gates and the skill executor. Null dimensions
// materialise to an Instance with Null=true and a nil Config.
type Instance struct {
	Name   DimensionName
	Null   bool
	Config map[string]any
}

// Bundle is the frozen result of a successful compile: read-only
// thereafter, safe to share across goroutines without synchronisation.
type Bundle struct {
	SpecID     string
	SpecVersion string
	Dimensions map[DimensionName]Instance
	ContentHash string
}
