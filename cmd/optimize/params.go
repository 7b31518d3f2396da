// Package main provides CMA-ES optimization for finding behavior weights
// that produce cohesive, collision-free flocks.
package main

import (
	"github.com/pthm-cable/murmur/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "separation_weight", Path: "behaviors.separation.weight", Min: 0.2, Max: 4.0, Default: 1.5},
			{Name: "separation_radius", Path: "behaviors.separation.radius", Min: 2.0, Max: 16.0, Default: 8.0},
			{Name: "alignment_weight", Path: "behaviors.alignment.weight", Min: 0.1, Max: 3.0, Default: 1.0},
			{Name: "alignment_radius", Path: "behaviors.alignment.radius", Min: 8.0, Max: 48.0, Default: 24.0},
			{Name: "cohesion_weight", Path: "behaviors.cohesion.weight", Min: 0.1, Max: 3.0, Default: 0.8},
			{Name: "cohesion_radius", Path: "behaviors.cohesion.radius", Min: 8.0, Max: 48.0, Default: 24.0},
			{Name: "wander_weight", Path: "behaviors.wander.weight", Min: 0.0, Max: 1.0, Default: 0.3},
			{Name: "max_force", Path: "agent.max_force", Min: 20.0, Max: 120.0, Default: 60.0},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := v[i]
		if val < spec.Min {
			val = spec.Min
		}
		if val > spec.Max {
			val = spec.Max
		}
		clamped[i] = val
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	i := 0
	cfg.Behaviors.Separation.Weight = clamped[i]
	i++
	cfg.Behaviors.Separation.Radius = clamped[i]
	i++
	cfg.Behaviors.Alignment.Weight = clamped[i]
	i++
	cfg.Behaviors.Alignment.Radius = clamped[i]
	i++
	cfg.Behaviors.Cohesion.Weight = clamped[i]
	i++
	cfg.Behaviors.Cohesion.Radius = clamped[i]
	i++
	cfg.Behaviors.Wander.Weight = clamped[i]
	i++
	cfg.Agent.MaxForce = clamped[i]
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Behaviors.Separation.Weight,
		cfg.Behaviors.Separation.Radius,
		cfg.Behaviors.Alignment.Weight,
		cfg.Behaviors.Alignment.Radius,
		cfg.Behaviors.Cohesion.Weight,
		cfg.Behaviors.Cohesion.Radius,
		cfg.Behaviors.Wander.Weight,
		cfg.Agent.MaxForce,
	}
}
