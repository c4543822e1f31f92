package main

import (
	"fmt"

	"github.com/pthm-cable/shoal/config"
)

// Multiplier bounds for the additional mortality rate.
const (
	multiplierMin = 0.1
	multiplierMax = 3.0
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Species int     // index into cfg.Species
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates one rate_multiplier parameter per species whose
// additional mortality uses an annual rate. Other scenario families have
// no multiplier and are left untouched.
func NewParamVector(cfg *config.Config) *ParamVector {
	pv := &ParamVector{}
	for i, sp := range cfg.Species {
		ac := sp.Additional
		if ac.Rate == nil || ac.RateByDtByClass != nil || len(ac.RateByDt) > 0 {
			continue
		}
		def := 1.0
		if ac.RateMultiplier != nil {
			def = *ac.RateMultiplier
		}
		pv.Specs = append(pv.Specs, ParamSpec{
			Name:    sp.Name + "_rate_multiplier",
			Path:    fmt.Sprintf("species[%d].additional.rate_multiplier", i),
			Species: i,
			Min:     multiplierMin,
			Max:     multiplierMax,
			Default: min(max(def, multiplierMin), multiplierMax),
		})
	}
	return pv
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
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig sets the rate multipliers of cfg from clamped values.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	for i, spec := range pv.Specs {
		m := clamped[i]
		cfg.Species[spec.Species].Additional.RateMultiplier = &m
	}
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = 1
		if m := cfg.Species[spec.Species].Additional.RateMultiplier; m != nil {
			v[i] = *m
		}
	}
	return v
}
