// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation    SimulationConfig    `yaml:"simulation"`
	Grid          GridConfig          `yaml:"grid"`
	Mortality     MortalityConfig     `yaml:"mortality"`
	Fishing       FishingConfig       `yaml:"fishing"`
	Accessibility AccessibilityConfig `yaml:"accessibility"`
	Species       []SpeciesConfig     `yaml:"species" validate:"required,min=1,dive"`
	Resources     []ResourceConfig    `yaml:"resources" validate:"dive"`
	MPAs          []MPAConfig         `yaml:"mpa" validate:"dive"`
	Maps          []MapConfig         `yaml:"maps" validate:"dive"`
	Schools       SchoolsConfig       `yaml:"schools"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds the time discretisation.
type SimulationConfig struct {
	StepsPerYear int `yaml:"steps_per_year" validate:"gt=0"` // time steps in one simulated year
	Years        int `yaml:"years" validate:"gt=0"`          // run length
}

// CellRef addresses one grid cell.
type CellRef struct {
	X int `yaml:"x" validate:"gte=0"`
	Y int `yaml:"y" validate:"gte=0"`
}

// GridConfig holds the spatial grid dimensions and land mask.
type GridConfig struct {
	NX   int       `yaml:"nx" validate:"gt=0"`
	NY   int       `yaml:"ny" validate:"gt=0"`
	Land []CellRef `yaml:"land" validate:"dive"` // cells excluded from all processes
}

// MortalityConfig selects and tunes the cell-level aggregator.
type MortalityConfig struct {
	Algorithm     string  `yaml:"algorithm" validate:"oneof=iterative stochastic"`
	Subdt         int     `yaml:"subdt" validate:"gt=0"`     // stochastic sub-steps per time step
	IterMax       int     `yaml:"iter_max" validate:"gt=0"`  // iterative budget
	ErrMax        float64 `yaml:"err_max" validate:"gt=0"`   // iterative convergence threshold
	RecordDiet    bool    `yaml:"record_diet"`               // keep full prey records per school
	ParallelCells bool    `yaml:"parallel_cells"`            // per-cell generators, not bit-reproducible
}

// FishingConfig holds the global fishing scenario family.
type FishingConfig struct {
	Type string `yaml:"type" validate:"oneof=rate catches"`
}

// AccessibilityEntry is one cell of the prey/predator accessibility matrix.
type AccessibilityEntry struct {
	Prey          string  `yaml:"prey" validate:"required"` // species or resource name
	PreyStage     int     `yaml:"prey_stage" validate:"gte=0"`
	Predator      string  `yaml:"predator" validate:"required"`
	PredatorStage int     `yaml:"predator_stage" validate:"gte=0"`
	Value         float64 `yaml:"value" validate:"gte=0,lte=1"`
}

// AccessibilityConfig holds the accessibility matrix.
// With no entries every pair uses Default.
type AccessibilityConfig struct {
	Default float64              `yaml:"default" validate:"gte=0,lte=1"`
	Entries []AccessibilityEntry `yaml:"entries" validate:"dive"`
}

// StageConfig splits a species into stages by age (years) or size (cm).
type StageConfig struct {
	Structure  string    `yaml:"structure" validate:"omitempty,oneof=age size"`
	Thresholds []float64 `yaml:"thresholds"`
}

// ClassSeriesConfig is a per-time-step table of values by age or size class.
// Values has one row per step and one column per threshold.
type ClassSeriesConfig struct {
	Structure  string      `yaml:"structure" validate:"oneof=age size"`
	Thresholds []float64   `yaml:"thresholds" validate:"min=1"`
	Values     [][]float64 `yaml:"values" validate:"min=1"`
}

// AdditionalConfig holds additional (natural) mortality parameters for one species.
type AdditionalConfig struct {
	LarvaRate       *float64           `yaml:"larva_rate,omitempty"`        // per step, age 0
	LarvaRateByDt   []float64          `yaml:"larva_rate_by_dt,omitempty"`  // per step series, age 0
	Rate            *float64           `yaml:"rate,omitempty"`              // annual
	RateMultiplier  *float64           `yaml:"rate_multiplier,omitempty"`   // scales Rate
	Season          []float64          `yaml:"season,omitempty"`            // steps_per_year fractions
	RateByDt        []float64          `yaml:"rate_by_dt,omitempty"`        // per step series
	RateByDtByClass *ClassSeriesConfig `yaml:"rate_by_dt_by_class,omitempty"`
	SpatialMap      string             `yaml:"spatial_map,omitempty"`
}

// SpeciesFishingConfig holds fishing parameters for one species.
type SpeciesFishingConfig struct {
	Rate               *float64           `yaml:"rate,omitempty"`         // annual F
	RateByYear         []float64          `yaml:"rate_by_year,omitempty"` // annual F per year
	RateByDtByClass    *ClassSeriesConfig `yaml:"rate_by_dt_by_class,omitempty"`
	Catches            *float64           `yaml:"catches,omitempty"`         // tonnes per year
	CatchesByYear      []float64          `yaml:"catches_by_year,omitempty"` // tonnes per year
	CatchesByDtByClass *ClassSeriesConfig `yaml:"catches_by_dt_by_class,omitempty"`
	Season             []float64          `yaml:"season,omitempty"`
	RecruitmentAge     *float64           `yaml:"recruitment_age,omitempty"`  // years
	RecruitmentSize    *float64           `yaml:"recruitment_size,omitempty"` // cm
	SpatialMap         string             `yaml:"spatial_map,omitempty"`
}

// SpeciesConfig holds the per-species mortality parameters.
type SpeciesConfig struct {
	Name               string               `yaml:"name" validate:"required"`
	IngestionRate      float64              `yaml:"ingestion_rate" validate:"gt=0"`             // max biomass eaten per unit biomass per year
	CriticalEfficiency float64              `yaml:"critical_efficiency" validate:"gt=0,lte=1"` // starvation threshold on predation success
	MaxStarvationRate  float64              `yaml:"max_starvation_rate" validate:"gte=0"`       // annual
	OutRate            float64              `yaml:"out_rate" validate:"gte=0"`                  // annual, schools outside the domain
	FeedingStages      StageConfig          `yaml:"feeding_stages"`
	AccessStages       StageConfig          `yaml:"accessibility_stages"`
	SizeRatioMin       []float64            `yaml:"size_ratio_min" validate:"min=1,dive,gt=0"` // per feeding stage
	SizeRatioMax       []float64            `yaml:"size_ratio_max" validate:"min=1,dive,gt=0"` // per feeding stage
	Additional         AdditionalConfig     `yaml:"additional"`
	Fishing            SpeciesFishingConfig `yaml:"fishing"`
}

// ResourceConfig holds a background plankton/resource group.
type ResourceConfig struct {
	Name          string    `yaml:"name" validate:"required"`
	TrophicLevel  float64   `yaml:"trophic_level" validate:"gt=0"`
	SizeMin       float64   `yaml:"size_min" validate:"gte=0"`
	SizeMax       float64   `yaml:"size_max" validate:"gtfield=SizeMin"`
	Biomass       float64   `yaml:"biomass" validate:"gte=0"`              // tonnes per ocean cell
	Accessibility float64   `yaml:"accessibility" validate:"gte=0,lte=1"` // fraction of the pool exposed to predation
	Season        []float64 `yaml:"season,omitempty"`                      // multiplicative forcing per step in year
	Map           string    `yaml:"map,omitempty"`                         // optional spatial distribution
}

// MPAConfig holds a marine protected area.
type MPAConfig struct {
	Name      string    `yaml:"name" validate:"required"`
	Cells     []CellRef `yaml:"cells" validate:"min=1,dive"`
	StartYear int       `yaml:"start_year" validate:"gte=0"`
	EndYear   int       `yaml:"end_year" validate:"gtefield=StartYear"`
}

// MapConfig is a named spatial factor map, ny rows of nx values.
type MapConfig struct {
	Name   string      `yaml:"name" validate:"required"`
	Values [][]float64 `yaml:"values" validate:"min=1"`
}

// SchoolConfig describes one initial school.
type SchoolConfig struct {
	Species      string  `yaml:"species" csv:"species" validate:"required"`
	Abundance    float64 `yaml:"abundance" csv:"abundance" validate:"gte=0"`
	Weight       float64 `yaml:"weight" csv:"weight" validate:"gt=0"` // grams per individual
	Length       float64 `yaml:"length" csv:"length" validate:"gt=0"` // cm
	AgeDt        int     `yaml:"age_dt" csv:"age_dt" validate:"gte=0"`
	TrophicLevel float64 `yaml:"trophic_level" csv:"trophic_level" validate:"gte=0"`
	X            int     `yaml:"x" csv:"x"`
	Y            int     `yaml:"y" csv:"y"`
	Out          bool    `yaml:"out" csv:"out"`
}

// SchoolsConfig holds the initial population.
type SchoolsConfig struct {
	File    string         `yaml:"file"` // CSV of SchoolConfig rows, overrides Initial
	Initial []SchoolConfig `yaml:"initial" validate:"dive"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	WindowSteps int `yaml:"window_steps" validate:"gt=0"` // steps per stats window
}

// DerivedConfig holds values computed from other config values.
type DerivedConfig struct {
	NumSpecies    int
	NumResources  int
	TotalSteps    int
	SpeciesIndex  map[string]int
	ResourceIndex map[string]int
	MapIndex      map[string]int
	// RecruitmentDt is the fishing recruitment age in steps, -1 when unset.
	RecruitmentDt []int
}

var global *Config

// Init loads configuration from the given path and sets it as global.
// If path is empty, uses embedded defaults only.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds a configuration from YAML bytes on top of the embedded defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.computeDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.NumSpecies = len(c.Species)
	c.Derived.NumResources = len(c.Resources)
	c.Derived.TotalSteps = c.Simulation.Years * c.Simulation.StepsPerYear

	c.Derived.SpeciesIndex = make(map[string]int, len(c.Species))
	for i, sp := range c.Species {
		c.Derived.SpeciesIndex[sp.Name] = i
	}
	c.Derived.ResourceIndex = make(map[string]int, len(c.Resources))
	for i, r := range c.Resources {
		c.Derived.ResourceIndex[r.Name] = i
	}
	c.Derived.MapIndex = make(map[string]int, len(c.Maps))
	for i, m := range c.Maps {
		c.Derived.MapIndex[m.Name] = i
	}

	c.Derived.RecruitmentDt = make([]int, len(c.Species))
	for i, sp := range c.Species {
		c.Derived.RecruitmentDt[i] = -1
		if sp.Fishing.RecruitmentAge != nil {
			c.Derived.RecruitmentDt[i] = int(math.Round(*sp.Fishing.RecruitmentAge * float64(c.Simulation.StepsPerYear)))
		}
	}
}

// Clone returns a deep copy via a YAML round trip.
func (c *Config) Clone() (*Config, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	out.computeDerived()
	return out, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Year returns the simulated year of a time step.
func (c *Config) Year(step int) int {
	return step / c.Simulation.StepsPerYear
}

// StepInYear returns the position of a time step within its year.
func (c *Config) StepInYear(step int) int {
	return step % c.Simulation.StepsPerYear
}
