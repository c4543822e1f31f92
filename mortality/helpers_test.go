package mortality

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/systems"
)

// testConfigYAML is a 3x2 grid with one land cell and a single species.
const testConfigYAML = `
simulation:
  steps_per_year: 12
  years: 2
grid:
  nx: 3
  ny: 2
  land: [{x: 0, y: 0}]
mortality:
  algorithm: iterative
  subdt: 10
  iter_max: 50
  err_max: 1.0e-5
accessibility:
  default: 1
  entries: []
species:
  - name: sprat
    ingestion_rate: 3.5
    critical_efficiency: 0.57
    max_starvation_rate: 0.3
    out_rate: 0.4
    size_ratio_min: [3.5]
    size_ratio_max: [500]
    additional:
      larva_rate: 2.3
      rate: 0.6
    fishing:
      rate: 0.4
      recruitment_age: 0.5
resources: []
mpa: []
maps: []
schools:
  file: ""
  initial: []
`

func ptr(v float64) *float64 { return &v }

func testSpecies(name string) config.SpeciesConfig {
	return config.SpeciesConfig{
		Name:               name,
		IngestionRate:      3.5,
		CriticalEfficiency: 0.57,
		MaxStarvationRate:  0.3,
		OutRate:            0.4,
		SizeRatioMin:       []float64{3.5},
		SizeRatioMax:       []float64{500},
		Additional:         config.AdditionalConfig{LarvaRate: ptr(2.3), Rate: ptr(0.6)},
		Fishing:            config.SpeciesFishingConfig{Rate: ptr(0.4), RecruitmentAge: ptr(0.5)},
	}
}

func plankton() config.ResourceConfig {
	return config.ResourceConfig{
		Name:          "plankton",
		TrophicLevel:  2,
		SizeMin:       0.02,
		SizeMax:       0.2,
		Biomass:       50,
		Accessibility: 0.5,
	}
}

// newTestConfig parses the test config and applies mutate. Derived values
// are recomputed after mutation.
func newTestConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfigYAML))
	require.NoError(t, err)
	if mutate == nil {
		return cfg
	}
	mutate(cfg)
	out, err := cfg.Clone()
	require.NoError(t, err)
	return out
}

type testEnv struct {
	cfg       *config.Config
	grid      *systems.Grid
	maps      map[string]*systems.GridMap
	resources *systems.ResourceField
	mpas      *systems.MPASet
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	e := &testEnv{cfg: cfg, grid: systems.NewGridFromConfig(cfg)}
	var err error
	e.maps, err = systems.LoadGridMaps(cfg)
	require.NoError(t, err)
	e.resources, err = systems.NewResourceField(cfg, e.grid, e.maps)
	require.NoError(t, err)
	e.mpas = systems.NewMPASet(cfg, e.grid)
	return e
}

func (e *testEnv) process(t *testing.T) *Process {
	t.Helper()
	p, err := NewProcess(e.cfg, e.grid, e.resources, e.mpas, e.maps)
	require.NoError(t, err)
	return p
}

// rates returns the providers of a fresh process positioned at step.
func (e *testEnv) rates(t *testing.T, step int) *Rates {
	t.Helper()
	p := e.process(t)
	r := p.Rates()
	r.Step = step
	e.resources.Update(step, e.cfg.Simulation.StepsPerYear)
	return r
}

// twoSpeciesConfig has a large predator, a small prey and one resource group.
func twoSpeciesConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	return newTestConfig(t, func(c *config.Config) {
		c.Species = []config.SpeciesConfig{testSpecies("prey"), testSpecies("predator")}
		c.Resources = []config.ResourceConfig{plankton()}
		if mutate != nil {
			mutate(c)
		}
	})
}

// predatorPreyCell is an ocean cell holding an egg school, an adult prey
// school and a predator school, with one resource pool.
func predatorPreyCell() *CellInput {
	return &CellInput{
		Index: 1,
		Schools: []SchoolState{
			{Species: 0, AgeDt: 0, Abundance: 1e6, Weight: 1e-9, Length: 0.1, TrophicLevel: 3, Cell: 1},
			{Species: 0, AgeDt: 24, Abundance: 1e6, Weight: 1e-5, Length: 5, TrophicLevel: 3, Cell: 1},
			{Species: 1, AgeDt: 48, Abundance: 1e4, Weight: 5e-4, Length: 30, TrophicLevel: 4, Cell: 1},
		},
		Resources: []float64{25},
	}
}
