package mortality

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/shoal/config"
)

func TestCycle(t *testing.T) {
	tests := []struct {
		i, n, want int
	}{
		{0, 3, 0},
		{4, 3, 1},
		{-1, 3, 2},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := cycle(tt.i, tt.n); got != tt.want {
			t.Errorf("cycle(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestSeasonOrUniform(t *testing.T) {
	s := seasonOrUniform(nil, 4)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, s)

	season := []float64{0.1, 0.2, 0.3, 0.4}
	assert.Equal(t, season, seasonOrUniform(season, 4))
}

func TestScenarioValues(t *testing.T) {
	school := &SchoolState{AgeDt: 24, Length: 12}

	byDt := byDtScenario{series: []float64{1, 2, 3}}
	assert.Equal(t, 1.0, byDt.Value(school, 0))
	assert.Equal(t, 3.0, byDt.Value(school, 2))
	assert.Equal(t, 2.0, byDt.Value(school, 4), "short series wrap")

	seasonal := seasonalScenario{annual: 1.2, season: []float64{0.5, 0.25, 0.25}}
	assert.InDelta(t, 0.6, seasonal.Value(school, 3), 1e-12)

	byYear := byYearBySeasonScenario{annual: []float64{1, 2}, season: []float64{0.5, 0.5}}
	assert.InDelta(t, 0.5, byYear.Value(school, 1), 1e-12)
	assert.InDelta(t, 1.0, byYear.Value(school, 2), 1e-12)
	assert.InDelta(t, 0.5, byYear.Value(school, 4), 1e-12, "years wrap")
}

func TestClassTable(t *testing.T) {
	table := newClassTable(&config.ClassSeriesConfig{
		Structure:  "size",
		Thresholds: []float64{5, 10},
		Values:     [][]float64{{0.1, 0.2}, {0.3, 0.4}},
	}, 12)

	tests := []struct {
		name   string
		length float64
		step   int
		want   float64
	}{
		{"below first class", 3, 0, 0},
		{"first class", 7, 0, 0.1},
		{"second class", 15, 1, 0.4},
		{"wraps", 7, 2, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SchoolState{Length: tt.length}
			assert.Equal(t, tt.want, table.at(tt.step, table.class(s)))
		})
	}

	byAge := newClassTable(&config.ClassSeriesConfig{
		Structure:  "age",
		Thresholds: []float64{0, 1},
		Values:     [][]float64{{0.1, 0.2}},
	}, 12)
	assert.Equal(t, 0, byAge.class(&SchoolState{AgeDt: 11}))
	assert.Equal(t, 1, byAge.class(&SchoolState{AgeDt: 12}))
}

func TestAdditionalScenarioPrecedence(t *testing.T) {
	byClass := &config.ClassSeriesConfig{Structure: "age", Thresholds: []float64{0}, Values: [][]float64{{0.1}}}

	tests := []struct {
		name  string
		add   config.AdditionalConfig
		adult ScenarioKind
		larva ScenarioKind
	}{
		{
			name:  "class table wins",
			add:   config.AdditionalConfig{Rate: ptr(0.5), RateByDt: []float64{0.1}, RateByDtByClass: byClass, LarvaRate: ptr(1)},
			adult: KindByDtByClass,
			larva: KindConstant,
		},
		{
			name:  "series beats annual rate",
			add:   config.AdditionalConfig{Rate: ptr(0.5), RateByDt: []float64{0.1}, LarvaRate: ptr(1), LarvaRateByDt: []float64{1, 2}},
			adult: KindByDt,
			larva: KindByDt,
		},
		{
			name:  "annual rate",
			add:   config.AdditionalConfig{Rate: ptr(0.5)},
			adult: KindSeasonal,
			larva: KindZero,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t, func(c *config.Config) {
				c.Species[0].Additional = tt.add
			})
			env := newTestEnv(t, cfg)
			a, err := NewAdditional(cfg, env.maps, env.grid)
			require.NoError(t, err)
			assert.Equal(t, tt.adult, a.AdultKind(0))
			assert.Equal(t, tt.larva, a.LarvaKind(0))
		})
	}
}

func TestAdditionalMissingAdultRate(t *testing.T) {
	cfg := newTestConfig(t, func(c *config.Config) {
		c.Species[0].Additional = config.AdditionalConfig{LarvaRate: ptr(1)}
	})
	env := newTestEnv(t, cfg)

	_, err := NewProcess(cfg, env.grid, env.resources, env.mpas, env.maps)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))

	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "sprat", cerr.Species)
	assert.Equal(t, "additional.rate", cerr.Key)
}

func TestAdditionalRate(t *testing.T) {
	cfg := newTestConfig(t, func(c *config.Config) {
		c.Maps = []config.MapConfig{{Name: "half", Values: [][]float64{{0, 0.5, 0.5}, {0.5, 0.5, 0.5}}}}
		c.Species[0].Additional.SpatialMap = "half"
	})
	env := newTestEnv(t, cfg)
	a, err := NewAdditional(cfg, env.maps, env.grid)
	require.NoError(t, err)

	egg := &SchoolState{AgeDt: 0, Cell: 1}
	assert.InDelta(t, 2.3, a.Rate(egg, 0), 1e-12, "eggs use the larva rate without the spatial factor")

	adult := &SchoolState{AgeDt: 24, Cell: 1}
	assert.InDelta(t, 0.6/12*0.5, a.Rate(adult, 0), 1e-12)

	unlocated := &SchoolState{AgeDt: 24, Cell: -1}
	assert.InDelta(t, 0.6/12, a.Rate(unlocated, 0), 1e-12)
}

func TestAdditionalSpatialMapOutOfRange(t *testing.T) {
	cfg := newTestConfig(t, func(c *config.Config) {
		c.Maps = []config.MapConfig{{Name: "hot", Values: [][]float64{{0, 1.5, 1}, {1, 1, 1}}}}
		c.Species[0].Additional.SpatialMap = "hot"
	})
	env := newTestEnv(t, cfg)

	_, err := NewAdditional(cfg, env.maps, env.grid)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestRateMultiplier(t *testing.T) {
	cfg := newTestConfig(t, func(c *config.Config) {
		c.Species[0].Additional.RateMultiplier = ptr(2)
	})
	env := newTestEnv(t, cfg)
	a, err := NewAdditional(cfg, env.maps, env.grid)
	require.NoError(t, err)

	assert.InDelta(t, 2*0.6/12, a.Rate(&SchoolState{AgeDt: 24, Cell: 1}, 0), 1e-12)
}
