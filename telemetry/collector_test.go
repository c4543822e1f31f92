package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/shoal/components"
	"github.com/pthm-cable/shoal/mortality"
)

func TestCollectorFlush(t *testing.T) {
	c := NewCollector(4, 12, []string{"sprat", "cod"})

	sprat := &components.School{Species: 0, Weight: 0.01, PreyedBiomass: 2}
	sprat.NDead[components.CausePredation] = 10
	sprat.NDead[components.CauseFishing] = 5
	cod := &components.School{Species: 1, Weight: 1}
	cod.NDead[components.CauseOut] = 3
	c.RecordSchool(sprat)
	c.RecordSchool(cod)
	c.RecordSchool(&components.School{Species: 7}) // unknown species ignored

	c.RecordIterations(mortality.IterationStats{Cells: 2, Min: 1, Max: 3, Mean: 2})
	c.RecordIterations(mortality.IterationStats{Cells: 1, Min: 4, Max: 4, Mean: 4, Unconverged: 1})
	c.RecordIterations(mortality.IterationStats{}) // stochastic steps carry no cells

	assert.False(t, c.ShouldFlush(3))
	require.True(t, c.ShouldFlush(4))

	samples := []SchoolSample{
		{Species: 0, Abundance: 100, Weight: 0.01, Length: 10, TrophicLevel: 3},
		{Species: 0, Abundance: 300, Weight: 0.01, Length: 20, TrophicLevel: 4},
	}
	stats := c.Flush(4, samples, ResourceTotals{Biomass: 100, Consumed: 7})

	assert.Equal(t, 0, stats.WindowStartStep)
	assert.Equal(t, 4, stats.WindowEndStep)
	assert.Equal(t, 0, stats.Year)
	assert.Equal(t, 2, stats.Schools)
	assert.InDelta(t, 400, stats.Abundance, 1e-12)
	assert.InDelta(t, 4, stats.Biomass, 1e-12)
	assert.InDelta(t, 18, stats.Deaths, 1e-12)
	assert.InDelta(t, 0.05, stats.Yield, 1e-12)
	assert.Equal(t, 100.0, stats.ResourceBiomass)
	assert.Equal(t, 7.0, stats.ResourceConsumed)

	assert.Equal(t, 1, stats.IterMin)
	assert.Equal(t, 4, stats.IterMax)
	assert.InDelta(t, 8.0/3, stats.IterMean, 1e-12)
	assert.Equal(t, 1, stats.Unconverged)

	require.Len(t, stats.Mortality, 2)
	m := stats.Mortality[0]
	assert.Equal(t, "sprat", m.Species)
	assert.Equal(t, 10.0, m.Predation)
	assert.Equal(t, 5.0, m.Fishing)
	assert.Equal(t, 15.0, m.Total)
	assert.InDelta(t, 0.05, m.Yield, 1e-12)
	assert.Equal(t, 2.0, m.Preyed)
	assert.Equal(t, 3.0, stats.Mortality[1].Out)

	require.Len(t, stats.Species, 2)
	b := stats.Species[0]
	assert.Equal(t, 2, b.Schools)
	assert.InDelta(t, 3.75, b.MeanTL, 1e-12, "biomass weighted")
	assert.InDelta(t, 15, b.LengthMean, 1e-12)
	assert.Equal(t, "cod", stats.Species[1].Species)
	assert.Zero(t, stats.Species[1].Biomass)
}

func TestCollectorResetsAfterFlush(t *testing.T) {
	c := NewCollector(12, 12, []string{"sprat"})
	s := &components.School{Species: 0, Weight: 1}
	s.NDead[components.CauseAdditional] = 4
	c.RecordSchool(s)
	c.RecordIterations(mortality.IterationStats{Cells: 1, Min: 2, Max: 2, Mean: 2})
	c.Flush(12, nil, ResourceTotals{})

	assert.False(t, c.ShouldFlush(23))
	assert.True(t, c.ShouldFlush(24))

	stats := c.Flush(24, nil, ResourceTotals{})
	assert.Equal(t, 12, stats.WindowStartStep)
	assert.Equal(t, 1, stats.Year)
	assert.Zero(t, stats.Deaths)
	assert.Zero(t, stats.IterMax)
	assert.Zero(t, stats.IterMean)
	assert.Equal(t, 12, c.WindowSteps())
}
