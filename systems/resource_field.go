package systems

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/shoal/config"
)

// ResourceGroup describes a background plankton pool.
type ResourceGroup struct {
	Name         string
	TrophicLevel float64
	SizeMin      float64 // cm
	SizeMax      float64 // cm
}

// ResourceField holds per-cell resource biomass for every group.
// Biomass is re-forced each step from the configured base distribution,
// so predation never depletes the pool across steps.
type ResourceField struct {
	grid   *Grid
	groups []ResourceGroup

	base          [][]float64 // group -> cell, tonnes
	accessibility []float64
	season        [][]float64 // group -> step in year, nil means 1

	// Current step
	biomass  [][]float64
	consumed [][]float64
}

// NewResourceField builds the field from cfg. maps must hold every map named by a resource.
func NewResourceField(cfg *config.Config, grid *Grid, maps map[string]*GridMap) (*ResourceField, error) {
	n := len(cfg.Resources)
	rf := &ResourceField{
		grid:          grid,
		groups:        make([]ResourceGroup, n),
		base:          make([][]float64, n),
		accessibility: make([]float64, n),
		season:        make([][]float64, n),
		biomass:       make([][]float64, n),
		consumed:      make([][]float64, n),
	}
	for g, rc := range cfg.Resources {
		rf.groups[g] = ResourceGroup{
			Name:         rc.Name,
			TrophicLevel: rc.TrophicLevel,
			SizeMin:      rc.SizeMin,
			SizeMax:      rc.SizeMax,
		}
		rf.accessibility[g] = rc.Accessibility
		rf.season[g] = rc.Season

		base := make([]float64, grid.Len())
		var distribution *GridMap
		if rc.Map != "" {
			m, ok := maps[rc.Map]
			if !ok {
				return nil, fmt.Errorf("resource %q: map %q not loaded", rc.Name, rc.Map)
			}
			distribution = m
		}
		for _, i := range grid.OceanIndices() {
			base[i] = rc.Biomass
			if distribution != nil {
				base[i] *= distribution.ValueAt(i)
			}
		}
		rf.base[g] = base
		rf.biomass[g] = make([]float64, grid.Len())
		rf.consumed[g] = make([]float64, grid.Len())
	}
	return rf, nil
}

// Update sets the biomass exposed to predation for the given step.
func (rf *ResourceField) Update(step, stepsPerYear int) {
	inYear := step % stepsPerYear
	for g := range rf.groups {
		forcing := rf.accessibility[g]
		if s := rf.season[g]; s != nil {
			forcing *= s[inYear]
		}
		copy(rf.biomass[g], rf.base[g])
		floats.Scale(forcing, rf.biomass[g])
		for i := range rf.consumed[g] {
			rf.consumed[g][i] = 0
		}
	}
}

// Groups returns the resource groups in index order.
func (rf *ResourceField) Groups() []ResourceGroup {
	return rf.groups
}

// NumGroups returns the number of resource groups.
func (rf *ResourceField) NumGroups() int {
	return len(rf.groups)
}

// Biomass returns the accessible biomass of group g in a cell for this step.
func (rf *ResourceField) Biomass(g, cell int) float64 {
	return rf.biomass[g][cell]
}

// CellBiomass appends the biomass of every group in a cell to dst.
func (rf *ResourceField) CellBiomass(cell int, dst []float64) []float64 {
	for g := range rf.groups {
		dst = append(dst, rf.Biomass(g, cell))
	}
	return dst
}

// Consume records biomass eaten from group g in a cell.
func (rf *ResourceField) Consume(g, cell int, amount float64) {
	rf.consumed[g][cell] += amount
}

// TotalBiomass returns the accessible biomass of group g over the grid.
func (rf *ResourceField) TotalBiomass(g int) float64 {
	return floats.Sum(rf.biomass[g])
}

// TotalConsumed returns the biomass of group g eaten this step over the grid.
func (rf *ResourceField) TotalConsumed(g int) float64 {
	return floats.Sum(rf.consumed[g])
}
