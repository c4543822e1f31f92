package systems

import (
	"log/slog"
	"slices"

	"github.com/pthm-cable/shoal/config"
)

// MPA is a marine protected area active over a closed range of years.
type MPA struct {
	Name      string
	Cells     []int // flat ocean cell indices
	StartYear int
	EndYear   int
}

// IsActive reports whether the area is enforced in the given year.
func (m *MPA) IsActive(year int) bool {
	return year >= 0 && year >= m.StartYear && year <= m.EndYear
}

// MPASet tracks which areas are active and the fishing correction they imply.
// Fishing effort displaced from active cells is spread over the open ocean,
// so open cells carry M/(M-N) for N protected of M ocean cells.
type MPASet struct {
	grid         *Grid
	stepsPerYear int
	mpas         []MPA
	active       []bool
	factor       []float64
	inside       []bool
	protected    int
	initialized  bool
}

// NewMPASet builds the areas in cfg. Land cells inside an area are ignored.
func NewMPASet(cfg *config.Config, grid *Grid) *MPASet {
	s := &MPASet{
		grid:         grid,
		stepsPerYear: cfg.Simulation.StepsPerYear,
		factor:       make([]float64, grid.Len()),
		inside:       make([]bool, grid.Len()),
	}
	for _, mc := range cfg.MPAs {
		mpa := MPA{Name: mc.Name, StartYear: mc.StartYear, EndYear: mc.EndYear}
		for _, c := range mc.Cells {
			if i, ok := grid.Index(c.X, c.Y); ok && !grid.CellAt(i).Land {
				mpa.Cells = append(mpa.Cells, i)
			}
		}
		s.mpas = append(s.mpas, mpa)
	}
	s.active = make([]bool, len(s.mpas))
	return s
}

// Update refreshes the correction map for the given step.
// The map is rebuilt only when some area changed state. Returns true on rebuild.
func (s *MPASet) Update(step int) bool {
	year := -1
	if step >= 0 {
		year = step / s.stepsPerYear
	}

	changed := !s.initialized
	for i := range s.mpas {
		a := s.mpas[i].IsActive(year)
		if a != s.active[i] {
			s.active[i] = a
			changed = true
		}
	}
	if !changed {
		return false
	}
	s.initialized = true
	s.rebuild()
	slog.Debug("mpa correction updated", "step", step, "protected_cells", s.protected)
	return true
}

func (s *MPASet) rebuild() {
	var cells []int
	for i, m := range s.mpas {
		if s.active[i] {
			cells = append(cells, m.Cells...)
		}
	}
	slices.Sort(cells)
	cells = slices.Compact(cells)
	s.protected = len(cells)

	for i := range s.factor {
		s.factor[i] = 0
		s.inside[i] = false
	}
	for _, i := range cells {
		s.inside[i] = true
	}
	m := s.grid.NumOcean()
	if s.protected >= m {
		return
	}
	open := float64(m) / float64(m-s.protected)
	for _, i := range s.grid.OceanIndices() {
		s.factor[i] = open
	}
	for _, i := range cells {
		s.factor[i] = 0
	}
}

// Factor returns the fishing correction of a flat cell index.
func (s *MPASet) Factor(index int) float64 {
	if index < 0 || index >= len(s.factor) {
		return 0
	}
	return s.factor[index]
}

// Correction returns the per-cell fishing correction for an effort map.
// Effort covers the ocean cells where the map is positive, nil meaning all of them.
// Protected and unfished cells get zero. Fished open cells get 1/Σ_open(value),
// so a map summing to 1 over the ocean keeps its total effort.
func (s *MPASet) Correction(effort *GridMap) []float64 {
	out := make([]float64, s.grid.Len())
	if effort == nil {
		copy(out, s.factor)
		return out
	}

	var open []int
	var share float64
	for _, i := range s.grid.OceanIndices() {
		if v := effort.ValueAt(i); v > 0 && !s.inside[i] {
			open = append(open, i)
			share += v
		}
	}
	if share <= 0 {
		return out
	}
	for _, i := range open {
		out[i] = 1 / share
	}
	return out
}

// Inside reports whether a flat cell index lies in an active area.
func (s *MPASet) Inside(index int) bool {
	return index >= 0 && index < len(s.inside) && s.inside[index]
}

// Protected returns the number of distinct ocean cells under an active area.
func (s *MPASet) Protected() int {
	return s.protected
}

// Len returns the number of configured areas.
func (s *MPASet) Len() int {
	return len(s.mpas)
}
