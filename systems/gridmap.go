package systems

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/shoal/config"
)

// GridMap is a spatial factor map with one value per grid cell.
type GridMap struct {
	Name   string
	nx     int
	values []float64
}

// NewGridMap flattens ny rows of nx values.
func NewGridMap(name string, rows [][]float64) (*GridMap, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("map %q: no rows", name)
	}
	nx := len(rows[0])
	m := &GridMap{Name: name, nx: nx, values: make([]float64, 0, nx*len(rows))}
	for j, row := range rows {
		if len(row) != nx {
			return nil, fmt.Errorf("map %q: row %d has %d values, want %d", name, j, len(row), nx)
		}
		m.values = append(m.values, row...)
	}
	return m, nil
}

// LoadGridMaps builds every map declared in cfg, keyed by name.
func LoadGridMaps(cfg *config.Config) (map[string]*GridMap, error) {
	out := make(map[string]*GridMap, len(cfg.Maps))
	for _, mc := range cfg.Maps {
		m, err := NewGridMap(mc.Name, mc.Values)
		if err != nil {
			return nil, err
		}
		out[mc.Name] = m
	}
	return out, nil
}

// ValueAt returns the factor at a flat cell index.
func (m *GridMap) ValueAt(index int) float64 {
	if index < 0 || index >= len(m.values) {
		return 0
	}
	return m.values[index]
}

// OceanSum sums the map over the ocean cells of g.
func (m *GridMap) OceanSum(g *Grid) float64 {
	vals := make([]float64, 0, g.NumOcean())
	for _, i := range g.OceanIndices() {
		vals = append(vals, m.ValueAt(i))
	}
	return floats.Sum(vals)
}

// InRange reports whether every ocean value lies in [lo, hi].
func (m *GridMap) InRange(g *Grid, lo, hi float64) bool {
	for _, i := range g.OceanIndices() {
		v := m.ValueAt(i)
		if v < lo || v > hi {
			return false
		}
	}
	return true
}
