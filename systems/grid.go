// Package systems holds the spatial collaborators of the mortality engine:
// the grid, resource pools, protected areas, factor maps and stage classifiers.
package systems

import "github.com/pthm-cable/shoal/config"

// Cell is one grid location.
type Cell struct {
	X, Y  int
	Index int // y*nx + x
	Land  bool
}

// Grid is a regular nx by ny grid with a land mask.
type Grid struct {
	NX, NY int
	cells  []Cell
	ocean  []int
}

// NewGrid creates a grid with the given land cells.
func NewGrid(nx, ny int, land []config.CellRef) *Grid {
	g := &Grid{NX: nx, NY: ny, cells: make([]Cell, nx*ny)}
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			i := y*nx + x
			g.cells[i] = Cell{X: x, Y: y, Index: i}
		}
	}
	for _, c := range land {
		if i, ok := g.Index(c.X, c.Y); ok {
			g.cells[i].Land = true
		}
	}
	for _, c := range g.cells {
		if !c.Land {
			g.ocean = append(g.ocean, c.Index)
		}
	}
	return g
}

// NewGridFromConfig creates the grid described by cfg.
func NewGridFromConfig(cfg *config.Config) *Grid {
	return NewGrid(cfg.Grid.NX, cfg.Grid.NY, cfg.Grid.Land)
}

// Index returns the flat index of (x, y) and whether it lies inside the grid.
func (g *Grid) Index(x, y int) (int, bool) {
	if x < 0 || x >= g.NX || y < 0 || y >= g.NY {
		return -1, false
	}
	return y*g.NX + x, true
}

// Cell returns the cell at (x, y), or nil outside the grid.
func (g *Grid) Cell(x, y int) *Cell {
	i, ok := g.Index(x, y)
	if !ok {
		return nil
	}
	return &g.cells[i]
}

// CellAt returns the cell with the given flat index.
func (g *Grid) CellAt(index int) *Cell {
	return &g.cells[index]
}

// Cells returns all cells, land included.
func (g *Grid) Cells() []Cell {
	return g.cells
}

// IsLand reports whether (x, y) is land. Cells outside the grid count as land.
func (g *Grid) IsLand(x, y int) bool {
	c := g.Cell(x, y)
	return c == nil || c.Land
}

// OceanIndices returns the flat indices of ocean cells in grid order.
func (g *Grid) OceanIndices() []int {
	return g.ocean
}

// NumOcean returns the number of ocean cells.
func (g *Grid) NumOcean() int {
	return len(g.ocean)
}

// Len returns the total number of cells.
func (g *Grid) Len() int {
	return len(g.cells)
}
