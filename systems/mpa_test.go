package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/shoal/config"
)

// mpaConfig returns a copy of the defaults with the given protected areas.
func mpaConfig(t *testing.T, mpas []config.MPAConfig) *config.Config {
	t.Helper()
	cfg, err := config.Cfg().Clone()
	if err != nil {
		t.Fatal(err)
	}
	cfg.MPAs = mpas
	return cfg
}

func cells(refs ...[2]int) []config.CellRef {
	out := make([]config.CellRef, len(refs))
	for i, r := range refs {
		out[i] = config.CellRef{X: r[0], Y: r[1]}
	}
	return out
}

func TestMPAIsActive(t *testing.T) {
	m := MPA{StartYear: 2, EndYear: 4}
	tests := []struct {
		year int
		want bool
	}{
		{-1, false},
		{1, false},
		{2, true},
		{4, true},
		{5, false},
	}
	for _, tt := range tests {
		if got := m.IsActive(tt.year); got != tt.want {
			t.Errorf("IsActive(%d) = %v, want %v", tt.year, got, tt.want)
		}
	}
}

func TestMPASetUpdate(t *testing.T) {
	cfg := config.Cfg()
	grid := NewGridFromConfig(cfg)
	s := NewMPASet(cfg, grid)
	spy := cfg.Simulation.StepsPerYear
	m := float64(grid.NumOcean())

	if !s.Update(0) {
		t.Fatal("first Update should build the correction")
	}
	if s.Protected() != 0 {
		t.Errorf("Protected = %d before the start year", s.Protected())
	}
	open, _ := grid.Index(5, 5)
	reserve, _ := grid.Index(2, 2)
	if f := s.Factor(reserve); f != 1 {
		t.Errorf("Factor = %v with no active area, want 1", f)
	}
	if s.Update(1) {
		t.Error("Update without a state change should not rebuild")
	}

	if !s.Update(2 * spy) {
		t.Fatal("area activation should rebuild")
	}
	if s.Protected() != 4 {
		t.Errorf("Protected = %d, want 4", s.Protected())
	}
	if !s.Inside(reserve) || s.Inside(open) {
		t.Error("Inside does not match the reserve")
	}
	if f := s.Factor(reserve); f != 0 {
		t.Errorf("protected Factor = %v, want 0", f)
	}
	if f, want := s.Factor(open), m/(m-4); math.Abs(f-want) > 1e-12 {
		t.Errorf("open Factor = %v, want M/(M-N) = %v", f, want)
	}
	landIdx, _ := grid.Index(0, 0)
	if f := s.Factor(landIdx); f != 0 {
		t.Errorf("land Factor = %v, want 0", f)
	}

	if !s.Update(5 * spy) {
		t.Fatal("area expiry should rebuild")
	}
	if s.Protected() != 0 || s.Factor(reserve) != 1 {
		t.Error("expired area still protected")
	}
}

func TestMPASetDistinctCells(t *testing.T) {
	cfg := mpaConfig(t, []config.MPAConfig{
		{Name: "a", Cells: cells([2]int{2, 2}, [2]int{3, 3}), StartYear: 0, EndYear: 9},
		{Name: "b", Cells: cells([2]int{3, 3}, [2]int{4, 4}, [2]int{0, 0}), StartYear: 0, EndYear: 9},
	})
	grid := NewGridFromConfig(cfg)
	s := NewMPASet(cfg, grid)
	s.Update(0)

	// (3,3) is shared and (0,0) is land
	if s.Protected() != 3 {
		t.Errorf("Protected = %d, want 3", s.Protected())
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestMPASetCorrection(t *testing.T) {
	cfg := mpaConfig(t, []config.MPAConfig{
		{Name: "a", Cells: cells([2]int{2, 2}, [2]int{3, 2}), StartYear: 0, EndYear: 9},
	})
	grid := NewGridFromConfig(cfg)
	s := NewMPASet(cfg, grid)
	s.Update(0)

	// Effort only on row y=2, summing to 1 over the ocean
	rows := make([][]float64, grid.NY)
	for y := range rows {
		rows[y] = make([]float64, grid.NX)
		if y == 2 {
			for x := range rows[y] {
				rows[y][x] = 1 / float64(grid.NX)
			}
		}
	}
	effort, err := NewGridMap("effort", rows)
	if err != nil {
		t.Fatal(err)
	}

	corr := s.Correction(effort)
	var sum float64
	for x := 0; x < grid.NX; x++ {
		i, _ := grid.Index(x, 2)
		sum += corr[i] * effort.ValueAt(i)
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("total corrected effort = %v, want 1", sum)
	}
	protected, _ := grid.Index(2, 2)
	unfished, _ := grid.Index(5, 4)
	if corr[protected] != 0 || corr[unfished] != 0 {
		t.Error("protected and unfished cells must get zero")
	}
	open, _ := grid.Index(6, 2)
	if want := 8.0 / 6.0; math.Abs(corr[open]-want) > 1e-12 {
		t.Errorf("open fished cell = %v, want %v", corr[open], want)
	}

	all := s.Correction(nil)
	if want := float64(grid.NumOcean()) / float64(grid.NumOcean()-2); math.Abs(all[open]-want) > 1e-12 {
		t.Errorf("nil effort correction = %v, want %v", all[open], want)
	}
}
