package sim

import (
	"cmp"
	"fmt"
	"os"
	"slices"

	"github.com/gocarina/gocsv"
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/shoal/components"
	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/mortality"
	"github.com/pthm-cable/shoal/telemetry"
)

// LoadSchoolsCSV reads initial schools from a CSV file with SchoolConfig columns.
func LoadSchoolsCSV(path string) ([]config.SchoolConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening schools file: %w", err)
	}
	defer f.Close()

	var rows []config.SchoolConfig
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing schools file %s: %w", path, err)
	}
	return rows, nil
}

// spawnInitialPopulation creates the starting schools, from the schools
// file when one is configured.
func (s *Simulation) spawnInitialPopulation() error {
	rows := s.cfg.Schools.Initial
	if s.cfg.Schools.File != "" {
		loaded, err := LoadSchoolsCSV(s.cfg.Schools.File)
		if err != nil {
			return err
		}
		rows = loaded
	}
	for i, row := range rows {
		if _, err := s.spawnSchool(s.nextID, row); err != nil {
			return fmt.Errorf("school %d: %w", i, err)
		}
		s.nextID++
	}
	return nil
}

// spawnSchool creates one school entity. Located schools must sit on an ocean cell.
func (s *Simulation) spawnSchool(id uint32, row config.SchoolConfig) (ecs.Entity, error) {
	sp, ok := s.cfg.Derived.SpeciesIndex[row.Species]
	if !ok {
		return ecs.Entity{}, fmt.Errorf("unknown species %q", row.Species)
	}
	if row.Abundance < 0 || row.Weight <= 0 || row.Length <= 0 {
		return ecs.Entity{}, fmt.Errorf("species %q: abundance, weight and length must be positive", row.Species)
	}
	if !row.Out {
		i, ok := s.grid.Index(row.X, row.Y)
		if !ok {
			return ecs.Entity{}, fmt.Errorf("species %q: cell (%d,%d) outside the grid", row.Species, row.X, row.Y)
		}
		if s.grid.CellAt(i).Land {
			return ecs.Entity{}, fmt.Errorf("species %q: cell (%d,%d) is land", row.Species, row.X, row.Y)
		}
	}

	school := components.School{
		ID:           id,
		Species:      sp,
		Abundance:    row.Abundance,
		Weight:       row.Weight * components.GramsToTonnes,
		Length:       row.Length,
		AgeDt:        row.AgeDt,
		TrophicLevel: row.TrophicLevel,
	}
	school.FeedingStage = s.feeding[sp].Stage(school.AgeDt, school.Length)
	school.AccessStage = s.access[sp].Stage(school.AgeDt, school.Length)
	loc := components.Location{X: row.X, Y: row.Y, Out: row.Out}
	diet := components.Diet{}

	entity := s.schoolMapper.NewEntity(&school, &loc, &diet)
	s.numSchools++
	return entity, nil
}

// cellEntry pairs a located school with its cell for grouping.
type cellEntry struct {
	cell   int
	school *components.School
	diet   *components.Diet
}

// Cells implements mortality.Population. Schools are grouped by cell in
// grid order and ordered by ID within a cell.
func (s *Simulation) Cells() []mortality.CellSchools {
	entries := make([]cellEntry, 0, s.numSchools)
	query := s.schoolFilter.Query()
	for query.Next() {
		school, loc, diet := query.Get()
		if loc.Out {
			continue
		}
		i, ok := s.grid.Index(loc.X, loc.Y)
		if !ok {
			continue
		}
		entries = append(entries, cellEntry{cell: i, school: school, diet: diet})
	}
	slices.SortFunc(entries, func(a, b cellEntry) int {
		if c := cmp.Compare(a.cell, b.cell); c != 0 {
			return c
		}
		return cmp.Compare(a.school.ID, b.school.ID)
	})

	var cells []mortality.CellSchools
	for _, e := range entries {
		if n := len(cells); n == 0 || cells[n-1].Index != e.cell {
			cells = append(cells, mortality.CellSchools{Index: e.cell})
		}
		c := &cells[len(cells)-1]
		c.Schools = append(c.Schools, e.school)
		c.Diets = append(c.Diets, e.diet)
	}
	return cells
}

// OutOfDomain implements mortality.Population.
func (s *Simulation) OutOfDomain() []*components.School {
	var out []*components.School
	query := s.schoolFilter.Query()
	for query.Next() {
		school, loc, _ := query.Get()
		if loc.Out {
			out = append(out, school)
		}
	}
	slices.SortFunc(out, func(a, b *components.School) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// cleanupExtinct removes schools whose abundance reached zero.
func (s *Simulation) cleanupExtinct() {
	// First pass: collect extinct entities (must complete before modifying)
	var toRemove []ecs.Entity
	query := s.schoolFilter.Query()
	for query.Next() {
		school, _, _ := query.Get()
		if school.Abundance <= 0 {
			toRemove = append(toRemove, query.Entity())
		}
	}

	// Second pass: remove entities (query iteration complete)
	for _, e := range toRemove {
		s.world.RemoveEntity(e)
		s.numSchools--
	}
}

// Samples returns the state of every living school.
func (s *Simulation) Samples() []telemetry.SchoolSample {
	out := make([]telemetry.SchoolSample, 0, s.numSchools)
	query := s.schoolFilter.Query()
	for query.Next() {
		school, _, _ := query.Get()
		if school.Abundance <= 0 {
			continue
		}
		out = append(out, telemetry.SchoolSample{
			Species:      school.Species,
			Abundance:    school.Abundance,
			Weight:       school.Weight,
			Length:       school.Length,
			TrophicLevel: school.TrophicLevel,
		})
	}
	return out
}

// SpeciesBiomass returns the current biomass per species in tonnes.
func (s *Simulation) SpeciesBiomass() []float64 {
	out := make([]float64, len(s.cfg.Species))
	query := s.schoolFilter.Query()
	for query.Next() {
		school, _, _ := query.Get()
		out[school.Species] += school.Biomass()
	}
	return out
}
