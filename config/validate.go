package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("config: %s failed %q (value %v): %w", first.Namespace(), first.Tag(), first.Value(), err)
		}
		return fmt.Errorf("config: %w", err)
	}

	var errs []error
	check := func(cond bool, format string, args ...any) {
		if !cond {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	spy := c.Simulation.StepsPerYear
	names := make(map[string]bool, len(c.Species)+len(c.Resources))

	for _, sp := range c.Species {
		check(!names[sp.Name], "species %q: duplicate name", sp.Name)
		names[sp.Name] = true

		nFeeding := len(sp.FeedingStages.Thresholds) + 1
		check(len(sp.SizeRatioMin) == nFeeding, "species %q: size_ratio_min needs %d values, got %d", sp.Name, nFeeding, len(sp.SizeRatioMin))
		check(len(sp.SizeRatioMax) == nFeeding, "species %q: size_ratio_max needs %d values, got %d", sp.Name, nFeeding, len(sp.SizeRatioMax))
		for i := 0; i < len(sp.SizeRatioMin) && i < len(sp.SizeRatioMax); i++ {
			check(sp.SizeRatioMax[i] >= sp.SizeRatioMin[i], "species %q: size_ratio_max[%d] below size_ratio_min[%d]", sp.Name, i, i)
		}
		check(len(sp.FeedingStages.Thresholds) == 0 || sp.FeedingStages.Structure != "", "species %q: feeding_stages.structure required with thresholds", sp.Name)
		check(len(sp.AccessStages.Thresholds) == 0 || sp.AccessStages.Structure != "", "species %q: accessibility_stages.structure required with thresholds", sp.Name)

		add := sp.Additional
		check(add.Season == nil || len(add.Season) == spy, "species %q: additional.season needs %d values", sp.Name, spy)
		check(add.SpatialMap == "" || c.hasMap(add.SpatialMap), "species %q: additional.spatial_map %q not defined", sp.Name, add.SpatialMap)
		errs = append(errs, c.checkClassSeries(sp.Name, "additional.rate_by_dt_by_class", add.RateByDtByClass)...)

		fish := sp.Fishing
		check(fish.Season == nil || len(fish.Season) == spy, "species %q: fishing.season needs %d values", sp.Name, spy)
		check(fish.SpatialMap == "" || c.hasMap(fish.SpatialMap), "species %q: fishing.spatial_map %q not defined", sp.Name, fish.SpatialMap)
		errs = append(errs, c.checkClassSeries(sp.Name, "fishing.rate_by_dt_by_class", fish.RateByDtByClass)...)
		errs = append(errs, c.checkClassSeries(sp.Name, "fishing.catches_by_dt_by_class", fish.CatchesByDtByClass)...)
	}

	for _, r := range c.Resources {
		check(!names[r.Name], "resource %q: name already used", r.Name)
		names[r.Name] = true
		check(r.Season == nil || len(r.Season) == spy, "resource %q: season needs %d values", r.Name, spy)
		check(r.Map == "" || c.hasMap(r.Map), "resource %q: map %q not defined", r.Name, r.Map)
	}

	for _, m := range c.Maps {
		check(len(m.Values) == c.Grid.NY, "map %q: needs %d rows, got %d", m.Name, c.Grid.NY, len(m.Values))
		for j, row := range m.Values {
			check(len(row) == c.Grid.NX, "map %q: row %d needs %d values, got %d", m.Name, j, c.Grid.NX, len(row))
		}
	}

	for _, cell := range c.Grid.Land {
		check(c.inGrid(cell), "grid.land: cell (%d,%d) outside grid", cell.X, cell.Y)
	}
	for _, mpa := range c.MPAs {
		for _, cell := range mpa.Cells {
			check(c.inGrid(cell), "mpa %q: cell (%d,%d) outside grid", mpa.Name, cell.X, cell.Y)
		}
	}
	for i, s := range c.Schools.Initial {
		_, ok := c.Derived.SpeciesIndex[s.Species]
		check(ok, "schools.initial[%d]: unknown species %q", i, s.Species)
		check(s.Out || c.inGrid(CellRef{X: s.X, Y: s.Y}), "schools.initial[%d]: cell (%d,%d) outside grid", i, s.X, s.Y)
	}

	errs = append(errs, c.checkAccessibility()...)

	return errors.Join(errs...)
}

func (c *Config) hasMap(name string) bool {
	_, ok := c.Derived.MapIndex[name]
	return ok
}

func (c *Config) inGrid(cell CellRef) bool {
	return cell.X >= 0 && cell.X < c.Grid.NX && cell.Y >= 0 && cell.Y < c.Grid.NY
}

func (c *Config) checkClassSeries(species, key string, cs *ClassSeriesConfig) []error {
	if cs == nil {
		return nil
	}
	var errs []error
	for i := 1; i < len(cs.Thresholds); i++ {
		if cs.Thresholds[i] <= cs.Thresholds[i-1] {
			errs = append(errs, fmt.Errorf("species %q: %s thresholds must increase", species, key))
			break
		}
	}
	for i, row := range cs.Values {
		if len(row) != len(cs.Thresholds) {
			errs = append(errs, fmt.Errorf("species %q: %s row %d needs %d values, got %d", species, key, i, len(cs.Thresholds), len(row)))
		}
	}
	return errs
}

// NumAccessStages returns the accessibility stage count of a species or resource name.
// Resources have a single stage.
func (c *Config) NumAccessStages(name string) int {
	if i, ok := c.Derived.SpeciesIndex[name]; ok {
		return len(c.Species[i].AccessStages.Thresholds) + 1
	}
	return 1
}

// checkAccessibility requires a complete matrix whenever any entry is given.
func (c *Config) checkAccessibility() []error {
	entries := c.Accessibility.Entries
	if len(entries) == 0 {
		return nil
	}

	type key struct {
		prey      string
		preyStage int
		pred      string
		predStage int
	}
	seen := make(map[key]bool, len(entries))
	var errs []error
	for _, e := range entries {
		_, preySp := c.Derived.SpeciesIndex[e.Prey]
		_, preyRes := c.Derived.ResourceIndex[e.Prey]
		if !preySp && !preyRes {
			errs = append(errs, fmt.Errorf("accessibility: unknown prey %q", e.Prey))
			continue
		}
		if _, ok := c.Derived.SpeciesIndex[e.Predator]; !ok {
			errs = append(errs, fmt.Errorf("accessibility: unknown predator %q", e.Predator))
			continue
		}
		if e.PreyStage >= c.NumAccessStages(e.Prey) || e.PredatorStage >= c.NumAccessStages(e.Predator) {
			errs = append(errs, fmt.Errorf("accessibility: stage out of range for %q/%q", e.Prey, e.Predator))
			continue
		}
		seen[key{e.Prey, e.PreyStage, e.Predator, e.PredatorStage}] = true
	}
	if len(errs) > 0 {
		return errs
	}

	preys := make([]string, 0, len(c.Species)+len(c.Resources))
	for _, sp := range c.Species {
		preys = append(preys, sp.Name)
	}
	for _, r := range c.Resources {
		preys = append(preys, r.Name)
	}
	for _, prey := range preys {
		for ps := 0; ps < c.NumAccessStages(prey); ps++ {
			for _, pred := range c.Species {
				for ds := 0; ds < c.NumAccessStages(pred.Name); ds++ {
					if !seen[key{prey, ps, pred.Name, ds}] {
						errs = append(errs, fmt.Errorf("accessibility: missing entry prey %q stage %d, predator %q stage %d", prey, ps, pred.Name, ds))
					}
				}
			}
		}
	}
	return errs
}
