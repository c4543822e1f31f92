// Package mortality resolves competing mortality causes for the schools of each
// grid cell at every time step.
//
// Per-cause rate providers (Additional, Fishing, Starvation, Out) and the
// Predation resolver feed one of two aggregators: Iterative, a deterministic
// fixed point on competing exponential hazards, or Stochastic, sequential
// competing draws over shuffled sub-steps. Aggregators are pure and return a
// Ledger; Process applies ledgers to schools.
package mortality

// SchoolState is the per-step view of a school seen by the aggregators.
type SchoolState struct {
	Species        int
	AgeDt          int
	Abundance      float64 // individuals at the start of the step
	Weight         float64 // tonnes per individual
	Length         float64 // cm
	TrophicLevel   float64
	FeedingStage   int
	AccessStage    int
	StarvationRate float64 // hazard for this step, from last step's predation success
	Cell           int     // flat cell index, -1 when unlocated
}

// Biomass returns the start-of-step biomass in tonnes.
func (s *SchoolState) Biomass() float64 {
	return s.Abundance * s.Weight
}

// IsEgg reports whether the school is in its first time step.
func (s *SchoolState) IsEgg() bool {
	return s.AgeDt == 0
}

// CellInput is everything an aggregator needs for one cell-step.
type CellInput struct {
	Index     int
	Schools   []SchoolState
	Resources []float64 // accessible biomass per resource group, tonnes
}

// NumPrey returns the number of prey rows: schools then resource groups.
func (c *CellInput) NumPrey() int {
	return len(c.Schools) + len(c.Resources)
}

// preyBiomass fills dst with the start-of-step biomass of every prey row.
func (c *CellInput) preyBiomass(dst []float64) []float64 {
	dst = dst[:0]
	for i := range c.Schools {
		b := c.Schools[i].Biomass()
		if b < 0 {
			b = 0
		}
		dst = append(dst, b)
	}
	return append(dst, c.Resources...)
}

// preyWeight returns the tonnes per unit of a prey row: individual weight
// for schools, 1 for resources whose rows are already in tonnes.
func (c *CellInput) preyWeight(row int) float64 {
	if row < len(c.Schools) {
		return c.Schools[row].Weight
	}
	return 1
}

// preyAmount returns the start-of-step amount of a prey row in its own unit.
func (c *CellInput) preyAmount(row int) float64 {
	if row < len(c.Schools) {
		return max(c.Schools[row].Abundance, 0)
	}
	return c.Resources[row-len(c.Schools)]
}
