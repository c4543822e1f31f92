// Package components defines ECS components for the simulation.
package components

// GramsToTonnes converts an individual weight from grams to tonnes.
const GramsToTonnes = 1e-6

// School is a cohort of same-species, same-age fish sharing one cell.
type School struct {
	ID           uint32
	Species      int
	Abundance    float64 // individuals at the start of the step
	Weight       float64 // tonnes per individual
	Length       float64 // cm
	AgeDt        int     // age in time steps
	TrophicLevel float64
	FeedingStage int
	AccessStage  int

	// Per-step accumulators, cleared by ResetStep
	NDead         [NumCauses]float64
	PredSuccess   float64 // realised / maximum predation this step
	PreyedBiomass float64 // tonnes eaten this step
	PreyedTL      float64 // sum of preyTL * preyed biomass

	// Starvation hazard applied this step, derived from the previous step's success
	StarvationRate float64
}

// Location places a school on the grid.
// Out schools have migrated away and are subject to out-of-domain mortality only.
type Location struct {
	X, Y int
	Out  bool
}

// Diet holds the full prey records of a school for the current step.
type Diet struct {
	Records []PreyRecord
}

// PreyRecord is one prey item eaten by a school.
// Resource prey carry AgeDt and Length of -1.
type PreyRecord struct {
	Species      int // species index, resources follow the species
	TrophicLevel float64
	AgeDt        int
	Length       float64
	Biomass      float64 // tonnes
}

// Biomass returns the start-of-step biomass in tonnes.
func (s *School) Biomass() float64 {
	return s.Abundance * s.Weight
}

// TotalDead returns the individuals removed this step over all causes.
func (s *School) TotalDead() float64 {
	var sum float64
	for _, d := range s.NDead {
		sum += d
	}
	return sum
}

// InstantaneousAbundance returns the abundance left after this step's deaths.
// Less than one individual counts as none.
func (s *School) InstantaneousAbundance() float64 {
	ab := s.Abundance - s.TotalDead()
	if ab < 1 {
		return 0
	}
	return ab
}

// ResetStep clears the per-step accumulators.
func (s *School) ResetStep() {
	s.NDead = [NumCauses]float64{}
	s.PredSuccess = 0
	s.PreyedBiomass = 0
	s.PreyedTL = 0
}

// UpdateAbundance commits this step's deaths.
func (s *School) UpdateAbundance() {
	s.Abundance = s.InstantaneousAbundance()
}

// UpdateTrophicLevel sets the trophic level from this step's diet.
// A school that ate nothing keeps its previous value.
func (s *School) UpdateTrophicLevel() {
	if s.PreyedBiomass > 0 {
		s.TrophicLevel = s.PreyedTL/s.PreyedBiomass + 1
	}
}

// IsEgg reports whether the school is in its first time step.
func (s *School) IsEgg() bool {
	return s.AgeDt == 0
}
