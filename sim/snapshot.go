package sim

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/pthm-cable/shoal/components"
	"github.com/pthm-cable/shoal/config"
	"github.com/pthm-cable/shoal/telemetry"
)

// Snapshot captures the living population at the current step.
func (s *Simulation) Snapshot(runID string) *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		RunID:   runID,
		Seed:    s.seed,
		Step:    s.step,
		NextID:  s.nextID,
		Schools: make([]telemetry.SchoolState, 0, s.numSchools),
	}
	query := s.schoolFilter.Query()
	for query.Next() {
		school, loc, _ := query.Get()
		snap.Schools = append(snap.Schools, telemetry.SchoolState{
			ID:           school.ID,
			Species:      s.cfg.Species[school.Species].Name,
			Abundance:    school.Abundance,
			Weight:       school.Weight / components.GramsToTonnes,
			Length:       school.Length,
			AgeDt:        school.AgeDt,
			TrophicLevel: school.TrophicLevel,
			X:            loc.X,
			Y:            loc.Y,
			Out:          loc.Out,
		})
	}
	slices.SortFunc(snap.Schools, func(a, b telemetry.SchoolState) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return snap
}

// restore spawns the schools of snap and resumes at its step. The random
// stream restarts from the run's own seed.
func (s *Simulation) restore(snap *telemetry.Snapshot) error {
	if snap.Step < 0 || snap.Step >= s.cfg.Derived.TotalSteps {
		return fmt.Errorf("snapshot step %d outside the run length %d", snap.Step, s.cfg.Derived.TotalSteps)
	}
	seen := make(map[uint32]bool, len(snap.Schools))
	next := snap.NextID
	for i, st := range snap.Schools {
		if seen[st.ID] {
			return fmt.Errorf("snapshot school %d: duplicate id %d", i, st.ID)
		}
		seen[st.ID] = true
		row := config.SchoolConfig{
			Species:      st.Species,
			Abundance:    st.Abundance,
			Weight:       st.Weight,
			Length:       st.Length,
			AgeDt:        st.AgeDt,
			TrophicLevel: st.TrophicLevel,
			X:            st.X,
			Y:            st.Y,
			Out:          st.Out,
		}
		if _, err := s.spawnSchool(st.ID, row); err != nil {
			return fmt.Errorf("snapshot school %d: %w", i, err)
		}
		next = max(next, st.ID+1)
	}
	s.nextID = next
	s.step = snap.Step
	s.collector.StartAt(snap.Step)
	return nil
}
