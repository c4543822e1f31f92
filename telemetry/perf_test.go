package telemetry

import (
	"math"
	"testing"
	"time"
)

func TestStepTimer_Window(t *testing.T) {
	timer := NewStepTimer()

	for i := 0; i < 5; i++ {
		timer.StartStep()
		timer.StartPhase(PhaseAging)
		time.Sleep(10 * time.Microsecond)
		timer.StartPhase(PhaseMortality)
		time.Sleep(2 * time.Millisecond)
		if d := timer.EndStep(); d <= 0 {
			t.Errorf("EndStep returned %v, want a positive duration", d)
		}
	}

	stats := timer.Flush()
	if stats.Steps != 5 {
		t.Errorf("Steps = %d, want 5", stats.Steps)
	}
	if stats.MinStep > stats.AvgStep || stats.AvgStep > stats.MaxStep {
		t.Errorf("expected min <= avg <= max, got %v, %v, %v", stats.MinStep, stats.AvgStep, stats.MaxStep)
	}
	if stats.StepsPerSecond() <= 0 {
		t.Error("expected positive steps per second")
	}

	mortality, aging := stats.PhasePct[PhaseMortality], stats.PhasePct[PhaseAging]
	if mortality <= aging {
		t.Errorf("expected mortality phase (%v%%) > aging phase (%v%%)", mortality, aging)
	}
	var sum float64
	for _, pct := range stats.PhasePct {
		sum += pct
	}
	if sum > 100+1e-9 {
		t.Errorf("phase shares sum to %v%%, want at most 100", sum)
	}

	row := stats.ToCSV(24)
	if row.WindowEnd != 24 || row.Steps != 5 || row.MortalityPct != mortality {
		t.Errorf("ToCSV = %+v", row)
	}
	if math.Abs(row.OtherPct-(sum-mortality)) > 1e-9 {
		t.Errorf("OtherPct = %v, want %v", row.OtherPct, sum-mortality)
	}
}

func TestStepTimer_FlushStartsNewWindow(t *testing.T) {
	timer := NewStepTimer()
	timer.StartStep()
	timer.StartPhase(PhaseMortality)
	timer.EndStep()
	timer.Flush()

	timer.StartStep()
	timer.StartPhase(PhaseReset)
	timer.EndStep()
	stats := timer.Flush()

	if stats.Steps != 1 {
		t.Errorf("Steps = %d, want 1 after a flush", stats.Steps)
	}
	if stats.PhasePct[PhaseMortality] != 0 {
		t.Errorf("mortality share %v leaked from the previous window", stats.PhasePct[PhaseMortality])
	}
}

func TestStepTimer_Empty(t *testing.T) {
	stats := NewStepTimer().Flush()

	if stats.Steps != 0 || stats.AvgStep != 0 {
		t.Errorf("empty window = %+v, want zero", stats)
	}
	if stats.StepsPerSecond() != 0 {
		t.Error("expected zero steps per second for an empty window")
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseMortality.String() != "mortality" {
		t.Errorf("PhaseMortality = %q", PhaseMortality.String())
	}
	if numPhases.String() != "unknown" {
		t.Errorf("out of range phase = %q", numPhases.String())
	}
}
