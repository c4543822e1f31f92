package telemetry

import (
	"log/slog"
	"time"
)

// Phase is a timed part of the simulation step.
type Phase uint8

const (
	PhaseReset Phase = iota
	PhaseMortality
	PhaseUpdate
	PhaseAging
	PhaseCleanup
	PhaseTelemetry
	numPhases
)

var phaseNames = [numPhases]string{"reset", "mortality", "update", "aging", "cleanup", "telemetry"}

func (p Phase) String() string {
	if p < numPhases {
		return phaseNames[p]
	}
	return "unknown"
}

// StepTimer accumulates step and phase durations until the stats window
// is flushed.
type StepTimer struct {
	steps    int
	total    time.Duration
	min, max time.Duration
	phases   [numPhases]time.Duration

	stepStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool
}

// NewStepTimer returns an empty timer.
func NewStepTimer() *StepTimer {
	return &StepTimer{}
}

// StartStep begins timing a step.
func (t *StepTimer) StartStep() {
	t.stepStart = time.Now()
	t.inPhase = false
}

// StartPhase closes the running phase, if any, and starts p.
func (t *StepTimer) StartPhase(p Phase) {
	now := time.Now()
	t.closePhase(now)
	t.phase = p
	t.phaseStart = now
	t.inPhase = true
}

func (t *StepTimer) closePhase(now time.Time) {
	if t.inPhase {
		t.phases[t.phase] += now.Sub(t.phaseStart)
	}
}

// EndStep closes the step and returns its duration.
func (t *StepTimer) EndStep() time.Duration {
	now := time.Now()
	t.closePhase(now)
	t.inPhase = false

	d := now.Sub(t.stepStart)
	if t.steps == 0 || d < t.min {
		t.min = d
	}
	t.max = max(t.max, d)
	t.total += d
	t.steps++
	return d
}

// PerfStats summarises the steps of one stats window.
type PerfStats struct {
	Steps    int
	AvgStep  time.Duration
	MinStep  time.Duration
	MaxStep  time.Duration
	PhasePct [numPhases]float64 // share of step time
}

// Flush returns the stats of the steps timed since the last flush and
// starts a new window.
func (t *StepTimer) Flush() PerfStats {
	s := PerfStats{Steps: t.steps, MinStep: t.min, MaxStep: t.max}
	if t.steps > 0 {
		s.AvgStep = t.total / time.Duration(t.steps)
	}
	if t.total > 0 {
		for p, d := range t.phases {
			s.PhasePct[p] = float64(d) / float64(t.total) * 100
		}
	}
	*t = StepTimer{}
	return s
}

// StepsPerSecond is the stepping rate over the window.
func (s PerfStats) StepsPerSecond() float64 {
	if s.AvgStep <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.AvgStep)
}

// LogStats logs the window with the phases above 0.1% of step time.
func (s PerfStats) LogStats() {
	attrs := []any{
		"steps", s.Steps,
		"avg_step_us", s.AvgStep.Microseconds(),
		"max_step_us", s.MaxStep.Microseconds(),
		"steps_per_sec", int(s.StepsPerSecond()),
	}
	for p, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, Phase(p).String()+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// PerfStatsCSV is one perf.csv row.
type PerfStatsCSV struct {
	WindowEnd    int     `csv:"window_end"`
	Steps        int     `csv:"steps"`
	AvgStepUS    int64   `csv:"avg_step_us"`
	MinStepUS    int64   `csv:"min_step_us"`
	MaxStepUS    int64   `csv:"max_step_us"`
	MortalityPct float64 `csv:"mortality_pct"`
	OtherPct     float64 `csv:"other_pct"`
}

// ToCSV flattens the stats. Every phase but mortality is summed into other_pct.
func (s PerfStats) ToCSV(windowEnd int) PerfStatsCSV {
	row := PerfStatsCSV{
		WindowEnd:    windowEnd,
		Steps:        s.Steps,
		AvgStepUS:    s.AvgStep.Microseconds(),
		MinStepUS:    s.MinStep.Microseconds(),
		MaxStepUS:    s.MaxStep.Microseconds(),
		MortalityPct: s.PhasePct[PhaseMortality],
	}
	for p, pct := range s.PhasePct {
		if Phase(p) != PhaseMortality {
			row.OtherPct += pct
		}
	}
	return row
}
