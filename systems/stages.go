package systems

import "github.com/pthm-cable/shoal/config"

// StageClassifier maps a school's age or length to a stage index.
// Stage i holds values in [thresholds[i-1], thresholds[i]).
type StageClassifier struct {
	bySize       bool
	thresholds   []float64
	stepsPerYear int
}

// NewStageClassifier builds a classifier from a stage config.
// An empty config yields a single stage.
func NewStageClassifier(sc config.StageConfig, stepsPerYear int) StageClassifier {
	return StageClassifier{
		bySize:       sc.Structure == "size",
		thresholds:   sc.Thresholds,
		stepsPerYear: stepsPerYear,
	}
}

// Stage returns the stage of a school with the given age in steps and length in cm.
func (c StageClassifier) Stage(ageDt int, length float64) int {
	v := length
	if !c.bySize {
		v = float64(ageDt) / float64(c.stepsPerYear)
	}
	stage := 0
	for _, t := range c.thresholds {
		if v >= t {
			stage++
		} else {
			break
		}
	}
	return stage
}

// NumStages returns the number of stages.
func (c StageClassifier) NumStages() int {
	return len(c.thresholds) + 1
}

// ClassIndex returns the class of value among increasing thresholds, or -1 below the first.
func ClassIndex(thresholds []float64, value float64) int {
	idx := -1
	for i, t := range thresholds {
		if value >= t {
			idx = i
		} else {
			break
		}
	}
	return idx
}
