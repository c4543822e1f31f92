package mortality

import (
	"math"
	"testing"
)

func TestStarvationRate(t *testing.T) {
	cfg := newTestConfig(t, nil)
	s := NewStarvation(cfg)

	tests := []struct {
		name    string
		ageDt   int
		success float64
		subdt   int
		want    float64
	}{
		{"egg", 0, 0, 1, 0},
		{"well fed", 24, 0.9, 1, 0},
		{"at critical efficiency", 24, 0.57, 1, 0},
		{"starving", 24, 0, 1, 0.3 / 12},
		{"half critical", 24, 0.285, 1, 0.15 / 12},
		{"sub-step", 24, 0, 10, 0.3 / 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Rate(0, tt.ageDt, tt.success, tt.subdt)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Rate(age=%d, success=%v, subdt=%d) = %v, want %v", tt.ageDt, tt.success, tt.subdt, got, tt.want)
			}
		})
	}
}

func TestOutMortality(t *testing.T) {
	cfg := newTestConfig(t, nil)
	o := NewOutMortality(cfg)

	if got, want := o.Rate(0), 0.4/12; math.Abs(got-want) > 1e-12 {
		t.Errorf("Rate = %v, want %v", got, want)
	}
	if got, want := o.Deaths(0, 1000), 1000*(1-math.Exp(-0.4/12)); math.Abs(got-want) > 1e-9 {
		t.Errorf("Deaths = %v, want %v", got, want)
	}
	if got := o.Deaths(0, 0); got != 0 {
		t.Errorf("Deaths of an empty school = %v, want 0", got)
	}
}
