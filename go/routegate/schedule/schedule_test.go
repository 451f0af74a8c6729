package schedule

import (
	"math"
	"testing"

	"github.com/muchq/routegate/go/routegate/config"
)

func approxEqual(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

func TestCosineWarmupScenarioS6(t *testing.T) {
	s, err := New(1e-3, config.SchedulerConfig{Type: config.SchedulerCosineWarmup, WarmupEpochs: 5, MinLr: 0, TMax: 10})
	if err != nil {
		t.Fatal(err)
	}
	lrWarm := s.Step(4, nil)
	if !approxEqual(lrWarm, 1e-3, 1e-7) {
		t.Errorf("epoch 4 (still warmup) lr = %v, want 1e-3", lrWarm)
	}
	lrPost := s.Step(10, nil)
	if !approxEqual(lrPost, 5e-4, 1e-7) {
		t.Errorf("epoch 10 lr = %v, want 5e-4", lrPost)
	}
}

func TestStepSchedule(t *testing.T) {
	s, _ := New(1.0, config.SchedulerConfig{Type: config.SchedulerStep, StepSize: 10, Gamma: 0.5})
	lr := s.Step(25, nil) // e=25, floor(25/10)=2
	want := float32(1.0 * 0.25)
	if !approxEqual(lr, want, 1e-6) {
		t.Errorf("lr = %v, want %v", lr, want)
	}
}

func TestOneCycleRampThenAnneal(t *testing.T) {
	s, _ := New(1.0, config.SchedulerConfig{Type: config.SchedulerOneCycle, TMax: 10, MaxLr: 10, MinLr: 0})
	rampLr := s.Step(1, nil) // p=0.1 < 0.3, ramping
	if rampLr <= 1.0 || rampLr >= 10.0 {
		t.Errorf("ramp-phase lr = %v, want strictly between base and max", rampLr)
	}
	annealLr := s.Step(9, nil) // p=0.9 > 0.3, annealing
	if annealLr >= 10.0 {
		t.Errorf("anneal-phase lr = %v, want below max", annealLr)
	}
}

func TestReduceOnPlateauReducesAfterPatience(t *testing.T) {
	s, _ := New(1.0, config.SchedulerConfig{Type: config.SchedulerReduceOnPlateau, Patience: 2, Gamma: 0.5, MinDelta: 0})
	m := float32(1.0)
	s.Step(0, &m) // establishes best
	s.Step(1, &m) // bad epoch 1
	lr := s.Step(2, &m) // bad epoch 2 reaches patience, reduces
	if !approxEqual(lr, 0.5, 1e-6) {
		t.Errorf("lr after patience exhausted = %v, want 0.5", lr)
	}
}

func TestScheduleOutputsNeverBelowMinLr(t *testing.T) {
	types := []config.SchedulerType{
		config.SchedulerConstant, config.SchedulerStep, config.SchedulerExponential,
		config.SchedulerCosine, config.SchedulerLinearWarmup, config.SchedulerOneCycle,
	}
	for _, ty := range types {
		s, err := New(1.0, config.SchedulerConfig{Type: ty, MinLr: 0.1, TMax: 10, StepSize: 2, Gamma: 0.1})
		if err != nil {
			t.Fatal(err)
		}
		for e := 0; e < 20; e++ {
			lr := s.Step(e, nil)
			if lr < 0.1 {
				t.Errorf("%s epoch %d: lr = %v, below min_lr 0.1", ty, e, lr)
			}
		}
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(1.0, config.SchedulerConfig{Type: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown scheduler type")
	}
}
