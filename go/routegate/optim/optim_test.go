package optim

import (
	"math"
	"testing"

	"github.com/muchq/routegate/go/routegate/config"
	"github.com/muchq/routegate/go/routegate/tensor"
)

func approxEqual(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

func TestSGDScenarioS1(t *testing.T) {
	w := tensor.Wrap([]float32{1.0}, 1).WithGrad()
	w.Grad[0] = 0.5
	params := map[string]*tensor.Tensor{"w": w}

	sgd := &SGD{lr: 0.1, momentum: 0, velocity: map[string]*tensor.Tensor{}}
	if err := sgd.Step(params); err != nil {
		t.Fatal(err)
	}
	if !approxEqual(w.Data[0], 0.95, 1e-6) {
		t.Errorf("w = %f, want 0.95", w.Data[0])
	}
	if !approxEqual(sgd.Velocity()["w"].Data[0], 0.5, 1e-6) {
		t.Errorf("velocity = %f, want 0.5", sgd.Velocity()["w"].Data[0])
	}
}

func TestAdamScenarioS2(t *testing.T) {
	w := tensor.Wrap([]float32{1.0}, 1).WithGrad()
	w.Grad[0] = 1.0
	params := map[string]*tensor.Tensor{"w": w}

	adam := &Adam{lr: 0.01, beta1: 0.9, beta2: 0.999, epsilon: 1e-8, m: map[string]*tensor.Tensor{}, v: map[string]*tensor.Tensor{}}
	if err := adam.Step(params); err != nil {
		t.Fatal(err)
	}
	if adam.StepCount() != 1 {
		t.Errorf("step count = %d, want 1", adam.StepCount())
	}
	if !approxEqual(w.Data[0], 0.99, 1e-4) {
		t.Errorf("w = %f, want ~0.99", w.Data[0])
	}
}

func TestAdamGlobalStepIncrementsOncePerCall(t *testing.T) {
	w1 := tensor.Wrap([]float32{1.0}, 1).WithGrad()
	w1.Grad[0] = 0.1
	w2 := tensor.Wrap([]float32{1.0}, 1).WithGrad()
	w2.Grad[0] = 0.2
	params := map[string]*tensor.Tensor{"a": w1, "b": w2}

	adam := &Adam{lr: 0.01, beta1: 0.9, beta2: 0.999, epsilon: 1e-8, m: map[string]*tensor.Tensor{}, v: map[string]*tensor.Tensor{}}
	adam.Step(params)
	adam.Step(params)
	adam.Step(params)
	if adam.StepCount() != 3 {
		t.Errorf("step count = %d, want 3 (once per Step call, not per param)", adam.StepCount())
	}
}

func TestAdamWDecoupledDecayAppliedAfterStep(t *testing.T) {
	w := tensor.Wrap([]float32{1.0}, 1).WithGrad()
	w.Grad[0] = 0
	params := map[string]*tensor.Tensor{"w": w}
	adam := &Adam{lr: 0.1, beta1: 0.9, beta2: 0.999, epsilon: 1e-8, weightDecay: 0.1, decoupled: true,
		m: map[string]*tensor.Tensor{}, v: map[string]*tensor.Tensor{}}
	adam.Step(params)
	// grad is 0 so the Adam update itself is a no-op; only decay should move w.
	want := float32(1.0 * (1 - 0.1*0.1))
	if !approxEqual(w.Data[0], want, 1e-5) {
		t.Errorf("w = %f, want %f", w.Data[0], want)
	}
}

func TestNewRejectsUnimplementedOptimizer(t *testing.T) {
	_, err := New(config.OptimizerConfig{Type: config.OptimizerRMSProp})
	if err == nil {
		t.Fatal("expected error for rmsprop")
	}
}

func TestGradScalerGrowsAfterStreak(t *testing.T) {
	s := &GradScaler{Scale: 1, GrowthInterval: 3, GrowthFactor: 2, BackoffFactor: 0.5}
	for i := 0; i < 2; i++ {
		if !s.Update(true) {
			t.Errorf("expected step to apply on finite gradients")
		}
	}
	if s.Scale != 1 {
		t.Errorf("scale should not grow before interval reached, got %f", s.Scale)
	}
	s.Update(true) // 3rd consecutive finite step hits the interval
	if s.Scale != 2 {
		t.Errorf("scale = %f, want 2 after growth interval", s.Scale)
	}
}

func TestGradScalerBacksOffOnOverflow(t *testing.T) {
	s := &GradScaler{Scale: 4, GrowthInterval: 100, GrowthFactor: 2, BackoffFactor: 0.5}
	applied := s.Update(false)
	if applied {
		t.Errorf("expected step to be skipped on non-finite gradients")
	}
	if s.Scale != 2 {
		t.Errorf("scale = %f, want 2 after backoff", s.Scale)
	}
}
