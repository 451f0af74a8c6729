package constraints

import (
	"math"
	"testing"

	"github.com/muchq/routegate/go/routegate/config"
	"github.com/muchq/routegate/go/routegate/tensor"
)

func approxEqual(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

func TestMaxNormGlobalScalesDown(t *testing.T) {
	ts := tensor.Wrap([]float32{3, 4}, 2) // norm 5
	c := MaxNorm{MaxNorm: 2.5, Axis: config.AxisGlobal}
	if err := c.Apply(ts); err != nil {
		t.Fatal(err)
	}
	if !approxEqual(ts.L2Norm(), 2.5, 1e-4) {
		t.Errorf("L2Norm after MaxNorm = %f, want <= 2.5+eps", ts.L2Norm())
	}
}

func TestMaxNormIdempotent(t *testing.T) {
	ts := tensor.Wrap([]float32{3, 4}, 2)
	c := MaxNorm{MaxNorm: 2.5, Axis: config.AxisGlobal}
	c.Apply(ts)
	once := append([]float32{}, ts.Data...)
	c.Apply(ts)
	for i := range once {
		if !approxEqual(ts.Data[i], once[i], 1e-5) {
			t.Errorf("applying MaxNorm twice moved element %d: %f vs %f", i, ts.Data[i], once[i])
		}
	}
}

func TestUnitNormRow(t *testing.T) {
	ts := tensor.Wrap([]float32{3, 4, 0, 0}, 2, 2)
	c := UnitNorm{Axis: config.AxisRow}
	if err := c.Apply(ts); err != nil {
		t.Fatal(err)
	}
	row0Norm := l2(ts.Data[0:2])
	if !approxEqual(row0Norm, 1.0, 1e-4) {
		t.Errorf("row 0 norm = %f, want 1.0", row0Norm)
	}
	// row 1 was all zero; below the epsilon threshold it stays unchanged.
	if ts.Data[2] != 0 || ts.Data[3] != 0 {
		t.Errorf("zero row should remain unchanged, got %v", ts.Data[2:4])
	}
}

func TestUnitNormColumn(t *testing.T) {
	ts := tensor.Wrap([]float32{3, 0, 4, 0}, 2, 2) // column 0 = [3,4], column 1 = [0,0]
	c := UnitNorm{Axis: config.AxisColumn}
	if err := c.Apply(ts); err != nil {
		t.Fatal(err)
	}
	col0 := []float32{ts.Data[0], ts.Data[2]}
	if !approxEqual(l2(col0), 1.0, 1e-4) {
		t.Errorf("column 0 norm = %f, want 1.0", l2(col0))
	}
}

func TestMinMaxIdempotent(t *testing.T) {
	ts := tensor.Wrap([]float32{-5, 0.5, 5}, 3)
	c := MinMax{Min: -1, Max: 1}
	c.Apply(ts)
	want := []float32{-1, 0.5, 1}
	for i := range want {
		if ts.Data[i] != want[i] {
			t.Errorf("after first apply, Data[%d] = %f, want %f", i, ts.Data[i], want[i])
		}
	}
	c.Apply(ts)
	for i := range want {
		if ts.Data[i] != want[i] {
			t.Errorf("MinMax not idempotent at %d: %f vs %f", i, ts.Data[i], want[i])
		}
	}
}

func TestNonNegative(t *testing.T) {
	ts := tensor.Wrap([]float32{-1, 0, 2}, 3)
	NonNegative{}.Apply(ts)
	want := []float32{0, 0, 2}
	for i := range want {
		if ts.Data[i] != want[i] {
			t.Errorf("Data[%d] = %f, want %f", i, ts.Data[i], want[i])
		}
	}
}

func TestSpectralNonSquareUnchangedIfUnder1(t *testing.T) {
	ts := tensor.Wrap([]float32{0.1, 0.1, 0.1, 0.1, 0.1, 0.1}, 2, 3) // sigma ~0.245
	est := NewSpectralEstimator(4)
	c := &Spectral{Iterations: 5, name: "w", estimator: est}
	before := append([]float32{}, ts.Data...)
	if err := c.Apply(ts); err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if !approxEqual(ts.Data[i], before[i], 1e-4) {
			t.Errorf("small-sigma tensor should be unchanged, got %v want %v", ts.Data, before)
		}
	}
}

func TestSpectralNon2DUnchanged(t *testing.T) {
	ts := tensor.Wrap([]float32{1, 2, 3}, 3)
	c := &Spectral{Iterations: 1, name: "w", estimator: NewSpectralEstimator(1)}
	if err := c.Apply(ts); err != nil {
		t.Fatal(err)
	}
	want := []float32{1, 2, 3}
	for i := range want {
		if ts.Data[i] != want[i] {
			t.Errorf("non-2D tensor should be left unchanged")
		}
	}
}

func TestGradientConstraintsGlobalClipScenario(t *testing.T) {
	// spec.md S3
	a := tensor.Zeros(2).WithGrad()
	copy(a.Grad, []float32{3, 4})
	b := tensor.Zeros(2).WithGrad()
	copy(b.Grad, []float32{0, 0})
	params := map[string]*tensor.Tensor{"a": a, "b": b}

	clipNorm := float32(2.5)
	gotNorm := Gradient{}.Apply(params, config.GradientConstraintConfig{ClipGradients: true, ClipNorm: &clipNorm})

	if !approxEqual(gotNorm, 5.0, 1e-4) {
		t.Errorf("returned grad_norm = %f, want 5.0", gotNorm)
	}
	wantA := []float32{1.5, 2.0}
	for i := range wantA {
		if !approxEqual(a.Grad[i], wantA[i], 1e-4) {
			t.Errorf("a.Grad[%d] = %f, want %f", i, a.Grad[i], wantA[i])
		}
	}
}

func TestGradientConstraintsDisabledIsNoop(t *testing.T) {
	a := tensor.Zeros(2).WithGrad()
	copy(a.Grad, []float32{3, 4})
	params := map[string]*tensor.Tensor{"a": a}
	got := Gradient{}.Apply(params, config.GradientConstraintConfig{ClipGradients: false})
	if got != 0 {
		t.Errorf("expected 0 when clipGradients disabled, got %f", got)
	}
	if a.Grad[0] != 3 || a.Grad[1] != 4 {
		t.Errorf("gradients should be untouched when disabled")
	}
}

func TestGradientConstraintsValueClip(t *testing.T) {
	a := tensor.Zeros(3).WithGrad()
	copy(a.Grad, []float32{-5, 0.2, 5})
	params := map[string]*tensor.Tensor{"a": a}
	clipValue := float32(1.0)
	Gradient{}.Apply(params, config.GradientConstraintConfig{ClipGradients: true, ClipValue: &clipValue})
	want := []float32{-1, 0.2, 1}
	for i := range want {
		if !approxEqual(a.Grad[i], want[i], 1e-5) {
			t.Errorf("a.Grad[%d] = %f, want %f", i, a.Grad[i], want[i])
		}
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(config.WeightConstraintConfig{Type: "bogus"}, "w", nil)
	if err == nil {
		t.Fatal("expected error for unknown constraint type")
	}
}
