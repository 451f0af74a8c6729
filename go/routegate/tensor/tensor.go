// Package tensor implements the dense float32 buffers the training core
// operates on: a flat, named set of 2-D and 1-D parameters plus their
// gradients. There is no autodiff graph here -- gradients are produced by
// the caller or by the routegate/loss kernel and wired in by name.
package tensor

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense float32 buffer with a shape and an optional gradient
// buffer of the same length.
type Tensor struct {
	Data         []float32
	Shape        []int
	Grad         []float32
	RequiresGrad bool
}

func size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Zeros allocates a zero-filled Tensor of the given shape.
func Zeros(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float32, size(shape)),
		Shape: append([]int{}, shape...),
	}
}

// Wrap builds a Tensor around caller-owned data, copying it in. len(data)
// must equal the product of shape.
func Wrap(data []float32, shape ...int) *Tensor {
	n := size(shape)
	if len(data) != n {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %v", len(data), shape))
	}
	t := Zeros(shape...)
	copy(t.Data, data)
	return t
}

// Randn fills a new Tensor using the Box-Muller transform: independent
// uniforms in (0,1) produce a standard normal sample, scaled by scale.
// src is caller-owned so callers can thread a single seeded *rand.Rand
// through registration for reproducible runs (config.Seed).
func Randn(scale float32, src *rand.Rand, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.Data {
		t.Data[i] = scale * float32(boxMuller(src))
	}
	return t
}

// boxMuller draws one standard-normal sample from two independent
// uniforms in (0,1).
func boxMuller(src *rand.Rand) float64 {
	u1 := 1 - src.Float64() // (0,1], avoids log(0)
	u2 := src.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// WithGrad allocates a zeroed gradient buffer matching Data's length and
// marks the tensor as requiring gradients.
func (t *Tensor) WithGrad() *Tensor {
	t.Grad = make([]float32, len(t.Data))
	t.RequiresGrad = true
	return t
}

// ZeroGrad fills Grad with zero. It is a no-op if Grad is absent.
func (t *Tensor) ZeroGrad() {
	if t.Grad == nil {
		return
	}
	for i := range t.Grad {
		t.Grad[i] = 0
	}
}

// Clone deep-copies data, shape, and grad (if present).
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{
		Data:         append([]float32{}, t.Data...),
		Shape:        append([]int{}, t.Shape...),
		RequiresGrad: t.RequiresGrad,
	}
	if t.Grad != nil {
		out.Grad = append([]float32{}, t.Grad...)
	}
	return out
}

// N is the number of elements, i.e. product(Shape).
func (t *Tensor) N() int {
	return len(t.Data)
}

// Rows, Cols assume a 2-D tensor; callers must check Shape length first.
func (t *Tensor) Rows() int { return t.Shape[0] }
func (t *Tensor) Cols() int { return t.Shape[1] }

// L2Norm returns the Euclidean norm of Data.
func (t *Tensor) L2Norm() float32 {
	var sumSq float64
	for _, v := range t.Data {
		sumSq += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sumSq))
}

// L1Norm returns the sum of absolute values of Data.
func (t *Tensor) L1Norm() float32 {
	var sum float64
	for _, v := range t.Data {
		sum += math.Abs(float64(v))
	}
	return float32(sum)
}

// NNZ counts non-zero elements.
func (t *Tensor) NNZ() int {
	n := 0
	for _, v := range t.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// Sparsity returns 1 - nnz/N.
func (t *Tensor) Sparsity() float32 {
	if len(t.Data) == 0 {
		return 0
	}
	return 1 - float32(t.NNZ())/float32(len(t.Data))
}

// Scale multiplies Data in place by s, using gonum/floats for the
// elementwise sweep (grounded on the teacher's Tensor.Scale).
func (t *Tensor) Scale(s float32) {
	scaleInPlace(t.Data, s)
}

// scaleInPlace multiplies a float32 slice by s via a float64 gonum/floats
// pass -- gonum's vector kernels operate on float64, so we convert,
// scale, and convert back; still cheaper than a hand-rolled SIMD loop for
// the small per-tensor sizes this engine targets.
func scaleInPlace(data []float32, s float32) {
	buf := make([]float64, len(data))
	for i, v := range data {
		buf[i] = float64(v)
	}
	floats.Scale(float64(s), buf)
	for i, v := range buf {
		data[i] = float32(v)
	}
}

// IsFinite reports whether every element of Data is finite.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

// GradIsFinite reports whether every element of Grad is finite (true if
// Grad is absent).
func (t *Tensor) GradIsFinite() bool {
	for _, v := range t.Grad {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

// NumericWarning is a non-fatal signal (spec.md §7) that a named
// parameter's data or gradient went non-finite after an update. Training
// continues; the offending values are left in place rather than silently
// re-zeroed.
type NumericWarning struct {
	Name   string
	Epoch  int
	InData bool
	InGrad bool
}

func (w NumericWarning) Error() string {
	where := "grad"
	if w.InData {
		where = "data"
	}
	return fmt.Sprintf("non-finite values in %s %q at epoch %d", where, w.Name, w.Epoch)
}
