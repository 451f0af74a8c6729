// Package constraints implements the weight projections (spec.md §4.3)
// applied after every optimizer step, and the gradient clipping pass
// (spec.md §4.4) applied before it. Grounded on go/neuro/utils/tensor.go's
// norm/scale helpers and go/neuro/network/optimizer.go's per-parameter
// sweep shape.
package constraints

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/muchq/routegate/go/routegate/config"
	"github.com/muchq/routegate/go/routegate/tensor"
)

const epsNorm = 1e-10

// Weight is a per-tensor geometric projection, idempotent within
// floating-point tolerance (spec.md R1).
type Weight interface {
	Apply(t *tensor.Tensor) error
}

// None is the identity constraint.
type None struct{}

func (None) Apply(*tensor.Tensor) error { return nil }

// New builds the Weight constraint for one parameter's config. estimator
// may be nil unless cfg.Type is ConstraintSpectral.
func New(cfg config.WeightConstraintConfig, name string, estimator *SpectralEstimator) (Weight, error) {
	switch cfg.Type {
	case "", config.ConstraintNone:
		return None{}, nil
	case config.ConstraintMaxNorm:
		return MaxNorm{MaxNorm: cfg.MaxNorm, Axis: cfg.Axis}, nil
	case config.ConstraintUnitNorm:
		return UnitNorm{Axis: cfg.Axis}, nil
	case config.ConstraintMinMax:
		return MinMax{Min: cfg.MinValue, Max: cfg.MaxValue}, nil
	case config.ConstraintNonNegative:
		return NonNegative{}, nil
	case config.ConstraintSpectral:
		iters := cfg.Iterations
		if iters <= 0 {
			iters = 1
		}
		return &Spectral{Iterations: iters, name: name, estimator: estimator}, nil
	default:
		return nil, config.Wrapper(config.ErrConfig, "unknown weight constraint type: "+string(cfg.Type))
	}
}

// MaxNorm rescales so the tensor (or each row/column, depending on Axis)
// has L2 norm at most MaxNorm.
type MaxNorm struct {
	MaxNorm float32
	Axis    config.Axis
}

func (c MaxNorm) Apply(t *tensor.Tensor) error {
	switch c.Axis {
	case config.AxisRow:
		return forEachRow(t, func(row []float32) {
			rescaleIfOver(row, c.MaxNorm)
		})
	case config.AxisColumn:
		return forEachColumn(t, func(col []float32, _ int) {
			rescaleIfOver(col, c.MaxNorm)
		})
	default:
		rescaleIfOver(t.Data, c.MaxNorm)
		return nil
	}
}

func rescaleIfOver(data []float32, maxNorm float32) {
	n := l2(data)
	if n > maxNorm && n > epsNorm {
		s := maxNorm / n
		for i := range data {
			data[i] *= s
		}
	}
}

// UnitNorm divides by the norm when it exceeds epsNorm, otherwise leaves
// the tensor unchanged.
type UnitNorm struct {
	Axis config.Axis
}

func (c UnitNorm) Apply(t *tensor.Tensor) error {
	switch c.Axis {
	case config.AxisRow:
		return forEachRow(t, func(row []float32) { normalize(row) })
	case config.AxisColumn:
		return forEachColumn(t, func(col []float32, _ int) { normalize(col) })
	default:
		normalize(t.Data)
		return nil
	}
}

func normalize(data []float32) {
	n := l2(data)
	if n > epsNorm {
		for i := range data {
			data[i] /= n
		}
	}
}

// MinMax clamps every element to [Min, Max].
type MinMax struct {
	Min, Max float32
}

func (c MinMax) Apply(t *tensor.Tensor) error {
	for i, v := range t.Data {
		if v < c.Min {
			t.Data[i] = c.Min
		} else if v > c.Max {
			t.Data[i] = c.Max
		}
	}
	return nil
}

// NonNegative clamps every element to max(0, x).
type NonNegative struct{}

func (NonNegative) Apply(t *tensor.Tensor) error {
	for i, v := range t.Data {
		if v < 0 {
			t.Data[i] = 0
		}
	}
	return nil
}

// Spectral approximates the largest singular value via power iteration
// on 2-D tensors and rescales the whole tensor if sigma > 1. Non-2-D
// tensors are left unchanged (spec.md §4.3). The iteration warm-starts
// from the previous call's estimate for this parameter name, held in a
// bounded LRU shared across all Spectral constraints in a training run.
type Spectral struct {
	Iterations int
	name       string
	estimator  *SpectralEstimator
}

func (c *Spectral) Apply(t *tensor.Tensor) error {
	if len(t.Shape) != 2 {
		return nil
	}
	if c.estimator == nil {
		c.estimator = NewSpectralEstimator(1)
	}
	sigma := c.estimator.estimate(c.name, t, c.Iterations)
	if sigma > 1 {
		t.Scale(float32(1 / sigma))
	}
	return nil
}

// SpectralEstimator caches, per parameter name, the last right singular
// vector estimate so each call's power iteration warm-starts from the
// previous call's vector instead of restarting -- an LRU so a run
// registering many parameters stays bounded (SPEC_FULL.md §4).
type SpectralEstimator struct {
	cache *lru.Cache[string, []float64]
}

// NewSpectralEstimator creates a cache sized to the number of parameters
// expected to use spectral constraints.
func NewSpectralEstimator(capacity int) *SpectralEstimator {
	if capacity < 1 {
		capacity = 1
	}
	c, _ := lru.New[string, []float64](capacity)
	return &SpectralEstimator{cache: c}
}

func (e *SpectralEstimator) estimate(name string, t *tensor.Tensor, iterations int) float64 {
	rows, cols := t.Shape[0], t.Shape[1]
	m := mat.NewDense(rows, cols, toFloat64(t.Data))

	v, ok := e.cache.Get(name)
	if !ok || len(v) != cols {
		v = make([]float64, cols)
		v[0] = 1 // deterministic, non-zero seed vector
	}
	vVec := mat.NewVecDense(cols, v)

	var uVec, vNext mat.VecDense
	for i := 0; i < iterations; i++ {
		uVec.MulVec(m, vVec)
		normalizeVec(&uVec)
		vNext.MulVec(m.T(), &uVec)
		normalizeVec(&vNext)
		vVec = &vNext
	}

	var mv mat.VecDense
	mv.MulVec(m, vVec)
	sigma := math.Sqrt(mat.Dot(&mv, &mv))

	e.cache.Add(name, append([]float64{}, vVec.RawVector().Data...))
	return sigma
}

func normalizeVec(v *mat.VecDense) {
	n := math.Sqrt(mat.Dot(v, v))
	if n > epsNorm {
		v.ScaleVec(1/n, v)
	}
}

func toFloat64(data []float32) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

func l2(data []float32) float32 {
	var sumSq float64
	for _, v := range data {
		sumSq += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sumSq))
}

func forEachRow(t *tensor.Tensor, fn func(row []float32)) error {
	if len(t.Shape) != 2 {
		return config.Wrapper(config.ErrShape, "row-axis constraint requires a 2-D tensor")
	}
	rows, cols := t.Shape[0], t.Shape[1]
	for r := 0; r < rows; r++ {
		fn(t.Data[r*cols : (r+1)*cols])
	}
	return nil
}

func forEachColumn(t *tensor.Tensor, fn func(col []float32, colIdx int)) error {
	if len(t.Shape) != 2 {
		return config.Wrapper(config.ErrShape, "column-axis constraint requires a 2-D tensor")
	}
	rows, cols := t.Shape[0], t.Shape[1]
	for c := 0; c < cols; c++ {
		col := make([]float32, rows)
		for r := 0; r < rows; r++ {
			col[r] = t.Data[r*cols+c]
		}
		fn(col, c)
		for r := 0; r < rows; r++ {
			t.Data[r*cols+c] = col[r]
		}
	}
	return nil
}
