package constraints

import (
	"math"

	"github.com/muchq/routegate/go/routegate/config"
	"github.com/muchq/routegate/go/routegate/tensor"
)

// Gradient applies global-norm clipping followed by elementwise value
// clipping across a parameter group (spec.md §4.4).
type Gradient struct{}

// Apply computes the pre-clip global L2 norm over every parameter with a
// Grad buffer, scales all gradients down if it exceeds cfg.ClipNorm, then
// clamps every element to [-ClipValue, ClipValue] if cfg.ClipValue is
// set. It returns the global norm that was measured before any clipping
// (spec.md S3), or 0 without side effects if cfg.ClipGradients is false.
func (Gradient) Apply(params map[string]*tensor.Tensor, cfg config.GradientConstraintConfig) float32 {
	if !cfg.ClipGradients {
		return 0
	}

	var sumSq float64
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		for _, g := range p.Grad {
			sumSq += float64(g) * float64(g)
		}
	}
	totalNorm := float32(math.Sqrt(sumSq))

	if cfg.ClipNorm != nil && totalNorm > *cfg.ClipNorm {
		scale := *cfg.ClipNorm / totalNorm
		for _, p := range params {
			if p.Grad == nil {
				continue
			}
			for i := range p.Grad {
				p.Grad[i] *= scale
			}
		}
	}

	if cfg.ClipValue != nil {
		cv := *cfg.ClipValue
		for _, p := range params {
			if p.Grad == nil {
				continue
			}
			for i, g := range p.Grad {
				if g > cv {
					p.Grad[i] = cv
				} else if g < -cv {
					p.Grad[i] = -cv
				}
			}
		}
	}

	return totalNorm
}
