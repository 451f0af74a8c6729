// Package regularize injects the L1/L2/elastic-net subgradient into each
// parameter's gradient buffer (spec.md §4.5), after gradient clipping and
// before the optimizer step.
package regularize

import (
	"github.com/muchq/routegate/go/routegate/config"
	"github.com/muchq/routegate/go/routegate/tensor"
)

// Inject adds l1Scale*sign(w) + 2*l2Scale*w into every parameter's Grad
// buffer, where l1Scale = L1Regularization*ElasticNetRatio and
// l2Scale = L2Regularization*(1-ElasticNetRatio). It is a no-op when both
// regularization coefficients are zero.
func Inject(params map[string]*tensor.Tensor, cfg config.BoundedConfig) {
	if cfg.L1Regularization == 0 && cfg.L2Regularization == 0 {
		return
	}
	l1Scale := cfg.L1Regularization * cfg.ElasticNetRatio
	l2Scale := cfg.L2Regularization * (1 - cfg.ElasticNetRatio)

	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		for i, w := range p.Data {
			if l1Scale != 0 {
				p.Grad[i] += l1Scale * sign(w)
			}
			if l2Scale != 0 {
				p.Grad[i] += 2 * l2Scale * w
			}
		}
	}
}

func sign(w float32) float32 {
	switch {
	case w > 0:
		return 1
	case w < 0:
		return -1
	default:
		return 0
	}
}
