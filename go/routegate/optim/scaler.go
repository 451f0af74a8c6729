package optim

import "github.com/muchq/routegate/go/routegate/tensor"

// GradScaler implements the mixed-precision scaling hook named in
// spec.md §6 (config.MixedPrecision) but left undesigned there. It
// follows the standard dynamic-loss-scale algorithm: grow the scale
// after a streak of consecutive finite-gradient steps, halve it
// immediately and skip that optimizer step on overflow.
//
// Shaped after go/resilience4g/rate_limit's TokenBucketRateLimiter: that
// limiter grows a token balance on a steady cadence and admits a request
// when the balance covers its cost; GradScaler grows a scale multiplier
// on a steady cadence of successful steps and "spends" it back to half on
// overflow. Same grow/spend accounting loop, repurposed from request
// admission to loss-scale admission.
type GradScaler struct {
	Scale          float32
	GrowthInterval int
	GrowthFactor   float32
	BackoffFactor  float32
	streak         int
}

// NewGradScaler returns a scaler with the conventional AMP defaults:
// initial scale 2^16, double every 2000 consecutive finite steps, halve
// on overflow.
func NewGradScaler() *GradScaler {
	return &GradScaler{
		Scale:          65536,
		GrowthInterval: 2000,
		GrowthFactor:   2.0,
		BackoffFactor:  0.5,
	}
}

// Unscale divides every gradient in params by the current scale. Callers
// scale the loss by Scale before backprop and call Unscale before
// inspecting gradients for clipping/regularization/optimizer step.
func (s *GradScaler) Unscale(params map[string]*tensor.Tensor) {
	inv := 1 / s.Scale
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		for i := range p.Grad {
			p.Grad[i] *= inv
		}
	}
}

// Update reports whether the optimizer step should be applied this round
// and advances the scaler's internal state. gradientsFinite is the
// caller's observation (e.g. from Tensor.GradIsFinite across the
// parameter set) after Unscale.
func (s *GradScaler) Update(gradientsFinite bool) (applyStep bool) {
	if !gradientsFinite {
		s.Scale *= s.BackoffFactor
		s.streak = 0
		return false
	}
	s.streak++
	if s.streak >= s.GrowthInterval {
		s.Scale *= s.GrowthFactor
		s.streak = 0
	}
	return true
}
